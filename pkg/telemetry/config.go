package telemetry

import (
	"io"
	"strings"

	"github.com/argus-labs/presence/pkg/telemetry/sentry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config is the OTEL_* environment. Logging is always on; Enabled only controls trace export.
type Config struct {
	Enabled         bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint        string  `env:"OTEL_ENDPOINT" envDefault:"otel-collector:4317"`
	TraceSampleRate float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"1.0"`
	ServiceVersion  string  `env:"OTEL_SERVICE_VERSION"`

	LogLevel  string `env:"OTEL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"OTEL_LOG_FORMAT" envDefault:"json"` // json | pretty

	SentryDsn        string  `env:"OTEL_SENTRY_DSN"`
	SentryENV        string  `env:"OTEL_SENTRY_ENV"` // DEV | PROD
	SentrySampleRate float64 `env:"OTEL_SENTRY_SAMPLE_RATE" envDefault:"1.0"`
}

func loadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, eris.Wrap(err, "failed to parse telemetry config")
	}
	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate telemetry config")
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if err := validateLevel(cfg.LogLevel); err != nil {
		return err
	}
	if ParseLogFormat(cfg.LogFormat) == LogFormatUndefined {
		return eris.Errorf("invalid log format %q, want json or pretty", cfg.LogFormat)
	}
	if cfg.SentrySampleRate < 0 || cfg.SentrySampleRate > 1 {
		return eris.Errorf("sentry sample rate must be between 0.0 and 1.0, got %v", cfg.SentrySampleRate)
	}
	if !cfg.Enabled {
		return nil
	}
	if cfg.Endpoint == "" {
		return eris.New("OTLP endpoint cannot be empty when tracing is enabled")
	}
	return validateSampleRate(cfg.TraceSampleRate)
}

func (cfg *Config) applyToOptions(opt *Options) {
	opt.Endpoint = cfg.Endpoint
	opt.LogLevel = cfg.LogLevel
	opt.LogFormat = ParseLogFormat(cfg.LogFormat)
	opt.TraceSampleRate = cfg.TraceSampleRate
	if cfg.ServiceVersion != "" {
		opt.ServiceVersion = cfg.ServiceVersion
	}
	opt.SentryOptions.Dsn = cfg.SentryDsn
	opt.SentryOptions.Environment = cfg.SentryENV
	opt.SentryOptions.SampleRate = cfg.SentrySampleRate
}

// Options are set by the caller of New. Non-zero fields override the environment.
type Options struct {
	ServiceName     string
	ServiceVersion  string
	Endpoint        string
	LogLevel        string
	LogFormat       LogFormat
	TraceSampleRate float64

	SentryOptions sentry.Options

	// ResourceAttributes are attached to every exported span, e.g. the subject prefix of a shard.
	ResourceAttributes map[string]string

	// Output overrides the log destination. Defaults to stdout.
	Output io.Writer
}

// newDefaultOptions leaves the required fields invalid so validate catches a missing source.
func newDefaultOptions() Options {
	return Options{
		ServiceVersion:  "dev",
		LogFormat:       LogFormatUndefined,
		TraceSampleRate: -1.0,
	}
}

func (opt *Options) apply(newOpt Options) {
	overrideString(&opt.ServiceName, newOpt.ServiceName)
	overrideString(&opt.ServiceVersion, newOpt.ServiceVersion)
	overrideString(&opt.Endpoint, newOpt.Endpoint)
	overrideString(&opt.LogLevel, newOpt.LogLevel)
	if newOpt.LogFormat != LogFormatUndefined {
		opt.LogFormat = newOpt.LogFormat
	}
	if newOpt.TraceSampleRate != 0.0 {
		opt.TraceSampleRate = newOpt.TraceSampleRate
	}
	if newOpt.Output != nil {
		opt.Output = newOpt.Output
	}
	if newOpt.SentryOptions.Tags != nil {
		opt.SentryOptions.Tags = newOpt.SentryOptions.Tags
	}
	for k, v := range newOpt.ResourceAttributes {
		if opt.ResourceAttributes == nil {
			opt.ResourceAttributes = make(map[string]string, len(newOpt.ResourceAttributes))
		}
		opt.ResourceAttributes[k] = v
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (opt *Options) validate() error {
	switch {
	case opt.ServiceName == "":
		return eris.New("service name cannot be empty")
	case opt.Endpoint == "":
		return eris.New("endpoint cannot be empty")
	case opt.LogFormat == LogFormatUndefined:
		return eris.New("log format must be specified")
	}
	if err := validateLevel(opt.LogLevel); err != nil {
		return err
	}
	return validateSampleRate(opt.TraceSampleRate)
}

func validateLevel(level string) error {
	if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil || level == "" {
		return eris.Errorf("invalid log level %q, want debug, info, warn or error", level)
	}
	return nil
}

func validateSampleRate(rate float64) error {
	if rate < 0.0 || rate > 1.0 {
		return eris.Errorf("trace sample rate must be between 0.0 and 1.0, got %v", rate)
	}
	return nil
}

type LogFormat uint8

const (
	LogFormatUndefined LogFormat = iota
	LogFormatJSON
	LogFormatPretty
)

//nolint:gochecknoglobals // constant table
var logFormatNames = map[LogFormat]string{
	LogFormatJSON:   "json",
	LogFormatPretty: "pretty",
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return "undefined"
}

// ParseLogFormat is case-insensitive. Unknown names are LogFormatUndefined.
func ParseLogFormat(s string) LogFormat {
	for f, name := range logFormatNames {
		if strings.EqualFold(s, name) {
			return f
		}
	}
	return LogFormatUndefined
}
