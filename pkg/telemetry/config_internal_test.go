package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid json",
			cfg:  Config{LogLevel: "info", LogFormat: "json"},
		},
		{
			name: "valid pretty with tracing",
			cfg:  Config{Enabled: true, Endpoint: "collector:4317", TraceSampleRate: 0.5, LogLevel: "debug", LogFormat: "pretty"},
		},
		{
			name:    "bad level",
			cfg:     Config{LogLevel: "loud", LogFormat: "json"},
			wantErr: true,
		},
		{
			name:    "empty level",
			cfg:     Config{LogFormat: "json"},
			wantErr: true,
		},
		{
			name:    "bad format",
			cfg:     Config{LogLevel: "info", LogFormat: "xml"},
			wantErr: true,
		},
		{
			name:    "tracing without endpoint",
			cfg:     Config{Enabled: true, TraceSampleRate: 1, LogLevel: "info", LogFormat: "json"},
			wantErr: true,
		},
		{
			name:    "sample rate out of range",
			cfg:     Config{Enabled: true, Endpoint: "x:1", TraceSampleRate: 1.5, LogLevel: "info", LogFormat: "json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	t.Parallel()

	opt := newDefaultOptions()
	cfg := Config{Endpoint: "collector:4317", LogLevel: "info", LogFormat: "json", TraceSampleRate: 1}
	cfg.applyToOptions(&opt)
	opt.apply(Options{ServiceName: "presence", LogLevel: "debug"})

	assert.Equal(t, "presence", opt.ServiceName)
	assert.Equal(t, "debug", opt.LogLevel)
	assert.Equal(t, LogFormatJSON, opt.LogFormat)
	assert.Equal(t, "dev", opt.ServiceVersion)
	assert.NoError(t, opt.validate())

	cfg.ServiceVersion = "1.4.0"
	cfg.applyToOptions(&opt)
	assert.Equal(t, "1.4.0", opt.ServiceVersion)
}

func TestParseLogFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LogFormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, LogFormatPretty, ParseLogFormat("pretty"))
	assert.Equal(t, LogFormatUndefined, ParseLogFormat("yaml"))
	assert.Equal(t, "pretty", LogFormatPretty.String())
}
