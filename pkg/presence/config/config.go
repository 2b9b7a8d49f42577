// Package config loads the display configuration: the status catalogue, templates, refresh
// intervals and feature switches.
//
// A few sections are lenient. A priority list that is not a list of keys, a template of the wrong
// shape, an undefined default status and an unknown tag policy fall back to a safe value and are
// reported in Config.Warnings. Anything else that fails to decode or validate rejects the whole
// document and the caller keeps what it had.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/argus-labs/presence/pkg/presence/schedule"
	"github.com/argus-labs/presence/pkg/presence/sortkey"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type Config struct {
	General  GeneralConfig      `yaml:"general"`
	Statuses []StatusDefinition `yaml:"statuses"`
	Tablist  TablistConfig      `yaml:"tablist"`
	Nametag  NametagConfig      `yaml:"nametag"`
	Chat     ChatConfig         `yaml:"chat"`
	Deaths   DeathsConfig       `yaml:"deaths"`
	Country  CountryConfig      `yaml:"country"`
	Render   RenderConfig       `yaml:"render"`

	// Warnings lists the fallbacks applied while loading, for the owner to log once.
	Warnings []string `yaml:"-"`
}

type GeneralConfig struct {
	// Applied on join to players without a status who hold its permission. Empty disables it.
	DefaultStatus string `yaml:"default_status"`
}

// StatusDefinition is one selectable status. SortPriority is derived, never read from the file.
type StatusDefinition struct {
	Key          string `yaml:"key"`
	Display      string `yaml:"display"`
	Permission   string `yaml:"permission,omitempty"`
	NameColor    string `yaml:"name_color,omitempty"`
	SortPriority int    `yaml:"-"`
}

type TablistConfig struct {
	Enabled      bool           `yaml:"enabled"`
	PlayerFormat string         `yaml:"player_format"`
	Header       []string       `yaml:"header"`
	Footer       []string       `yaml:"footer"`
	Rotating     RotatingConfig `yaml:"rotating"`
	Sorting      SortingConfig  `yaml:"sorting"`
	Refresh      RefreshConfig  `yaml:"refresh"`
}

type RotatingConfig struct {
	// Zero pins the first message.
	Interval time.Duration `yaml:"interval"`
	Messages []string      `yaml:"messages"`
}

type SortingConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Priority []string `yaml:"priority"`
}

type RefreshConfig struct {
	Fast time.Duration `yaml:"fast"`
	Slow time.Duration `yaml:"slow"`
}

type NametagConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
}

type ChatConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Format        string `yaml:"format"`
	ClickableURLs bool   `yaml:"clickable_urls"`
	URLStyle      string `yaml:"url_style"`
	URLHover      string `yaml:"url_hover"`
	NameColors    bool   `yaml:"name_colors"`
}

type DeathsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	SaveDelay       time.Duration `yaml:"save_delay"`
	SyncWithVanilla bool          `yaml:"sync_with_vanilla"`
}

type CountryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Zero keeps fetched countries forever.
	CacheDuration time.Duration `yaml:"cache_duration"`
	// How long an address that failed on both sources is left alone. Zero retries on every join.
	FailureCacheDuration time.Duration `yaml:"failure_cache_duration"`
	Timeout              time.Duration `yaml:"timeout"`
	PrimaryURL           string        `yaml:"primary_url"`
	FallbackURL          string        `yaml:"fallback_url"`
}

type RenderConfig struct {
	// keep or strip.
	UnknownTags string `yaml:"unknown_tags"`
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		cfg.Normalize()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "failed to read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, eris.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults, then normalizes and validates it.
func Parse(data []byte) (Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, eris.Wrap(err, "failed to decode config")
	}
	cfg := Default()
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		cfg.Warnings = relax(root)
		if err := root.Decode(&cfg); err != nil {
			return Config{}, eris.Wrap(err, "failed to decode config")
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, eris.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func Default() Config {
	opts := render.DefaultOptions()
	return Config{
		Statuses: []StatusDefinition{
			{Key: "afk", Display: "<gray>[AFK]</gray>"},
			{Key: "live", Display: "<red>[LIVE]</red>", Permission: "presence.status.live", NameColor: "<red>"},
		},
		Tablist: TablistConfig{
			Enabled:      true,
			PlayerFormat: opts.PlayerFormat,
			Header:       []string{"<gold><bold>Welcome</bold></gold>", "<gray><online>/<max> online</gray>"},
			Footer:       []string{"<performance> <dark_gray>|</dark_gray> <gray><time></gray>", "<rotating>"},
			Rotating: RotatingConfig{
				Interval: schedule.DefaultRotationInterval,
				Messages: []string{"<gray>Total deaths: <red><total_deaths></red></gray>"},
			},
			Sorting: SortingConfig{Enabled: true, Priority: []string{"live", sortkey.Wildcard, "afk"}},
			Refresh: RefreshConfig{Fast: schedule.DefaultFastInterval, Slow: schedule.DefaultSlowInterval},
		},
		Nametag: NametagConfig{Format: opts.NametagFormat},
		Chat: ChatConfig{
			Enabled:       true,
			Format:        opts.ChatFormat,
			ClickableURLs: opts.ClickableURLs,
			URLStyle:      opts.URLStyle,
			URLHover:      opts.URLHover,
		},
		Deaths: DeathsConfig{Enabled: true, SaveDelay: 30 * time.Second, SyncWithVanilla: true},
		Country: CountryConfig{
			CacheDuration:        24 * time.Hour,
			FailureCacheDuration: time.Minute,
			Timeout:              5 * time.Second,
			PrimaryURL:           "http://ip-api.com/json/%s?fields=status,country,countryCode",
			FallbackURL:          "https://api.iplocation.net/?ip=%s",
		},
		Render: RenderConfig{UnknownTags: render.UnknownKeep.String()},
	}
}

// Normalize lower-cases keys, drops statuses without a key and derives sort priorities. An
// undefined default status is cleared and an unknown tag policy becomes keep, each with a warning.
func (c *Config) Normalize() {
	c.General.DefaultStatus = strings.ToLower(strings.TrimSpace(c.General.DefaultStatus))

	statuses := c.Statuses[:0]
	for _, s := range c.Statuses {
		s.Key = strings.ToLower(strings.TrimSpace(s.Key))
		s.Permission = strings.TrimSpace(s.Permission)
		if s.Key == "" {
			continue
		}
		statuses = append(statuses, s)
	}
	c.Statuses = statuses

	resolver := c.Resolver()
	for i := range c.Statuses {
		c.Statuses[i].SortPriority = resolver.Priority(c.Statuses[i].Key)
	}

	if c.General.DefaultStatus != "" {
		if _, ok := c.Status(c.General.DefaultStatus); !ok {
			c.warnf("general.default_status %q is not defined, no default status applied", c.General.DefaultStatus)
			c.General.DefaultStatus = ""
		}
	}

	c.Render.UnknownTags = strings.ToLower(strings.TrimSpace(c.Render.UnknownTags))
	if c.Render.UnknownTags != render.UnknownKeep.String() && c.Render.UnknownTags != render.UnknownStrip.String() {
		c.warnf("render.unknown_tags %q is not keep or strip, keeping unknown tags", c.Render.UnknownTags)
		c.Render.UnknownTags = render.UnknownKeep.String()
	}
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	seen := make(map[string]string, len(c.Statuses))
	for _, s := range c.Statuses {
		name := sortkey.Normalize(s.Key)
		if other, ok := seen[name]; ok {
			if other == s.Key {
				return eris.Errorf("status %q is defined twice", s.Key)
			}
			return eris.Errorf("statuses %q and %q would share sort group %q", other, s.Key, name)
		}
		seen[name] = s.Key
	}
	if err := schedule.Validate(c.Tablist.Refresh.Fast, c.Tablist.Refresh.Slow); err != nil {
		return eris.Wrap(err, "tablist.refresh")
	}
	if c.Tablist.Rotating.Interval < 0 {
		return eris.New("tablist.rotating.interval must not be negative")
	}
	if c.Deaths.SaveDelay <= 0 {
		return eris.New("deaths.save_delay must be positive")
	}
	if c.Country.CacheDuration < 0 {
		return eris.New("country.cache_duration must not be negative")
	}
	if c.Country.FailureCacheDuration < 0 {
		return eris.New("country.failure_cache_duration must not be negative")
	}
	if c.Country.Timeout <= 0 {
		return eris.New("country.timeout must be positive")
	}
	for name, url := range map[string]string{
		"country.primary_url":  c.Country.PrimaryURL,
		"country.fallback_url": c.Country.FallbackURL,
	} {
		if strings.Count(url, "%s") != 1 {
			return eris.Errorf("%s must contain exactly one %%s for the address", name)
		}
	}
	return nil
}

// Status looks a status up by key, case-insensitively.
func (c *Config) Status(key string) (StatusDefinition, bool) {
	key = strings.ToLower(key)
	for _, s := range c.Statuses {
		if s.Key == key {
			return s, true
		}
	}
	return StatusDefinition{}, false
}

// Resolver builds the sort key resolver. With sorting disabled every status shares one priority
// and players order by status name.
func (c *Config) Resolver() *sortkey.Resolver {
	if !c.Tablist.Sorting.Enabled {
		return sortkey.NewResolver(nil)
	}
	return sortkey.NewResolver(c.Tablist.Sorting.Priority)
}

// RenderOptions maps the templates onto renderer options.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		PlayerFormat:  c.Tablist.PlayerFormat,
		Header:        c.Tablist.Header,
		Footer:        c.Tablist.Footer,
		Rotating:      c.Tablist.Rotating.Messages,
		NametagFormat: c.Nametag.Format,
		ChatFormat:    c.Chat.Format,
		ClickableURLs: c.Chat.ClickableURLs,
		URLStyle:      c.Chat.URLStyle,
		URLHover:      c.Chat.URLHover,
		NameColors:    c.Chat.NameColors,
		Unknown:       render.ParseUnknownPolicy(c.Render.UnknownTags),
	}
}
