// Package render turns display templates into styled text.
//
// A template goes through three stages: third-party %token% substitution, legacy color code
// conversion and native markup parsing, during which named placeholders such as <player> or
// <total_deaths> are resolved. Rendering never fails.
package render

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/argus-labs/presence/pkg/presence/environment"
	"github.com/argus-labs/presence/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PreviewMessage is the chat message shown by a status preview.
const PreviewMessage = "This is a preview message!"

// PlayerView is what a template can see of one player.
type PlayerView struct {
	ID            uuid.UUID
	Name          string
	StatusDisplay string // display template of the player's status, empty for none
	NameColor     string // markup prefixed to the name when name colors are on
	HasDeaths     bool   // false renders the death placeholders empty
	Deaths        int64
	Country       string
	CountryCode   string
}

type Options struct {
	PlayerFormat  string
	Header        []string
	Footer        []string
	Rotating      []string
	NametagFormat string
	ChatFormat    string
	ClickableURLs bool
	URLStyle      string
	URLHover      string
	NameColors    bool
	Unknown       UnknownPolicy
}

func DefaultOptions() Options {
	return Options{
		PlayerFormat:  "<status> <gray><player></gray>",
		NametagFormat: "<status> ",
		ChatFormat:    "<status> <gray><player></gray> <dark_gray>»</dark_gray> <white><message></white>",
		ClickableURLs: true,
		URLStyle:      "<aqua><u>",
		URLHover:      "<gray>Click to open URL",
		Unknown:       UnknownKeep,
	}
}

// Renderer is immutable. A configuration change builds a new one.
type Renderer struct {
	opts      Options
	unknown   UnknownPolicy
	providers []Provider
	limiter   *telemetry.Limiter
	urlHover  StyledText
}

func New(opts Options, providers []Provider, log zerolog.Logger) *Renderer {
	r := &Renderer{
		opts:      opts,
		unknown:   opts.Unknown,
		providers: providers,
		limiter:   telemetry.NewLimiter(log, time.Minute),
	}
	if opts.URLHover != "" {
		r.urlHover = Parse(ConvertLegacy(opts.URLHover), nil, r.unknown)
	}
	return r
}

// Render renders template for p against env with the full placeholder set.
func (r *Renderer) Render(template string, p PlayerView, env environment.Snapshot) StyledText {
	return r.render(template, p, env, nil, false)
}

// render runs the pipeline. nested is set while rendering the rotating message so that its own
// <rotating> renders empty.
func (r *Renderer) render(
	template string, p PlayerView, env environment.Snapshot, extra Tags, nested bool,
) StyledText {
	if template == "" {
		return nil
	}
	s := r.substituteTokens(template, p.ID)
	s = ConvertLegacy(s)

	tags := r.tags(p, env, nested)
	for name, tag := range extra {
		tags[name] = tag
	}
	return Parse(s, tags, r.unknown)
}

func (r *Renderer) RosterLine(p PlayerView, env environment.Snapshot) StyledText {
	return r.Render(r.opts.PlayerFormat, p, env)
}

func (r *Renderer) NameLabel(p PlayerView, env environment.Snapshot) StyledText {
	return r.Render(r.opts.NametagFormat, p, env)
}

// HeaderFooter renders every configured header and footer line and joins them with newlines.
func (r *Renderer) HeaderFooter(p PlayerView, env environment.Snapshot) (header, footer StyledText) {
	return r.lines(r.opts.Header, p, env), r.lines(r.opts.Footer, p, env)
}

func (r *Renderer) lines(lines []string, p PlayerView, env environment.Snapshot) StyledText {
	parts := make([]StyledText, len(lines))
	for i, line := range lines {
		parts[i] = r.Render(line, p, env)
	}
	return Join(parts, "\n")
}

// Chat renders a chat line. The message is inserted as plain text with URLs made clickable.
func (r *Renderer) Chat(p PlayerView, env environment.Snapshot, message string) StyledText {
	return r.render(r.opts.ChatFormat, p, env, Tags{"message": Component(r.linkify(message))}, false)
}

// Preview renders a status display on its own and inside a sample chat line.
func (r *Renderer) Preview(display string, p PlayerView, env environment.Snapshot) (status, chat StyledText) {
	p.StatusDisplay = display
	return r.statusText(display), r.Chat(p, env, PreviewMessage)
}

func (r *Renderer) statusText(display string) StyledText {
	if display == "" {
		return nil
	}
	return Parse(ConvertLegacy(display), nil, r.unknown)
}

// -------------------------------------------------------------------------------------------------
// Placeholders
// -------------------------------------------------------------------------------------------------

// Regions always present, even when nobody is in them.
var defaultRegions = []string{"overworld", "nether", "end"} //nolint:gochecknoglobals // constant table

func (r *Renderer) tags(p PlayerView, env environment.Snapshot, nested bool) Tags {
	tags := Tags{
		"status":           Component(r.statusText(p.StatusDisplay)),
		"player":           r.playerTag(p),
		"deaths":           Unparsed(""),
		"deaths_formatted": Unparsed(""),
		"country":          Unparsed(p.Country),
		"countrycode":      Unparsed(p.CountryCode),
		"online":           Unparsed(strconv.Itoa(env.TotalOnline)),
		"max":              Unparsed(strconv.Itoa(env.MaxCapacity)),
		"time":             Unparsed(env.TimeLabel),
		"total_deaths":     Unparsed(FormatLargeNumber(env.TotalDeaths)),
		"total_deaths_raw": Unparsed(strconv.FormatInt(env.TotalDeaths, 10)),
		"tps":              Unparsed(""),
		"tps_5m":           Unparsed(""),
		"tps_15m":          Unparsed(""),
		"performance":      Unparsed(""),
		"mspt":             Unparsed(""),
		"rotating":         Unparsed(""),
	}

	if p.HasDeaths {
		tags["deaths"] = Unparsed(strconv.FormatInt(p.Deaths, 10))
		tags["deaths_formatted"] = Component(Parse(deathsFormatted(p.Deaths), nil, UnknownKeep))
	}

	perf := env.Performance
	if perf.HasTPS {
		tags["tps"] = Unparsed(formatTPS(perf.TPS[0]))
		tags["tps_5m"] = Unparsed(formatTPS(perf.TPS[1]))
		tags["tps_15m"] = Unparsed(formatTPS(perf.TPS[2]))
		tags["performance"] = Component(Parse(performanceMarkup(perf.TPS[0]), nil, UnknownKeep))
	}
	if perf.HasMSPT {
		tags["mspt"] = Unparsed(formatMSPT(perf.MSPT))
	}

	for _, region := range defaultRegions {
		tags[region] = Unparsed(strconv.Itoa(env.Population(region)))
	}
	env.Regions(func(region string, count int) {
		name := strings.ToLower(region)
		if _, taken := tags[name]; taken && !isDefaultRegion(name) {
			return
		}
		if !validTag(name) || strings.ContainsAny(name, ":/>") {
			return
		}
		tags[name] = Unparsed(strconv.Itoa(count))
	})

	if !nested && len(r.opts.Rotating) > 0 {
		cursor := env.RotatingCursor % len(r.opts.Rotating)
		if cursor < 0 {
			cursor += len(r.opts.Rotating)
		}
		tags["rotating"] = Component(r.render(r.opts.Rotating[cursor], p, env, nil, true))
	}
	return tags
}

func isDefaultRegion(name string) bool {
	for _, region := range defaultRegions {
		if region == name {
			return true
		}
	}
	return false
}

func (r *Renderer) playerTag(p PlayerView) Tag {
	if !r.opts.NameColors || p.NameColor == "" {
		return Unparsed(p.Name)
	}
	prefix, style := parseOpen(ConvertLegacy(p.NameColor), r.unknown)
	return Component(appendSpan(prefix, Span{Text: p.Name, Style: style}))
}

// -------------------------------------------------------------------------------------------------
// Chat links
// -------------------------------------------------------------------------------------------------

//nolint:gochecknoglobals // compiled once
var urlPattern = regexp.MustCompile(`(?i)https?://[\w\-._~:/?#\[\]@!$&'()*+,;=%]+`)

// linkify styles every URL in message as a clickable span.
func (r *Renderer) linkify(message string) StyledText {
	if !r.opts.ClickableURLs {
		return Plain(message)
	}
	var out StyledText
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(message, -1) {
		out = appendSpan(out, Span{Text: message[last:loc[0]]})
		url := message[loc[0]:loc[1]]

		style := Style{Color: "aqua"}
		if r.opts.URLStyle != "" {
			_, style = parseOpen(ConvertLegacy(r.opts.URLStyle), r.unknown)
		}
		out = appendSpan(out, Span{Text: url, Style: style, Link: url, Hover: r.urlHover})
		last = loc[1]
	}
	return appendSpan(out, Span{Text: message[last:]})
}
