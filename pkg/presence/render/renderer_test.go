package render_test

import (
	"testing"
	"time"

	"github.com/argus-labs/presence/pkg/presence/environment"
	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T, mutate func(*render.Options), providers ...render.Provider) *render.Renderer {
	t.Helper()
	opts := render.DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return render.New(opts, providers, zerolog.New(zerolog.NewTestWriter(t)))
}

func steve() render.PlayerView {
	return render.PlayerView{
		ID:            uuid.MustParse("6f1d3f7a-8a9c-4c55-9f87-3c1a4f1c2b10"),
		Name:          "Steve",
		StatusDisplay: "<gold>[Builder]",
		HasDeaths:     true,
		Deaths:        2,
	}
}

func snapshot() environment.Snapshot {
	return environment.Builder{
		Time:        time.Date(2026, 5, 4, 21, 7, 0, 0, time.UTC),
		Population:  map[string]int{"overworld": 4, "nether": 1, "deep_dark": 2},
		TotalOnline: 5,
		MaxCapacity: 100,
		Performance: environment.Sample{TPS: [3]float64{19.87, 19.2, 18.01}, HasTPS: true, MSPT: 12.34, HasMSPT: true},
		TotalDeaths: 1_500,
	}.Build()
}

func TestRosterLine(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	line := r.RosterLine(steve(), snapshot())
	assert.Equal(t, "[Builder] Steve", line.Plain())
	assert.Equal(t, render.StyledText{
		{Text: "[Builder]", Style: render.Style{Color: "gold"}},
		{Text: " "},
		{Text: "Steve", Style: render.Style{Color: "gray"}},
	}, line)
}

func TestRender_Placeholders(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	tests := []struct {
		template string
		want     string
	}{
		{template: "<deaths>", want: "2"},
		{template: "<deaths_formatted>", want: "[☠ 2]"},
		{template: "<online>/<max>", want: "5/100"},
		{template: "<tps> <tps_5m> <tps_15m>", want: "19.87 19.20 18.01"},
		{template: "<performance>", want: "19.87 TPS"},
		{template: "<mspt>", want: "12.3"},
		{template: "<time>", want: "21:07"},
		{template: "<overworld> <nether> <end> <deep_dark>", want: "4 1 0 2"},
		{template: "<total_deaths> (<total_deaths_raw>)", want: "1.5k (1500)"},
		{template: "[<country>|<countrycode>]", want: "[|]"},
		{template: "<rotating>", want: ""},
		{template: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.Render(tt.template, steve(), snapshot()).Plain())
		})
	}
}

func TestRender_MissingMetricsRenderEmpty(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	env := environment.Builder{Time: time.Now()}.Build()
	assert.Equal(t, "[||]", r.Render("[<tps>|<performance>|<mspt>]", steve(), env).Plain())
}

func TestRender_DeathsHiddenRenderEmpty(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	player := steve()
	player.HasDeaths = false
	assert.Equal(t, "[|]", r.Render("[<deaths>|<deaths_formatted>]", player, snapshot()).Plain())
}

func TestRender_PerformanceColor(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	out := r.Render("<performance>", steve(), snapshot())
	require.NotEmpty(t, out)
	assert.Equal(t, "green", out[0].Color)
}

func TestRender_Rotating(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, func(o *render.Options) {
		o.Rotating = []string{"A<rotating>B <player>", "&cC"}
	})
	player, env := steve(), snapshot()

	// The rotating message renders its own <rotating> empty.
	assert.Equal(t, "AB Steve", r.Render("<rotating>", player, env).Plain())

	env = environment.Builder{RotatingCursor: 3}.Build()
	out := r.Render("<rotating>", player, env)
	assert.Equal(t, render.StyledText{{Text: "C", Style: render.Style{Color: "red"}}}, out)
}

func TestRender_UnknownPolicy(t *testing.T) {
	t.Parallel()

	keep := newRenderer(t, nil)
	strip := newRenderer(t, func(o *render.Options) { o.Unknown = render.UnknownStrip })

	template := "<foo><player> %nope% <deaths>"
	assert.Equal(t, "<foo>Steve %nope% 2", keep.Render(template, steve(), snapshot()).Plain())
	// Siblings of the unknown tag and token still resolve.
	assert.Equal(t, "Steve  2", strip.Render(template, steve(), snapshot()).Plain())
}

func TestRender_Providers(t *testing.T) {
	t.Parallel()

	panicking := render.ProviderFunc(func(uuid.UUID, string) (string, bool) {
		panic("boom")
	})
	declining := render.ProviderFunc(func(uuid.UUID, string) (string, bool) {
		return "", false
	})
	var seen uuid.UUID
	answering := render.ProviderFunc(func(id uuid.UUID, token string) (string, bool) {
		seen = id
		if token == "rank_name" {
			return "&aVIP", true
		}
		return "", false
	})

	r := newRenderer(t, nil, panicking, declining, answering)
	out := r.Render("%rank_name% %other%", steve(), snapshot())
	assert.Equal(t, "VIP %other%", out.Plain())
	assert.Equal(t, "green", out[0].Color, "legacy codes from providers are converted")
	assert.Equal(t, steve().ID, seen)
}

func TestHeaderFooter(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, func(o *render.Options) {
		o.Header = []string{"<gold>Welcome <player>", "<online> online"}
		o.Footer = []string{"<performance>"}
	})
	header, footer := r.HeaderFooter(steve(), snapshot())
	assert.Equal(t, "Welcome Steve\n5 online", header.Plain())
	assert.Equal(t, "19.87 TPS", footer.Plain())
}

func TestNameLabel(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	assert.Equal(t, "[Builder] ", r.NameLabel(steve(), snapshot()).Plain())

	noStatus := steve()
	noStatus.StatusDisplay = ""
	assert.Equal(t, " ", r.NameLabel(noStatus, snapshot()).Plain())
}

func TestChat(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	out := r.Chat(steve(), snapshot(), "<red>see https://example.com/a?b=1 ok")
	assert.Equal(t, "[Builder] Steve » <red>see https://example.com/a?b=1 ok", out.Plain())

	var link *render.Span
	for i := range out {
		if out[i].Link != "" {
			link = &out[i]
		}
	}
	require.NotNil(t, link)
	assert.Equal(t, "https://example.com/a?b=1", link.Text)
	assert.Equal(t, "https://example.com/a?b=1", link.Link)
	assert.Equal(t, render.Style{Color: "aqua", Underlined: true}, link.Style)
	assert.Equal(t, "Click to open URL", link.Hover.Plain())
}

func TestChat_URLsDisabled(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, func(o *render.Options) { o.ClickableURLs = false })
	for _, s := range r.Chat(steve(), snapshot(), "https://example.com") {
		assert.Empty(t, s.Link)
	}
}

func TestNameColors(t *testing.T) {
	t.Parallel()

	p := steve()
	p.NameColor = "&b"

	off := newRenderer(t, nil)
	on := newRenderer(t, func(o *render.Options) { o.NameColors = true })

	assert.Equal(t, "gray", off.Render("<gray><player>", p, snapshot())[0].Color)
	assert.Equal(t, render.StyledText{{Text: "Steve", Style: render.Style{Color: "aqua"}}},
		on.Render("<gray><player>", p, snapshot()))
}

func TestPreview(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, nil)
	p := steve()
	p.StatusDisplay = ""
	status, chat := r.Preview("&d[VIP]", p, snapshot())
	assert.Equal(t, render.StyledText{{Text: "[VIP]", Style: render.Style{Color: "light_purple"}}}, status)
	assert.Equal(t, "[VIP] Steve » "+render.PreviewMessage, chat.Plain())
}
