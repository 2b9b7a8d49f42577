package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertLegacy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "&cHi", want: "<red>Hi"},
		{in: "&CHi", want: "<red>Hi"},
		{in: "§lBold", want: "<bold>Bold"},
		{in: "&#FF00aa!", want: "<#ff00aa>!"},
		{in: "&x&F&F&0&0&a&a!", want: "<#ff00aa>!"},
		{in: "§x§f§f§0§0§a§a!", want: "<#ff00aa>!"},
		{in: "&6&lGold &rplain", want: "<gold><bold>Gold <reset>plain"},
		{in: "fish & chips", want: "fish & chips"},
		{in: "&z stays", want: "&z stays"},
		{in: "no codes", want: "no codes"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ConvertLegacy(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	red := Style{Color: "red"}
	tests := []struct {
		name   string
		in     string
		tags   Tags
		policy UnknownPolicy
		want   StyledText
	}{
		{
			name: "color and close",
			in:   "<red>Hi</red> there",
			want: StyledText{{Text: "Hi", Style: red}, {Text: " there"}},
		},
		{
			name: "closing pops everything opened after it",
			in:   "<bold><red>A</bold>B",
			want: StyledText{{Text: "A", Style: Style{Color: "red", Bold: true}}, {Text: "B"}},
		},
		{
			name: "aliases",
			in:   "<b><i><u><st><obf>x",
			want: StyledText{{Text: "x", Style: Style{
				Bold: true, Italic: true, Underlined: true, Strikethrough: true, Obfuscated: true,
			}}},
		},
		{
			name: "hex color",
			in:   "<#FF0000>x",
			want: StyledText{{Text: "x", Style: Style{Color: "#ff0000"}}},
		},
		{
			name: "color argument",
			in:   "<color:grey>x",
			want: StyledText{{Text: "x", Style: Style{Color: "gray"}}},
		},
		{
			name: "reset",
			in:   "<red><bold>a<reset>b",
			want: StyledText{{Text: "a", Style: Style{Color: "red", Bold: true}}, {Text: "b"}},
		},
		{
			name: "escape",
			in:   `\<red>x`,
			want: StyledText{{Text: "<red>x"}},
		},
		{
			name: "malformed tags are literal",
			in:   "a < b > c <3",
			want: StyledText{{Text: "a < b > c <3"}},
		},
		{
			name: "click",
			in:   "<click:open_url:'https://example.com'>go</click>!",
			want: StyledText{{Text: "go", Link: "https://example.com"}, {Text: "!"}},
		},
		{
			name:   "unknown kept",
			in:     "<foo>x</foo>",
			policy: UnknownKeep,
			want:   StyledText{{Text: "<foo>x</foo>"}},
		},
		{
			name:   "unknown stripped",
			in:     "<foo>x</foo>",
			policy: UnknownStrip,
			want:   StyledText{{Text: "x"}},
		},
		{
			name:   "unmatched known closing tag is dropped",
			in:     "x</red>",
			policy: UnknownKeep,
			want:   StyledText{{Text: "x"}},
		},
		{
			name: "unparsed placeholder is verbatim",
			in:   "<red><player>",
			tags: Tags{"player": Unparsed("<bold>Steve")},
			want: StyledText{{Text: "<bold>Steve", Style: red}},
		},
		{
			name: "component placeholder layers over the surrounding style",
			in:   "<gray><s></gray>",
			tags: Tags{"s": Component(StyledText{{Text: "X", Style: Style{Bold: true}}})},
			want: StyledText{{Text: "X", Style: Style{Color: "gray", Bold: true}}},
		},
		{
			name: "newline",
			in:   "a<br>b",
			want: StyledText{{Text: "a\nb"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Parse(tt.in, tt.tags, tt.policy))
		})
	}
}

func TestParse_NeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "<", ">", "</>", "<>", "<<<>>>", "<click:>", "<click:open_url:>", "<color:>",
		"\\", "\\<", "</reset>", "<#12>", "§", "&", "&x&f"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			Parse(ConvertLegacy(in), nil, UnknownStrip)
			Parse(ConvertLegacy(in), nil, UnknownKeep)
		}, in)
	}
}

func TestStyledText_Legacy(t *testing.T) {
	t.Parallel()

	text := StyledText{
		{Text: "A", Style: Style{Color: "red", Bold: true}},
		{Text: "B"},
		{Text: "C", Style: Style{Color: "#ff00aa"}},
	}
	assert.Equal(t, "§c§lA§rB§x§f§f§0§0§a§aC", text.Legacy())
	assert.Equal(t, "ABC", text.Plain())
}

func TestFormatLargeNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1k"},
		{1500, "1.5k"},
		{12_345, "12.3k"},
		{100_000, "100k"},
		{150_000, "150k"},
		{999_999, "1m"},
		{1_000_000, "1m"},
		{1_260_000, "1.3m"},
		{2_340_000_000, "2.3b"},
		{999_999_999_999, "1000b"},
		{-5, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatLargeNumber(tt.in), "%d", tt.in)
	}
}

func TestPerformanceMarkup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<green>20.00 TPS", performanceMarkup(21.3))
	assert.Equal(t, "<green>19.50 TPS", performanceMarkup(19.5))
	assert.Equal(t, "<yellow>18.00 TPS", performanceMarkup(18))
	assert.Equal(t, "<gold>15.00 TPS", performanceMarkup(15))
	assert.Equal(t, "<red>14.99 TPS", performanceMarkup(14.99))
}
