package render

import (
	"strings"
)

// Style is the formatting of a span. An empty Color means the surface default.
type Style struct {
	Color         string `json:"color,omitempty"`
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underlined    bool   `json:"underlined,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Obfuscated    bool   `json:"obfuscated,omitempty"`
}

// merge layers over on top of s. Colors replace, decorations accumulate.
func (s Style) merge(over Style) Style {
	if over.Color != "" {
		s.Color = over.Color
	}
	s.Bold = s.Bold || over.Bold
	s.Italic = s.Italic || over.Italic
	s.Underlined = s.Underlined || over.Underlined
	s.Strikethrough = s.Strikethrough || over.Strikethrough
	s.Obfuscated = s.Obfuscated || over.Obfuscated
	return s
}

func (s Style) isZero() bool {
	return s == Style{}
}

// Span is a run of text sharing one style, click target and hover text.
type Span struct {
	Text string `json:"text"`
	Style
	Link  string     `json:"link,omitempty"`
	Hover StyledText `json:"hover,omitempty"`
}

// StyledText is the renderer's output, an ordered list of spans.
type StyledText []Span

// Plain returns the text without any formatting.
func (t StyledText) Plain() string {
	var b strings.Builder
	for _, s := range t {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Legacy serializes the text with section-sign formatting codes for surfaces that do not accept
// structured text. Links and hovers are dropped.
func (t StyledText) Legacy() string {
	var b strings.Builder
	var prev Style
	for _, s := range t {
		if s.Style != prev {
			writeLegacyStyle(&b, s.Style, !prev.isZero())
			prev = s.Style
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func writeLegacyStyle(b *strings.Builder, s Style, reset bool) {
	switch {
	case strings.HasPrefix(s.Color, "#"):
		b.WriteString("§x")
		for _, r := range s.Color[1:] {
			b.WriteRune('§')
			b.WriteRune(r)
		}
	case s.Color != "":
		b.WriteRune('§')
		b.WriteByte(legacyCodes[s.Color])
	case reset:
		b.WriteString("§r")
	}
	if s.Obfuscated {
		b.WriteString("§k")
	}
	if s.Bold {
		b.WriteString("§l")
	}
	if s.Strikethrough {
		b.WriteString("§m")
	}
	if s.Underlined {
		b.WriteString("§n")
	}
	if s.Italic {
		b.WriteString("§o")
	}
}

// appendSpan adds s to t, merging it into the last span when nothing but the text differs.
func appendSpan(t StyledText, s Span) StyledText {
	if s.Text == "" {
		return t
	}
	if n := len(t); n > 0 {
		last := &t[n-1]
		if last.Style == s.Style && last.Link == s.Link && last.Hover == nil && s.Hover == nil {
			last.Text += s.Text
			return t
		}
	}
	return append(t, s)
}

// Plain wraps unformatted text.
func Plain(text string) StyledText {
	return appendSpan(nil, Span{Text: text})
}

// Join concatenates parts with sep between them.
func Join(parts []StyledText, sep string) StyledText {
	var out StyledText
	for i, part := range parts {
		if i > 0 {
			out = appendSpan(out, Span{Text: sep})
		}
		for _, s := range part {
			out = appendSpan(out, s)
		}
	}
	return out
}

// -------------------------------------------------------------------------------------------------
// Colors
// -------------------------------------------------------------------------------------------------

//nolint:gochecknoglobals // constant table
var legacyCodes = map[string]byte{
	"black":        '0',
	"dark_blue":    '1',
	"dark_green":   '2',
	"dark_aqua":    '3',
	"dark_red":     '4',
	"dark_purple":  '5',
	"gold":         '6',
	"gray":         '7',
	"dark_gray":    '8',
	"blue":         '9',
	"green":        'a',
	"aqua":         'b',
	"red":          'c',
	"light_purple": 'd',
	"yellow":       'e',
	"white":        'f',
}

func isNamedColor(name string) bool {
	_, ok := legacyCodes[name]
	return ok
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
