package render

import (
	"strings"
	"unicode"
)

// UnknownPolicy decides what happens to tags and tokens nothing resolves.
type UnknownPolicy uint8

const (
	// UnknownKeep leaves the tag or token in the output as literal text.
	UnknownKeep UnknownPolicy = iota
	// UnknownStrip removes it.
	UnknownStrip
)

// ParseUnknownPolicy accepts "keep" and "strip". Anything else is UnknownKeep.
func ParseUnknownPolicy(s string) UnknownPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "strip") {
		return UnknownStrip
	}
	return UnknownKeep
}

func (p UnknownPolicy) String() string {
	if p == UnknownStrip {
		return "strip"
	}
	return "keep"
}

// Tag is the value of a named placeholder.
type Tag struct {
	text   string
	styled StyledText
	parsed bool
}

// Unparsed inserts text verbatim in the surrounding style. Markup inside it is not interpreted.
func Unparsed(text string) Tag {
	return Tag{text: text}
}

// Component inserts already styled text, layered over the surrounding style.
func Component(t StyledText) Tag {
	return Tag{styled: t, parsed: true}
}

// Tags maps lower-case placeholder names to their values.
type Tags map[string]Tag

//nolint:gochecknoglobals // constant table
var aliases = map[string]string{
	"b":         "bold",
	"i":         "italic",
	"em":        "italic",
	"u":         "underlined",
	"st":        "strikethrough",
	"obf":       "obfuscated",
	"c":         "color",
	"colour":    "color",
	"grey":      "gray",
	"dark_grey": "dark_gray",
	"br":        "newline",
}

func canonical(name string) string {
	name = strings.ToLower(name)
	if alias, ok := aliases[name]; ok {
		return alias
	}
	return name
}

func decoration(name string) (Style, bool) {
	switch name {
	case "bold":
		return Style{Bold: true}, true
	case "italic":
		return Style{Italic: true}, true
	case "underlined":
		return Style{Underlined: true}, true
	case "strikethrough":
		return Style{Strikethrough: true}, true
	case "obfuscated":
		return Style{Obfuscated: true}, true
	default:
		return Style{}, false
	}
}

// parseColor accepts a named color or #RRGGBB and returns its stored form.
func parseColor(s string) (string, bool) {
	s = strings.ToLower(s)
	if alias, ok := aliases[s]; ok {
		s = alias
	}
	if isNamedColor(s) || isHexColor(s) {
		return s, true
	}
	return "", false
}

type frame struct {
	name  string
	style Style
	link  string
}

type parser struct {
	tags    Tags
	unknown UnknownPolicy
	stack   []frame
	out     StyledText
}

// Parse turns native markup into styled text, resolving named placeholders from tags. It never
// fails: malformed tags are literal text and unknown ones follow policy.
func Parse(s string, tags Tags, policy UnknownPolicy) StyledText {
	p := &parser{tags: tags, unknown: policy}
	p.parse(s)
	return p.out
}

// parseOpen parses s and also returns the style still open at its end, so markup such as "<gold>"
// can style text that follows it.
func parseOpen(s string, policy UnknownPolicy) (StyledText, Style) {
	p := &parser{unknown: policy}
	p.parse(s)
	style, _ := p.current()
	return p.out, style
}

func (p *parser) parse(s string) {
	var text strings.Builder
	flush := func() {
		p.emit(text.String())
		text.Reset()
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == '<' {
			text.WriteByte('<')
			i += 2
			continue
		}
		if c != '<' {
			text.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], '>')
		if end < 0 {
			text.WriteString(s[i:])
			break
		}
		raw := s[i+1 : i+1+end]
		if !validTag(raw) {
			text.WriteByte('<')
			i++
			continue
		}
		flush()
		if !p.apply(raw) && p.unknown == UnknownKeep {
			p.emit("<" + raw + ">")
		}
		i += end + 2
	}
	flush()
}

func validTag(raw string) bool {
	if raw == "" || raw == "/" {
		return false
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || r == '<' {
			return false
		}
	}
	return true
}

func (p *parser) current() (Style, string) {
	var style Style
	var link string
	for _, f := range p.stack {
		style = style.merge(f.style)
		if f.link != "" {
			link = f.link
		}
	}
	return style, link
}

func (p *parser) emit(text string) {
	if text == "" {
		return
	}
	style, link := p.current()
	p.out = appendSpan(p.out, Span{Text: text, Style: style, Link: link})
}

func (p *parser) insert(t StyledText) {
	style, link := p.current()
	for _, s := range t {
		s.Style = style.merge(s.Style)
		if s.Link == "" {
			s.Link = link
		}
		p.out = appendSpan(p.out, s)
	}
}

func (p *parser) push(f frame) {
	p.stack = append(p.stack, f)
}

// apply handles one tag and reports whether it was recognized.
func (p *parser) apply(raw string) bool {
	if closing, ok := strings.CutPrefix(raw, "/"); ok {
		return p.close(closing)
	}

	name, arg, hasArg := strings.Cut(raw, ":")
	name = canonical(name)

	if style, ok := decoration(name); ok && !hasArg {
		p.push(frame{name: name, style: style})
		return true
	}
	if color, ok := parseColor(name); ok && !hasArg {
		p.push(frame{name: color, style: Style{Color: color}})
		return true
	}

	switch name {
	case "reset":
		p.stack = p.stack[:0]
		return true
	case "newline":
		p.emit("\n")
		return true
	case "color":
		color, ok := parseColor(arg)
		if !ok {
			return false
		}
		p.push(frame{name: name, style: Style{Color: color}})
		return true
	case "click":
		action, value, ok := strings.Cut(arg, ":")
		if !ok || !strings.EqualFold(action, "open_url") {
			return false
		}
		value = strings.Trim(value, `'"`)
		if value == "" {
			return false
		}
		p.push(frame{name: name, link: value})
		return true
	}

	if tag, ok := p.tags[name]; ok && !hasArg {
		if tag.parsed {
			p.insert(tag.styled)
		} else {
			p.emit(tag.text)
		}
		return true
	}
	return false
}

// close pops the innermost frame opened by name and everything above it. Closing tags of known
// names with nothing to close are dropped.
func (p *parser) close(raw string) bool {
	name, _, _ := strings.Cut(raw, ":")
	name = canonical(name)
	if color, ok := parseColor(name); ok {
		name = color
	}
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].name == name {
			p.stack = p.stack[:i]
			return true
		}
	}
	return p.known(name)
}

func (p *parser) known(name string) bool {
	if _, ok := decoration(name); ok {
		return true
	}
	if _, ok := parseColor(name); ok {
		return true
	}
	switch name {
	case "color", "click", "reset", "newline":
		return true
	}
	_, ok := p.tags[name]
	return ok
}
