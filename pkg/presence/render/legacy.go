package render

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// legacyPattern matches, in order of precedence, &#RRGGBB, &x&R&R&G&G&B&B and single-character
// codes. Both & and § introduce a code.
var legacyPattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once
	`[&§](?:#[0-9a-fA-F]{6}|[xX](?:[&§][0-9a-fA-F]){6}|[0-9a-fA-Fk-oK-OrR])`)

//nolint:gochecknoglobals // constant table
var legacyTags = map[byte]string{
	'0': "black", '1': "dark_blue", '2': "dark_green", '3': "dark_aqua",
	'4': "dark_red", '5': "dark_purple", '6': "gold", '7': "gray",
	'8': "dark_gray", '9': "blue", 'a': "green", 'b': "aqua",
	'c': "red", 'd': "light_purple", 'e': "yellow", 'f': "white",
	'k': "obfuscated", 'l': "bold", 'm': "strikethrough", 'n': "underlined",
	'o': "italic", 'r': "reset",
}

// ConvertLegacy rewrites legacy color codes into native tags, e.g. "&cHi" becomes "<red>Hi".
func ConvertLegacy(s string) string {
	if !strings.ContainsAny(s, "&§") {
		return s
	}
	return legacyPattern.ReplaceAllStringFunc(s, func(m string) string {
		_, size := utf8.DecodeRuneInString(m)
		body := m[size:]
		switch body[0] {
		case '#':
			return "<#" + strings.ToLower(body[1:]) + ">"
		case 'x', 'X':
			hex := strings.NewReplacer("&", "", "§", "").Replace(body[1:])
			return "<#" + strings.ToLower(hex) + ">"
		default:
			c := body[0]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			return "<" + legacyTags[c] + ">"
		}
	})
}
