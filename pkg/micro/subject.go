package micro

import "strings"

// Endpoint joins subject tokens with the NATS separator, skipping empty tokens.
func Endpoint(prefix string, tokens ...string) string {
	parts := make([]string, 0, len(tokens)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, token := range tokens {
		if token != "" {
			parts = append(parts, token)
		}
	}
	return strings.Join(parts, ".")
}
