package render

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Provider resolves third-party %token% placeholders. ok is false when the provider does not
// know the token.
type Provider interface {
	Resolve(id uuid.UUID, token string) (value string, ok bool)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(id uuid.UUID, token string) (string, bool)

func (f ProviderFunc) Resolve(id uuid.UUID, token string) (string, bool) {
	return f(id, token)
}

var tokenPattern = regexp.MustCompile(`%([A-Za-z0-9_.:\-]+)%`) //nolint:gochecknoglobals // compiled once

// substituteTokens replaces %token% occurrences with the first provider answer. It only scans
// templates that contain a percent sign. A provider that panics counts as declining.
func (r *Renderer) substituteTokens(s string, id uuid.UUID) string {
	if len(r.providers) == 0 && r.unknown == UnknownKeep {
		return s
	}
	if !strings.Contains(s, "%") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(m string) string {
		token := m[1 : len(m)-1]
		for i, p := range r.providers {
			if value, ok := r.resolveToken(i, p, id, token); ok {
				return value
			}
		}
		if r.unknown == UnknownStrip {
			return ""
		}
		return m
	})
}

func (r *Renderer) resolveToken(i int, p Provider, id uuid.UUID, token string) (value string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.limiter.Error("provider_panic", eris.Errorf("%v", rec)).
				Int("provider", i).
				Str("token", token).
				Msg("placeholder provider panicked")
			value, ok = "", false
		}
	}()
	return p.Resolve(id, token)
}
