package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_OncePerKind(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	limiter := NewLimiter(zerolog.New(&buf), time.Hour)

	errSurface := errors.New("surface unavailable")
	for range 5 {
		limiter.Error("create_group", errSurface).Msg("failed to create group")
	}
	limiter.Error("add_member", errSurface).Msg("failed to add member")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"kind":"create_group"`)
	assert.Contains(t, lines[1], `"kind":"add_member"`)
}

func TestLimiter_SameLoggerPerKind(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	limiter := NewLimiter(zerolog.New(&buf), time.Hour)

	limiter.Logger("fetch").Warn().Msg("first")
	limiter.Logger("fetch").Warn().Msg("second")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "first")
}
