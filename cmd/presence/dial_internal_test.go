package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDial(t *testing.T) {
	t.Parallel()

	errDown := errors.New("connection refused")
	policy := dialPolicy{attempts: 3, delay: time.Millisecond}

	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, wantCalls: 1},
		{name: "after retries", failures: 2, wantCalls: 3},
		{name: "gives up", failures: 5, wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			got, err := dial(context.Background(), policy, zerolog.Nop(), "nats", func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errDown
				}
				return "connected", nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errDown)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "connected", got)
		})
	}
}

func TestDial_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := dial(ctx, dialPolicy{attempts: 10, delay: time.Hour}, zerolog.Nop(), "redis", func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("not yet")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
