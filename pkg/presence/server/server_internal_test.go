package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/argus-labs/presence/pkg/presence"
	"github.com/argus-labs/presence/pkg/presence/config"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/argus-labs/presence/pkg/storage"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	srv    *Server
	engine *presence.Engine
	roster *host.Roster
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.General.DefaultStatus = "afk"
	roster := host.NewRoster(20)
	engine, err := presence.New(cfg, roster, host.NewMemorySurface(), storage.NewMemoryStore())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	require.Eventually(t, engine.Running, 5*time.Second, time.Millisecond)

	srv, err := New(engine, host.NewFeed(roster, engine), opts...)
	require.NoError(t, err)
	return &testServer{t: t, srv: srv, engine: engine, roster: roster}
}

// do sends a request and decodes a JSON reply into out when out is non-nil.
func (s *testServer) do(method, path string, body any, out any) int {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		bz, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(bz)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	res, err := s.srv.app.Test(req, -1)
	require.NoError(s.t, err)
	defer res.Body.Close()

	if out != nil {
		bz, err := io.ReadAll(res.Body)
		require.NoError(s.t, err)
		require.NoError(s.t, json.Unmarshal(bz, out), string(bz))
	}
	return res.StatusCode
}

func (s *testServer) join(name string, permissions ...string) uuid.UUID {
	s.t.Helper()
	id := uuid.New()
	code := s.do(http.MethodPost, "/events/join", host.JoinEvent{ID: id, Name: name, Permissions: permissions}, nil)
	require.Equal(s.t, http.StatusAccepted, code)
	return id
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	var res GetHealthResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", nil, &res))
	assert.True(t, res.IsServerRunning)
	assert.True(t, res.IsEngineRunning)
	assert.True(t, res.IsRefreshing)
}

func TestServer_PlayerLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	id := s.join("Steve")
	path := "/players/" + id.String()

	var player GetPlayerResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, &player))
	assert.Equal(t, GetPlayerResponse{ID: id, Status: "afk"}, player)

	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/events/death", host.DeathEvent{ID: id}, nil))

	var deaths PostDeathsResponse
	require.Equal(t, http.StatusOK,
		s.do(http.MethodPost, path+"/deaths", PostDeathsRequest{Mode: presence.DeathsAdd, Amount: 4}, &deaths))
	assert.Equal(t, int64(5), deaths.Deaths)

	var stats GetStatsResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/stats", nil, &stats))
	assert.Equal(t, int64(5), stats.TotalDeaths)

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path+"/status", nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, &player))
	assert.Empty(t, player.Status)
	assert.Nil(t, player.Country)

	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/events/quit", host.QuitEvent{ID: id}, nil))
	_, online := s.roster.Player(id)
	assert.False(t, online)
}

func TestServer_StatusCodes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	fan := s.join("Fan")
	streamer := s.join("Streamer", "presence.status.live")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"applied", http.MethodPut, "/players/" + streamer.String() + "/status", PutStatusRequest{Key: "live"}, http.StatusOK},
		{"invalid key", http.MethodPut, "/players/" + fan.String() + "/status", PutStatusRequest{Key: "ghost"}, http.StatusBadRequest},
		{"no permission", http.MethodPut, "/players/" + fan.String() + "/status", PutStatusRequest{Key: "live"}, http.StatusForbidden},
		{"malformed id", http.MethodGet, "/players/not-a-uuid", nil, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/players/" + fan.String() + "/deaths",
			PostDeathsRequest{Mode: presence.DeathsAdd, Amount: -1}, http.StatusBadRequest},
		{"unknown mode", http.MethodPost, "/players/" + fan.String() + "/deaths",
			PostDeathsRequest{Mode: "multiply", Amount: 1}, http.StatusBadRequest},
		{"join without name", http.MethodPost, "/events/join", host.JoinEvent{ID: uuid.New()}, http.StatusBadRequest},
		{"move offline player", http.MethodPost, "/events/move", host.MoveEvent{ID: uuid.New(), Region: "nether"}, http.StatusNotFound},
		{"empty metrics", http.MethodPost, "/events/metrics", host.MetricsEvent{}, http.StatusBadRequest},
		{"bad viewer", http.MethodGet, "/statuses?viewer=nope", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res ErrorResponse
			var out any
			if tt.want >= http.StatusBadRequest {
				out = &res
			}
			assert.Equal(t, tt.want, s.do(tt.method, tt.path, tt.body, out))
			if out != nil {
				assert.NotEmpty(t, res.Error.Message)
			}
		})
	}
}

func TestServer_Statuses(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	streamer := s.join("Streamer", host.WildcardPermission)

	var previews []presence.StatusPreview
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/statuses?viewer="+streamer.String(), nil, &previews))
	require.Len(t, previews, 2)
	assert.Equal(t, "afk", previews[0].Key)
	assert.Equal(t, "live", previews[1].Key)
	assert.True(t, previews[1].Allowed)
	assert.Equal(t, "[LIVE]", previews[1].Status.Plain())
}

func TestServer_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "presence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
statuses:
  - key: builder
    display: "<yellow>[B]</yellow>"
`), 0o600))

	s := newTestServer(t, WithConfigPath(path))
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/reload", nil, nil))

	var previews []presence.StatusPreview
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/statuses", nil, &previews))
	require.Len(t, previews, 1)
	assert.Equal(t, "builder", previews[0].Key)

	require.NoError(t, os.WriteFile(path, []byte("tablist: [not, a, map]"), 0o600))
	var res ErrorResponse
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/reload", nil, &res))
	assert.Contains(t, res.Error.Message, "failed to load config")
}

func TestServer_EngineStopped(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	roster := host.NewRoster(1)
	engine, err := presence.New(cfg, roster, host.NewMemorySurface(), storage.NewMemoryStore())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, engine.Run(ctx))

	srv, err := New(engine, host.NewFeed(roster, engine))
	require.NoError(t, err)
	s := &testServer{t: t, srv: srv, engine: engine, roster: roster}

	var health GetHealthResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", nil, &health))
	assert.False(t, health.IsEngineRunning)

	var res ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/players/"+uuid.NewString(), nil, &res))
}
