// Package server exposes the presence engine and the host event feed over HTTP.
package server

import (
	"context"
	"time"

	"github.com/argus-labs/presence/pkg/presence"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const (
	defaultPort     = "4050"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	app    *fiber.App
	engine *presence.Engine
	feed   *host.Feed

	port       string
	configPath string
	log        zerolog.Logger
}

// New returns an HTTP server over engine. Host events posted to /events go through feed.
func New(engine *presence.Engine, feed *host.Feed, opts ...Option) (*Server, error) {
	if engine == nil || feed == nil {
		return nil, eris.New("server requires a non-nil engine and feed")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp", // listen on both ipv4 and ipv6
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(cors.New())

	s := &Server{
		app:    app,
		engine: engine,
		feed:   feed,
		port:   defaultPort,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s, nil
}

// Serve blocks until ctx is done or the listener fails, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.log.Info().Str("port", s.port).Msg("starting HTTP server")
		if err := s.app.Listen(":" + s.port); err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down HTTP server")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.getHealth)
	s.app.Get("/stats", s.getStats)
	s.app.Get("/statuses", s.getStatuses)
	s.app.Post("/reload", s.postReload)

	players := s.app.Group("/players/:id")
	players.Get("/", s.getPlayer)
	players.Put("/status", s.putStatus)
	players.Delete("/status", s.deleteStatus)
	players.Post("/deaths", s.postDeaths)

	events := s.app.Group("/events")
	events.Post("/"+host.EventJoin, postEvent(s.feed.Join))
	events.Post("/"+host.EventQuit, postEvent(s.feed.Quit))
	events.Post("/"+host.EventDeath, postEvent(s.feed.Death))
	events.Post("/"+host.EventMove, postEvent(s.feed.Move))
	events.Post("/"+host.EventMetrics, postEvent(s.feed.Metrics))
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type Option func(*Server)

func WithPort(port string) Option {
	return func(s *Server) {
		if port != "" {
			s.port = port
		}
	}
}

// WithConfigPath sets the display config file re-read by POST /reload. Without one a reload
// applies the defaults.
func WithConfigPath(path string) Option {
	return func(s *Server) {
		s.configPath = path
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}
