// Package micro wraps the NATS connection shared by the presence event feed, the remote render
// surface and the JetStream key-value storage backend. Payloads are JSON.
package micro

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Client is a NATS connection that logs its own lifecycle and speaks JSON.
type Client struct {
	*nats.Conn
	log zerolog.Logger
	cfg NATSConfig
}

type NATSConfig struct {
	Name            string        `env:"NATS_NAME" envDefault:"presence"`
	URL             string        `env:"NATS_URL" envDefault:"nats://nats:4222"`
	CredentialsFile string        `env:"NATS_CREDENTIALS_FILE"`
	MaxReconnects   int           `env:"NATS_MAX_RECONNECTS" envDefault:"10"`
	ReconnectWait   time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"5s"`
}

func (cfg NATSConfig) Validate() error {
	if cfg.URL == "" {
		return eris.New("NATS URL is required")
	}
	if cfg.MaxReconnects < -1 {
		return eris.New("NATS max reconnects must be -1 (forever) or greater")
	}
	if cfg.ReconnectWait < 0 {
		return eris.New("NATS reconnect wait must not be negative")
	}
	return nil
}

// NewClient connects using NATS_* environment variables, overridden by opts. Without a
// credentials file the connection is unauthenticated.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg, err := env.ParseAs[NATSConfig]()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse NATS config")
	}
	c := &Client{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid NATS config")
	}

	natsOpts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.connEvent(nc, err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.connEvent(nc, nil).Msg("Reconnected to NATS")
		}),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			event := c.log.Error().Err(err)
			if sub != nil {
				event = event.Str("subject", sub.Subject)
			}
			event.Msg("NATS async error")
		}),
	}
	if c.cfg.CredentialsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(c.cfg.CredentialsFile))
	}

	conn, err := nats.Connect(c.cfg.URL, natsOpts...)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to connect to NATS at %s", c.cfg.URL)
	}
	c.Conn = conn
	c.log.Info().Str("url", conn.ConnectedUrl()).Str("name", c.cfg.Name).Msg("Connected to NATS")
	return c, nil
}

// connEvent starts a log event for a connection state change. err raises it from info to warn.
func (c *Client) connEvent(nc *nats.Conn, err error) *zerolog.Event {
	event := c.log.Info()
	if err != nil {
		event = c.log.Warn().Err(err)
	}
	return event.Str("url", nc.ConnectedUrl()).Uint64("reconnects", nc.Reconnects)
}

func (c *Client) handleClosed(nc *nats.Conn) {
	c.connEvent(nc, nc.LastError()).Msg("NATS connection closed")
}

// Publish JSON-encodes payload and publishes it on subject.
func (c *Client) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal payload for %s", subject)
	}
	if err := c.Conn.Publish(subject, data); err != nil {
		return eris.Wrapf(err, "failed to publish to %s", subject)
	}
	return nil
}

// Subscribe decodes every message on subject into T and hands it to handler together with the
// concrete subject it arrived on, which differs from subject for wildcard subscriptions. Messages
// that fail to decode are logged and dropped.
func Subscribe[T any](c *Client, subject string, handler func(subject string, payload T)) (*nats.Subscription, error) {
	sub, err := c.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var payload T
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed message")
			return
		}
		handler(msg.Subject, payload)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to subscribe to %s", subject)
	}
	return sub, nil
}

// Drain unsubscribes every subscription after pending messages are handled and then closes the
// connection. It blocks until the connection is closed or ctx is done.
func (c *Client) Drain(ctx context.Context) error {
	if c.Conn == nil {
		return nil
	}
	closed := make(chan struct{})
	c.Conn.SetClosedHandler(func(nc *nats.Conn) {
		c.handleClosed(nc)
		close(closed)
	})
	if err := c.Conn.Drain(); err != nil {
		return eris.Wrap(err, "failed to drain NATS connection")
	}
	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "timed out draining NATS connection")
	}
}

func (c *Client) Close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type ClientOption func(*Client)

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithNATSConfig replaces the configuration parsed from the environment.
func WithNATSConfig(cfg NATSConfig) ClientOption {
	return func(c *Client) {
		c.cfg = cfg
	}
}
