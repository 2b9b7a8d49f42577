package testutils

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// NATS is an in-process NATS server with JetStream enabled and a raw client connected to it.
type NATS struct {
	Server *server.Server
	Client *nats.Conn
}

// NewNATS starts a server on a random port. Both are torn down when the test ends.
func NewNATS(t *testing.T) *NATS {
	t.Helper()

	// Uses modified values of NATS's own default test server config.
	opts := &server.Options{
		Host:                  "127.0.0.1",
		Port:                  -1, // Random available port
		NoLog:                 true,
		NoSigs:                true,
		MaxControlLine:        4096,
		DisableShortFirstPing: true,
		JetStream:             true,
		StoreDir:              t.TempDir(),
	}
	srv := test.RunServer(opts)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})

	return &NATS{Server: srv, Client: nc}
}
