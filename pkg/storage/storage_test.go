package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/argus-labs/presence/pkg/micro"
	"github.com/argus-labs/presence/pkg/storage"
	"github.com/argus-labs/presence/pkg/testutils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------------------------------------------------------------------------------
// Backend conformance
//
// Every backend must round-trip collections, treat Save as a full replacement, keep collections
// independent and return an empty map for unknown collections.
// -------------------------------------------------------------------------------------------------

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	backends := []struct {
		name string
		open func(t *testing.T) storage.Store
	}{
		{
			name: "memory",
			open: func(_ *testing.T) storage.Store { return storage.NewMemoryStore() },
		},
		{
			name: "redis",
			open: func(t *testing.T) storage.Store {
				_, client := testutils.NewRedis(t)
				return storage.NewRedisStoreFromClient(client, "presence-test")
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) storage.Store {
				s, err := storage.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "jetstream",
			open: func(t *testing.T) storage.Store {
				natsTest := testutils.NewNATS(t)
				client, err := micro.NewClient(
					micro.WithNATSConfig(micro.NATSConfig{Name: "storage-test", URL: natsTest.Server.ClientURL()}),
					micro.WithLogger(zerolog.Nop()),
				)
				require.NoError(t, err)
				t.Cleanup(client.Close)
				s, err := storage.NewJetStreamStore(context.Background(), client, "presence_test")
				require.NoError(t, err)
				return s
			},
		},
	}

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := backend.open(t)
			t.Cleanup(func() { _ = s.Close() })

			empty, err := s.Load(ctx, "players")
			require.NoError(t, err)
			assert.Empty(t, empty)

			first := map[string][]byte{
				"a": []byte(`{"deaths":1}`),
				"b": []byte(`{"deaths":2}`),
			}
			require.NoError(t, s.Save(ctx, "players", first))
			require.NoError(t, s.Save(ctx, "server", map[string][]byte{"stats": []byte(`{"totalDeaths":3}`)}))

			got, err := s.Load(ctx, "players")
			require.NoError(t, err)
			assert.Equal(t, first, got)

			// Save replaces: "a" is dropped, "b" is updated, "c" is new.
			second := map[string][]byte{
				"b": []byte(`{"deaths":5}`),
				"c": []byte(`{"deaths":0}`),
			}
			require.NoError(t, s.Save(ctx, "players", second))
			got, err = s.Load(ctx, "players")
			require.NoError(t, err)
			assert.Equal(t, second, got)

			server, err := s.Load(ctx, "server")
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"stats": []byte(`{"totalDeaths":3}`)}, server)
		})
	}
}

func TestMemoryStore_CopiesEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := storage.NewMemoryStore()
	value := []byte("original")
	require.NoError(t, s.Save(ctx, "c", map[string][]byte{"k": value}))
	value[0] = 'X'

	got, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got["k"]))
}

func TestRedisStore_KeyLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr, client := testutils.NewRedis(t)
	s := storage.NewRedisStoreFromClient(client, "presence")
	require.NoError(t, s.Save(ctx, "players", map[string][]byte{"p1": []byte("v1")}))

	assert.Equal(t, "v1", mr.HGet("presence:players", "p1"))

	require.NoError(t, s.Save(ctx, "players", nil))
	assert.False(t, mr.Exists("presence:players"))
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    storage.Options
		wantErr bool
	}{
		{name: "memory", opts: storage.Options{Type: "memory"}},
		{name: "sqlite", opts: storage.Options{Type: "sqlite", SQLitePath: "x.db"}},
		{name: "sqlite without path", opts: storage.Options{Type: "sqlite"}, wantErr: true},
		{name: "redis", opts: storage.Options{Type: "REDIS", RedisAddr: "localhost:6379"}},
		{name: "jetstream without client", opts: storage.Options{Type: "jetstream", JetStreamBucketPrefix: "p"}, wantErr: true},
		{name: "unknown", opts: storage.Options{Type: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, typ := range []storage.Type{storage.TypeMemory, storage.TypeRedis, storage.TypeSQLite, storage.TypeJetStream} {
		assert.Equal(t, typ, storage.ParseType(typ.String()))
	}
	assert.Equal(t, storage.TypeUndefined, storage.ParseType("nope"))
}

func TestNew_RedisPingsServer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr, _ := testutils.NewRedis(t)
	opts := storage.Options{Type: "redis", RedisAddr: mr.Addr(), RedisNamespace: "presence"}

	s, err := storage.New(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "players", map[string][]byte{"p1": []byte("v1")}))
	require.NoError(t, s.Close())

	mr.Close()
	_, err = storage.New(ctx, opts)
	assert.Error(t, err, "an unreachable server fails at open so startup can retry")
}
