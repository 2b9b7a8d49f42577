// Package storage persists named key-value collections. Every backend treats Save as a full
// replacement of the collection and Load of an unknown collection as empty.
package storage

import (
	"context"
	"strings"

	"github.com/argus-labs/presence/pkg/micro"
	"github.com/rotisserie/eris"
)

type Store interface {
	// Load returns every entry of the collection. A missing collection yields an empty map.
	Load(ctx context.Context, collection string) (map[string][]byte, error)
	// Save replaces the collection with entries.
	Save(ctx context.Context, collection string, entries map[string][]byte) error
	Close() error
}

type Type uint8

const (
	TypeUndefined Type = iota
	TypeMemory
	TypeRedis
	TypeSQLite
	TypeJetStream
)

func (t Type) String() string {
	switch t {
	case TypeMemory:
		return "memory"
	case TypeRedis:
		return "redis"
	case TypeSQLite:
		return "sqlite"
	case TypeJetStream:
		return "jetstream"
	case TypeUndefined:
		return "undefined"
	default:
		return "undefined"
	}
}

// ParseType converts a config string to a Type, returning TypeUndefined for unknown values.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory":
		return TypeMemory
	case "redis":
		return TypeRedis
	case "sqlite":
		return TypeSQLite
	case "jetstream":
		return TypeJetStream
	default:
		return TypeUndefined
	}
}

// Options selects and configures a backend. Fields are read from the environment by the caller.
type Options struct {
	Type string `env:"PRESENCE_STORAGE_TYPE" envDefault:"sqlite"`

	RedisAddr      string `env:"PRESENCE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"PRESENCE_REDIS_PASSWORD"`
	RedisDB        int    `env:"PRESENCE_REDIS_DB" envDefault:"0"`
	RedisNamespace string `env:"PRESENCE_REDIS_NAMESPACE" envDefault:"presence"`

	SQLitePath string `env:"PRESENCE_SQLITE_PATH" envDefault:"presence.db"`

	JetStreamBucketPrefix string `env:"PRESENCE_JETSTREAM_BUCKET_PREFIX" envDefault:"presence"`

	// Client is required for the jetstream backend.
	Client *micro.Client `env:"-"`
}

func (opt *Options) Validate() error {
	switch ParseType(opt.Type) {
	case TypeMemory:
		return nil
	case TypeRedis:
		if opt.RedisAddr == "" {
			return eris.New("redis address cannot be empty")
		}
	case TypeSQLite:
		if opt.SQLitePath == "" {
			return eris.New("sqlite path cannot be empty")
		}
	case TypeJetStream:
		if opt.Client == nil {
			return eris.New("NATS client cannot be nil for jetstream storage")
		}
		if opt.JetStreamBucketPrefix == "" {
			return eris.New("jetstream bucket prefix cannot be empty")
		}
	case TypeUndefined:
		return eris.Errorf("invalid storage type: %q", opt.Type)
	}
	return nil
}

// New opens the backend selected by opts.
func New(ctx context.Context, opts Options) (Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid storage options")
	}

	switch ParseType(opts.Type) {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeRedis:
		store := NewRedisStore(RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, opts.RedisNamespace)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case TypeSQLite:
		return OpenSQLiteStore(ctx, opts.SQLitePath)
	case TypeJetStream:
		return NewJetStreamStore(ctx, opts.Client, opts.JetStreamBucketPrefix)
	case TypeUndefined:
	}
	return nil, eris.Errorf("invalid storage type: %q", opts.Type)
}

func copyEntries(entries map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(entries))
	for k, v := range entries {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
