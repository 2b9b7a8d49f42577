package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore keeps each collection in one hash at `<namespace>:<collection>`.
type RedisStore struct {
	Namespace string
	Client    *redis.Client
}

var _ Store = (*RedisStore)(nil)

// RedisOptions proxies the redis client options that matter to callers so they don't need to
// import go-redis themselves.
type RedisOptions struct {
	// host:port address.
	Addr string

	// Optional password.
	Password string

	// Database to be selected after connecting to the server.
	DB int
}

func NewRedisStore(options RedisOptions, namespace string) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	}), namespace)
}

func NewRedisStoreFromClient(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{Namespace: namespace, Client: client}
}

// Ping checks that the server answers.
func (r *RedisStore) Ping(ctx context.Context) error {
	return eris.Wrap(r.Client.Ping(ctx).Err(), "redis did not answer ping")
}

func (r *RedisStore) key(collection string) string {
	return r.Namespace + ":" + collection
}

func (r *RedisStore) Load(ctx context.Context, collection string) (map[string][]byte, error) {
	res, err := r.Client.HGetAll(ctx, r.key(collection)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load collection %s from redis", collection)
	}
	entries := make(map[string][]byte, len(res))
	for k, v := range res {
		entries[k] = []byte(v)
	}
	return entries, nil
}

func (r *RedisStore) Save(ctx context.Context, collection string, entries map[string][]byte) error {
	key := r.key(collection)
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) == 0 {
			return nil
		}
		values := make(map[string]any, len(entries))
		for k, v := range entries {
			values[k] = v
		}
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "failed to save collection %s to redis", collection)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.Client.Close(); err != nil {
		return eris.Wrap(err, "failed to close redis client")
	}
	return nil
}
