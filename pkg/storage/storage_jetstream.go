package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/argus-labs/presence/pkg/micro"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"
)

// JetStreamStore keeps each collection in its own JetStream key-value bucket named
// `<prefix>_<collection>`.
type JetStreamStore struct {
	js     jetstream.JetStream
	prefix string

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

var _ Store = (*JetStreamStore)(nil)

func NewJetStreamStore(_ context.Context, client *micro.Client, prefix string) (*JetStreamStore, error) {
	if client == nil {
		return nil, eris.New("NATS client cannot be nil")
	}
	js, err := jetstream.New(client.Conn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create JetStream client")
	}
	return &JetStreamStore{
		js:      js,
		prefix:  prefix,
		buckets: make(map[string]jetstream.KeyValue),
	}, nil
}

func (j *JetStreamStore) bucket(ctx context.Context, collection string) (jetstream.KeyValue, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if kv, ok := j.buckets[collection]; ok {
		return kv, nil
	}

	// Bucket names only accept alphanumerics, dashes and underscores.
	name := strings.ReplaceAll(j.prefix+"_"+collection, ".", "_")
	kv, err := j.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
	if err != nil {
		if !eris.Is(err, jetstream.ErrBucketExists) {
			return nil, eris.Wrapf(err, "failed to create KV bucket (bucket=%s)", name)
		}
		// Bucket already exists, get the existing one.
		kv, err = j.js.KeyValue(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to get existing KV bucket (bucket=%s)", name)
		}
	}
	j.buckets[collection] = kv
	return kv, nil
}

func (j *JetStreamStore) keys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if eris.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "failed to list KV keys")
	}
	return keys, nil
}

func (j *JetStreamStore) Load(ctx context.Context, collection string) (map[string][]byte, error) {
	kv, err := j.bucket(ctx, collection)
	if err != nil {
		return nil, err
	}
	keys, err := j.keys(ctx, kv)
	if err != nil {
		return nil, err
	}

	entries := make(map[string][]byte, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if eris.Is(err, jetstream.ErrKeyNotFound) {
				continue // Deleted between listing and reading.
			}
			return nil, eris.Wrapf(err, "failed to get %s/%s", collection, key)
		}
		entries[key] = entry.Value()
	}
	return entries, nil
}

func (j *JetStreamStore) Save(ctx context.Context, collection string, entries map[string][]byte) error {
	kv, err := j.bucket(ctx, collection)
	if err != nil {
		return err
	}
	existing, err := j.keys(ctx, kv)
	if err != nil {
		return err
	}

	for k, v := range entries {
		if _, err := kv.Put(ctx, k, v); err != nil {
			return eris.Wrapf(err, "failed to put %s/%s", collection, k)
		}
	}
	for _, key := range existing {
		if _, keep := entries[key]; keep {
			continue
		}
		if err := kv.Delete(ctx, key); err != nil {
			return eris.Wrapf(err, "failed to delete %s/%s", collection, key)
		}
	}
	return nil
}

// Close is a no-op, the NATS connection is owned by the caller.
func (j *JetStreamStore) Close() error {
	return nil
}
