package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// natsKVMedium implements Medium on NATS JetStream KV, mapping each
// namespace to its own KV bucket. JetStream acknowledges a Put only after
// the write is committed to the stream, which gives the write-through
// durability the typed store requires.
type natsKVMedium struct {
	js     jetstream.JetStream
	prefix string

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// NewNATSKVMedium creates a Medium over JetStream KV. Bucket names are
// derived as "<prefix>-<namespace>"; buckets are created on first use with
// create-or-bind semantics, so construction over existing data is idempotent.
func NewNATSKVMedium(js jetstream.JetStream, prefix string) Medium {
	return &natsKVMedium{
		js:      js,
		prefix:  prefix,
		buckets: make(map[string]jetstream.KeyValue),
	}
}

// bucket returns the KV bucket for a namespace, creating or binding it on first use.
func (m *natsKVMedium) bucket(ctx context.Context, namespace string) (jetstream.KeyValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kv, ok := m.buckets[namespace]; ok {
		return kv, nil
	}
	name := fmt.Sprintf("%s-%s", m.prefix, namespace)
	kv, err := m.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
	if err != nil {
		return nil, fmt.Errorf("failed to open KV bucket %s: %w", name, err)
	}
	m.buckets[namespace] = kv
	return kv, nil
}

func (m *natsKVMedium) Write(ctx context.Context, namespace, key string, value []byte) error {
	kv, err := m.bucket(ctx, namespace)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (m *natsKVMedium) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	kv, err := m.bucket(ctx, namespace)
	if err != nil {
		return nil, err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s/%s: %w", namespace, key, err)
	}
	return entry.Value(), nil
}

func (m *natsKVMedium) Delete(ctx context.Context, namespace, key string) error {
	kv, err := m.bucket(ctx, namespace)
	if err != nil {
		return err
	}
	if err := kv.Purge(ctx, key); err != nil {
		return fmt.Errorf("kv purge %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (m *natsKVMedium) Keys(ctx context.Context, namespace string) ([]string, error) {
	kv, err := m.bucket(ctx, namespace)
	if err != nil {
		return nil, err
	}
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("kv keys %s: %w", namespace, err)
	}
	return keys, nil
}
