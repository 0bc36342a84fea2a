// Package kvstore provides a namespaced, type-directed key-value store over
// a durable byte-level medium. Values are tagged (scalar, string list or
// structured record) and a read with the wrong tag fails with a DecodeError
// instead of silently coercing.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned when no value exists for a namespace/key pair.
var ErrNotFound = errors.New("key not found")

// Medium is the durable byte-level collaborator backing the typed store.
// It abstracts the persistence backend, allowing for different implementations
// (e.g., in-memory, NATS JetStream KV, PostgreSQL).
// A completed Write must survive process restart.
type Medium interface {
	// Write durably stores raw bytes under the namespace/key pair.
	Write(ctx context.Context, namespace, key string, value []byte) error

	// Read returns the bytes stored under the namespace/key pair.
	// Returns ErrNotFound if nothing is stored.
	Read(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete removes the namespace/key pair. Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Keys enumerates the keys present in a namespace.
	// Returns an empty slice if the namespace holds nothing.
	Keys(ctx context.Context, namespace string) ([]string, error)
}

// Store implements typed get/set/remove/clear over a Medium.
// Construction is idempotent: building a Store over a populated medium never
// duplicates or resets existing namespaces.
type Store struct {
	medium Medium
	logger *slog.Logger
}

// New creates a Store over the given medium.
func New(medium Medium, logger *slog.Logger) *Store {
	return &Store{
		medium: medium,
		logger: logger.With("component", "kvstore"),
	}
}

// Get retrieves the value stored under namespace/key, requiring it to carry
// the given kind. Returns ErrNotFound when absent and *DecodeError when the
// payload is corrupt or was written with a different kind.
func (s *Store) Get(ctx context.Context, namespace, key string, want Kind) (Value, error) {
	raw, err := s.medium.Read(ctx, namespace, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Value{}, ErrNotFound
		}
		return Value{}, fmt.Errorf("failed to read %s/%s: %w", namespace, key, err)
	}
	return decodeValue(namespace, key, raw, want)
}

// Set durably stores a value under namespace/key. The write is through: the
// medium has accepted it before Set returns nil.
func (s *Store) Set(ctx context.Context, namespace, key string, value Value) error {
	raw, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", namespace, key, err)
	}
	if err := s.medium.Write(ctx, namespace, key, raw); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Remove deletes the value under namespace/key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, namespace, key string) error {
	if err := s.medium.Delete(ctx, namespace, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Clear deletes every value in a namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	keys, err := s.medium.Keys(ctx, namespace)
	if err != nil {
		return fmt.Errorf("failed to enumerate namespace %s: %w", namespace, err)
	}
	for _, key := range keys {
		if err := s.medium.Delete(ctx, namespace, key); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
		}
	}
	return nil
}

// GetAll returns every decodable value in a namespace keyed by its key.
// Entries that fail to decode are skipped and logged, not surfaced: corruption
// of one key must not make the whole namespace unreadable.
func (s *Store) GetAll(ctx context.Context, namespace string) (map[string]Value, error) {
	keys, err := s.medium.Keys(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate namespace %s: %w", namespace, err)
	}
	values := make(map[string]Value, len(keys))
	for _, key := range keys {
		raw, err := s.medium.Read(ctx, namespace, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s/%s: %w", namespace, key, err)
		}
		value, err := decodeAnyValue(namespace, key, raw)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable entry", "namespace", namespace, "key", key, "error", err)
			continue
		}
		values[key] = value
	}
	return values, nil
}
