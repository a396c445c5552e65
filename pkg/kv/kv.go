// Package kv provides the small durable key/value cache the session agent keeps on the device.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("kv: key not found")

// Store is a durable string-keyed byte store. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Watcher is implemented by stores that can report changes made by other processes.
type Watcher interface {
	// Watch calls onChange after the underlying data changes until ctx is done.
	Watch(ctx context.Context, onChange func()) error
}
