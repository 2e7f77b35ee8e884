package storage

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for keys a backend cannot address.
var ErrInvalidKey = errors.New("storage: invalid key")

// KV is the opaque key-value string store the board persists its snapshot into.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
