// Package metadata is a small key/value table in the client database. The
// local cache keeps its key-derivation salt and passphrase check value here.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns nil, nil for an unknown key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
