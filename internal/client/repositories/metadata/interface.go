// Package metadata stores small key/value facts next to the synced data:
// the last successful sync time, the identity that owns the local scope and
// the session token.
package metadata

import (
	"context"
	"time"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	// GetTime returns the zero time when the key is absent.
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
