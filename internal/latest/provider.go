package latest

import (
	"context"
	"time"
)

// Provider is a byte store keyed by string.
//
// Get reports a miss as (nil, false, nil); a non-nil error means the backend
// itself failed. A non-positive ttl means no expiry where the backend
// supports per-entry TTLs.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
