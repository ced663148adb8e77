package latest

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisProvider stores entries in Redis.
type RedisProvider struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider wraps an existing client. When owned is true, Close also
// closes the client.
func NewRedisProvider(client goredis.UniversalClient, owned bool) (*RedisProvider, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisProvider{rdb: client, closeClient: owned}, nil
}

// Ping checks that the server is reachable.
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return p.rdb.Set(ctx, key, value, ttl).Err()
}

func (p *RedisProvider) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// Close releases the client if this provider owns it. Repeated calls are no-ops.
func (p *RedisProvider) Close(context.Context) error {
	if !p.closeClient {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
