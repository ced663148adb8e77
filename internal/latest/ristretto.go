package latest

import (
	"context"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"
)

// RistrettoProvider stores entries in an in-process ristretto cache.
type RistrettoProvider struct {
	c       *rc.Cache
	maxCost int64
}

var _ Provider = (*RistrettoProvider)(nil)

// NewRistrettoProvider builds a ristretto cache. All sizes must be positive.
func NewRistrettoProvider(numCounters, maxCost, bufferItems int64) (*RistrettoProvider, error) {
	if numCounters <= 0 || maxCost <= 0 || bufferItems <= 0 {
		return nil, fmt.Errorf("%w: ristretto sizes must be positive", ErrInvalidConfig)
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoProvider{c: c, maxCost: maxCost}, nil
}

func (p *RistrettoProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores value and waits for ristretto's write buffer to drain so the
// entry is visible to the next Get. A value costing more than the whole cache
// or a write ristretto drops is reported as ErrRejected.
func (p *RistrettoProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	cost := int64(len(value))
	if cost > p.maxCost {
		return fmt.Errorf("%w: %q costs %d, max %d", ErrRejected, key, cost, p.maxCost)
	}
	if !p.c.SetWithTTL(key, value, cost, ttl) {
		return fmt.Errorf("%w: ristretto dropped %q", ErrRejected, key)
	}
	p.c.Wait()
	return nil
}

func (p *RistrettoProvider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *RistrettoProvider) Close(context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}
