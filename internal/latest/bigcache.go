package latest

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"
)

// BigCacheProvider stores entries in an in-process bigcache.
// bigcache has no per-entry TTL; entries live for the configured life window.
type BigCacheProvider struct {
	c *bc.BigCache
}

var _ Provider = (*BigCacheProvider)(nil)

// NewBigCacheProvider builds a bigcache with the given life window and an
// optional hard memory cap in megabytes (0 = unlimited).
func NewBigCacheProvider(lifeWindow time.Duration, hardMaxCacheSizeMB int) (*BigCacheProvider, error) {
	conf := bc.DefaultConfig(lifeWindow)
	// Sized for thousands of devices rather than bigcache's web-scale defaults.
	conf.Shards = 64
	conf.MaxEntriesInWindow = 64 * 1024
	if hardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = hardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &BigCacheProvider{c: c}, nil
}

func (p *BigCacheProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *BigCacheProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	return p.c.Set(key, value)
}

func (p *BigCacheProvider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (p *BigCacheProvider) Close(context.Context) error {
	return p.c.Close()
}
