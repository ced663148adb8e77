package latest

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
)

// keyPrefix namespaces cache keys so a shared Redis can hold other data.
const keyPrefix = "latest:"

// Sources recorded on an Entry.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Entry is one device's most recently recorded payload.
type Entry struct {
	DeviceID  string         `json:"device_id" msgpack:"device_id"`
	Data      map[string]any `json:"data" msgpack:"data"`
	UpdatedAt time.Time      `json:"updated_at" msgpack:"updated_at"`
	Source    string         `json:"source" msgpack:"source"`
}

// Cache stores the latest payload per device.
//
// All methods are safe for concurrent use when the Provider is.
type Cache struct {
	provider Provider
	codec    Codec
	ttl      time.Duration
	backend  string
	now      func() time.Time
}

// New composes a cache from a provider and codec. A non-positive ttl keeps
// entries until the provider evicts them.
func New(p Provider, c Codec, ttl time.Duration) *Cache {
	return &Cache{
		provider: p,
		codec:    c,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open builds the cache described by cfg. For the redis backend the server is
// pinged so a bad address fails at startup rather than on the first write.
func Open(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	var p Provider
	switch cfg.Backend {
	case "ristretto", "":
		p, err = NewRistrettoProvider(cfg.Ristretto.NumCounters, cfg.Ristretto.MaxCost, cfg.Ristretto.BufferItems)
	case "bigcache":
		p, err = NewBigCacheProvider(cfg.BigCache.LifeWindow, cfg.BigCache.HardMaxCacheSizeMB)
	case "redis":
		p, err = openRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Backend, err)
	}

	c := New(p, codec, cfg.TTL)
	c.backend = cfg.Backend
	if c.backend == "" {
		c.backend = "ristretto"
	}
	return c, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*RedisProvider, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p, err := NewRedisProvider(client, true)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Addr, err)
	}
	return p, nil
}

// Backend names the configured provider, or "" for a cache built with New.
func (c *Cache) Backend() string {
	return c.backend
}

// Set records data for deviceID as written through the API.
// It satisfies the hierarchy store's latest-value writer.
func (c *Cache) Set(ctx context.Context, deviceID string, data map[string]any) error {
	return c.Record(ctx, deviceID, data, SourceAPI)
}

// Record stores data as the latest payload for deviceID.
func (c *Cache) Record(ctx context.Context, deviceID string, data map[string]any, source string) error {
	if data == nil {
		data = map[string]any{}
	}
	b, err := c.codec.Encode(Entry{
		DeviceID:  deviceID,
		Data:      data,
		UpdatedAt: c.now().UTC(),
		Source:    source,
	})
	if err != nil {
		return fmt.Errorf("encoding entry for %s: %w", deviceID, err)
	}
	if err := c.provider.Set(ctx, keyPrefix+deviceID, b, c.ttl); err != nil {
		return fmt.Errorf("writing entry for %s: %w", deviceID, err)
	}
	return nil
}

// Get returns the latest entry for deviceID or ErrNotFound.
func (c *Cache) Get(ctx context.Context, deviceID string) (Entry, error) {
	key := keyPrefix + deviceID
	b, ok, err := c.provider.Get(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("reading entry for %s: %w", deviceID, err)
	}
	if !ok {
		return Entry{}, ErrNotFound
	}

	e, err := c.codec.Decode(b)
	if err != nil {
		// Corrupt or written by an incompatible codec; drop it.
		_ = c.provider.Del(ctx, key)
		return Entry{}, ErrNotFound
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return e, nil
}

// Delete removes any entry for deviceID.
func (c *Cache) Delete(ctx context.Context, deviceID string) error {
	return c.provider.Del(ctx, keyPrefix+deviceID)
}

// HealthCheck performs a read against the provider.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if _, _, err := c.provider.Get(ctx, keyPrefix+"_health"); err != nil {
		return fmt.Errorf("latest cache health check failed: %w", err)
	}
	return nil
}

// Close releases the provider.
func (c *Cache) Close(ctx context.Context) error {
	return c.provider.Close(ctx)
}
