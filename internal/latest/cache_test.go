package latest

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
)

// memProvider is a map-backed Provider with switchable failures.
type memProvider struct {
	mu     sync.Mutex
	items  map[string][]byte
	getErr error
	setErr error
}

func newMemProvider() *memProvider {
	return &memProvider{items: make(map[string][]byte)}
}

func (m *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	b, ok := m.items[key]
	return b, ok, nil
}

func (m *memProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.items[key] = value
	return nil
}

func (m *memProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memProvider) Close(context.Context) error { return nil }

func samplePayload() map[string]any {
	return map[string]any{
		"temperature": 21.5,
		"on":          true,
		"mode":        "eco",
		"schedule":    []any{"06:00", "22:00"},
		"limits":      map[string]any{"min": 16.0, "max": 24.0},
	}
}

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var codecs []Codec
	for _, name := range config.CacheCodecs {
		c, err := NewCodec(name)
		if err != nil {
			t.Fatalf("NewCodec(%q): %v", name, err)
		}
		codecs = append(codecs, c)
	}
	return codecs
}

func TestCodecs_PreservePayloadShape(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	in := Entry{DeviceID: "dev-1", Data: samplePayload(), UpdatedAt: at, Source: SourceMQTT}

	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.DeviceID != in.DeviceID || out.Source != in.Source {
				t.Errorf("got %+v", out)
			}
			if !out.UpdatedAt.Equal(at) {
				t.Errorf("UpdatedAt = %v, want %v", out.UpdatedAt, at)
			}
			if !reflect.DeepEqual(out.Data, in.Data) {
				t.Errorf("Data = %#v, want %#v", out.Data, in.Data)
			}
		})
	}
}

func TestNewCodec_Unknown(t *testing.T) {
	if _, err := NewCodec("xml"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("NewCodec(xml) = %v, want ErrUnknownCodec", err)
	}
}

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	c := New(p, MsgpackCodec{}, 0)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	if _, err := c.Get(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Set = %v, want ErrNotFound", err)
	}

	if err := c.Set(ctx, "dev-1", map[string]any{"on": true}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e, err := c.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.DeviceID != "dev-1" || e.Source != SourceAPI || e.Data["on"] != true || !e.UpdatedAt.Equal(fixed) {
		t.Errorf("entry = %+v", e)
	}
	if _, ok := p.items[keyPrefix+"dev-1"]; !ok {
		t.Errorf("key not namespaced with %q", keyPrefix)
	}

	if err := c.Record(ctx, "dev-1", map[string]any{"on": false}, SourceMQTT); err != nil {
		t.Fatalf("Record: %v", err)
	}
	e, _ = c.Get(ctx, "dev-1")
	if e.Data["on"] != false || e.Source != SourceMQTT {
		t.Errorf("overwritten entry = %+v", e)
	}

	if err := c.Set(ctx, "dev-2", nil); err != nil {
		t.Fatalf("Set nil: %v", err)
	}
	e, err = c.Get(ctx, "dev-2")
	if err != nil || e.Data == nil || len(e.Data) != 0 {
		t.Errorf("nil payload entry = %+v, %v; want empty map", e, err)
	}

	if err := c.Delete(ctx, "dev-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v", err)
	}
}

func TestCache_CorruptEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	c := New(p, MsgpackCodec{}, 0)

	p.items[keyPrefix+"dev-1"] = []byte{0xc1}
	if _, err := c.Get(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get corrupt = %v, want ErrNotFound", err)
	}
	if _, ok := p.items[keyPrefix+"dev-1"]; ok {
		t.Error("corrupt entry was not deleted")
	}
}

func TestCache_ProviderErrorsSurface(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	c := New(p, JSONCodec{}, 0)
	boom := errors.New("backend down")

	p.setErr = boom
	if err := c.Set(ctx, "dev-1", nil); !errors.Is(err, boom) {
		t.Errorf("Set = %v, want wrapped backend error", err)
	}

	p.getErr = boom
	_, err := c.Get(ctx, "dev-1")
	if !errors.Is(err, boom) || errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want backend error distinct from ErrNotFound", err)
	}
	if err := c.HealthCheck(ctx); !errors.Is(err, boom) {
		t.Errorf("HealthCheck = %v", err)
	}
}

func TestOpen_InProcessBackends(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{"ristretto", "bigcache"} {
		for _, codec := range config.CacheCodecs {
			t.Run(backend+"/"+codec, func(t *testing.T) {
				cfg := config.Default().Cache
				cfg.Backend = backend
				cfg.Codec = codec

				c, err := Open(ctx, cfg)
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				defer c.Close(ctx)

				if c.Backend() != backend {
					t.Errorf("Backend() = %q", c.Backend())
				}
				if err := c.HealthCheck(ctx); err != nil {
					t.Errorf("HealthCheck: %v", err)
				}
				if err := c.Set(ctx, "dev-1", samplePayload()); err != nil {
					t.Fatalf("Set: %v", err)
				}
				e, err := c.Get(ctx, "dev-1")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if !reflect.DeepEqual(e.Data, samplePayload()) {
					t.Errorf("Data = %#v", e.Data)
				}
				if _, err := c.Get(ctx, "dev-unknown"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get unknown = %v", err)
				}
			})
		}
	}
}

func TestOpen_RejectsUnknownNames(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default().Cache
	cfg.Backend = "memcached"
	if _, err := Open(ctx, cfg); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open(memcached) = %v, want ErrUnknownBackend", err)
	}

	cfg = config.Default().Cache
	cfg.Codec = "gob"
	if _, err := Open(ctx, cfg); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("Open(codec gob) = %v, want ErrUnknownCodec", err)
	}

	cfg = config.Default().Cache
	cfg.Ristretto.MaxCost = 0
	if _, err := Open(ctx, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Open(ristretto max_cost 0) = %v, want ErrInvalidConfig", err)
	}
}

func TestRistrettoProvider_ReportsRejectedWrites(t *testing.T) {
	ctx := context.Background()
	p, err := NewRistrettoProvider(100, 8, 64)
	if err != nil {
		t.Fatalf("NewRistrettoProvider: %v", err)
	}

	if err := p.Set(ctx, "small", []byte("1234"), 0); err != nil {
		t.Fatalf("Set(small) = %v", err)
	}
	if _, ok, _ := p.Get(ctx, "small"); !ok {
		t.Error("small entry not visible after Set")
	}

	if err := p.Set(ctx, "big", []byte("0123456789abcdef"), 0); !errors.Is(err, ErrRejected) {
		t.Errorf("Set(over max cost) = %v, want ErrRejected", err)
	}
	if _, ok, _ := p.Get(ctx, "big"); ok {
		t.Error("oversized entry is readable")
	}

	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Set(ctx, "late", []byte("1"), 0); !errors.Is(err, ErrRejected) {
		t.Errorf("Set after Close = %v, want ErrRejected", err)
	}
}

func TestRedisProvider_NilClient(t *testing.T) {
	if _, err := NewRedisProvider(nil, false); !errors.Is(err, ErrNilClient) {
		t.Errorf("NewRedisProvider(nil) = %v", err)
	}
}

// TestRedisProvider_Live needs a reachable server; set SMARTHOME_TEST_REDIS_ADDR.
func TestRedisProvider_Live(t *testing.T) {
	addr := os.Getenv("SMARTHOME_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SMARTHOME_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	p, err := NewRedisProvider(client, true)
	if err != nil {
		t.Fatalf("NewRedisProvider: %v", err)
	}
	defer p.Close(ctx)

	c := New(p, MsgpackCodec{}, time.Minute)
	id := "dev-test-" + time.Now().Format("150405.000000")
	defer c.Delete(ctx, id)

	if err := c.Set(ctx, id, samplePayload()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	e, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(e.Data, samplePayload()) {
		t.Errorf("Data = %#v", e.Data)
	}
}
