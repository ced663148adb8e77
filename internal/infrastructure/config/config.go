package config

import "time"

// Config is the root of the YAML configuration. Durations are written the
// way time.ParseDuration reads them ("30s", "24h").
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	TLS      TLSConfig      `yaml:"tls"`
	Timeouts ServerTimeouts `yaml:"timeouts"`
	CORS     CORSConfig     `yaml:"cors"`
}

// TLSConfig points at a certificate pair. Both files must exist when
// Enabled is set.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeouts maps onto the http.Server timeouts of the same names.
type ServerTimeouts struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Idle  time.Duration `yaml:"idle"`
}

// CORSConfig lists what cross-origin callers may do. An empty origin list
// allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the change feed connections.
type WebSocketConfig struct {
	MaxMessageSize int64         `yaml:"max_message_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DatabaseConfig locates the SQLite file holding the audit trail.
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	WALMode     bool          `yaml:"wal_mode"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CacheConfig selects and tunes the latest-value cache backend.
type CacheConfig struct {
	// Backend is one of CacheBackends.
	Backend string `yaml:"backend"`

	// Codec is one of CacheCodecs.
	Codec string `yaml:"codec"`

	// TTL bounds how long a device's last payload is kept. Zero keeps it
	// until evicted. bigcache ignores per-entry TTLs and uses its life window.
	TTL time.Duration `yaml:"ttl"`

	// WriteTimeout bounds a single best-effort cache write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	Redis     RedisConfig     `yaml:"redis"`
	Ristretto RistrettoConfig `yaml:"ristretto"`
	BigCache  BigCacheConfig  `yaml:"bigcache"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RistrettoConfig struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

type BigCacheConfig struct {
	LifeWindow         time.Duration `yaml:"life_window"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`
}

// TelemetryConfig controls MQTT ingestion of device data reports.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// TopicPrefix is prepended to "/devices/+/data".
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTConfig describes the broker the telemetry ingester subscribes to.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect BackoffConfig    `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BackoffConfig bounds the reconnect delay.
type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// InfluxDBConfig enables device history in an InfluxDB 2.x bucket.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Recognised cache backends and codecs.
var (
	CacheBackends = []string{"ristretto", "bigcache", "redis"}
	CacheCodecs   = []string{"msgpack", "cbor", "json"}
)

// Default returns a configuration that runs entirely in-process: no broker,
// no InfluxDB, ristretto for the cache.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8000,
			Timeouts: ServerTimeouts{Read: 30 * time.Second, Write: 30 * time.Second, Idle: time.Minute},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30 * time.Second,
			PongTimeout:    10 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Database: DatabaseConfig{Path: "./data/smarthome.db", WALMode: true, BusyTimeout: 5 * time.Second},
		Cache: CacheConfig{
			Backend:      "ristretto",
			Codec:        "msgpack",
			WriteTimeout: 2 * time.Second,
			Redis:        RedisConfig{Addr: "localhost:6379"},
			Ristretto:    RistrettoConfig{NumCounters: 100_000, MaxCost: 64 << 20, BufferItems: 64},
			BigCache:     BigCacheConfig{LifeWindow: 24 * time.Hour},
		},
		Telemetry: TelemetryConfig{TopicPrefix: "smarthome"},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "smarthome-core"},
			QoS:       1,
			Reconnect: BackoffConfig{InitialDelay: time.Second, MaxDelay: time.Minute},
		},
		InfluxDB: InfluxDBConfig{BatchSize: 100, FlushInterval: 10 * time.Second},
	}
}
