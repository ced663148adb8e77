package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate reports every problem with the configuration in one error.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	check(!c.API.TLS.Enabled || (c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != ""),
		"api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	check(c.Database.Path != "", "database.path is required")

	check(slices.Contains(CacheBackends, c.Cache.Backend), "cache.backend must be one of %s", strings.Join(CacheBackends, ", "))
	check(slices.Contains(CacheCodecs, c.Cache.Codec), "cache.codec must be one of %s", strings.Join(CacheCodecs, ", "))
	check(c.Cache.TTL >= 0, "cache.ttl cannot be negative")
	check(c.Cache.Backend != "redis" || c.Cache.Redis.Addr != "", "cache.redis.addr is required for the redis backend")

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(!c.Telemetry.Enabled || c.Telemetry.TopicPrefix != "", "telemetry.topic_prefix is required when telemetry is enabled")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")

	if len(problems) == 0 {
		return nil
	}
	return errors.New("configuration errors: " + strings.Join(problems, "; "))
}
