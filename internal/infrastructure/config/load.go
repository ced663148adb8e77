package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load builds a Config from Default, then the YAML file at path, then any
// SMARTHOME_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// envOverrides maps environment variables onto the fields they replace.
// Values that do not parse are ignored.
var envOverrides = map[string]func(*Config, string){
	"SMARTHOME_API_HOST": func(c *Config, v string) { c.API.Host = v },
	"SMARTHOME_API_PORT": func(c *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	},
	"SMARTHOME_LOG_LEVEL":      func(c *Config, v string) { c.Logging.Level = v },
	"SMARTHOME_DATABASE_PATH":  func(c *Config, v string) { c.Database.Path = v },
	"SMARTHOME_MQTT_HOST":      func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"SMARTHOME_MQTT_USERNAME":  func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"SMARTHOME_MQTT_PASSWORD":  func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"SMARTHOME_INFLUXDB_TOKEN": func(c *Config, v string) { c.InfluxDB.Token = v },
	"SMARTHOME_CACHE_BACKEND":  func(c *Config, v string) { c.Cache.Backend = v },
	"SMARTHOME_REDIS_ADDR":     func(c *Config, v string) { c.Cache.Redis.Addr = v },
	"SMARTHOME_REDIS_PASSWORD": func(c *Config, v string) { c.Cache.Redis.Password = v },
}

func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			apply(cfg, v)
		}
	}
}
