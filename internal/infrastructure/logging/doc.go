// Package logging provides structured logging for the smart home core.
//
// It wraps the standard log/slog package so every component logs the same
// way: JSON in production, text during development, with the service name
// and build version attached to every entry.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("house created", "house_id", id)
//	logger.Error("cache write failed", "error", err)
//
// Never log Redis passwords, MQTT credentials or the InfluxDB token.
package logging
