// Package telemetry ingests device data reports published over MQTT.
//
// Devices publish a JSON object to {prefix}/devices/{deviceID}/data. Each
// report for a device the hierarchy store knows about is recorded in the
// latest-value cache, written to InfluxDB when enabled, and broadcast to
// WebSocket subscribers. Reports never modify the store's device record.
package telemetry
