// Package influxdb records device telemetry history in InfluxDB 2.x.
//
// It wraps influxdb-client-go v2 with connection management, a batched
// non-blocking write API and health checks. Device data reports received
// over MQTT are written to the "device_data" measurement, tagged with the
// device id and its place in the hierarchy; only numeric and boolean
// payload fields are stored.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteDeviceData(influxdb.DeviceTags{DeviceID: "dev-1"}, payload, time.Now())
//
// Write errors surface asynchronously through SetOnError.
package influxdb
