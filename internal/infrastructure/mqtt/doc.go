// Package mqtt provides the MQTT client used to ingest device telemetry.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect with backoff and subscription restore
//   - a retained online/offline status message plus Last Will and Testament
//   - panic-safe message handlers with optional logging
//   - topic builders for the smart home topic tree
//
// Topic tree, rooted at a configurable prefix (default "smarthome"):
//
//	{prefix}/devices/{deviceID}/data   device data reports (JSON object)
//	{prefix}/system/status             retained core status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Telemetry.TopicPrefix)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllDeviceData(), 1,
//	    func(topic string, payload []byte) error {
//	        id, ok := client.Topics().DeviceIDFromData(topic)
//	        ...
//	    })
package mqtt
