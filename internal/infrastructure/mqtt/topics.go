package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots the topic tree when no prefix is configured.
const DefaultTopicPrefix = "smarthome"

// Topics builds topic names under a prefix.
//
//	topics := mqtt.NewTopics("smarthome")
//	topics.DeviceData("dev-42") // "smarthome/devices/dev-42/data"
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are
// trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of the topic tree. The zero Topics uses
// DefaultTopicPrefix.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// DeviceData returns the topic a device publishes its data reports to.
func (t Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/data", t.Prefix(), deviceID)
}

// AllDeviceData returns a pattern matching every device's data topic.
//
// Pattern: {prefix}/devices/+/data
func (t Topics) AllDeviceData() string {
	return fmt.Sprintf("%s/devices/+/data", t.Prefix())
}

// DeviceIDFromData extracts the device id from a concrete data topic.
func (t Topics) DeviceIDFromData(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix()+"/devices/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/data")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// SystemStatus returns the retained core status topic.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}
