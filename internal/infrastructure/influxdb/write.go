package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceData is the measurement device data reports are written to.
const MeasurementDeviceData = "device_data"

// maxFieldDepth bounds how far nested payload objects are flattened.
const maxFieldDepth = 4

// DeviceTags locates a device in the hierarchy. Empty values are omitted.
type DeviceTags struct {
	DeviceID string
	HouseID  string
	RoomID   string
	Type     string
}

func (t DeviceTags) toMap() map[string]string {
	tags := map[string]string{"device_id": t.DeviceID}
	if t.HouseID != "" {
		tags["house_id"] = t.HouseID
	}
	if t.RoomID != "" {
		tags["room_id"] = t.RoomID
	}
	if t.Type != "" {
		tags["device_type"] = t.Type
	}
	return tags
}

// WriteDeviceData writes the numeric and boolean fields of a device data
// payload as one point. It reports whether a point was queued; payloads with
// no storable fields are skipped.
//
//	client.WriteDeviceData(influxdb.DeviceTags{DeviceID: "dev-1"},
//	    map[string]any{"temperature": 21.5, "on": true, "mode": "eco"}, time.Now())
//	// device_data,device_id=dev-1 temperature=21.5,on=true
func (c *Client) WriteDeviceData(tags DeviceTags, data map[string]any, ts time.Time) bool {
	if !c.IsConnected() {
		return false
	}
	fields := FieldsFromData(data)
	if len(fields) == 0 {
		return false
	}
	c.writer.WritePoint(write.NewPoint(MeasurementDeviceData, tags.toMap(), fields, ts))
	return true
}

// FieldsFromData picks the fields InfluxDB can aggregate out of a free-form
// payload: numbers and booleans. Nested objects are flattened with dotted
// keys ("power.watts"); strings, arrays and nulls are dropped.
func FieldsFromData(data map[string]any) map[string]interface{} {
	fields := make(map[string]interface{})
	collectFields(fields, "", data, 0)
	return fields
}

func collectFields(fields map[string]interface{}, prefix string, data map[string]any, depth int) {
	for k, v := range data {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case float64, float32, int, int64, int32, uint, uint64, uint32, bool:
			fields[key] = val
		case int8:
			fields[key] = int64(val)
		case int16:
			fields[key] = int64(val)
		case uint8:
			fields[key] = uint64(val)
		case uint16:
			fields[key] = uint64(val)
		case map[string]any:
			if depth < maxFieldDepth {
				collectFields(fields, key, val, depth+1)
			}
		}
	}
}
