package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/infrastructure/influxdb"
	"github.com/salsowa/smarthome-core/internal/infrastructure/mqtt"
	"github.com/salsowa/smarthome-core/internal/latest"
)

// ChannelDeviceData is the WebSocket channel device reports are broadcast on.
const ChannelDeviceData = "device.data"

// recordTimeout bounds a single latest-value cache write.
const recordTimeout = 2 * time.Second

// Subscriber is the MQTT surface the ingester needs. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// DeviceLocator resolves a device id to its place in the hierarchy.
// *hierarchy.Store satisfies it.
type DeviceLocator interface {
	LocateDevice(ctx context.Context, deviceID string) (hierarchy.Device, hierarchy.DevicePath, error)
}

// LatestRecorder stores the most recent payload per device.
// *latest.Cache satisfies it.
type LatestRecorder interface {
	Record(ctx context.Context, deviceID string, data map[string]any, source string) error
}

// MetricWriter stores device payloads as time-series points.
// *influxdb.Client satisfies it.
type MetricWriter interface {
	WriteDeviceData(tags influxdb.DeviceTags, data map[string]any, ts time.Time) bool
}

// Broadcaster fans events out to live subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the ingester.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// DeviceDataEvent is broadcast for every accepted report.
type DeviceDataEvent struct {
	DeviceID   string         `json:"device_id"`
	DeviceType string         `json:"device_type"`
	HouseID    string         `json:"house_id"`
	FloorID    string         `json:"floor_id"`
	RoomID     string         `json:"room_id"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Options configures an Ingester. Locator is required; the sinks are optional.
type Options struct {
	Subscriber Subscriber
	Topics     mqtt.Topics
	QoS        byte

	Locator     DeviceLocator
	Latest      LatestRecorder
	Metrics     MetricWriter
	Broadcaster Broadcaster
	Logger      Logger
}

// Stats counts reports by outcome.
type Stats struct {
	Received  uint64 `json:"received"`
	Accepted  uint64 `json:"accepted"`
	Malformed uint64 `json:"malformed"`
	Unknown   uint64 `json:"unknown_device"`
}

// Ingester turns MQTT device reports into cache, InfluxDB and WebSocket
// updates. All methods are safe for concurrent use.
type Ingester struct {
	opts Options
	now  func() time.Time

	received  atomic.Uint64
	accepted  atomic.Uint64
	malformed atomic.Uint64
	unknown   atomic.Uint64

	mu      sync.Mutex
	started bool
}

// ErrMalformedReport is returned by HandleMessage for reports that cannot be
// parsed.
var ErrMalformedReport = errors.New("malformed device report")

// New creates an ingester. Call Start to subscribe.
func New(opts Options) (*Ingester, error) {
	if opts.Locator == nil {
		return nil, fmt.Errorf("device locator is required")
	}
	if opts.QoS > 2 {
		return nil, mqtt.ErrInvalidQoS
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Ingester{opts: opts, now: time.Now}, nil
}

// Start subscribes to every device's data topic.
func (in *Ingester) Start() error {
	if in.opts.Subscriber == nil {
		return fmt.Errorf("mqtt subscriber is required")
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.started {
		return nil
	}

	topic := in.opts.Topics.AllDeviceData()
	if err := in.opts.Subscriber.Subscribe(topic, in.opts.QoS, in.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to device data: %w", err)
	}
	in.started = true
	in.opts.Logger.Info("telemetry ingest started", "topic", topic, "qos", in.opts.QoS)
	return nil
}

// Stop unsubscribes. Reports already being handled run to completion.
func (in *Ingester) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return nil
	}
	in.started = false

	if err := in.opts.Subscriber.Unsubscribe(in.opts.Topics.AllDeviceData()); err != nil {
		return fmt.Errorf("unsubscribing from device data: %w", err)
	}
	in.opts.Logger.Info("telemetry ingest stopped")
	return nil
}

// HandleMessage processes one report. Malformed reports return an error,
// which the MQTT client logs; reports for unknown devices are dropped
// silently apart from a debug log.
func (in *Ingester) HandleMessage(topic string, payload []byte) error {
	in.received.Add(1)

	deviceID, ok := in.opts.Topics.DeviceIDFromData(topic)
	if !ok {
		in.malformed.Add(1)
		return fmt.Errorf("%w: unexpected topic %q", ErrMalformedReport, topic)
	}

	data, err := parseReport(payload)
	if err != nil {
		in.malformed.Add(1)
		return fmt.Errorf("%w: device %s: %w", ErrMalformedReport, deviceID, err)
	}

	ctx := context.Background()
	dev, path, err := in.opts.Locator.LocateDevice(ctx, deviceID)
	if err != nil {
		in.unknown.Add(1)
		in.opts.Logger.Debug("dropping report for unknown device", "device_id", deviceID)
		return nil
	}

	ts := in.now().UTC()
	in.record(ctx, deviceID, data)

	if in.opts.Metrics != nil {
		tags := influxdb.DeviceTags{DeviceID: deviceID, HouseID: path.HouseID, RoomID: path.RoomID, Type: dev.Type}
		in.opts.Metrics.WriteDeviceData(tags, data, ts)
	}

	if in.opts.Broadcaster != nil {
		in.opts.Broadcaster.Broadcast(ChannelDeviceData, DeviceDataEvent{
			DeviceID:   deviceID,
			DeviceType: dev.Type,
			HouseID:    path.HouseID,
			FloorID:    path.FloorID,
			RoomID:     path.RoomID,
			Data:       data,
			Timestamp:  ts,
		})
	}

	in.accepted.Add(1)
	return nil
}

func (in *Ingester) record(ctx context.Context, deviceID string, data map[string]any) {
	if in.opts.Latest == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := in.opts.Latest.Record(rctx, deviceID, data, latest.SourceMQTT); err != nil {
		in.opts.Logger.Warn("latest-value cache write failed", "device_id", deviceID, "error", err)
	}
}

// Stats returns counters since the ingester was created.
func (in *Ingester) Stats() Stats {
	return Stats{
		Received:  in.received.Load(),
		Accepted:  in.accepted.Load(),
		Malformed: in.malformed.Load(),
		Unknown:   in.unknown.Load(),
	}
}

// parseReport decodes a report body. It must be a single JSON object within
// the same bounds as device data submitted over HTTP.
func parseReport(payload []byte) (map[string]any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, errors.New("payload is not a JSON object")
	}

	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	if err := hierarchy.ValidateData(data); err != nil {
		return nil, err
	}
	return data, nil
}
