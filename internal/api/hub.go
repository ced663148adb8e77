package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
	"github.com/salsowa/smarthome-core/internal/infrastructure/logging"
	"github.com/salsowa/smarthome-core/internal/telemetry"
)

// Broadcast channels.
const (
	// ChannelHierarchyChanged carries a hierarchy.Change for every
	// successful store mutation.
	ChannelHierarchyChanged = "hierarchy.changed"

	// ChannelDeviceData carries a telemetry.DeviceDataEvent for every
	// accepted MQTT report.
	ChannelDeviceData = telemetry.ChannelDeviceData
)

// Channels lists the channels a client may subscribe to.
var Channels = []string{ChannelHierarchyChanged, ChannelDeviceData}

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// Frame is the envelope for every WebSocket message in either direction.
//
// Clients send subscribe/unsubscribe (with Channels) and ping. The server
// answers with ack, pong or error carrying the request ID, and pushes event
// frames with Channel, Time and Data set.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Time     string   `json:"time,omitempty"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
}

const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// Hub tracks connected clients and fans events out to the subscribers of
// each channel. It implements hierarchy.Observer and telemetry.Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	subs    map[string]map[*wsClient]struct{}

	dropped atomic.Uint64
}

var (
	_ hierarchy.Observer    = (*Hub)(nil)
	_ telemetry.Broadcaster = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	subs := make(map[string]map[*wsClient]struct{}, len(Channels))
	for _, ch := range Channels {
		subs[ch] = make(map[*wsClient]struct{})
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		subs:    subs,
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many event frames were discarded because a client's
// send buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// OnChange broadcasts a store mutation on ChannelHierarchyChanged.
func (h *Hub) OnChange(_ context.Context, change hierarchy.Change) {
	h.Broadcast(ChannelHierarchyChanged, change)
}

// Broadcast sends payload to every subscriber of channel. It never blocks:
// a subscriber whose buffer is full misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.subs[channel]))
	for c := range h.subs[channel] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.dropped.Add(1)
			h.logger.Warn("websocket client too slow, event dropped", "client", c.id, "channel", channel)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client", c.id, "clients", n)
}

// remove forgets c and stops its pumps. Safe to call more than once.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	for _, set := range h.subs {
		delete(set, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.stop()
	if known {
		h.logger.Debug("websocket client disconnected", "client", c.id, "clients", n)
	}
}

// subscribe adds c to every named channel, or to none if any is unknown.
func (h *Hub) subscribe(c *wsClient, channels []string) error {
	if len(channels) == 0 {
		return fmt.Errorf("no channels given")
	}
	for _, ch := range channels {
		if !slices.Contains(Channels, ch) {
			return fmt.Errorf("unknown channel: %s", ch)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return fmt.Errorf("client disconnected")
	}
	for _, ch := range channels {
		h.subs[ch][c] = struct{}{}
	}
	return nil
}

// unsubscribe removes c from the named channels; unknown names are ignored.
func (h *Hub) unsubscribe(c *wsClient, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		delete(h.subs[ch], c)
	}
}

// timing returns the ping interval and pong timeout, falling back to
// defaults for unset values.
func (h *Hub) timing() (ping, pong time.Duration) {
	ping, pong = h.cfg.PingInterval, h.cfg.PongTimeout
	if ping <= 0 {
		ping = defaultPingInterval
	}
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}
