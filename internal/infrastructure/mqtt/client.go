package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
)

// Logger is the optional logging interface. *slog.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is called for each received message, on a paho goroutine.
// A returned error is logged; it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Client is a broker connection that keeps its subscriptions across
// reconnects and announces the core's presence on the status topic.
// Methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	subs   subscriptionSet
	up     atomic.Bool

	hookMu       sync.RWMutex
	logger       Logger
	onConnect    func()
	onDisconnect func(error)
}

// Connect dials the broker and returns once the first connection succeeds.
// prefix roots the topic tree used for the presence messages.
func Connect(cfg config.MQTTConfig, prefix string) (*Client, error) {
	c := &Client{cfg: cfg, topics: NewTopics(prefix)}

	opts := clientOptions(cfg, c.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	c.paho = pahomqtt.NewClient(opts)

	if err := await(c.paho.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		c.paho.Disconnect(0)
		return nil, err
	}
	// The paho OnConnect handler may not have run yet.
	c.up.Store(true)
	return c, nil
}

// await waits for token and wraps a timeout or failure in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no response within %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// Topics returns the topic builders for this client's prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) connected() {
	c.up.Store(true)
	for _, s := range c.subs.snapshot() {
		c.paho.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
	}
	c.announce(presenceOnline, "")

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)
	c.logWarn("MQTT connection lost", "error", err)

	c.hookMu.RLock()
	fn := c.onDisconnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// announce publishes a retained presence message without waiting for it.
func (c *Client) announce(state, reason string) pahomqtt.Token {
	msg := statusMessage(c.cfg.Broker.ClientID, state, reason)
	return c.paho.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, msg)
}

// Close marks the core offline and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(presenceOffline, "graceful_shutdown").WaitTimeout(operationTimeout)
	}
	c.up.Store(false)
	c.paho.Disconnect(disconnectQuiesceMillis)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// SetOnConnect sets a callback run on every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets the logger for connection loss and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.hookMu.RLock()
	l := c.logger
	c.hookMu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.hookMu.RLock()
	l := c.logger
	c.hookMu.RUnlock()
	if l != nil {
		l.Error(msg, args...)
	}
}

// wrapHandler adapts handler to paho, logging its errors and recovering
// from panics so one bad message cannot stop the client's router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()
		if err := handler(topic, msg.Payload()); err != nil {
			c.logWarn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
