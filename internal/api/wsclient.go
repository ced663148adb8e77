package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBufferSize is the number of frames queued per client before events
// are dropped.
const sendBufferSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsClient is one WebSocket connection. The read loop handles client frames;
// the write loop is the only writer to conn.
type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done chan struct{}
	once sync.Once
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   uuid.NewString()[:8],
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// handleWebSocket upgrades the request and attaches the client to the hub.
// A new client has no subscriptions.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	s.hub.add(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// enqueue queues a frame without blocking. It reports false only when the
// buffer is full; frames for a stopped client are discarded silently.
func (c *wsClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		c.hub.logger.Warn("websocket reply dropped", "client", c.id, "type", f.Type)
	}
}

func (c *wsClient) readLoop() {
	defer c.hub.remove(c)

	ping, pong := c.hub.timing()
	if limit := c.hub.cfg.MaxMessageSize; limit > 0 {
		c.conn.SetReadLimit(limit)
	}
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ping + pong))
	}
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		// Any frame counts as liveness, for browsers that ignore pings.
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend("")
		c.handle(raw)
	}
}

func (c *wsClient) writeLoop() {
	ping, pong := c.hub.timing()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			//nolint:errcheck // best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(pong))
			return
		case data := <-c.send:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(pong))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pong)); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

func (c *wsClient) handle(raw []byte) {
	var in Frame
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reply(Frame{Type: FrameError, Error: "invalid JSON frame"})
		return
	}

	switch in.Type {
	case FrameSubscribe:
		if err := c.hub.subscribe(c, in.Channels); err != nil {
			c.reply(Frame{Type: FrameError, ID: in.ID, Error: err.Error()})
			return
		}
		c.hub.logger.Debug("websocket client subscribed", "client", c.id, "channels", in.Channels)
		c.reply(Frame{Type: FrameAck, ID: in.ID, Channels: in.Channels})
	case FrameUnsubscribe:
		c.hub.unsubscribe(c, in.Channels)
		c.reply(Frame{Type: FrameAck, ID: in.ID, Channels: in.Channels})
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: in.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: in.ID, Error: "unknown frame type: " + in.Type})
	}
}
