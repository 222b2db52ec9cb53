package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/logging"
	"github.com/nerrad567/cloud4rpi-go/internal/transport"
)

// Live feed frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameAck         = "ack"
	FrameEvent       = "event"
	FrameError       = "error"
)

const (
	clientQueueSize     = 64
	hubQueueSize        = 256
	defaultPingInterval = 30 * time.Second
)

// Frame is one live feed message in either direction.
//
// Clients send subscribe/unsubscribe with Channels, or ping. The hub answers
// with ack, pong or error carrying the request ID, and pushes events with
// Channel set to the message kind ("config", "data" or "diagnostics") and
// TS to the time the device stamped it.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	TS       string   `json:"ts,omitempty"`
	Payload  any      `json:"payload,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// SnapshotFunc returns the current state of a channel, sent to a client
// right after it subscribes. ok is false for channels without a snapshot.
type SnapshotFunc func(channel string) (payload any, ok bool)

// Hub fans every message the device sends out to subscribed WebSocket
// clients. It is a transport.Sink; the client set belongs to Run.
//
// A client whose queue is full is disconnected instead of silently missing
// events.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	snapshot SnapshotFunc

	join    chan *feedClient
	leave   chan *feedClient
	events  chan event
	replies chan reply
	done    chan struct{}
	once    sync.Once

	clients atomic.Int32
	dropped atomic.Int64
}

var _ transport.Sink = (*Hub)(nil)

type event struct {
	channel string
	data    []byte
}

type reply struct {
	client *feedClient
	data   []byte
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		join:    make(chan *feedClient),
		leave:   make(chan *feedClient),
		events:  make(chan event, hubQueueSize),
		replies: make(chan reply, hubQueueSize),
		done:    make(chan struct{}),
	}
}

// SetSnapshot installs the source of subscribe-time snapshots.
// It must be called before Run.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshot = fn
}

// Record implements transport.Sink. It never blocks: when the hub is
// backlogged the event is dropped and counted.
func (h *Hub) Record(msg transport.Message) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: string(msg.Kind),
		TS:      transport.FormatTimestamp(msg.Timestamp),
		Payload: msg.Payload,
	})
	if err != nil {
		h.logger.Error("encoding feed event", "kind", msg.Kind, "error", err)
		return
	}

	select {
	case h.events <- event{channel: string(msg.Kind), data: data}:
	default:
		h.dropped.Add(1)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

// Dropped returns how many events were discarded because the hub was behind.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Run delivers events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*feedClient]struct{})

	drop := func(c *feedClient) {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		close(c.queue)
		h.clients.Store(int32(len(clients)))
	}

	deliver := func(c *feedClient, data []byte) {
		select {
		case c.queue <- data:
		default:
			h.logger.Warn("feed client too slow, disconnecting", "remote", c.remote)
			drop(c)
		}
	}

	defer func() {
		h.once.Do(func() { close(h.done) })
		for c := range clients {
			drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.join:
			clients[c] = struct{}{}
			h.clients.Store(int32(len(clients)))
			h.logger.Debug("feed client connected", "remote", c.remote, "clients", len(clients))

		case c := <-h.leave:
			drop(c)
			h.logger.Debug("feed client disconnected", "remote", c.remote, "clients", len(clients))

		case r := <-h.replies:
			if _, ok := clients[r.client]; ok {
				deliver(r.client, r.data)
			}

		case ev := <-h.events:
			for c := range clients {
				if c.subscribed(ev.channel) {
					deliver(c, ev.data)
				}
			}
		}
	}
}

// handleWebSocket upgrades the request and attaches the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:      s.hub,
		conn:     conn,
		remote:   r.RemoteAddr,
		queue:    make(chan []byte, clientQueueSize),
		channels: make(map[string]bool),
	}

	select {
	case s.hub.join <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// The API listens on loopback only, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type feedClient struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	queue  chan []byte

	mu       sync.RWMutex
	channels map[string]bool
}

func (c *feedClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *feedClient) timing() (ping, wait time.Duration) {
	ping = time.Duration(c.hub.cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	return ping, ping + time.Duration(c.hub.cfg.PongTimeout)*time.Second
}

func (c *feedClient) readLoop() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	_, wait := c.timing()
	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	}
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }
	_ = extend("") //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read error", "remote", c.remote, "error", err)
			}
			return
		}
		_ = extend("") //nolint:errcheck // see above
		c.handle(data)
	}
}

func (c *feedClient) writeLoop() {
	ping, _ := c.timing()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // the write below reports a dead connection
		c.conn.SetWriteDeadline(time.Now().Add(ping))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.queue:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedClient) handle(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		c.send(Frame{Type: FrameError, Error: "invalid JSON frame"})
		return
	}

	switch in.Type {
	case FrameSubscribe, FrameUnsubscribe:
		c.subscribe(in)
	case FramePing:
		c.send(Frame{Type: FramePong, ID: in.ID})
	default:
		c.send(Frame{Type: FrameError, ID: in.ID, Error: "unknown frame type: " + in.Type})
	}
}

func (c *feedClient) subscribe(in Frame) {
	for _, ch := range in.Channels {
		if !transport.Kind(ch).Valid() {
			c.send(Frame{Type: FrameError, ID: in.ID, Error: "unknown channel: " + ch})
			return
		}
	}

	on := in.Type == FrameSubscribe
	var added []string
	c.mu.Lock()
	for _, ch := range in.Channels {
		if on && !c.channels[ch] {
			added = append(added, ch)
		}
		if on {
			c.channels[ch] = true
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	c.send(Frame{Type: FrameAck, ID: in.ID, Channels: in.Channels})

	if c.hub.snapshot == nil {
		return
	}
	for _, ch := range added {
		if payload, ok := c.hub.snapshot(ch); ok {
			c.send(Frame{
				Type:    FrameEvent,
				Channel: ch,
				TS:      transport.FormatTimestamp(time.Now()),
				Payload: payload,
			})
		}
	}
}

// send queues a frame for this client through the hub.
func (c *feedClient) send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.hub.logger.Error("encoding feed frame", "type", f.Type, "error", err)
		return
	}
	select {
	case c.hub.replies <- reply{client: c, data: data}:
	case <-c.hub.done:
	}
}
