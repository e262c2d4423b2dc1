package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/livesync"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends protocol pings at this interval. Must be less than
	// pongWait.
	pingPeriod = (pongWait * 9) / 10

	// keepalivePeriod sends the application-level {"type":"ping"} frame.
	keepalivePeriod = 30 * time.Second

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// Frame types.
const (
	FrameSubscribe     = "subscribe"
	FrameUnsubscribe   = "unsubscribe"
	FrameOpportunities = "opportunities"
	FrameClear         = "clear"
	FrameError         = "error"
	FramePing          = "ping"
)

// Frame is the JSON envelope exchanged on /ws/arbitrage.
type Frame struct {
	Type    string                    `json:"type"`
	Asset   string                    `json:"asset,omitempty"`
	Channel string                    `json:"channel,omitempty"`
	Data    *domain.OpportunityReport `json:"data,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// AssetLookup validates the asset a client subscribes to.
type AssetLookup interface {
	Asset(symbol string) (domain.Asset, error)
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware.
		return true
	},
}

// client is one WebSocket connection with its own live sync session.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	mgr  *livesync.Manager
	ctx  context.Context

	// sendMu serialises producers on send; writePump is the only reader.
	sendMu sync.Mutex
	send   chan []byte
}

// Hub owns the /ws/arbitrage connections. Every client gets its own
// livesync.Manager merging the hub's push and poll sources.
type Hub struct {
	push   livesync.PushSource
	poll   livesync.PollSource
	assets AssetLookup
	cfg    livesync.Config
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]bool
	ctx     context.Context
}

// NewHub creates a hub. Either source may be nil.
func NewHub(push livesync.PushSource, poll livesync.PollSource, assets AssetLookup, cfg livesync.Config, logger *slog.Logger) *Hub {
	return &Hub{
		push:    push,
		poll:    poll,
		assets:  assets,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]bool),
		ctx:     context.Background(),
	}
}

// Run binds client sessions to ctx and closes every connection when it is
// done.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	<-ctx.Done()

	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
	return ctx.Err()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the request and serves one client. A ?asset= query
// parameter subscribes immediately.
// GET /ws/arbitrage
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	ctx := h.ctx
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		ctx:  ctx,
	}
	c.mgr = livesync.NewManager(h.push, h.poll, c, h.cfg, h.logger)
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client connected", slog.Int("total_clients", total))

	done := make(chan struct{})
	go c.writePump(done)
	if asset := r.URL.Query().Get("asset"); asset != "" {
		c.subscribe(asset)
	}
	c.readPump()

	c.mgr.Close()
	close(done)

	h.mu.Lock()
	delete(h.clients, c)
	total = len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected", slog.Int("total_clients", total))
}

// Clear implements livesync.Sink.
func (c *client) Clear(asset string) {
	c.enqueue(Frame{Type: FrameClear, Asset: asset})
}

// Deliver implements livesync.Sink.
func (c *client) Deliver(u livesync.Update) {
	if u.Err != nil {
		c.enqueue(Frame{Type: FrameError, Asset: u.Token.Asset, Channel: string(u.Channel), Error: u.Err.Error()})
		return
	}
	report := u.Report
	c.enqueue(Frame{Type: FrameOpportunities, Asset: u.Token.Asset, Channel: string(u.Channel), Data: &report})
}

// enqueue never blocks: it runs under the manager lock. Ordinary frames are
// dropped for a slow client. A clear frame first discards everything still
// queued, since those frames describe the previous asset, so it is never
// dropped.
func (c *client) enqueue(f Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if f.Type == FrameClear {
		if n := c.drainLocked(); n > 0 {
			c.hub.logger.Debug("ws: discarded queued frames on clear", slog.Int("frames", n))
		}
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("ws: dropping message for slow client", slog.String("type", f.Type))
	}
}

// drainLocked empties the send queue and returns how many frames it held.
func (c *client) drainLocked() int {
	n := 0
	for {
		select {
		case <-c.send:
			n++
		default:
			return n
		}
	}
}

func (c *client) subscribe(asset string) {
	sym := strings.ToUpper(strings.TrimSpace(asset))
	if c.hub.assets != nil {
		if _, err := c.hub.assets.Asset(sym); err != nil {
			c.enqueue(Frame{Type: FrameError, Asset: sym, Error: err.Error()})
			return
		}
	}
	c.mgr.Activate(c.ctx, sym)
}

// readPump handles subscribe/unsubscribe frames until the connection fails.
func (c *client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.enqueue(Frame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		switch f.Type {
		case FrameSubscribe:
			if f.Asset == "" {
				c.enqueue(Frame{Type: FrameError, Error: "subscribe requires asset"})
				continue
			}
			c.subscribe(f.Asset)
		case FrameUnsubscribe:
			c.mgr.Deactivate()
			c.enqueue(Frame{Type: FrameClear})
		case FramePing:
			// Client keepalive.
		default:
			c.enqueue(Frame{Type: FrameError, Error: "unknown frame type " + f.Type})
		}
	}
}

// writePump writes queued frames, protocol pings and the 30s application
// keepalive until done is closed or a write fails.
func (c *client) writePump(done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	keepalive := time.NewTicker(keepalivePeriod)
	defer func() {
		ping.Stop()
		keepalive.Stop()
		c.conn.Close()
	}()

	keepaliveMsg, _ := json.Marshal(Frame{Type: FramePing})

	for {
		select {
		case <-done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-keepalive.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, keepaliveMsg); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
