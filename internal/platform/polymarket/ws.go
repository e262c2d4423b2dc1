package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

// DefaultMarketWSURL is the CLOB market channel endpoint.
const DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between two frames from the peer.
	readWait = 60 * time.Second

	// pingPeriod is how often the application-level "PING" is sent. The
	// market channel drops clients that stay silent for longer.
	pingPeriod = 10 * time.Second
)

// TopOfBookHandler is called for every top-of-book change.
type TopOfBookHandler func(TopOfBook)

// WSClient streams top-of-book updates from the Polymarket CLOB market
// channel. Each call to Stream owns one connection; reconnecting is left to
// the caller.
type WSClient struct {
	wsURL  string
	dialer websocket.Dialer
	logger *slog.Logger
}

// NewWSClient creates a client for the given market channel URL.
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	if wsURL == "" {
		wsURL = DefaultMarketWSURL
	}
	return &WSClient{
		wsURL:  wsURL,
		dialer: websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger: logger.With(slog.String("component", "polymarket_ws")),
	}
}

// Stream subscribes to assetIDs and calls handler for every top-of-book
// update until ctx is cancelled or the connection fails. Connection failures
// are returned as *domain.ChannelError.
func (w *WSClient) Stream(ctx context.Context, assetIDs []string, handler TopOfBookHandler) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		reason := domain.ErrDisconnected
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			reason = domain.ErrRejected
		}
		return &domain.ChannelError{Channel: "polymarket", Reason: reason, Err: err}
	}

	var writeMu sync.Mutex
	write := func(typ int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(typ, data)
	}

	cmd, err := json.Marshal(WSCommand{Type: "market", Assets: assetIDs})
	if err != nil {
		conn.Close()
		return fmt.Errorf("polymarket/ws: marshal command: %w", err)
	}
	if err := write(websocket.TextMessage, cmd); err != nil {
		conn.Close()
		return &domain.ChannelError{Channel: "polymarket", Reason: domain.ErrRejected, Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-ticker.C:
				if err := write(websocket.TextMessage, []byte("PING")); err != nil {
					return
				}
			}
		}
	}()

	defer conn.Close()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &domain.ChannelError{Channel: "polymarket", Reason: domain.ErrDisconnected, Err: err}
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		w.handleMessage(message, handler)
	}
}

// handleMessage decodes one frame and dispatches every top-of-book change it
// carries. Keepalive replies and unparseable frames are dropped.
func (w *WSClient) handleMessage(raw []byte, handler TopOfBookHandler) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.EqualFold(raw, []byte("PONG")) {
		return
	}

	var events []WSEvent
	if raw[0] == '[' {
		if err := sonnet.Unmarshal(raw, &events); err != nil {
			w.logger.Debug("drop frame", slog.String("error", err.Error()))
			return
		}
	} else {
		var ev WSEvent
		if err := sonnet.Unmarshal(raw, &ev); err != nil {
			w.logger.Debug("drop frame", slog.String("error", err.Error()))
			return
		}
		events = []WSEvent{ev}
	}

	for i := range events {
		for _, top := range tops(&events[i]) {
			handler(top)
		}
	}
}

// tops extracts the top-of-book updates carried by one event.
func tops(ev *WSEvent) []TopOfBook {
	switch ev.EventType {
	case "book":
		return []TopOfBook{bookTop(ev)}
	case "price_change":
		out := make([]TopOfBook, 0, len(ev.PriceChanges))
		for _, pc := range ev.PriceChanges {
			if pc.BestBid == "" && pc.BestAsk == "" {
				continue
			}
			out = append(out, TopOfBook{
				AssetID: pc.AssetID,
				BestBid: parseFloat(pc.BestBid),
				BestAsk: parseFloat(pc.BestAsk),
			})
		}
		return out
	case "best_bid_ask":
		return []TopOfBook{{AssetID: ev.AssetID, BestBid: parseFloat(ev.BestBid), BestAsk: parseFloat(ev.BestAsk)}}
	default:
		return nil
	}
}
