package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/server/ws"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout = 15 * time.Second
	// readWait must exceed the server's 30s keepalive.
	readWait = 75 * time.Second
)

// RemoteFeed consumes the /ws/arbitrage push feed of another hourlyarb
// server. It is a livesync.PushSource; reconnects are left to the Manager.
type RemoteFeed struct {
	wsURL  string
	apiKey string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewRemoteFeed creates a feed for the server at baseURL (http or https).
func NewRemoteFeed(baseURL, apiKey string, logger *slog.Logger) (*RemoteFeed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("feed: parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("feed: unsupported scheme %q: %w", u.Scheme, domain.ErrInvalidInput)
	}
	u.Path += "/ws/arbitrage"
	return &RemoteFeed{
		wsURL:  u.String(),
		apiKey: apiKey,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger: logger.With(slog.String("component", "remote_feed")),
	}, nil
}

// Stream subscribes to asset and emits every report the server pushes for it
// until ctx is done or the connection fails. Keepalive and clear frames are
// skipped; an error frame ends the stream.
func (f *RemoteFeed) Stream(ctx context.Context, asset string, emit func(domain.OpportunityReport)) error {
	hdr := http.Header{}
	if f.apiKey != "" {
		hdr.Set("X-API-Key", f.apiKey)
	}
	conn, resp, err := f.dialer.DialContext(ctx, f.wsURL, hdr)
	if err != nil {
		reason := domain.ErrDisconnected
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			reason = domain.ErrUnauthorized
		}
		return &domain.ChannelError{Channel: "push", Reason: reason, Err: err}
	}
	defer conn.Close()

	// Unblock ReadJSON when the session is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sym := strings.ToUpper(asset)
	if err := conn.WriteJSON(ws.Frame{Type: ws.FrameSubscribe, Asset: sym}); err != nil {
		return &domain.ChannelError{Channel: "push", Reason: domain.ErrDisconnected, Err: err}
	}
	f.logger.InfoContext(ctx, "remote feed subscribed", slog.String("asset", sym), slog.String("url", f.wsURL))

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		var frame ws.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				return &domain.ChannelError{Channel: "push", Reason: domain.ErrTimeout, Err: err}
			}
			return &domain.ChannelError{Channel: "push", Reason: domain.ErrDisconnected, Err: err}
		}

		switch frame.Type {
		case ws.FrameOpportunities:
			if frame.Data == nil || !strings.EqualFold(frame.Asset, sym) {
				continue
			}
			emit(*frame.Data)
		case ws.FrameError:
			if frame.Channel != "" {
				// A server-side producer hiccup; the server keeps the session.
				f.logger.DebugContext(ctx, "remote producer error",
					slog.String("channel", frame.Channel),
					slog.String("error", frame.Error),
				)
				continue
			}
			return &domain.ChannelError{Channel: "push", Reason: domain.ErrRejected, Err: errors.New(frame.Error)}
		case ws.FramePing, ws.FrameClear:
		default:
			f.logger.DebugContext(ctx, "unknown frame ignored", slog.String("type", frame.Type))
		}
	}
}
