package polymarket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/gorilla/websocket"
)

func TestStreamDecodesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan WSCommand, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		subscribed <- cmd

		frames := []string{
			`[{"event_type":"book","asset_id":"111","bids":[{"price":"0.50","size":"10"},{"price":"0.52","size":"5"}],"asks":[{"price":"0.55","size":"3"},{"price":"0.54","size":"1"}]}]`,
			`PONG`,
			`{"event_type":"price_change","price_changes":[{"asset_id":"222","best_bid":"0.44","best_ask":"0.46"}]}`,
			`{"event_type":"last_trade_price","asset_id":"111","price":"0.53"}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		got  []TopOfBook
		done = make(chan struct{})
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Stream(ctx, []string{"111", "222"}, func(top TopOfBook) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, top)
			if len(got) == 2 {
				close(done)
			}
		})
	}()

	select {
	case cmd := <-subscribed:
		if cmd.Type != "market" || len(cmd.Assets) != 2 {
			t.Errorf("subscribe = %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe command received")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for updates")
	}

	mu.Lock()
	if got[0].AssetID != "111" || got[0].BestBid != 0.52 || got[0].BestAsk != 0.54 {
		t.Errorf("book top = %+v", got[0])
	}
	if got[1].AssetID != "222" || got[1].BestBid != 0.44 || got[1].BestAsk != 0.46 {
		t.Errorf("price change top = %+v", got[1])
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Stream returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancel")
	}
}

func TestStreamDialFailureIsChannelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), logger)

	err := client.Stream(context.Background(), []string{"1"}, func(TopOfBook) {})
	var chErr *domain.ChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("err = %v, want *domain.ChannelError", err)
	}
	if !errors.Is(err, domain.ErrRejected) {
		t.Errorf("reason = %v, want ErrRejected", chErr.Reason)
	}
}
