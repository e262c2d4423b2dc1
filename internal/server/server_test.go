package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/livesync"
	"github.com/alanyoungcy/hourlyarb/internal/server/handler"
	"github.com/alanyoungcy/hourlyarb/internal/server/ws"
	"github.com/alanyoungcy/hourlyarb/internal/service"
	"github.com/gorilla/websocket"
)

type fakeService struct {
	assets []domain.Asset
}

func (f *fakeService) Assets() []domain.Asset { return f.assets }

func (f *fakeService) Asset(symbol string) (domain.Asset, error) {
	for _, a := range f.assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, nil
		}
	}
	return domain.Asset{}, fmt.Errorf("asset %q: %w", symbol, domain.ErrUnknownAsset)
}

func (f *fakeService) Windows(symbol string) (service.WindowDiagnostics, error) {
	a, err := f.Asset(symbol)
	if err != nil {
		return service.WindowDiagnostics{}, err
	}
	return service.WindowDiagnostics{Asset: a.Symbol, WindowsAligned: true}, nil
}

func (f *fakeService) GetOpportunities(_ context.Context, symbol string) (domain.OpportunityReport, error) {
	a, err := f.Asset(symbol)
	if err != nil {
		return domain.OpportunityReport{}, err
	}
	return domain.OpportunityReport{Asset: a.Symbol, GeneratedAt: time.Now()}, nil
}

func (f *fakeService) Poll(ctx context.Context, symbol string) (domain.OpportunityReport, error) {
	return f.GetOpportunities(ctx, symbol)
}

func (f *fakeService) EvaluateCustom(_ context.Context, req service.CustomAssetRequest) (domain.OpportunityReport, error) {
	if req.Name == "" {
		return domain.OpportunityReport{}, fmt.Errorf("missing name: %w", domain.ErrInvalidInput)
	}
	return domain.OpportunityReport{Asset: strings.ToUpper(req.Name)}, nil
}

type fakeHistory struct{}

func (fakeHistory) Enabled() bool { return true }

func (fakeHistory) ListRecent(_ context.Context, asset string, limit int) ([]domain.Opportunity, error) {
	return []domain.Opportunity{{Asset: asset}}, nil
}

type fakeTrigger struct{ n int }

func (f *fakeTrigger) Trigger() bool { f.n++; return f.n == 1 }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestHandler(cfg Config, withHistory bool, hub *ws.Hub) (http.Handler, *fakeTrigger) {
	svc := &fakeService{assets: domain.DefaultAssets()}
	logger := discard()
	arb := handler.NewArbHandler(svc, logger)
	if withHistory {
		arb.WithHistory(fakeHistory{})
	}
	trig := &fakeTrigger{}
	var clients handler.ClientCounter
	if hub != nil {
		clients = hub
	}
	h := NewHandler(cfg, Handlers{
		Health:  handler.NewHealthHandler("server", nil, logger),
		Status:  handler.NewStatusHandler("server", svc, clients),
		Assets:  handler.NewAssetHandler(svc, logger),
		Arb:     arb,
		Monitor: handler.NewMonitorHandler(trig, logger),
	}, hub, nil, logger)
	return h, trig
}

func do(t *testing.T, h http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h, trig := newTestHandler(Config{}, false, nil)

	tests := []struct {
		name, method, target, body string
		want                       int
		contains                   string
	}{
		{"health", "GET", "/api/health", "", 200, `"status":"ok"`},
		{"assets", "GET", "/api/assets", "", 200, `"BTC"`},
		{"windows", "GET", "/api/assets/eth/windows", "", 200, `"ETH"`},
		{"windows unknown", "GET", "/api/assets/DOGE/windows", "", 404, "unknown asset"},
		{"arbitrage", "GET", "/api/arbitrage?asset=sol", "", 200, `"opportunities":[]`},
		{"arbitrage unknown", "GET", "/api/arbitrage?asset=DOGE", "", 404, "unknown asset"},
		{"custom", "POST", "/api/arbitrage/custom", `{"name":"doge","kalshi_series":"KXDOGED"}`, 200, `"DOGE"`},
		{"custom invalid", "POST", "/api/arbitrage/custom", `{}`, 400, "invalid input"},
		{"custom garbage", "POST", "/api/arbitrage/custom", `{`, 400, "invalid JSON"},
		{"recent without history", "GET", "/api/arbitrage/recent", "", 501, "not configured"},
		{"status", "GET", "/api/status", "", 200, `"live_clients":0`},
		{"trigger", "POST", "/api/monitor/trigger", "", 202, "enqueued"},
		{"trigger pending", "POST", "/api/monitor/trigger", "", 202, "already pending"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body, nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.contains)
			}
		})
	}
	if trig.n != 2 {
		t.Errorf("trigger calls = %d", trig.n)
	}
}

func TestRecentWithHistory(t *testing.T) {
	h, _ := newTestHandler(Config{}, true, nil)
	rec := do(t, h, "GET", "/api/arbitrage/recent?asset=eth&limit=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Opportunities) != 1 || body.Opportunities[0].Asset != "ETH" {
		t.Errorf("opportunities = %+v", body.Opportunities)
	}
}

func TestAuthAndCORS(t *testing.T) {
	h, _ := newTestHandler(Config{APIKey: "secret", CORSOrigins: []string{"http://app.local"}}, false, nil)

	if rec := do(t, h, "GET", "/api/assets", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/assets", "", map[string]string{"Authorization": "Bearer secret"}); rec.Code != http.StatusOK {
		t.Errorf("bearer: status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/assets?api_key=secret", "", nil); rec.Code != http.StatusOK {
		t.Errorf("query key: status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health should skip auth: status = %d", rec.Code)
	}

	rec := do(t, h, "OPTIONS", "/api/assets", "", map[string]string{"Origin": "http://app.local"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.local" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("allow methods = %q", got)
	}

	rec = do(t, h, "OPTIONS", "/api/assets", "", map[string]string{"Origin": "http://evil.local"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin allowed: %q", got)
	}
}

type memLimiter struct{ calls int }

func (l *memLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.calls <= 1, nil
}

func (l *memLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	svc := &fakeService{assets: domain.DefaultAssets()}
	logger := discard()
	lim := &memLimiter{}
	h := NewHandler(Config{RateLimit: 1}, Handlers{
		Health: handler.NewHealthHandler("server", nil, logger),
		Status: handler.NewStatusHandler("server", svc, nil),
		Assets: handler.NewAssetHandler(svc, logger),
		Arb:    handler.NewArbHandler(svc, logger),
	}, nil, lim, logger)

	if rec := do(t, h, "GET", "/api/assets", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/assets", "", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health should not be limited: %d", rec.Code)
	}
}

func TestHealthDegraded(t *testing.T) {
	checks := map[string]handler.Checker{
		"redis": func(context.Context) error { return nil },
		"s3":    func(context.Context) error { return fmt.Errorf("bucket missing") },
	}
	hh := handler.NewHealthHandler("full", checks, discard())
	rec := httptest.NewRecorder()
	hh.HealthCheck(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"s3":"bucket missing"`) || !strings.Contains(rec.Body.String(), `"redis":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// pushOnce emits a single report per stream then waits for cancellation.
type pushOnce struct{}

func (pushOnce) Stream(ctx context.Context, asset string, emit func(domain.OpportunityReport)) error {
	emit(domain.OpportunityReport{Asset: asset, GeneratedAt: time.Now()})
	<-ctx.Done()
	return ctx.Err()
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f ws.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Type == ws.FramePing {
			continue
		}
		return f
	}
}

func TestWebSocketSubscribe(t *testing.T) {
	svc := &fakeService{assets: domain.DefaultAssets()}
	hub := ws.NewHub(pushOnce{}, nil, svc, livesync.Config{}, discard())
	h, _ := newTestHandler(Config{}, false, hub)

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/arbitrage"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ws.Frame{Type: ws.FrameSubscribe, Asset: "doge"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != ws.FrameError || f.Asset != "DOGE" {
		t.Fatalf("unknown asset frame = %+v", f)
	}

	if err := conn.WriteJSON(ws.Frame{Type: ws.FrameSubscribe, Asset: "eth"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != ws.FrameClear || f.Asset != "ETH" {
		t.Fatalf("first frame = %+v, want clear", f)
	}
	f := readFrame(t, conn)
	if f.Type != ws.FrameOpportunities || f.Asset != "ETH" || f.Data == nil || f.Data.Asset != "ETH" {
		t.Fatalf("second frame = %+v, want opportunities", f)
	}
	if f.Channel != string(livesync.ChannelPush) {
		t.Errorf("channel = %q", f.Channel)
	}

	// Switching asset clears before any report of the new asset.
	if err := conn.WriteJSON(ws.Frame{Type: ws.FrameSubscribe, Asset: "BTC"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != ws.FrameClear || f.Asset != "BTC" {
		t.Fatalf("switch frame = %+v, want clear", f)
	}
	if f := readFrame(t, conn); f.Type != ws.FrameOpportunities || f.Asset != "BTC" {
		t.Fatalf("after switch = %+v", f)
	}

	if err := conn.WriteJSON(ws.Frame{Type: ws.FrameUnsubscribe}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != ws.FrameClear {
		t.Fatalf("unsubscribe frame = %+v", f)
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("client count = %d", hub.ClientCount())
	}
}
