package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAllowedMethods(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, "OPTIONS"},
		{[]string{"GET", "GET", "POST"}, "GET, POST, OPTIONS"},
		{[]string{"post", "GET", "OPTIONS"}, "GET, POST, OPTIONS"},
	}
	for _, tt := range tests {
		if got := AllowedMethods(tt.in); got != tt.want {
			t.Errorf("AllowedMethods(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoggingRecordsAssetAndRedactsKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) }
	mux.HandleFunc("GET /api/health", ok)
	mux.HandleFunc("GET /api/arbitrage", ok)
	mux.HandleFunc("GET /api/assets/{symbol}/windows", ok)
	mux.HandleFunc("POST /api/arbitrage/custom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := Logging(logger)(mux)

	tests := []struct {
		method, target string
		level, asset   string
	}{
		{"GET", "/api/arbitrage?asset=eth&api_key=secret", "INFO", "ETH"},
		{"GET", "/api/assets/sol/windows", "INFO", "SOL"},
		{"GET", "/api/health", "DEBUG", ""},
		{"POST", "/api/arbitrage/custom", "WARN", ""},
	}
	for _, tt := range tests {
		buf.Reset()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.target, nil))

		line := buf.String()
		if strings.Contains(line, "secret") {
			t.Errorf("%s: api key leaked: %s", tt.target, line)
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("%s: decode log line %q: %v", tt.target, line, err)
		}
		if rec["level"] != tt.level {
			t.Errorf("%s: level = %v, want %s", tt.target, rec["level"], tt.level)
		}
		got, _ := rec["asset"].(string)
		if got != tt.asset {
			t.Errorf("%s: asset = %q, want %q", tt.target, got, tt.asset)
		}
	}
}
