package middleware

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Logging returns middleware that logs every request with the asset it
// concerns. Health probes are logged at debug, 5xx responses at warn, and
// WebSocket sessions once they end. The api_key query parameter is never
// logged.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			level, msg := slog.LevelInfo, "http request"
			switch {
			case rw.hijacked:
				msg = "ws session closed"
			case r.URL.Path == "/api/health":
				level = slog.LevelDebug
			case rw.statusCode >= http.StatusInternalServerError:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if asset := requestAsset(r); asset != "" {
				attrs = append(attrs, slog.String("asset", asset))
			}
			if q := redactQuery(r); q != "" {
				attrs = append(attrs, slog.String("query", q))
			}
			if !rw.hijacked {
				attrs = append(attrs, slog.Int("bytes", rw.bytes))
			}
			logger.LogAttrs(r.Context(), level, msg, attrs...)
		})
	}
}

// requestAsset returns the upper-cased asset a request targets, from the
// asset query parameter or the {symbol} path segment.
func requestAsset(r *http.Request) string {
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		asset = r.PathValue("symbol")
	}
	return strings.ToUpper(strings.TrimSpace(asset))
}

func redactQuery(r *http.Request) string {
	q := r.URL.Query()
	if len(q) == 0 {
		return ""
	}
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
	}
	return q.Encode()
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int
	wroteHeader bool
	hijacked    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Hijack lets WebSocket upgrades pass through; a hijacked request is
// recorded as 101 Switching Protocols.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		rw.hijacked = true
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}
