package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/service"
)

// OpportunitySource evaluates the current window of a configured or ad-hoc
// asset.
type OpportunitySource interface {
	GetOpportunities(ctx context.Context, symbol string) (domain.OpportunityReport, error)
	EvaluateCustom(ctx context.Context, req service.CustomAssetRequest) (domain.OpportunityReport, error)
}

// HistoryReader reads recorded opportunities back.
type HistoryReader interface {
	Enabled() bool
	ListRecent(ctx context.Context, asset string, limit int) ([]domain.Opportunity, error)
}

// ArbHandler serves arbitrage-related HTTP endpoints.
type ArbHandler struct {
	src     OpportunitySource
	history HistoryReader // optional; when nil, ListRecent returns 501
	logger  *slog.Logger
}

// NewArbHandler creates an ArbHandler with the given source and logger.
func NewArbHandler(src OpportunitySource, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{src: src, logger: logHandler(logger, "arbitrage")}
}

// WithHistory sets the reader for the recent-opportunities endpoint.
func (h *ArbHandler) WithHistory(history HistoryReader) *ArbHandler {
	h.history = history
	return h
}

// Get evaluates the current window of an asset.
// GET /api/arbitrage?asset=BTC
func (h *ArbHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	if asset == "" {
		asset = "BTC"
	}
	report, err := h.src.GetOpportunities(r.Context(), asset)
	if err != nil {
		h.fail(w, r, "evaluate", err)
		return
	}
	writeJSON(w, http.StatusOK, normalise(report))
}

// Custom evaluates an asset described in the request body.
// POST /api/arbitrage/custom
func (h *ArbHandler) Custom(w http.ResponseWriter, r *http.Request) {
	var req service.CustomAssetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	report, err := h.src.EvaluateCustom(r.Context(), req)
	if err != nil {
		h.fail(w, r, "evaluate custom", err)
		return
	}
	writeJSON(w, http.StatusOK, normalise(report))
}

// listArbResponse wraps the list arbitrage opportunities response.
type listArbResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ListRecent returns the most recently recorded profitable opportunities.
// GET /api/arbitrage/recent?asset=ETH&limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil || !h.history.Enabled() {
		writeError(w, http.StatusNotImplemented, "opportunity history not configured")
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("asset")))
	opps, err := h.history.ListRecent(r.Context(), asset, queryLimit(r, 20, 200))
	if err != nil {
		h.fail(w, r, "list recent", err)
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, listArbResponse{Opportunities: opps})
}

func (h *ArbHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, code, err.Error())
}

// normalise keeps empty lists as [] on the wire.
func normalise(r domain.OpportunityReport) domain.OpportunityReport {
	if r.Opportunities == nil {
		r.Opportunities = []domain.Opportunity{}
	}
	if r.Errors == nil {
		r.Errors = []domain.ReportError{}
	}
	return r
}
