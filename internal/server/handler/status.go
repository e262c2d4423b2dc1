package handler

import (
	"net/http"
)

// ClientCounter reports how many live feed consumers are connected.
type ClientCounter interface {
	ClientCount() int
}

// StatusHandler serves the runtime status (mode, assets, live clients).
type StatusHandler struct {
	mode    string
	assets  AssetService
	clients ClientCounter
}

// NewStatusHandler creates a StatusHandler. clients may be nil.
func NewStatusHandler(mode string, assets AssetService, clients ClientCounter) *StatusHandler {
	return &StatusHandler{mode: mode, assets: assets, clients: clients}
}

// GetStatus responds with the mode, configured symbols and live client count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	symbols := []string{}
	for _, a := range h.assets.Assets() {
		symbols = append(symbols, a.Symbol)
	}
	clients := 0
	if h.clients != nil {
		clients = h.clients.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":         h.mode,
		"assets":       symbols,
		"live_clients": clients,
	})
}
