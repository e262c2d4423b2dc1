package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/service"
)

// AssetService lists assets and explains their current windows.
type AssetService interface {
	Assets() []domain.Asset
	Windows(symbol string) (service.WindowDiagnostics, error)
}

// AssetHandler serves the asset endpoints.
type AssetHandler struct {
	svc    AssetService
	logger *slog.Logger
}

func NewAssetHandler(svc AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{svc: svc, logger: logHandler(logger, "assets")}
}

// List returns the configured assets.
// GET /api/assets
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assets": h.svc.Assets()})
}

// Windows returns both venues' current windows for one asset.
// GET /api/assets/{symbol}/windows
func (h *AssetHandler) Windows(w http.ResponseWriter, r *http.Request) {
	diag, err := h.svc.Windows(r.PathValue("symbol"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diag)
}
