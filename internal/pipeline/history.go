package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// historyScan bounds how many stream entries are scanned per request.
const historyScan = 1000

// History reads recorded opportunities back, from the store when one is
// configured and from the signal bus history stream otherwise.
type History struct {
	store domain.OpportunityStore
	bus   domain.SignalBus
}

func NewHistory(store domain.OpportunityStore, bus domain.SignalBus) *History {
	return &History{store: store, bus: bus}
}

// Enabled reports whether any history backend is configured.
func (h *History) Enabled() bool { return h != nil && (h.store != nil || h.bus != nil) }

// ListRecent returns up to limit opportunities, newest first. An empty asset
// matches every asset.
func (h *History) ListRecent(ctx context.Context, asset string, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	asset = strings.ToUpper(asset)
	if h.store != nil {
		return h.store.ListRecent(ctx, asset, limit)
	}
	if h.bus == nil {
		return nil, fmt.Errorf("pipeline: history: %w", domain.ErrNotFound)
	}

	msgs, err := h.bus.StreamRead(ctx, HistoryStream, "0", historyScan)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read history: %w", err)
	}
	out := make([]domain.Opportunity, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		var opp domain.Opportunity
		if err := json.Unmarshal(msgs[i].Payload, &opp); err != nil {
			continue
		}
		if asset != "" && opp.Asset != asset {
			continue
		}
		out = append(out, opp)
	}
	return out, nil
}
