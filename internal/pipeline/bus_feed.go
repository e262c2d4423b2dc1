package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// BusFeed replays the reports a Monitor publishes on the signal bus as a push
// stream, so servers can fan out one monitor's work instead of opening their
// own venue connections.
type BusFeed struct {
	bus domain.SignalBus
}

func NewBusFeed(bus domain.SignalBus) *BusFeed {
	return &BusFeed{bus: bus}
}

// Stream emits every report published for asset until ctx is done or the
// subscription ends.
func (f *BusFeed) Stream(ctx context.Context, asset string, emit func(domain.OpportunityReport)) error {
	ch, err := f.bus.Subscribe(ctx, ReportChannel(strings.ToUpper(asset)))
	if err != nil {
		return &domain.ChannelError{Channel: "bus", Reason: domain.ErrRejected, Err: err}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return &domain.ChannelError{Channel: "bus", Reason: domain.ErrDisconnected}
			}
			var report domain.OpportunityReport
			if err := json.Unmarshal(payload, &report); err != nil {
				return &domain.ChannelError{Channel: "bus", Reason: domain.ErrMalformed, Err: fmt.Errorf("decode report: %w", err)}
			}
			emit(report)
		}
	}
}
