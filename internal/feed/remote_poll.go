package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// RemotePoller fetches reports from GET /api/arbitrage of another hourlyarb
// server. It is a livesync.PollSource.
type RemotePoller struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemotePoller creates a poller. A zero timeout means 10 seconds.
func NewRemotePoller(baseURL, apiKey string, timeout time.Duration) *RemotePoller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemotePoller{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Poll returns the server's current report for asset.
func (p *RemotePoller) Poll(ctx context.Context, asset string) (domain.OpportunityReport, error) {
	endpoint := p.baseURL + "/api/arbitrage?asset=" + url.QueryEscape(strings.ToUpper(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.OpportunityReport{}, fmt.Errorf("feed: build request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.OpportunityReport{}, ctx.Err()
		}
		return domain.OpportunityReport{}, fmt.Errorf("feed: poll %s: %w: %v", asset, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.OpportunityReport{}, fmt.Errorf("feed: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.OpportunityReport{}, fmt.Errorf("feed: poll %s: %w", asset, domain.ErrUnknownAsset)
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.OpportunityReport{}, fmt.Errorf("feed: poll %s: %w", asset, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.OpportunityReport{}, fmt.Errorf("feed: poll %s: %w", asset, domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return domain.OpportunityReport{}, fmt.Errorf("feed: poll %s: status %d: %w", asset, resp.StatusCode, domain.ErrUpstream)
	}

	var report domain.OpportunityReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.OpportunityReport{}, fmt.Errorf("feed: decode report: %w: %v", domain.ErrMalformed, err)
	}
	return report, nil
}
