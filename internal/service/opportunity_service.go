package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hourlyarb/internal/arbitrage"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/resolver"
	"github.com/alanyoungcy/hourlyarb/internal/window"
)

// KalshiResolver discovers the Kalshi event of a window.
type KalshiResolver interface {
	ResolveKalshi(ctx context.Context, asset domain.Asset, w domain.MarketWindow) (domain.VenueIdentifier, error)
}

// QuoteFetcher fetches both venues' quotes for resolved identifiers.
type QuoteFetcher interface {
	FetchPolymarket(ctx context.Context, id domain.VenueIdentifier) (domain.PolymarketQuotes, error)
	FetchKalshi(ctx context.Context, id domain.VenueIdentifier) ([]domain.StrikeMarket, error)
}

// PriceFeed returns the hour-open reference price of an asset.
type PriceFeed interface {
	PriceToBeat(ctx context.Context, asset domain.Asset, w domain.MarketWindow) (domain.PriceToBeat, error)
}

// OpportunityConfig configures an OpportunityService.
type OpportunityConfig struct {
	Assets     []domain.Asset
	Kalshi     window.VenuePolicy
	Polymarket window.VenuePolicy
	MaxStrikes int
}

// OpportunityService evaluates the current hourly window of an asset across
// both venues.
type OpportunityService struct {
	resolver  KalshiResolver
	quotes    QuoteFetcher
	prices    PriceFeed
	evaluator *arbitrage.Evaluator
	cfg       OpportunityConfig
	assets    map[string]domain.Asset
	logger    *slog.Logger
	now       func() time.Time
}

// NewOpportunityService creates an OpportunityService. prices may be nil, in
// which case every strike is evaluated in both directions.
func NewOpportunityService(
	res KalshiResolver,
	quotes QuoteFetcher,
	prices PriceFeed,
	evaluator *arbitrage.Evaluator,
	cfg OpportunityConfig,
	logger *slog.Logger,
) *OpportunityService {
	if len(cfg.Assets) == 0 {
		cfg.Assets = domain.DefaultAssets()
	}
	assets := make(map[string]domain.Asset, len(cfg.Assets))
	for i, a := range cfg.Assets {
		a = a.Normalize()
		cfg.Assets[i] = a
		assets[a.Symbol] = a
	}
	return &OpportunityService{
		resolver:  res,
		quotes:    quotes,
		prices:    prices,
		evaluator: evaluator,
		cfg:       cfg,
		assets:    assets,
		logger:    logger.With(slog.String("component", "opportunity_service")),
		now:       time.Now,
	}
}

// Assets returns the configured assets in configuration order.
func (s *OpportunityService) Assets() []domain.Asset {
	out := make([]domain.Asset, len(s.cfg.Assets))
	copy(out, s.cfg.Assets)
	return out
}

// Asset looks up a configured asset by symbol, case-insensitively.
func (s *OpportunityService) Asset(symbol string) (domain.Asset, error) {
	a, ok := s.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return domain.Asset{}, fmt.Errorf("service: asset %q: %w", symbol, domain.ErrUnknownAsset)
	}
	return a, nil
}

// GetOpportunities evaluates the current window of a configured asset. Leg
// failures are reported inside the report; the error is only set for an
// unknown asset.
func (s *OpportunityService) GetOpportunities(ctx context.Context, symbol string) (domain.OpportunityReport, error) {
	a, err := s.Asset(symbol)
	if err != nil {
		return domain.OpportunityReport{}, err
	}
	return s.Evaluate(ctx, a), nil
}

// Poll adapts GetOpportunities to the live sync poll producer.
func (s *OpportunityService) Poll(ctx context.Context, symbol string) (domain.OpportunityReport, error) {
	return s.GetOpportunities(ctx, symbol)
}

// CustomAssetRequest describes an asset that is not configured.
type CustomAssetRequest struct {
	Name                 string `json:"name"`
	KalshiSeries         string `json:"kalshi_series"`
	PolymarketSlugPrefix string `json:"polymarket_slug_prefix"`
	BinanceSymbol        string `json:"binance_symbol"`
}

// EvaluateCustom evaluates an ad-hoc asset.
func (s *OpportunityService) EvaluateCustom(ctx context.Context, req CustomAssetRequest) (domain.OpportunityReport, error) {
	var missing []string
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.KalshiSeries) == "" {
		missing = append(missing, "kalshi_series")
	}
	if strings.TrimSpace(req.PolymarketSlugPrefix) == "" {
		missing = append(missing, "polymarket_slug_prefix")
	}
	if len(missing) > 0 {
		return domain.OpportunityReport{}, fmt.Errorf("service: missing %s: %w", strings.Join(missing, ", "), domain.ErrInvalidInput)
	}
	a := domain.CustomAsset(req.Name, req.KalshiSeries, req.PolymarketSlugPrefix, req.BinanceSymbol)
	return s.Evaluate(ctx, a), nil
}

// Evaluate resolves both venues, fetches quotes and the price to beat in
// parallel, and scores every hedge. One failing leg never aborts the other.
func (s *OpportunityService) Evaluate(ctx context.Context, a domain.Asset) domain.OpportunityReport {
	now := s.now()
	report := domain.OpportunityReport{
		Asset:         a.Symbol,
		Opportunities: []domain.Opportunity{},
		Errors:        []domain.ReportError{},
	}

	pw, perr := window.ForVenue(a.Symbol, now, s.cfg.Polymarket)
	kw, kerr := window.ForVenue(a.Symbol, now, s.cfg.Kalshi)
	report.Window = pw
	report.Polymarket.Window = pw
	report.Kalshi.Window = kw
	if perr == nil && kerr == nil && !pw.Equal(kw) {
		err := fmt.Errorf("service: polymarket %s..%s, kalshi %s..%s: %w",
			pw.OpensAt.Format(time.Kitchen), pw.ClosesAt.Format(time.Kitchen),
			kw.OpensAt.Format(time.Kitchen), kw.ClosesAt.Format(time.Kitchen),
			domain.ErrWindowMismatch)
		report.Errors = append(report.Errors, domain.NewReportError(domain.VenueKalshi, domain.StageWindow, err))
		s.logger.WarnContext(ctx, "venue windows differ, skipping evaluation",
			slog.String("asset", a.Symbol), slog.String("error", err.Error()))
		return s.Reevaluate(report)
	}

	var (
		mu      sync.Mutex
		poly    domain.PolymarketQuotes
		polyOK  bool
		markets []domain.StrikeMarket
		kalOK   bool
		ptb     float64
	)
	fail := func(venue domain.Venue, stage string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Errors = append(report.Errors, domain.NewReportError(venue, stage, err))
	}

	var g errgroup.Group
	if perr != nil {
		fail(domain.VenuePolymarket, domain.StageResolve, perr)
	} else {
		id := resolver.ResolvePolymarket(a, pw)
		report.Polymarket.Slug = id.Identifier
		report.Polymarket.URL = id.URL
		g.Go(func() error {
			q, err := s.quotes.FetchPolymarket(ctx, id)
			if err != nil {
				fail(domain.VenuePolymarket, domain.StageFetch, err)
				return nil
			}
			mu.Lock()
			poly, polyOK = q, true
			mu.Unlock()
			return nil
		})
	}

	if kerr != nil {
		fail(domain.VenueKalshi, domain.StageResolve, kerr)
	} else {
		g.Go(func() error {
			id, err := s.resolver.ResolveKalshi(ctx, a, kw)
			if err != nil {
				fail(domain.VenueKalshi, domain.StageResolve, err)
				return nil
			}
			mu.Lock()
			report.Kalshi.EventTicker = id.Identifier
			report.Kalshi.URL = id.URL
			report.Kalshi.Discovered = id.Discovered
			mu.Unlock()

			m, err := s.quotes.FetchKalshi(ctx, id)
			if err != nil {
				fail(domain.VenueKalshi, domain.StageFetch, err)
				return nil
			}
			mu.Lock()
			markets, kalOK = m, true
			mu.Unlock()
			return nil
		})
	}

	if s.prices != nil && perr == nil && a.BinanceSymbol != "" {
		g.Go(func() error {
			p, err := s.prices.PriceToBeat(ctx, a, pw)
			if err != nil {
				fail(domain.VenuePolymarket, domain.StagePriceToBeat, err)
				return nil
			}
			mu.Lock()
			ptb = p.Price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if polyOK {
		up, down := poly.Up, poly.Down
		report.Polymarket.Up = &up
		report.Polymarket.Down = &down
		report.Polymarket.UpTokenID = poly.UpTokenID
		report.Polymarket.DownTokenID = poly.DownTokenID
	}
	report.Polymarket.PriceToBeat = ptb
	if kalOK {
		report.Kalshi.Markets = markets
	}

	sort.Slice(report.Errors, func(i, j int) bool {
		if report.Errors[i].Venue != report.Errors[j].Venue {
			return report.Errors[i].Venue < report.Errors[j].Venue
		}
		return report.Errors[i].Stage < report.Errors[j].Stage
	})
	for _, e := range report.Errors {
		s.logger.DebugContext(ctx, "leg failed",
			slog.String("asset", a.Symbol),
			slog.String("venue", string(e.Venue)),
			slog.String("stage", e.Stage),
			slog.String("reason", e.Reason),
		)
	}

	return s.Reevaluate(report)
}

// Reevaluate recomputes the opportunities of a report from the quotes it
// carries and stamps it with the current time.
func (s *OpportunityService) Reevaluate(report domain.OpportunityReport) domain.OpportunityReport {
	report.GeneratedAt = s.now()
	report.Opportunities = []domain.Opportunity{}
	if report.Polymarket.Up == nil || report.Polymarket.Down == nil || len(report.Kalshi.Markets) == 0 ||
		!report.Polymarket.Window.Equal(report.Kalshi.Window) {
		return report
	}
	poly := domain.PolymarketQuotes{
		Slug:        report.Polymarket.Slug,
		Up:          *report.Polymarket.Up,
		Down:        *report.Polymarket.Down,
		UpTokenID:   report.Polymarket.UpTokenID,
		DownTokenID: report.Polymarket.DownTokenID,
	}
	pairs := arbitrage.BuildPairs(report.Window, poly, report.Kalshi.Markets, report.Polymarket.PriceToBeat, s.cfg.MaxStrikes)
	if opps := s.evaluator.Evaluate(pairs); len(opps) > 0 {
		report.Opportunities = opps
	}
	return report
}

// VenueWindow is one venue's view of the current hour.
type VenueWindow struct {
	Policy string              `json:"policy"`
	Offset int                 `json:"offset"`
	Window domain.MarketWindow `json:"window"`
}

// WindowDiagnostics explains how the identifiers of the current hour are
// derived for an asset.
type WindowDiagnostics struct {
	Asset          string      `json:"asset"`
	Now            time.Time   `json:"now"`
	Polymarket     VenueWindow `json:"polymarket"`
	Slug           string      `json:"slug"`
	SlugURL        string      `json:"slug_url"`
	Kalshi         VenueWindow `json:"kalshi"`
	EventKey       string      `json:"event_key"`
	DiscoveryDate  string      `json:"discovery_date"`
	GuessedTicker  string      `json:"guessed_ticker"`
	WindowsAligned bool        `json:"windows_aligned"`
}

// Windows reports both venues' windows and derived identifiers for asset.
// The guessed Kalshi ticker is informational only and never used to fetch.
func (s *OpportunityService) Windows(symbol string) (WindowDiagnostics, error) {
	a, err := s.Asset(symbol)
	if err != nil {
		return WindowDiagnostics{}, err
	}
	now := s.now()
	pw, err := window.ForVenue(a.Symbol, now, s.cfg.Polymarket)
	if err != nil {
		return WindowDiagnostics{}, err
	}
	kw, err := window.ForVenue(a.Symbol, now, s.cfg.Kalshi)
	if err != nil {
		return WindowDiagnostics{}, err
	}
	slug := resolver.PolymarketSlug(a, pw)
	return WindowDiagnostics{
		Asset:          a.Symbol,
		Now:            now.In(window.Eastern()),
		Polymarket:     VenueWindow{Policy: s.cfg.Polymarket.Policy.String(), Offset: s.cfg.Polymarket.Offset, Window: pw},
		Slug:           slug,
		SlugURL:        resolver.PolymarketURL(slug),
		Kalshi:         VenueWindow{Policy: s.cfg.Kalshi.Policy.String(), Offset: s.cfg.Kalshi.Offset, Window: kw},
		EventKey:       resolver.KalshiEventKey(a, kw),
		DiscoveryDate:  resolver.DiscoveryDate(kw),
		GuessedTicker:  resolver.GuessKalshiEventTicker(a, kw),
		WindowsAligned: pw.Equal(kw),
	}, nil
}
