package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, asset, window_opens_at, window_closes_at, strategy, strike, price_to_beat,
	leg_a_venue, leg_a_side, leg_a_identifier, leg_a_price, leg_a_fee_usd,
	leg_b_venue, leg_b_side, leg_b_identifier, leg_b_price, leg_b_fee_usd,
	gross_cost, fees, net_margin, stake, fees_usd, net_margin_usd, is_profitable, quoted_at`

// Insert records an opportunity. A second insert of the same hedge in the
// same window is ignored.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `INSERT INTO opportunities (` + opportunityCols + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17,
		$18, $19, $20, $21, $22, $23, $24, $25
	) ON CONFLICT (asset, window_opens_at, strategy, leg_a_identifier) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, opportunityArgs(opp)...)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the newest opportunities, for one asset or for all when
// asset is empty.
func (s *OpportunityStore) ListRecent(ctx context.Context, asset string, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + opportunityCols + ` FROM opportunities
		WHERE ($1 = '' OR asset = $1)
		ORDER BY recorded_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, asset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	return out, nil
}

func opportunityArgs(o domain.Opportunity) []any {
	return []any{
		o.ID, o.Asset, o.Window.OpensAt, o.Window.ClosesAt, string(o.Strategy), o.Strike, o.PriceToBeat,
		string(o.LegA.Venue), string(o.LegA.Side), o.LegA.Identifier, o.LegA.Price, o.LegA.FeeUSD,
		string(o.LegB.Venue), string(o.LegB.Side), o.LegB.Identifier, o.LegB.Price, o.LegB.FeeUSD,
		o.GrossCost, o.Fees, o.NetMargin, o.Stake, o.FeesUSD, o.NetMarginUSD, o.IsProfitable, o.QuotedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (domain.Opportunity, error) {
	var (
		o                            domain.Opportunity
		strategy                     string
		aVenue, aSide, bVenue, bSide string
	)
	err := row.Scan(
		&o.ID, &o.Asset, &o.Window.OpensAt, &o.Window.ClosesAt, &strategy, &o.Strike, &o.PriceToBeat,
		&aVenue, &aSide, &o.LegA.Identifier, &o.LegA.Price, &o.LegA.FeeUSD,
		&bVenue, &bSide, &o.LegB.Identifier, &o.LegB.Price, &o.LegB.FeeUSD,
		&o.GrossCost, &o.Fees, &o.NetMargin, &o.Stake, &o.FeesUSD, &o.NetMarginUSD, &o.IsProfitable, &o.QuotedAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	o.Window.Asset = o.Asset
	o.Strategy = domain.Strategy(strategy)
	o.LegA.Venue, o.LegA.Side = domain.Venue(aVenue), domain.Side(aSide)
	o.LegB.Venue, o.LegB.Side = domain.Venue(bVenue), domain.Side(bSide)
	return o, nil
}
