package domain

import "context"

// OpportunityStore persists profitable opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, asset string, limit int) ([]Opportunity, error)
}
