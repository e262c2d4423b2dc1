package postgres

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// sliceRow replays the values of an insert as a scanned row.
type sliceRow []any

func (r sliceRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r[i]))
	}
	return nil
}

func TestScanOpportunityRoundTrip(t *testing.T) {
	opens := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	want := domain.Opportunity{
		ID:           "3f0c5a8e-8d8f-4bd2-9d1c-2a0ffb1f8a11",
		Asset:        "ETH",
		Window:       domain.MarketWindow{Asset: "ETH", OpensAt: opens, ClosesAt: opens.Add(time.Hour)},
		Strategy:     domain.StrategyKalshiNoPolyUp,
		Strike:       2100,
		PriceToBeat:  2095.5,
		LegA:         domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideNo, Identifier: "KXETHD-25MAR1015-T2100", Price: 0.41, FeeUSD: 0.5},
		LegB:         domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideUp, Identifier: "ethereum-up-or-down-march-10-2pm-et", Price: 0.55, FeeUSD: 0.01},
		GrossCost:    0.96,
		Fees:         0.0051,
		NetMargin:    0.0349,
		Stake:        100,
		FeesUSD:      0.51,
		NetMarginUSD: 3.49,
		IsProfitable: true,
		QuotedAt:     opens.Add(20 * time.Minute),
	}

	got, err := scanOpportunity(sliceRow(opportunityArgs(want)))
	if err != nil {
		t.Fatalf("scanOpportunity: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestDSN(t *testing.T) {
	if got := DSN(ClientConfig{DSN: "postgres://x"}); got != "postgres://x" {
		t.Errorf("DSN override = %q", got)
	}
	got := DSN(ClientConfig{Host: "db", Database: "arb", User: "u", Password: "p"})
	if got != "postgres://u:p@db:5432/arb?sslmode=disable" {
		t.Errorf("DSN = %q", got)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_opportunities.sql" {
		t.Fatalf("names = %v", names)
	}
}
