package arbitrage

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// FeeModel selects how a venue charges fees.
type FeeModel int

const (
	// FeeFlat charges a percentage of the dollars committed to the hedge.
	FeeFlat FeeModel = iota
	// FeeNetWinnings charges a percentage of what the leg wins over its cost.
	FeeNetWinnings
)

func (m FeeModel) String() string {
	switch m {
	case FeeFlat:
		return "flat"
	case FeeNetWinnings:
		return "net_winnings"
	default:
		return fmt.Sprintf("fee_model(%d)", int(m))
	}
}

// ParseFeeModel parses a configuration fee model name.
func ParseFeeModel(s string) (FeeModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat", "":
		return FeeFlat, nil
	case "net_winnings", "net-winnings", "winnings":
		return FeeNetWinnings, nil
	}
	return 0, fmt.Errorf("arbitrage: unknown fee model %q", s)
}

// FeeSchedule is one venue's fee model and rate (0.007 = 0.7%).
type FeeSchedule struct {
	Model FeeModel
	Rate  float64
}

// FeeTable maps each venue to its fee schedule. Venues absent from the table
// charge nothing.
type FeeTable map[domain.Venue]FeeSchedule

// LegFee returns the fee in dollars for one leg of a hedge with the given
// stake. For net-winnings venues the hedge buys stake/grossCost contracts of
// each leg, so the leg pays out that many dollars on a win and cost
// stake*legPrice/grossCost.
func (s FeeSchedule) LegFee(stake, legPrice, grossCost float64) float64 {
	if s.Rate == 0 || stake <= 0 {
		return 0
	}
	switch s.Model {
	case FeeNetWinnings:
		if grossCost <= 0 {
			return 0
		}
		payout := stake / grossCost
		legStake := stake * legPrice / grossCost
		return s.Rate * (payout - legStake)
	default:
		return s.Rate * stake
	}
}
