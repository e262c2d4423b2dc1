package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

// OpportunityTitle is the notification title for a profitable hedge.
func OpportunityTitle(opp domain.Opportunity) string {
	return fmt.Sprintf("%s hedge %.2f%% net", opp.Asset, opp.NetMargin*100)
}

// OpportunityMessage renders the legs and margins of a hedge.
func OpportunityMessage(opp domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s - %s ET\n",
		opp.Window.OpensAt.Format("Jan 2 15:04"),
		opp.Window.ClosesAt.Format("15:04"))
	fmt.Fprintf(&b, "Strike: %.2f", opp.Strike)
	if opp.PriceToBeat > 0 {
		fmt.Fprintf(&b, " (price to beat %.2f)", opp.PriceToBeat)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Buy %s %s @ %.4f (%s)\n", opp.LegA.Venue, strings.ToUpper(string(opp.LegA.Side)), opp.LegA.Price, opp.LegA.Identifier)
	fmt.Fprintf(&b, "Buy %s %s @ %.4f (%s)\n", opp.LegB.Venue, strings.ToUpper(string(opp.LegB.Side)), opp.LegB.Price, opp.LegB.Identifier)
	fmt.Fprintf(&b, "Gross %.4f, fees $%.2f, net $%.2f on $%.0f", opp.GrossCost, opp.FeesUSD, opp.NetMarginUSD, opp.Stake)
	return b.String()
}
