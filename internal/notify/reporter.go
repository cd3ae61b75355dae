package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"arbscout/internal/model"
)

// OpportunityTitle heads every opportunity alert.
const OpportunityTitle = "💰 Arbitrage Opportunity!"

// Reporter turns scan results into alerts, one message per opportunity.
type Reporter struct {
	notifier *Notifier
}

func NewReporter(notifier *Notifier) *Reporter {
	return &Reporter{notifier: notifier}
}

// Report sends an alert for each opportunity, best first. Every opportunity
// is attempted even after a failure.
func (r *Reporter) Report(ctx context.Context, opps []model.Opportunity) error {
	var errs []error
	for _, opp := range opps {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := r.notifier.NotifyOpportunity(ctx, opp); err != nil {
			errs = append(errs, fmt.Errorf("%s %s->%s: %w", opp.Symbol, opp.BuyExchange, opp.SellExchange, err))
		}
	}
	return errors.Join(errs...)
}

// FormatOpportunity renders the alert body of opp.
func FormatOpportunity(opp model.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Buy on %s at %.4f\n", opp.BuyExchange, opp.BuyPrice)
	fmt.Fprintf(&b, "Sell on %s at %.4f\n", opp.SellExchange, opp.SellPrice)
	fmt.Fprintf(&b, "Profit: %.2f %s (%.2f%%)\n", opp.NetProfit, opp.Symbol.Quote, opp.NetProfitPct)
	fmt.Fprintf(&b, "Pair: %s", opp.Symbol)
	return b.String()
}
