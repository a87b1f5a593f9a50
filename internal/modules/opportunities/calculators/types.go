// Package calculators holds the opportunity calculators: each one scans an
// OpportunityContext for a single category of trade (profit taking,
// averaging down, rebalancing, score-driven buys, weight gaps) and emits
// prioritised action candidates.
package calculators

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/scoring/scorers"
	"github.com/aristath/trading-planner/internal/modules/universe"
)

// TagFilter narrows candidate sets by security tags before the calculators
// run. Implementations may consult market regime.
type TagFilter interface {
	GetOpportunityCandidates(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) ([]string, error)
	GetSellCandidates(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) ([]string, error)
	IsMarketVolatile(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) bool
}

// SecurityRepository is the tag lookup surface calculators use directly.
type SecurityRepository interface {
	GetTagsForSecurity(symbol string) ([]string, error)
	GetByTags(tags []string) ([]universe.Security, error)
}

// Shared scorer state for concentration checks. Thresholds are fixed for
// the process lifetime.
var (
	concentrationScorer            = scorers.NewConcentrationScorer()
	defaultConcentrationThresholds = scorers.DefaultConcentrationThresholds()
)

// BuildConcentrationContext projects the opportunity context onto the
// scorer's concentration view (ISIN -> market value, plus geography splits).
func BuildConcentrationContext(ctx *domain.OpportunityContext) *scorers.ConcentrationContext {
	if ctx == nil {
		return nil
	}
	positions := make(map[string]float64, len(ctx.EnrichedPositions))
	for _, pos := range ctx.EnrichedPositions {
		if pos.ISIN != "" {
			positions[pos.ISIN] = pos.MarketValueEUR
		}
	}
	return &scorers.ConcentrationContext{
		Positions:            positions,
		TotalValue:           ctx.TotalPortfolioValueEUR,
		GeographyAllocations: ctx.GeographyAllocations,
	}
}

// CheckConcentrationGuardrail reports whether a proposed buy of
// proposedValueEUR stays inside the position and geography concentration
// limits. When it fails, reason names the violated limit.
func CheckConcentrationGuardrail(isin, geography string, proposedValueEUR float64, ctx *domain.OpportunityContext) (bool, string) {
	result := concentrationScorer.CheckConcentration(
		isin, geography, proposedValueEUR,
		BuildConcentrationContext(ctx), defaultConcentrationThresholds,
	)
	return result.Passes, result.Reason
}
