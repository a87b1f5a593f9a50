package calculators

import (
	"math"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
)

// Sell sizing bounds: never recommend liquidating a position outright, and
// never bother with slivers.
const (
	minSellFraction = 0.10
	maxSellFraction = 0.80
)

// sellAssessment is the shared sell-side judgement both sell calculators
// use: whether the position is protected, and how quality shifts its
// priority.
type sellAssessment struct {
	Protected        bool
	ProtectionReason string
	QualityScore     float64
	// PriorityFactor scales a sell's base priority: low-quality positions
	// are better sale candidates than high-quality ones.
	PriorityFactor  float64
	HasNegativeTags bool
}

// assessSellQuality judges one held position as a sale candidate. High
// quality and stability protect a position; negative tags and weak scores
// push it up the sell list.
func assessSellQuality(ctx *domain.OpportunityContext, isin string, securityTags []string) sellAssessment {
	quality := scoreAt(ctx.SecurityScores, isin)
	stability := scoreAt(ctx.StabilityScores, isin)

	assessment := sellAssessment{
		QualityScore:   quality,
		PriorityFactor: 1.0,
	}

	for _, tag := range []string{"value-trap", "underperforming", "stagnant", "unsustainable-gains", "bubble-risk"} {
		if contains(securityTags, tag) {
			assessment.HasNegativeTags = true
			break
		}
	}

	// Protected: demonstrably high quality with no negative signal. These
	// are the positions the portfolio is built around.
	if !assessment.HasNegativeTags && quality >= 0.80 && (stability == 0 || stability >= 0.6) {
		assessment.Protected = true
		assessment.ProtectionReason = "protected high-quality position"
		return assessment
	}

	// Priority scales inversely with quality: unknown quality is neutral,
	// poor quality up to +50%, excellent quality down to -40%.
	switch {
	case quality == 0:
		assessment.PriorityFactor = 1.0
	case quality < 0.4:
		assessment.PriorityFactor = 1.5
	case quality < 0.6:
		assessment.PriorityFactor = 1.2
	case quality < 0.8:
		assessment.PriorityFactor = 1.0
	default:
		assessment.PriorityFactor = 0.6
	}

	if assessment.HasNegativeTags {
		assessment.PriorityFactor *= 1.2
	}
	if stability > 0 && stability < 0.4 {
		assessment.PriorityFactor *= 1.15
	}

	return assessment
}

// sellQuantity sizes a sell: the requested fraction of the position,
// clamped into [minSellFraction, maxSellFraction], then rounded to lots.
// Returns 0 when no valid quantity survives.
func sellQuantity(positionQuantity float64, fraction float64, minLot int) int {
	if positionQuantity <= 0 {
		return 0
	}

	f := math.Max(minSellFraction, math.Min(maxSellFraction, fraction))
	quantity := int(positionQuantity * f)
	if quantity < 1 {
		quantity = 1
	}
	if float64(quantity) > positionQuantity {
		quantity = int(positionQuantity)
	}

	return RoundToLotSize(quantity, minLot)
}
