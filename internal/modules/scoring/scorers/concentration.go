package scorers

import (
	"fmt"

	"github.com/aristath/trading-planner/internal/modules/scoring"
	"github.com/aristath/trading-planner/internal/utils"
)

// ConcentrationContext carries the slice of portfolio state the
// concentration guardrails need: position values, total value, and current
// allocation per geography group. All values in EUR; positions keyed by ISIN.
type ConcentrationContext struct {
	Positions            map[string]float64 // ISIN -> market value (EUR)
	TotalValue           float64            // Total portfolio value (EUR)
	GeographyAllocations map[string]float64 // Geography group -> current fraction (0-1)
}

// ConcentrationThresholds are the hard caps a proposed buy is checked against.
type ConcentrationThresholds struct {
	MaxPositionWeight  float64 // Maximum fraction of portfolio per position
	MaxGeographyWeight float64 // Maximum fraction of portfolio per geography group
}

// DefaultConcentrationThresholds returns the hard caps from the scoring constants.
func DefaultConcentrationThresholds() ConcentrationThresholds {
	return ConcentrationThresholds{
		MaxPositionWeight:  scoring.MaxPositionConcentration,
		MaxGeographyWeight: scoring.MaxGeographyConcentration,
	}
}

// ConcentrationResult reports whether a proposed buy passes the guardrails.
type ConcentrationResult struct {
	Passes bool
	Reason string
}

// ConcentrationScorer checks proposed buys against position and geography
// concentration caps before they become candidates.
type ConcentrationScorer struct{}

// NewConcentrationScorer creates a concentration scorer.
func NewConcentrationScorer() *ConcentrationScorer {
	return &ConcentrationScorer{}
}

// CheckConcentration simulates adding proposedValueEUR to the position
// identified by isin and reports whether the resulting position weight and
// geography-group weight stay inside the thresholds. A nil context or a
// non-positive total value passes (there is nothing to concentrate against).
func (cs *ConcentrationScorer) CheckConcentration(
	isin string,
	geography string,
	proposedValueEUR float64,
	ctx *ConcentrationContext,
	thresholds ConcentrationThresholds,
) ConcentrationResult {
	if ctx == nil || ctx.TotalValue <= 0 {
		return ConcentrationResult{Passes: true}
	}

	newTotal := ctx.TotalValue + proposedValueEUR

	currentValue := 0.0
	if ctx.Positions != nil {
		currentValue = ctx.Positions[isin]
	}
	newPositionWeight := (currentValue + proposedValueEUR) / newTotal

	if newPositionWeight > thresholds.MaxPositionWeight {
		return ConcentrationResult{
			Passes: false,
			Reason: fmt.Sprintf("position would reach %.1f%% of portfolio (max %.1f%%)",
				newPositionWeight*100, thresholds.MaxPositionWeight*100),
		}
	}

	// Geography check: the buy's value is split evenly across the security's
	// geographies, matching how allocations are aggregated elsewhere.
	geos := utils.ParseCSV(geography)
	if len(geos) > 0 && ctx.GeographyAllocations != nil {
		valuePerGeo := proposedValueEUR / float64(len(geos))
		for _, geo := range geos {
			currentFrac := ctx.GeographyAllocations[geo]
			newGeoWeight := (currentFrac*ctx.TotalValue + valuePerGeo) / newTotal
			if newGeoWeight > thresholds.MaxGeographyWeight {
				return ConcentrationResult{
					Passes: false,
					Reason: fmt.Sprintf("%s would reach %.1f%% of portfolio (max %.1f%%)",
						geo, newGeoWeight*100, thresholds.MaxGeographyWeight*100),
				}
			}
		}
	}

	return ConcentrationResult{Passes: true}
}
