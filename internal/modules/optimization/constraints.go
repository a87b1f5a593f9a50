package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/trading-planner/internal/modules/allocation"
	"github.com/aristath/trading-planner/internal/utils"
	"github.com/rs/zerolog"
)

// Hard caps and tolerance bands for the weight-bound calculation.
const (
	MaxConcentration          = 0.20 // Per-security ceiling
	MaxGeographyConcentration = 0.40 // Per geography group
	MaxSectorConcentration    = 0.30 // Per industry group
	GeoAllocationTolerance    = 0.05 // Band around geography targets
	IndAllocationTolerance    = 0.05 // Band around industry targets

	// combinedLowerBoundCeiling caps the sum of all group lower bounds;
	// above it they scale down proportionally so the solver keeps room to
	// move.
	combinedLowerBoundCeiling = 0.70
)

// ConstraintsManager translates the business rules into per-security weight
// bounds and group constraints the solvers honour.
type ConstraintsManager struct {
	maxConcentration float64
	geoTolerance     float64
	indTolerance     float64
	kellySizer       *KellyPositionSizer // Optional upper-bound tightening
	log              zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager.
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		maxConcentration: MaxConcentration,
		geoTolerance:     GeoAllocationTolerance,
		indTolerance:     IndAllocationTolerance,
		log:              log.With().Str("component", "constraints").Logger(),
	}
}

// SetKellySizer enables Kelly-optimal position sizing as an additional
// upper bound.
func (cm *ConstraintsManager) SetKellySizer(kellySizer *KellyPositionSizer) {
	cm.kellySizer = kellySizer
}

// BuildConstraints assembles the full constraint set for one optimisation
// run. All maps are ISIN-keyed.
func (cm *ConstraintsManager) BuildConstraints(
	securities []Security,
	positions map[string]Position,
	geographyTargets map[string]float64,
	industryTargets map[string]float64,
	portfolioValue float64,
	currentPrices map[string]float64,
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	isins []string,
	regimeScore float64,
) (Constraints, error) {
	minWeights := make(map[string]float64, len(securities))
	maxWeights := make(map[string]float64, len(securities))
	boundISINs := make([]string, 0, len(securities))

	for _, security := range securities {
		lower, upper := cm.weightBounds(security, positions, portfolioValue, currentPrices, expectedReturns, covMatrix, isins, regimeScore)
		boundISINs = append(boundISINs, security.ISIN)
		minWeights[security.ISIN] = lower
		maxWeights[security.ISIN] = upper
	}

	geoCons, indCons := cm.buildSectorConstraints(securities, geographyTargets, industryTargets)
	geoCons, indCons = cm.scaleConstraints(geoCons, indCons)

	return Constraints{
		ISINs:             boundISINs,
		MinWeights:        minWeights,
		MaxWeights:        maxWeights,
		SectorConstraints: append(geoCons, indCons...),
	}, nil
}

// weightBounds derives one security's (lower, upper) weight interval from
// the rule chain. Per-symbol targets replace the default bounds; the rules
// after them only tighten. A contradiction collapses both bounds onto the
// current weight.
func (cm *ConstraintsManager) weightBounds(
	security Security,
	positions map[string]Position,
	portfolioValue float64,
	currentPrices map[string]float64,
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	isins []string,
	regimeScore float64,
) (float64, float64) {
	position, held := positions[security.ISIN]
	currentWeight := 0.0
	if held && portfolioValue > 0 {
		currentWeight = position.ValueEUR / portfolioValue
	}

	lower, upper := 0.0, cm.maxConcentration

	// Kelly sizing, when enabled, tightens the upper bound to the
	// Kelly-optimal fraction (still inside the hard cap).
	if cm.kellySizer != nil && expectedReturns != nil && covMatrix != nil && len(isins) > 0 {
		if kellySize, err := cm.kellySizer.CalculateOptimalSizeForISIN(
			security.ISIN, expectedReturns, covMatrix, isins, 0.5, regimeScore); err == nil && kellySize > 0 {
			upper = math.Min(upper, kellySize)
		}
	}

	// Per-symbol portfolio targets (configured as percentages) override the
	// defaults.
	if security.MinPortfolioTarget > 0 {
		lower = security.MinPortfolioTarget / 100.0
	}
	if security.MaxPortfolioTarget > 0 {
		upper = security.MaxPortfolioTarget / 100.0
	}

	// Trade permissions re-tighten whatever the targets allowed: no buying
	// means the weight can't rise, no selling means it can't fall.
	if !security.AllowBuy {
		upper = math.Min(upper, currentWeight)
	}
	if !security.AllowSell {
		lower = math.Max(lower, currentWeight)
	}

	// Lot handling: a holding at or under one lot is all-or-nothing, so it
	// locks at its current weight; otherwise the smallest sellable-to size
	// (one lot's value) floors the weight, unless that would cross the
	// upper bound, in which case the lot constraint yields.
	price := currentPrices[security.ISIN]
	if held && security.MinLot > 0 && price > 0 && portfolioValue > 0 {
		if position.Quantity <= security.MinLot {
			lower = math.Max(lower, currentWeight)
		} else if lotWeight := security.MinLot * price / portfolioValue; lotWeight <= upper {
			lower = math.Max(lower, lotWeight)
		}
	}

	if lower > upper {
		cm.log.Warn().
			Str("isin", security.ISIN).
			Str("symbol", security.Symbol).
			Float64("lower", lower).
			Float64("upper", upper).
			Msg("Conflicting bounds, clamping to current weight")
		return currentWeight, currentWeight
	}

	return lower, upper
}

// buildSectorConstraints groups the securities by geography and industry
// (comma-separated values put a security in several groups; missing values
// bucket to OTHER) and bounds each targeted group inside its tolerance
// band, capped by the hard group limits.
func (cm *ConstraintsManager) buildSectorConstraints(
	securities []Security,
	geographyTargets map[string]float64,
	industryTargets map[string]float64,
) ([]SectorConstraint, []SectorConstraint) {
	geoGroups := groupByAttribute(securities, func(s Security) string { return s.Geography })
	indGroups := groupByAttribute(securities, func(s Security) string { return s.Industry })

	// Targets are normalised over the groups that actually hold securities
	// before any bounds come off them; targets for empty groups drop out.
	geoTargets := allocation.NormalizeWeights(activeTargets(geographyTargets, geoGroups))
	indTargets := allocation.NormalizeWeights(activeTargets(industryTargets, indGroups))

	geoCons := cm.groupConstraints(geoGroups, geoTargets, cm.geoTolerance, MaxGeographyConcentration)

	// With only one or two targeted industry groups, the hard cap relaxes:
	// a single group may carry 70%, two groups 50% each.
	indCap := MaxSectorConcentration
	switch countTargeted(indGroups, indTargets) {
	case 1:
		indCap = 0.70
	case 2:
		indCap = 0.50
	}
	indCons := cm.groupConstraints(indGroups, indTargets, cm.indTolerance, indCap)

	// Geography upper bounds summing past 100% scale down together.
	if total := upperBoundSum(geoCons); total > 1.0 {
		cm.log.Warn().Float64("sum", total).Msg("Geography upper bounds exceed 100%, scaling down")
		scaleUpperBounds(geoCons, 1.0/total)
	}

	return geoCons, indCons
}

// groupConstraints builds one SectorConstraint per targeted group:
// (max(0, t-tol), min(1, t+tol)) capped at the hard limit.
func (cm *ConstraintsManager) groupConstraints(
	groups map[string][]string,
	targets map[string]float64,
	tolerance, hardCap float64,
) []SectorConstraint {
	var constraints []SectorConstraint
	for group, isins := range groups {
		target := targets[group]
		if target <= 0 {
			continue
		}

		mapper := make(map[string]string, len(isins))
		for _, isin := range isins {
			mapper[isin] = group
		}

		constraints = append(constraints, SectorConstraint{
			SectorMapper: mapper,
			SectorLower:  map[string]float64{group: math.Max(0, target-tolerance)},
			SectorUpper:  map[string]float64{group: math.Min(math.Min(1, target+tolerance), hardCap)},
		})
	}
	return constraints
}

// scaleConstraints runs after normalisation: when the combined group lower
// bounds exceed the ceiling, both dimensions scale down proportionally so
// the sum lands exactly on it.
func (cm *ConstraintsManager) scaleConstraints(
	geoCons []SectorConstraint,
	indCons []SectorConstraint,
) ([]SectorConstraint, []SectorConstraint) {
	total := lowerBoundSum(geoCons) + lowerBoundSum(indCons)
	if total <= combinedLowerBoundCeiling {
		return geoCons, indCons
	}

	cm.log.Warn().
		Float64("total_lower_bounds", total).
		Msg("Combined group lower bounds exceed ceiling, scaling down")

	factor := combinedLowerBoundCeiling / total
	scaleLowerBounds(geoCons, factor)
	scaleLowerBounds(indCons, factor)
	return geoCons, indCons
}

// ValidateConstraints checks that the bounds admit any solution at all.
func (cm *ConstraintsManager) ValidateConstraints(constraints Constraints) error {
	totalMin := 0.0
	for _, isin := range constraints.ISINs {
		lower := constraints.MinWeights[isin]
		if lower > constraints.MaxWeights[isin] {
			return fmt.Errorf("security %s has invalid bounds: lower=%.4f > upper=%.4f",
				isin, lower, constraints.MaxWeights[isin])
		}
		totalMin += lower
	}
	if totalMin > 1.0 {
		return fmt.Errorf("total minimum weights %.2f%% exceed 100%%", totalMin*100)
	}
	return nil
}

// groupByAttribute maps each group name to the ISINs whose (possibly
// comma-separated) attribute includes it; empty attributes bucket to OTHER.
func groupByAttribute(securities []Security, attribute func(Security) string) map[string][]string {
	groups := make(map[string][]string)
	for _, security := range securities {
		values := utils.ParseCSV(attribute(security))
		if len(values) == 0 {
			values = []string{"OTHER"}
		}
		for _, value := range values {
			groups[value] = append(groups[value], security.ISIN)
		}
	}
	return groups
}

// activeTargets keeps only the targets whose group holds at least one
// security.
func activeTargets(targets map[string]float64, groups map[string][]string) map[string]float64 {
	out := make(map[string]float64)
	for group, target := range targets {
		if len(groups[group]) > 0 {
			out[group] = target
		}
	}
	return out
}

// countTargeted counts the groups that both hold securities and carry a
// positive target.
func countTargeted(groups map[string][]string, targets map[string]float64) int {
	n := 0
	for group := range groups {
		if targets[group] > 0 {
			n++
		}
	}
	return n
}

func lowerBoundSum(constraints []SectorConstraint) float64 {
	total := 0.0
	for _, c := range constraints {
		for _, lower := range c.SectorLower {
			total += lower
		}
	}
	return total
}

func upperBoundSum(constraints []SectorConstraint) float64 {
	total := 0.0
	for _, c := range constraints {
		for _, upper := range c.SectorUpper {
			total += upper
		}
	}
	return total
}

func scaleLowerBounds(constraints []SectorConstraint, factor float64) {
	for i := range constraints {
		for group, lower := range constraints[i].SectorLower {
			constraints[i].SectorLower[group] = math.Min(lower*factor, constraints[i].SectorUpper[group])
		}
	}
}

func scaleUpperBounds(constraints []SectorConstraint, factor float64) {
	for i := range constraints {
		for group, upper := range constraints[i].SectorUpper {
			constraints[i].SectorUpper[group] = math.Max(upper*factor, constraints[i].SectorLower[group])
		}
	}
}
