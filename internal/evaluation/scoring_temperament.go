package evaluation

import (
	"github.com/aristath/trading-planner/internal/evaluation/models"
	"github.com/aristath/trading-planner/internal/modules/settings"
)

// ScorerConfig bridges the settings module's temperament-adjusted
// parameters into the shapes the scorer uses. It exists so the evaluation
// core never imports settings types below this one file.
type ScorerConfig struct {
	Weights       settings.EvaluationWeights
	ScoringParams settings.ScoringParams

	TransactionCostFixed   float64
	TransactionCostPercent float64
	CostPenaltyFactor      float64
}

// NewScorerConfig derives the scorer config from the settings service,
// respecting the temperament sliders.
func NewScorerConfig(settingsService *settings.Service) ScorerConfig {
	return ScorerConfig{
		Weights:       settingsService.GetAdjustedEvaluationWeights(),
		ScoringParams: settingsService.GetAdjustedScoringParams(),
	}
}

// NewDefaultScorerConfig returns the config with the scorer's own default
// weights and thresholds, for callers without a settings service.
func NewDefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights: settings.EvaluationWeights{
			PortfolioQuality:         WeightPortfolioQuality,
			DiversificationAlignment: WeightDiversificationAlignment,
			RiskAdjustedMetrics:      WeightRiskAdjustedMetrics,
			EndStateImprovement:      WeightEndStateImprovement,
		},
		ScoringParams: settings.ScoringParams{
			DeviationScale:       DeviationScale,
			RegimeBullThreshold:  0.30,
			RegimeBearThreshold:  -0.30,
			VolatilityExcellent:  0.15,
			VolatilityGood:       0.25,
			VolatilityAcceptable: 0.40,
			DrawdownExcellent:    0.10,
			DrawdownGood:         0.20,
			DrawdownAcceptable:   0.30,
			SharpeExcellent:      2.0,
			SharpeGood:           1.0,
			SharpeAcceptable:     0.5,
		},
	}
}

// ToScoringConfig projects the config onto the narrow struct the core
// scorer consumes.
func (c ScorerConfig) ToScoringConfig() *models.ScoringConfig {
	return &models.ScoringConfig{
		WeightPortfolioQuality:         c.Weights.PortfolioQuality,
		WeightDiversificationAlignment: c.Weights.DiversificationAlignment,
		WeightRiskAdjustedMetrics:      c.Weights.RiskAdjustedMetrics,
		RegimeBullThreshold:            c.ScoringParams.RegimeBullThreshold,
		RegimeBearThreshold:            c.ScoringParams.RegimeBearThreshold,
	}
}
