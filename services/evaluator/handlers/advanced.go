package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-planner/internal/evaluation"
	"github.com/aristath/trading-planner/internal/evaluation/models"
)

// MaxMonteCarloPaths bounds one Monte Carlo request.
const MaxMonteCarloPaths = 500

// AdvancedEvaluator handles the scenario-mode endpoints.
type AdvancedEvaluator struct {
	log zerolog.Logger
}

// NewAdvancedEvaluator creates the scenario-mode handler.
func NewAdvancedEvaluator(log zerolog.Logger) *AdvancedEvaluator {
	return &AdvancedEvaluator{
		log: log.With().Str("handler", "advanced_evaluator").Logger(),
	}
}

// EvaluateMonteCarlo handles POST /evaluate/monte-carlo: N sampled price
// paths per sequence, scored and summarised into a downside-weighted blend.
func (ae *AdvancedEvaluator) EvaluateMonteCarlo(c *gin.Context) {
	var request models.MonteCarloRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if len(request.Sequence) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No sequence provided"})
		return
	}
	if request.Paths > MaxMonteCarloPaths {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many paths (max 500)"})
		return
	}

	result := evaluation.EvaluateMonteCarlo(request)

	ae.log.Debug().
		Int("paths", result.PathsEvaluated).
		Float64("final_score", result.FinalScore).
		Msg("Monte Carlo evaluation complete")

	c.JSON(http.StatusOK, result)
}

// EvaluateStochastic handles POST /evaluate/stochastic: fixed global price
// shifts per sequence, reduced to a downside-weighted score.
func (ae *AdvancedEvaluator) EvaluateStochastic(c *gin.Context) {
	var request models.StochasticRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if len(request.Sequence) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No sequence provided"})
		return
	}

	result := evaluation.EvaluateStochastic(request)

	ae.log.Debug().
		Int("scenarios", result.ScenariosEvaluated).
		Float64("weighted_score", result.WeightedScore).
		Msg("Stochastic evaluation complete")

	c.JSON(http.StatusOK, result)
}
