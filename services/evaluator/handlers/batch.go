// Package handlers implements the replicated evaluator's HTTP surface:
// batch evaluation, the Monte Carlo and stochastic scenario modes, batch
// simulation, and health. The evaluator is stateless; everything it scores
// against arrives in the request.
package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-planner/internal/evaluation/models"
	"github.com/aristath/trading-planner/internal/evaluation/workers"
)

// MaxBatchSize bounds one evaluation request.
const MaxBatchSize = 10000

// DefaultBeamWidth is the local top-K kept when the request doesn't name one.
const DefaultBeamWidth = 10

// BatchEvaluator handles batch evaluation requests over the shared worker
// pool.
type BatchEvaluator struct {
	workerPool *workers.WorkerPool
	log        zerolog.Logger
}

// NewBatchEvaluator creates a batch evaluator backed by numWorkers
// goroutines.
func NewBatchEvaluator(numWorkers int, log zerolog.Logger) *BatchEvaluator {
	return &BatchEvaluator{
		workerPool: workers.NewWorkerPool(numWorkers),
		log:        log.With().Str("handler", "batch_evaluator").Logger(),
	}
}

// EvaluateBatch handles POST /evaluate/batch.
func (be *BatchEvaluator) EvaluateBatch(c *gin.Context) {
	var request models.BatchEvaluationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if len(request.Sequences) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No sequences provided"})
		return
	}
	if len(request.Sequences) > MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many sequences (max 10000)"})
		return
	}
	if request.EvaluationContext.TransactionCostFixed < 0 || request.EvaluationContext.TransactionCostPercent < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Transaction costs cannot be negative"})
		return
	}

	results := be.workerPool.EvaluateBatch(request.Sequences, request.EvaluationContext, nil)

	beamWidth := request.BeamWidth
	if beamWidth <= 0 {
		beamWidth = DefaultBeamWidth
	}

	be.log.Debug().
		Int("sequences", len(request.Sequences)).
		Int("beam_width", beamWidth).
		Msg("Batch evaluated")

	c.JSON(http.StatusOK, models.BatchEvaluationResponse{
		Results:        results,
		TopSequences:   localBeam(results, beamWidth),
		TotalEvaluated: len(results),
		BeamWidth:      beamWidth,
	})
}

// localBeam returns the feasible results sorted by score descending,
// truncated to beamWidth.
func localBeam(results []models.SequenceEvaluationResult, beamWidth int) []models.SequenceEvaluationResult {
	top := make([]models.SequenceEvaluationResult, 0, len(results))
	for _, r := range results {
		if r.Feasible {
			top = append(top, r)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Score > top[j].Score
	})
	if len(top) > beamWidth {
		top = top[:beamWidth]
	}
	return top
}

// SimulateBatch handles POST /simulate/batch: end states without scoring.
func (be *BatchEvaluator) SimulateBatch(c *gin.Context) {
	var request models.BatchSimulationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if len(request.Sequences) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No sequences provided"})
		return
	}
	if len(request.Sequences) > MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many sequences (max 10000)"})
		return
	}

	results := be.workerPool.SimulateBatch(request.Sequences, request.EvaluationContext)

	c.JSON(http.StatusOK, models.BatchSimulationResponse{Results: results})
}
