// Package workers provides the parallel worker pool that fans a batch of
// sequences out across goroutines for evaluation or simulation. It is used
// both in-process (internal/modules/planning/evaluation) and inside the
// standalone replicated evaluator service, so the two paths share one
// concurrency strategy as well as one scoring core.
package workers

import (
	"math"
	"sync"
	"time"

	"github.com/aristath/trading-planner/internal/evaluation"
	"github.com/aristath/trading-planner/internal/evaluation/models"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
)

// WorkerPool manages a pool of worker goroutines for parallel sequence
// evaluation and simulation.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of
// workers. A non-positive count defaults to 10.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	return &WorkerPool{numWorkers: numWorkers}
}

func (wp *WorkerPool) workerCount(numJobs int) int {
	if numJobs < wp.numWorkers {
		return numJobs
	}
	return wp.numWorkers
}

type evalJob struct {
	index    int
	sequence []models.ActionCandidate
}

type evalResult struct {
	index  int
	result models.SequenceEvaluationResult
}

// EvaluateBatch evaluates multiple sequences in parallel, preserving input
// order in the returned slice. callback, if non-nil, is invoked once per
// completed sequence with a plain (current, total, message) progress tuple.
func (wp *WorkerPool) EvaluateBatch(
	sequences [][]models.ActionCandidate,
	context models.EvaluationContext,
	callback progress.Callback,
) []models.SequenceEvaluationResult {
	numSequences := len(sequences)
	if numSequences == 0 {
		return []models.SequenceEvaluationResult{}
	}

	jobs := make(chan evalJob, numSequences)
	results := make(chan evalResult, numSequences)

	var wg sync.WaitGroup
	for i := 0; i < wp.workerCount(numSequences); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- evalResult{index: job.index, result: evaluation.EvaluateSequence(job.sequence, context)}
			}
		}()
	}

	for idx, sequence := range sequences {
		jobs <- evalJob{index: idx, sequence: sequence}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]models.SequenceEvaluationResult, numSequences)
	completed := 0
	for r := range results {
		out[r.index] = r.result
		completed++
		progress.Call(callback, completed, numSequences, "Evaluating sequence")
	}

	return out
}

// EvaluateBatchDetailed is EvaluateBatch with richer progress reporting:
// each completed sequence emits a progress.Update whose Details carry
// running feasible/infeasible counts, the best score seen so far,
// elapsed wall-clock time and the throughput in sequences per second, on
// top of the current/total/phase fields.
func (wp *WorkerPool) EvaluateBatchDetailed(
	sequences [][]models.ActionCandidate,
	context models.EvaluationContext,
	callback progress.DetailedCallback,
) []models.SequenceEvaluationResult {
	numSequences := len(sequences)
	if numSequences == 0 {
		return []models.SequenceEvaluationResult{}
	}

	start := time.Now()

	jobs := make(chan evalJob, numSequences)
	results := make(chan evalResult, numSequences)

	var wg sync.WaitGroup
	for i := 0; i < wp.workerCount(numSequences); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- evalResult{index: job.index, result: evaluation.EvaluateSequence(job.sequence, context)}
			}
		}()
	}

	for idx, sequence := range sequences {
		jobs <- evalJob{index: idx, sequence: sequence}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]models.SequenceEvaluationResult, numSequences)
	completed := 0
	feasibleCount := 0
	infeasibleCount := 0
	bestScore := 0.0

	for r := range results {
		out[r.index] = r.result
		completed++

		if r.result.Feasible {
			feasibleCount++
			if r.result.Score > bestScore {
				bestScore = r.result.Score
			}
		} else {
			infeasibleCount++
		}

		progress.CallDetailed(callback, progress.Update{
			Phase:   "sequence_evaluation",
			Current: completed,
			Total:   numSequences,
			Message: "Evaluating sequence",
			Details: map[string]any{
				"workers_active":   wp.workerCount(numSequences),
				"feasible_count":   feasibleCount,
				"infeasible_count": infeasibleCount,
				"best_score":       bestScore,
				"elapsed_ms":       time.Since(start).Milliseconds(),
				"sequences_per_second": float64(completed) / math.Max(time.Since(start).Seconds(), 1e-9),
			},
		})
	}

	return out
}

type simJob struct {
	index    int
	sequence []models.ActionCandidate
}

type simResult struct {
	index  int
	result models.SimulationResult
}

// SimulateBatch simulates multiple sequences in parallel without scoring
// them, used to pre-fetch end states (e.g. for metrics warm-up or cache
// priming) ahead of a scoring pass.
func (wp *WorkerPool) SimulateBatch(
	sequences [][]models.ActionCandidate,
	context models.EvaluationContext,
) []models.SimulationResult {
	numSequences := len(sequences)
	if numSequences == 0 {
		return []models.SimulationResult{}
	}

	jobs := make(chan simJob, numSequences)
	results := make(chan simResult, numSequences)

	var wg sync.WaitGroup
	for i := 0; i < wp.workerCount(numSequences); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				feasible := evaluation.CheckSequenceFeasibility(job.sequence, context.AvailableCashEUR, context.PortfolioContext)
				if !feasible {
					results <- simResult{index: job.index, result: models.SimulationResult{
						Sequence:     job.sequence,
						EndPortfolio: context.PortfolioContext,
						EndCashEUR:   context.AvailableCashEUR,
						Feasible:     false,
					}}
					continue
				}

				endPortfolio, endCash := evaluation.SimulateSequenceWithContext(job.sequence, context)
				results <- simResult{index: job.index, result: models.SimulationResult{
					Sequence:     job.sequence,
					EndPortfolio: endPortfolio,
					EndCashEUR:   endCash,
					Feasible:     true,
				}}
			}
		}()
	}

	for idx, sequence := range sequences {
		jobs <- simJob{index: idx, sequence: sequence}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]models.SimulationResult, numSequences)
	for r := range results {
		out[r.index] = r.result
	}

	return out
}
