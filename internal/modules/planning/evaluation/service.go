// Package evaluation bridges the planning pipeline to the core evaluation
// engine: it converts planning-domain sequences into evaluator models, runs
// them through the shared worker pool under the configured scenario mode,
// and returns one result per sequence. The global beam is kept by the
// planner package.
package evaluation

import (
	"context"
	"fmt"
	"sort"
	"time"

	coreeval "github.com/aristath/trading-planner/internal/evaluation"
	"github.com/aristath/trading-planner/internal/evaluation/models"
	"github.com/aristath/trading-planner/internal/evaluation/workers"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
	"github.com/rs/zerolog"
)

// Service evaluates sequence batches in-process via the shared worker pool.
type Service struct {
	workerPool    *workers.WorkerPool
	scoringConfig *models.ScoringConfig
	log           zerolog.Logger
}

// NewService creates an evaluation service backed by numWorkers goroutines.
func NewService(numWorkers int, log zerolog.Logger) *Service {
	return &Service{
		workerPool: workers.NewWorkerPool(numWorkers),
		log:        log.With().Str("component", "evaluation_service").Logger(),
	}
}

// SetScoringConfig installs temperament-adjusted scoring parameters. A nil
// config keeps the scorer's defaults.
func (s *Service) SetScoringConfig(config *models.ScoringConfig) {
	s.scoringConfig = config
}

// BatchEvaluate evaluates a batch of sequences and returns one result per
// sequence. The scenario mode comes from config: Monte Carlo, stochastic
// shifts, or deterministic (the default).
func (s *Service) BatchEvaluate(
	ctx context.Context,
	seqs []domain.ActionSequence,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
	progressCallback progress.Callback,
) ([]domain.EvaluationResult, error) {
	return s.evaluate(ctx, seqs, portfolioHash, config, opportunityCtx, progressCallback, nil)
}

// BatchEvaluateDetailed is BatchEvaluate with structured progress updates.
func (s *Service) BatchEvaluateDetailed(
	ctx context.Context,
	seqs []domain.ActionSequence,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
	detailedCallback progress.DetailedCallback,
) ([]domain.EvaluationResult, error) {
	return s.evaluate(ctx, seqs, portfolioHash, config, opportunityCtx, nil, detailedCallback)
}

func (s *Service) evaluate(
	ctx context.Context,
	seqs []domain.ActionSequence,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
	progressCallback progress.Callback,
	detailedCallback progress.DetailedCallback,
) ([]domain.EvaluationResult, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("no sequences to evaluate")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Priority sorting: heavier sequences first, so a budget-constrained
	// evaluator scores the most promising work before any cutoff.
	ordered := seqs
	if config != nil && config.EnablePrioritySorting {
		ordered = make([]domain.ActionSequence, len(seqs))
		copy(ordered, seqs)
		sort.SliceStable(ordered, func(i, j int) bool {
			return sequencePrioritySum(ordered[i]) > sequencePrioritySum(ordered[j])
		})
	}

	evalContext := BuildEvaluationContext(config, opportunityCtx)
	if s.scoringConfig != nil {
		evalContext.ScoringConfig = s.scoringConfig
	}
	evalSequences := make([][]models.ActionCandidate, len(ordered))
	for i, seq := range ordered {
		evalSequences[i] = ToEvaluationActions(seq.Actions)
	}

	s.log.Debug().
		Int("sequence_count", len(ordered)).
		Str("portfolio_hash", portfolioHash).
		Msg("Starting batch evaluation")

	startTime := time.Now()
	var results []models.SequenceEvaluationResult
	if detailedCallback != nil {
		results = s.workerPool.EvaluateBatchDetailed(evalSequences, evalContext, detailedCallback)
	} else {
		results = s.workerPool.EvaluateBatch(evalSequences, evalContext, progressCallback)
	}

	// Scenario overlay: re-score each feasible sequence under the
	// configured scenario mode, replacing the deterministic score with the
	// downside-weighted blend. Deterministic mode skips this entirely.
	mode := scenarioMode(config)
	if mode != scenarioDeterministic {
		s.applyScenarioScores(mode, config, ordered, evalContext, results)
	}

	elapsed := time.Since(startTime)
	s.log.Info().
		Int("sequence_count", len(ordered)).
		Int("result_count", len(results)).
		Str("scenario_mode", string(mode)).
		Float64("elapsed_seconds", elapsed.Seconds()).
		Msg("Batch evaluation complete")

	domainResults := make([]domain.EvaluationResult, len(results))
	for i, result := range results {
		sequenceHash := ordered[i].SequenceHash
		if sequenceHash == "" {
			sequenceHash = HashSequence(ordered[i].Actions)
		}

		cashRequired := 0.0
		for _, action := range ordered[i].Actions {
			if action.Side == "BUY" {
				cashRequired += action.ValueEUR
			}
		}

		breakdown := map[string]float64{
			"diversification":  result.DiversificationScore,
			"risk":             result.RiskScore,
			"transaction_cost": result.TransactionCosts,
			"final_score":      result.Score,
		}

		endPositions := make(map[string]float64, len(result.EndPortfolio.Positions))
		for symbol, value := range result.EndPortfolio.Positions {
			endPositions[symbol] = value
		}

		domainResults[i] = domain.EvaluationResult{
			SequenceHash:         sequenceHash,
			PortfolioHash:        portfolioHash,
			EndScore:             result.Score,
			ScoreBreakdown:       breakdown,
			EndCash:              result.EndCashEUR,
			EndContextPositions:  endPositions,
			DiversificationScore: result.DiversificationScore,
			RiskScore:            result.RiskScore,
			TotalCost:            result.TransactionCosts,
			CashRequired:         cashRequired,
			TotalValue:           result.EndPortfolio.TotalValue,
			Feasible:             result.Feasible,
		}
	}

	return domainResults, nil
}

type scenario string

const (
	scenarioDeterministic scenario = "deterministic"
	scenarioStochastic    scenario = "stochastic"
	scenarioMonteCarlo    scenario = "monte_carlo"
)

func scenarioMode(config *domain.PlannerConfiguration) scenario {
	if config == nil {
		return scenarioDeterministic
	}
	// The modes are mutually exclusive per request; Monte Carlo wins if a
	// caller sets both flags.
	if config.EnableMonteCarlo {
		return scenarioMonteCarlo
	}
	if config.EnableStochasticScenarios {
		return scenarioStochastic
	}
	return scenarioDeterministic
}

// applyScenarioScores replaces each feasible result's deterministic score
// with the scenario-mode blend: stochastic = 0.6*worst + 0.4*mean across
// fixed global shifts, Monte Carlo = 0.4*worst + 0.3*p10 + 0.3*mean across
// sampled paths.
func (s *Service) applyScenarioScores(
	mode scenario,
	config *domain.PlannerConfiguration,
	ordered []domain.ActionSequence,
	evalContext models.EvaluationContext,
	results []models.SequenceEvaluationResult,
) {
	for i := range results {
		if !results[i].Feasible {
			continue
		}
		actions := ToEvaluationActions(ordered[i].Actions)

		switch mode {
		case scenarioStochastic:
			shifts := config.StochasticShifts
			res := coreeval.EvaluateStochastic(models.StochasticRequest{
				Sequence:          actions,
				Shifts:            shifts,
				EvaluationContext: evalContext,
			})
			scores := make([]float64, 0, len(res.ScenarioScores))
			for _, v := range res.ScenarioScores {
				scores = append(scores, v)
			}
			worst, mean := worstAndMean(scores)
			results[i].Score = 0.6*worst + 0.4*mean

		case scenarioMonteCarlo:
			paths := config.MonteCarloPaths
			if paths <= 0 {
				paths = 100
			}
			if paths > 500 {
				paths = 500
			}
			res := coreeval.EvaluateMonteCarlo(models.MonteCarloRequest{
				Sequence:           actions,
				EvaluationContext:  evalContext,
				SymbolVolatilities: evalContext.PortfolioContext.SecurityVolatility,
				Paths:              paths,
			})
			results[i].Score = res.FinalScore
		}
	}
}

func worstAndMean(scores []float64) (worst, mean float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	worst = scores[0]
	total := 0.0
	for _, v := range scores {
		if v < worst {
			worst = v
		}
		total += v
	}
	return worst, total / float64(len(scores))
}

func sequencePrioritySum(seq domain.ActionSequence) float64 {
	total := 0.0
	for _, a := range seq.Actions {
		total += a.Priority
	}
	return total
}

// EvaluateSingleSequence evaluates one sequence.
func (s *Service) EvaluateSingleSequence(ctx context.Context, sequence domain.ActionSequence, portfolioHash string, config *domain.PlannerConfiguration, opportunityCtx *domain.OpportunityContext) (*domain.EvaluationResult, error) {
	results, err := s.BatchEvaluate(ctx, []domain.ActionSequence{sequence}, portfolioHash, config, opportunityCtx, nil)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no evaluation result returned")
	}
	return &results[0], nil
}

// HealthCheck reports evaluator health (in-process, always healthy).
func (s *Service) HealthCheck(ctx context.Context) error {
	return nil
}
