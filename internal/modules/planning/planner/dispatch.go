package planner

import (
	"context"
	"fmt"

	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/resilience"
	"github.com/rs/zerolog"
)

// BatchEvaluator is one evaluator instance the coordinator can dispatch a
// batch to: the in-process worker-pool service or a remote replica over HTTP.
type BatchEvaluator interface {
	// Name identifies the instance for logging and circuit-breaker state.
	Name() string

	// EvaluateBatch scores the sequences and returns one result per
	// sequence.
	EvaluateBatch(
		ctx context.Context,
		seqs []domain.ActionSequence,
		portfolioHash string,
		config *domain.PlannerConfiguration,
		opportunityCtx *domain.OpportunityContext,
	) ([]domain.EvaluationResult, error)
}

// RoundRobinDispatcher spreads batches across a pool of evaluators,
// wrapping every call in the per-evaluator circuit breaker and a retry
// loop. A batch failed by one evaluator is offered to the others before
// the dispatcher gives up on it.
type RoundRobinDispatcher struct {
	evaluators []BatchEvaluator
	breakers   *resilience.Registry
	retry      resilience.RetryConfig
	next       int
	used       map[string]bool
	log        zerolog.Logger
}

// NewRoundRobinDispatcher creates a dispatcher over the given pool. The
// breaker registry is shared across requests so evaluator failures in one
// request protect the next.
func NewRoundRobinDispatcher(
	evaluators []BatchEvaluator,
	breakers *resilience.Registry,
	retry resilience.RetryConfig,
	log zerolog.Logger,
) *RoundRobinDispatcher {
	return &RoundRobinDispatcher{
		evaluators: evaluators,
		breakers:   breakers,
		retry:      retry,
		used:       make(map[string]bool),
		log:        log.With().Str("component", "evaluator_dispatch").Logger(),
	}
}

// EvaluatorsUsed reports how many distinct evaluators served at least one
// batch.
func (d *RoundRobinDispatcher) EvaluatorsUsed() int {
	return len(d.used)
}

// Dispatch sends the batch to the next evaluator in rotation. On failure it
// advances through the remaining evaluators; only when every instance has
// failed does it return ErrEvaluatorUnavailable.
func (d *RoundRobinDispatcher) Dispatch(
	ctx context.Context,
	batch domain.SequenceBatch,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
) ([]domain.EvaluationResult, error) {
	if len(d.evaluators) == 0 {
		return nil, fmt.Errorf("no evaluators configured: %w", domain.ErrEvaluatorUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt < len(d.evaluators); attempt++ {
		evaluator := d.evaluators[d.next%len(d.evaluators)]
		d.next++

		results, err := d.callOne(ctx, evaluator, batch, portfolioHash, config, opportunityCtx)
		if err == nil {
			d.used[evaluator.Name()] = true
			return results, nil
		}

		lastErr = err
		d.log.Warn().
			Err(err).
			Str("evaluator", evaluator.Name()).
			Int("batch", batch.BatchNumber).
			Msg("Evaluator failed for batch, trying next instance")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("batch %d failed on every evaluator: %w (last: %v)",
		batch.BatchNumber, domain.ErrEvaluatorUnavailable, lastErr)
}

// callOne runs a single evaluator call under circuit breaker and retry.
func (d *RoundRobinDispatcher) callOne(
	ctx context.Context,
	evaluator BatchEvaluator,
	batch domain.SequenceBatch,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
) ([]domain.EvaluationResult, error) {
	breaker := d.breakers.GetOrCreate(evaluator.Name(), resilience.DefaultCircuitBreakerConfig())

	var results []domain.EvaluationResult
	err := resilience.WithRetry(d.retry, func() error {
		return breaker.Call(func() error {
			var callErr error
			results, callErr = evaluator.EvaluateBatch(ctx, batch.Sequences, portfolioHash, config, opportunityCtx)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
