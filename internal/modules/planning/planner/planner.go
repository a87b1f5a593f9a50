// Package planner is the global beam coordinator: it drives opportunity
// identification, consumes the sequence generator's streamed batches,
// dispatches them round-robin across the evaluator pool, merges local
// results into the global beam, applies the early-termination rule, and
// hands the winning sequence to the plan assembler.
package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/trading-planner/internal/modules/opportunities"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	planninghash "github.com/aristath/trading-planner/internal/modules/planning/hash"
	"github.com/aristath/trading-planner/internal/modules/planning/progress"
	"github.com/aristath/trading-planner/internal/modules/sequences"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/aristath/trading-planner/internal/resilience"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Planner coordinates one planning request end to end.
type Planner struct {
	opportunitiesService *opportunities.Service
	sequencesService     *sequences.Service
	evaluators           []BatchEvaluator
	breakers             *resilience.Registry
	retry                resilience.RetryConfig
	assembler            *Assembler
	cache                *resilience.RecommendationCache
	securityRepo         *universe.SecurityRepository
	log                  zerolog.Logger
}

// NewPlanner wires the coordinator. cache and securityRepo may be nil;
// evaluators must hold at least one instance (usually the in-process one).
func NewPlanner(
	opportunitiesService *opportunities.Service,
	sequencesService *sequences.Service,
	evaluators []BatchEvaluator,
	breakers *resilience.Registry,
	assembler *Assembler,
	cache *resilience.RecommendationCache,
	securityRepo *universe.SecurityRepository,
	log zerolog.Logger,
) *Planner {
	return &Planner{
		opportunitiesService: opportunitiesService,
		sequencesService:     sequencesService,
		evaluators:           evaluators,
		breakers:             breakers,
		retry:                resilience.DefaultRetryConfig(),
		assembler:            assembler,
		cache:                cache,
		securityRepo:         securityRepo,
		log:                  log.With().Str("component", "planner").Logger(),
	}
}

// PlanResult wraps a HolisticPlan with rejected opportunities, pre-filtered
// securities, rejected sequences, and run statistics.
type PlanResult struct {
	Plan                  *domain.HolisticPlan
	RejectedOpportunities []domain.RejectedOpportunity
	PreFilteredSecurities []domain.PreFilteredSecurity
	RejectedSequences     []domain.RejectedSequence
	Stats                 domain.PlanStats
}

// CreatePlan creates a holistic trading plan.
func (p *Planner) CreatePlan(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) (*domain.HolisticPlan, error) {
	result, err := p.CreatePlanWithRejections(ctx, config, nil)
	if err != nil {
		return nil, err
	}
	return result.Plan, nil
}

// CreatePlanWithRejections creates a plan with rejection tracking. The
// progressCallback is invoked as generation and evaluation advance.
func (p *Planner) CreatePlanWithRejections(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration, progressCallback progress.Callback) (*PlanResult, error) {
	return p.run(context.Background(), ctx, config, progressCallback, nil)
}

// CreatePlanWithDetailedProgress creates a plan with structured progress
// updates carrying phase, subphase, and metrics.
func (p *Planner) CreatePlanWithDetailedProgress(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration, detailedCallback progress.DetailedCallback) (*PlanResult, error) {
	return p.run(context.Background(), ctx, config, nil, detailedCallback)
}

// CreatePlanContext is CreatePlanWithRejections under a caller-supplied
// context: cancelling it aborts the request without a partial plan.
func (p *Planner) CreatePlanContext(requestCtx context.Context, ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) (*PlanResult, error) {
	return p.run(requestCtx, ctx, config, nil, nil)
}

// run is the coordinator loop shared by every entry point.
func (p *Planner) run(
	requestCtx context.Context,
	opCtx *domain.OpportunityContext,
	config *domain.PlannerConfiguration,
	progressCallback progress.Callback,
	detailedCallback progress.DetailedCallback,
) (*PlanResult, error) {
	start := time.Now()
	p.log.Info().Msg("Creating holistic plan")

	if config == nil {
		config = domain.NewDefaultConfiguration()
	}
	opCtx.ApplyConfig(config)

	fingerprint := p.portfolioFingerprint(opCtx)

	// Cache short-circuit: a fresh plan for the same fingerprint is
	// indistinguishable from recomputing it.
	if p.cache != nil {
		var cached PlanResult
		if hit := p.cache.GetRecommendations(fingerprint, resilience.CategoryMultiStep, &cached); hit {
			p.log.Info().Str("fingerprint", fingerprint).Msg("Returning cached plan")
			cached.Stats.CacheHit = true
			return &cached, nil
		}
	}

	// Step 1: identify opportunities.
	opportunitiesResult, err := p.opportunitiesService.IdentifyOpportunitiesWithProgress(opCtx, config, detailedCallback)
	if err != nil {
		return nil, fmt.Errorf("failed to identify opportunities: %w", err)
	}
	categorised := opportunitiesResult.ToOpportunitiesByCategory()
	preFiltered := opportunitiesResult.AllPreFiltered()

	identified := collectIdentified(categorised)
	progress.Call(progressCallback, 1, 4, fmt.Sprintf("Identified %d trading opportunities", len(identified)))
	progress.CallDetailed(detailedCallback, progress.Update{
		Phase: "opportunity_identification", SubPhase: "complete",
		Current: 1, Total: 1,
		Message: fmt.Sprintf("Identified %d trading opportunities", len(identified)),
		Details: map[string]any{
			"total_candidates":   len(identified),
			"pre_filtered_count": len(preFiltered),
			"categories":         len(categorised),
		},
	})

	if len(identified) == 0 {
		return p.finish(&PlanResult{
			Plan:                  EmptyPlan(0),
			PreFilteredSecurities: preFiltered,
			Stats: domain.PlanStats{
				WallClockSeconds: time.Since(start).Seconds(),
			},
		}, fingerprint), nil
	}

	// Step 2: open the streaming generator under a cancellable context so
	// early termination stops production.
	streamCtx, cancelStream := context.WithCancel(requestCtx)
	defer cancelStream()

	batchSize := config.BatchSize
	batches := p.sequencesService.StreamBatches(streamCtx, categorised, opCtx, config, batchSize)

	// Step 3/4: dispatch batches round-robin, merge into the global beam.
	beamWidth := config.BeamWidth
	if beamWidth <= 0 {
		beamWidth = 10
	}
	beam := NewGlobalBeam(beamWidth, config.EvaluationMode == "multi_objective")
	dispatcher := NewRoundRobinDispatcher(p.evaluators, p.breakers, p.retry, p.log)

	stats := domain.PlanStats{OpportunitiesFound: len(identified)}
	opportunitiesInSequences := make(map[string]bool)
	plateau := 0
	var loopErr error

	for batch := range batches {
		if requestCtx.Err() != nil {
			loopErr = requestCtx.Err()
			break
		}
		if len(batch.Sequences) == 0 {
			continue
		}

		stats.SequencesGenerated += len(batch.Sequences)
		for _, seq := range batch.Sequences {
			for _, action := range seq.Actions {
				opportunitiesInSequences[action.Symbol+"|"+action.Side] = true
			}
		}

		results, err := dispatcher.Dispatch(requestCtx, batch, fingerprint, config, opCtx)
		if err != nil {
			if requestCtx.Err() != nil {
				loopErr = requestCtx.Err()
				break
			}
			// A batch failed on every evaluator: abort the whole request.
			loopErr = err
			break
		}

		stats.SequencesEvaluated += len(results)
		stats.BatchesProcessed++

		merge := beam.Merge(pairResults(batch.Sequences, results))

		progress.Call(progressCallback, 2, 4, fmt.Sprintf("Evaluated batch %d (best score %.3f)", batch.BatchNumber, merge.BestScore))
		progress.CallDetailed(detailedCallback, progress.Update{
			Phase: "sequence_evaluation", SubPhase: "batch_merged",
			Current: stats.BatchesProcessed, Total: stats.BatchesProcessed,
			Message: "Merged batch into global beam",
			Details: map[string]any{
				"batch_number": batch.BatchNumber,
				"beam_size":    beam.Len(),
				"best_score":   merge.BestScore,
				"inserted":     merge.Inserted,
			},
		})

		// Step 5: early termination. Conjunctive rule: the best score must
		// be flat AND no new entries accepted, for plateau_threshold
		// consecutive batches, after the minimum batch count.
		if !merge.BestImproved && merge.Inserted == 0 {
			plateau++
		} else {
			plateau = 0
		}

		if config.EnableEarlyTermination &&
			stats.BatchesProcessed >= maxInt(1, config.MinBatchesToEvaluate) &&
			plateau >= maxInt(1, config.PlateauThreshold) {
			p.log.Info().
				Int("batches", stats.BatchesProcessed).
				Float64("best_score", beam.BestScore()).
				Msg("Early termination: beam plateaued")
			stats.EarlyTerminated = true
			cancelStream()
			break
		}
	}
	// Drain the channel after cancellation so the generator goroutine exits.
	for range batches {
	}

	stats.EvaluatorsUsed = dispatcher.EvaluatorsUsed()
	stats.WallClockSeconds = time.Since(start).Seconds()
	stats.BestScoreFinal = beam.BestScore()

	if loopErr != nil {
		if requestCtx.Err() != nil {
			// Client disconnect or timeout: the whole request is cancelled,
			// no partial plan.
			return nil, loopErr
		}
		p.log.Error().Err(loopErr).Msg("Planning aborted")
		return &PlanResult{
			Plan:                  InfeasiblePlan(loopErr),
			PreFilteredSecurities: preFiltered,
			Stats:                 stats,
		}, loopErr
	}

	// Step 6: assemble the plan from the beam's best entry.
	best, ok := beam.Best()
	if !ok {
		rejected := buildRejectedOpportunities(identified, opportunitiesInSequences, nil, nil)
		return p.finish(&PlanResult{
			Plan:                  EmptyPlan(0),
			RejectedOpportunities: rejected,
			PreFilteredSecurities: preFiltered,
			Stats:                 stats,
		}, fingerprint), nil
	}

	plan := p.assembler.Assemble(best, 0.0, config.TransactionCostFixed, config.TransactionCostPercent)
	plan.Metadata = map[string]string{
		"plan_id":        uuid.NewString(),
		"portfolio_hash": fingerprint,
		"pattern":        best.Sequence.PatternType,
	}

	inBeam := make(map[string]bool)
	for _, entry := range beam.Entries() {
		for _, action := range entry.Sequence.Actions {
			inBeam[action.Symbol+"|"+action.Side] = true
		}
	}

	result := &PlanResult{
		Plan:                  plan,
		RejectedOpportunities: buildRejectedOpportunities(identified, opportunitiesInSequences, inBeam, plan),
		PreFilteredSecurities: preFiltered,
		RejectedSequences:     buildRejectedSequences(beam.Entries(), best.Sequence.SequenceHash),
		Stats:                 stats,
	}
	result.Stats.RejectedOpportunities = len(result.RejectedOpportunities)

	p.log.Info().
		Int("steps", len(plan.Steps)).
		Float64("end_score", plan.EndStateScore).
		Int("batches", stats.BatchesProcessed).
		Int("evaluated", stats.SequencesEvaluated).
		Bool("early_terminated", stats.EarlyTerminated).
		Msg("Selected best sequence")

	progress.Call(progressCallback, 4, 4, "Plan assembled")

	return p.finish(result, fingerprint), nil
}

// finish caches the result under the portfolio fingerprint. Cache write
// failures are logged, never surfaced.
func (p *Planner) finish(result *PlanResult, fingerprint string) *PlanResult {
	if p.cache != nil && fingerprint != "" {
		if err := p.cache.PutRecommendations(fingerprint, resilience.CategoryMultiStep, result); err != nil {
			p.log.Warn().Err(err).Msg("Failed to cache plan result")
		}
	}
	return result
}

// portfolioFingerprint hashes positions, universe configuration, and the
// bucketed cash balance into the cache key.
func (p *Planner) portfolioFingerprint(opCtx *domain.OpportunityContext) string {
	positions := make([]planninghash.Position, 0, len(opCtx.EnrichedPositions))
	for _, pos := range opCtx.EnrichedPositions {
		positions = append(positions, planninghash.Position{
			Symbol:   pos.Symbol,
			Quantity: int(pos.Quantity),
			Price:    pos.CurrentPrice,
		})
	}

	var securities []universe.Security
	if p.securityRepo != nil {
		if all, err := p.securityRepo.GetAll(); err == nil {
			securities = all
		} else {
			p.log.Warn().Err(err).Msg("Failed to load universe for fingerprint, hashing positions only")
		}
	}

	cash := map[string]float64{}
	if opCtx.AvailableCashEUR > 0 {
		cash["EUR"] = opCtx.AvailableCashEUR
	}

	return planninghash.GeneratePortfolioHash(positions, securities, cash, nil)
}

// pairResults matches evaluation results back to their sequences by hash,
// falling back to index order.
func pairResults(seqs []domain.ActionSequence, results []domain.EvaluationResult) []ScoredSequence {
	byHash := make(map[string]*domain.EvaluationResult, len(results))
	for i := range results {
		if results[i].SequenceHash != "" {
			byHash[results[i].SequenceHash] = &results[i]
		}
	}

	paired := make([]ScoredSequence, 0, len(seqs))
	for i, seq := range seqs {
		var result *domain.EvaluationResult
		if r, ok := byHash[seq.SequenceHash]; ok {
			result = r
		} else if i < len(results) {
			result = &results[i]
		} else {
			continue
		}
		paired = append(paired, ScoredSequence{Sequence: seq, Result: *result})
	}
	return paired
}

// collectIdentified flattens the categorised candidates.
func collectIdentified(categorised domain.OpportunitiesByCategory) []domain.ActionCandidate {
	var all []domain.ActionCandidate
	for _, candidates := range categorised {
		all = append(all, candidates...)
	}
	return all
}

// buildRejectedOpportunities explains why each identified opportunity is
// absent from the final plan.
func buildRejectedOpportunities(
	allIdentified []domain.ActionCandidate,
	opportunitiesInSequences map[string]bool,
	opportunitiesInBeam map[string]bool,
	finalPlan *domain.HolisticPlan,
) []domain.RejectedOpportunity {
	finalPlanOpportunities := make(map[string]bool)
	if finalPlan != nil {
		for _, step := range finalPlan.Steps {
			finalPlanOpportunities[step.Symbol+"|"+step.Side] = true
		}
	}

	rejections := make(map[string]*domain.RejectedOpportunity)
	for _, candidate := range allIdentified {
		key := candidate.Symbol + "|" + candidate.Side
		if finalPlanOpportunities[key] {
			continue
		}

		rejected, exists := rejections[key]
		if !exists {
			rejected = &domain.RejectedOpportunity{
				Side:           candidate.Side,
				Symbol:         candidate.Symbol,
				Name:           candidate.Name,
				OriginalReason: candidate.Reason,
			}
			rejections[key] = rejected
		}

		var reason string
		switch {
		case !opportunitiesInSequences[key]:
			reason = "not selected by sequence generator (may need different parameters or lower priority)"
		case opportunitiesInBeam != nil && opportunitiesInBeam[key]:
			reason = "in alternative sequence (a different sequence had higher score)"
		default:
			reason = "sequence not in top candidates (lower combined priority)"
		}

		if !containsString(rejected.Reasons, reason) {
			rejected.Reasons = append(rejected.Reasons, reason)
		}
	}

	result := make([]domain.RejectedOpportunity, 0, len(rejections))
	for _, rejected := range rejections {
		sort.Strings(rejected.Reasons)
		result = append(result, *rejected)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Side < result[j].Side
	})

	return result
}

// buildRejectedSequences lists the beam entries that lost to the winner.
func buildRejectedSequences(entries []ScoredSequence, winningHash string) []domain.RejectedSequence {
	var rejected []domain.RejectedSequence
	rank := 1
	for _, entry := range entries {
		if entry.Sequence.SequenceHash == winningHash {
			rank++
			continue
		}

		reason := "lower_score"
		if !entry.Result.Feasible {
			reason = "infeasible"
			if entry.Result.Error != "" {
				reason = entry.Result.Error
			}
		}

		rejected = append(rejected, domain.RejectedSequence{
			Rank:     rank,
			Actions:  entry.Sequence.Actions,
			Score:    entry.Result.EndScore,
			Feasible: entry.Result.Feasible,
			Reason:   reason,
		})
		rank++
	}
	return rejected
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
