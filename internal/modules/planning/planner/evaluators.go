package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	evalmodels "github.com/aristath/trading-planner/internal/evaluation/models"
	planevaluation "github.com/aristath/trading-planner/internal/modules/planning/evaluation"
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/rs/zerolog"
)

// InProcessEvaluator adapts the in-process evaluation service to the
// BatchEvaluator interface so the coordinator treats local and remote
// instances uniformly.
type InProcessEvaluator struct {
	service *planevaluation.Service
}

// NewInProcessEvaluator wraps the worker-pool-backed evaluation service.
func NewInProcessEvaluator(service *planevaluation.Service) *InProcessEvaluator {
	return &InProcessEvaluator{service: service}
}

// Name identifies the in-process instance.
func (e *InProcessEvaluator) Name() string { return "evaluator-local" }

// EvaluateBatch scores the sequences through the shared worker pool.
func (e *InProcessEvaluator) EvaluateBatch(
	ctx context.Context,
	seqs []domain.ActionSequence,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
) ([]domain.EvaluationResult, error) {
	return e.service.BatchEvaluate(ctx, seqs, portfolioHash, config, opportunityCtx, nil)
}

// HTTPEvaluator dispatches batches to a replicated evaluator service over
// its /evaluate/batch endpoint.
type HTTPEvaluator struct {
	name     string
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewHTTPEvaluator creates a client for one remote evaluator endpoint,
// e.g. "http://evaluator-1:8081".
func NewHTTPEvaluator(name, endpoint string, timeout time.Duration, log zerolog.Logger) *HTTPEvaluator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPEvaluator{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.With().Str("component", "http_evaluator").Str("endpoint", endpoint).Logger(),
	}
}

// Name identifies the remote instance for logging and breaker state.
func (e *HTTPEvaluator) Name() string { return e.name }

// EvaluateBatch posts the batch to the remote evaluator and converts its
// response back into planning-domain results.
func (e *HTTPEvaluator) EvaluateBatch(
	ctx context.Context,
	seqs []domain.ActionSequence,
	portfolioHash string,
	config *domain.PlannerConfiguration,
	opportunityCtx *domain.OpportunityContext,
) ([]domain.EvaluationResult, error) {
	evalContext := planevaluation.BuildEvaluationContext(config, opportunityCtx)

	request := evalmodels.BatchEvaluationRequest{
		Sequences:         make([][]evalmodels.ActionCandidate, len(seqs)),
		EvaluationContext: evalContext,
	}
	if config != nil {
		request.BeamWidth = config.BeamWidth
	}
	for i, seq := range seqs {
		request.Sequences[i] = planevaluation.ToEvaluationActions(seq.Actions)
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/evaluate/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build evaluation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call evaluator %s: %w", e.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evaluator %s returned status %d", e.name, resp.StatusCode)
	}

	var response evalmodels.BatchEvaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode evaluation response: %w", err)
	}
	if len(response.Results) != len(seqs) {
		return nil, fmt.Errorf("evaluator %s returned %d results for %d sequences", e.name, len(response.Results), len(seqs))
	}

	out := make([]domain.EvaluationResult, len(response.Results))
	for i, result := range response.Results {
		cashRequired := 0.0
		for _, action := range seqs[i].Actions {
			if action.Side == "BUY" {
				cashRequired += action.ValueEUR
			}
		}

		out[i] = domain.EvaluationResult{
			SequenceHash:         seqs[i].SequenceHash,
			PortfolioHash:        portfolioHash,
			EndScore:             result.Score,
			DiversificationScore: result.DiversificationScore,
			RiskScore:            result.RiskScore,
			TotalCost:            result.TransactionCosts,
			CashRequired:         cashRequired,
			EndCash:              result.EndCashEUR,
			TotalValue:           result.EndPortfolio.TotalValue,
			Feasible:             result.Feasible,
			ScoreBreakdown: map[string]float64{
				"diversification":  result.DiversificationScore,
				"risk":             result.RiskScore,
				"transaction_cost": result.TransactionCosts,
				"final_score":      result.Score,
			},
		}
	}

	return out, nil
}
