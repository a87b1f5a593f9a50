package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/trading-planner/internal/modules/planning"
	planningconfig "github.com/aristath/trading-planner/internal/modules/planning/config"
	plandomain "github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/planning/constraints"
	"github.com/aristath/trading-planner/internal/modules/planning/planner"
	"github.com/aristath/trading-planner/internal/modules/sequences"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/aristath/trading-planner/internal/planning/safety"
)

// handleCreatePlan implements the coordinator's CreatePlan RPC: identify
// opportunities, stream generated batches through the evaluator pool, merge
// into the global beam, and assemble the winning sequence into a plan.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	config, err := s.buildPlannerConfig(req.Parameters)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Frequency limiter: pre-flight over the whole execution, fail closed.
	limiter := safety.NewFrequencyLimiter(s.container.FrequencyConfig, staticActivity{
		lastTradeAt:    lastTradeTime(req.LastTradeAt),
		tradesToday:    req.TradesToday,
		tradesThisWeek: req.TradesThisWeek,
	}, s.log)
	if rejection := limiter.CheckNextTrade(); rejection != nil {
		s.log.Warn().Str("rule", rejection.Rule).Str("reason", rejection.Reason).Msg("Plan execution blocked by safety gate")
		s.writeJSON(w, http.StatusOK, CreatePlanResponse{
			Plan: planner.InfeasiblePlan(rejection),
		})
		return
	}

	scope, err := newRequestScope(
		s.container,
		req.Positions, req.Securities,
		req.AvailableCash,
		req.PortfolioContext.TargetAllocation,
		req.TargetWeights,
		req.CurrentPrices,
		nil, nil,
		s.log,
	)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to build planning context: "+err.Error())
		return
	}

	planningService := s.buildPlanningService(scope, req.EvaluatorConfig)

	result, err := planningService.CreatePlanContext(r.Context(), scope.context, config)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away: no partial plan.
			return
		}
		if result != nil && result.Plan != nil {
			s.writeJSON(w, http.StatusOK, CreatePlanResponse{Plan: result.Plan, Stats: result.Stats})
			return
		}
		s.writeJSON(w, http.StatusOK, CreatePlanResponse{Plan: planner.InfeasiblePlan(err)})
		return
	}

	s.writeJSON(w, http.StatusOK, CreatePlanResponse{Plan: result.Plan, Stats: result.Stats})
}

// handleIdentifyOpportunities implements the opportunity RPC: run the five
// calculators over the request's portfolio snapshot.
func (s *Server) handleIdentifyOpportunities(w http.ResponseWriter, r *http.Request) {
	var req IdentifyOpportunitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	scope, err := newRequestScope(
		s.container,
		req.Positions, req.Securities,
		req.AvailableCash,
		req.PortfolioContext.TargetAllocation,
		req.TargetWeights,
		req.CurrentPrices,
		req.RecentlySold,
		req.IneligibleISINs,
		s.log,
	)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to build opportunity context: "+err.Error())
		return
	}

	config := plandomain.NewDefaultConfiguration()
	if req.TransactionCostFixed > 0 {
		config.TransactionCostFixed = req.TransactionCostFixed
	}
	if req.TransactionCostPercent > 0 {
		config.TransactionCostPercent = req.TransactionCostPercent
	}
	scope.context.ApplyConfig(config)

	categorised, err := scope.opportunitiesService(s.log).IdentifyOpportunities(scope.context, config)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to identify opportunities: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, IdentifyOpportunitiesResponse{
		ProfitTaking:    orEmpty(categorised[plandomain.OpportunityCategoryProfitTaking]),
		AveragingDown:   orEmpty(categorised[plandomain.OpportunityCategoryAveragingDown]),
		RebalanceSells:  orEmpty(categorised[plandomain.OpportunityCategoryRebalanceSells]),
		RebalanceBuys:   orEmpty(categorised[plandomain.OpportunityCategoryRebalanceBuys]),
		OpportunityBuys: orEmpty(categorised[plandomain.OpportunityCategoryOpportunityBuys]),
	})
}

// handleGenerateSequences implements the server-streamed generator RPC:
// chunked JSON, one SequenceBatch object per line, terminated by the final
// batch's more_available=false or client cancellation.
func (s *Server) handleGenerateSequences(w http.ResponseWriter, r *http.Request) {
	var req GenerateSequencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	opportunities := plandomain.OpportunitiesByCategory{
		plandomain.OpportunityCategoryProfitTaking:    req.Opportunities.ProfitTaking,
		plandomain.OpportunityCategoryAveragingDown:   req.Opportunities.AveragingDown,
		plandomain.OpportunityCategoryRebalanceSells:  req.Opportunities.RebalanceSells,
		plandomain.OpportunityCategoryRebalanceBuys:   req.Opportunities.RebalanceBuys,
		plandomain.OpportunityCategoryOpportunityBuys: req.Opportunities.OpportunityBuys,
	}

	config := plandomain.NewDefaultConfiguration()
	if req.MaxDepth > 0 {
		config.MaxDepth = req.MaxDepth
	}
	if req.MaxCombinations > 0 {
		config.MaxCombinations = req.MaxCombinations
	}
	if req.DiversityWeight > 0 {
		config.DiversityWeight = req.DiversityWeight
	}
	if req.TransactionCostFixed > 0 {
		config.TransactionCostFixed = req.TransactionCostFixed
	}
	if req.TransactionCostPercent > 0 {
		config.TransactionCostPercent = req.TransactionCostPercent
	}

	// An optional portfolio snapshot improves the feasibility pre-checks;
	// without one the generator still runs on cash alone.
	var opCtx *plandomain.OpportunityContext
	if len(req.Securities) > 0 || len(req.Positions) > 0 {
		scope, err := newRequestScope(
			s.container,
			req.Positions, req.Securities,
			req.AvailableCash,
			nil, nil, nil, nil, nil,
			s.log,
		)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to build generation context: "+err.Error())
			return
		}
		opCtx = scope.context
	} else {
		opCtx = plandomain.NewOpportunityContext(nil, nil, nil, req.AvailableCash, req.AvailableCash, nil)
	}
	opCtx.ApplyConfig(config)
	if req.MarketRegime != nil {
		opCtx.RegimeScore = *req.MarketRegime
	}

	sequencesService := s.buildSequencesService(nil)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)

	for batch := range sequencesService.StreamBatches(r.Context(), opportunities, opCtx, config, req.BatchSize) {
		if err := encoder.Encode(batch); err != nil {
			s.log.Debug().Err(err).Msg("Sequence stream write failed, client likely gone")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// buildPlannerConfig maps request parameters onto the planner configuration,
// validating ranges.
func (s *Server) buildPlannerConfig(params PlanParameters) (*plandomain.PlannerConfiguration, error) {
	cfg := plandomain.NewDefaultConfiguration()

	// Temperament-adjusted trading parameters first; environment and
	// request-level parameters override them below.
	trade := s.container.SettingsService.GetAdjustedTradeParams()
	cfg.MinHoldDays = trade.MinHoldDays
	cfg.SellCooldownDays = trade.SellCooldownDays
	cfg.MaxLossThreshold = trade.MaxLossThreshold
	cfg.MaxSellPercentage = trade.MaxSellPercentage
	cfg.AveragingDownPercent = trade.AveragingDownPercent

	appCfg := s.container.Config
	cfg.TransactionCostFixed = appCfg.TransactionFeeFixed
	cfg.TransactionCostPercent = appCfg.TransactionFeePercent
	cfg.MaxDepth = appCfg.MaxDepth
	cfg.BeamWidth = appCfg.BeamWidth
	cfg.BatchSize = appCfg.BatchSize
	cfg.MaxCombinations = appCfg.MaxCombinations
	cfg.DiversityWeight = appCfg.DiversityWeight
	cfg.EnableMonteCarlo = appCfg.EnableMonteCarlo
	cfg.MonteCarloPaths = appCfg.MonteCarloPaths
	cfg.EnableStochasticScenarios = appCfg.EnableStochasticScenarios
	cfg.MinHoldDays = appCfg.MinHoldDays
	cfg.SellCooldownDays = appCfg.SellCooldownDays
	cfg.MaxLossThreshold = appCfg.MaxLossThreshold
	cfg.OptimizerBlend = appCfg.OptimizerBlend
	cfg.OptimizerTargetReturn = appCfg.OptimizerTargetReturn

	if params.MaxDepth != 0 {
		cfg.MaxDepth = params.MaxDepth
	}
	if params.BeamWidth != 0 {
		cfg.BeamWidth = params.BeamWidth
	}
	if params.BatchSize != 0 {
		cfg.BatchSize = params.BatchSize
	}
	if params.TransactionCostFixed > 0 {
		cfg.TransactionCostFixed = params.TransactionCostFixed
	}
	if params.TransactionCostPercent > 0 {
		cfg.TransactionCostPercent = params.TransactionCostPercent
	}
	if params.EnableMonteCarlo {
		cfg.EnableMonteCarlo = true
	}
	cfg.EnableCorrelationAwareFilter = params.EnableCorrelationAware
	if params.EnableEarlyTermination != nil {
		cfg.EnableEarlyTermination = *params.EnableEarlyTermination
	}
	if params.MinBatchesToEvaluate > 0 {
		cfg.MinBatchesToEvaluate = params.MinBatchesToEvaluate
	}
	if params.PlateauThreshold > 0 {
		cfg.PlateauThreshold = params.PlateauThreshold
	}

	if cfg.MaxDepth < 1 || cfg.MaxDepth > 10 {
		return nil, errParam("max_depth must be in [1, 10]")
	}
	if cfg.BeamWidth < 1 || cfg.BeamWidth > 100 {
		return nil, errParam("beam_width must be in [1, 100]")
	}
	if cfg.BatchSize < 10 || cfg.BatchSize > 5000 {
		return nil, errParam("batch_size must be in [10, 5000]")
	}
	if cfg.TransactionCostPercent < 0 || cfg.TransactionCostPercent > 0.1 {
		return nil, errParam("transaction_cost_percent must be in [0, 0.1]")
	}

	if err := planningconfig.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// buildPlanningService wires the request-scoped coordinator: per-request
// opportunities and sequences services over the shared evaluator pool,
// breakers, cache, and assembler.
func (s *Server) buildPlanningService(scope *requestScope, evalConfig *EvaluatorConfig) *planning.Service {
	evaluators := s.container.Evaluators
	if evalConfig != nil && len(evalConfig.Endpoints) > 0 {
		evaluators = []planner.BatchEvaluator{planner.NewInProcessEvaluator(s.container.EvaluationService)}
		for i, endpoint := range evalConfig.Endpoints {
			evaluators = append(evaluators, planner.NewHTTPEvaluator(
				"evaluator-"+strconv.Itoa(i+1), endpoint, 60*time.Second, s.log))
		}
	}

	return planning.NewService(
		scope.opportunitiesService(s.log),
		s.buildSequencesService(scope.securityRepo),
		evaluators,
		s.container.Breakers,
		s.container.Assembler,
		s.container.Cache,
		scope.securityRepo,
		s.log,
	)
}

// buildSequencesService builds the generator with the standard filter chain.
// securityRepo may be nil (no eligibility lookups possible, filter passes).
func (s *Server) buildSequencesService(securityRepo *universe.SecurityRepository) *sequences.Service {
	var lookup constraints.SecurityLookupFunc
	if securityRepo != nil {
		lookup = func(symbol, isin string) (*universe.Security, bool) {
			if isin != "" {
				if sec, err := securityRepo.GetByISIN(isin); err == nil && sec != nil {
					return sec, true
				}
			}
			if symbol != "" {
				if sec, err := securityRepo.GetBySymbol(symbol); err == nil && sec != nil {
					return sec, true
				}
			}
			return nil, false
		}
	}

	enforcer := constraints.NewEnforcer(s.log, lookup)
	filterRegistry := sequences.NewPopulatedFilterRegistry(s.log, nil, nil, nil)
	return sequences.NewService(s.log, enforcer, filterRegistry)
}

func orEmpty(candidates []plandomain.ActionCandidate) []plandomain.ActionCandidate {
	if candidates == nil {
		return []plandomain.ActionCandidate{}
	}
	return candidates
}

// staticActivity serves the frequency limiter from request-supplied counts.
type staticActivity struct {
	lastTradeAt    *time.Time
	tradesToday    int
	tradesThisWeek int
}

func (a staticActivity) CurrentCounts() (safety.TradeCounts, error) {
	return safety.TradeCounts{
		LastTradeAt:    a.lastTradeAt,
		TradesToday:    a.tradesToday,
		TradesThisWeek: a.tradesThisWeek,
	}, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func errParam(msg string) error { return paramError(msg) }
