package domain

import "errors"

// Sentinel errors for the planning pipeline. Callers match with errors.Is
// after any number of %w wrappings.
var (
	// ErrInsufficientData means the optimiser was missing expected returns
	// or covariance inputs. The plan response carries Feasible=false and an
	// explanatory error.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrOptimizerInfeasible means the mean-variance solver failed at both
	// the target-return and max-Sharpe formulations; the optimiser falls
	// back to HRP-only weights.
	ErrOptimizerInfeasible = errors.New("optimizer infeasible")

	// ErrEvaluatorUnavailable means every configured evaluator failed for a
	// batch; the coordinator aborts the request.
	ErrEvaluatorUnavailable = errors.New("all evaluators unavailable")

	// ErrSafetyRejected means the frequency limiter or an eligibility
	// filter blocked execution; the wrapping error names the offending rule.
	ErrSafetyRejected = errors.New("safety gate rejected")

	// ErrCacheCorrupt means a cached payload failed to parse; it is treated
	// as a miss and overwritten on the next write.
	ErrCacheCorrupt = errors.New("cache payload corrupt")
)
