// Package progress provides progress reporting utilities for long-running planning operations.
package progress

// Callback is a function that reports progress during long operations.
// Parameters:
//   - current: Number of items completed
//   - total: Total number of items
//   - message: Human-readable description of the current phase
//
// A nil Callback is valid and will be safely ignored by the Call() helper.
type Callback func(current, total int, message string)

// Call safely invokes the callback if non-nil.
// This allows callers to pass progress updates without checking for nil.
func Call(cb Callback, current, total int, message string) {
	if cb != nil {
		cb(current, total, message)
	}
}

// Update is a richer progress report than the plain (current, total, message)
// triple: Phase/SubPhase identify which pipeline stage emitted it, and
// Details carries stage-specific metrics (feasible counts, best score so
// far, elapsed time) for callers that want more than a percentage bar.
type Update struct {
	Phase    string
	SubPhase string
	Current  int
	Total    int
	Message  string
	Details  map[string]any
}

// DetailedCallback is a progress callback that receives a full Update.
// A nil DetailedCallback is valid and is safely ignored by CallDetailed.
type DetailedCallback func(update Update)

// CallDetailed safely invokes cb if non-nil.
func CallDetailed(cb DetailedCallback, update Update) {
	if cb != nil {
		cb(update)
	}
}
