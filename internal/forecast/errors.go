package forecast

import "fmt"

// InsufficientDataError reports a series too short for the requested model
// order. The caller is expected to degrade presentation (omit the forecast
// panel), not crash.
type InsufficientDataError struct {
	Series string
	Need   int
	Have   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("series %s: %d observations, need at least %d for the requested order",
		e.Series, e.Have, e.Need)
}

// NonConvergenceError reports that the fitting procedure could not settle on
// stable coefficients within its internal iteration budget, or that the least
// squares system was degenerate (e.g. a constant series after differencing).
type NonConvergenceError struct {
	Series string
	Reason string
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("series %s: fit did not converge: %s", e.Series, e.Reason)
}
