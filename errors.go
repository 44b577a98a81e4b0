package bkmr

import "fmt"

// DimensionError reports a mismatch among the dimensions of y, Z, X, or a
// prediction input. It is returned before any iteration or prediction runs.
type DimensionError struct {
	What string // quantity whose size is wrong, e.g. "rows of X"
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("bkmr: %s has dimension %d, want %d", e.What, e.Got, e.Want)
}

// ConfigError reports an invalid Settings or Control field. No partial fit
// state exists when a ConfigError is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("bkmr: invalid %s: %s", e.Field, e.Reason)
}

// NumericalError reports a kernel or covariance matrix that could not be
// factorized, after the retry described in the Fit documentation. During a
// fit Iter is the iteration that failed to commit, and the chain holds all
// iterations before it. During prediction Iter is the selected chain
// iteration whose conditional could not be evaluated.
type NumericalError struct {
	Iter int
	Step string // update step that failed, e.g. "r[2]"
	Err  error
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("bkmr: iteration %d: %s: %v", e.Iter, e.Step, e.Err)
}

func (e *NumericalError) Unwrap() error { return e.Err }
