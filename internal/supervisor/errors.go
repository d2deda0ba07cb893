package supervisor

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrorAggregator collects per-child errors from a fan-out operation
// (reset_all, persist_state) without letting one child's failure stop
// the others from running, per spec.md §4.8's "best-effort across all
// registries" wording.
type ErrorAggregator struct {
	err *multierror.Error
}

// NewErrorAggregator returns an empty aggregator.
func NewErrorAggregator() *ErrorAggregator {
	return &ErrorAggregator{}
}

// Add records err under child's name if non-nil; a nil err is a no-op.
func (a *ErrorAggregator) Add(child string, err error) {
	if err == nil {
		return
	}
	a.err = multierror.Append(a.err, fmt.Errorf("%s: %w", child, err))
}

// ErrorOrNil returns the aggregated error, or nil if nothing failed.
func (a *ErrorAggregator) ErrorOrNil() error {
	return a.err.ErrorOrNil()
}
