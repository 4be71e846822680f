package dataflow

import (
	"errors"
	"fmt"
	"strings"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
)

var (
	// ErrBlockNotAccepting is returned by SendAsync when the target block
	// has been completed or faulted.
	ErrBlockNotAccepting = fmt.Errorf("dataflow: block %w", dferrors.ErrNotAccepting)

	// ErrSkip can be returned by a transform function to produce no output
	// for an item without faulting the block.
	ErrSkip = errors.New("dataflow: skip item")

	// ErrStagePanic marks a stage function that panicked.
	ErrStagePanic = errors.New("dataflow: stage function panicked")

	// ErrNotMember is returned when linking blocks that were not added to the graph.
	ErrNotMember = errors.New("dataflow: block is not a member of the graph")

	// ErrCycle is returned when a graph's links form a cycle.
	ErrCycle = errors.New("dataflow: cycle detected")

	errUnspecifiedFault = errors.New("dataflow: block faulted without an error")
)

// StageError records a stage function failure for one item.
type StageError struct {
	// Block is the name of the block whose function failed.
	Block string

	// Item is the input item being processed.
	Item interface{}

	// Err is the error returned by the function.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dataflow: block %s: stage function failed on item %v: %v", e.Block, e.Item, e.Err)
}

// Unwrap returns the function's error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// AggregateError is the error reported by a faulted block. It always holds
// at least one error; blocks faulted by an upstream link carry the
// upstream block's errors.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return "dataflow: 1 error occurred: " + e.Errors[0].Error()
	}

	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("dataflow: %d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// flatten expands an AggregateError into its members so propagated faults
// carry the original errors rather than nesting aggregates.
func flatten(err error) []error {
	var agg *AggregateError
	if errors.As(err, &agg) {
		out := make([]error, 0, len(agg.Errors))
		for _, inner := range agg.Errors {
			out = append(out, flatten(inner)...)
		}
		return out
	}
	return []error{err}
}
