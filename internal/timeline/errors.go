package timeline

import (
	"fmt"

	"recut/internal/services"
)

// Invariant names a timeline rule an edit or detector output violated.
type Invariant string

const (
	InvariantNonEmpty       Invariant = "non_empty"
	InvariantFinite         Invariant = "finite_bounds"
	InvariantStartBeforeEnd Invariant = "start_before_end"
	InvariantOrdered        Invariant = "ordered_indices"
	InvariantContiguous     Invariant = "contiguous"
	InvariantCoverageStart  Invariant = "coverage_start"
	InvariantCoverageEnd    Invariant = "coverage_end"
	InvariantNeighbor       Invariant = "neighbor_exists"
	InvariantSplitInside    Invariant = "split_inside_scene"
)

// ValidationError reports a rejected edit or malformed detector output.
type ValidationError struct {
	Op        string
	Index     int
	Invariant Invariant
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("timeline %s: %s: %s", e.Op, e.Invariant, e.Reason)
	}
	return fmt.Sprintf("timeline %s: scene %d: %s: %s", e.Op, e.Index, e.Invariant, e.Reason)
}

func (e *ValidationError) Unwrap() error { return services.ErrValidation }

func invalid(op string, index int, inv Invariant, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Index: index, Invariant: inv, Reason: fmt.Sprintf(format, args...)}
}

func sceneNotFound(op string, index, count int) error {
	return services.Wrap(services.ErrNotFound, "timeline", op,
		fmt.Sprintf("scene %d does not exist (timeline has %d scenes)", index, count), nil)
}
