package pk

import (
	"errors"
	"fmt"
)

// ErrPrecondition is matched by PreconditionError. Precondition gaps are
// only raised when the engine runs in strict mode.
var ErrPrecondition = errors.New("precondition not met")

// PreconditionError reports a subject whose profile cannot support a metric.
type PreconditionError struct {
	Metric  string
	Subject int
	Reason  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: subject %d: %s", e.Metric, e.Subject, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }
