package dataset

import (
	"errors"
	"fmt"
)

// ErrValidation is matched (via errors.Is) by every input validation failure
// in the analysis core: type coercion, schema, value range, statistic names
// and generator configuration.
var ErrValidation = errors.New("validation error")

// TypeConversionError reports a cell that could not be coerced to the column type.
type TypeConversionError struct {
	Row    int // 1-based data row (header excluded)
	Column string
	Value  string
	Want   string // "integer" or "real"
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("row %d: cannot convert %s value %q to %s", e.Row, e.Column, e.Value, e.Want)
}

func (e *TypeConversionError) Is(target error) bool { return target == ErrValidation }

// ValidationError reports a structurally valid but semantically invalid input.
type ValidationError struct {
	Row   int // 0 when not tied to a row
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
