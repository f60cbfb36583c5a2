package attribution

import (
	"fmt"

	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// IsEmptyInput reports whether err means "nothing to display".
func IsEmptyInput(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.ErrCodeEmptyInput)
}

func emptyInputError(detail string) error {
	return pkgerrors.New(pkgerrors.ErrCodeEmptyInput, "no observations to aggregate").WithDetail(detail)
}

// WarningKind classifies a non-fatal condition met by a stage.
type WarningKind string

const (
	// MissingReferenceWarning: the reference category was not in the table;
	// ordering fell back to the top-ranked category.
	MissingReferenceWarning WarningKind = "missing_reference"

	// DegenerateRowWarning: a row summed to zero under normalization and was
	// left as zeros.
	DegenerateRowWarning WarningKind = "degenerate_row"
)

// Warning is a non-fatal signal returned alongside a stage result.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Entity   string      `json:"entity,omitempty"`
	Category string      `json:"category,omitempty"`
	Fallback string      `json:"fallback,omitempty"`
	Side     string      `json:"side,omitempty"`
}

func (w Warning) String() string {
	switch w.Kind {
	case MissingReferenceWarning:
		return fmt.Sprintf("reference category %q not found, ordered by %q", w.Category, w.Fallback)
	case DegenerateRowWarning:
		return fmt.Sprintf("entity %q has a zero total and was not normalized", w.Entity)
	default:
		return string(w.Kind)
	}
}
