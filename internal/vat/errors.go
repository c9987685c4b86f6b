package vat

import (
	"errors"
	"fmt"
)

var (
	// ErrDeclarationLocked is returned when a submitted or archived
	// declaration is edited.
	ErrDeclarationLocked = errors.New("declaration is locked")

	// ErrCoherenceFailed is returned when a coherence control reports an
	// error at submission.
	ErrCoherenceFailed = errors.New("coherence controls failed")

	// ErrPersistenceFailure is returned when the store rejects a write and
	// the submit policy rolls back.
	ErrPersistenceFailure = errors.New("declaration persistence failed")

	// ErrUnknownCategory is returned for a section/category pair outside the form.
	ErrUnknownCategory = errors.New("unknown declaration category")

	// ErrUnknownPeriod is returned for a period code that is neither Q1-Q4 nor M1-M12.
	ErrUnknownPeriod = errors.New("unknown declaration period")

	// ErrNoCurrentDeclaration is returned before any declaration is opened.
	ErrNoCurrentDeclaration = errors.New("no current declaration")

	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid declaration status transition")

	// ErrAccountingUnavailable is returned by accounting sources that cannot
	// deliver data.
	ErrAccountingUnavailable = errors.New("accounting data unavailable")
)

// DeclarationError carries the failing operation and declaration id.
type DeclarationError struct {
	Op            string
	DeclarationID string
	Err           error
	Details       string
	// Controls is set when submission was refused by coherence controls.
	Controls []Control
}

func (e *DeclarationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("vat: %s %s failed: %s: %v", e.Op, e.DeclarationID, e.Details, e.Err)
	}
	return fmt.Sprintf("vat: %s %s failed: %v", e.Op, e.DeclarationID, e.Err)
}

func (e *DeclarationError) Unwrap() error {
	return e.Err
}

func (e *DeclarationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDeclarationError creates a DeclarationError.
func NewDeclarationError(op, declarationID string, err error, details string) *DeclarationError {
	return &DeclarationError{Op: op, DeclarationID: declarationID, Err: err, Details: details}
}

// WrapDeclarationError wraps err unless it already is a DeclarationError.
func WrapDeclarationError(op, declarationID string, err error, details string) error {
	if err == nil {
		return nil
	}

	var declErr *DeclarationError
	if errors.As(err, &declErr) {
		return err
	}

	return NewDeclarationError(op, declarationID, err, details)
}
