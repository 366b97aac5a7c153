package verify

import (
	"errors"
	"fmt"
)

// Class buckets a fault into one of the user-facing response classes:
// fix your input, try again later, or wrong state.
type Class string

const (
	// ClassValidation marks user-correctable input problems.
	ClassValidation Class = "validation"
	// ClassStorage marks failed record-store calls (transient).
	ClassStorage Class = "storage"
	// ClassDelivery marks failed notifier calls (transient; pending
	// state is already persisted).
	ClassDelivery Class = "delivery"
	// ClassNotApplicable marks operations invalid for the current state
	// (absent record, already verified, not yet verified, expired code).
	ClassNotApplicable Class = "not_applicable"
)

// Fault is the typed error produced by verification operations.
type Fault struct {
	Class Class
	// Code identifies the precise condition (incorrect_code, code_expired, ...).
	Code string
	err  error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.err != nil {
		return fmt.Sprintf("%s/%s: %v", f.Class, f.Code, f.err)
	}
	return fmt.Sprintf("%s/%s", f.Class, f.Code)
}

// Unwrap exposes the underlying cause, if any.
func (f *Fault) Unwrap() error { return f.err }

func fault(class Class, code string, cause error) *Fault {
	return &Fault{Class: class, Code: code, err: cause}
}

// FaultFrom extracts a *Fault from an error chain.
func FaultFrom(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// ClassOf returns the fault class of err, or "" for untyped errors.
func ClassOf(err error) Class {
	if f, ok := FaultFrom(err); ok {
		return f.Class
	}
	return ""
}
