package staff

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("staff record not found")
	ErrWrongLocation      = errors.New("staff record is not at the expected location")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrTransitionInFlight = errors.New("a transition for this record is already in progress")
	ErrTransitionTimeout  = errors.New("transition timed out; the write may or may not have landed")
	ErrNotDuplicated      = errors.New("staff record is not present in both locations")
)

// ValidationError blocks a save or transition. Section is the tab to show.
type ValidationError struct {
	Section Section
	Result  Result
}

func (e *ValidationError) Error() string {
	if len(e.Result.Errors) == 0 {
		return fmt.Sprintf("validation failed in %s", e.Section)
	}
	return fmt.Sprintf("validation failed in %s: %s", e.Section, e.Result.Errors[0])
}

// LockViolation is a refused edit to a locked row. It is reported, never returned as an error.
type LockViolation struct {
	Collection string `json:"collection"`
	Row        int    `json:"row"`
	Field      string `json:"field,omitempty"`
}

func (v LockViolation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s #%d is locked and cannot be removed", v.Collection, v.Row)
	}
	return fmt.Sprintf("%s #%d is locked; %s was not changed", v.Collection, v.Row, v.Field)
}

// PreconditionError is a missing or invalid reason or comment on a transition.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Field + ": " + e.Reason
}

// StoreError wraps a record store failure with the paths involved.
type StoreError struct {
	Op    string
	Paths []string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, strings.Join(e.Paths, ","), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

const (
	StageVerify       = "verify-destination"
	StageDeleteSource = "delete-source"
)

// ReconcileError reports a non-atomic move that stopped halfway. The record
// may exist in both locations and needs a manual decision.
type ReconcileError struct {
	Stage       string
	Source      string
	Destination string
	Err         error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("move %s -> %s stopped at %s: %v", e.Source, e.Destination, e.Stage, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }
