// Package errors provides the error taxonomy for the host/guest boundary.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
)

// Sentinel errors. Concrete error types below match them through Is.
var (
	// ErrBoundaryViolation is matched by every out-of-bounds guest memory access.
	ErrBoundaryViolation = stdErrors.New("guest memory boundary violation")

	// ErrInstantiation is matched by contract failures between host and module.
	ErrInstantiation = stdErrors.New("module instantiation failed")

	// ErrGuestTrap is matched when the guest traps or terminates unexpectedly.
	ErrGuestTrap = stdErrors.New("guest trapped")

	// ErrStore is matched by capability store backend failures.
	ErrStore = stdErrors.New("capability store failure")
)

// BoundaryError reports an (offset, length) pair that does not fit inside
// the guest memory region at the time of the access.
type BoundaryError struct {
	Op     string // "read" or "write"
	Offset uint32
	Length uint64
	Size   uint32
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("guest memory %s out of bounds: offset %d length %d exceeds region size %d",
		e.Op, e.Offset, e.Length, e.Size)
}

// Is reports whether target is ErrBoundaryViolation.
func (e *BoundaryError) Is(target error) bool {
	return target == ErrBoundaryViolation
}

// InstantiationError reports a mismatch between what the host expects of a
// module and what the module provides: missing exports, unknown imports or
// signature mismatches. It always signals a deployment defect.
type InstantiationError struct {
	Err    error
	Reason string
}

func (e *InstantiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instantiation: %s: %v", e.Reason, e.Err)
	}
	return "instantiation: " + e.Reason
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInstantiation.
func (e *InstantiationError) Is(target error) bool {
	return target == ErrInstantiation
}

// StoreError represents a capability store backend failure.
type StoreError struct {
	Err     error
	Op      string // "put" or "get"
	Backend string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// TrapError wraps the runtime error raised when the guest traps.
type TrapError struct {
	Err error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest trapped: %v", e.Err)
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrGuestTrap.
func (e *TrapError) Is(target error) bool {
	return target == ErrGuestTrap
}

// ExecutionError records the orchestrator stage at which a request failed.
// Stage is the last stage that was reached successfully.
type ExecutionError struct {
	Err   error
	Stage fmt.Stringer
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed after stage %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
