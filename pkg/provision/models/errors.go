package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for provisioning operations. Every backend-level
// failure is mapped to exactly one of these before it leaves the
// orchestrator; no raw OS or tool error surfaces uncategorized.
var (
	// ErrEntityNotFound is returned when the entity (or its storage
	// location) does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEntityExists is returned when provisioning an entity whose
	// storage location already exists.
	ErrEntityExists = errors.New("entity already exists")

	// ErrQuotaInvalid is returned for quotas with soft > hard or
	// unrepresentable values.
	ErrQuotaInvalid = errors.New("quota invalid")

	// ErrBackendUnavailable is returned when the underlying tool or API
	// cannot be invoked: missing utility, unsupported filesystem, or an
	// invocation that timed out or failed unexpectedly.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrConcurrentModification is returned when a mutating operation
	// is attempted while another operation on the same entity is in
	// flight. Callers retry; requests are never queued.
	ErrConcurrentModification = errors.New("concurrent modification in progress")

	// ErrRollbackFailed is returned when a compensation step itself
	// failed. The entity is left in the failed state and requires an
	// operator reset.
	ErrRollbackFailed = errors.New("partial failure, rollback failed")

	// ErrNameInvalid is returned for entity names that are not safe
	// path components.
	ErrNameInvalid = errors.New("entity name invalid")
)

// OpError annotates a backend failure with the entity identity and the
// step that failed, so failures are diagnosable without reading core
// source.
type OpError struct {
	Kind Kind
	Name string
	Step string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %q: step %s: %v", e.Kind, e.Name, e.Step, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// RollbackError reports a failed compensation. It carries both the
// original step failure and the compensation failure; neither is ever
// swallowed.
type RollbackError struct {
	Op           *OpError
	Compensation string
	CompErr      error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v; compensation %s also failed: %v (entity requires operator reset)",
		e.Op, e.Compensation, e.CompErr)
}

// Unwrap makes errors.Is(err, ErrRollbackFailed) hold for every
// RollbackError.
func (e *RollbackError) Unwrap() error {
	return ErrRollbackFailed
}
