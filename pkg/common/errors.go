package common

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the core. Callers match with errors.Is.
var (
	// ErrNotFound is returned when an entity or namespace is absent and the
	// operation is not naturally idempotent.
	ErrNotFound = errors.New("not found")

	// ErrConsistency marks detected divergence between the canonical store
	// and the graph projection. Never healed silently; the caller must
	// trigger an explicit rebuild or reconciliation.
	ErrConsistency = errors.New("consistency violation")

	// ErrCollaborator wraps failures of the text store, graph backend or
	// triage policy. Reads are retried with bounded backoff; writes are not,
	// because a retry after an ambiguous failure could double-apply.
	ErrCollaborator = errors.New("collaborator unavailable")

	// ErrLockHeld is the operator-facing fault for a namespace lock held
	// past its hard ceiling. Not resolved automatically.
	ErrLockHeld = errors.New("namespace lock held past hard ceiling")
)

// ValidationError reports a request the core refuses to act on: malformed
// names, invalid relationship kinds, or ablation plan conflicts. It carries
// the specific conflicting entity ids so callers can resolve them.
type ValidationError struct {
	Reason    string
	EntityIDs []string
}

func (e *ValidationError) Error() string {
	if len(e.EntityIDs) == 0 {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s (entities: %s)", e.Reason, strings.Join(e.EntityIDs, ", "))
}

// NewValidationError builds a ValidationError for the given entity ids.
func NewValidationError(reason string, ids []string) *ValidationError {
	return &ValidationError{Reason: reason, EntityIDs: ids}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
