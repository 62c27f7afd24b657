/*
errors.go - Invitation error types

PURPOSE:
  Typed business failures for the invitation state machine. Every
  validation failure (wrong state, wrong actor, expired window) is
  returned synchronously; none is only logged.

SEE ALSO:
  - wallet/errors.go: Balance-level errors these compose with
*/
package invite

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInvalidTransition is returned when an invitation is already
	// resolved, including when the caller lost a race to resolve it.
	ErrInvalidTransition = errors.New("invalid invitation transition")

	// ErrInvitationExpired is a distinct case of an invalid transition:
	// the accept arrived after expires_at. Reported separately so the
	// UI can offer to request a new invitation.
	ErrInvitationExpired = errors.New("invitation expired")

	// ErrNotFound is returned for an unknown invitation, token, or
	// project.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor may not perform the
	// transition (cancel is inviter/owner only).
	ErrForbidden = errors.New("actor not permitted")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidTransitionError reports the state that blocked a transition.
type InvalidTransitionError struct {
	InvitationID InvitationID
	From         Status
	Attempted    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invitation %s is %s, cannot transition to %s",
		e.InvitationID, e.From, e.Attempted)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsClientError reports whether the error maps to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvitationExpired) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden)
}
