/*
store.go - Persistence interface for invitations, projects, memberships

PURPOSE:
  Defines how the invitation state machine talks to the database, and
  the unit-of-work contract that couples an invitation status change to
  its ledger mutation so they commit together or not at all.

CONDITIONAL RESOLVE:
  Resolve() updates the status only when the row is still pending
  (UPDATE ... WHERE status = 'pending' in SQL terms) and reports whether
  the update applied. Two concurrent resolutions of the same invitation
  are thereby serialized at the storage layer: exactly one wins, the
  loser sees applied == false and surfaces ErrInvalidTransition.

SEE ALSO:
  - service.go: The only caller of Resolve
  - store/sqlite/sqlite.go: Production implementation
*/
package invite

import (
	"context"
	"time"

	"github.com/saga/wallet-engine/wallet"
)

// Store handles persistence of invitations, projects, and memberships.
type Store interface {
	// SaveInvitation inserts a new invitation. Insert-only; resolved
	// fields change exclusively through Resolve.
	SaveInvitation(ctx context.Context, inv Invitation) error

	// GetInvitation returns an invitation by id, nil if absent.
	GetInvitation(ctx context.Context, id InvitationID) (*Invitation, error)

	// GetInvitationByToken returns an invitation by accept token.
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)

	// ListInvitationsByProject returns all invitations for a project,
	// newest first.
	ListInvitationsByProject(ctx context.Context, projectID ProjectID) ([]Invitation, error)

	// ListDuePending returns pending invitations whose expires_at is
	// before now. Used by the expiration sweep.
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]Invitation, error)

	// Resolve conditionally moves a pending invitation to a terminal
	// status. Returns false when the invitation was not pending (or was
	// resolved concurrently); nothing is written in that case.
	Resolve(ctx context.Context, id InvitationID, to Status, at time.Time) (bool, error)

	// SaveProject inserts a project.
	SaveProject(ctx context.Context, p Project) error

	// GetProject returns a project by id, nil if absent.
	GetProject(ctx context.Context, id ProjectID) (*Project, error)

	// SaveMembership inserts a membership record.
	SaveMembership(ctx context.Context, m Membership) error

	// ListMembers returns memberships for a project.
	ListMembers(ctx context.Context, projectID ProjectID) ([]Membership, error)
}

// UnitOfWork exposes ledger and invitation persistence bound to one
// underlying database transaction. A status update and its ledger
// mutation go through the same unit so neither commits without the
// other.
type UnitOfWork interface {
	Wallet() wallet.Store
	Invitations() Store
}

// TxStore extends Store with atomic units of work.
type TxStore interface {
	Store

	// WithUnit executes fn within one database transaction. If fn
	// returns an error the whole unit rolls back.
	WithUnit(ctx context.Context, fn func(UnitOfWork) error) error
}
