/*
Package invite implements projects, invitations, and memberships.

PURPOSE:
  An invitation is a time-bounded offer of project membership tied to a
  provisional seat consumption. Creating one spends a seat from the
  inviter's wallet; the seat stays spent on accept and is refunded
  exactly once on decline, cancel, or expiry.

STATE MACHINE:
  pending -> accepted   (membership created, seat stays spent)
  pending -> declined   (seat refunded)
  pending -> cancelled  (inviter/owner only, seat refunded)
  pending -> expired    (past expires_at, seat refunded)

  All four non-pending states are terminal. An invitation leaves
  pending exactly once; the losing side of a race gets
  ErrInvalidTransition, never a silently-dropped write.

SEE ALSO:
  - service.go: Transition logic and ledger coupling
  - store.go: Persistence with conditional resolve
*/
package invite

import "time"

// =============================================================================
// ROLES
// =============================================================================

// Role is the capacity an invitee joins a project in. Each role maps to
// a wallet resource consumed at invitation time.
type Role string

const (
	RoleFacilitator Role = "facilitator"
	RoleStoryteller Role = "storyteller"
)

func (r Role) Valid() bool {
	return r == RoleFacilitator || r == RoleStoryteller
}

// =============================================================================
// INVITATION
// =============================================================================

type InvitationID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status allows no further transitions.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Invitation is a pending or resolved offer of membership.
type Invitation struct {
	ID        InvitationID
	ProjectID ProjectID
	InviterID string
	Email     string
	Role      Role
	Status    Status

	// Token is the URL-safe secret the invitee presents to accept.
	Token string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

// ExpiredAt reports whether the invitation's window has closed as of now.
// Purely time-based, so the check is correct whether it runs in the
// sweep, at accept time, or both.
func (i Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// =============================================================================
// PROJECT
// =============================================================================

type ProjectID string

// Project is the collaborative container memberships attach to.
// Creating one consumes a project voucher from the owner's wallet.
type Project struct {
	ID        ProjectID
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

type MembershipStatus string

const (
	MemberActive  MembershipStatus = "active"
	MemberRemoved MembershipStatus = "removed"
)

// Membership is created exactly once per accepted invitation. It is not
// resource-bearing; the seat was consumed when the invitation was sent.
type Membership struct {
	ID           string
	ProjectID    ProjectID
	MemberID     string
	Role         Role
	Status       MembershipStatus
	InvitationID InvitationID
	CreatedAt    time.Time
}
