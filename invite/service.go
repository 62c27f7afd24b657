/*
service.go - Invitation state machine and project lifecycle

PURPOSE:
  Orchestrates every transition an invitation can make, coupling each
  one to its wallet side effect inside a single unit of work:

  create   validate seat -> consume seat + insert pending   (one unit)
  accept   resolve accepted + insert membership             (one unit)
  decline  resolve declined + refund seat                   (one unit)
  cancel   resolve cancelled + refund seat (inviter/owner)  (one unit)
  expire   resolve expired + refund seat                    (one unit)

ACCEPT vs EXPIRE:
  Accept re-checks the expiry window. An accept arriving after
  expires_at resolves the invitation to expired, refunds the seat, and
  reports ErrInvitationExpired - the same outcome the sweep would have
  produced, whichever side gets there first. The conditional resolve in
  the store guarantees exactly one side wins.

NOTIFICATIONS:
  Emitted after the unit commits, fire-and-forget. A failed delivery
  never rolls back a transition.

SEE ALSO:
  - store.go: Conditional resolve and unit-of-work contracts
  - wallet/ledger.go: Consume/Reverse semantics
*/
package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saga/wallet-engine/wallet"
)

// DefaultExpiry is applied when an invitation is created without an
// explicit window.
const DefaultExpiry = 14 * 24 * time.Hour

// SeatFor maps a membership role to the wallet resource it consumes.
func SeatFor(role Role) wallet.ResourceType {
	if role == RoleFacilitator {
		return wallet.ResourceFacilitatorSeats
	}
	return wallet.ResourceStorytellerSeats
}

// Service drives the invitation state machine. Constructed once at
// process start and injected into handlers; no package-level state.
type Service struct {
	store    TxStore
	notifier Notifier
	now      func() time.Time
}

func NewService(store TxStore, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the service clock. For tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProject consumes one project voucher from the owner's wallet
// and creates the project. Voucher check and project insert commit
// together.
func (s *Service) CreateProject(ctx context.Context, ownerID, name string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name required")
	}

	project := Project{
		ID:        ProjectID(uuid.NewString()),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: s.now(),
	}

	err := s.store.WithUnit(ctx, func(uow UnitOfWork) error {
		ledger := wallet.NewLedger(uow.Wallet())
		if _, err := ledger.Consume(ctx, wallet.UserID(ownerID), wallet.ResourceProjectVouchers, 1,
			string(project.ID), "project created: "+name, ownerID); err != nil {
			return err
		}
		return uow.Invitations().SaveProject(ctx, project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProject returns a project or ErrNotFound.
func (s *Service) GetProject(ctx context.Context, id ProjectID) (*Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// =============================================================================
// INVITATION LIFECYCLE
// =============================================================================

// Invite creates a pending invitation, consuming one seat of the
// matching type from the inviter's wallet. The seat consumption and the
// invitation insert commit together; on insufficient balance nothing is
// created and the deficit report is returned.
func (s *Service) Invite(ctx context.Context, projectID ProjectID, inviterID, email string, role Role, expiresIn time.Duration) (*Invitation, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if email == "" {
		return nil, fmt.Errorf("invitee email required")
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if expiresIn <= 0 {
		expiresIn = DefaultExpiry
	}

	now := s.now()
	inv := Invitation{
		ID:        InvitationID(uuid.NewString()),
		ProjectID: projectID,
		InviterID: inviterID,
		Email:     email,
		Role:      role,
		Status:    StatusPending,
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}

	err := s.store.WithUnit(ctx, func(uow UnitOfWork) error {
		ledger := wallet.NewLedger(uow.Wallet())
		if _, err := ledger.Consume(ctx, wallet.UserID(inviterID), SeatFor(role), 1,
			string(inv.ID), "invitation to "+email, inviterID); err != nil {
			return err
		}
		return uow.Invitations().SaveInvitation(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, Event{
		Type:      EventInvitationSent,
		ProjectID: projectID,
		ActorID:   inviterID,
		TargetID:  email,
		Context:   map[string]string{"invitation_id": string(inv.ID), "role": string(role)},
	})
	return &inv, nil
}

// Accept finalizes a pending invitation by token: marks it accepted and
// creates the membership. The consumed seat stays permanently spent.
// An accept after the expiry window resolves the invitation to expired,
// refunds the seat once, and reports ErrInvitationExpired.
func (s *Service) Accept(ctx context.Context, token, accepterID string) (*Membership, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("invitation token: %w", ErrNotFound)
	}
	if inv.Status.Terminal() {
		return nil, &InvalidTransitionError{InvitationID: inv.ID, From: inv.Status, Attempted: StatusAccepted}
	}

	now := s.now()
	if inv.ExpiredAt(now) {
		if err := s.resolveAndRefund(ctx, inv, StatusExpired, "system"); err != nil {
			return nil, err
		}
		s.notifyResolved(ctx, inv, EventInvitationExpired, "system")
		return nil, fmt.Errorf("invitation %s: %w", inv.ID, ErrInvitationExpired)
	}

	membership := Membership{
		ID:           uuid.NewString(),
		ProjectID:    inv.ProjectID,
		MemberID:     accepterID,
		Role:         inv.Role,
		Status:       MemberActive,
		InvitationID: inv.ID,
		CreatedAt:    now,
	}

	err = s.store.WithUnit(ctx, func(uow UnitOfWork) error {
		applied, err := uow.Invitations().Resolve(ctx, inv.ID, StatusAccepted, now)
		if err != nil {
			return err
		}
		if !applied {
			return s.lostRace(ctx, uow, inv.ID, StatusAccepted)
		}
		return uow.Invitations().SaveMembership(ctx, membership)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, Event{
		Type:      EventMemberJoined,
		ProjectID: inv.ProjectID,
		ActorID:   accepterID,
		TargetID:  inv.InviterID,
		Context:   map[string]string{"invitation_id": string(inv.ID), "role": string(inv.Role)},
	})
	return &membership, nil
}

// Decline resolves a pending invitation as declined and refunds the
// seat to the inviter's wallet.
func (s *Service) Decline(ctx context.Context, id InvitationID) error {
	inv, err := s.pending(ctx, id, StatusDeclined)
	if err != nil {
		return err
	}
	if err := s.resolveAndRefund(ctx, inv, StatusDeclined, inv.Email); err != nil {
		return err
	}
	s.notifyResolved(ctx, inv, EventInvitationDeclined, inv.Email)
	return nil
}

// Cancel resolves a pending invitation as cancelled. Only the original
// inviter or the project owner may cancel.
func (s *Service) Cancel(ctx context.Context, id InvitationID, actorID string) error {
	inv, err := s.pending(ctx, id, StatusCancelled)
	if err != nil {
		return err
	}

	if actorID != inv.InviterID {
		project, err := s.GetProject(ctx, inv.ProjectID)
		if err != nil {
			return err
		}
		if actorID != project.OwnerID {
			return fmt.Errorf("cancel by %s: %w", actorID, ErrForbidden)
		}
	}

	if err := s.resolveAndRefund(ctx, inv, StatusCancelled, actorID); err != nil {
		return err
	}
	s.notifyResolved(ctx, inv, EventInvitationCancelled, actorID)
	return nil
}

// Expire resolves a pending invitation past its window as expired and
// refunds the seat. System-triggered; idempotent via the terminal-state
// guard, so running it twice (or racing the sweep against an accept) is
// harmless.
func (s *Service) Expire(ctx context.Context, id InvitationID) error {
	inv, err := s.pending(ctx, id, StatusExpired)
	if err != nil {
		return err
	}
	if !inv.ExpiredAt(s.now()) {
		return fmt.Errorf("invitation %s not yet due: %w", id, ErrInvalidTransition)
	}
	if err := s.resolveAndRefund(ctx, inv, StatusExpired, "system"); err != nil {
		return err
	}
	s.notifyResolved(ctx, inv, EventInvitationExpired, "system")
	return nil
}

// ExpireDue expires every pending invitation past its window. Returns
// the number expired. Losing a race on an individual invitation is not
// an error; that invitation was resolved by someone else.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	due, err := s.store.ListDuePending(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, inv := range due {
		if err := s.Expire(ctx, inv.ID); err != nil {
			if IsClientError(err) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) GetInvitation(ctx context.Context, id InvitationID) (*Invitation, error) {
	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}
	return inv, nil
}

func (s *Service) ListInvitations(ctx context.Context, projectID ProjectID) ([]Invitation, error) {
	return s.store.ListInvitationsByProject(ctx, projectID)
}

func (s *Service) ListMembers(ctx context.Context, projectID ProjectID) ([]Membership, error) {
	return s.store.ListMembers(ctx, projectID)
}

// =============================================================================
// INTERNALS
// =============================================================================

// pending loads an invitation and rejects the transition early when it
// is already resolved. The conditional resolve remains the real guard;
// this check just produces a precise error without opening a unit.
func (s *Service) pending(ctx context.Context, id InvitationID, attempted Status) (*Invitation, error) {
	inv, err := s.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, &InvalidTransitionError{InvitationID: id, From: inv.Status, Attempted: attempted}
	}
	return inv, nil
}

// resolveAndRefund moves a pending invitation to a refunding terminal
// state and reverses its seat consumption in one unit. The refund is
// keyed on the invitation id, so it happens at most once no matter how
// many paths race to resolve.
func (s *Service) resolveAndRefund(ctx context.Context, inv *Invitation, to Status, actor string) error {
	now := s.now()
	return s.store.WithUnit(ctx, func(uow UnitOfWork) error {
		applied, err := uow.Invitations().Resolve(ctx, inv.ID, to, now)
		if err != nil {
			return err
		}
		if !applied {
			return s.lostRace(ctx, uow, inv.ID, to)
		}
		ledger := wallet.NewLedger(uow.Wallet())
		_, err = ledger.Reverse(ctx, string(inv.ID), "invitation "+string(to), actor)
		return err
	})
}

// lostRace builds the InvalidTransition error for the losing side of a
// concurrent resolve, naming the state that won.
func (s *Service) lostRace(ctx context.Context, uow UnitOfWork, id InvitationID, attempted Status) error {
	current, err := uow.Invitations().GetInvitation(ctx, id)
	if err != nil {
		return err
	}
	from := StatusPending
	if current != nil {
		from = current.Status
	}
	return &InvalidTransitionError{InvitationID: id, From: from, Attempted: attempted}
}

func (s *Service) notifyResolved(ctx context.Context, inv *Invitation, event EventType, actor string) {
	s.notifier.Notify(ctx, Event{
		Type:      event,
		ProjectID: inv.ProjectID,
		ActorID:   actor,
		TargetID:  inv.Email,
		Context:   map[string]string{"invitation_id": string(inv.ID), "role": string(inv.Role)},
	})
}
