/*
Package memory provides an in-memory implementation of the storage
interfaces, for tests and development.

PURPOSE:
  Implements wallet.Store, invite.Store, and invite.TxStore with maps
  behind one RWMutex. WithUnit snapshots the state before running fn
  and restores it on error, giving the same all-or-nothing semantics
  as the SQLite store's database transactions.

SEE ALSO:
  - store/sqlite: Production implementation
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/wallet"
)

type balanceKey struct {
	UserID   wallet.UserID
	Resource wallet.ResourceType
}

type state struct {
	transactions []wallet.Transaction
	idempotency  map[string]bool
	balances     map[balanceKey]int64

	invitations map[invite.InvitationID]invite.Invitation
	projects    map[invite.ProjectID]invite.Project
	memberships map[invite.InvitationID]invite.Membership
}

func newState() *state {
	return &state{
		idempotency: make(map[string]bool),
		balances:    make(map[balanceKey]int64),
		invitations: make(map[invite.InvitationID]invite.Invitation),
		projects:    make(map[invite.ProjectID]invite.Project),
		memberships: make(map[invite.InvitationID]invite.Membership),
	}
}

func (st *state) clone() *state {
	c := newState()
	c.transactions = append([]wallet.Transaction(nil), st.transactions...)
	for k, v := range st.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.invitations {
		c.invitations[k] = v
	}
	for k, v := range st.projects {
		c.projects[k] = v
	}
	for k, v := range st.memberships {
		c.memberships[k] = v
	}
	return c
}

// Store is the in-memory store.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// =============================================================================
// LEDGER (wallet.Store interface)
// =============================================================================

func (s *Store) Append(_ context.Context, tx wallet.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.append(tx)
}

func (s *Store) AppendBatch(_ context.Context, txs []wallet.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Apply against a snapshot so a mid-batch failure leaves nothing.
	staged := s.st.clone()
	for _, tx := range txs {
		if err := staged.append(tx); err != nil {
			return err
		}
	}
	s.st = staged
	return nil
}

func (st *state) append(tx wallet.Transaction) error {
	if tx.IdempotencyKey != "" && st.idempotency[tx.IdempotencyKey] {
		return wallet.ErrDuplicateIdempotencyKey
	}

	k := balanceKey{UserID: tx.UserID, Resource: tx.Resource}
	next := st.balances[k] + tx.Delta.Int64()
	if next < 0 {
		return wallet.ErrInsufficientBalance
	}

	st.balances[k] = next
	st.transactions = append(st.transactions, tx)
	if tx.IdempotencyKey != "" {
		st.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (s *Store) Load(_ context.Context, userID wallet.UserID, resource wallet.ResourceType) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []wallet.Transaction
	for _, tx := range s.st.transactions {
		if tx.UserID == userID && tx.Resource == resource {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) LoadByUser(_ context.Context, userID wallet.UserID) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []wallet.Transaction
	for _, tx := range s.st.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) Balance(_ context.Context, userID wallet.UserID) (wallet.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.balance(userID), nil
}

func (st *state) balance(userID wallet.UserID) wallet.Balance {
	bal := wallet.NewBalance(userID)
	for _, r := range wallet.AllResources {
		bal.Counters[r] = wallet.Units(st.balances[balanceKey{UserID: userID, Resource: r}])
	}
	return bal
}

func (s *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.idempotency[idempotencyKey], nil
}

func (s *Store) ByCorrelation(_ context.Context, correlationRef string) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.byCorrelation(correlationRef), nil
}

func (st *state) byCorrelation(correlationRef string) []wallet.Transaction {
	var out []wallet.Transaction
	for _, tx := range st.transactions {
		if tx.CorrelationRef == correlationRef {
			out = append(out, tx)
		}
	}
	return out
}

// =============================================================================
// INVITATIONS (invite.Store interface)
// =============================================================================

func (s *Store) SaveInvitation(_ context.Context, inv invite.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.invitations[inv.ID] = inv
	return nil
}

func (s *Store) GetInvitation(_ context.Context, id invite.InvitationID) (*invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inv, ok := s.st.invitations[id]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (s *Store) GetInvitationByToken(_ context.Context, token string) (*invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.st.invitations {
		if inv.Token == token {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (s *Store) ListInvitationsByProject(_ context.Context, projectID invite.ProjectID) ([]invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invite.Invitation
	for _, inv := range s.st.invitations {
		if inv.ProjectID == projectID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDuePending(_ context.Context, now time.Time, limit int) ([]invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var out []invite.Invitation
	for _, inv := range s.st.invitations {
		if inv.Status == invite.StatusPending && now.After(inv.ExpiresAt) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Resolve(_ context.Context, id invite.InvitationID, to invite.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.resolve(id, to, at), nil
}

func (st *state) resolve(id invite.InvitationID, to invite.Status, at time.Time) bool {
	inv, ok := st.invitations[id]
	if !ok || inv.Status != invite.StatusPending {
		return false
	}
	inv.Status = to
	inv.ResolvedAt = &at
	st.invitations[id] = inv
	return true
}

func (s *Store) SaveProject(_ context.Context, p invite.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.projects[p.ID] = p
	return nil
}

func (s *Store) GetProject(_ context.Context, id invite.ProjectID) (*invite.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.st.projects[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) SaveMembership(_ context.Context, m invite.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.saveMembership(m)
}

func (st *state) saveMembership(m invite.Membership) error {
	if _, exists := st.memberships[m.InvitationID]; exists {
		return invite.ErrInvalidTransition
	}
	st.memberships[m.InvitationID] = m
	return nil
}

func (s *Store) ListMembers(_ context.Context, projectID invite.ProjectID) ([]invite.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invite.Membership
	for _, m := range s.st.memberships {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// UNIT OF WORK (invite.TxStore interface)
// =============================================================================

// WithUnit runs fn against a staged copy of the state; the copy is
// swapped in only when fn succeeds.
func (s *Store) WithUnit(_ context.Context, fn func(invite.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&unit{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// unit exposes the staged state through the store interfaces. The
// parent mutex is held for the whole unit; no locking here.
type unit struct {
	st *state
}

func (u *unit) Wallet() wallet.Store      { return (*unitWallet)(u) }
func (u *unit) Invitations() invite.Store { return (*unitInvitations)(u) }

type unitWallet unit

func (u *unitWallet) Append(_ context.Context, tx wallet.Transaction) error {
	return u.st.append(tx)
}

func (u *unitWallet) AppendBatch(_ context.Context, txs []wallet.Transaction) error {
	for _, tx := range txs {
		if err := u.st.append(tx); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitWallet) Load(_ context.Context, userID wallet.UserID, resource wallet.ResourceType) ([]wallet.Transaction, error) {
	var out []wallet.Transaction
	for _, tx := range u.st.transactions {
		if tx.UserID == userID && tx.Resource == resource {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (u *unitWallet) LoadByUser(_ context.Context, userID wallet.UserID) ([]wallet.Transaction, error) {
	var out []wallet.Transaction
	for _, tx := range u.st.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (u *unitWallet) Balance(_ context.Context, userID wallet.UserID) (wallet.Balance, error) {
	return u.st.balance(userID), nil
}

func (u *unitWallet) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return u.st.idempotency[idempotencyKey], nil
}

func (u *unitWallet) ByCorrelation(_ context.Context, correlationRef string) ([]wallet.Transaction, error) {
	return u.st.byCorrelation(correlationRef), nil
}

type unitInvitations unit

func (u *unitInvitations) SaveInvitation(_ context.Context, inv invite.Invitation) error {
	u.st.invitations[inv.ID] = inv
	return nil
}

func (u *unitInvitations) GetInvitation(_ context.Context, id invite.InvitationID) (*invite.Invitation, error) {
	if inv, ok := u.st.invitations[id]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (u *unitInvitations) GetInvitationByToken(_ context.Context, token string) (*invite.Invitation, error) {
	for _, inv := range u.st.invitations {
		if inv.Token == token {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (u *unitInvitations) ListInvitationsByProject(_ context.Context, projectID invite.ProjectID) ([]invite.Invitation, error) {
	var out []invite.Invitation
	for _, inv := range u.st.invitations {
		if inv.ProjectID == projectID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (u *unitInvitations) ListDuePending(_ context.Context, now time.Time, limit int) ([]invite.Invitation, error) {
	var out []invite.Invitation
	for _, inv := range u.st.invitations {
		if inv.Status == invite.StatusPending && now.After(inv.ExpiresAt) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (u *unitInvitations) Resolve(_ context.Context, id invite.InvitationID, to invite.Status, at time.Time) (bool, error) {
	return u.st.resolve(id, to, at), nil
}

func (u *unitInvitations) SaveProject(_ context.Context, p invite.Project) error {
	u.st.projects[p.ID] = p
	return nil
}

func (u *unitInvitations) GetProject(_ context.Context, id invite.ProjectID) (*invite.Project, error) {
	if p, ok := u.st.projects[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (u *unitInvitations) SaveMembership(_ context.Context, m invite.Membership) error {
	return u.st.saveMembership(m)
}

func (u *unitInvitations) ListMembers(_ context.Context, projectID invite.ProjectID) ([]invite.Membership, error) {
	var out []invite.Membership
	for _, m := range u.st.memberships {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}
