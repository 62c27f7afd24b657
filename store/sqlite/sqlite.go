/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements wallet.Store, invite.Store, and invite.TxStore using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  transactions:  Immutable ledger of all balance changes
  wallets:       Balance projection, updated in the same database
                 transaction as every ledger append
  invitations:   Invitation state machine rows
  projects:      Project records
  memberships:   One row per accepted invitation (unique constraint)

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE is ever issued against transactions. Corrections
  are refund rows.

CONSUME GUARD:
  A debit is applied to the wallets projection with a conditional
  update (balance + delta >= 0). Zero rows affected means the counter
  would have gone negative; the whole append rolls back and
  wallet.ErrInsufficientBalance is returned. The guard and the ledger
  insert share one database transaction, so two concurrent consumes
  can never both pass against a stale balance.

CONDITIONAL RESOLVE:
  Invitation resolution is UPDATE ... WHERE status = 'pending'. The
  losing side of a concurrent resolve affects zero rows and the caller
  surfaces InvalidTransition.

WAL MODE:
  SQLite is opened with WAL for better concurrency, plus a sync.RWMutex
  as in-process serialization. With PostgreSQL, row locking replaces
  the mutex.

SEE ALSO:
  - wallet/store.go, invite/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/wallet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: ":memory:" databases are per-connection, and the
	// store serializes writes through its mutex anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		delta TEXT NOT NULL,
		kind TEXT NOT NULL,
		correlation_ref TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_resource
		ON transactions(user_id, resource, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_correlation
		ON transactions(correlation_ref) WHERE correlation_ref IS NOT NULL;

	-- Wallets (balance projection; ledger remains the source of truth)
	CREATE TABLE IF NOT EXISTS wallets (
		user_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, resource)
	);

	-- Projects
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);

	-- Invitations
	CREATE TABLE IF NOT EXISTS invitations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		inviter_id TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		token TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invitations_project
		ON invitations(project_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_invitations_due
		ON invitations(status, expires_at);

	-- Memberships (exactly one per accepted invitation)
	CREATE TABLE IF NOT EXISTS memberships (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		invitation_id TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_project
		ON memberships(project_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER (wallet.Store interface)
// =============================================================================

// Append adds a ledger transaction and updates the wallet projection
// atomically.
func (s *Store) Append(ctx context.Context, tx wallet.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := appendTx(ctx, sqlTx, tx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []wallet.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func appendTx(ctx context.Context, db dbtx, tx wallet.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, user_id, resource, delta, kind, correlation_ref, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.Resource,
		tx.Delta.String(),
		tx.Kind,
		nullString(tx.CorrelationRef),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		tx.CreatedBy,
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return wallet.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return applyProjection(ctx, db, tx)
}

// applyProjection folds the delta into the wallets table. Debits use a
// conditional update so the counter can never go negative.
func applyProjection(ctx context.Context, db dbtx, tx wallet.Transaction) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	delta := tx.Delta.Int64()

	_, err := db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, resource, balance, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(user_id, resource) DO NOTHING`,
		tx.UserID, tx.Resource, now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure wallet row: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE wallets SET balance = balance + ?, updated_at = ?
		WHERE user_id = ? AND resource = ? AND balance + ? >= 0`,
		delta, now, tx.UserID, tx.Resource, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet projection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return wallet.ErrInsufficientBalance
	}
	return nil
}

// Load returns all transactions for a user and resource type.
func (s *Store) Load(ctx context.Context, userID wallet.UserID, resource wallet.ResourceType) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db, `
		SELECT id, user_id, resource, delta, kind, correlation_ref, reason, idempotency_key, created_by, created_at
		FROM transactions
		WHERE user_id = ? AND resource = ?
		ORDER BY created_at ASC, id ASC`,
		userID, resource)
}

// LoadByUser returns all transactions for a user across resources.
func (s *Store) LoadByUser(ctx context.Context, userID wallet.UserID) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db, `
		SELECT id, user_id, resource, delta, kind, correlation_ref, reason, idempotency_key, created_by, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`,
		userID)
}

// ByCorrelation returns all transactions for a correlation reference.
func (s *Store) ByCorrelation(ctx context.Context, correlationRef string) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return byCorrelation(ctx, s.db, correlationRef)
}

func byCorrelation(ctx context.Context, db dbtx, correlationRef string) ([]wallet.Transaction, error) {
	return queryTransactions(ctx, db, `
		SELECT id, user_id, resource, delta, kind, correlation_ref, reason, idempotency_key, created_by, created_at
		FROM transactions
		WHERE correlation_ref = ?
		ORDER BY created_at ASC, id ASC`,
		correlationRef)
}

// Balance returns the projected balance for a user. Users without rows
// get a zero wallet.
func (s *Store) Balance(ctx context.Context, userID wallet.UserID) (wallet.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return balanceOf(ctx, s.db, userID)
}

func balanceOf(ctx context.Context, db dbtx, userID wallet.UserID) (wallet.Balance, error) {
	bal := wallet.NewBalance(userID)

	rows, err := db.QueryContext(ctx,
		"SELECT resource, balance FROM wallets WHERE user_id = ?", userID)
	if err != nil {
		return bal, fmt.Errorf("failed to query wallet: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resource wallet.ResourceType
		var balance int64
		if err := rows.Scan(&resource, &balance); err != nil {
			return bal, err
		}
		bal.Counters[resource] = wallet.Units(balance)
	}
	return bal, rows.Err()
}

// Exists checks whether an idempotency key has been used.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]wallet.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []wallet.Transaction
	for rows.Next() {
		var (
			tx             wallet.Transaction
			delta          string
			correlationRef sql.NullString
			idempotencyKey sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Resource, &delta, &tx.Kind,
			&correlationRef, &tx.Reason, &idempotencyKey, &tx.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Delta = wallet.MustParseAmount(delta)
		tx.CorrelationRef = correlationRef.String
		tx.IdempotencyKey = idempotencyKey.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// INVITATIONS (invite.Store interface)
// =============================================================================

func (s *Store) SaveInvitation(ctx context.Context, inv invite.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInvitation(ctx, s.db, inv)
}

func saveInvitation(ctx context.Context, db dbtx, inv invite.Invitation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO invitations
		(id, project_id, inviter_id, email, role, status, token, created_at, expires_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		inv.ID, inv.ProjectID, inv.InviterID, inv.Email, inv.Role, inv.Status, inv.Token,
		inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		inv.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save invitation: %w", err)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id invite.InvitationID) (*invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvitation(ctx, s.db, "id = ?", string(id))
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvitation(ctx, s.db, "token = ?", token)
}

func getInvitation(ctx context.Context, db dbtx, where string, arg any) (*invite.Invitation, error) {
	invs, err := queryInvitations(ctx, db, `
		SELECT id, project_id, inviter_id, email, role, status, token, created_at, expires_at, resolved_at
		FROM invitations WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, nil
	}
	return &invs[0], nil
}

func (s *Store) ListInvitationsByProject(ctx context.Context, projectID invite.ProjectID) ([]invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryInvitations(ctx, s.db, `
		SELECT id, project_id, inviter_id, email, role, status, token, created_at, expires_at, resolved_at
		FROM invitations
		WHERE project_id = ?
		ORDER BY created_at DESC`,
		projectID)
}

func (s *Store) ListDuePending(ctx context.Context, now time.Time, limit int) ([]invite.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	return queryInvitations(ctx, s.db, `
		SELECT id, project_id, inviter_id, email, role, status, token, created_at, expires_at, resolved_at
		FROM invitations
		WHERE status = 'pending' AND expires_at < ?
		ORDER BY expires_at ASC
		LIMIT ?`,
		now.UTC().Format(time.RFC3339Nano), limit)
}

// Resolve conditionally moves a pending invitation to a terminal state.
func (s *Store) Resolve(ctx context.Context, id invite.InvitationID, to invite.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resolve(ctx, s.db, id, to, at)
}

func resolve(ctx context.Context, db dbtx, id invite.InvitationID, to invite.Status, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE invitations SET status = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		to, at.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve invitation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func queryInvitations(ctx context.Context, db dbtx, query string, args ...any) ([]invite.Invitation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	var invs []invite.Invitation
	for rows.Next() {
		var (
			inv        invite.Invitation
			createdAt  string
			expiresAt  string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.InviterID, &inv.Email, &inv.Role,
			&inv.Status, &inv.Token, &createdAt, &expiresAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		inv.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
		if resolvedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, resolvedAt.String)
			inv.ResolvedAt = &t
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// =============================================================================
// PROJECTS & MEMBERSHIPS
// =============================================================================

func (s *Store) SaveProject(ctx context.Context, p invite.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProject(ctx, s.db, p)
}

func saveProject(ctx context.Context, db dbtx, p invite.Project) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, name, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id invite.ProjectID) (*invite.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProject(ctx, s.db, id)
}

func getProject(ctx context.Context, db dbtx, id invite.ProjectID) (*invite.Project, error) {
	var p invite.Project
	var createdAt string
	err := db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &p, nil
}

func (s *Store) SaveMembership(ctx context.Context, m invite.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveMembership(ctx, s.db, m)
}

func saveMembership(ctx context.Context, db dbtx, m invite.Membership) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO memberships (id, project_id, member_id, role, status, invitation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.MemberID, m.Role, m.Status, m.InvitationID,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// invitation_id is unique: a membership already exists for
			// this invitation.
			return fmt.Errorf("membership for invitation %s: %w", m.InvitationID, invite.ErrInvalidTransition)
		}
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, projectID invite.ProjectID) ([]invite.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMembers(ctx, s.db, projectID)
}

func listMembers(ctx context.Context, db dbtx, projectID invite.ProjectID) ([]invite.Membership, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, project_id, member_id, role, status, invitation_id, created_at
		FROM memberships
		WHERE project_id = ?
		ORDER BY created_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var members []invite.Membership
	for rows.Next() {
		var m invite.Membership
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.MemberID, &m.Role, &m.Status,
			&m.InvitationID, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// UNIT OF WORK (invite.TxStore interface)
// =============================================================================

// WithUnit executes fn with ledger and invitation persistence bound to
// one database transaction.
func (s *Store) WithUnit(ctx context.Context, fn func(invite.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	u := &unit{tx: sqlTx}
	if err := fn(u); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type unit struct {
	tx *sql.Tx
}

func (u *unit) Wallet() wallet.Store      { return (*unitWallet)(u) }
func (u *unit) Invitations() invite.Store { return (*unitInvitations)(u) }

// unitWallet is the ledger store bound to the unit's transaction.
// The parent mutex is already held; no re-locking here.
type unitWallet unit

func (u *unitWallet) Append(ctx context.Context, tx wallet.Transaction) error {
	return appendTx(ctx, u.tx, tx)
}

func (u *unitWallet) AppendBatch(ctx context.Context, txs []wallet.Transaction) error {
	for _, tx := range txs {
		if err := appendTx(ctx, u.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitWallet) Load(ctx context.Context, userID wallet.UserID, resource wallet.ResourceType) ([]wallet.Transaction, error) {
	return queryTransactions(ctx, u.tx, `
		SELECT id, user_id, resource, delta, kind, correlation_ref, reason, idempotency_key, created_by, created_at
		FROM transactions
		WHERE user_id = ? AND resource = ?
		ORDER BY created_at ASC, id ASC`,
		userID, resource)
}

func (u *unitWallet) LoadByUser(ctx context.Context, userID wallet.UserID) ([]wallet.Transaction, error) {
	return queryTransactions(ctx, u.tx, `
		SELECT id, user_id, resource, delta, kind, correlation_ref, reason, idempotency_key, created_by, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`,
		userID)
}

func (u *unitWallet) Balance(ctx context.Context, userID wallet.UserID) (wallet.Balance, error) {
	return balanceOf(ctx, u.tx, userID)
}

func (u *unitWallet) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := u.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?", idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (u *unitWallet) ByCorrelation(ctx context.Context, correlationRef string) ([]wallet.Transaction, error) {
	return byCorrelation(ctx, u.tx, correlationRef)
}

// unitInvitations is the invitation store bound to the unit's transaction.
type unitInvitations unit

func (u *unitInvitations) SaveInvitation(ctx context.Context, inv invite.Invitation) error {
	return saveInvitation(ctx, u.tx, inv)
}

func (u *unitInvitations) GetInvitation(ctx context.Context, id invite.InvitationID) (*invite.Invitation, error) {
	return getInvitation(ctx, u.tx, "id = ?", string(id))
}

func (u *unitInvitations) GetInvitationByToken(ctx context.Context, token string) (*invite.Invitation, error) {
	return getInvitation(ctx, u.tx, "token = ?", token)
}

func (u *unitInvitations) ListInvitationsByProject(ctx context.Context, projectID invite.ProjectID) ([]invite.Invitation, error) {
	return queryInvitations(ctx, u.tx, `
		SELECT id, project_id, inviter_id, email, role, status, token, created_at, expires_at, resolved_at
		FROM invitations
		WHERE project_id = ?
		ORDER BY created_at DESC`,
		projectID)
}

func (u *unitInvitations) ListDuePending(ctx context.Context, now time.Time, limit int) ([]invite.Invitation, error) {
	if limit <= 0 {
		limit = 100
	}
	return queryInvitations(ctx, u.tx, `
		SELECT id, project_id, inviter_id, email, role, status, token, created_at, expires_at, resolved_at
		FROM invitations
		WHERE status = 'pending' AND expires_at < ?
		ORDER BY expires_at ASC
		LIMIT ?`,
		now.UTC().Format(time.RFC3339Nano), limit)
}

func (u *unitInvitations) Resolve(ctx context.Context, id invite.InvitationID, to invite.Status, at time.Time) (bool, error) {
	return resolve(ctx, u.tx, id, to, at)
}

func (u *unitInvitations) SaveProject(ctx context.Context, p invite.Project) error {
	return saveProject(ctx, u.tx, p)
}

func (u *unitInvitations) GetProject(ctx context.Context, id invite.ProjectID) (*invite.Project, error) {
	return getProject(ctx, u.tx, id)
}

func (u *unitInvitations) SaveMembership(ctx context.Context, m invite.Membership) error {
	return saveMembership(ctx, u.tx, m)
}

func (u *unitInvitations) ListMembers(ctx context.Context, projectID invite.ProjectID) ([]invite.Membership, error) {
	return listMembers(ctx, u.tx, projectID)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for tests/dev).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "wallets", "invitations", "memberships", "projects"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
