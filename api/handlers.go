/*
handlers.go - HTTP API handlers for the wallet and invitation engine

PURPOSE:
  Exposes the wallet engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Wallet:
    GET    /api/wallet/{userID}               Current balance
    GET    /api/wallet/{userID}/transactions  Ledger history
    POST   /api/wallet/{userID}/validate      Pre-flight validation

  Projects:
    POST   /api/projects                      Create (consumes 1 voucher)
    GET    /api/projects/{id}
    GET    /api/projects/{id}/members
    GET    /api/projects/{id}/invitations
    POST   /api/projects/{id}/invitations     Invite (consumes 1 seat)

  Invitations:
    GET    /api/invitations/{id}
    POST   /api/invitations/accept/{token}
    POST   /api/invitations/{id}/decline
    POST   /api/invitations/{id}/cancel       Inviter/owner only

  Purchases:
    POST   /api/webhooks/purchase             Provider confirmation
    POST   /api/admin/grants                  Manual grant

ERROR HANDLING:
  Business errors are typed and mapped to statuses:
  - 402: insufficient balance (with per-resource deficits)
  - 403: actor not permitted
  - 404: unknown project/invitation/token
  - 409: invitation already resolved (or lost a resolve race)
  - 410: invitation expired
  - 500: storage/connectivity faults

ARCHITECTURE:
  Handler holds its dependencies; everything is constructed once in
  main and injected. No package-level singletons.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/purchase"
	"github.com/saga/wallet-engine/wallet"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *wallet.Ledger
	Invites   *invite.Service
	Purchases *purchase.Reconciler
}

// NewHandler creates a new handler with the given services.
func NewHandler(ledger *wallet.Ledger, invites *invite.Service, purchases *purchase.Reconciler) *Handler {
	return &Handler{Ledger: ledger, Invites: invites, Purchases: purchases}
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// GetWallet returns the current balance for a user.
// A user with no transactions gets an all-zero wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := wallet.UserID(chi.URLParam(r, "userID"))

	bal, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// GetTransactions returns the ledger history for a user.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := wallet.UserID(chi.URLParam(r, "userID"))

	txs, err := h.Ledger.History(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": dtos})
}

// ValidateWallet runs the pure pre-flight check against the latest
// balance snapshot. Non-authoritative: the ledger re-checks atomically
// at consume time.
func (h *Handler) ValidateWallet(w http.ResponseWriter, r *http.Request) {
	userID := wallet.UserID(chi.URLParam(r, "userID"))

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	bal, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	result := wallet.Validate(bal, req.bundle())
	dto := ValidationDTO{IsValid: result.IsValid}
	for _, d := range result.Deficits {
		dto.Deficits = append(dto.Deficits, DeficitDTO{
			Resource:  string(d.Resource),
			Required:  d.Required,
			Available: d.Available,
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// CreateProject creates a project, consuming one project voucher from
// the owner's wallet.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "owner_id and name are required", nil)
		return
	}

	project, err := h.Invites.CreateProject(r.Context(), req.OwnerID, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(*project))
}

// GetProject returns a project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.Invites.GetProject(r.Context(), invite.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(*project))
}

// ListMembers returns the memberships of a project.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Invites.ListMembers(r.Context(), invite.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, err)
		return
	}

	dtos := make([]MembershipDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, toMembershipDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": dtos})
}

// ListInvitations returns all invitations for a project. Tokens are
// omitted; they are returned only to the inviter at creation.
func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Invites.ListInvitations(r.Context(), invite.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, err)
		return
	}

	dtos := make([]InvitationDTO, 0, len(invs))
	for _, inv := range invs {
		dtos = append(dtos, toInvitationDTO(inv, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": dtos})
}

// =============================================================================
// INVITATION HANDLERS
// =============================================================================

// CreateInvitation creates a pending invitation, consuming one seat of
// the matching type. Responds 402 with deficit details when the
// inviter's wallet falls short.
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	projectID := invite.ProjectID(chi.URLParam(r, "id"))

	var req CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.InviterID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "inviter_id and email are required", nil)
		return
	}

	role := invite.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "role must be facilitator or storyteller", nil)
		return
	}

	expiresIn := time.Duration(req.ExpiresInDays) * 24 * time.Hour
	inv, err := h.Invites.Invite(r.Context(), projectID, req.InviterID, req.Email, role, expiresIn)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvitationDTO(*inv, true))
}

// GetInvitation returns an invitation by id.
func (h *Handler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invites.GetInvitation(r.Context(), invite.InvitationID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitationDTO(*inv, false))
}

// AcceptInvitation finalizes membership by token.
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	membership, err := h.Invites.Accept(r.Context(), token, req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipDTO(*membership))
}

// DeclineInvitation resolves a pending invitation as declined and
// refunds the seat.
func (h *Handler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	id := invite.InvitationID(chi.URLParam(r, "id"))

	if err := h.Invites.Decline(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(invite.StatusDeclined)})
}

// CancelInvitation cancels a pending invitation. Inviter or project
// owner only.
func (h *Handler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	id := invite.InvitationID(chi.URLParam(r, "id"))

	var req CancelInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required", nil)
		return
	}

	if err := h.Invites.Cancel(r.Context(), id, req.ActorID); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(invite.StatusCancelled)})
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// PurchaseWebhook applies a provider purchase confirmation. Idempotent
// per event id: a retried delivery reports applied=false.
func (h *Handler) PurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	var req PurchaseWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EventID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "event_id and user_id are required", nil)
		return
	}

	result, err := h.Purchases.Complete(r.Context(), purchase.CompletedPurchase{
		EventID:     req.EventID,
		UserID:      wallet.UserID(req.UserID),
		PackageCode: req.PackageCode,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grantResult(result))
}

// AdminGrant adds resources outside of a purchase.
func (h *Handler) AdminGrant(w http.ResponseWriter, r *http.Request) {
	var req AdminGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.Reference == "" {
		writeError(w, http.StatusBadRequest, "user_id and reference are required", nil)
		return
	}

	bundle := wallet.Bundle{
		wallet.ResourceProjectVouchers:  req.ProjectVouchers,
		wallet.ResourceFacilitatorSeats: req.FacilitatorSeats,
		wallet.ResourceStorytellerSeats: req.StorytellerSeats,
	}

	result, err := h.Purchases.AdminGrant(r.Context(), wallet.UserID(req.UserID), bundle,
		req.Reference, req.Reason, req.ActorID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grantResult(result))
}

func grantResult(result purchase.Result) GrantResultDTO {
	return GrantResultDTO{
		Applied:          result.Applied,
		ProjectVouchers:  result.Granted[wallet.ResourceProjectVouchers],
		FacilitatorSeats: result.Granted[wallet.ResourceFacilitatorSeats],
		StorytellerSeats: result.Granted[wallet.ResourceStorytellerSeats],
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondError maps domain errors to HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	var insufficient *wallet.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		resp := ErrorResponse{Error: "Insufficient balance", Details: err.Error()}
		for _, d := range insufficient.Deficits {
			resp.Deficits = append(resp.Deficits, DeficitDTO{
				Resource:  string(d.Resource),
				Required:  d.Required,
				Available: d.Available,
			})
		}
		writeJSON(w, http.StatusPaymentRequired, resp)
		return
	}

	switch {
	case errors.Is(err, invite.ErrInvitationExpired):
		writeError(w, http.StatusGone, "Invitation expired", err)
	case errors.Is(err, invite.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invitation already resolved", err)
	case errors.Is(err, invite.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not permitted", err)
	case errors.Is(err, invite.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, purchase.ErrUnknownPackage),
		errors.Is(err, wallet.ErrUnknownResource):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
