/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/wallet"
)

// =============================================================================
// WALLET
// =============================================================================

// BalanceDTO represents a wallet balance in API responses.
type BalanceDTO struct {
	UserID           string `json:"user_id"`
	ProjectVouchers  int64  `json:"project_vouchers"`
	FacilitatorSeats int64  `json:"facilitator_seats"`
	StorytellerSeats int64  `json:"storyteller_seats"`
	AsOf             string `json:"as_of"`
}

func toBalanceDTO(b wallet.Balance) BalanceDTO {
	return BalanceDTO{
		UserID:           string(b.UserID),
		ProjectVouchers:  b.Get(wallet.ResourceProjectVouchers).Int64(),
		FacilitatorSeats: b.Get(wallet.ResourceFacilitatorSeats).Int64(),
		StorytellerSeats: b.Get(wallet.ResourceStorytellerSeats).Int64(),
		AsOf:             time.Now().UTC().Format(time.RFC3339),
	}
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Resource       string `json:"resource"`
	Delta          string `json:"delta"`
	Kind           string `json:"kind"`
	CorrelationRef string `json:"correlation_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at"`
}

func toTransactionDTO(tx wallet.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		UserID:         string(tx.UserID),
		Resource:       string(tx.Resource),
		Delta:          tx.Delta.String(),
		Kind:           string(tx.Kind),
		CorrelationRef: tx.CorrelationRef,
		Reason:         tx.Reason,
		CreatedBy:      tx.CreatedBy,
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	}
}

// DeficitDTO reports one resource shortfall.
type DeficitDTO struct {
	Resource  string `json:"resource_type"`
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
}

// ValidateRequest is a pre-flight validation check.
type ValidateRequest struct {
	ProjectVouchers  int64 `json:"project_vouchers,omitempty"`
	FacilitatorSeats int64 `json:"facilitator_seats,omitempty"`
	StorytellerSeats int64 `json:"storyteller_seats,omitempty"`
}

func (r ValidateRequest) bundle() wallet.Bundle {
	return wallet.Bundle{
		wallet.ResourceProjectVouchers:  r.ProjectVouchers,
		wallet.ResourceFacilitatorSeats: r.FacilitatorSeats,
		wallet.ResourceStorytellerSeats: r.StorytellerSeats,
	}
}

// ValidationDTO is the pre-flight validation response.
type ValidationDTO struct {
	IsValid  bool         `json:"is_valid"`
	Deficits []DeficitDTO `json:"deficits,omitempty"`
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProjectRequest creates a project, consuming one voucher.
type CreateProjectRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// ProjectDTO represents a project.
type ProjectDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func toProjectDTO(p invite.Project) ProjectDTO {
	return ProjectDTO{
		ID:        string(p.ID),
		OwnerID:   p.OwnerID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// INVITATIONS
// =============================================================================

// CreateInvitationRequest invites a member to a project.
type CreateInvitationRequest struct {
	InviterID     string `json:"inviter_id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
}

// InvitationDTO represents an invitation.
type InvitationDTO struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	InviterID  string `json:"inviter_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Token      string `json:"token,omitempty"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

func toInvitationDTO(inv invite.Invitation, includeToken bool) InvitationDTO {
	dto := InvitationDTO{
		ID:        string(inv.ID),
		ProjectID: string(inv.ProjectID),
		InviterID: inv.InviterID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	}
	if includeToken {
		dto.Token = inv.Token
	}
	if inv.ResolvedAt != nil {
		dto.ResolvedAt = inv.ResolvedAt.Format(time.RFC3339)
	}
	return dto
}

// AcceptInvitationRequest finalizes membership by token.
type AcceptInvitationRequest struct {
	UserID string `json:"user_id"`
}

// CancelInvitationRequest cancels a pending invitation.
type CancelInvitationRequest struct {
	ActorID string `json:"actor_id"`
}

// MembershipDTO represents a project membership.
type MembershipDTO struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	MemberID     string `json:"member_id"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	InvitationID string `json:"invitation_id"`
	CreatedAt    string `json:"created_at"`
}

func toMembershipDTO(m invite.Membership) MembershipDTO {
	return MembershipDTO{
		ID:           m.ID,
		ProjectID:    string(m.ProjectID),
		MemberID:     m.MemberID,
		Role:         string(m.Role),
		Status:       string(m.Status),
		InvitationID: string(m.InvitationID),
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PURCHASES & GRANTS
// =============================================================================

// PurchaseWebhookRequest is the normalized provider confirmation.
type PurchaseWebhookRequest struct {
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	PackageCode string `json:"package_code"`
}

// AdminGrantRequest adds resources outside a purchase.
type AdminGrantRequest struct {
	UserID           string `json:"user_id"`
	Reference        string `json:"reference"`
	Reason           string `json:"reason"`
	ActorID          string `json:"actor_id"`
	ProjectVouchers  int64  `json:"project_vouchers,omitempty"`
	FacilitatorSeats int64  `json:"facilitator_seats,omitempty"`
	StorytellerSeats int64  `json:"storyteller_seats,omitempty"`
}

// GrantResultDTO reports what a grant did.
type GrantResultDTO struct {
	Applied          bool  `json:"applied"`
	ProjectVouchers  int64 `json:"project_vouchers"`
	FacilitatorSeats int64 `json:"facilitator_seats"`
	StorytellerSeats int64 `json:"storyteller_seats"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error    string       `json:"error"`
	Details  string       `json:"details,omitempty"`
	Deficits []DeficitDTO `json:"deficits,omitempty"`
}
