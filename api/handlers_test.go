package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/saga/wallet-engine/api"
	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/purchase"
	"github.com/saga/wallet-engine/store/memory"
	"github.com/saga/wallet-engine/wallet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) http.Handler {
	store := memory.New()
	notifier := invite.NopNotifier{}
	ledger := wallet.NewLedger(store)
	invites := invite.NewService(store, notifier)
	purchases := purchase.NewReconciler(ledger, purchase.DefaultCatalog(), notifier)
	return api.NewRouter(api.NewHandler(ledger, invites, purchases))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

// grantSeats funds a wallet through the admin endpoint.
func grantSeats(t *testing.T, router http.Handler, userID string, vouchers, facilitators, storytellers int64) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/admin/grants", map[string]any{
		"user_id":           userID,
		"reference":         "test-seed-" + userID,
		"reason":            "test",
		"actor_id":          "test",
		"project_vouchers":  vouchers,
		"facilitator_seats": facilitators,
		"storyteller_seats": storytellers,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func createProject(t *testing.T, router http.Handler, ownerID string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/projects", map[string]any{
		"owner_id": ownerID,
		"name":     "Family stories",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var project struct {
		ID string `json:"id"`
	}
	decode(t, rec, &project)
	return project.ID
}

// =============================================================================
// WALLET ENDPOINT TESTS
// =============================================================================

func TestAPI_GetWallet_UnknownUser_ZeroBalance(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/wallet/nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var balance struct {
		UserID           string `json:"user_id"`
		ProjectVouchers  int64  `json:"project_vouchers"`
		FacilitatorSeats int64  `json:"facilitator_seats"`
		StorytellerSeats int64  `json:"storyteller_seats"`
	}
	decode(t, rec, &balance)
	assert.Equal(t, "nobody", balance.UserID)
	assert.Zero(t, balance.ProjectVouchers)
	assert.Zero(t, balance.FacilitatorSeats)
	assert.Zero(t, balance.StorytellerSeats)
}

func TestAPI_Validate_ReportsDeficits(t *testing.T) {
	router := newTestServer(t)
	grantSeats(t, router, "user-1", 0, 1, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/wallet/user-1/validate", map[string]any{
		"facilitator_seats": 2,
		"storyteller_seats": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		IsValid  bool `json:"is_valid"`
		Deficits []struct {
			Resource  string `json:"resource_type"`
			Required  int64  `json:"required"`
			Available int64  `json:"available"`
		} `json:"deficits"`
	}
	decode(t, rec, &result)
	assert.False(t, result.IsValid)
	require.Len(t, result.Deficits, 2)
}

func TestAPI_Transactions_ListsHistory(t *testing.T) {
	router := newTestServer(t)
	grantSeats(t, router, "user-1", 1, 0, 0)

	rec := doJSON(t, router, http.MethodGet, "/api/wallet/user-1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history struct {
		Transactions []struct {
			Kind  string `json:"kind"`
			Delta string `json:"delta"`
		} `json:"transactions"`
	}
	decode(t, rec, &history)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, "grant", history.Transactions[0].Kind)
}

// =============================================================================
// INVITATION FLOW TESTS
// =============================================================================

func TestAPI_InviteFlow_AcceptByToken(t *testing.T) {
	router := newTestServer(t)
	grantSeats(t, router, "owner-1", 1, 1, 0)
	projectID := createProject(t, router, "owner-1")

	rec := doJSON(t, router, http.MethodPost, "/api/projects/"+projectID+"/invitations", map[string]any{
		"inviter_id": "owner-1",
		"email":      "aunt@example.com",
		"role":       "facilitator",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inv struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	decode(t, rec, &inv)
	assert.Equal(t, "pending", inv.Status)
	require.NotEmpty(t, inv.Token, "creation response includes the accept token")

	rec = doJSON(t, router, http.MethodPost, "/api/invitations/accept/"+inv.Token, map[string]any{
		"user_id": "aunt-user",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var member struct {
		ProjectID string `json:"project_id"`
		MemberID  string `json:"member_id"`
		Role      string `json:"role"`
	}
	decode(t, rec, &member)
	assert.Equal(t, projectID, member.ProjectID)
	assert.Equal(t, "aunt-user", member.MemberID)
	assert.Equal(t, "facilitator", member.Role)

	// Listing does not leak tokens.
	rec = doJSON(t, router, http.MethodGet, "/api/projects/"+projectID+"/invitations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), inv.Token)
}

func TestAPI_Invite_InsufficientSeats_402WithDeficits(t *testing.T) {
	// GIVEN: One facilitator seat, already reserved by a pending invitation
	// WHEN: A second facilitator invitation is posted
	// THEN: 402 with deficit details in the body

	router := newTestServer(t)
	grantSeats(t, router, "owner-1", 1, 1, 0)
	projectID := createProject(t, router, "owner-1")

	rec := doJSON(t, router, http.MethodPost, "/api/projects/"+projectID+"/invitations", map[string]any{
		"inviter_id": "owner-1", "email": "first@example.com", "role": "facilitator",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/projects/"+projectID+"/invitations", map[string]any{
		"inviter_id": "owner-1", "email": "second@example.com", "role": "facilitator",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())

	var errResp struct {
		Error    string `json:"error"`
		Deficits []struct {
			Resource  string `json:"resource_type"`
			Required  int64  `json:"required"`
			Available int64  `json:"available"`
		} `json:"deficits"`
	}
	decode(t, rec, &errResp)
	require.Len(t, errResp.Deficits, 1)
	assert.Equal(t, "facilitator_seats", errResp.Deficits[0].Resource)
	assert.Equal(t, int64(1), errResp.Deficits[0].Required)
	assert.Equal(t, int64(0), errResp.Deficits[0].Available)
}

func TestAPI_Decline_RefundsSeat(t *testing.T) {
	router := newTestServer(t)
	grantSeats(t, router, "owner-1", 1, 0, 1)
	projectID := createProject(t, router, "owner-1")

	rec := doJSON(t, router, http.MethodPost, "/api/projects/"+projectID+"/invitations", map[string]any{
		"inviter_id": "owner-1", "email": "cousin@example.com", "role": "storyteller",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var inv struct {
		ID string `json:"id"`
	}
	decode(t, rec, &inv)

	rec = doJSON(t, router, http.MethodPost, "/api/invitations/"+inv.ID+"/decline", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/wallet/owner-1", nil)
	var balance struct {
		StorytellerSeats int64 `json:"storyteller_seats"`
	}
	decode(t, rec, &balance)
	assert.Equal(t, int64(1), balance.StorytellerSeats)

	// A second decline conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/invitations/"+inv.ID+"/decline", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Cancel_ByStranger_Forbidden(t *testing.T) {
	router := newTestServer(t)
	grantSeats(t, router, "owner-1", 1, 1, 0)
	projectID := createProject(t, router, "owner-1")

	rec := doJSON(t, router, http.MethodPost, "/api/projects/"+projectID+"/invitations", map[string]any{
		"inviter_id": "owner-1", "email": "aunt@example.com", "role": "facilitator",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var inv struct {
		ID string `json:"id"`
	}
	decode(t, rec, &inv)

	rec = doJSON(t, router, http.MethodPost, "/api/invitations/"+inv.ID+"/cancel", map[string]any{
		"actor_id": "stranger",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/invitations/"+inv.ID+"/cancel", map[string]any{
		"actor_id": "owner-1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Accept_UnknownToken_404(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/invitations/accept/no-such-token", map[string]any{
		"user_id": "someone",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateProject_NoVoucher_402(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/projects", map[string]any{
		"owner_id": "owner-1",
		"name":     "Family stories",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

// =============================================================================
// PURCHASE ENDPOINT TESTS
// =============================================================================

func TestAPI_PurchaseWebhook_ReplaySafe(t *testing.T) {
	router := newTestServer(t)

	payload := map[string]any{
		"event_id":     "evt-1",
		"user_id":      "buyer-1",
		"package_code": "saga-starter",
	}

	rec := doJSON(t, router, http.MethodPost, "/api/webhooks/purchase", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		Applied bool `json:"applied"`
	}
	decode(t, rec, &result)
	assert.True(t, result.Applied)

	// Provider retries the delivery.
	rec = doJSON(t, router, http.MethodPost, "/api/webhooks/purchase", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &result)
	assert.False(t, result.Applied)

	rec = doJSON(t, router, http.MethodGet, "/api/wallet/buyer-1", nil)
	var balance struct {
		ProjectVouchers  int64 `json:"project_vouchers"`
		FacilitatorSeats int64 `json:"facilitator_seats"`
		StorytellerSeats int64 `json:"storyteller_seats"`
	}
	decode(t, rec, &balance)
	assert.Equal(t, int64(1), balance.ProjectVouchers)
	assert.Equal(t, int64(1), balance.FacilitatorSeats)
	assert.Equal(t, int64(2), balance.StorytellerSeats)
}

func TestAPI_PurchaseWebhook_UnknownPackage_400(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/webhooks/purchase", map[string]any{
		"event_id":     "evt-1",
		"user_id":      "buyer-1",
		"package_code": "saga-platinum",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
