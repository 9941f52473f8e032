package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fiado/internal/models"
)

// AccountAdmin is the administrative registry surface. The credit engine
// only reads accounts; these operations belong to platform operators.
type AccountAdmin interface {
	Create(ctx context.Context, params models.CreateAccountParams) (*models.CreditAccount, error)
	Update(ctx context.Context, pair models.Pair, params models.UpdateAccountParams) (*models.CreditAccount, error)
	Get(ctx context.Context, pair models.Pair) (*models.CreditAccount, error)
}

// AccountHandler handles credit account administration endpoints.
type AccountHandler struct {
	admin AccountAdmin
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(admin AccountAdmin) *AccountHandler {
	return &AccountHandler{admin: admin}
}

// CreateAccountRequest represents an account creation request.
type CreateAccountRequest struct {
	RetailerID   uuid.UUID       `json:"retailer_id"`
	WholesalerID uuid.UUID       `json:"wholesaler_id"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
}

// Create configures a credit line for a pair.
// POST /api/v1/credit/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.RetailerID == uuid.Nil || req.WholesalerID == uuid.Nil {
		BadRequest(w, "retailer_id and wholesaler_id are required")
		return
	}
	if req.CreditLimit.IsNegative() {
		BadRequest(w, "credit_limit must be non-negative")
		return
	}

	account, err := h.admin.Create(r.Context(), models.CreateAccountParams{
		RetailerID:   req.RetailerID,
		WholesalerID: req.WholesalerID,
		CreditLimit:  req.CreditLimit,
	})
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusCreated, account)
}

// UpdateAccountRequest represents an administrative account change.
type UpdateAccountRequest struct {
	CreditLimit *decimal.Decimal `json:"credit_limit,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
	IsBlocked   *bool            `json:"is_blocked,omitempty"`
}

// Update changes a pair's limit or blocked status.
// PATCH /api/v1/credit/accounts
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	retailerID, wholesalerID, ok := pairParams(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	account, err := h.admin.Update(r.Context(), models.NewPair(retailerID, wholesalerID), models.UpdateAccountParams{
		CreditLimit: req.CreditLimit,
		IsActive:    req.IsActive,
		IsBlocked:   req.IsBlocked,
	})
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, account)
}

// Get returns a pair's account.
// GET /api/v1/credit/accounts
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	retailerID, wholesalerID, ok := pairParams(w, r)
	if !ok {
		return
	}

	account, err := h.admin.Get(r.Context(), models.NewPair(retailerID, wholesalerID))
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, account)
}
