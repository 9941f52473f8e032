package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fiado/internal/credit"
	"fiado/internal/models"
)

// CreditHandler handles credit engine endpoints.
type CreditHandler struct {
	service *credit.Service

	// staleAge is the default cutoff for the stale-reservation query.
	staleAge time.Duration
}

// NewCreditHandler creates a new credit handler.
func NewCreditHandler(service *credit.Service, staleAge time.Duration) *CreditHandler {
	return &CreditHandler{service: service, staleAge: staleAge}
}

// CheckRequest represents a non-mutating availability check.
type CheckRequest struct {
	RetailerID   uuid.UUID       `json:"retailer_id"`
	WholesalerID uuid.UUID       `json:"wholesaler_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// Check answers whether a hold would currently fit.
// POST /api/v1/credit/check
func (h *CreditHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.RetailerID == uuid.Nil || req.WholesalerID == uuid.Nil {
		BadRequest(w, "retailer_id and wholesaler_id are required")
		return
	}

	decision, err := h.service.CanReserve(r.Context(), req.RetailerID, req.WholesalerID, req.Amount)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, decision)
}

// ReserveRequest represents a reservation request.
type ReserveRequest struct {
	RetailerID   uuid.UUID       `json:"retailer_id"`
	WholesalerID uuid.UUID       `json:"wholesaler_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// Reserve places a hold for an order.
// POST /api/v1/credit/reservations
func (h *CreditHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.RetailerID == uuid.Nil || req.WholesalerID == uuid.Nil || req.OrderID == uuid.Nil {
		BadRequest(w, "retailer_id, wholesaler_id and order_id are required")
		return
	}

	reservation, err := h.service.Reserve(r.Context(), req.RetailerID, req.WholesalerID, req.OrderID, req.Amount)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusCreated, reservation)
}

// ReleaseRequest carries the lifecycle outcome behind a release.
type ReleaseRequest struct {
	Reason models.ReleaseReason `json:"reason"`
}

// Release cancels an order's hold.
// POST /api/v1/credit/reservations/{orderID}/release
func (h *CreditHandler) Release(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		BadRequest(w, "invalid order ID")
		return
	}

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = models.ReleaseReasonManual
	}

	if err := h.service.Release(r.Context(), orderID, req.Reason); err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"order_id": orderID.String(), "status": string(models.ReservationStatusReleased)})
}

// ConvertRequest represents a fulfillment conversion.
type ConvertRequest struct {
	RetailerID   uuid.UUID         `json:"retailer_id"`
	WholesalerID uuid.UUID         `json:"wholesaler_id"`
	Amount       decimal.Decimal   `json:"amount"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Convert turns an order's hold into a posted debit.
// POST /api/v1/credit/reservations/{orderID}/convert
func (h *CreditHandler) Convert(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		BadRequest(w, "invalid order ID")
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.RetailerID == uuid.Nil || req.WholesalerID == uuid.Nil {
		BadRequest(w, "retailer_id and wholesaler_id are required")
		return
	}

	entry, err := h.service.Convert(r.Context(), orderID, req.RetailerID, req.WholesalerID, req.Amount, credit.ConvertOptions{
		DueDate:  req.DueDate,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusCreated, entry)
}

// PaymentRequest represents a repayment against posted debt.
type PaymentRequest struct {
	RetailerID   uuid.UUID         `json:"retailer_id"`
	WholesalerID uuid.UUID         `json:"wholesaler_id"`
	Amount       decimal.Decimal   `json:"amount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RecordPayment posts a CREDIT entry reducing the pair's debt.
// POST /api/v1/credit/payments
func (h *CreditHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.RetailerID == uuid.Nil || req.WholesalerID == uuid.Nil {
		BadRequest(w, "retailer_id and wholesaler_id are required")
		return
	}

	entry, err := h.service.RecordPayment(r.Context(), req.RetailerID, req.WholesalerID, req.Amount, req.Metadata)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusCreated, entry)
}

// Availability returns the display snapshot of a pair's credit position.
// GET /api/v1/credit/availability
func (h *CreditHandler) Availability(w http.ResponseWriter, r *http.Request) {
	retailerID, wholesalerID, ok := pairParams(w, r)
	if !ok {
		return
	}

	av, err := h.service.AvailableCredit(r.Context(), retailerID, wholesalerID)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, av)
}

// Statement returns a pair's ledger entries in posting order.
// GET /api/v1/credit/statement
func (h *CreditHandler) Statement(w http.ResponseWriter, r *http.Request) {
	retailerID, wholesalerID, ok := pairParams(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Statement(r.Context(), retailerID, wholesalerID)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, entries)
}

// Reservations returns a pair's reservation history, newest first.
// GET /api/v1/credit/reservations
func (h *CreditHandler) Reservations(w http.ResponseWriter, r *http.Request) {
	retailerID, wholesalerID, ok := pairParams(w, r)
	if !ok {
		return
	}

	reservations, err := h.service.Reservations(r.Context(), retailerID, wholesalerID)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, reservations)
}

// StaleReservations lists holds that have sat ACTIVE past the cutoff.
// GET /api/v1/credit/reservations/stale
func (h *CreditHandler) StaleReservations(w http.ResponseWriter, r *http.Request) {
	age := h.staleAge
	if raw := r.URL.Query().Get("age"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid age")
			return
		}
		age = parsed
	}

	reservations, err := h.service.StaleReservations(r.Context(), age)
	if err != nil {
		writeCreditError(w, err)
		return
	}

	JSON(w, http.StatusOK, reservations)
}

func pairParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	retailerID, err := uuid.Parse(r.URL.Query().Get("retailer_id"))
	if err != nil {
		BadRequest(w, "invalid retailer_id")
		return uuid.Nil, uuid.Nil, false
	}
	wholesalerID, err := uuid.Parse(r.URL.Query().Get("wholesaler_id"))
	if err != nil {
		BadRequest(w, "invalid wholesaler_id")
		return uuid.Nil, uuid.Nil, false
	}
	return retailerID, wholesalerID, true
}

// writeCreditError maps engine errors to HTTP responses. Business rejections
// carry the error text so callers can surface a precise reason.
func writeCreditError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credit.ErrAccountNotFound), errors.Is(err, credit.ErrReservationNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, credit.ErrAccountBlocked), errors.Is(err, credit.ErrAccountInactive):
		Forbidden(w, err.Error())
	case errors.Is(err, credit.ErrInvalidAmount):
		BadRequest(w, err.Error())
	case errors.Is(err, credit.ErrInsufficientCredit):
		UnprocessableEntity(w, "INSUFFICIENT_CREDIT", err.Error())
	case errors.Is(err, credit.ErrAmountMismatch):
		UnprocessableEntity(w, "AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, credit.ErrDuplicateReservation),
		errors.Is(err, credit.ErrInvalidState),
		errors.Is(err, credit.ErrDuplicateAccount):
		Conflict(w, err.Error())
	case errors.Is(err, credit.ErrBusy):
		Busy(w, err.Error())
	default:
		InternalError(w, "internal error")
	}
}
