package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"fiado/internal/ledger"
)

// BalanceReader reads mirrored account positions.
type BalanceReader interface {
	Balance(id ledger.AccountID) (ledger.Balance, error)
}

// MirrorHandler exposes the TigerBeetle accounting replica for admin and
// reconciliation reads. The PostgreSQL ledger remains the source of truth;
// these figures are cent-granular and eventually consistent.
type MirrorHandler struct {
	reader BalanceReader
}

// NewMirrorHandler creates a new mirror handler.
func NewMirrorHandler(reader BalanceReader) *MirrorHandler {
	return &MirrorHandler{reader: reader}
}

// MirrorPositionResponse reports both sides of a pair's mirrored position in
// minor units.
type MirrorPositionResponse struct {
	RetailerDebt         int64 `json:"retailer_debt"`
	WholesalerReceivable int64 `json:"wholesaler_receivable"`
}

// Position returns the mirrored net debt and receivable for a pair.
// GET /api/v1/credit/mirror?retailer_id=...&wholesaler_id=...
func (h *MirrorHandler) Position(w http.ResponseWriter, r *http.Request) {
	retailerID, wholesalerID, ok := pairParams(w, r)
	if !ok {
		return
	}

	debt, err := h.read(retailerID, ledger.AccountTypeRetailerDebt)
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	receivable, err := h.read(wholesalerID, ledger.AccountTypeWholesalerReceivable)
	if err != nil {
		InternalError(w, err.Error())
		return
	}

	// An order debit credits the debt account and debits the receivable, so
	// the debt account is credit-normal and its outstanding amount is the
	// negated net.
	JSON(w, http.StatusOK, MirrorPositionResponse{
		RetailerDebt:         -debt.Net(),
		WholesalerReceivable: receivable.Net(),
	})
}

func (h *MirrorHandler) read(partyID uuid.UUID, accountType ledger.AccountType) (ledger.Balance, error) {
	balance, err := h.reader.Balance(ledger.NewAccountIDFromUUID(partyID, accountType))
	if errors.Is(err, ledger.ErrAccountNotMirrored) {
		// No entries mirrored for this party yet.
		return ledger.Balance{}, nil
	}
	return balance, err
}
