package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/internal/ledger"
)

type fakeBalanceReader struct {
	balances map[ledger.AccountID]ledger.Balance
}

func (f *fakeBalanceReader) Balance(id ledger.AccountID) (ledger.Balance, error) {
	balance, ok := f.balances[id]
	if !ok {
		return ledger.Balance{}, fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotMirrored)
	}
	return balance, nil
}

func mirrorPosition(t *testing.T, h *MirrorHandler, query string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credit/mirror?"+query, nil)
	rec := httptest.NewRecorder()
	h.Position(rec, req)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestMirrorPositionEndpoint(t *testing.T) {
	retailerID := uuid.New()
	wholesalerID := uuid.New()
	debtID := ledger.NewAccountIDFromUUID(retailerID, ledger.AccountTypeRetailerDebt)
	receivableID := ledger.NewAccountIDFromUUID(wholesalerID, ledger.AccountTypeWholesalerReceivable)

	t.Run("reports both sides net of repayments", func(t *testing.T) {
		// Orders for 500.00, repayments for 120.00, in minor units.
		h := NewMirrorHandler(&fakeBalanceReader{balances: map[ledger.AccountID]ledger.Balance{
			debtID:       {Debits: 12000, Credits: 50000},
			receivableID: {Debits: 50000, Credits: 12000},
		}})

		rec, resp := mirrorPosition(t, h, fmt.Sprintf("retailer_id=%s&wholesaler_id=%s", retailerID, wholesalerID))
		require.Equal(t, http.StatusOK, rec.Code)

		data := dataMap(t, resp)
		assert.Equal(t, float64(38000), data["retailer_debt"])
		assert.Equal(t, float64(38000), data["wholesaler_receivable"])
	})

	t.Run("unmirrored party reads as zero", func(t *testing.T) {
		h := NewMirrorHandler(&fakeBalanceReader{balances: map[ledger.AccountID]ledger.Balance{
			debtID: {Debits: 0, Credits: 700},
		}})

		rec, resp := mirrorPosition(t, h, fmt.Sprintf("retailer_id=%s&wholesaler_id=%s", retailerID, uuid.New()))
		require.Equal(t, http.StatusOK, rec.Code)

		data := dataMap(t, resp)
		assert.Equal(t, float64(700), data["retailer_debt"])
		assert.Equal(t, float64(0), data["wholesaler_receivable"])
	})

	t.Run("invalid pair params", func(t *testing.T) {
		h := NewMirrorHandler(&fakeBalanceReader{})
		rec, resp := mirrorPosition(t, h, "retailer_id=not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
	})
}
