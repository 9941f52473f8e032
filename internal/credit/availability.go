package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fiado/internal/models"
)

// Availability is the derived credit position of a pair. It is never stored;
// it is recomputed from the limit, outstanding holds and posted debt against
// whatever view the caller passes in.
type Availability struct {
	RetailerID   string          `json:"retailer_id"`
	WholesalerID string          `json:"wholesaler_id"`
	Limit        decimal.Decimal `json:"limit"`
	Reserved     decimal.Decimal `json:"reserved"`
	Debits       decimal.Decimal `json:"debits"`
	Available    decimal.Decimal `json:"available"`
	ComputedAt   time.Time       `json:"computed_at"`
}

// computeAvailability derives the pair's credit position from r. Callers that
// will act on the result must pass a Tx so the read and the subsequent write
// share one serializable view; passing a Store yields a display snapshot.
func computeAvailability(ctx context.Context, r Reader, pair models.Pair) (*Availability, *models.CreditAccount, error) {
	account, err := r.Account(ctx, pair)
	if err != nil {
		return nil, nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, nil, ErrAccountNotFound
	}

	reserved, err := r.ActiveReservationTotal(ctx, pair)
	if err != nil {
		return nil, nil, fmt.Errorf("sum active reservations: %w", err)
	}

	debits, err := r.PostedDebitTotal(ctx, pair)
	if err != nil {
		return nil, nil, fmt.Errorf("sum posted debits: %w", err)
	}

	return &Availability{
		RetailerID:   pair.RetailerID.String(),
		WholesalerID: pair.WholesalerID.String(),
		Limit:        account.CreditLimit,
		Reserved:     reserved,
		Debits:       debits,
		Available:    account.CreditLimit.Sub(reserved).Sub(debits),
		ComputedAt:   time.Now().UTC(),
	}, account, nil
}
