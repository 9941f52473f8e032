// Package ledger mirrors posted ledger entries into TigerBeetle as
// double-entry transfers between retailer debt and wholesaler receivable
// accounts. The mirror is an accounting replica: the PostgreSQL ledger
// remains the source of truth, and mirror writes happen after commit,
// outside the serialization boundary.
package ledger

import (
	"context"
	"errors"
	"fmt"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"fiado/internal/config"
	"fiado/internal/models"
)

// ErrAccountNotMirrored is returned when an account has no TigerBeetle
// counterpart yet, which is the case until the first entry for a party is
// mirrored.
var ErrAccountNotMirrored = errors.New("account not mirrored")

// Client wraps the TigerBeetle client with domain-specific operations.
type Client struct {
	tb tb.Client
}

// NewClient creates a new TigerBeetle client.
func NewClient(cfg config.TigerBeetleConfig) (*Client, error) {
	addresses := make([]string, len(cfg.Addresses))
	copy(addresses, cfg.Addresses)

	client, err := tb.NewClient(tbtypes.ToUint128(cfg.ClusterID), addresses)
	if err != nil {
		return nil, fmt.Errorf("create TigerBeetle client: %w", err)
	}

	return &Client{tb: client}, nil
}

// Close closes the TigerBeetle client connection.
func (c *Client) Close() {
	c.tb.Close()
}

// PostEntry mirrors a committed ledger entry. A DEBIT moves value from the
// wholesaler receivable to the retailer debt account; a CREDIT (repayment)
// moves it back. The transfer ID is derived from the entry ID, so reposting
// the same entry is a no-op on the TigerBeetle side.
func (c *Client) PostEntry(ctx context.Context, entry *models.LedgerEntry) error {
	debtAccount := NewAccountIDFromUUID(entry.RetailerID, AccountTypeRetailerDebt)
	receivableAccount := NewAccountIDFromUUID(entry.WholesalerID, AccountTypeWholesalerReceivable)

	if err := c.ensureAccounts(debtAccount, receivableAccount); err != nil {
		return err
	}

	transfer := entryTransfer(entry, debtAccount, receivableAccount)

	results, err := c.tb.CreateTransfers([]tbtypes.Transfer{transfer})
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	for _, result := range results {
		switch result.Result {
		case tbtypes.TransferOK, tbtypes.TransferExists:
			// Exists means this entry was already mirrored.
		default:
			return fmt.Errorf("create transfer failed: %s", result.Result)
		}
	}
	return nil
}

// Balance returns the mirrored net position of an account in minor units.
func (c *Client) Balance(id AccountID) (Balance, error) {
	accounts, err := c.tb.LookupAccounts([]tbtypes.Uint128{tbtypes.BytesToUint128(id)})
	if err != nil {
		return Balance{}, fmt.Errorf("lookup account: %w", err)
	}
	if len(accounts) == 0 {
		return Balance{}, fmt.Errorf("account %s: %w", id, ErrAccountNotMirrored)
	}

	account := accounts[0]
	return Balance{
		Debits:  uint128ToUint64(account.DebitsPosted),
		Credits: uint128ToUint64(account.CreditsPosted),
	}, nil
}

// uint128ToUint64 converts TigerBeetle Uint128 to uint64.
// Note: This may overflow for very large values.
func uint128ToUint64(v tbtypes.Uint128) uint64 {
	bi := v.BigInt()
	return bi.Uint64()
}

// ensureAccounts creates the two sides of a transfer if they do not yet
// exist. TigerBeetle reports already-existing accounts as a distinct result,
// which is the expected case after the first entry for a pair.
func (c *Client) ensureAccounts(ids ...AccountID) error {
	accounts := make([]tbtypes.Account, len(ids))
	for i, id := range ids {
		accounts[i] = tbtypes.Account{
			ID:     tbtypes.BytesToUint128(id),
			Ledger: DefaultLedger,
			Code:   uint16(id.AccountType()),
		}
	}

	results, err := c.tb.CreateAccounts(accounts)
	if err != nil {
		return fmt.Errorf("create accounts: %w", err)
	}
	for _, result := range results {
		switch result.Result {
		case tbtypes.AccountOK, tbtypes.AccountExists:
		default:
			return fmt.Errorf("create account failed: %s", result.Result)
		}
	}
	return nil
}

func entryTransfer(entry *models.LedgerEntry, debtAccount, receivableAccount AccountID) tbtypes.Transfer {
	debit, creditSide := receivableAccount, debtAccount
	code := CodeOrderDebit
	if entry.EntryType == models.EntryTypeCredit {
		debit, creditSide = debtAccount, receivableAccount
		code = CodeRepayment
	}

	return tbtypes.Transfer{
		ID:              tbtypes.BytesToUint128([16]byte(entry.ID)),
		DebitAccountID:  tbtypes.BytesToUint128(debit),
		CreditAccountID: tbtypes.BytesToUint128(creditSide),
		Amount:          tbtypes.ToUint128(minorUnits(entry)),
		Ledger:          DefaultLedger,
		Code:            code,
	}
}

// minorUnits converts the entry amount to integer minor units (two decimal
// places), which is the only representation TigerBeetle accepts. The mirror
// is cent-granular: sub-cent fractions the ledger can store are rounded
// here, so the replica may drift from the source of truth by under a cent
// per entry.
func minorUnits(entry *models.LedgerEntry) uint64 {
	return uint64(entry.Amount.Shift(2).Round(0).IntPart())
}
