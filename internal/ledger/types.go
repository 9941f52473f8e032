package ledger

// AccountType represents the type of TigerBeetle account.
type AccountType uint8

const (
	// AccountTypeRetailerDebt carries a retailer's outstanding trade debt.
	AccountTypeRetailerDebt AccountType = 0x01

	// AccountTypeWholesalerReceivable carries what a wholesaler is owed.
	AccountTypeWholesalerReceivable AccountType = 0x02
)

// String returns a human-readable name for the account type.
func (t AccountType) String() string {
	switch t {
	case AccountTypeRetailerDebt:
		return "RETAILER_DEBT"
	case AccountTypeWholesalerReceivable:
		return "WHOLESALER_RECEIVABLE"
	default:
		return "UNKNOWN"
	}
}

// DefaultLedger is the TigerBeetle ledger ID all mirror accounts live on.
// The platform is single-currency, so one ledger suffices.
const DefaultLedger uint32 = 1

// Transfer codes classify mirrored movements.
const (
	CodeOrderDebit uint16 = 0x10
	CodeRepayment  uint16 = 0x11
)

// Balance represents an account balance in minor units.
type Balance struct {
	Debits  uint64 // Total debits posted
	Credits uint64 // Total credits posted
}

// Net returns debits minus credits.
func (b Balance) Net() int64 {
	return int64(b.Debits) - int64(b.Credits)
}
