package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// AccountID represents a 128-bit TigerBeetle account ID.
// Structure: [party_id: 64 bits][account_type: 8 bits][reserved: 56 bits]
type AccountID [16]byte

// NewAccountID creates an AccountID from components.
func NewAccountID(partyID uint64, accountType AccountType) AccountID {
	var id AccountID

	// Bytes 0-7: party ID (big-endian)
	binary.BigEndian.PutUint64(id[0:8], partyID)

	// Byte 8: account type
	id[8] = byte(accountType)

	// Bytes 9-15: reserved (zero)
	return id
}

// NewAccountIDFromUUID creates an AccountID using a UUID's lower 64 bits as
// the party ID.
func NewAccountIDFromUUID(partyUUID uuid.UUID, accountType AccountType) AccountID {
	partyID := binary.BigEndian.Uint64(partyUUID[8:16])
	return NewAccountID(partyID, accountType)
}

// PartyID returns the party ID component.
func (id AccountID) PartyID() uint64 {
	return binary.BigEndian.Uint64(id[0:8])
}

// AccountType returns the account type component.
func (id AccountID) AccountType() AccountType {
	return AccountType(id[8])
}

// String returns a human-readable representation of the AccountID.
func (id AccountID) String() string {
	return fmt.Sprintf("%s:%016x", id.AccountType(), id.PartyID())
}

// Hex returns the hexadecimal representation of the AccountID.
func (id AccountID) Hex() string {
	return fmt.Sprintf("%032x", id[:])
}
