// Package account implements AccountState (spec §4.C), grounded on
// Ledger.cpp's AccountState: a 160-bit account id, a balance, and a
// sequence number, with credit/charge/incSeq/decSeq mutators and a
// canonical binary encoding used as the SHAMap leaf value.
package account

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"thomasd/internal/ledgererr"
	"thomasd/internal/serializer"
)

// ID is the account identifier: a 160-bit hash, zero-extended to 256
// bits when used as a SHAMap key (spec §3).
type ID [20]byte

// State is one account's balance and sequence number as recorded in
// a ledger's account map.
type State struct {
	ID      ID
	Balance uint64
	Seq     uint32
}

// New returns a freshly created account with zero balance and
// sequence zero — the state assigned to the genesis master account
// before its starting balance is credited, and the zero value a
// brand-new AccountState{} takes on construction in Ledger.cpp.
func New(id ID) *State {
	return &State{ID: id}
}

// Key zero-extends the 160-bit account id into the 256-bit key space
// the account SHAMap is indexed by.
func (s *State) Key() serializer.Hash256 {
	var k serializer.Hash256
	copy(k[12:], s.ID[:])
	return k
}

// Credit increases the balance by amount. Amounts are validated
// against the issuing total supply well before they reach an
// account, so a credit that overflows uint64 indicates a violated
// invariant upstream, not a reachable user-triggerable condition —
// spec §4.C requires it panic rather than wrap.
func (s *State) Credit(amount uint64) {
	if amount > math.MaxUint64-s.Balance {
		ledgererr.Corrupt("account.Credit", fmt.Errorf("balance %d + amount %d overflows uint64", s.Balance, amount))
	}
	s.Balance += amount
}

// Charge debits amount from the balance, failing if the balance is
// insufficient. Callers are expected to have already checked
// sufficiency via Balance when the precondition ordering matters
// (spec §4.E step 6); Charge re-checks defensively.
func (s *State) Charge(amount uint64) error {
	if s.Balance < amount {
		return errInsufficientBalance
	}
	s.Balance -= amount
	return nil
}

// IncSeq advances the account's sequence number by one, as every
// successfully applied outgoing transaction does.
func (s *State) IncSeq() {
	if s.Seq == math.MaxUint32 {
		ledgererr.Corrupt("account.IncSeq", fmt.Errorf("seq %d overflows uint32", s.Seq))
	}
	s.Seq++
}

// DecSeq reverses IncSeq, used only when a transaction is removed
// from a ledger that has not yet been accepted. RemoveTransaction
// only calls this after having applied the matching IncSeq, so a
// seq of zero here means the apply/remove pairing was violated.
func (s *State) DecSeq() {
	if s.Seq == 0 {
		ledgererr.Corrupt("account.DecSeq", fmt.Errorf("seq underflows below 0"))
	}
	s.Seq--
}

var errInsufficientBalance = errors.New("account: insufficient balance")

// accountStateLen is the fixed width of the canonical encoding:
// balance (8 bytes) || seq (4 bytes). The account id is the SHAMap
// key under which this value is stored, so it is not repeated in the
// leaf payload itself — mirroring Ledger.cpp's AccountState::getRaw(),
// which serializes only the mutable fields.
const accountStateLen = 8 + 4

// MarshalBinary encodes balance and seq as fixed-width big-endian
// fields, the canonical form stored as a SHAMap leaf value.
func (s *State) MarshalBinary() []byte {
	buf := serializer.New(accountStateLen)
	buf.Add64(s.Balance)
	buf.Add32(s.Seq)
	return buf.Bytes()
}

// ParseState decodes a leaf value produced by MarshalBinary back
// into a State for the given account id. Trailing bytes beyond the
// fixed width are tolerated, not rejected, so the encoding can grow
// new trailing fields without breaking old nodes already on disk.
func ParseState(id ID, data []byte) (*State, error) {
	if len(data) < accountStateLen {
		return nil, errors.New("account: truncated account state")
	}
	return &State{
		ID:      id,
		Balance: binary.BigEndian.Uint64(data[0:8]),
		Seq:     binary.BigEndian.Uint32(data[8:12]),
	}, nil
}
