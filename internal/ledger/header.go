// Package ledger implements Ledger (spec §4.E): a lifecycle state
// machine over an account map and a transaction map, grounded
// directly on Ledger.cpp — close to a line-for-line semantic port of
// its constructors, applyTransaction/removeTransaction precondition
// ordering, and getHash()/saveAcceptedLedger persistence flow.
package ledger

import (
	"thomasd/internal/serializer"
)

// Header is the ledger's 116-byte canonical envelope (spec §3),
// grounded on Ledger::addRaw: ledger_seq(32) || fee_held(64) ||
// parent_hash(256) || trans_hash(256) || account_hash(256) ||
// timestamp(64), in that fixed order.
type Header struct {
	LedgerSeq   uint32
	FeeHeld     uint64
	ParentHash  serializer.Hash256
	TransHash   serializer.Hash256
	AccountHash serializer.Hash256
	Timestamp   uint64
}

const headerLen = 4 + 8 + 32 + 32 + 32 + 8

// MarshalBinary produces the exact 116-byte layout Ledger::addRaw
// writes before hashing.
func (h Header) MarshalBinary() []byte {
	buf := serializer.New(headerLen)
	buf.Add32(h.LedgerSeq)
	buf.Add64(h.FeeHeld)
	buf.Add256(h.ParentHash)
	buf.Add256(h.TransHash)
	buf.Add256(h.AccountHash)
	buf.Add64(h.Timestamp)
	return buf.Bytes()
}

// Hash is SHA-512-half over MarshalBinary, the ledger's identity.
func (h Header) Hash() serializer.Hash256 {
	return serializer.Sha512Half(h.MarshalBinary())
}

