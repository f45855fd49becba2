// Package tx implements Transaction (spec §4.D): a from/to transfer
// with a content-addressed id, grounded on the teacher's Transfer
// type (json/cbor wire tags, a Hash() identity) but switched from a
// SHA-256-over-JSON hash to the engine's canonical fixed-width
// SHA-512-half id, and extended with the source_ledger/status fields
// Ledger.cpp's Transaction carries alongside the transfer payload.
package tx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"thomasd/internal/account"
	"thomasd/internal/serializer"
)

// Status mirrors the lifecycle a transaction's ledger membership goes
// through: NEW (not yet applied anywhere), INCLUDED (applied to an
// open ledger, still removable), COMMITTED (recorded in a closed
// ledger, accepted or not), REMOVED (reverted out of an open
// ledger). Grounded on Ledger.cpp's getTransaction(), which reports
// COMMITTED once the owning ledger's mClosed is set and INCLUDED
// otherwise.
type Status int

const (
	StatusNew Status = iota
	StatusIncluded
	StatusCommitted
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusIncluded:
		return "INCLUDED"
	case StatusCommitted:
		return "COMMITTED"
	case StatusRemoved:
		return "REMOVED"
	default:
		return "NEW"
	}
}

// Transaction is one transfer as recorded in a ledger's transaction
// map. Amount and Fee are opaque integer units; this engine does not
// interpret their denomination (spec §9 Non-goals).
type Transaction struct {
	mu sync.Mutex

	SourceLedger uint32
	From         account.ID
	To           account.ID
	FromSeq      uint32
	Amount       uint64
	Fee          uint64

	// MsgCommit is an optional caller-supplied commitment: CommitHash
	// over the submitted Transfer's CommitPayload, checked by
	// Transfer.VerifyCommit at submission. The ledger stores it as
	// part of the identity encoding and does not check it again.
	// SignedBytes is the raw
	// signed envelope this transaction was submitted as, kept opaque
	// and persisted alongside the structured fields so a client can
	// independently verify the signature without the engine needing
	// to know the signature scheme (spec §1 "signature validation
	// remains an external collaborator").
	MsgCommit   []byte
	SignedBytes []byte

	status          Status
	statusLedgerSeq uint32

	idValid bool
	idCache serializer.Hash256
}

// SetStatus records the transaction's lifecycle state and the ledger
// sequence that caused the transition, guarded against concurrent
// reads from ID()/Status() racing a ledger's own mutations.
func (t *Transaction) SetStatus(s Status, ledgerSeq uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.statusLedgerSeq = ledgerSeq
}

// Status returns the transaction's current lifecycle state.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StatusLedgerSeq returns the sequence of the ledger that produced
// the current Status.
func (t *Transaction) StatusLedgerSeq() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLedgerSeq
}

// ID returns the transaction's content-addressed identifier: the
// SHA-512-half of its canonical binary encoding, cached after first
// computation since the fields it's derived from are immutable once
// a Transaction is constructed (only status fields mutate, and the
// id deliberately excludes them — two ledgers including the same
// transfer must compute the same id regardless of its current
// status).
func (t *Transaction) ID() serializer.Hash256 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.idValid {
		t.idCache = serializer.Sha512Half(t.marshalIdentity())
		t.idValid = true
	}
	return t.idCache
}

// marshalIdentity encodes the fields that participate in the
// transaction's identity: everything except lifecycle status, which
// is ledger-relative bookkeeping, not part of what was signed.
func (t *Transaction) marshalIdentity() []byte {
	buf := serializer.New(4 + 20 + 20 + 4 + 8 + 8 + 4 + len(t.MsgCommit) + 4 + len(t.SignedBytes))
	buf.Add32(t.SourceLedger)
	buf.AddRaw(t.From[:])
	buf.AddRaw(t.To[:])
	buf.Add32(t.FromSeq)
	buf.Add64(t.Amount)
	buf.Add64(t.Fee)
	buf.Add32(uint32(len(t.MsgCommit)))
	buf.AddRaw(t.MsgCommit)
	buf.Add32(uint32(len(t.SignedBytes)))
	buf.AddRaw(t.SignedBytes)
	return buf.Bytes()
}

// MarshalBinary produces the canonical leaf value stored in a
// ledger's transaction map: the identity encoding above.
func (t *Transaction) MarshalBinary() []byte {
	return t.marshalIdentity()
}

// UnmarshalBinary parses a leaf value produced by MarshalBinary back
// into a Transaction with StatusNew.
func UnmarshalBinary(data []byte) (*Transaction, error) {
	const minLen = 4 + 20 + 20 + 4 + 8 + 8 + 4 + 4
	if len(data) < minLen {
		return nil, errors.New("tx: truncated transaction encoding")
	}
	tr := &Transaction{}
	off := 0
	tr.SourceLedger = be32(data[off:]); off += 4
	copy(tr.From[:], data[off:off+20]); off += 20
	copy(tr.To[:], data[off:off+20]); off += 20
	tr.FromSeq = be32(data[off:]); off += 4
	tr.Amount = be64(data[off:]); off += 8
	tr.Fee = be64(data[off:]); off += 8
	mcLen := int(be32(data[off:])); off += 4
	if off+mcLen > len(data) {
		return nil, errors.New("tx: truncated msg_commit field")
	}
	tr.MsgCommit = append([]byte(nil), data[off:off+mcLen]...)
	off += mcLen
	if off+4 > len(data) {
		return nil, errors.New("tx: truncated signed_bytes length")
	}
	sbLen := int(be32(data[off:])); off += 4
	if off+sbLen > len(data) {
		return nil, errors.New("tx: truncated signed_bytes field")
	}
	tr.SignedBytes = append([]byte(nil), data[off:off+sbLen]...)
	return tr, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Transfer is the wire-format submission envelope: what arrives over
// HTTP as JSON or CBOR (internal/codec), carrying hex-encoded account
// ids the way the teacher's Transfer carried decimal mas amounts.
type Transfer struct {
	SourceLedger uint32 `json:"source_ledger" cbor:"source_ledger"`
	From         string `json:"from"          cbor:"from"`
	To           string `json:"to"            cbor:"to"`
	FromSeq      uint32 `json:"from_seq"      cbor:"from_seq"`
	Amount       uint64 `json:"amount"        cbor:"amount"`
	Fee          uint64 `json:"fee"           cbor:"fee"`
	MsgCommit    string `json:"msg_commitment" cbor:"msg_commitment"`
	SignedBytes  string `json:"signed_bytes"  cbor:"signed_bytes"`
}

// ToTransaction decodes the wire envelope's hex-encoded fields into a
// Transaction ready for Ledger.ApplyTransaction.
func (w *Transfer) ToTransaction() (*Transaction, error) {
	from, err := decodeID(w.From)
	if err != nil {
		return nil, errors.New("tx: bad from account: " + err.Error())
	}
	to, err := decodeID(w.To)
	if err != nil {
		return nil, errors.New("tx: bad to account: " + err.Error())
	}
	mc, err := decodeHexOrRaw(w.MsgCommit)
	if err != nil {
		return nil, errors.New("tx: bad msg_commitment: " + err.Error())
	}
	sb, err := decodeHexOrRaw(w.SignedBytes)
	if err != nil {
		return nil, errors.New("tx: bad signed_bytes: " + err.Error())
	}
	return &Transaction{
		SourceLedger: w.SourceLedger,
		From:         from,
		To:           to,
		FromSeq:      w.FromSeq,
		Amount:       w.Amount,
		Fee:          w.Fee,
		MsgCommit:    mc,
		SignedBytes:  sb,
	}, nil
}

func decodeID(s string) (account.ID, error) {
	var id account.ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errors.New("wrong length, want 20 bytes")
	}
	copy(id[:], b)
	return id, nil
}

func decodeHexOrRaw(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	return []byte(s), nil
}

// CommitHash hashes an out-of-band payload with the build-tag
// selected algorithm (hash_sha256.go / hash_blake3.go), for callers
// that want to verify a transaction's MsgCommit against the payload
// it commits to.
func CommitHash(payload []byte) []byte {
	return hashBytes(payload)
}

// CommitPayload builds the canonical byte string a submitter's
// msg_commitment must hash to, grounded on the teacher's
// precheckCommit middleware (calcCommit's pipe-joined
// type|from|to|amount|fee|nonce|chain_id|expiry fields) but over this
// engine's own Transfer fields instead of the teacher's.
func (w *Transfer) CommitPayload() []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%d|%d|%d", w.SourceLedger, w.From, w.To, w.FromSeq, w.Amount, w.Fee))
}

// VerifyCommit reports whether w's msg_commitment, if present, hashes
// to CommitPayload() under CommitHash. A transfer submitted with no
// msg_commitment is not rejected here — commitment is optional unless
// a deployment's precheck layer requires it.
func (w *Transfer) VerifyCommit() bool {
	if w.MsgCommit == "" {
		return true
	}
	got, err := decodeHexOrRaw(w.MsgCommit)
	if err != nil {
		return false
	}
	return hex.EncodeToString(got) == hex.EncodeToString(CommitHash(w.CommitPayload()))
}
