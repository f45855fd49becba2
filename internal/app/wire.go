package app

import (
	"encoding/hex"

	"thomasd/internal/ledger"
)

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// HeaderWire is the JSON shape an accepted ledger header broadcasts
// as over the SSE event stream and is returned as from the RPC layer.
// SignatureHex is populated only when produced through a signing path
// (Engine.SignedHeaderWire); a bare ToHeaderWire leaves it empty.
type HeaderWire struct {
	LedgerSeq    uint32 `json:"ledger_seq"`
	FeeHeld      uint64 `json:"fee_held"`
	ParentHash   string `json:"parent_hash"`
	TransHash    string `json:"trans_hash"`
	AccountHash  string `json:"account_hash"`
	Timestamp    uint64 `json:"timestamp"`
	Hash         string `json:"hash"`
	SignatureHex string `json:"signature_hex,omitempty"`
}

// ToHeaderWire converts a ledger.Header to its JSON wire form, with no
// signature attached.
func ToHeaderWire(h ledger.Header) HeaderWire {
	hash := h.Hash()
	return HeaderWire{
		LedgerSeq:   h.LedgerSeq,
		FeeHeld:     h.FeeHeld,
		ParentHash:  hexEncode(h.ParentHash[:]),
		TransHash:   hexEncode(h.TransHash[:]),
		AccountHash: hexEncode(h.AccountHash[:]),
		Timestamp:   h.Timestamp,
		Hash:        hexEncode(hash[:]),
	}
}

// SignedHeaderWire converts h to its JSON wire form with the node's
// ed25519 signature over the header hash attached, the way the
// teacher's node signed its round headers before broadcasting them.
func (e *Engine) SignedHeaderWire(h ledger.Header) HeaderWire {
	w := ToHeaderWire(h)
	hash := h.Hash()
	w.SignatureHex = hexEncode(e.Sign(hash[:]))
	return w
}
