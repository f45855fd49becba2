// Package app wires together the ledger, its persistence store, and
// node identity into the single stateful object the RPC layer and
// the thomasd daemon share — grounded on the teacher's Engine, which
// played the same role around a flatter state.DB: a mutex-guarded
// struct owning the mutable chain state plus an SSE fanout for
// newly accepted ledgers.
package app

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"sync"

	"thomasd/internal/account"
	"thomasd/internal/clock"
	"thomasd/internal/crypto"
	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/serializer"
	"thomasd/internal/tx"
)

// Engine owns the chain's current open ledger, persists accepted
// ledgers to store, and fans out accepted-ledger notifications to
// subscribers the way the teacher's Engine fanned out round headers.
type Engine struct {
	mu      sync.Mutex
	store   ledgerstore.Store
	clock   clock.Clock
	current *ledger.Ledger
	policy  ledger.Policy

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	subs map[chan []byte]struct{}
}

// Config bundles NewEngine's inputs.
type Config struct {
	Store         ledgerstore.Store
	Clock         clock.Clock
	KeyPath       string
	MasterAccount account.ID
	GenesisAmount uint64
	Policy        ledger.Policy
}

// NewEngine loads or creates the node's ed25519 identity, then either
// resumes from the store's latest accepted ledger (building a fresh
// open successor over it, the way Ledger::closeLedger would) or, if
// the store is empty, starts a new chain at Genesis.
func NewEngine(cfg Config) (*Engine, error) {
	priv, pub, err := crypto.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	e := &Engine{
		store:  cfg.Store,
		clock:  clk,
		policy: cfg.Policy,
		priv:   priv,
		pub:    pub,
		subs:   make(map[chan []byte]struct{}),
	}

	seq, err := cfg.Store.LatestIndex()
	if errors.Is(err, ledgerstore.ErrNoSuchLedger) {
		genesis, err := ledger.Genesis(cfg.MasterAccount, cfg.GenesisAmount, cfg.Policy)
		if err != nil {
			return nil, err
		}
		e.current = genesis
		return e, nil
	}
	if err != nil {
		return nil, err
	}
	head, err := cfg.Store.LoadByIndex(seq)
	if err != nil {
		return nil, err
	}
	parent := ledger.Rehydrate(head, cfg.Store, cfg.Policy)
	successor, err := ledger.Successor(parent, uint64(clk.Now().Unix()))
	if err != nil {
		return nil, err
	}
	e.current = successor
	return e, nil
}

// NodeInfo returns the node's public key, hex-encoded.
func (e *Engine) NodeInfo() (algo, pubHex string) {
	return "ed25519", hexEncode(e.pub)
}

// Sign signs data with the node's private key — used to sign
// accepted ledger headers the way the teacher signed round headers.
func (e *Engine) Sign(data []byte) []byte {
	return ed25519.Sign(e.priv, data)
}

// Current returns the engine's current open ledger.
func (e *Engine) Current() *ledger.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Submit applies t to the current open ledger. t.SourceLedger is
// whatever the caller supplied (zero if they don't care to pin one);
// ApplyTransaction's own BADLSEQ check rejects it if it names a
// ledger beyond the one it's actually being applied against.
func (e *Engine) Submit(t *tx.Transaction) (ledger.TransResult, error) {
	cur := e.Current()
	return cur.ApplyTransaction(t)
}

// Close closes the current open ledger, freezing its account and
// transaction maps against further mutation.
func (e *Engine) Close() (ledger.Header, error) {
	cur := e.Current()
	if err := cur.Close(); err != nil {
		return ledger.Header{}, err
	}
	return cur.Header(), nil
}

// Accept flushes the current (now-closed) ledger's dirty map nodes
// and header to the store, marks it accepted, and opens a fresh
// successor ledger as the new current — Ledger::saveAcceptedLedger
// followed by Ledger::closeLedger's successor construction, done as
// two explicit steps instead of one combined call.
func (e *Engine) Accept() (ledger.Header, error) {
	e.mu.Lock()
	cur := e.current
	e.mu.Unlock()

	if err := cur.FlushMaps(e.store); err != nil {
		return ledger.Header{}, err
	}
	if err := cur.MarkAccepted(); err != nil {
		return ledger.Header{}, err
	}
	header := cur.Header()
	if err := e.store.SaveAccepted(header); err != nil {
		return ledger.Header{}, err
	}

	successor, err := ledger.Successor(cur, uint64(e.clock.Now().Unix()))
	if err != nil {
		return ledger.Header{}, err
	}

	e.mu.Lock()
	e.current = successor
	e.mu.Unlock()

	e.broadcast(header)
	return header, nil
}

// AccountState looks up an account in the current open ledger.
func (e *Engine) AccountState(id account.ID) (*account.State, error) {
	return e.Current().GetAccountState(id)
}

// Transaction looks up a transaction in the current open ledger.
func (e *Engine) Transaction(id serializer.Hash256) (*tx.Transaction, error) {
	return e.Current().GetTransaction(id)
}

// LedgerBySeq returns an accepted ledger's header by sequence, or the
// current open ledger's header if seq matches it.
func (e *Engine) LedgerBySeq(seq uint32) (ledger.Header, error) {
	cur := e.Current()
	if cur.LedgerSeq() == seq {
		return cur.Header(), nil
	}
	return e.store.LoadByIndex(seq)
}

// LedgerByHash returns an accepted ledger's header by hash, or the
// current open ledger's header if it matches.
func (e *Engine) LedgerByHash(hash serializer.Hash256) (ledger.Header, error) {
	cur := e.Current()
	if cur.Hash() == hash {
		return cur.Header(), nil
	}
	return e.store.LoadByHash(hash)
}

// Subscribe registers a channel that receives a copy of every
// accepted ledger header's canonical JSON as it is produced.
func (e *Engine) Subscribe() chan []byte {
	ch := make(chan []byte, 8)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel previously returned by
// Subscribe.
func (e *Engine) Unsubscribe(ch chan []byte) {
	e.mu.Lock()
	delete(e.subs, ch)
	e.mu.Unlock()
	close(ch)
}

func (e *Engine) broadcast(h ledger.Header) {
	msg, _ := json.Marshal(e.SignedHeaderWire(h))
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
