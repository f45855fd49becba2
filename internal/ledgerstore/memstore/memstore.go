// Package memstore is an in-memory LedgerStore, grounded on the
// retrieved XRPL Go draft's memoryFamily test double
// (other_examples/LeJamon-goXRPLd__store_test.go): a map keyed by
// node hash plus a slice of accepted headers, guarded by one mutex.
// Useful for tests and for running the engine without a database.
package memstore

import (
	"fmt"
	"sync"

	"thomasd/internal/ledger"
	"thomasd/internal/ledgererr"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/serializer"
	"thomasd/internal/shamap"
)

type nodeKey struct {
	hash serializer.Hash256
	typ  shamap.NodeType
}

// Store is an in-memory implementation of ledgerstore.Store.
type Store struct {
	mu      sync.Mutex
	nodes   map[nodeKey][]byte
	byIndex map[uint32]ledger.Header
	byHash  map[serializer.Hash256]ledger.Header
	latest  uint32
	hasAny  bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		nodes:   make(map[nodeKey][]byte),
		byIndex: make(map[uint32]ledger.Header),
		byHash:  make(map[serializer.Hash256]ledger.Header),
	}
}

func (s *Store) FetchNode(hash serializer.Hash256, nodeType shamap.NodeType) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.nodes[nodeKey{hash, nodeType}]
	return data, ok, nil
}

func (s *Store) StoreNodes(entries []shamap.FlushEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.nodes[nodeKey{e.Hash, e.NodeType}] = e.Data
	}
	return nil
}

func (s *Store) SaveAccepted(h ledger.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIndex[h.LedgerSeq] = h
	s.byHash[h.Hash()] = h
	if !s.hasAny || h.LedgerSeq > s.latest {
		s.latest = h.LedgerSeq
		s.hasAny = true
	}
	return nil
}

// LoadByIndex returns the header stored under seq, verified against
// its own byHash entry — the in-memory analogue of sqlstore's
// LedgerHash column check, catching a SaveAccepted bug that updated
// one index but not the other rather than any real deserialization
// corruption.
func (s *Store) LoadByIndex(seq uint32) (ledger.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byIndex[seq]
	if !ok {
		return ledger.Header{}, ledgerstore.ErrNoSuchLedger
	}
	if byHash := s.byHash[h.Hash()]; byHash != h {
		ledgererr.Corrupt("memstore.LoadByIndex", fmt.Errorf("byIndex[%d] disagrees with byHash entry", seq))
	}
	return h, nil
}

func (s *Store) LoadByHash(hash serializer.Hash256) (ledger.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byHash[hash]
	if !ok {
		return ledger.Header{}, ledgerstore.ErrNoSuchLedger
	}
	ledgerstore.VerifyRehydrated(h, hash)
	return h, nil
}

func (s *Store) LatestIndex() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasAny {
		return 0, ledgerstore.ErrNoSuchLedger
	}
	return s.latest, nil
}
