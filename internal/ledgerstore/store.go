// Package ledgerstore defines LedgerStore (spec §4.F): the
// persistence boundary a Ledger's SHAMaps fetch nodes from and flush
// dirty nodes to, plus the accepted-ledger headers table schema from
// spec §6. memstore and sqlstore are the two reference backends.
package ledgerstore

import (
	"fmt"

	"thomasd/internal/ledger"
	"thomasd/internal/ledgererr"
	"thomasd/internal/serializer"
	"thomasd/internal/shamap"
)

// Store is the full persistence contract an Engine needs: node
// fetch/store for lazy SHAMap materialization (embedding the
// shamap interfaces directly, since both maps share one backing
// store keyed by node type), plus accepted-ledger header lookup —
// Ledger::saveAcceptedLedger / getSQL / loadByIndex / loadByHash.
type Store interface {
	shamap.NodeFetcher
	shamap.NodeWriter

	// SaveAccepted persists h as a newly accepted ledger's header.
	// Callers are expected to have already flushed both of that
	// ledger's SHAMaps via StoreNodes before calling this.
	SaveAccepted(h ledger.Header) error

	// LoadByIndex and LoadByHash return ErrNoSuchLedger when no
	// matching row exists.
	LoadByIndex(seq uint32) (ledger.Header, error)
	LoadByHash(hash serializer.Hash256) (ledger.Header, error)

	// LatestIndex returns the highest accepted ledger sequence, or
	// ErrNoSuchLedger if no ledger has been accepted yet.
	LatestIndex() (uint32, error)
}

// ErrNoSuchLedger is returned by LoadByIndex/LoadByHash/LatestIndex
// when no matching accepted ledger exists.
type notFoundError struct{ what string }

func (e *notFoundError) Error() string { return "ledgerstore: no such " + e.what }

// ErrNoSuchLedger is the sentinel callers should compare against with
// errors.Is after wrapping, or simply check directly since this
// package always returns the same instance.
var ErrNoSuchLedger = &notFoundError{what: "ledger"}

// VerifyRehydrated panics with a ledgererr.CorruptionError if h's
// recomputed header hash does not match storedHash, the hash under
// which a backend's LoadByIndex/LoadByHash looked the row up —
// Ledger::getSQL's integrity assertion ("if(ret->getHash()!=
// ledgerHash){ assert(false); return Ledger::pointer(); }") before a
// caller is allowed to rehydrate a Ledger from the returned header.
// sqlstore's LoadByIndex/LoadByHash and memstore's LoadByHash call
// this before returning a header; memstore's LoadByIndex instead
// checks its byIndex entry against its byHash entry.
func VerifyRehydrated(h ledger.Header, storedHash serializer.Hash256) {
	if h.Hash() != storedHash {
		ledgererr.Corrupt("ledgerstore.VerifyRehydrated", fmt.Errorf(
			"reconstructed header hash %x does not match stored ledger hash %x", h.Hash(), storedHash))
	}
}
