package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/serializer"
	"thomasd/internal/shamap"
)

var _ ledgerstore.Store = (*Store)(nil)

func TestStoreNodesThenFetchNode(t *testing.T) {
	s := New()
	hash := serializer.Sha512Half([]byte("node-a"))

	require.NoError(t, s.StoreNodes([]shamap.FlushEntry{
		{Hash: hash, NodeType: shamap.AccountNode, Data: []byte("payload")},
	}))

	data, ok, err := s.FetchNode(hash, shamap.AccountNode)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), data)

	_, ok, err = s.FetchNode(hash, shamap.TransactionNode)
	require.NoError(t, err)
	require.False(t, ok, "node type is part of the key; a transaction-node lookup must miss")
}

func TestSaveAcceptedThenLoadByIndexAndHash(t *testing.T) {
	s := New()
	h := ledger.Header{LedgerSeq: 3, FeeHeld: 10}

	require.NoError(t, s.SaveAccepted(h))

	got, err := s.LoadByIndex(3)
	require.NoError(t, err)
	require.Equal(t, h, got)

	got, err = s.LoadByHash(h.Hash())
	require.NoError(t, err)
	require.Equal(t, h, got)

	_, err = s.LoadByIndex(4)
	require.ErrorIs(t, err, ledgerstore.ErrNoSuchLedger)
}

func TestLoadByIndexPanicsOnHashMismatch(t *testing.T) {
	s := New()
	h := ledger.Header{LedgerSeq: 3, FeeHeld: 10}
	require.NoError(t, s.SaveAccepted(h))

	// Tamper with the byHash side of the store directly to simulate
	// the two indexes disagreeing.
	s.byHash[h.Hash()] = ledger.Header{LedgerSeq: 3, FeeHeld: 99}

	require.Panics(t, func() { s.LoadByIndex(3) })
}

func TestLatestIndexTracksHighestAcceptedSeq(t *testing.T) {
	s := New()
	_, err := s.LatestIndex()
	require.ErrorIs(t, err, ledgerstore.ErrNoSuchLedger, "empty store has no latest ledger")

	require.NoError(t, s.SaveAccepted(ledger.Header{LedgerSeq: 1}))
	require.NoError(t, s.SaveAccepted(ledger.Header{LedgerSeq: 5}))
	require.NoError(t, s.SaveAccepted(ledger.Header{LedgerSeq: 2}))

	latest, err := s.LatestIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(5), latest)
}
