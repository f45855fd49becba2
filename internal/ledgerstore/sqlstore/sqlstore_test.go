package sqlstore

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/serializer"
	"thomasd/internal/shamap"
)

var _ ledgerstore.Store = (*Store)(nil)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "thomasd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreNodesThenFetchNode(t *testing.T) {
	s := openTest(t)
	hash := serializer.Sha512Half([]byte("node-a"))

	require.NoError(t, s.StoreNodes([]shamap.FlushEntry{
		{Hash: hash, NodeType: shamap.TransactionNode, LedgerSeq: 7, Data: []byte("payload")},
	}))

	data, ok, err := s.FetchNode(hash, shamap.TransactionNode)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), data)

	_, ok, err = s.FetchNode(hash, shamap.AccountNode)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveAcceptedSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thomasd.db")

	s, err := Open(path)
	require.NoError(t, err)

	h := ledger.Header{LedgerSeq: 9, FeeHeld: 42, Timestamp: 1000}
	require.NoError(t, s.SaveAccepted(h))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.LoadByIndex(9)
	require.NoError(t, err)
	require.Equal(t, h.Hash(), got.Hash())
	require.Equal(t, h.FeeHeld, got.FeeHeld)

	got2, err := s2.LoadByHash(h.Hash())
	require.NoError(t, err)
	require.Equal(t, got, got2)
}

func TestLoadByIndexPanicsOnHashMismatch(t *testing.T) {
	s := openTest(t)

	h := ledger.Header{LedgerSeq: 1, FeeHeld: 5}
	require.NoError(t, s.SaveAccepted(h))

	tampered := serializer.Sha512Half([]byte("tampered"))
	_, err := s.db.Exec(`UPDATE Ledgers SET LedgerHash = ? WHERE LedgerSeq = 1`,
		hex.EncodeToString(tampered[:]))
	require.NoError(t, err)

	require.Panics(t, func() { s.LoadByIndex(1) })
}

func TestLoadByIndexNotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.LoadByIndex(1)
	require.ErrorIs(t, err, ledgerstore.ErrNoSuchLedger)
}

func TestLatestIndexNoneAccepted(t *testing.T) {
	s := openTest(t)
	_, err := s.LatestIndex()
	require.ErrorIs(t, err, ledgerstore.ErrNoSuchLedger)
}
