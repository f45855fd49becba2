// Package sqlstore is the database/sql-backed LedgerStore, using
// github.com/mattn/go-sqlite3 as the driver. The Ledgers table
// mirrors Ledger::saveAcceptedLedger's INSERT almost verbatim
// (LedgerHash, LedgerSeq, PrevHash, FeeHeld, ClosingTime,
// AccountSetHash, TransSetHash); MapNodes is new, holding the
// SHAMap node blobs Ledger.cpp instead wrote through a separate
// node-store object this engine folds into the same database.
package sqlstore

import (
	"database/sql"
	"encoding/hex"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"thomasd/internal/ledger"
	"thomasd/internal/ledgerstore"
	"thomasd/internal/serializer"
	"thomasd/internal/shamap"
)

const schema = `
CREATE TABLE IF NOT EXISTS Ledgers (
	LedgerHash     TEXT PRIMARY KEY,
	LedgerSeq      INTEGER UNIQUE NOT NULL,
	PrevHash       TEXT NOT NULL,
	FeeHeld        INTEGER NOT NULL,
	ClosingTime    INTEGER NOT NULL,
	AccountSetHash TEXT NOT NULL,
	TransSetHash   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS MapNodes (
	NodeHash  TEXT NOT NULL,
	NodeType  INTEGER NOT NULL,
	LedgerSeq INTEGER NOT NULL,
	Data      BLOB NOT NULL,
	PRIMARY KEY (NodeHash, NodeType)
);
`

// Store is a database/sql-backed LedgerStore. Open with Open, which
// applies the schema above if the database is fresh.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite3 database at path and
// ensures the Ledgers/MapNodes tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FetchNode(hash serializer.Hash256, nodeType shamap.NodeType) ([]byte, bool, error) {
	row := s.db.QueryRow(`SELECT Data FROM MapNodes WHERE NodeHash = ? AND NodeType = ?`,
		hex.EncodeToString(hash[:]), int(nodeType))
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) StoreNodes(entries []shamap.FlushEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO MapNodes (NodeHash, NodeType, LedgerSeq, Data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(hex.EncodeToString(e.Hash[:]), int(e.NodeType), e.LedgerSeq, e.Data); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SaveAccepted inserts h's header row. Ledger.cpp built this INSERT
// via raw string concatenation; database/sql's placeholder binding
// gets the same effect without the injection hazard that approach
// carried.
func (s *Store) SaveAccepted(h ledger.Header) error {
	hh := h.Hash()
	_, err := s.db.Exec(
		`INSERT INTO Ledgers (LedgerHash, LedgerSeq, PrevHash, FeeHeld, ClosingTime, AccountSetHash, TransSetHash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hex.EncodeToString(hh[:]), h.LedgerSeq, hex.EncodeToString(h.ParentHash[:]),
		h.FeeHeld, h.Timestamp, hex.EncodeToString(h.AccountHash[:]), hex.EncodeToString(h.TransHash[:]),
	)
	return err
}

func (s *Store) LoadByIndex(seq uint32) (ledger.Header, error) {
	return s.loadOne(`SELECT LedgerHash, PrevHash, FeeHeld, AccountSetHash, TransSetHash, ClosingTime, LedgerSeq
	                   FROM Ledgers WHERE LedgerSeq = ?`, seq)
}

func (s *Store) LoadByHash(hash serializer.Hash256) (ledger.Header, error) {
	return s.loadOne(`SELECT LedgerHash, PrevHash, FeeHeld, AccountSetHash, TransSetHash, ClosingTime, LedgerSeq
	                   FROM Ledgers WHERE LedgerHash = ?`, hex.EncodeToString(hash[:]))
}

// loadOne decodes a Ledgers row into a Header, then verifies the
// header hashes to the row's own LedgerHash column before returning
// it — Ledger::getSQL's post-construction integrity check.
func (s *Store) loadOne(query string, arg interface{}) (ledger.Header, error) {
	row := s.db.QueryRow(query, arg)
	var hashHex, prevHex, acctHex, transHex string
	var h ledger.Header
	if err := row.Scan(&hashHex, &prevHex, &h.FeeHeld, &acctHex, &transHex, &h.Timestamp, &h.LedgerSeq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Header{}, ledgerstore.ErrNoSuchLedger
		}
		return ledger.Header{}, err
	}
	var storedHash serializer.Hash256
	if err := decodeHashInto(&storedHash, hashHex); err != nil {
		return ledger.Header{}, err
	}
	if err := decodeHashInto(&h.ParentHash, prevHex); err != nil {
		return ledger.Header{}, err
	}
	if err := decodeHashInto(&h.AccountHash, acctHex); err != nil {
		return ledger.Header{}, err
	}
	if err := decodeHashInto(&h.TransHash, transHex); err != nil {
		return ledger.Header{}, err
	}
	ledgerstore.VerifyRehydrated(h, storedHash)
	return h, nil
}

func decodeHashInto(dst *serializer.Hash256, s string) error {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(dst) {
		return errors.New("sqlstore: malformed hash column")
	}
	copy(dst[:], b)
	return nil
}

func (s *Store) LatestIndex() (uint32, error) {
	row := s.db.QueryRow(`SELECT LedgerSeq FROM Ledgers ORDER BY LedgerSeq DESC LIMIT 1`)
	var seq uint32
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledgerstore.ErrNoSuchLedger
		}
		return 0, err
	}
	return seq, nil
}
