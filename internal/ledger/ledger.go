package ledger

import (
	"errors"
	"sync"

	"thomasd/internal/account"
	"thomasd/internal/ledgererr"
	"thomasd/internal/serializer"
	"thomasd/internal/shamap"
	"thomasd/internal/tx"
)

// TransResult mirrors Ledger.cpp's TransResult enum: the outcome of
// applying, removing, or looking up a transaction against a ledger.
type TransResult int

const (
	ResultSuccess TransResult = iota
	ResultBadLedgerSeq
	ResultTooSmall
	ResultError
	ResultAlready
	ResultBadAccount
	ResultInsufficient
	ResultPastSeq
	ResultPreSeq
	ResultNotFound
)

func (r TransResult) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultBadLedgerSeq:
		return "BADLSEQ"
	case ResultTooSmall:
		return "TOOSMALL"
	case ResultAlready:
		return "ALREADY"
	case ResultBadAccount:
		return "BADACCT"
	case ResultInsufficient:
		return "INSUFF"
	case ResultPastSeq:
		return "PASTASEQ"
	case ResultPreSeq:
		return "PREASEQ"
	case ResultNotFound:
		return "NOTFOUND"
	default:
		return "ERROR"
	}
}

// Policy carries the engine knobs Ledger.cpp hard-coded: whether
// applying a transfer to a not-yet-seen destination account creates
// it implicitly (Ledger.cpp always did; this engine makes it a
// per-ledger choice, since a deployment without a faucet/open
// registration model may want BADACCT instead).
type Policy struct {
	AllowImplicitAccountCreation bool
}

// Ledger is one ledger in the chain: an account map, a transaction
// map, and the header fields around them, moving strictly through
// open -> closed -> accepted.
//
// Unlike Ledger.cpp, which caches mHash/mValidHash and leaves
// mAccountHash/mTransHash to go stale until something happens to
// refresh them, this Ledger always derives the account/trans hash
// fields from the live SHAMaps' RootHash() when a header or hash is
// requested. SHAMap nodes already cache their own hashes, so this
// costs nothing beyond walking cached values, and it removes a
// staleness hazard the original's getHash()/saveAcceptedLedger split
// otherwise depends on callers never tripping.
type Ledger struct {
	mu sync.Mutex

	header Header

	accountMap *shamap.SHAMap
	transMap   *shamap.SHAMap

	closed   bool
	accepted bool

	policy Policy
}

// Genesis creates the first ledger of a chain, crediting masterID
// with startAmount — Ledger::Ledger(masterID, startAmount).
func Genesis(masterID account.ID, startAmount uint64, policy Policy) (*Ledger, error) {
	l := &Ledger{
		header:     Header{LedgerSeq: 0},
		accountMap: shamap.New(shamap.AccountNode),
		transMap:   shamap.New(shamap.TransactionNode),
		policy:     policy,
	}
	master := account.New(masterID)
	master.Credit(startAmount)
	ok, err := l.accountMap.Add(master.Key(), master.MarshalBinary())
	if err != nil {
		return nil, err
	}
	if !ok {
		ledgererr.Corrupt("ledger.Genesis", errors.New("master account already present in a fresh map"))
	}
	return l, nil
}

// Rehydrate reconstructs a previously accepted ledger from its
// header alone, the way Ledger::getSQL/loadByIndex/loadByHash do:
// the account and transaction maps materialize lazily from fetcher
// as their contents are walked. Only accepted ledgers are ever
// persisted (spec §6), so a rehydrated ledger always starts closed
// and accepted.
func Rehydrate(h Header, fetcher shamap.NodeFetcher, policy Policy) *Ledger {
	return &Ledger{
		header:     h,
		accountMap: shamap.NewLazy(h.AccountHash, shamap.AccountNode, fetcher),
		transMap:   shamap.NewLazy(h.TransHash, shamap.TransactionNode, fetcher),
		closed:     true,
		accepted:   true,
		policy:     policy,
	}
}

// Successor builds the next open ledger following parent, the way
// Ledger::closeLedger does via Ledger(prevLedger, ts) — sharing the
// parent's account map (copy-on-write) and starting from a fresh,
// empty transaction map.
//
// Ledger.cpp's successor constructor does not require the parent to
// be closed first; this is flagged in spec §9 as an open question.
// This implementation enforces it: a ledger only becomes an
// immutable parent once Close() has run, so building a successor
// from a still-open parent is rejected rather than silently allowed
// to race further mutation of that parent.
func Successor(parent *Ledger, timestamp uint64) (*Ledger, error) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if !parent.closed {
		return nil, ledgererr.ErrParentNotClosed
	}
	parentHeader := parent.snapshotHeader()
	return &Ledger{
		header: Header{
			LedgerSeq:  parent.header.LedgerSeq + 1,
			FeeHeld:    parent.header.FeeHeld,
			ParentHash: parentHeader.Hash(),
			Timestamp:  timestamp,
		},
		accountMap: parent.accountMap.Copy(),
		transMap:   shamap.New(shamap.TransactionNode),
		policy:     parent.policy,
	}, nil
}

// snapshotHeader builds the current header with live map root
// hashes. Callers must hold l.mu.
func (l *Ledger) snapshotHeader() Header {
	return Header{
		LedgerSeq:   l.header.LedgerSeq,
		FeeHeld:     l.header.FeeHeld,
		ParentHash:  l.header.ParentHash,
		TransHash:   l.transMap.RootHash(),
		AccountHash: l.accountMap.RootHash(),
		Timestamp:   l.header.Timestamp,
	}
}

// Header returns the ledger's current canonical header.
func (l *Ledger) Header() Header {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotHeader()
}

// Hash returns the ledger's current header hash (Ledger::getHash()).
func (l *Ledger) Hash() serializer.Hash256 {
	return l.Header().Hash()
}

func (l *Ledger) LedgerSeq() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.header.LedgerSeq
}

func (l *Ledger) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Ledger) IsAccepted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepted
}

// Close transitions the ledger from open to closed. A closed ledger
// accepts no further account/transaction map mutation but is not yet
// permanent (Ledger::setClosed()).
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ledgererr.ErrAlreadyClosed
	}
	l.closed = true
	return nil
}

// MarkAccepted transitions a closed ledger to accepted, the point
// past which it is permanent and eligible for persistence
// (Ledger::saveAcceptedLedger's precondition).
func (l *Ledger) MarkAccepted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		return ledgererr.ErrNotClosed
	}
	if l.accepted {
		return ledgererr.ErrAlreadyAccepted
	}
	l.accepted = true
	return nil
}

// GetAccountState returns the account state for id, or nil if the
// account does not exist (Ledger::getAccountState).
func (l *Ledger) GetAccountState(id account.ID) (*account.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getAccountLocked(id)
}

func (l *Ledger) getAccountLocked(id account.ID) (*account.State, error) {
	key := (&account.State{ID: id}).Key()
	data, ok, err := l.accountMap.Peek(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return account.ParseState(id, data)
}

// GetBalance returns id's balance, or 0 if the account does not
// exist (Ledger::getBalance).
func (l *Ledger) GetBalance(id account.ID) (uint64, error) {
	st, err := l.GetAccountState(id)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, nil
	}
	return st.Balance, nil
}

// HasTransaction reports ResultSuccess if id is recorded in this
// ledger, ResultNotFound otherwise (Ledger::hasTransaction).
func (l *Ledger) HasTransaction(id serializer.Hash256) (TransResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok, err := l.transMap.Peek(id)
	if err != nil {
		return ResultError, err
	}
	if !ok {
		return ResultNotFound, nil
	}
	return ResultSuccess, nil
}

// GetTransaction returns the transaction recorded under id, tagging
// a freshly-decoded (StatusNew) transaction COMMITTED if this ledger
// is closed, INCLUDED otherwise — Ledger::getTransaction's exact
// distinction, which keys off mClosed rather than mAccepted.
func (l *Ledger) GetTransaction(id serializer.Hash256) (*tx.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getTransactionLocked(id)
}

func (l *Ledger) getTransactionLocked(id serializer.Hash256) (*tx.Transaction, error) {
	data, ok, err := l.transMap.Peek(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	t, err := tx.UnmarshalBinary(data)
	if err != nil {
		return nil, err
	}
	if t.Status() == tx.StatusNew {
		if l.closed {
			t.SetStatus(tx.StatusCommitted, l.header.LedgerSeq)
		} else {
			t.SetStatus(tx.StatusIncluded, l.header.LedgerSeq)
		}
	}
	return t, nil
}

// ApplyTransaction applies t against this ledger's current state,
// following Ledger::applyTransaction's precondition order exactly:
// source ledger bound, amount-covers-fee, duplicate check, account
// existence (with optional implicit recipient creation), balance,
// then sequence (past before pre). Panics via ledgererr if the
// ledger is already accepted — that is a caller contract violation,
// not a reachable runtime outcome. On a closed (not yet accepted)
// ledger it returns ResultError with ledgererr.ErrAlreadyClosed.
func (l *Ledger) ApplyTransaction(t *tx.Transaction) (TransResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accepted {
		ledgererr.Corrupt("Ledger.ApplyTransaction", ledgererr.ErrAlreadyAccepted)
	}
	if l.closed {
		return ResultError, ledgererr.ErrAlreadyClosed
	}
	return l.applyTransactionLocked(t)
}

func (l *Ledger) applyTransactionLocked(t *tx.Transaction) (TransResult, error) {
	if t.SourceLedger > l.header.LedgerSeq {
		return ResultBadLedgerSeq, nil
	}
	if t.Amount < t.Fee {
		return ResultTooSmall, nil
	}

	if _, ok, err := l.transMap.Peek(t.ID()); err != nil {
		return ResultError, err
	} else if ok {
		return ResultAlready, nil
	}

	fromState, err := l.getAccountLocked(t.From)
	if err != nil {
		return ResultError, err
	}
	toState, err := l.getAccountLocked(t.To)
	if err != nil {
		return ResultError, err
	}

	if fromState != nil && toState == nil {
		if !l.policy.AllowImplicitAccountCreation {
			return ResultBadAccount, nil
		}
		toState = account.New(t.To)
		toState.IncSeq() // an account created by a ledger starts at sequence 1
		ok, err := l.accountMap.Add(toState.Key(), toState.MarshalBinary())
		if err != nil {
			return ResultError, err
		}
		if !ok {
			ledgererr.Corrupt("Ledger.ApplyTransaction", errors.New("implicit account creation raced an existing key"))
		}
	}

	if fromState == nil || toState == nil {
		return ResultBadAccount, nil
	}
	if fromState.Balance < t.Amount {
		return ResultInsufficient, nil
	}
	if fromState.Seq > t.FromSeq {
		return ResultPastSeq, nil
	}
	if fromState.Seq < t.FromSeq {
		return ResultPreSeq, nil
	}

	if err := fromState.Charge(t.Amount); err != nil {
		ledgererr.Corrupt("Ledger.ApplyTransaction", err)
	}
	fromState.IncSeq()
	toState.Credit(t.Amount - t.Fee)
	l.header.FeeHeld += t.Fee
	t.SetStatus(tx.StatusIncluded, l.header.LedgerSeq)

	if ok, err := l.accountMap.Update(fromState.Key(), fromState.MarshalBinary()); err != nil {
		return ResultError, err
	} else if !ok {
		ledgererr.Corrupt("Ledger.ApplyTransaction", errors.New("from account vanished under lock"))
	}
	if ok, err := l.accountMap.Update(toState.Key(), toState.MarshalBinary()); err != nil {
		return ResultError, err
	} else if !ok {
		ledgererr.Corrupt("Ledger.ApplyTransaction", errors.New("to account vanished under lock"))
	}
	if ok, err := l.transMap.Add(t.ID(), t.MarshalBinary()); err != nil {
		return ResultError, err
	} else if !ok {
		ledgererr.Corrupt("Ledger.ApplyTransaction", errors.New("transaction id collided after duplicate check"))
	}

	return ResultSuccess, nil
}

// RemoveTransaction reverses a previously applied transaction,
// following Ledger::removeTransaction: the account-existence and
// sufficiency checks run against the reversed direction (toAccount
// must be able to give back the amount), and the sequence check
// requires fromAccount to be exactly one past the transaction's
// recorded sequence. Like ApplyTransaction, it panics on an accepted
// ledger and returns ResultError with ledgererr.ErrAlreadyClosed on a
// closed one.
func (l *Ledger) RemoveTransaction(t *tx.Transaction) (TransResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accepted {
		ledgererr.Corrupt("Ledger.RemoveTransaction", ledgererr.ErrAlreadyAccepted)
	}
	if l.closed {
		return ResultError, ledgererr.ErrAlreadyClosed
	}
	return l.removeTransactionLocked(t)
}

func (l *Ledger) removeTransactionLocked(t *tx.Transaction) (TransResult, error) {
	if _, ok, err := l.transMap.Peek(t.ID()); err != nil {
		return ResultError, err
	} else if !ok {
		return ResultNotFound, nil
	}

	fromState, err := l.getAccountLocked(t.From)
	if err != nil {
		return ResultError, err
	}
	toState, err := l.getAccountLocked(t.To)
	if err != nil {
		return ResultError, err
	}
	if fromState == nil || toState == nil {
		return ResultBadAccount, nil
	}
	if toState.Balance < t.Amount {
		return ResultInsufficient, nil
	}
	if fromState.Seq != t.FromSeq+1 {
		return ResultPastSeq, nil
	}

	fromState.Credit(t.Amount)
	fromState.DecSeq()
	if err := toState.Charge(t.Amount - t.Fee); err != nil {
		ledgererr.Corrupt("Ledger.RemoveTransaction", err)
	}
	l.header.FeeHeld -= t.Fee
	t.SetStatus(tx.StatusRemoved, l.header.LedgerSeq)

	if ok, err := l.transMap.Delete(t.ID()); err != nil {
		return ResultError, err
	} else if !ok {
		ledgererr.Corrupt("Ledger.RemoveTransaction", errors.New("transaction vanished under lock"))
	}
	if ok, err := l.accountMap.Update(fromState.Key(), fromState.MarshalBinary()); err != nil {
		return ResultError, err
	} else if !ok {
		ledgererr.Corrupt("Ledger.RemoveTransaction", errors.New("from account vanished under lock"))
	}
	if ok, err := l.accountMap.Update(toState.Key(), toState.MarshalBinary()); err != nil {
		return ResultError, err
	} else if !ok {
		ledgererr.Corrupt("Ledger.RemoveTransaction", errors.New("to account vanished under lock"))
	}

	return ResultSuccess, nil
}

// FlushMaps writes every dirty node in both SHAMaps to w, tagged
// with this ledger's sequence — Ledger.cpp's saveAcceptedLedger loop:
// while(flushDirty(64, ...)) {}, run over both maps.
func (l *Ledger) FlushMaps(w shamap.NodeWriter) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		more, err := l.transMap.FlushDirty(64, l.header.LedgerSeq, w)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	for {
		more, err := l.accountMap.FlushDirty(64, l.header.LedgerSeq, w)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}
