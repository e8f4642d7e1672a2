// Package txn implements MVCC version storage (C7) and transaction
// lifecycle management (C8): undo-log chains per tuple, a read-timestamp
// watermark, commit/abort bookkeeping, and a stop-the-world garbage
// collector scheduled via robfig/cron.
//
// Grounded in the teacher's internal/storage/mvcc.go (MVCCManager,
// TxContext, RowVersion, IsVisible, BeginTx/CommitTx/AbortTx,
// GarbageCollect/GCWatermark), generalized from the teacher's
// single-version-list-per-row model to full undo-log chains reconstructed
// backward from a base tuple, per this component's richer visibility
// rules.
package txn

import (
	"sync"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// TxnStartID biases a running transaction's id so its temporary tuple
// timestamps are distinguishable from commit timestamps; XORing it back
// out recovers the human-readable transaction id.
const TxnStartID uint64 = heap.TxnStartID

// State is a transaction's lifecycle stage.
type State int

const (
	Running State = iota
	Tainted
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Tainted:
		return "TAINTED"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Isolation is the isolation level a transaction was started under.
type Isolation int

const (
	SnapshotIsolation Isolation = iota
	Serializable
	ReadUncommitted
)

// TableOID identifies a table for write-set bookkeeping, matching
// catalog.OID's type without importing catalog for just this alias.
type TableOID = catalog.OID

// UndoLink points at a specific slot in some transaction's undo log
// chain.
type UndoLink struct {
	PrevTxnID  uint64
	PrevLogIdx int
	Valid      bool
}

// UndoLog is one step of a tuple's version history: the columns this log
// changed (as a pre-image), whether the tuple was deleted at this point,
// the commit/temp timestamp it represents, and a link to the prior
// version.
type UndoLog struct {
	IsDeleted      bool
	ModifiedFields []bool // true at index i means column i's pre-image is present
	PartialTuple   []catalog.Value
	Ts             uint64
	PrevVersion    UndoLink
}

// Transaction tracks one transaction's lifecycle and the undo logs it has
// generated.
type Transaction struct {
	mu sync.Mutex

	TxnID     uint64
	ReadTs    uint64
	CommitTs  uint64
	State     State
	Isolation Isolation

	// WriteSet maps a table oid to the set of RIDs this transaction has
	// modified, needed at commit time to stamp each tuple with commit_ts.
	WriteSet map[TableOID]map[heap.RID]struct{}

	// UndoLogs is this transaction's ordered sequence of undo logs; a
	// RID's UndoLink.PrevLogIdx indexes into this slice.
	UndoLogs []UndoLog

	// ridToUndoLogIdx remembers, for a RID this txn has already touched,
	// which UndoLogs entry currently represents its pre-image — so a
	// second write to the same RID merges into the existing log instead
	// of prepending a new one (GenerateUpdatedUndoLog).
	ridToUndoLogIdx map[heap.RID]int
}

func newTransaction(txnID uint64, readTs uint64, isolation Isolation) *Transaction {
	return &Transaction{
		TxnID:           txnID,
		ReadTs:          readTs,
		State:           Running,
		Isolation:       isolation,
		WriteSet:        make(map[TableOID]map[heap.RID]struct{}),
		ridToUndoLogIdx: make(map[heap.RID]int),
	}
}

// TempTs returns the temporary timestamp this transaction stamps on
// tuples it writes while still running.
func (t *Transaction) TempTs() uint64 { return TxnStartID ^ t.TxnID }

func (t *Transaction) recordWrite(oid TableOID, rid heap.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.WriteSet[oid]
	if !ok {
		set = make(map[heap.RID]struct{})
		t.WriteSet[oid] = set
	}
	set[rid] = struct{}{}
}

// GetState returns the transaction's current lifecycle state.
func (t *Transaction) GetState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.State = s
	t.mu.Unlock()
}

// Taint marks the transaction TAINTED, the irrecoverable-except-by-abort
// state a write-write conflict forces it into.
func (t *Transaction) Taint() {
	t.mu.Lock()
	if t.State == Running {
		t.State = Tainted
	}
	t.mu.Unlock()
}

// RecordWrite registers rid as written by t under oid's table. Exported for
// the exec package's DML operators, which aren't part of this package but
// must maintain the same write-set Commit stamps commit_ts onto.
func (t *Transaction) RecordWrite(oid TableOID, rid heap.RID) {
	t.recordWrite(oid, rid)
}

// UndoLogIndexFor reports the index into t.UndoLogs holding rid's
// current-transaction pre-image, if t has already written rid once before
// in this same transaction (so a second write merges into it rather than
// prepending a new log).
func (t *Transaction) UndoLogIndexFor(rid heap.RID) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.ridToUndoLogIdx[rid]
	return idx, ok
}

// PushUndoLog appends log as the first undo log this transaction records
// for rid, remembering its index so a later write to the same rid merges
// into it (see MergeUndoLog / ReplaceUndoLog).
func (t *Transaction) PushUndoLog(rid heap.RID, log UndoLog) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.UndoLogs)
	t.UndoLogs = append(t.UndoLogs, log)
	t.ridToUndoLogIdx[rid] = idx
	return idx
}

// UndoLogAt returns a copy of the undo log at idx.
func (t *Transaction) UndoLogAt(idx int) UndoLog {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.UndoLogs[idx]
}

// ReplaceUndoLog overwrites the undo log at idx, used when this
// transaction writes the same rid a second time (GenerateUpdatedUndoLog /
// MergeUndoLog folds the new pre-image into the existing entry).
func (t *Transaction) ReplaceUndoLog(idx int, log UndoLog) {
	t.mu.Lock()
	t.UndoLogs[idx] = log
	t.mu.Unlock()
}
