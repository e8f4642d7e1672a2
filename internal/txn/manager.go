package txn

import (
	"fmt"
	"sync"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

type commitRecord struct {
	commitTs uint64
	writes   map[TableOID]map[heap.RID]struct{}
}

// TupleWriter is the slice of *heap.TableHeap that Commit needs to stamp
// commit_ts onto a transaction's write set, preserving each tuple's
// is_deleted flag.
type TupleWriter interface {
	GetTuple(rid heap.RID) (heap.TupleMeta, catalog.Tuple, error)
	UpdateTupleMeta(meta heap.TupleMeta, rid heap.RID) error
}

// Manager owns transaction lifecycle: issuing txn ids and read timestamps,
// serializing commits, running the SERIALIZABLE conflict check, and
// retiring transactions from the watermark so the GC scheduler can reclaim
// their undo logs.
type Manager struct {
	mu sync.Mutex

	nextTxnID uint64
	commitTs  uint64

	txns      map[uint64]*Transaction
	watermark *Watermark

	// commitLog remembers recent commits' write sets for the SERIALIZABLE
	// forward-validation check; entries older than the watermark are
	// pruned during GC since no running transaction can still conflict
	// with them.
	commitLog []commitRecord

	// resolveHeap maps a write-set's table oid to the heap that owns it,
	// so Commit can stamp meta.ts on every written RID. Set via
	// SetTableResolver once the catalog exists; Commit still transitions
	// state/commit_ts without it, for tests that exercise the lifecycle
	// without a backing heap.
	resolveHeap func(oid TableOID) (TupleWriter, bool)
}

// NewManager creates a transaction manager with no committed history,
// starting commit_ts at 0.
func NewManager() *Manager {
	return &Manager{
		txns:      make(map[uint64]*Transaction),
		watermark: newWatermark(0),
	}
}

// SetTableResolver wires Commit to physically stamp commit_ts onto every
// written tuple, as spec §4.8 requires. resolver typically closes over a
// *catalog.Catalog, looking up each oid's *heap.TableHeap.
func (m *Manager) SetTableResolver(resolver func(oid TableOID) (TupleWriter, bool)) {
	m.mu.Lock()
	m.resolveHeap = resolver
	m.mu.Unlock()
}

// Begin starts a new transaction, snapshotting the current commit_ts as
// its read_ts and registering it with the watermark.
func (m *Manager) Begin(isolation Isolation) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTxnID++
	txnID := m.nextTxnID
	readTs := m.commitTs

	t := newTransaction(txnID, readTs, isolation)
	m.txns[txnID] = t
	m.watermark.Add(readTs)
	return t
}

// lookup resolves a txn id to its Transaction, used by VersionStore to walk
// undo-log chains across transactions.
func (m *Manager) lookup(txnID uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[txnID]
	return t, ok
}

// NewVersionStore builds a VersionStore that resolves undo-log owners
// through this manager.
func (m *Manager) NewVersionStore() *VersionStore {
	return newVersionStore(m.lookup)
}

// Commit validates and commits t. For SERIALIZABLE transactions this runs
// a forward-validation check against every transaction that committed
// after t began: if any committed write set overlaps t's write set, t is
// rejected (and left TAINTED, per spec: caller must Abort it) rather than
// silently merged.
func (m *Manager) Commit(t *Transaction) (bool, error) {
	if t.GetState() == Tainted {
		return false, fmt.Errorf("txn: cannot commit a tainted transaction")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Isolation == Serializable {
		if conflicts(t, m.commitLog) {
			t.Taint()
			return false, nil
		}
	}

	m.commitTs++
	commitTs := m.commitTs

	if m.resolveHeap != nil {
		for oid, rids := range t.WriteSet {
			h, ok := m.resolveHeap(oid)
			if !ok {
				continue
			}
			for rid := range rids {
				cur, _, err := h.GetTuple(rid)
				if err != nil {
					return false, fmt.Errorf("txn: read tuple for commit stamp %+v: %w", rid, err)
				}
				if err := h.UpdateTupleMeta(heap.TupleMeta{Ts: commitTs, IsDeleted: cur.IsDeleted}, rid); err != nil {
					return false, fmt.Errorf("txn: stamp commit_ts for %+v: %w", rid, err)
				}
			}
		}
	}

	t.CommitTs = commitTs
	t.setState(Committed)

	writes := make(map[TableOID]map[heap.RID]struct{}, len(t.WriteSet))
	for oid, rids := range t.WriteSet {
		set := make(map[heap.RID]struct{}, len(rids))
		for rid := range rids {
			set[rid] = struct{}{}
		}
		writes[oid] = set
	}
	m.commitLog = append(m.commitLog, commitRecord{commitTs: commitTs, writes: writes})

	// t stays in the transaction map (COMMITTED) until GarbageCollection
	// decides its undo logs are unreachable; a still-running reader's
	// chain walk may need to find it by txn id via VersionStore.
	m.watermark.commitTs = commitTs
	m.watermark.Remove(t.ReadTs)
	return true, nil
}

// Abort marks t ABORTED and releases its slot in the watermark. Undoing
// its in-place writes (restoring pre-images from its undo logs) is the
// caller's responsibility, matching the teacher's split between the
// executor layer and the version-control layer. Like Commit, t stays in
// the transaction map until GarbageCollection sweeps it.
func (m *Manager) Abort(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.setState(Aborted)
	m.watermark.Remove(t.ReadTs)
}

// Watermark returns the lowest read_ts among running transactions.
func (m *Manager) Watermark() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark.Value()
}

func conflicts(t *Transaction, log []commitRecord) bool {
	for _, rec := range log {
		if rec.commitTs <= t.ReadTs {
			continue
		}
		for oid, rids := range t.WriteSet {
			other, ok := rec.writes[oid]
			if !ok {
				continue
			}
			for rid := range rids {
				if _, clash := other[rid]; clash {
					return true
				}
			}
		}
	}
	return false
}
