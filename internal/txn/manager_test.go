package txn

import (
	"path/filepath"
	"testing"

	"github.com/latchwood/latchdb/internal/buffer"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/diskio"
	"github.com/latchwood/latchdb/internal/heap"
)

func newTestHeap(t *testing.T) (*heap.TableHeap, *catalog.Schema) {
	t.Helper()
	dir := t.TempDir()
	backend, err := diskio.OpenFileBackend(filepath.Join(dir, "pages.db"))
	if err != nil {
		t.Fatalf("OpenFileBackend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	sched := diskio.New(backend, 4)
	t.Cleanup(sched.Shutdown)
	bpm := buffer.NewManager(8, 2, sched)

	schema := catalog.NewSchema([]catalog.Column{
		{Name: "id", TypeID: catalog.TypeInteger},
		{Name: "name", TypeID: catalog.TypeVarchar},
	})
	h, err := heap.NewTableHeap("t", schema, bpm)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}
	return h, schema
}

func TestBeginSnapshotsReadTsAndRegistersWatermark(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(SnapshotIsolation)
	if t1.ReadTs != 0 {
		t.Fatalf("expected first txn's read_ts to be 0, got %d", t1.ReadTs)
	}
	if m.Watermark() != 0 {
		t.Fatalf("expected watermark 0 while t1 runs, got %d", m.Watermark())
	}

	ok, err := m.Commit(t1)
	if err != nil || !ok {
		t.Fatalf("Commit: ok=%v err=%v", ok, err)
	}
	if t1.CommitTs != 1 {
		t.Fatalf("expected commit_ts 1, got %d", t1.CommitTs)
	}

	t2 := m.Begin(SnapshotIsolation)
	if t2.ReadTs != 1 {
		t.Fatalf("expected t2's read_ts to be 1 after t1's commit, got %d", t2.ReadTs)
	}
}

func TestCommitTsIsMonotonic(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(SnapshotIsolation)
	t2 := m.Begin(SnapshotIsolation)

	if ok, err := m.Commit(t1); err != nil || !ok {
		t.Fatalf("Commit t1: ok=%v err=%v", ok, err)
	}
	if ok, err := m.Commit(t2); err != nil || !ok {
		t.Fatalf("Commit t2: ok=%v err=%v", ok, err)
	}
	if t2.CommitTs <= t1.CommitTs {
		t.Fatalf("expected t2.CommitTs > t1.CommitTs, got %d and %d", t2.CommitTs, t1.CommitTs)
	}
}

func TestWatermarkTracksOldestRunningReader(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(SnapshotIsolation) // read_ts 0
	if _, err := m.Commit(t1); err != nil {
		t.Fatalf("Commit t1: %v", err)
	}

	t2 := m.Begin(SnapshotIsolation) // read_ts 1
	t3 := m.Begin(SnapshotIsolation) // read_ts 1, still running

	if ok, err := m.Commit(t2); err != nil || !ok {
		t.Fatalf("Commit t2: ok=%v err=%v", ok, err)
	}

	if got := m.Watermark(); got != 1 {
		t.Fatalf("expected watermark 1 while t3 still holds read_ts 1, got %d", got)
	}

	m.Abort(t3)
	if got := m.Watermark(); got != m.commitTs {
		t.Fatalf("expected watermark to equal last_commit_ts once nothing is running, got %d want %d", got, m.commitTs)
	}
}

func TestAbortMarksStateAndReleasesWatermark(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(SnapshotIsolation)
	m.Abort(t1)
	if t1.GetState() != Aborted {
		t.Fatalf("expected ABORTED, got %v", t1.GetState())
	}
	if got := m.Watermark(); got != 0 {
		t.Fatalf("expected watermark back to 0, got %d", got)
	}
}

func TestSerializableCommitRejectsWriteWriteConflict(t *testing.T) {
	m := NewManager()
	oid := catalog.OID("orders")
	rid := heap.RID{PageID: 1, Slot: 0}

	t1 := m.Begin(Serializable)
	t2 := m.Begin(Serializable)

	t1.recordWrite(oid, rid)
	t2.recordWrite(oid, rid)

	ok, err := m.Commit(t1)
	if err != nil || !ok {
		t.Fatalf("Commit t1: ok=%v err=%v", ok, err)
	}

	ok, err = m.Commit(t2)
	if err != nil {
		t.Fatalf("Commit t2: %v", err)
	}
	if ok {
		t.Fatal("expected t2's commit to be rejected on a write-write conflict")
	}
	if t2.GetState() != Tainted {
		t.Fatalf("expected t2 TAINTED after a rejected commit, got %v", t2.GetState())
	}
}

func TestCommitStampsCommitTsOntoWriteSetViaResolver(t *testing.T) {
	m := NewManager()
	h, schema := newTestHeap(t)
	oid := catalog.OID("t")
	m.SetTableResolver(func(o TableOID) (TupleWriter, bool) {
		if o != oid {
			return nil, false
		}
		return h, true
	})

	txn := m.Begin(SnapshotIsolation)
	tuple := catalog.NewTuple([]catalog.Value{catalog.NewInteger(1), catalog.NewVarchar("alice")})
	rid, err := h.InsertTuple(heap.TupleMeta{Ts: txn.TempTs()}, tuple)
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	txn.recordWrite(oid, rid)

	ok, err := m.Commit(txn)
	if err != nil || !ok {
		t.Fatalf("Commit: ok=%v err=%v", ok, err)
	}

	meta, _, err := h.GetTuple(rid)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if meta.Ts != txn.CommitTs {
		t.Fatalf("expected stamped meta.Ts == commit_ts %d, got %d", txn.CommitTs, meta.Ts)
	}
	if meta.IsDeleted {
		t.Fatal("expected is_deleted to remain false")
	}
	_ = schema
}

func TestGarbageCollectionRemovesUnreachableFinishedTransactions(t *testing.T) {
	m := NewManager()
	t1 := m.Begin(SnapshotIsolation)
	if _, err := m.Commit(t1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// t1 has no undo logs, so it's unreachable immediately.
	removed := m.GarbageCollection()
	if removed != 1 {
		t.Fatalf("expected 1 transaction removed, got %d", removed)
	}
	if _, ok := m.lookup(t1.TxnID); ok {
		t.Fatal("expected t1 to be gone from the transaction map after GC")
	}
}

func TestGarbageCollectionKeepsTransactionsStillBehindWatermark(t *testing.T) {
	m := NewManager()
	reader := m.Begin(SnapshotIsolation) // pins watermark at 0

	t1 := m.Begin(SnapshotIsolation)
	t1.UndoLogs = append(t1.UndoLogs, UndoLog{Ts: 1})
	if _, err := m.Commit(t1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	removed := m.GarbageCollection()
	if removed != 0 {
		t.Fatalf("expected t1 to survive GC while reader's read_ts predates its commit, got removed=%d", removed)
	}

	// Advance commit_ts further so the watermark, once reader leaves, lands
	// strictly past t1's commit_ts (spec's GC rule is commit_ts < water_mark).
	t2 := m.Begin(SnapshotIsolation)
	if _, err := m.Commit(t2); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	m.Abort(reader)
	removed = m.GarbageCollection()
	// t1 (commit_ts below the watermark) goes, and so do t2 and the aborted
	// reader, neither of which recorded an undo log.
	if removed != 3 {
		t.Fatalf("expected t1, t2 and reader to be collected once the watermark advances past t1's commit_ts, got %d", removed)
	}
}
