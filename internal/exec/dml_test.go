package exec

import (
	"errors"
	"testing"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/txn"
)

func personSchema() *catalog.Schema {
	return catalog.NewSchema([]catalog.Column{
		{Name: "id", TypeID: catalog.TypeInteger},
		{Name: "age", TypeID: catalog.TypeInteger},
	})
}

// TestInsertMaintainsPrimaryKeyIndex checks that Insert both appends the
// heap row and inserts its key into the table's primary-key B+Tree, the
// index an IndexScan/NestedIndexJoin probe depends on.
func TestInsertMaintainsPrimaryKeyIndex(t *testing.T) {
	env := newTestEnv(t, 16)
	schema := personSchema()
	table := env.createTable("people", schema)
	pk := env.createIndex(table, "people_pk", "id", true)

	txnT := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1, 30), intRow(2, 40)})
	env.commit(txnT)

	_, ctx := env.begin(txn.SnapshotIsolation)
	scan, err := NewIndexScan(ctx, table, pk, []catalog.Value{catalog.NewInteger(2)})
	if err != nil {
		t.Fatalf("NewIndexScan: %v", err)
	}
	rows := drain(t, scan)
	if len(rows) != 1 || rows[0].Values[1].AsInteger() != 40 {
		t.Fatalf("expected one row (2,40) via index probe, got %+v", rows)
	}
}

func TestUpdateNonPKColumnInPlace(t *testing.T) {
	env := newTestEnv(t, 16)
	schema := personSchema()
	table := env.createTable("people", schema)
	env.createIndex(table, "people_pk", "id", true)

	txnT := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1, 30)})
	env.commit(txnT)

	_, ctx := env.begin(txn.SnapshotIsolation)
	scanTable, err := NewSeqScan(ctx, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	targets := []Expression{
		ColumnValue{ColIdx: 0}, // id unchanged
		Constant{Val: catalog.NewInteger(31)},
	}
	upd, err := NewUpdate(ctx, table, targets, scanTable)
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}
	countRow, err := drainOne(t, upd)
	if err != nil {
		t.Fatalf("Update.Next: %v", err)
	}
	if countRow.Values[0].AsInteger() != 1 {
		t.Fatalf("expected 1 row updated, got %d", countRow.Values[0].AsInteger())
	}

	// The updater's own read (same transaction) already sees its write via
	// the temp-ts self-visibility rule in VersionStore.Reconstruct.
	selfScan, err := NewSeqScan(ctx, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	selfRows := drain(t, selfScan)
	if len(selfRows) != 1 || selfRows[0].Values[1].AsInteger() != 31 {
		t.Fatalf("expected the updater to observe its own uncommitted write (1,31), got %+v", selfRows)
	}

	txnT2 := ctx.Txn
	env.commit(txnT2)

	_, ctx2 := env.begin(txn.SnapshotIsolation)
	finalScan, err := NewSeqScan(ctx2, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	finalRows := drain(t, finalScan)
	if len(finalRows) != 1 || finalRows[0].Values[1].AsInteger() != 31 {
		t.Fatalf("expected a fresh reader to see (1,31) post-commit, got %+v", finalRows)
	}
}

// TestWriteWriteConflictTaintsTransaction checks that two concurrent
// transactions updating the same row cause the later writer to be
// tainted with ErrWriteConflict, per spec §7.
func TestWriteWriteConflictTaintsTransaction(t *testing.T) {
	env := newTestEnv(t, 16)
	schema := personSchema()
	table := env.createTable("people", schema)

	seed := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1, 30)})
	env.commit(seed)

	ta, ctxA := env.begin(txn.SnapshotIsolation)
	scanA, err := NewSeqScan(ctxA, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	updA, err := NewUpdate(ctxA, table, []Expression{ColumnValue{ColIdx: 0}, Constant{Val: catalog.NewInteger(99)}}, scanA)
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}
	if _, err := drainOne(t, updA); err != nil {
		t.Fatalf("updA: %v", err)
	}

	tb, ctxB := env.begin(txn.SnapshotIsolation)
	scanB, err := NewSeqScan(ctxB, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	updB, err := NewUpdate(ctxB, table, []Expression{ColumnValue{ColIdx: 0}, Constant{Val: catalog.NewInteger(100)}}, scanB)
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}
	_, err = drainOne(t, updB)
	if err == nil {
		t.Fatal("expected a write-write conflict error for the second concurrent updater")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) || !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if tb.GetState() != txn.Tainted {
		t.Fatalf("expected tb TAINTED after the conflict, got %v", tb.GetState())
	}

	env.commit(ta)
	env.txnMgr.Abort(tb)
}

// TestDeleteThenInsertResurrectsTombstone exercises insertIntoTombstone:
// deleting a primary-keyed row and then inserting a fresh row with the
// same key reuses the tombstoned slot rather than erroring.
func TestDeleteThenInsertResurrectsTombstone(t *testing.T) {
	env := newTestEnv(t, 16)
	schema := personSchema()
	table := env.createTable("people", schema)
	pk := env.createIndex(table, "people_pk", "id", true)

	seed := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1, 30)})
	env.commit(seed)

	del, ctxDel := env.begin(txn.SnapshotIsolation)
	scanDel, err := NewSeqScan(ctxDel, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	delOp, err := NewDelete(ctxDel, table, scanDel)
	if err != nil {
		t.Fatalf("NewDelete: %v", err)
	}
	if _, err := drainOne(t, delOp); err != nil {
		t.Fatalf("Delete.Next: %v", err)
	}
	env.commit(del)

	reinsert := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1, 55)})
	env.commit(reinsert)

	_, ctx := env.begin(txn.SnapshotIsolation)
	scan, err := NewIndexScan(ctx, table, pk, []catalog.Value{catalog.NewInteger(1)})
	if err != nil {
		t.Fatalf("NewIndexScan: %v", err)
	}
	rows := drain(t, scan)
	if len(rows) != 1 || rows[0].Values[1].AsInteger() != 55 {
		t.Fatalf("expected resurrected row (1,55), got %+v", rows)
	}
}
