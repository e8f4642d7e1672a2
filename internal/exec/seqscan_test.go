package exec

import (
	"testing"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/txn"
)

func idSchema() *catalog.Schema {
	return catalog.NewSchema([]catalog.Column{{Name: "id", TypeID: catalog.TypeInteger}})
}

func insertRows(t *testing.T, env *testEnv, table *catalog.TableInfo, isolation txn.Isolation, rows []catalog.Tuple) *txn.Transaction {
	t.Helper()
	txnT, ctx := env.begin(isolation)
	in, err := NewInsert(ctx, table, newLiteralRows(table.Schema, rows))
	if err != nil {
		t.Fatalf("NewInsert: %v", err)
	}
	if _, err := drainOne(t, in); err != nil {
		t.Fatalf("Insert.Next: %v", err)
	}
	return txnT
}

// drainOne runs Init/Next once (DML operators emit exactly one summary
// count row) and returns it, failing the test on any operator error.
func drainOne(t *testing.T, op Operator) (catalog.Tuple, error) {
	t.Helper()
	if err := op.Init(); err != nil {
		return catalog.Tuple{}, err
	}
	tuple, _, _, err := op.Next()
	return tuple, err
}

func idsOf(rows []catalog.Tuple) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.Values[0].AsInteger()
	}
	return out
}

func assertIDs(t *testing.T, got []catalog.Tuple, want []int64) {
	t.Helper()
	gotIDs := idsOf(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("expected %v, got %v", want, gotIDs)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, gotIDs)
		}
	}
}

// TestSeqScanVisibilityAcrossSnapshots reproduces spec §8 scenario S1: T1
// inserts {1,2,3} and commits at ts=1; T2 begins (read_ts=1); T3 deletes
// row 2 and commits at ts=2; T2's scan still sees {1,2,3} (its snapshot
// predates T3's delete) while a fresh T4 started after T3 sees {1,3}.
func TestSeqScanVisibilityAcrossSnapshots(t *testing.T) {
	env := newTestEnv(t, 16)
	schema := idSchema()
	table := env.createTable("t", schema)

	t1 := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1), intRow(2), intRow(3)})
	env.commit(t1)

	t2, ctx2 := env.begin(txn.SnapshotIsolation)

	// T3 deletes row 2 and commits, after T2's snapshot was already taken.
	t3, ctx3 := env.begin(txn.SnapshotIsolation)
	scan3, err := NewSeqScan(ctx3, table, Comparison{Op: CompareEq, Left: ColumnValue{ColIdx: 0}, Right: Constant{Val: catalog.NewInteger(2)}})
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	rows3 := drain(t, scan3)
	if len(rows3) != 1 {
		t.Fatalf("expected exactly one row matching id=2, got %d", len(rows3))
	}
	// Delete's child must report each matched row's RID, so it re-scans
	// (SeqScan.Init is idempotent) rather than replaying rows3's bare values.
	del, err := NewDelete(ctx3, table, scan3)
	if err != nil {
		t.Fatalf("NewDelete: %v", err)
	}
	if _, err := drainOne(t, del); err != nil {
		t.Fatalf("Delete.Next: %v", err)
	}
	env.commit(t3)

	scan2, err := NewSeqScan(ctx2, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	assertIDs(t, drain(t, scan2), []int64{1, 2, 3})

	t4, ctx4 := env.begin(txn.SnapshotIsolation)
	scan4, err := NewSeqScan(ctx4, table, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	assertIDs(t, drain(t, scan4), []int64{1, 3})

	env.commit(t2)
	env.commit(t4)
}

func TestSeqScanFilterPredicate(t *testing.T) {
	env := newTestEnv(t, 16)
	schema := idSchema()
	table := env.createTable("t", schema)
	txnT := insertRows(t, env, table, txn.SnapshotIsolation, []catalog.Tuple{intRow(1), intRow(2), intRow(3), intRow(4)})
	env.commit(txnT)

	_, ctx := env.begin(txn.SnapshotIsolation)
	pred := Comparison{Op: CompareGe, Left: ColumnValue{ColIdx: 0}, Right: Constant{Val: catalog.NewInteger(3)}}
	scan, err := NewSeqScan(ctx, table, pred)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	assertIDs(t, drain(t, scan), []int64{3, 4})
}
