package exec

import (
	"testing"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/txn"
)

func twoColSchema(a, b string) *catalog.Schema {
	return catalog.NewSchema([]catalog.Column{
		{Name: a, TypeID: catalog.TypeInteger},
		{Name: b, TypeID: catalog.TypeInteger},
	})
}

func seedTable(t *testing.T, env *testEnv, name string, schema *catalog.Schema, rows []catalog.Tuple) *catalog.TableInfo {
	t.Helper()
	table := env.createTable(name, schema)
	txnT := insertRows(t, env, table, txn.SnapshotIsolation, rows)
	env.commit(txnT)
	return table
}

func TestNestedLoopJoinInner(t *testing.T) {
	env := newTestEnv(t, 16)
	left := seedTable(t, env, "a", twoColSchema("x", "z"), []catalog.Tuple{intRow(1, 2), intRow(5, 6)})
	right := seedTable(t, env, "b", twoColSchema("y", "w"), []catalog.Tuple{intRow(1, 2), intRow(9, 9)})

	_, ctx := env.begin(txn.SnapshotIsolation)
	leftScan, err := NewSeqScan(ctx, left, nil)
	if err != nil {
		t.Fatalf("NewSeqScan(left): %v", err)
	}
	rightScan, err := NewSeqScan(ctx, right, nil)
	if err != nil {
		t.Fatalf("NewSeqScan(right): %v", err)
	}
	pred := Logical{
		Op:   LogicalAnd,
		Left: Comparison{Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 0}, Right: ColumnValue{TupleIdx: 1, ColIdx: 0}},
		Right: Comparison{
			Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 1}, Right: ColumnValue{TupleIdx: 1, ColIdx: 1},
		},
	}
	join := NewNestedLoopJoin(leftScan, rightScan, InnerJoin, pred)
	rows := drain(t, join)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one joined row, got %d: %+v", len(rows), rows)
	}
	got := rows[0]
	want := []int64{1, 2, 1, 2}
	for i, w := range want {
		if got.Values[i].AsInteger() != w {
			t.Fatalf("row %d: expected %v, got %+v", i, want, got)
		}
	}
}

func TestNestedLoopJoinLeftPadsUnmatchedRows(t *testing.T) {
	env := newTestEnv(t, 16)
	left := seedTable(t, env, "a", twoColSchema("x", "z"), []catalog.Tuple{intRow(1, 2), intRow(3, 4)})
	right := seedTable(t, env, "b", twoColSchema("y", "w"), []catalog.Tuple{intRow(1, 2)})

	_, ctx := env.begin(txn.SnapshotIsolation)
	leftScan, err := NewSeqScan(ctx, left, nil)
	if err != nil {
		t.Fatalf("NewSeqScan(left): %v", err)
	}
	rightScan, err := NewSeqScan(ctx, right, nil)
	if err != nil {
		t.Fatalf("NewSeqScan(right): %v", err)
	}
	pred := Comparison{Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 0}, Right: ColumnValue{TupleIdx: 1, ColIdx: 0}}
	join := NewNestedLoopJoin(leftScan, rightScan, LeftJoin, pred)
	rows := drain(t, join)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (one matched, one null-padded), got %d", len(rows))
	}
	unmatched := rows[1]
	if !unmatched.Values[2].IsNull() || !unmatched.Values[3].IsNull() {
		t.Fatalf("expected the unmatched left row's right columns to be NULL, got %+v", unmatched)
	}
}

// TestHashJoinMatchesNestedLoopJoin runs the §8 S3-style two-key equality
// join both ways and checks they agree, the soundness property rewrite
// rule C10 relies on.
func TestHashJoinMatchesNestedLoopJoin(t *testing.T) {
	env := newTestEnv(t, 16)
	left := seedTable(t, env, "a", twoColSchema("x", "z"), []catalog.Tuple{intRow(1, 2), intRow(3, 4), intRow(5, 6)})
	right := seedTable(t, env, "b", twoColSchema("y", "w"), []catalog.Tuple{intRow(1, 2), intRow(3, 9), intRow(9, 9)})

	_, ctx := env.begin(txn.SnapshotIsolation)

	buildNLJ := func() Operator {
		ls, _ := NewSeqScan(ctx, left, nil)
		rs, _ := NewSeqScan(ctx, right, nil)
		pred := Logical{
			Op:   LogicalAnd,
			Left: Comparison{Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 0}, Right: ColumnValue{TupleIdx: 1, ColIdx: 0}},
			Right: Comparison{
				Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 1}, Right: ColumnValue{TupleIdx: 1, ColIdx: 1},
			},
		}
		return NewNestedLoopJoin(ls, rs, InnerJoin, pred)
	}
	nljRows := drain(t, buildNLJ())

	ls, _ := NewSeqScan(ctx, left, nil)
	rs, _ := NewSeqScan(ctx, right, nil)
	hj := NewHashJoin(ls, rs, InnerJoin,
		[]Expression{ColumnValue{TupleIdx: 0, ColIdx: 0}, ColumnValue{TupleIdx: 0, ColIdx: 1}},
		[]Expression{ColumnValue{TupleIdx: 0, ColIdx: 0}, ColumnValue{TupleIdx: 0, ColIdx: 1}},
	)
	hjRows := drain(t, hj)

	if len(nljRows) != 1 || len(hjRows) != 1 {
		t.Fatalf("expected exactly one match both ways, got nlj=%d hj=%d", len(nljRows), len(hjRows))
	}
	for i := range nljRows[0].Values {
		if nljRows[0].Values[i].AsInteger() != hjRows[0].Values[i].AsInteger() {
			t.Fatalf("NLJ and HashJoin disagree: %+v vs %+v", nljRows[0], hjRows[0])
		}
	}
}

func TestNestedIndexJoin(t *testing.T) {
	env := newTestEnv(t, 16)
	left := seedTable(t, env, "orders", twoColSchema("order_id", "customer_id"), []catalog.Tuple{intRow(100, 1), intRow(101, 2)})
	right := env.createTable("customers", twoColSchema("id", "age"))
	idx := env.createIndex(right, "customers_pk", "id", true)
	rtxn := insertRows(t, env, right, txn.SnapshotIsolation, []catalog.Tuple{intRow(1, 30), intRow(2, 40)})
	env.commit(rtxn)

	_, ctx := env.begin(txn.SnapshotIsolation)
	leftScan, err := NewSeqScan(ctx, left, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	join, err := NewNestedIndexJoin(ctx, leftScan, ColumnValue{ColIdx: 1}, right, idx, InnerJoin)
	if err != nil {
		t.Fatalf("NewNestedIndexJoin: %v", err)
	}
	rows := drain(t, join)
	if len(rows) != 2 {
		t.Fatalf("expected 2 joined rows, got %d", len(rows))
	}
	byOrder := map[int64]int64{}
	for _, r := range rows {
		byOrder[r.Values[0].AsInteger()] = r.Values[3].AsInteger()
	}
	if byOrder[100] != 30 || byOrder[101] != 40 {
		t.Fatalf("unexpected join result: %+v", byOrder)
	}
}
