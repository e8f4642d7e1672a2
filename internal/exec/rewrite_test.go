package exec

import (
	"testing"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/txn"
)

// TestRewriteSeqScanToIndexScanOnDisjunctiveEquality reproduces spec §8
// scenario S2: a disjunction of (col = const) leaves over the same indexed
// column rewrites to an IndexScan with the deduplicated constant list, and
// produces the same rows a SeqScan with the same filter would.
func TestRewriteSeqScanToIndexScanOnDisjunctiveEquality(t *testing.T) {
	env := newTestEnv(t, 16)
	table := seedTable(t, env, "t", twoColSchema("v1", "v2"), []catalog.Tuple{
		intRow(1, 100), intRow(2, 200), intRow(3, 300),
	})
	idx := env.createIndex(table, "t_v1", "v1", false)
	_ = idx

	_, ctx := env.begin(txn.SnapshotIsolation)

	// v1 = 1 OR v1 = 2 OR v1 = 2
	leafEq := func(v int64) Expression {
		return Comparison{Op: CompareEq, Left: ColumnValue{ColIdx: 0, Name: "v1"}, Right: Constant{Val: catalog.NewInteger(v)}}
	}
	pred := Logical{Op: LogicalOr, Left: leafEq(1), Right: Logical{Op: LogicalOr, Left: leafEq(2), Right: leafEq(2)}}

	scan, matched, err := RewriteSeqScanToIndexScan(ctx, table, pred)
	if err != nil {
		t.Fatalf("RewriteSeqScanToIndexScan: %v", err)
	}
	if !matched {
		t.Fatal("expected the rewrite to match a disjunctive-equality predicate over an indexed column")
	}
	rows := drain(t, scan)
	var ids []int64
	for _, r := range rows {
		ids = append(ids, r.Values[0].AsInteger())
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 matching rows (deduplicated 1,2), got %v", ids)
	}

	// Compare against the equivalent SeqScan for soundness (spec §8 property
	// 10): same multiset of result tuples.
	_, ctx2 := env.begin(txn.SnapshotIsolation)
	seqScan, err := NewSeqScan(ctx2, table, pred)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	seqRows := drain(t, seqScan)
	if len(seqRows) != len(rows) {
		t.Fatalf("rewrite and SeqScan disagree on row count: %d vs %d", len(rows), len(seqRows))
	}
}

func TestRewriteSeqScanToIndexScanRejectsConjunction(t *testing.T) {
	env := newTestEnv(t, 16)
	table := seedTable(t, env, "t", twoColSchema("v1", "v2"), []catalog.Tuple{intRow(1, 100)})
	env.createIndex(table, "t_v1", "v1", false)

	_, ctx := env.begin(txn.SnapshotIsolation)
	pred := Logical{
		Op:   LogicalAnd,
		Left: Comparison{Op: CompareEq, Left: ColumnValue{ColIdx: 0, Name: "v1"}, Right: Constant{Val: catalog.NewInteger(1)}},
		Right: Comparison{
			Op: CompareEq, Left: ColumnValue{ColIdx: 1, Name: "v2"}, Right: Constant{Val: catalog.NewInteger(100)},
		},
	}
	_, matched, err := RewriteSeqScanToIndexScan(ctx, table, pred)
	if err != nil {
		t.Fatalf("RewriteSeqScanToIndexScan: %v", err)
	}
	if matched {
		t.Fatal("expected an AND predicate to be rejected by the SeqScan->IndexScan rewrite")
	}
}

// TestRewriteNestedLoopJoinToHashJoin reproduces spec §8 scenario S3: a
// conjunction of cross-column equalities rewrites NLJ to HashJoin, split
// into aligned left/right key expressions.
func TestRewriteNestedLoopJoinToHashJoin(t *testing.T) {
	env := newTestEnv(t, 16)
	left := seedTable(t, env, "a", twoColSchema("x", "z"), []catalog.Tuple{intRow(1, 2)})
	right := seedTable(t, env, "b", twoColSchema("y", "w"), []catalog.Tuple{intRow(1, 2)})

	_, ctx := env.begin(txn.SnapshotIsolation)
	leftScan, err := NewSeqScan(ctx, left, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	rightScan, err := NewSeqScan(ctx, right, nil)
	if err != nil {
		t.Fatalf("NewSeqScan: %v", err)
	}
	pred := Logical{
		Op:   LogicalAnd,
		Left: Comparison{Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 0}, Right: ColumnValue{TupleIdx: 1, ColIdx: 0}},
		Right: Comparison{
			Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 1}, Right: ColumnValue{TupleIdx: 1, ColIdx: 1},
		},
	}
	hj, matched := RewriteNestedLoopJoinToHashJoin(leftScan, rightScan, InnerJoin, pred)
	if !matched {
		t.Fatal("expected the rewrite to match a conjunctive cross-column-equality predicate")
	}
	rows := drain(t, hj)
	if len(rows) != 1 {
		t.Fatalf("expected one joined row, got %d", len(rows))
	}
}

func TestRewriteNestedLoopJoinToHashJoinRejectsDisjunction(t *testing.T) {
	left := newLiteralRows(twoColSchema("x", "z"), []catalog.Tuple{intRow(1, 2)})
	right := newLiteralRows(twoColSchema("y", "w"), []catalog.Tuple{intRow(1, 2)})
	pred := Logical{
		Op:   LogicalOr,
		Left: Comparison{Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 0}, Right: ColumnValue{TupleIdx: 1, ColIdx: 0}},
		Right: Comparison{
			Op: CompareEq, Left: ColumnValue{TupleIdx: 0, ColIdx: 1}, Right: ColumnValue{TupleIdx: 1, ColIdx: 1},
		},
	}
	_, matched := RewriteNestedLoopJoinToHashJoin(left, right, InnerJoin, pred)
	if matched {
		t.Fatal("expected an OR predicate to be rejected by the NLJ->HashJoin rewrite")
	}
}
