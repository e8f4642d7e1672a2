package exec

import "github.com/latchwood/latchdb/internal/catalog"

// RewriteSeqScanToIndexScan attempts the §4.10 algebraic rewrite: a
// SeqScan's filter that is solely an OR-tree of (column = const) equality
// comparisons, all naming the same column, and that column is covered by
// a single-column index, can be answered by probing the index directly
// for each constant instead of scanning every row. Returns ok=false (the
// caller should keep its SeqScan) if the predicate doesn't have this
// shape or no matching index exists.
func RewriteSeqScanToIndexScan(ctx *ExecutorContext, table *catalog.TableInfo, predicate Expression) (*IndexScan, bool, error) {
	if predicate == nil {
		return nil, false, nil
	}
	leaves, ok := collectEqualityOrLeaves(predicate)
	if !ok || len(leaves) == 0 {
		return nil, false, nil
	}
	colName := leaves[0].colName
	for _, l := range leaves[1:] {
		if l.colName != colName {
			return nil, false, nil
		}
	}

	var target *catalog.IndexInfo
	for _, idx := range ctx.Catalog.GetTableIndexes(table.Name) {
		if len(idx.KeySchema.Columns) == 1 && idx.KeySchema.Columns[0].Name == colName {
			target = idx
			break
		}
	}
	if target == nil {
		return nil, false, nil
	}

	// Equal constants are probed once, so a repeated OR branch cannot
	// emit the same row twice.
	keys := make([]catalog.Value, 0, len(leaves))
	for _, l := range leaves {
		dup := false
		for _, k := range keys {
			if k.GetTypeID() == l.val.GetTypeID() && k.CompareEqual(l.val) {
				dup = true
				break
			}
		}
		if !dup {
			keys = append(keys, l.val)
		}
	}
	scan, err := NewIndexScan(ctx, table, target, keys)
	if err != nil {
		return nil, false, err
	}
	return scan, true, nil
}

type eqLeaf struct {
	colName string
	val     catalog.Value
}

// collectEqualityOrLeaves walks expr, which must be built entirely from
// Logical{Op: LogicalOr} nodes over Comparison{Op: CompareEq} leaves
// comparing a ColumnValue to a Constant; any other shape fails the match.
func collectEqualityOrLeaves(expr Expression) ([]eqLeaf, bool) {
	switch e := expr.(type) {
	case Logical:
		if e.Op != LogicalOr {
			return nil, false
		}
		left, ok := collectEqualityOrLeaves(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := collectEqualityOrLeaves(e.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	case Comparison:
		if e.Op != CompareEq {
			return nil, false
		}
		leaf, ok := asEqLeaf(e)
		if !ok {
			return nil, false
		}
		return []eqLeaf{leaf}, true
	default:
		return nil, false
	}
}

func asEqLeaf(c Comparison) (eqLeaf, bool) {
	if col, ok := c.Left.(ColumnValue); ok {
		if cst, ok := c.Right.(Constant); ok {
			return eqLeaf{colName: col.Name, val: cst.Val}, true
		}
	}
	if col, ok := c.Right.(ColumnValue); ok {
		if cst, ok := c.Left.(Constant); ok {
			return eqLeaf{colName: col.Name, val: cst.Val}, true
		}
	}
	return eqLeaf{}, false
}

// RewriteNestedLoopJoinToHashJoin attempts the other §4.10 rewrite: a
// NestedLoopJoin predicate that is solely an AND-tree of cross-column
// equalities (left.col = right.col, in either operand order) can run as a
// HashJoin instead, trading the nested scan for a single build phase plus
// O(1) probes. Returns ok=false (the caller should keep its
// NestedLoopJoin) for any other predicate shape.
func RewriteNestedLoopJoinToHashJoin(left, right Operator, joinType JoinType, predicate Expression) (*HashJoin, bool) {
	if predicate == nil {
		return nil, false
	}
	leaves, ok := collectEqualityAndLeaves(predicate)
	if !ok || len(leaves) == 0 {
		return nil, false
	}
	leftKeys := make([]Expression, len(leaves))
	rightKeys := make([]Expression, len(leaves))
	for i, l := range leaves {
		leftKeys[i] = l.left
		rightKeys[i] = l.right
	}
	return NewHashJoin(left, right, joinType, leftKeys, rightKeys), true
}

type colEqLeaf struct {
	left, right Expression
}

// collectEqualityAndLeaves walks expr, which must be built entirely from
// Logical{Op: LogicalAnd} nodes over Comparison{Op: CompareEq} leaves
// equating one side's column to the other's; any other shape fails the
// match.
func collectEqualityAndLeaves(expr Expression) ([]colEqLeaf, bool) {
	switch e := expr.(type) {
	case Logical:
		if e.Op != LogicalAnd {
			return nil, false
		}
		left, ok := collectEqualityAndLeaves(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := collectEqualityAndLeaves(e.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	case Comparison:
		if e.Op != CompareEq {
			return nil, false
		}
		leaf, ok := asCrossColumnLeaf(e)
		if !ok {
			return nil, false
		}
		return []colEqLeaf{leaf}, true
	default:
		return nil, false
	}
}

// asCrossColumnLeaf normalizes a (left.col = right.col) comparison, in
// either operand order, into a pair of single-tuple column expressions:
// one evaluable against a lone left-side row, one against a lone
// right-side row, matching how HashJoin's build/probe phases call
// Expression.Evaluate with a single tuple rather than a (left, right)
// pair.
func asCrossColumnLeaf(c Comparison) (colEqLeaf, bool) {
	lc, lok := c.Left.(ColumnValue)
	rc, rok := c.Right.(ColumnValue)
	if !lok || !rok {
		return colEqLeaf{}, false
	}
	switch {
	case lc.TupleIdx == 0 && rc.TupleIdx == 1:
		return colEqLeaf{
			left:  lc,
			right: ColumnValue{TupleIdx: 0, ColIdx: rc.ColIdx, Name: rc.Name},
		}, true
	case lc.TupleIdx == 1 && rc.TupleIdx == 0:
		return colEqLeaf{
			left:  rc,
			right: ColumnValue{TupleIdx: 0, ColIdx: lc.ColIdx, Name: lc.Name},
		}, true
	default:
		return colEqLeaf{}, false
	}
}
