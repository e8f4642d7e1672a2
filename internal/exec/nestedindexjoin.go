package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/bplustree"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// NestedIndexJoin probes an index on the right table once per left row
// instead of rescanning the whole right child, the index-assisted sibling
// of NestedLoopJoin for an equality join whose right side is already
// indexed (typically the result of an IndexScan->GetValue rewrite rather
// than a full right-child Init/Next scan).
type NestedIndexJoin struct {
	left       Operator
	outerKey   Expression
	rightTable *catalog.TableInfo
	rightTH    *heap.TableHeap
	rightTree  *bplustree.BPlusTree
	joinType   JoinType
	ctx        *ExecutorContext
	schema     *catalog.Schema
}

// NewNestedIndexJoin builds a join probing rightIndex with outerKey
// evaluated against each left row.
func NewNestedIndexJoin(ctx *ExecutorContext, left Operator, outerKey Expression, rightTable *catalog.TableInfo, rightIndex *catalog.IndexInfo, joinType JoinType) (*NestedIndexJoin, error) {
	th, ok := rightTable.Heap.(*heap.TableHeap)
	if !ok {
		return nil, fmt.Errorf("exec: table %q has no table heap", rightTable.Name)
	}
	tree, ok := rightIndex.Index.(*bplustree.BPlusTree)
	if !ok {
		return nil, fmt.Errorf("exec: index %q is not a B+Tree", rightIndex.Name)
	}
	return &NestedIndexJoin{
		ctx: ctx, left: left, outerKey: outerKey,
		rightTable: rightTable, rightTH: th, rightTree: tree, joinType: joinType,
		schema: combineSchemas(left.OutputSchema(), rightTable.Schema),
	}, nil
}

func (j *NestedIndexJoin) OutputSchema() *catalog.Schema { return j.schema }

func (j *NestedIndexJoin) Init() error { return j.left.Init() }

func (j *NestedIndexJoin) Next() (catalog.Tuple, heap.RID, bool, error) {
	for {
		leftRow, _, ok, err := j.left.Next()
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !ok {
			return catalog.Tuple{}, heap.RID{}, false, nil
		}

		key, err := j.outerKey.Evaluate(leftRow)
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !key.IsNull() {
			rid, found, err := j.rightTree.GetValue(key)
			if err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			if found {
				meta, base, err := j.rightTH.GetTuple(rid)
				if err != nil {
					return catalog.Tuple{}, heap.RID{}, false, err
				}
				tuple, visible := j.ctx.VersionStore.Reconstruct(j.rightTable.Schema, rid, meta, base, j.ctx.Txn.ReadTs, j.ctx.Txn.TxnID)
				if visible {
					return combine(leftRow, tuple), heap.RID{}, true, nil
				}
			}
		}

		if j.joinType == LeftJoin {
			return combine(leftRow, nullRow(j.rightTable.Schema)), heap.RID{}, true, nil
		}
		// InnerJoin with no match: move on to the next left row.
	}
}
