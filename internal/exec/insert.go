package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/bplustree"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// Insert consumes every row its child produces and appends each as a new
// tuple in table, maintaining every index registered over it. Like the
// teacher's runInsert in internal/engine/exec.go, it reports a single
// summary row (count of inserted tuples) rather than echoing each insert.
type Insert struct {
	ctx   *ExecutorContext
	table *catalog.TableInfo
	th    *heap.TableHeap
	child Operator

	pk        *catalog.IndexInfo
	pkTree    *bplustree.BPlusTree
	secondary []indexBinding

	done  bool
	count int64
}

// NewInsert builds an Insert over table, writing every row child produces.
func NewInsert(ctx *ExecutorContext, table *catalog.TableInfo, child Operator) (*Insert, error) {
	th, ok := table.Heap.(*heap.TableHeap)
	if !ok {
		return nil, fmt.Errorf("exec: table %q has no table heap", table.Name)
	}
	pk, pkTree, secondary, err := wireIndexes(table, ctx.Catalog.GetTableIndexes(table.Name))
	if err != nil {
		return nil, err
	}
	return &Insert{ctx: ctx, table: table, th: th, child: child, pk: pk, pkTree: pkTree, secondary: secondary}, nil
}

func (in *Insert) OutputSchema() *catalog.Schema { return countSchema }

func (in *Insert) Init() error {
	in.done = false
	in.count = 0
	return in.child.Init()
}

func (in *Insert) Next() (catalog.Tuple, heap.RID, bool, error) {
	if in.done {
		return catalog.Tuple{}, heap.RID{}, false, nil
	}
	for {
		tuple, _, ok, err := in.child.Next()
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !ok {
			break
		}
		if err := insertRow(in.ctx, in.table, in.th, in.pk, in.pkTree, in.secondary, tuple); err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		in.count++
	}
	in.done = true
	return countTuple(in.count), heap.RID{}, true, nil
}
