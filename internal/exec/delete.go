package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// Delete tombstones every row its child produces: it never removes the
// underlying heap slot or any index entry (a RID, once indexed, stays
// indexed for the life of the table in this engine — see DESIGN.md), it
// only flips TupleMeta.IsDeleted so MVCC visibility hides the row from
// readers at or after this transaction commits.
type Delete struct {
	ctx   *ExecutorContext
	table *catalog.TableInfo
	th    *heap.TableHeap
	child Operator

	done  bool
	count int64
}

// NewDelete builds a Delete over table, tombstoning every row child
// produces.
func NewDelete(ctx *ExecutorContext, table *catalog.TableInfo, child Operator) (*Delete, error) {
	th, ok := table.Heap.(*heap.TableHeap)
	if !ok {
		return nil, fmt.Errorf("exec: table %q has no table heap", table.Name)
	}
	return &Delete{ctx: ctx, table: table, th: th, child: child}, nil
}

func (d *Delete) OutputSchema() *catalog.Schema { return countSchema }

func (d *Delete) Init() error {
	d.done = false
	d.count = 0
	return d.child.Init()
}

func (d *Delete) Next() (catalog.Tuple, heap.RID, bool, error) {
	if d.done {
		return catalog.Tuple{}, heap.RID{}, false, nil
	}
	for {
		tuple, rid, ok, err := d.child.Next()
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !ok {
			break
		}
		if err := tombstoneRow(d.ctx, d.table, d.th, tuple, rid); err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		d.count++
	}
	d.done = true
	return countTuple(d.count), heap.RID{}, true, nil
}
