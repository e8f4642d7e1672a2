package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// SeqScan iterates a table heap in insertion order, resolving each base
// tuple's MVCC-visible version before applying an optional row filter.
// Grounded in the teacher's table-scan loop in internal/engine/exec.go's
// runSelect, split apart into the Init/Next shape spec §4.9 names.
type SeqScan struct {
	ctx       *ExecutorContext
	table     *catalog.TableInfo
	th        *heap.TableHeap
	predicate Expression // nil means unconditional scan
	it        *heap.Iterator
}

// NewSeqScan builds a SeqScan over table, applying predicate (if non-nil)
// to every MVCC-visible row.
func NewSeqScan(ctx *ExecutorContext, table *catalog.TableInfo, predicate Expression) (*SeqScan, error) {
	th, ok := table.Heap.(*heap.TableHeap)
	if !ok {
		return nil, fmt.Errorf("exec: table %q has no table heap", table.Name)
	}
	return &SeqScan{ctx: ctx, table: table, th: th, predicate: predicate}, nil
}

func (s *SeqScan) OutputSchema() *catalog.Schema { return s.table.Schema }

func (s *SeqScan) Init() error {
	s.it = s.th.Begin()
	return nil
}

func (s *SeqScan) Next() (catalog.Tuple, heap.RID, bool, error) {
	for {
		rid, meta, base, ok := s.it.Next()
		if !ok {
			return catalog.Tuple{}, heap.RID{}, false, nil
		}
		tuple, visible := s.ctx.VersionStore.Reconstruct(s.table.Schema, rid, meta, base, s.ctx.Txn.ReadTs, s.ctx.Txn.TxnID)
		if !visible {
			continue
		}
		if s.predicate != nil {
			keep, err := EvalBool(s.predicate, tuple)
			if err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			if !keep {
				continue
			}
		}
		return tuple, rid, true, nil
	}
}
