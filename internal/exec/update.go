package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/bplustree"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/txn"
)

// Update evaluates Targets (one expression per output column, each
// re-evaluated against the old row — a column that doesn't change simply
// carries a ColumnValue pointing back at itself) against every row its
// child produces. It materializes the child's rows before writing any of
// them: §4.9's pipeline-breaker requirement, since writing through a
// still-open child iterator scanning the same table it overwrites would
// corrupt the scan (the Halloween problem).
type Update struct {
	ctx     *ExecutorContext
	table   *catalog.TableInfo
	th      *heap.TableHeap
	child   Operator
	targets []Expression

	pk        *catalog.IndexInfo
	pkTree    *bplustree.BPlusTree
	secondary []indexBinding

	rows  []collectedRow
	pos   int
	done  bool
	count int64
}

type collectedRow struct {
	old catalog.Tuple
	rid heap.RID
}

// NewUpdate builds an Update over table. targets must have one entry per
// column of table.Schema.
func NewUpdate(ctx *ExecutorContext, table *catalog.TableInfo, targets []Expression, child Operator) (*Update, error) {
	th, ok := table.Heap.(*heap.TableHeap)
	if !ok {
		return nil, fmt.Errorf("exec: table %q has no table heap", table.Name)
	}
	pk, pkTree, secondary, err := wireIndexes(table, ctx.Catalog.GetTableIndexes(table.Name))
	if err != nil {
		return nil, err
	}
	return &Update{ctx: ctx, table: table, th: th, child: child, targets: targets, pk: pk, pkTree: pkTree, secondary: secondary}, nil
}

func (u *Update) OutputSchema() *catalog.Schema { return countSchema }

func (u *Update) Init() error {
	if err := u.child.Init(); err != nil {
		return err
	}
	u.rows = nil
	u.pos = 0
	u.done = false
	u.count = 0
	for {
		tuple, rid, ok, err := u.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		u.rows = append(u.rows, collectedRow{old: tuple, rid: rid})
	}
	return nil
}

func (u *Update) Next() (catalog.Tuple, heap.RID, bool, error) {
	if u.done {
		return catalog.Tuple{}, heap.RID{}, false, nil
	}
	for u.pos < len(u.rows) {
		row := u.rows[u.pos]
		u.pos++

		newValues := make([]catalog.Value, len(u.targets))
		for i, expr := range u.targets {
			v, err := expr.Evaluate(row.old)
			if err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			newValues[i] = v
		}
		newTuple := catalog.NewTuple(newValues)

		if err := u.updateOne(row.old, newTuple, row.rid); err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		u.count++
	}
	u.done = true
	return countTuple(u.count), heap.RID{}, true, nil
}

func (u *Update) pkTouched(old, newTuple catalog.Tuple) bool {
	if u.pk == nil {
		return false
	}
	oldKey := indexKey(old, u.table.Schema, u.pk.KeySchema)
	newKey := indexKey(newTuple, u.table.Schema, u.pk.KeySchema)
	return !oldKey.CompareEqual(newKey)
}

func (u *Update) updateOne(old, newTuple catalog.Tuple, rid heap.RID) error {
	if u.pkTouched(old, newTuple) {
		if err := tombstoneRow(u.ctx, u.table, u.th, old, rid); err != nil {
			return err
		}
		return insertRow(u.ctx, u.table, u.th, u.pk, u.pkTree, u.secondary, newTuple)
	}

	meta, _, err := u.th.GetTuple(rid)
	if err != nil {
		return err
	}
	if meta.IsTemporary() {
		owner := meta.Ts ^ txn.TxnStartID
		if owner != u.ctx.Txn.TxnID {
			u.ctx.Txn.Taint()
			return writeConflictErr(u.table.Name)
		}
	} else if meta.Ts > u.ctx.Txn.ReadTs {
		u.ctx.Txn.Taint()
		return writeConflictErr(u.table.Name)
	}

	if idx, ok := u.ctx.Txn.UndoLogIndexFor(rid); ok {
		existing := u.ctx.Txn.UndoLogAt(idx)
		merged := txn.MergeUndoLog(existing, u.table.Schema, old, newTuple)
		u.ctx.Txn.ReplaceUndoLog(idx, merged)
	} else {
		prevLink, _ := u.ctx.VersionStore.GetUndoLink(rid)
		log := txn.NewUndoLogForUpdate(u.table.Schema, old, newTuple, meta.Ts, prevLink)
		newIdx := u.ctx.Txn.PushUndoLog(rid, log)
		u.ctx.VersionStore.SetUndoLink(rid, txn.UndoLink{PrevTxnID: u.ctx.Txn.TxnID, PrevLogIdx: newIdx, Valid: true})
	}

	newMeta := heap.TupleMeta{Ts: u.ctx.Txn.TempTs(), IsDeleted: false}
	if err := u.th.UpdateTupleInPlace(newMeta, newTuple, rid); err != nil {
		return fmt.Errorf("exec: update changed a varchar column's encoded length in place (no delete+reinsert fallback for non-PK column growth): %w", err)
	}
	u.ctx.Txn.RecordWrite(u.table.OID, rid)

	for _, sb := range u.secondary {
		oldKey := indexKey(old, u.table.Schema, sb.info.KeySchema)
		newKey := indexKey(newTuple, u.table.Schema, sb.info.KeySchema)
		if oldKey.CompareEqual(newKey) {
			continue
		}
		if err := sb.tree.Remove(oldKey); err != nil {
			return err
		}
		if _, err := sb.tree.Insert(newKey, rid); err != nil {
			return err
		}
	}
	return nil
}
