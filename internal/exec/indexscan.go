package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/bplustree"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// IndexScan resolves rows either by probing the index once per key in
// PredKeys — the shape the §4.10 SeqScan->IndexScan rewrite produces — or,
// when PredKeys is empty, by walking every leaf entry in ascending key
// order. Either way each resolved RID is still run through MVCC before
// being handed to the caller: the index only narrows which RIDs to look
// at, visibility is always decided by the version store.
type IndexScan struct {
	ctx      *ExecutorContext
	table    *catalog.TableInfo
	th       *heap.TableHeap
	tree     *bplustree.BPlusTree
	predKeys []catalog.Value

	treeIt *bplustree.Iterator
	keyPos int
}

// NewIndexScan builds an IndexScan over index, probing predKeys (if
// non-empty) or otherwise iterating the whole index in order.
func NewIndexScan(ctx *ExecutorContext, table *catalog.TableInfo, index *catalog.IndexInfo, predKeys []catalog.Value) (*IndexScan, error) {
	th, ok := table.Heap.(*heap.TableHeap)
	if !ok {
		return nil, fmt.Errorf("exec: table %q has no table heap", table.Name)
	}
	tree, ok := index.Index.(*bplustree.BPlusTree)
	if !ok {
		return nil, fmt.Errorf("exec: index %q is not a B+Tree", index.Name)
	}
	return &IndexScan{ctx: ctx, table: table, th: th, tree: tree, predKeys: predKeys}, nil
}

func (s *IndexScan) OutputSchema() *catalog.Schema { return s.table.Schema }

func (s *IndexScan) Init() error {
	s.keyPos = 0
	s.treeIt = nil
	if len(s.predKeys) == 0 {
		it, err := s.tree.Begin()
		if err != nil {
			return err
		}
		s.treeIt = it
	}
	return nil
}

func (s *IndexScan) resolve(rid heap.RID) (catalog.Tuple, bool, error) {
	meta, base, err := s.th.GetTuple(rid)
	if err != nil {
		return catalog.Tuple{}, false, err
	}
	tuple, visible := s.ctx.VersionStore.Reconstruct(s.table.Schema, rid, meta, base, s.ctx.Txn.ReadTs, s.ctx.Txn.TxnID)
	return tuple, visible, nil
}

func (s *IndexScan) Next() (catalog.Tuple, heap.RID, bool, error) {
	if len(s.predKeys) > 0 {
		for s.keyPos < len(s.predKeys) {
			key := s.predKeys[s.keyPos]
			s.keyPos++
			rid, found, err := s.tree.GetValue(key)
			if err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			if !found {
				continue
			}
			tuple, visible, err := s.resolve(rid)
			if err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			if !visible {
				continue
			}
			return tuple, rid, true, nil
		}
		return catalog.Tuple{}, heap.RID{}, false, nil
	}

	for {
		_, rid, ok := s.treeIt.Next()
		if !ok {
			return catalog.Tuple{}, heap.RID{}, false, nil
		}
		tuple, visible, err := s.resolve(rid)
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !visible {
			continue
		}
		return tuple, rid, true, nil
	}
}
