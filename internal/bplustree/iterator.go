package bplustree

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/page"
)

// Iterator is a forward range iterator over leaves in ascending key order.
// It keeps only a leaf page id and a slot index between calls and holds no
// guard: each Next takes a read guard on the current leaf and releases it
// before returning.
type Iterator struct {
	tree   *BPlusTree
	pageID page.ID
	slot   uint16
	done   bool
}

// Begin returns an iterator positioned at the tree's first entry.
func (t *BPlusTree) Begin() (*Iterator, error) {
	root, err := t.rootID()
	if err != nil {
		return nil, err
	}
	if root == page.InvalidID {
		return &Iterator{tree: t, done: true}, nil
	}

	id := root
	for {
		rg, err := t.bpm.Read(id)
		if err != nil {
			return nil, err
		}
		tp := wrapTreePage(rg.Data())
		if tp.isLeaf() {
			rg.Drop()
			return &Iterator{tree: t, pageID: id, slot: 0}, nil
		}
		_, next := decodeInternalRecord(tp.getRecord(0))
		rg.Drop()
		id = next
	}
}

// Next returns the next (key, RID) pair; the final return value is false
// once the iterator is exhausted.
func (it *Iterator) Next() (catalog.Value, heap.RID, bool) {
	if it.done {
		return catalog.Value{}, heap.RID{}, false
	}
	for {
		rg, err := it.tree.bpm.Read(it.pageID)
		if err != nil {
			it.done = true
			return catalog.Value{}, heap.RID{}, false
		}
		tp := wrapTreePage(rg.Data())
		if it.slot < tp.size() {
			key, rid := decodeLeafRecord(tp.getRecord(it.slot))
			it.slot++
			rg.Drop()
			return key, rid, true
		}
		next := tp.nextPageID()
		rg.Drop()
		if next == page.InvalidID {
			it.done = true
			return catalog.Value{}, heap.RID{}, false
		}
		it.pageID = next
		it.slot = 0
	}
}

// Seek repositions a fresh iterator at the first entry >= key, descending
// the tree to find the starting leaf directly rather than scanning from
// the beginning.
func (t *BPlusTree) Seek(key catalog.Value) (*Iterator, error) {
	root, err := t.rootID()
	if err != nil {
		return nil, err
	}
	if root == page.InvalidID {
		return &Iterator{tree: t, done: true}, nil
	}

	id := root
	for {
		rg, err := t.bpm.Read(id)
		if err != nil {
			return nil, err
		}
		tp := wrapTreePage(rg.Data())
		if tp.isLeaf() {
			n := tp.size()
			slot := uint16(0)
			for slot < n {
				k, _ := decodeLeafRecord(tp.getRecord(slot))
				if !t.comparator.Less(k, key) {
					break
				}
				slot++
			}
			rg.Drop()
			return &Iterator{tree: t, pageID: id, slot: slot}, nil
		}
		child := t.internalFind(tp, key)
		rg.Drop()
		id = child
	}
}
