package bplustree

import (
	"encoding/binary"
	"fmt"

	"github.com/latchwood/latchdb/internal/buffer"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/page"
)

// BPlusTree is a concurrent ordered index over (catalog.Value -> heap.RID).
// A dedicated header page (allocated once, for the tree's lifetime) holds
// the current root page id; page.InvalidID means the tree is empty. The
// header page's own write latch is what serializes concurrent root
// creation/replacement — no separate mutex needed.
type BPlusTree struct {
	name        string
	comparator  Comparator
	bpm         *buffer.Manager
	leafMax     uint16
	internalMax uint16

	headerID page.ID
}

// NewBPlusTree allocates a header page and builds an empty tree over bpm.
func NewBPlusTree(name string, bpm *buffer.Manager, leafMax, internalMax uint16, cmp Comparator) (*BPlusTree, error) {
	wg, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, fmt.Errorf("bplustree: allocate header page for %q: %w", name, err)
	}
	binary.LittleEndian.PutUint64(wg.Data()[0:8], uint64(page.InvalidID))
	headerID := wg.PageID()
	wg.Drop()

	return &BPlusTree{
		name:        name,
		comparator:  cmp,
		bpm:         bpm,
		leafMax:     leafMax,
		internalMax: internalMax,
		headerID:    headerID,
	}, nil
}

func (t *BPlusTree) Name() string { return t.name }

func (t *BPlusTree) rootID() (page.ID, error) {
	rg, err := t.bpm.Read(t.headerID)
	if err != nil {
		return page.InvalidID, err
	}
	defer rg.Drop()
	return page.ID(binary.LittleEndian.Uint64(rg.Data()[0:8])), nil
}

// GetValue returns the RID stored for key, if any. Read-only descents take
// read guards one level at a time, dropping the parent before acquiring
// the child — no crabbing bookkeeping needed since nothing is mutated.
func (t *BPlusTree) GetValue(key catalog.Value) (heap.RID, bool, error) {
	root, err := t.rootID()
	if err != nil {
		return heap.RID{}, false, err
	}
	if root == page.InvalidID {
		return heap.RID{}, false, nil
	}

	id := root
	for {
		rg, err := t.bpm.Read(id)
		if err != nil {
			return heap.RID{}, false, err
		}
		tp := wrapTreePage(rg.Data())
		if tp.isLeaf() {
			rid, ok := t.leafFind(tp, key)
			rg.Drop()
			return rid, ok, nil
		}
		child := t.internalFind(tp, key)
		rg.Drop()
		id = child
	}
}

// leafFind scans a leaf page's sorted entries for key.
func (t *BPlusTree) leafFind(tp *treePage, key catalog.Value) (heap.RID, bool) {
	n := tp.size()
	for i := uint16(0); i < n; i++ {
		k, rid := decodeLeafRecord(tp.getRecord(i))
		if t.comparator.Equal(k, key) {
			return rid, true
		}
	}
	return heap.RID{}, false
}

// internalFind returns the child pointer to descend to for key: the
// greatest i such that keys[i] <= key, per spec's internal-page
// convention (pointers[0] covers everything below keys[1]).
func (t *BPlusTree) internalFind(tp *treePage, key catalog.Value) page.ID {
	n := tp.size() // number of keys; slots are 0..n (n+1 children)
	_, child := decodeInternalRecord(tp.getRecord(0))
	for i := uint16(1); i <= n; i++ {
		k, c := decodeInternalRecord(tp.getRecord(i))
		if t.comparator.Less(key, k) {
			break
		}
		child = c
	}
	return child
}

func (t *BPlusTree) leafEntries(tp *treePage) []leafEntry {
	n := tp.size()
	out := make([]leafEntry, n)
	for i := uint16(0); i < n; i++ {
		k, rid := decodeLeafRecord(tp.getRecord(i))
		out[i] = leafEntry{key: k, rid: rid}
	}
	return out
}

func (t *BPlusTree) internalEntries(tp *treePage) []internalEntry {
	n := tp.size()
	out := make([]internalEntry, n+1)
	for i := uint16(0); i <= n; i++ {
		k, c := decodeInternalRecord(tp.getRecord(i))
		out[i] = internalEntry{key: k, hasKey: i > 0, child: c}
	}
	return out
}

type leafEntry struct {
	key catalog.Value
	rid heap.RID
}

type internalEntry struct {
	key    catalog.Value
	hasKey bool
	child  page.ID
}

func (t *BPlusTree) writeLeaf(tp *treePage, entries []leafEntry) {
	records := make([][]byte, len(entries))
	for i, e := range entries {
		records[i] = encodeLeafRecord(e.key, e.rid)
	}
	tp.rebuildAfter(records)
}

func (t *BPlusTree) writeInternal(tp *treePage, entries []internalEntry) {
	records := make([][]byte, len(entries))
	for i, e := range entries {
		records[i] = encodeInternalRecord(e.key, e.hasKey, e.child)
	}
	tp.rebuildAfter(records)
}
