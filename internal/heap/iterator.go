package heap

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/page"
)

// Iterator walks every live slot of a heap's page chain in insertion
// order, skipping tombstoned slots. It holds no latch between Next calls:
// each call fetches, reads, and drops its own read guard, matching the
// pull-based operators' expectation that a scan never blocks a concurrent
// writer for longer than a single page's read.
type Iterator struct {
	heap    *TableHeap
	pageID  page.ID
	slot    uint16
	done    bool
}

// Begin returns an iterator positioned before the heap's first tuple.
func (h *TableHeap) Begin() *Iterator {
	return &Iterator{heap: h, pageID: h.firstID, slot: 0}
}

// Next advances to and returns the next live (RID, TupleMeta, Tuple). The
// second return value is false once the chain is exhausted.
func (it *Iterator) Next() (RID, TupleMeta, catalog.Tuple, bool) {
	if it.done {
		return RID{}, TupleMeta{}, catalog.Tuple{}, false
	}
	for {
		rg, err := it.heap.bpm.Read(it.pageID)
		if err != nil {
			it.done = true
			return RID{}, TupleMeta{}, catalog.Tuple{}, false
		}
		hp := wrapHeapPage(rg.Data())
		n := hp.numSlots()

		for it.slot < n {
			raw, ok := hp.getSlot(it.slot)
			slot := it.slot
			it.slot++
			if !ok {
				continue // tombstoned
			}
			meta, tuple := decodeTuple(it.heap.schema, raw)
			rid := RID{PageID: it.pageID, Slot: slot}
			rg.Drop()
			return rid, meta, tuple, true
		}

		next := hp.nextPageID()
		rg.Drop()
		if next == page.InvalidID {
			it.done = true
			return RID{}, TupleMeta{}, catalog.Tuple{}, false
		}
		it.pageID = next
		it.slot = 0
	}
}
