package heap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/latchwood/latchdb/internal/buffer"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/page"
)

// TableHeap is an append-mostly, slotted-page tuple store chained across
// pages via a next-page-id footer. It implements catalog.TupleHeap so a
// Catalog can register it without importing this package.
type TableHeap struct {
	name    string
	schema  *catalog.Schema
	bpm     *buffer.Manager
	mu      sync.Mutex // serializes page-chain growth (first/last page bookkeeping)
	firstID page.ID
	lastID  page.ID
}

// NewTableHeap creates an empty heap backed by bpm, allocating its first
// page immediately.
func NewTableHeap(name string, schema *catalog.Schema, bpm *buffer.Manager) (*TableHeap, error) {
	wg, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, fmt.Errorf("heap: allocate first page for %q: %w", name, err)
	}
	initHeapPage(wg.Data())
	id := wg.PageID()
	wg.Drop()

	return &TableHeap{name: name, schema: schema, bpm: bpm, firstID: id, lastID: id}, nil
}

func (h *TableHeap) Name() string { return h.name }

// InsertTuple appends a tuple to the heap, growing the page chain if the
// current last page has no room. Returns the RID it was stored at.
func (h *TableHeap) InsertTuple(meta TupleMeta, tuple catalog.Tuple) (RID, error) {
	record := encodeTuple(meta, h.schema, tuple)

	h.mu.Lock()
	defer h.mu.Unlock()

	wg, err := h.bpm.Write(h.lastID)
	if err != nil {
		return RID{}, fmt.Errorf("heap: fetch last page %d: %w", h.lastID, err)
	}
	hp := wrapHeapPage(wg.Data())
	if slot, ok := hp.insertSlot(record); ok {
		rid := RID{PageID: h.lastID, Slot: slot}
		wg.Drop()
		return rid, nil
	}
	wg.Drop()

	newWG, err := h.bpm.NewPageGuarded()
	if err != nil {
		return RID{}, fmt.Errorf("heap: grow page chain: %w", err)
	}
	newHP := initHeapPage(newWG.Data())
	newID := newWG.PageID()
	slot, ok := newHP.insertSlot(record)
	if !ok {
		newWG.Drop()
		return RID{}, fmt.Errorf("heap: tuple too large for an empty page")
	}
	newWG.Drop()

	oldWG, err := h.bpm.Write(h.lastID)
	if err != nil {
		return RID{}, fmt.Errorf("heap: link page chain: %w", err)
	}
	wrapHeapPage(oldWG.Data()).setNextPageID(newID)
	oldWG.Drop()

	h.lastID = newID
	return RID{PageID: newID, Slot: slot}, nil
}

// GetTuple reads the tuple and its metadata at rid.
func (h *TableHeap) GetTuple(rid RID) (TupleMeta, catalog.Tuple, error) {
	rg, err := h.bpm.Read(rid.PageID)
	if err != nil {
		return TupleMeta{}, catalog.Tuple{}, fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	defer rg.Drop()

	hp := wrapHeapPage(rg.Data())
	raw, ok := hp.getSlot(rid.Slot)
	if !ok {
		return TupleMeta{}, catalog.Tuple{}, errSlotOutOfRange(rid.PageID, rid.Slot)
	}
	meta, tuple := decodeTuple(h.schema, raw)
	return meta, tuple, nil
}

// UpdateTupleInPlace overwrites the tuple at rid. The new encoding must be
// exactly as large as the old one (callers needing a different size must
// tombstone and re-insert, matching spec behavior that layout is fixed
// once a tuple is placed).
func (h *TableHeap) UpdateTupleInPlace(meta TupleMeta, tuple catalog.Tuple, rid RID) error {
	record := encodeTuple(meta, h.schema, tuple)

	wg, err := h.bpm.Write(rid.PageID)
	if err != nil {
		return fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	defer wg.Drop()

	hp := wrapHeapPage(wg.Data())
	if !hp.updateSlotInPlace(rid.Slot, record) {
		return fmt.Errorf("heap: UpdateTupleInPlace: encoded size changed for rid %+v", rid)
	}
	return nil
}

// UpdateTupleMeta rewrites only the (ts, is_deleted) header of a slot,
// leaving its tuple bytes untouched.
func (h *TableHeap) UpdateTupleMeta(meta TupleMeta, rid RID) error {
	wg, err := h.bpm.Write(rid.PageID)
	if err != nil {
		return fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	defer wg.Drop()

	hp := wrapHeapPage(wg.Data())
	raw, ok := hp.getSlot(rid.Slot)
	if !ok {
		return errSlotOutOfRange(rid.PageID, rid.Slot)
	}
	binary.LittleEndian.PutUint64(raw[0:8], meta.Ts)
	if meta.IsDeleted {
		raw[8] = 1
	} else {
		raw[8] = 0
	}
	return nil
}
