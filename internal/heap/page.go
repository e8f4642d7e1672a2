package heap

import (
	"encoding/binary"

	"github.com/latchwood/latchdb/internal/page"
)

// nextPageIDSize reserves the page's trailing 8 bytes as a footer holding
// the next page in the table's singly-linked page chain, so a forward
// iterator can walk the heap without consulting the catalog.
const nextPageIDSize = 8

// heapPage is a view over a raw page.Bytes implementing a slotted layout:
//
//	[ numSlots(2) | freeSpacePtr(2) | slot[0] offset(2) len(2) | slot[1] ... | ... free space ... | tuple bytes, growing downward ... | nextPageID(8) ]
//
// freeSpacePtr is the offset of the lowest byte currently in use by tuple
// data; new tuples are appended just below it. A slot with length 0 marks a
// tombstoned (freed) slot, never reused, matching the teacher's
// append-only slot directory in its B+Tree leaf pages.
type heapPage struct {
	data *page.Bytes
}

func wrapHeapPage(data *page.Bytes) *heapPage { return &heapPage{data: data} }

func initHeapPage(data *page.Bytes) *heapPage {
	hp := &heapPage{data: data}
	hp.setNumSlots(0)
	hp.setFreeSpacePtr(uint16(page.Size - nextPageIDSize))
	hp.setNextPageID(page.InvalidID)
	return hp
}

func (hp *heapPage) nextPageID() page.ID {
	return page.ID(binary.LittleEndian.Uint64(hp.data[page.Size-nextPageIDSize:]))
}

func (hp *heapPage) setNextPageID(id page.ID) {
	binary.LittleEndian.PutUint64(hp.data[page.Size-nextPageIDSize:], uint64(id))
}

func (hp *heapPage) numSlots() uint16      { return binary.LittleEndian.Uint16(hp.data[0:2]) }
func (hp *heapPage) setNumSlots(n uint16)  { binary.LittleEndian.PutUint16(hp.data[0:2], n) }
func (hp *heapPage) freeSpacePtr() uint16  { return binary.LittleEndian.Uint16(hp.data[2:4]) }
func (hp *heapPage) setFreeSpacePtr(p uint16) {
	binary.LittleEndian.PutUint16(hp.data[2:4], p)
}

func (hp *heapPage) slotHeaderOffset(slot uint16) int {
	return pageHeaderSize + int(slot)*slotHeaderSize
}

func (hp *heapPage) slotEntry(slot uint16) (offset, length uint16) {
	o := hp.slotHeaderOffset(slot)
	return binary.LittleEndian.Uint16(hp.data[o : o+2]), binary.LittleEndian.Uint16(hp.data[o+2 : o+4])
}

func (hp *heapPage) setSlotEntry(slot uint16, offset, length uint16) {
	o := hp.slotHeaderOffset(slot)
	binary.LittleEndian.PutUint16(hp.data[o:o+2], offset)
	binary.LittleEndian.PutUint16(hp.data[o+2:o+4], length)
}

// freeBytes returns how much room remains between the slot directory and
// the tuple data region.
func (hp *heapPage) freeBytes() int {
	used := pageHeaderSize + int(hp.numSlots())*slotHeaderSize
	return int(hp.freeSpacePtr()) - used
}

// insertSlot appends raw bytes to the tuple data region and allocates a new
// slot pointing at it. Returns the new slot number, or false if there is
// not enough room for the record plus a new slot-directory entry.
func (hp *heapPage) insertSlot(record []byte) (uint16, bool) {
	if hp.freeBytes() < len(record)+slotHeaderSize {
		return 0, false
	}
	newPtr := hp.freeSpacePtr() - uint16(len(record))
	copy(hp.data[newPtr:hp.freeSpacePtr()], record)
	hp.setFreeSpacePtr(newPtr)

	slot := hp.numSlots()
	hp.setSlotEntry(slot, newPtr, uint16(len(record)))
	hp.setNumSlots(slot + 1)
	return slot, true
}

func (hp *heapPage) getSlot(slot uint16) ([]byte, bool) {
	if slot >= hp.numSlots() {
		return nil, false
	}
	offset, length := hp.slotEntry(slot)
	if length == 0 {
		return nil, false // tombstoned
	}
	return hp.data[offset : offset+length], true
}

// updateSlotInPlace overwrites a slot's bytes with a record of identical
// length. The caller is responsible for only calling this when the new
// encoding is exactly the same size (e.g. meta-only updates, or fixed-width
// tuples); variable-size updates must delete-and-reinsert instead.
func (hp *heapPage) updateSlotInPlace(slot uint16, record []byte) bool {
	offset, length := hp.slotEntry(slot)
	if length != uint16(len(record)) {
		return false
	}
	copy(hp.data[offset:offset+length], record)
	return true
}

// tombstoneSlot marks a slot's length as zero without reclaiming its
// space, matching a B+Tree leaf's own append-only approach to freed slots:
// reclamation would require compaction, which this heap defers to page
// replacement (a future vacuum, out of scope here).
func (hp *heapPage) tombstoneSlot(slot uint16) {
	offset, _ := hp.slotEntry(slot)
	hp.setSlotEntry(slot, offset, 0)
}
