package bplustree

import (
	"encoding/binary"

	"github.com/latchwood/latchdb/internal/page"
)

type pageType byte

const (
	pageTypeInvalid pageType = iota
	pageTypeInternal
	pageTypeLeaf
)

// treePage is a slotted view over a raw page.Bytes, shared by internal and
// leaf pages:
//
//	[ type(1) | size(2) | maxSize(2) | freeSpacePtr(2) | nextPageID(8, leaf only) | slot directory... | ... free ... | records, growing downward ]
//
// size is the number of keys for a leaf (= number of entries) or the
// number of keys N for an internal page (which holds N+1 child slots,
// slot 0 carrying no key).
const (
	treePageHeaderSize = 1 + 2 + 2 + 2 + 8
	treeSlotHeaderSize = 4
)

type treePage struct {
	data *page.Bytes
}

func wrapTreePage(data *page.Bytes) *treePage { return &treePage{data: data} }

func initTreePage(data *page.Bytes, typ pageType, maxSize uint16) *treePage {
	tp := &treePage{data: data}
	tp.setPageType(typ)
	tp.setSize(0)
	tp.setMaxSize(maxSize)
	tp.setFreeSpacePtr(uint16(page.Size))
	tp.setNextPageID(page.InvalidID)
	return tp
}

func (tp *treePage) pageType() pageType     { return pageType(tp.data[0]) }
func (tp *treePage) setPageType(t pageType) { tp.data[0] = byte(t) }
func (tp *treePage) isLeaf() bool           { return tp.pageType() == pageTypeLeaf }

func (tp *treePage) size() uint16     { return binary.LittleEndian.Uint16(tp.data[1:3]) }
func (tp *treePage) setSize(n uint16) { binary.LittleEndian.PutUint16(tp.data[1:3], n) }

func (tp *treePage) maxSize() uint16     { return binary.LittleEndian.Uint16(tp.data[3:5]) }
func (tp *treePage) setMaxSize(n uint16) { binary.LittleEndian.PutUint16(tp.data[3:5], n) }

func (tp *treePage) freeSpacePtr() uint16     { return binary.LittleEndian.Uint16(tp.data[5:7]) }
func (tp *treePage) setFreeSpacePtr(p uint16) { binary.LittleEndian.PutUint16(tp.data[5:7], p) }

func (tp *treePage) nextPageID() page.ID {
	return page.ID(binary.LittleEndian.Uint64(tp.data[7:15]))
}
func (tp *treePage) setNextPageID(id page.ID) {
	binary.LittleEndian.PutUint64(tp.data[7:15], uint64(id))
}

func (tp *treePage) slotHeaderOffset(slot uint16) int {
	return treePageHeaderSize + int(slot)*treeSlotHeaderSize
}

func (tp *treePage) slotEntry(slot uint16) (offset, length uint16) {
	o := tp.slotHeaderOffset(slot)
	return binary.LittleEndian.Uint16(tp.data[o : o+2]), binary.LittleEndian.Uint16(tp.data[o+2 : o+4])
}

func (tp *treePage) setSlotEntry(slot uint16, offset, length uint16) {
	o := tp.slotHeaderOffset(slot)
	binary.LittleEndian.PutUint16(tp.data[o:o+2], offset)
	binary.LittleEndian.PutUint16(tp.data[o+2:o+4], length)
}

func (tp *treePage) slotCount() uint16 {
	if tp.isLeaf() {
		return tp.size()
	}
	return tp.size() + 1 // N keys, N+1 children
}

func (tp *treePage) getRecord(slot uint16) []byte {
	offset, length := tp.slotEntry(slot)
	return tp.data[offset : offset+length]
}

// rebuildAfter rewrites the entire slot directory and data region from an
// ordered list of records. This trades per-record compaction efficiency
// for a drastically simpler split/merge/redistribute implementation: every
// structural mutation (split, redistribute, merge, insert, delete) rebuilds
// its affected page(s) wholesale rather than shuffling bytes in place.
func (tp *treePage) rebuildAfter(records [][]byte) {
	ptr := uint16(page.Size)
	for i := len(records) - 1; i >= 0; i-- {
		ptr -= uint16(len(records[i]))
		copy(tp.data[ptr:ptr+uint16(len(records[i]))], records[i])
		tp.setSlotEntry(uint16(i), ptr, uint16(len(records[i])))
	}
	tp.setFreeSpacePtr(ptr)
	if tp.isLeaf() {
		tp.setSize(uint16(len(records)))
	} else {
		tp.setSize(uint16(len(records) - 1))
	}
}

// freeBytesFor reports how much room is left for rebuildAfter to use,
// accounting for extraSlots additional slot-directory entries beyond
// recordsLen (one, in the common case of inserting one more record).
func (tp *treePage) freeBytesFor(recordsLen, extraSlots int) int {
	used := treePageHeaderSize + (recordsLen+extraSlots)*treeSlotHeaderSize
	return int(tp.freeSpacePtr()) - used
}
