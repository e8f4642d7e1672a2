// Package heap implements the table heap (C6): slotted-page storage of
// tuples carrying (timestamp, is_deleted) version metadata, reached
// exclusively through buffer pool page guards. Grounded in the teacher's
// internal/storage/pager/btree.go page-header/slot-array layout, adapted
// from a B+Tree leaf's fixed-size slots to a heap page's variable-length
// slotted records.
package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/page"
)

// TxnStartID is the bias added to a running transaction's id to form a
// temporary tuple timestamp; ts >= TxnStartID means "owned by a running
// transaction", and XORing it back out recovers the human-readable txn id.
const TxnStartID uint64 = 1 << 62

// RID identifies a tuple's location within a table heap.
type RID struct {
	PageID page.ID
	Slot    uint16
}

func (r RID) IsValid() bool { return r.PageID != page.InvalidID }

// TupleMeta carries MVCC visibility metadata alongside a tuple's bytes.
type TupleMeta struct {
	Ts        uint64
	IsDeleted bool
}

// IsTemporary reports whether ts belongs to a still-running transaction
// rather than being a commit timestamp.
func (m TupleMeta) IsTemporary() bool { return m.Ts >= TxnStartID }

const (
	slotHeaderSize = 4 // page_id-relative slot directory entry: offset(2) + length(2)
	pageHeaderSize = 4 // numTuples(2) + freeSpacePointer(2)
	metaSize       = 9 // ts(8) + is_deleted(1)
)

// encodeValues serializes a tuple's values using each column's static
// TypeID to decide how to read it back; varchars are length-prefixed.
func encodeValues(schema *catalog.Schema, values []catalog.Value) []byte {
	buf := make([]byte, 0, 32)
	for i, col := range schema.Columns {
		v := values[i]
		null := byte(0)
		if v.IsNull() {
			null = 1
		}
		buf = append(buf, null)
		switch col.TypeID {
		case catalog.TypeInteger:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], uint64(v.AsInteger()))
			buf = append(buf, tmp[:]...)
		case catalog.TypeBoolean:
			b := byte(0)
			if v.AsBoolean() {
				b = 1
			}
			buf = append(buf, b)
		case catalog.TypeVarchar:
			s := v.AsVarchar()
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, s...)
		}
	}
	return buf
}

func decodeValues(schema *catalog.Schema, data []byte) []catalog.Value {
	values := make([]catalog.Value, len(schema.Columns))
	off := 0
	for i, col := range schema.Columns {
		isNull := data[off] == 1
		off++
		switch col.TypeID {
		case catalog.TypeInteger:
			n := int64(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
			if isNull {
				values[i] = catalog.NewNull(catalog.TypeInteger)
			} else {
				values[i] = catalog.NewInteger(n)
			}
		case catalog.TypeBoolean:
			b := data[off] == 1
			off++
			if isNull {
				values[i] = catalog.NewNull(catalog.TypeBoolean)
			} else {
				values[i] = catalog.NewBoolean(b)
			}
		case catalog.TypeVarchar:
			l := int(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
			s := string(data[off : off+l])
			off += l
			if isNull {
				values[i] = catalog.NewNull(catalog.TypeVarchar)
			} else {
				values[i] = catalog.NewVarchar(s)
			}
		}
	}
	return values
}

func encodeTuple(meta TupleMeta, schema *catalog.Schema, tuple catalog.Tuple) []byte {
	body := encodeValues(schema, tuple.Values)
	out := make([]byte, metaSize+len(body))
	binary.LittleEndian.PutUint64(out[0:8], meta.Ts)
	if meta.IsDeleted {
		out[8] = 1
	}
	copy(out[metaSize:], body)
	return out
}

func decodeTuple(schema *catalog.Schema, raw []byte) (TupleMeta, catalog.Tuple) {
	meta := TupleMeta{
		Ts:        binary.LittleEndian.Uint64(raw[0:8]),
		IsDeleted: raw[8] == 1,
	}
	values := decodeValues(schema, raw[metaSize:])
	return meta, catalog.NewTuple(values)
}

func errSlotOutOfRange(pid page.ID, slot uint16) error {
	return fmt.Errorf("heap: slot %d out of range on page %d", slot, pid)
}
