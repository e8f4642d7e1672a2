package exec

import (
	"encoding/binary"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/page"
)

const (
	sortPageHeaderSize = 2 // entry count (uint16)
	ridSize            = 10 // page.ID (int64) + slot (uint16)
)

// fixedValueSize returns the on-page byte width of col's encoding: a
// 1-byte null flag plus a type-specific fixed body. Varchars are
// length-prefixed and truncated to col.Length bytes, trading unbounded
// width for the fixed-size slots an external sort page needs — distinct
// from the heap's own variable-width, length-prefixed-without-truncation
// encoding in internal/heap/tuple.go.
func fixedValueSize(col catalog.Column) int {
	switch col.TypeID {
	case catalog.TypeInteger:
		return 1 + 8
	case catalog.TypeBoolean:
		return 1 + 1
	case catalog.TypeVarchar:
		return 1 + 4 + col.Length
	default:
		return 1
	}
}

func fixedTupleSize(schema *catalog.Schema) int {
	n := 0
	for _, col := range schema.Columns {
		n += fixedValueSize(col)
	}
	return n
}

func fixedEntrySize(schema *catalog.Schema) int {
	return fixedTupleSize(schema) + ridSize
}

// sortPageCapacity is how many fixed-width entries fit in one page.
func sortPageCapacity(schema *catalog.Schema) int {
	entry := fixedEntrySize(schema)
	if entry <= 0 {
		return 0
	}
	return (page.Size - sortPageHeaderSize) / entry
}

func encodeFixedValue(buf []byte, v catalog.Value, col catalog.Column) {
	if v.IsNull() {
		buf[0] = 1
		return
	}
	buf[0] = 0
	body := buf[1:]
	switch col.TypeID {
	case catalog.TypeInteger:
		binary.LittleEndian.PutUint64(body[0:8], uint64(v.AsInteger()))
	case catalog.TypeBoolean:
		if v.AsBoolean() {
			body[0] = 1
		} else {
			body[0] = 0
		}
	case catalog.TypeVarchar:
		s := v.AsVarchar()
		if len(s) > col.Length {
			s = s[:col.Length]
		}
		binary.LittleEndian.PutUint32(body[0:4], uint32(len(s)))
		copy(body[4:4+col.Length], s)
	}
}

func decodeFixedValue(buf []byte, col catalog.Column) catalog.Value {
	isNull := buf[0] == 1
	body := buf[1:]
	switch col.TypeID {
	case catalog.TypeInteger:
		n := int64(binary.LittleEndian.Uint64(body[0:8]))
		if isNull {
			return catalog.NewNull(catalog.TypeInteger)
		}
		return catalog.NewInteger(n)
	case catalog.TypeBoolean:
		b := body[0] == 1
		if isNull {
			return catalog.NewNull(catalog.TypeBoolean)
		}
		return catalog.NewBoolean(b)
	case catalog.TypeVarchar:
		l := int(binary.LittleEndian.Uint32(body[0:4]))
		s := string(body[4 : 4+l])
		if isNull {
			return catalog.NewNull(catalog.TypeVarchar)
		}
		return catalog.NewVarchar(s)
	default:
		return catalog.Value{}
	}
}

func encodeRID(buf []byte, rid heap.RID) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rid.PageID))
	binary.LittleEndian.PutUint16(buf[8:10], rid.Slot)
}

func decodeRID(buf []byte) heap.RID {
	return heap.RID{
		PageID: page.ID(binary.LittleEndian.Uint64(buf[0:8])),
		Slot:   binary.LittleEndian.Uint16(buf[8:10]),
	}
}

func encodeSortEntry(schema *catalog.Schema, tuple catalog.Tuple, rid heap.RID) []byte {
	buf := make([]byte, fixedEntrySize(schema))
	off := 0
	for i, col := range schema.Columns {
		w := fixedValueSize(col)
		encodeFixedValue(buf[off:off+w], tuple.Values[i], col)
		off += w
	}
	encodeRID(buf[off:off+ridSize], rid)
	return buf
}

func decodeSortEntry(schema *catalog.Schema, buf []byte) (catalog.Tuple, heap.RID) {
	values := make([]catalog.Value, len(schema.Columns))
	off := 0
	for i, col := range schema.Columns {
		w := fixedValueSize(col)
		values[i] = decodeFixedValue(buf[off:off+w], col)
		off += w
	}
	rid := decodeRID(buf[off : off+ridSize])
	return catalog.NewTuple(values), rid
}

// sortPage wraps a page's raw bytes as a fixed-slot array of sort entries:
// a uint16 entry count followed by that many fixed-width (schema, rid)
// records. Distinct from the heap's variable-width slotted-page layout,
// since an external sort run is append-only and never reclaims or resizes
// an individual slot in place.
type sortPage struct {
	data      *page.Bytes
	schema    *catalog.Schema
	entrySize int
}

func wrapSortPage(data *page.Bytes, schema *catalog.Schema) *sortPage {
	return &sortPage{data: data, schema: schema, entrySize: fixedEntrySize(schema)}
}

func (p *sortPage) reset() {
	binary.LittleEndian.PutUint16(p.data[0:2], 0)
}

func (p *sortPage) count() int {
	return int(binary.LittleEndian.Uint16(p.data[0:2]))
}

func (p *sortPage) setCount(n int) {
	binary.LittleEndian.PutUint16(p.data[0:2], uint16(n))
}

func (p *sortPage) capacity() int {
	if p.entrySize <= 0 {
		return 0
	}
	return (page.Size - sortPageHeaderSize) / p.entrySize
}

func (p *sortPage) entryBytes(i int) []byte {
	off := sortPageHeaderSize + i*p.entrySize
	return p.data[off : off+p.entrySize]
}

// append writes (tuple, rid) into the next free slot. Caller must ensure
// count() < capacity() first.
func (p *sortPage) append(schema *catalog.Schema, tuple catalog.Tuple, rid heap.RID) {
	n := p.count()
	copy(p.entryBytes(n), encodeSortEntry(schema, tuple, rid))
	p.setCount(n + 1)
}

func (p *sortPage) decodeEntry(i int) (catalog.Tuple, heap.RID) {
	return decodeSortEntry(p.schema, p.entryBytes(i))
}
