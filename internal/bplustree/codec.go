package bplustree

import (
	"encoding/binary"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/page"
)

// encodeKey serializes a single catalog.Value key. Unlike the heap
// package's multi-column tuple codec, a B+Tree entry has exactly one key
// value, so the type tag is redundant with the tree's configured key
// type but is kept for self-describing pages (cheap, and simplifies a
// future composite-key extension).
func encodeKey(v catalog.Value) []byte {
	switch v.GetTypeID() {
	case catalog.TypeInteger:
		buf := make([]byte, 9)
		buf[0] = byte(catalog.TypeInteger)
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.AsInteger()))
		return buf
	case catalog.TypeVarchar:
		s := v.AsVarchar()
		buf := make([]byte, 5+len(s))
		buf[0] = byte(catalog.TypeVarchar)
		binary.LittleEndian.PutUint32(buf[1:5], uint32(len(s)))
		copy(buf[5:], s)
		return buf
	case catalog.TypeBoolean:
		buf := make([]byte, 2)
		buf[0] = byte(catalog.TypeBoolean)
		if v.AsBoolean() {
			buf[1] = 1
		}
		return buf
	default:
		return []byte{byte(catalog.TypeInvalid)}
	}
}

func decodeKey(raw []byte) catalog.Value {
	switch catalog.TypeID(raw[0]) {
	case catalog.TypeInteger:
		return catalog.NewInteger(int64(binary.LittleEndian.Uint64(raw[1:9])))
	case catalog.TypeVarchar:
		l := binary.LittleEndian.Uint32(raw[1:5])
		return catalog.NewVarchar(string(raw[5 : 5+l]))
	case catalog.TypeBoolean:
		return catalog.NewBoolean(raw[1] == 1)
	default:
		return catalog.NewNull(catalog.TypeInvalid)
	}
}

// leafRecord is a (key, RID) pair as stored in a leaf slot.
func encodeLeafRecord(key catalog.Value, rid heap.RID) []byte {
	k := encodeKey(key)
	out := make([]byte, len(k)+10)
	copy(out, k)
	binary.LittleEndian.PutUint64(out[len(k):len(k)+8], uint64(rid.PageID))
	binary.LittleEndian.PutUint16(out[len(k)+8:], rid.Slot)
	return out
}

func decodeLeafRecord(raw []byte) (catalog.Value, heap.RID) {
	key := decodeKey(raw)
	klen := encodedKeyLen(raw)
	rid := heap.RID{
		PageID: page.ID(binary.LittleEndian.Uint64(raw[klen : klen+8])),
		Slot:   binary.LittleEndian.Uint16(raw[klen+8:]),
	}
	return key, rid
}

// internalRecord is a (key, childPageID) pair; for slot 0 the key is a
// zero-length placeholder (pointers[0] covers everything below keys[1]).
func encodeInternalRecord(key catalog.Value, hasKey bool, child page.ID) []byte {
	var k []byte
	if hasKey {
		k = encodeKey(key)
	} else {
		k = []byte{byte(catalog.TypeInvalid)}
	}
	out := make([]byte, len(k)+8)
	copy(out, k)
	binary.LittleEndian.PutUint64(out[len(k):], uint64(child))
	return out
}

func decodeInternalRecord(raw []byte) (catalog.Value, page.ID) {
	klen := encodedKeyLen(raw)
	key := decodeKey(raw)
	child := page.ID(binary.LittleEndian.Uint64(raw[klen:]))
	return key, child
}

// encodedKeyLen reports how many bytes of raw are consumed by the leading
// encoded key, so callers can find where the trailing fixed-width payload
// (RID or child page id) begins.
func encodedKeyLen(raw []byte) int {
	switch catalog.TypeID(raw[0]) {
	case catalog.TypeInteger:
		return 9
	case catalog.TypeVarchar:
		l := binary.LittleEndian.Uint32(raw[1:5])
		return 5 + int(l)
	case catalog.TypeBoolean:
		return 2
	default:
		return 1
	}
}
