package heap

import (
	"path/filepath"
	"testing"

	"github.com/latchwood/latchdb/internal/buffer"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/diskio"
)

func newTestHeap(t *testing.T, poolSize int) (*TableHeap, *catalog.Schema) {
	t.Helper()
	dir := t.TempDir()
	backend, err := diskio.OpenFileBackend(filepath.Join(dir, "pages.db"))
	if err != nil {
		t.Fatalf("OpenFileBackend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	sched := diskio.New(backend, 4)
	t.Cleanup(sched.Shutdown)
	bpm := buffer.NewManager(poolSize, 2, sched)

	schema := catalog.NewSchema([]catalog.Column{
		{Name: "id", TypeID: catalog.TypeInteger},
		{Name: "name", TypeID: catalog.TypeVarchar},
	})
	h, err := NewTableHeap("t", schema, bpm)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}
	return h, schema
}

func TestInsertAndGetTuple(t *testing.T) {
	h, schema := newTestHeap(t, 8)
	tuple := catalog.NewTuple([]catalog.Value{catalog.NewInteger(1), catalog.NewVarchar("alice")})
	meta := TupleMeta{Ts: 10}

	rid, err := h.InsertTuple(meta, tuple)
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	gotMeta, gotTuple, err := h.GetTuple(rid)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if gotMeta.Ts != 10 || gotMeta.IsDeleted {
		t.Fatalf("unexpected meta: %+v", gotMeta)
	}
	if gotTuple.Values[0].AsInteger() != 1 || gotTuple.Values[1].AsVarchar() != "alice" {
		t.Fatalf("unexpected tuple: %+v", gotTuple)
	}
	_ = schema
}

func TestUpdateTupleMeta(t *testing.T) {
	h, _ := newTestHeap(t, 8)
	tuple := catalog.NewTuple([]catalog.Value{catalog.NewInteger(1), catalog.NewVarchar("alice")})
	rid, err := h.InsertTuple(TupleMeta{Ts: 10}, tuple)
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	if err := h.UpdateTupleMeta(TupleMeta{Ts: 20, IsDeleted: true}, rid); err != nil {
		t.Fatalf("UpdateTupleMeta: %v", err)
	}

	gotMeta, _, err := h.GetTuple(rid)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if gotMeta.Ts != 20 || !gotMeta.IsDeleted {
		t.Fatalf("expected updated meta, got %+v", gotMeta)
	}
}

func TestIteratorVisitsAllInsertedTuples(t *testing.T) {
	h, _ := newTestHeap(t, 8)
	const n = 50
	for i := 0; i < n; i++ {
		tuple := catalog.NewTuple([]catalog.Value{catalog.NewInteger(int64(i)), catalog.NewVarchar("row")})
		if _, err := h.InsertTuple(TupleMeta{Ts: 1}, tuple); err != nil {
			t.Fatalf("InsertTuple %d: %v", i, err)
		}
	}

	it := h.Begin()
	seen := make(map[int64]bool)
	for {
		_, _, tuple, ok := it.Next()
		if !ok {
			break
		}
		seen[tuple.Values[0].AsInteger()] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d tuples, saw %d", n, len(seen))
	}
}

func TestUpdateTupleInPlaceRejectsSizeChange(t *testing.T) {
	h, _ := newTestHeap(t, 8)
	tuple := catalog.NewTuple([]catalog.Value{catalog.NewInteger(1), catalog.NewVarchar("ab")})
	rid, err := h.InsertTuple(TupleMeta{Ts: 1}, tuple)
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	longer := catalog.NewTuple([]catalog.Value{catalog.NewInteger(1), catalog.NewVarchar("much longer string")})
	if err := h.UpdateTupleInPlace(TupleMeta{Ts: 2}, longer, rid); err == nil {
		t.Fatal("expected error updating in place with a different encoded size")
	}
}
