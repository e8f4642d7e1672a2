package exec

import (
	"path/filepath"
	"testing"

	"github.com/latchwood/latchdb/internal/bplustree"
	"github.com/latchwood/latchdb/internal/buffer"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/diskio"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/txn"
)

// testEnv wires a whole miniature stack (disk scheduler, buffer pool,
// catalog, txn manager) the way a real engine would, so exec's operators
// run against the actual storage layers built in the sibling packages
// rather than mocks.
type testEnv struct {
	t      *testing.T
	bpm    *buffer.Manager
	cat    *catalog.Catalog
	txnMgr *txn.Manager
}

func newTestEnv(t *testing.T, poolSize int) *testEnv {
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

	cat := catalog.NewCatalog()
	mgr := txn.NewManager()
	mgr.SetTableResolver(func(oid txn.TableOID) (txn.TupleWriter, bool) {
		info, ok := cat.GetTable(oid)
		if !ok {
			return nil, false
		}
		th, ok := info.Heap.(*heap.TableHeap)
		return th, ok
	})
	return &testEnv{t: t, bpm: bpm, cat: cat, txnMgr: mgr}
}

// createTable registers a table with the given schema and an empty heap.
func (e *testEnv) createTable(name string, schema *catalog.Schema) *catalog.TableInfo {
	e.t.Helper()
	th, err := heap.NewTableHeap(name, schema, e.bpm)
	if err != nil {
		e.t.Fatalf("NewTableHeap(%q): %v", name, err)
	}
	info, err := e.cat.CreateTable(name, schema, th)
	if err != nil {
		e.t.Fatalf("CreateTable(%q): %v", name, err)
	}
	return info
}

// createIndex registers a B+Tree index over table on the named column,
// optionally as its primary key.
func (e *testEnv) createIndex(table *catalog.TableInfo, name, column string, isPK bool) *catalog.IndexInfo {
	e.t.Helper()
	keySchema := table.Schema.CopySchema([]string{column})
	tree, err := bplustree.NewBPlusTree(name, e.bpm, 4, 4, bplustree.NewDefaultComparator("en"))
	if err != nil {
		e.t.Fatalf("NewBPlusTree(%q): %v", name, err)
	}
	info, err := e.cat.CreateIndex(name, table.Name, keySchema, tree, isPK)
	if err != nil {
		e.t.Fatalf("CreateIndex(%q): %v", name, err)
	}
	return info
}

// begin starts a transaction and returns an ExecutorContext wired to it.
func (e *testEnv) begin(isolation txn.Isolation) (*txn.Transaction, *ExecutorContext) {
	e.t.Helper()
	t := e.txnMgr.Begin(isolation)
	vs := e.txnMgr.NewVersionStore()
	return t, NewExecutorContext(e.cat, e.txnMgr, vs, t)
}

// commit commits t, failing the test if it's rejected or errors.
func (e *testEnv) commit(t *txn.Transaction) {
	e.t.Helper()
	ok, err := e.txnMgr.Commit(t)
	if err != nil {
		e.t.Fatalf("Commit: %v", err)
	}
	if !ok {
		e.t.Fatalf("Commit: rejected (txn state %v)", t.GetState())
	}
}

// intRow turns a list of int64s into a row tuple of Integer values, a
// small convenience for building literalRows fixtures.
func intRow(vals ...int64) catalog.Tuple {
	out := make([]catalog.Value, len(vals))
	for i, v := range vals {
		out[i] = catalog.NewInteger(v)
	}
	return catalog.NewTuple(out)
}

// literalRows is a child Operator that replays a fixed slice of rows,
// used to feed Insert/Update in tests without a real SeqScan underneath.
type literalRows struct {
	schema *catalog.Schema
	rows   []catalog.Tuple
	pos    int
}

func newLiteralRows(schema *catalog.Schema, rows []catalog.Tuple) *literalRows {
	return &literalRows{schema: schema, rows: rows}
}

func (l *literalRows) OutputSchema() *catalog.Schema { return l.schema }
func (l *literalRows) Init() error                   { l.pos = 0; return nil }
func (l *literalRows) Next() (catalog.Tuple, heap.RID, bool, error) {
	if l.pos >= len(l.rows) {
		return catalog.Tuple{}, heap.RID{}, false, nil
	}
	row := l.rows[l.pos]
	l.pos++
	return row, heap.RID{}, true, nil
}

// drain pulls every row out of op, failing the test on error.
func drain(t *testing.T, op Operator) []catalog.Tuple {
	t.Helper()
	if err := op.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var out []catalog.Tuple
	for {
		tuple, _, ok, err := op.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, tuple)
	}
	return out
}
