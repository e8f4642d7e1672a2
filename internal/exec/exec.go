// Package exec implements the pull-based execution operators (C9), the
// two algebraic rewrites (C10), and the disk-backed external merge sort
// (C11). Every operator implements the same Init/Next protocol spec §4.9
// names: Init resets the operator (idempotent), Next pulls one row at a
// time until it reports ok=false.
//
// Grounded in the teacher's internal/engine/exec.go for the overall
// "pull one row, apply the next clause" shape, generalized from that
// package's single in-memory-row-map evaluator into a tree of operators
// each owned by its own type, reading through the MVCC version store
// (internal/txn) and the storage stack (internal/heap, internal/bplustree)
// built earlier rather than the teacher's direct in-memory table scans.
package exec

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// Operator is the pull interface every executor implements.
type Operator interface {
	// Init (re)starts the operator from its first row. Idempotent: a
	// second call restarts the pull from the beginning.
	Init() error

	// Next returns the next produced row, or ok=false once exhausted.
	// rid is meaningful only for operators reading directly off a table
	// heap (SeqScan, IndexScan); synthesized rows (joins, aggregation,
	// DML row counts) return the zero RID.
	Next() (catalog.Tuple, heap.RID, bool, error)

	// OutputSchema describes the columns Next's tuples are shaped by.
	OutputSchema() *catalog.Schema
}

// combine concatenates a left and right row into one wide tuple, the
// shape every join operator emits.
func combine(left, right catalog.Tuple) catalog.Tuple {
	values := make([]catalog.Value, 0, len(left.Values)+len(right.Values))
	values = append(values, left.Values...)
	values = append(values, right.Values...)
	return catalog.NewTuple(values)
}

// nullRow builds an all-NULL row shaped like schema, used to pad the
// unmatched side of a left outer join.
func nullRow(schema *catalog.Schema) catalog.Tuple {
	values := make([]catalog.Value, len(schema.Columns))
	for i, col := range schema.Columns {
		values[i] = catalog.NewNull(col.TypeID)
	}
	return catalog.NewTuple(values)
}

// combineSchemas concatenates two schemas' columns, the output shape of
// every join operator.
func combineSchemas(left, right *catalog.Schema) *catalog.Schema {
	cols := make([]catalog.Column, 0, len(left.Columns)+len(right.Columns))
	cols = append(cols, left.Columns...)
	cols = append(cols, right.Columns...)
	return catalog.NewSchema(cols)
}

// compareValues returns -1, 0, 1 for a < b, a == b, a > b, lifting
// catalog.Value's boolean comparisons into a single three-way result for
// sort and group-key ordering.
func compareValues(a, b catalog.Value) int {
	switch {
	case a.CompareEqual(b):
		return 0
	case a.CompareLessThan(b):
		return -1
	default:
		return 1
	}
}
