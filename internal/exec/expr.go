package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/catalog"
)

// Expression is the minimal predicate/projection algebra the operators in
// this package need: column references, constants, comparisons, and
// boolean combinators. It is deliberately not a general SQL expression
// tree (no arithmetic, no casts) — §6 places expression evaluation itself
// out of scope, this is just enough to drive filters, join conditions,
// UPDATE target lists, and the §4.10 rewrite matchers.
//
// Evaluate takes a variadic list of tuples rather than a single tuple so
// the same expression type serves both single-child operators (SeqScan's
// filter, Update's target list — tuples[0] only) and two-child joins
// (tuples[0] is the left row, tuples[1] is the right row), mirroring
// original_source/'s ColumnValueExpression's tuple_idx addressing rather
// than inventing a schema-qualified name-binding pass this module doesn't
// otherwise need.
type Expression interface {
	Evaluate(tuples ...catalog.Tuple) (catalog.Value, error)
}

// ColumnValue reads one column out of one side of the operator's input.
// TupleIdx is 0 for a single-child operator or a join's left side, 1 for
// a join's right side. Name is carried only for the §4.10 rewrite
// matchers, which need to resolve a column back to an index's key schema
// by name; Evaluate itself never looks at it.
type ColumnValue struct {
	TupleIdx int
	ColIdx   int
	Name     string
}

func (c ColumnValue) Evaluate(tuples ...catalog.Tuple) (catalog.Value, error) {
	if c.TupleIdx >= len(tuples) {
		return catalog.Value{}, fmt.Errorf("exec: column reference tuple index %d out of range (have %d)", c.TupleIdx, len(tuples))
	}
	t := tuples[c.TupleIdx]
	if c.ColIdx >= len(t.Values) {
		return catalog.Value{}, fmt.Errorf("exec: column reference index %d out of range (tuple has %d columns)", c.ColIdx, len(t.Values))
	}
	return t.Values[c.ColIdx], nil
}

// Constant is a literal value, the other half of every (col = const)
// equality leaf the §4.10 SeqScan->IndexScan rewrite matches against.
type Constant struct {
	Val catalog.Value
}

func (c Constant) Evaluate(tuples ...catalog.Tuple) (catalog.Value, error) { return c.Val, nil }

// CompareOp is a comparison operator.
type CompareOp int

const (
	CompareEq CompareOp = iota
	CompareNe
	CompareLt
	CompareLe
	CompareGt
	CompareGe
)

// Comparison evaluates Left <op> Right, returning a NULL boolean (SQL's
// "unknown") if either side is NULL.
type Comparison struct {
	Op          CompareOp
	Left, Right Expression
}

func (c Comparison) Evaluate(tuples ...catalog.Tuple) (catalog.Value, error) {
	l, err := c.Left.Evaluate(tuples...)
	if err != nil {
		return catalog.Value{}, err
	}
	r, err := c.Right.Evaluate(tuples...)
	if err != nil {
		return catalog.Value{}, err
	}
	if l.IsNull() || r.IsNull() {
		return catalog.NewNull(catalog.TypeBoolean), nil
	}
	var result bool
	switch c.Op {
	case CompareEq:
		result = l.CompareEqual(r)
	case CompareNe:
		result = !l.CompareEqual(r)
	case CompareLt:
		result = l.CompareLessThan(r)
	case CompareLe:
		result = l.CompareLessThan(r) || l.CompareEqual(r)
	case CompareGt:
		result = l.CompareGreater(r)
	case CompareGe:
		result = l.CompareGreater(r) || l.CompareEqual(r)
	default:
		return catalog.Value{}, fmt.Errorf("exec: unknown comparison operator %d", c.Op)
	}
	return catalog.NewBoolean(result), nil
}

// LogicalOp combines two boolean sub-expressions.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// Logical combines Left and Right with AND/OR. NULL operands are treated
// as false, a simplification acceptable here since §6 places full SQL
// tri-state logic out of scope — only §4.10's equality-leaf predicate
// trees are built from this type in practice.
type Logical struct {
	Op          LogicalOp
	Left, Right Expression
}

func (l Logical) Evaluate(tuples ...catalog.Tuple) (catalog.Value, error) {
	lv, err := l.Left.Evaluate(tuples...)
	if err != nil {
		return catalog.Value{}, err
	}
	rv, err := l.Right.Evaluate(tuples...)
	if err != nil {
		return catalog.Value{}, err
	}
	lb := !lv.IsNull() && lv.AsBoolean()
	rb := !rv.IsNull() && rv.AsBoolean()
	switch l.Op {
	case LogicalAnd:
		return catalog.NewBoolean(lb && rb), nil
	case LogicalOr:
		return catalog.NewBoolean(lb || rb), nil
	default:
		return catalog.Value{}, fmt.Errorf("exec: unknown logical operator %d", l.Op)
	}
}

// EvalBool evaluates e and collapses the result to a plain bool: NULL and
// any non-boolean are both "not kept", matching WHERE's usual
// three-valued-to-boolean collapse.
func EvalBool(e Expression, tuples ...catalog.Tuple) (bool, error) {
	v, err := e.Evaluate(tuples...)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	return v.AsBoolean(), nil
}
