package exec

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// JoinType selects how an unmatched left row is handled.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// NestedLoopJoin re-initializes its right child once per left row and
// scans it fully, the textbook O(left * right) join every other join
// strategy in this package is a rewrite of. Grounded in the teacher's
// nested loop over two slices in internal/engine/exec.go's runSelect
// multi-table FROM clause handling, generalized to the pull-based
// Init/Next protocol and an explicit join predicate.
type NestedLoopJoin struct {
	left, right Operator
	joinType    JoinType
	predicate   Expression // nil means cross join
	schema      *catalog.Schema

	leftRow     catalog.Tuple
	leftOK      bool
	leftMatched bool
}

// NewNestedLoopJoin builds a join of left and right, emitting a left row
// null-padded on the right (LeftJoin) when predicate never matches it.
func NewNestedLoopJoin(left, right Operator, joinType JoinType, predicate Expression) *NestedLoopJoin {
	return &NestedLoopJoin{
		left: left, right: right, joinType: joinType, predicate: predicate,
		schema: combineSchemas(left.OutputSchema(), right.OutputSchema()),
	}
}

func (j *NestedLoopJoin) OutputSchema() *catalog.Schema { return j.schema }

func (j *NestedLoopJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	return j.advanceLeft()
}

// advanceLeft pulls the next left row and (re)inits the right child under
// it. leftOK is false once the left side is exhausted.
func (j *NestedLoopJoin) advanceLeft() error {
	tuple, _, ok, err := j.left.Next()
	if err != nil {
		return err
	}
	j.leftRow, j.leftOK, j.leftMatched = tuple, ok, false
	if !ok {
		return nil
	}
	return j.right.Init()
}

func (j *NestedLoopJoin) Next() (catalog.Tuple, heap.RID, bool, error) {
	for j.leftOK {
		rightRow, _, ok, err := j.right.Next()
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !ok {
			emitUnmatched := j.joinType == LeftJoin && !j.leftMatched
			unmatchedLeft := j.leftRow
			if err := j.advanceLeft(); err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			if emitUnmatched {
				return combine(unmatchedLeft, nullRow(j.right.OutputSchema())), heap.RID{}, true, nil
			}
			continue
		}

		if j.predicate != nil {
			keep, err := EvalBool(j.predicate, j.leftRow, rightRow)
			if err != nil {
				return catalog.Tuple{}, heap.RID{}, false, err
			}
			if !keep {
				continue
			}
		}
		j.leftMatched = true
		return combine(j.leftRow, rightRow), heap.RID{}, true, nil
	}
	return catalog.Tuple{}, heap.RID{}, false, nil
}
