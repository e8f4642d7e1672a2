package exec

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// HashJoin evaluates a column-equality condition by building an in-memory
// hash table over the right child once, then probing it with each left
// row — the §4.10 rewrite target for a NestedLoopJoin whose predicate is
// an AND-tree of cross-column equalities. LeftKeys[i] and RightKeys[i] are
// the i-th equated column pair.
type HashJoin struct {
	left, right       Operator
	joinType          JoinType
	leftKeys          []Expression
	rightKeys         []Expression
	schema            *catalog.Schema

	buckets map[string][]catalog.Tuple

	leftRow   catalog.Tuple
	leftOK    bool
	candidates []catalog.Tuple
	candPos    int
	leftMatched bool
}

// NewHashJoin builds a HashJoin equating leftKeys[i] == rightKeys[i] for
// every i.
func NewHashJoin(left, right Operator, joinType JoinType, leftKeys, rightKeys []Expression) *HashJoin {
	return &HashJoin{
		left: left, right: right, joinType: joinType,
		leftKeys: leftKeys, rightKeys: rightKeys,
		schema: combineSchemas(left.OutputSchema(), right.OutputSchema()),
	}
}

func (j *HashJoin) OutputSchema() *catalog.Schema { return j.schema }

func (j *HashJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	if err := j.right.Init(); err != nil {
		return err
	}
	j.buckets = make(map[string][]catalog.Tuple)
	for {
		row, _, ok, err := j.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key, hashable, err := hashKey(j.rightKeys, row)
		if err != nil {
			return err
		}
		if !hashable {
			continue
		}
		j.buckets[key] = append(j.buckets[key], row)
	}
	return j.advanceLeft()
}

func (j *HashJoin) advanceLeft() error {
	for {
		row, _, ok, err := j.left.Next()
		if err != nil {
			return err
		}
		j.leftRow, j.leftOK = row, ok
		if !ok {
			j.candidates, j.candPos = nil, 0
			return nil
		}
		key, hashable, err := hashKey(j.leftKeys, row)
		if err != nil {
			return err
		}
		j.leftMatched = false
		if hashable {
			j.candidates = j.buckets[key]
		} else {
			j.candidates = nil
		}
		j.candPos = 0
		return nil
	}
}

func (j *HashJoin) Next() (catalog.Tuple, heap.RID, bool, error) {
	for j.leftOK {
		if j.candPos < len(j.candidates) {
			right := j.candidates[j.candPos]
			j.candPos++
			j.leftMatched = true
			return combine(j.leftRow, right), heap.RID{}, true, nil
		}

		emitUnmatched := j.joinType == LeftJoin && !j.leftMatched
		unmatchedLeft := j.leftRow
		if err := j.advanceLeft(); err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if emitUnmatched {
			return combine(unmatchedLeft, nullRow(j.right.OutputSchema())), heap.RID{}, true, nil
		}
	}
	return catalog.Tuple{}, heap.RID{}, false, nil
}

// hashKey encodes the values keys evaluates against row into a single
// string bucket key. Any NULL key value makes the row unhashable (NULL
// never equals another NULL under SQL equality semantics), matching
// Comparison.Evaluate's own NULL-propagation rule.
func hashKey(keys []Expression, row catalog.Tuple) (string, bool, error) {
	out := make([]byte, 0, 16*len(keys))
	for _, k := range keys {
		v, err := k.Evaluate(row)
		if err != nil {
			return "", false, err
		}
		if v.IsNull() {
			return "", false, nil
		}
		out = append(out, byte(v.GetTypeID()))
		out = append(out, v.String()...)
		out = append(out, 0)
	}
	return string(out), true, nil
}
