package exec

import (
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// Limit passes through at most N of its child's rows, skipping the first
// Offset.
type Limit struct {
	child  Operator
	limit  int64
	offset int64

	emitted int64
	skipped int64
}

// NewLimit builds a Limit yielding at most limit rows from child after
// skipping offset. limit < 0 means unbounded (offset-only).
func NewLimit(child Operator, limit, offset int64) *Limit {
	return &Limit{child: child, limit: limit, offset: offset}
}

func (l *Limit) OutputSchema() *catalog.Schema { return l.child.OutputSchema() }

func (l *Limit) Init() error {
	l.emitted = 0
	l.skipped = 0
	return l.child.Init()
}

func (l *Limit) Next() (catalog.Tuple, heap.RID, bool, error) {
	if l.limit >= 0 && l.emitted >= l.limit {
		return catalog.Tuple{}, heap.RID{}, false, nil
	}
	for {
		tuple, rid, ok, err := l.child.Next()
		if err != nil {
			return catalog.Tuple{}, heap.RID{}, false, err
		}
		if !ok {
			return catalog.Tuple{}, heap.RID{}, false, nil
		}
		if l.skipped < l.offset {
			l.skipped++
			continue
		}
		l.emitted++
		return tuple, rid, true, nil
	}
}
