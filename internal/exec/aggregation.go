package exec

import (
	"fmt"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// AggregationType is the handful of aggregate functions this engine
// supports.
type AggregationType int

const (
	CountStarAgg AggregationType = iota
	CountAgg
	SumAgg
	MinAgg
	MaxAgg
)

// AggregateExpr names one aggregate the Aggregation operator computes.
// Arg is ignored for CountStarAgg.
type AggregateExpr struct {
	Type AggregationType
	Arg  Expression
}

// Aggregation groups its child's rows by GroupBys and computes Aggregates
// per group, materializing the whole child before emitting any output row
// (a barrier every aggregate strategy needs — no aggregate's result is
// knowable until its group has been fully seen). With no GroupBys, a
// child that produced zero rows still emits exactly one row (COUNT(*)
// zero, every other aggregate NULL). A Count that saw no non-NULL value
// emits NULL, not zero.
type Aggregation struct {
	child      Operator
	groupBys   []Expression
	aggregates []AggregateExpr
	schema     *catalog.Schema

	groups   []*aggGroup
	byKey    map[string]*aggGroup
	emitPos  int
	done     bool
}

type aggGroup struct {
	keyValues []catalog.Value
	states    []aggState
}

type aggState struct {
	count int64
	sum   int64
	min   catalog.Value
	max   catalog.Value
	seen  bool
}

// NewAggregation builds an Aggregation grouping child's rows by groupBys
// (may be empty) and computing aggregates per group. outputSchema
// describes groupBys' columns followed by aggregates', in order.
func NewAggregation(child Operator, groupBys []Expression, aggregates []AggregateExpr, outputSchema *catalog.Schema) *Aggregation {
	return &Aggregation{child: child, groupBys: groupBys, aggregates: aggregates, schema: outputSchema}
}

func (a *Aggregation) OutputSchema() *catalog.Schema { return a.schema }

func (a *Aggregation) Init() error {
	if err := a.child.Init(); err != nil {
		return err
	}
	a.groups = nil
	a.byKey = make(map[string]*aggGroup)
	a.emitPos = 0
	a.done = false

	for {
		row, _, ok, err := a.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := a.accumulate(row); err != nil {
			return err
		}
	}

	if len(a.groups) == 0 && len(a.groupBys) == 0 {
		a.groups = append(a.groups, &aggGroup{states: make([]aggState, len(a.aggregates))})
	}
	return nil
}

func (a *Aggregation) accumulate(row catalog.Tuple) error {
	keyValues := make([]catalog.Value, len(a.groupBys))
	for i, g := range a.groupBys {
		v, err := g.Evaluate(row)
		if err != nil {
			return err
		}
		keyValues[i] = v
	}
	key := groupKey(keyValues)

	grp, ok := a.byKey[key]
	if !ok {
		grp = &aggGroup{keyValues: keyValues, states: make([]aggState, len(a.aggregates))}
		a.byKey[key] = grp
		a.groups = append(a.groups, grp)
	}

	for i, agg := range a.aggregates {
		if err := applyAggregate(&grp.states[i], agg, row); err != nil {
			return err
		}
	}
	return nil
}

func applyAggregate(st *aggState, agg AggregateExpr, row catalog.Tuple) error {
	if agg.Type == CountStarAgg {
		st.count++
		return nil
	}
	v, err := agg.Arg.Evaluate(row)
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil
	}
	switch agg.Type {
	case CountAgg:
		st.count++
	case SumAgg:
		st.sum += v.AsInteger()
		st.seen = true
	case MinAgg:
		if !st.seen || v.CompareLessThan(st.min) {
			st.min = v
		}
		st.seen = true
	case MaxAgg:
		if !st.seen || v.CompareGreater(st.max) {
			st.max = v
		}
		st.seen = true
	}
	return nil
}

func (a *Aggregation) Next() (catalog.Tuple, heap.RID, bool, error) {
	if a.done || a.emitPos >= len(a.groups) {
		a.done = true
		return catalog.Tuple{}, heap.RID{}, false, nil
	}
	grp := a.groups[a.emitPos]
	a.emitPos++

	values := make([]catalog.Value, 0, len(grp.keyValues)+len(a.aggregates))
	values = append(values, grp.keyValues...)
	for i, agg := range a.aggregates {
		st := grp.states[i]
		switch agg.Type {
		case CountStarAgg:
			values = append(values, catalog.NewInteger(st.count))
		case CountAgg:
			if st.count > 0 {
				values = append(values, catalog.NewInteger(st.count))
			} else {
				values = append(values, catalog.NewNull(catalog.TypeInteger))
			}
		case SumAgg:
			if st.seen {
				values = append(values, catalog.NewInteger(st.sum))
			} else {
				values = append(values, catalog.NewNull(catalog.TypeInteger))
			}
		case MinAgg:
			if st.seen {
				values = append(values, st.min)
			} else {
				values = append(values, catalog.NewNull(catalog.TypeInteger))
			}
		case MaxAgg:
			if st.seen {
				values = append(values, st.max)
			} else {
				values = append(values, catalog.NewNull(catalog.TypeInteger))
			}
		default:
			return catalog.Tuple{}, heap.RID{}, false, fmt.Errorf("exec: unknown aggregate type %d", agg.Type)
		}
	}
	return catalog.NewTuple(values), heap.RID{}, true, nil
}

// groupKey encodes a group-by key tuple into a single comparable string.
func groupKey(values []catalog.Value) string {
	out := make([]byte, 0, 16*len(values))
	for _, v := range values {
		if v.IsNull() {
			out = append(out, 0xff)
			continue
		}
		out = append(out, byte(v.GetTypeID()))
		out = append(out, v.String()...)
		out = append(out, 0)
	}
	return string(out)
}
