package exec

import (
	"sort"

	"github.com/latchwood/latchdb/internal/buffer"
	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/page"
)

// OrderByType is a sort key's direction. OrderDefault behaves as OrderAsc,
// matching SQL's default ORDER BY direction.
type OrderByType int

const (
	OrderDefault OrderByType = iota
	OrderAsc
	OrderDesc
)

// SortKeySpec is one ORDER BY term: the expression to sort by and its
// direction.
type SortKeySpec struct {
	Expr  Expression
	Order OrderByType
}

// TupleComparator orders two tuples by a sequence of SortKeySpecs,
// break-on-first-difference, matching SQL's multi-column ORDER BY
// semantics.
type TupleComparator struct {
	Keys []SortKeySpec
}

// Less reports whether a sorts before b.
func (c TupleComparator) Less(a, b catalog.Tuple) (bool, error) {
	for _, k := range c.Keys {
		av, err := k.Expr.Evaluate(a)
		if err != nil {
			return false, err
		}
		bv, err := k.Expr.Evaluate(b)
		if err != nil {
			return false, err
		}
		if cmp := compareValues(av, bv); cmp != 0 {
			if k.Order == OrderDesc {
				return cmp > 0, nil
			}
			return cmp < 0, nil
		}
	}
	return false, nil
}

// lessKeys compares two already-evaluated key tuples, used once sort keys
// have been materialized up front so in-memory batch sorting (sort.Slice)
// never needs to re-run Expression.Evaluate or handle its error return.
func (c TupleComparator) lessKeys(a, b []catalog.Value) bool {
	for i, k := range c.Keys {
		if cmp := compareValues(a[i], b[i]); cmp != 0 {
			if k.Order == OrderDesc {
				return cmp > 0
			}
			return cmp < 0
		}
	}
	return false
}

// run is a sorted sequence of sort pages: within a run, the union of every
// page's entries (in page order, then slot order) is globally sorted.
type run struct {
	pages []page.ID
}

type sortEntry struct {
	tuple catalog.Tuple
	rid   heap.RID
}

// runCursor is a lazy forward reader over one run: it decodes one page's
// entries into memory at a time rather than holding a buffer pool guard
// across calls, so a merge holding two cursors open never deadlocks on
// its own pages' latches.
type runCursor struct {
	bpm     *buffer.Manager
	schema  *catalog.Schema
	pages   []page.ID
	pageIdx int
	entries []sortEntry
	pos     int
	err     error
}

func newRunCursor(bpm *buffer.Manager, schema *catalog.Schema, pages []page.ID) *runCursor {
	return &runCursor{bpm: bpm, schema: schema, pages: pages}
}

// ensurePage loads the next page's entries once the current page is
// exhausted. Returns false once every page has been consumed (or a read
// failed, recorded in c.err).
func (c *runCursor) ensurePage() bool {
	for c.pos >= len(c.entries) {
		if c.pageIdx >= len(c.pages) {
			return false
		}
		id := c.pages[c.pageIdx]
		c.pageIdx++

		rg, err := c.bpm.Read(id)
		if err != nil {
			c.err = err
			return false
		}
		sp := wrapSortPage(rg.Data(), c.schema)
		n := sp.count()
		entries := make([]sortEntry, n)
		for i := 0; i < n; i++ {
			tuple, rid := sp.decodeEntry(i)
			entries[i] = sortEntry{tuple: tuple, rid: rid}
		}
		rg.Drop()

		c.entries = entries
		c.pos = 0
	}
	return true
}

func (c *runCursor) peek() (sortEntry, bool) {
	if !c.ensurePage() {
		return sortEntry{}, false
	}
	return c.entries[c.pos], true
}

func (c *runCursor) advance() { c.pos++ }

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// keyedEntry pairs a row with its already-evaluated sort keys, so
// createRuns can batch-sort an in-memory page's worth of rows with plain
// comparisons instead of re-running Expression.Evaluate per comparison.
type keyedEntry struct {
	tuple catalog.Tuple
	rid   heap.RID
	keys  []catalog.Value
}

// ExternalMergeSort implements C11: a disk-backed 2-way external merge
// sort built on the buffer pool rather than an in-memory slice, so a
// result set larger than memory can still be ordered. It materializes its
// child into single-page sorted runs, then repeatedly merges adjacent run
// pairs until one run remains.
//
// Grounded in the teacher's sort.Slice-based in-memory ORDER BY in
// internal/engine/exec.go's runSelect, replaced with bustub's classic
// external-sort algorithm (original_source/ primer's external merge sort
// project) since the teacher never spills to disk and this component's
// spec explicitly calls for a disk-backed implementation.
type ExternalMergeSort struct {
	ctx    *ExecutorContext
	bpm    *buffer.Manager
	schema *catalog.Schema
	cmp    TupleComparator
	child  Operator

	finalPages []page.ID
	cursor     *runCursor
}

// NewExternalMergeSort builds an ExternalMergeSort ordering child's rows
// by keys, spilling runs through bpm.
func NewExternalMergeSort(ctx *ExecutorContext, bpm *buffer.Manager, schema *catalog.Schema, keys []SortKeySpec, child Operator) *ExternalMergeSort {
	return &ExternalMergeSort{ctx: ctx, bpm: bpm, schema: schema, cmp: TupleComparator{Keys: keys}, child: child}
}

func (s *ExternalMergeSort) OutputSchema() *catalog.Schema { return s.schema }

func (s *ExternalMergeSort) Init() error {
	if err := s.child.Init(); err != nil {
		return err
	}
	runs, err := s.createRuns()
	if err != nil {
		return err
	}
	for len(runs) > 1 {
		runs, err = s.mergeRound(runs)
		if err != nil {
			return err
		}
	}
	if len(runs) == 1 {
		s.finalPages = runs[0].pages
	} else {
		s.finalPages = nil
	}
	s.cursor = newRunCursor(s.bpm, s.schema, s.finalPages)
	return nil
}

func (s *ExternalMergeSort) Next() (catalog.Tuple, heap.RID, bool, error) {
	e, ok := s.cursor.peek()
	if !ok {
		return catalog.Tuple{}, heap.RID{}, false, s.cursor.err
	}
	s.cursor.advance()
	return e.tuple, e.rid, true, nil
}

func (s *ExternalMergeSort) keyOf(tuple catalog.Tuple) ([]catalog.Value, error) {
	keys := make([]catalog.Value, len(s.cmp.Keys))
	for i, k := range s.cmp.Keys {
		v, err := k.Expr.Evaluate(tuple)
		if err != nil {
			return nil, err
		}
		keys[i] = v
	}
	return keys, nil
}

// createRuns pulls every row from child, batching up to one page's worth
// of entries at a time, sorting each batch in memory, and spilling it as
// a single sorted run page.
func (s *ExternalMergeSort) createRuns() ([]run, error) {
	capacity := sortPageCapacity(s.schema)
	if capacity < 1 {
		capacity = 1
	}
	var runs []run
	batch := make([]keyedEntry, 0, capacity)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sort.Slice(batch, func(i, j int) bool { return s.cmp.lessKeys(batch[i].keys, batch[j].keys) })

		wg, err := s.bpm.NewPageGuarded()
		if err != nil {
			return err
		}
		sp := wrapSortPage(wg.Data(), s.schema)
		sp.reset()
		for _, e := range batch {
			sp.append(s.schema, e.tuple, e.rid)
		}
		id := wg.PageID()
		wg.Drop()

		runs = append(runs, run{pages: []page.ID{id}})
		batch = batch[:0]
		return nil
	}

	for {
		tuple, rid, ok, err := s.child.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		keys, err := s.keyOf(tuple)
		if err != nil {
			return nil, err
		}
		batch = append(batch, keyedEntry{tuple: tuple, rid: rid, keys: keys})
		if len(batch) == capacity {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return runs, nil
}

// mergeRound pairs up adjacent runs and merges each pair into one longer
// run; an odd run out carries over to the next round unmerged.
func (s *ExternalMergeSort) mergeRound(runs []run) ([]run, error) {
	var merged []run
	i := 0
	for i+1 < len(runs) {
		r, err := s.mergeTwo(runs[i], runs[i+1])
		if err != nil {
			return nil, err
		}
		merged = append(merged, r)
		i += 2
	}
	if i < len(runs) {
		merged = append(merged, runs[i])
	}
	return merged, nil
}

// mergeTwo performs one 2-way merge pass of a and b into a freshly
// allocated sequence of output pages.
func (s *ExternalMergeSort) mergeTwo(a, b run) (run, error) {
	ca := newRunCursor(s.bpm, s.schema, a.pages)
	cb := newRunCursor(s.bpm, s.schema, b.pages)

	wg, err := s.bpm.NewPageGuarded()
	if err != nil {
		return run{}, err
	}
	sp := wrapSortPage(wg.Data(), s.schema)
	sp.reset()
	var out run
	out.pages = append(out.pages, wg.PageID())

	ensureOut := func() error {
		if sp.count() < sp.capacity() {
			return nil
		}
		wg.Drop()
		nwg, err := s.bpm.NewPageGuarded()
		if err != nil {
			return err
		}
		wg = nwg
		sp = wrapSortPage(wg.Data(), s.schema)
		sp.reset()
		out.pages = append(out.pages, wg.PageID())
		return nil
	}
	writeEntry := func(e sortEntry) error {
		if err := ensureOut(); err != nil {
			return err
		}
		sp.append(s.schema, e.tuple, e.rid)
		return nil
	}

	for {
		ea, aok := ca.peek()
		eb, bok := cb.peek()
		switch {
		case !aok && !bok:
			wg.Drop()
			return out, firstErr(ca.err, cb.err)
		case !aok:
			if err := writeEntry(eb); err != nil {
				wg.Drop()
				return run{}, err
			}
			cb.advance()
		case !bok:
			if err := writeEntry(ea); err != nil {
				wg.Drop()
				return run{}, err
			}
			ca.advance()
		default:
			lt, err := s.cmp.Less(ea.tuple, eb.tuple)
			if err != nil {
				wg.Drop()
				return run{}, err
			}
			if lt {
				if err := writeEntry(ea); err != nil {
					wg.Drop()
					return run{}, err
				}
				ca.advance()
			} else {
				if err := writeEntry(eb); err != nil {
					wg.Drop()
					return run{}, err
				}
				cb.advance()
			}
		}
	}
}
