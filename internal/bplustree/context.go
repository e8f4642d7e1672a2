package bplustree

import (
	"github.com/latchwood/latchdb/internal/buffer"
)

// context is the latch-crabbing guard stack used while descending for
// Insert/Remove: write guards accumulate as ancestors until a child is
// found to be "safe" for the operation, at which point every guard but the
// child's is dropped. headerGuard, when held, is released the same way.
type context struct {
	headerGuard *buffer.WritePageGuard
	guards      []*buffer.WritePageGuard
}

func newContext() *context { return &context{} }

func (c *context) pushHeader(g *buffer.WritePageGuard) { c.headerGuard = g }

func (c *context) push(g *buffer.WritePageGuard) { c.guards = append(c.guards, g) }

// releaseAncestors drops every guard except the most recently pushed one
// (and the header guard, if still held) — called once a child page proves
// safe for the in-flight operation.
func (c *context) releaseAncestors() {
	if c.headerGuard != nil {
		c.headerGuard.Drop()
		c.headerGuard = nil
	}
	if len(c.guards) > 1 {
		for _, g := range c.guards[:len(c.guards)-1] {
			g.Drop()
		}
		c.guards = c.guards[len(c.guards)-1:]
	}
}

// releaseAll drops every guard still held, in root-to-leaf order, header
// first.
func (c *context) releaseAll() {
	if c.headerGuard != nil {
		c.headerGuard.Drop()
		c.headerGuard = nil
	}
	for _, g := range c.guards {
		g.Drop()
	}
	c.guards = nil
}

// parent returns the guard for the page one level above the current
// bottom of the stack, or nil if the stack has fewer than two entries
// (the bottom page is the root).
func (c *context) parent() *buffer.WritePageGuard {
	if len(c.guards) < 2 {
		return nil
	}
	return c.guards[len(c.guards)-2]
}

func (c *context) leaf() *buffer.WritePageGuard {
	if len(c.guards) == 0 {
		return nil
	}
	return c.guards[len(c.guards)-1]
}

func (c *context) pop() *buffer.WritePageGuard {
	if len(c.guards) == 0 {
		return nil
	}
	g := c.guards[len(c.guards)-1]
	c.guards = c.guards[:len(c.guards)-1]
	return g
}

// safeForInsert reports whether a page can absorb one more entry without
// splitting.
func safeForInsert(tp *treePage) bool {
	return tp.slotCount() < tp.maxSize()
}

// safeForDelete reports whether a page can lose one entry without
// underflowing below its minimum occupancy. Root pages are exempt (the
// caller checks root-specific shrink rules separately).
func safeForDelete(tp *treePage) bool {
	min := (tp.maxSize() + 1) / 2
	return tp.size() > min
}
