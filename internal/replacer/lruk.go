// Package replacer implements the LRU-K frame replacement policy (C2): three
// ordered sequences (scan, cold, hot) tracking frame access history, used by
// the buffer pool manager to pick an eviction victim.
package replacer

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/latchwood/latchdb/internal/page"
)

// AccessKind classifies the operation that touched a frame. Scan accesses
// are tracked separately so a single full sequential scan can't flush the
// hot working set out of the pool.
type AccessKind int

const (
	Unknown AccessKind = iota
	Lookup
	Scan
	Index
)

type tier int

const (
	tierScan tier = iota
	tierCold
	tierHot
)

type node struct {
	frameID     page.FrameID
	accessCount int
	lastKind    AccessKind
	evictable   bool
	tier        tier
	elem        *list.Element
}

// LRUK is the replacer. All operations take lk.mu.
type LRUK struct {
	k int

	mu        sync.Mutex
	nodes     map[page.FrameID]*node
	hot       *list.List // MRU at Front, LRU at Back
	cold      *list.List // FIFO: new entries PushBack, evict from Front
	scan      *list.List // LIFO: new entries PushBack, evict from Back
	currSize  int
}

// New creates an LRU-K replacer that promotes a frame to the hot tier once
// it has been accessed k times (k >= 1).
func New(k int) *LRUK {
	if k < 1 {
		k = 2
	}
	return &LRUK{
		k:     k,
		nodes: make(map[page.FrameID]*node),
		hot:   list.New(),
		cold:  list.New(),
		scan:  list.New(),
	}
}

// RecordAccess records that frameID was touched with the given access kind.
// See spec §4.2 for the full transition table.
func (lk *LRUK) RecordAccess(frameID page.FrameID, kind AccessKind) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	n, existed := lk.nodes[frameID]

	switch {
	case kind == Scan:
		if existed {
			lk.detach(n)
		} else {
			n = &node{frameID: frameID}
			lk.nodes[frameID] = n
		}
		n.accessCount = 1
		n.lastKind = Scan
		n.tier = tierScan
		n.elem = lk.scan.PushBack(n)

	case existed && n.lastKind == Scan:
		lk.detach(n)
		n.accessCount = 1
		n.lastKind = kind
		n.tier = tierCold
		n.elem = lk.cold.PushBack(n)

	case existed:
		n.accessCount++
		n.lastKind = kind
		if n.accessCount >= lk.k && n.tier != tierHot {
			lk.detach(n)
			n.tier = tierHot
			n.elem = lk.hot.PushFront(n)
		} else if n.tier == tierHot {
			// Already hot: re-accessing moves it to MRU head.
			lk.hot.MoveToFront(n.elem)
		}

	default:
		n = &node{frameID: frameID, accessCount: 1, lastKind: kind, tier: tierCold}
		lk.nodes[frameID] = n
		n.elem = lk.cold.PushBack(n)
	}
}

// Evict selects a victim frame: scan tail-to-head (LIFO), then cold
// head-to-tail (FIFO), then hot tail-to-head (LRU). Returns false if no
// evictable frame exists.
func (lk *LRUK) Evict() (page.FrameID, bool) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if n := lk.findEvictable(lk.scan, back); n != nil {
		return lk.remove(n), true
	}
	if n := lk.findEvictable(lk.cold, front); n != nil {
		return lk.remove(n), true
	}
	if n := lk.findEvictable(lk.hot, back); n != nil {
		return lk.remove(n), true
	}
	return 0, false
}

type direction int

const (
	front direction = iota
	back
)

func (lk *LRUK) findEvictable(l *list.List, dir direction) *node {
	var e *list.Element
	if dir == front {
		e = l.Front()
	} else {
		e = l.Back()
	}
	for e != nil {
		n := e.Value.(*node)
		if n.evictable {
			return n
		}
		if dir == front {
			e = e.Next()
		} else {
			e = e.Prev()
		}
	}
	return nil
}

func (lk *LRUK) remove(n *node) page.FrameID {
	lk.detach(n)
	delete(lk.nodes, n.frameID)
	lk.currSize--
	return n.frameID
}

func (lk *LRUK) detach(n *node) {
	if n.elem == nil {
		return
	}
	switch n.tier {
	case tierScan:
		lk.scan.Remove(n.elem)
	case tierCold:
		lk.cold.Remove(n.elem)
	case tierHot:
		lk.hot.Remove(n.elem)
	}
	n.elem = nil
}

// SetEvictable flips the evictable flag for frameID and adjusts the
// replacer's tracked size. It is a no-op if the flag is already set to the
// requested value, and a no-op if frameID is not tracked.
func (lk *LRUK) SetEvictable(frameID page.FrameID, evictable bool) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	n, ok := lk.nodes[frameID]
	if !ok || n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		lk.currSize++
	} else {
		lk.currSize--
	}
}

// Remove drops frameID from the replacer. frameID must currently be
// evictable; removing a pinned frame is a contract violation.
func (lk *LRUK) Remove(frameID page.FrameID) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	n, ok := lk.nodes[frameID]
	if !ok {
		return
	}
	if !n.evictable {
		panic(fmt.Sprintf("replacer: Remove called on non-evictable frame %d", frameID))
	}
	lk.detach(n)
	delete(lk.nodes, frameID)
	lk.currSize--
}

// Size returns the number of currently evictable frames.
func (lk *LRUK) Size() int {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	return lk.currSize
}
