package buffer

import (
	"sync"

	"github.com/latchwood/latchdb/internal/page"
)

// FrameHeader owns one page-sized buffer plus its accounting metadata. It is
// never copied: the pool manager hands out *FrameHeader references, and
// guards borrow them for the lifetime of a latch.
//
// Invariants (spec §3): PinCount >= 0; PinCount > 0 implies the frame is not
// evictable; the frame's page.ID is only meaningful while ioDone is set.
type FrameHeader struct {
	ID       page.FrameID
	Data     page.Bytes
	Latch    sync.RWMutex // page-level shared/exclusive latch
	pageMu   sync.Mutex   // guards the fields below (separate from Latch, which guards Data)
	pageID   page.ID
	pinCount int
	isDirty  bool

	ioCond *sync.Cond
	ioDone bool
}

func newFrameHeader(id page.FrameID) *FrameHeader {
	f := &FrameHeader{ID: id, pageID: page.InvalidID}
	f.ioCond = sync.NewCond(&f.pageMu)
	return f
}

// reset rebinds the frame to a new page id with I/O pending; caller must
// hold the BPM latch.
func (f *FrameHeader) reset(id page.ID) {
	f.pageMu.Lock()
	f.pageID = id
	f.pinCount = 0
	f.isDirty = false
	f.ioDone = false
	f.pageMu.Unlock()
}

func (f *FrameHeader) pin() {
	f.pageMu.Lock()
	f.pinCount++
	f.pageMu.Unlock()
}

// unpin decrements the pin count and returns the new count.
func (f *FrameHeader) unpin() int {
	f.pageMu.Lock()
	f.pinCount--
	n := f.pinCount
	f.pageMu.Unlock()
	return n
}

func (f *FrameHeader) PinCount() int {
	f.pageMu.Lock()
	defer f.pageMu.Unlock()
	return f.pinCount
}

func (f *FrameHeader) PageID() page.ID {
	f.pageMu.Lock()
	defer f.pageMu.Unlock()
	return f.pageID
}

func (f *FrameHeader) markDirty() {
	f.pageMu.Lock()
	f.isDirty = true
	f.pageMu.Unlock()
}

func (f *FrameHeader) IsDirty() bool {
	f.pageMu.Lock()
	defer f.pageMu.Unlock()
	return f.isDirty
}

func (f *FrameHeader) clearDirty() {
	f.pageMu.Lock()
	f.isDirty = false
	f.pageMu.Unlock()
}

// markIODone signals waiters that the frame's pending I/O has completed.
func (f *FrameHeader) markIODone() {
	f.pageMu.Lock()
	f.ioDone = true
	f.pageMu.Unlock()
	f.ioCond.Broadcast()
}

// waitIODone blocks until the frame's pending I/O has completed. Must be
// called without holding the BPM latch, matching spec §4.3's contract that
// readers block on the per-frame signal rather than the pool latch.
func (f *FrameHeader) waitIODone() {
	f.pageMu.Lock()
	for !f.ioDone {
		f.ioCond.Wait()
	}
	f.pageMu.Unlock()
}
