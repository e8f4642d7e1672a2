package buffer

import (
	"github.com/latchwood/latchdb/internal/page"
)

// ReadPageGuard holds a shared latch on a page's frame for the guard's
// lifetime. The zero value is not usable; obtain one from Manager.Read.
// Move-only: Move transfers ownership and invalidates the source, matching
// the teacher's page-level pin/unpin discipline but made explicit through a
// single release path instead of manual Unpin calls scattered at call sites.
type ReadPageGuard struct {
	bpm   *Manager
	frame *FrameHeader
	id    page.ID
}

// Read fetches id for shared access and returns a guard over it.
func (m *Manager) Read(id page.ID) (*ReadPageGuard, error) {
	frame, err := m.FetchRead(id)
	if err != nil {
		return nil, err
	}
	frame.Latch.RLock()
	return &ReadPageGuard{bpm: m, frame: frame, id: id}, nil
}

// Data returns the page's bytes. Valid only while the guard is held.
func (g *ReadPageGuard) Data() *page.Bytes {
	if g.frame == nil {
		panic("buffer: use of ReadPageGuard after Drop or Move")
	}
	return &g.frame.Data
}

func (g *ReadPageGuard) PageID() page.ID { return g.id }

// Move transfers this guard's latch to a freshly returned guard and
// invalidates the receiver. Calling any method on g after Move panics.
func (g *ReadPageGuard) Move() *ReadPageGuard {
	if g.frame == nil {
		panic("buffer: Move of already-released ReadPageGuard")
	}
	moved := &ReadPageGuard{bpm: g.bpm, frame: g.frame, id: g.id}
	g.bpm, g.frame = nil, nil
	return moved
}

// Drop releases the latch and unpins the underlying frame. Safe to call
// more than once; subsequent calls are no-ops.
func (g *ReadPageGuard) Drop() {
	if g.frame == nil {
		return
	}
	g.frame.Latch.RUnlock()
	g.bpm.Unpin(g.frame.ID, false)
	g.bpm, g.frame = nil, nil
}

// WritePageGuard holds an exclusive latch on a page's frame for the guard's
// lifetime. Every write through a WritePageGuard marks the frame dirty on
// release, since the guard can't distinguish a no-op write from a mutation.
type WritePageGuard struct {
	bpm   *Manager
	frame *FrameHeader
	id    page.ID
}

// Write fetches id for exclusive access and returns a guard over it.
func (m *Manager) Write(id page.ID) (*WritePageGuard, error) {
	frame, err := m.FetchWrite(id)
	if err != nil {
		return nil, err
	}
	frame.Latch.Lock()
	return &WritePageGuard{bpm: m, frame: frame, id: id}, nil
}

func (g *WritePageGuard) Data() *page.Bytes {
	if g.frame == nil {
		panic("buffer: use of WritePageGuard after Drop or Move")
	}
	return &g.frame.Data
}

func (g *WritePageGuard) PageID() page.ID { return g.id }

func (g *WritePageGuard) Move() *WritePageGuard {
	if g.frame == nil {
		panic("buffer: Move of already-released WritePageGuard")
	}
	moved := &WritePageGuard{bpm: g.bpm, frame: g.frame, id: g.id}
	g.bpm, g.frame = nil, nil
	return moved
}

// Drop releases the latch and unpins the underlying frame, marking it
// dirty. Safe to call more than once.
func (g *WritePageGuard) Drop() {
	if g.frame == nil {
		return
	}
	g.frame.Latch.Unlock()
	g.bpm.Unpin(g.frame.ID, true)
	g.bpm, g.frame = nil, nil
}

// NewPageGuarded allocates a new page and returns it already latched for
// exclusive access, saving callers a separate NewPage+Write round trip.
func (m *Manager) NewPageGuarded() (*WritePageGuard, error) {
	id, frame, err := m.NewPage()
	if err != nil {
		return nil, err
	}
	frame.Latch.Lock()
	return &WritePageGuard{bpm: m, frame: frame, id: id}, nil
}
