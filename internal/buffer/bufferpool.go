// Package buffer implements the buffer pool manager (C3) and its RAII-style
// page guards (C4): a fixed array of frames, a page table mapping page ids
// to frames, a free-frame stack, and an LRU-K replacer for everything else.
//
// Grounded in the teacher's internal/storage/pager.Pager (PageBufferPool,
// AllocPage/FreePage, dirty-page tracking), repointed at the sharded
// diskio.Scheduler and replacer.LRUK built alongside it instead of the
// teacher's single-queue WAL pager.
package buffer

import (
	"fmt"
	"sync"

	"github.com/latchwood/latchdb/internal/diskio"
	"github.com/latchwood/latchdb/internal/page"
	"github.com/latchwood/latchdb/internal/replacer"
)

// Manager is the buffer pool manager. All public methods are safe for
// concurrent use.
type Manager struct {
	mu         sync.Mutex
	frames     []*FrameHeader
	pageTable  map[page.ID]page.FrameID
	freeList   []page.FrameID
	replacer   *replacer.LRUK
	scheduler  *diskio.Scheduler
	nextPageID page.ID
}

// NewManager allocates poolSize frames backed by scheduler, evicting via an
// LRU-K replacer with history length k.
func NewManager(poolSize int, k int, scheduler *diskio.Scheduler) *Manager {
	if poolSize < 1 {
		poolSize = 1
	}
	m := &Manager{
		frames:    make([]*FrameHeader, poolSize),
		pageTable: make(map[page.ID]page.FrameID),
		freeList:  make([]page.FrameID, 0, poolSize),
		replacer:  replacer.New(k),
		scheduler: scheduler,
	}
	for i := 0; i < poolSize; i++ {
		fid := page.FrameID(i)
		m.frames[i] = newFrameHeader(fid)
		m.freeList = append(m.freeList, fid)
	}
	return m
}

// PoolSize reports the fixed number of frames in the pool.
func (m *Manager) PoolSize() int { return len(m.frames) }

// NewPage allocates a brand-new page, pins it into a frame, and returns its
// id along with its frame. The caller must eventually Unpin the returned
// frame; NewPageGuarded wraps the same allocation in a guard whose Drop
// does that.
func (m *Manager) NewPage() (page.ID, *FrameHeader, error) {
	m.mu.Lock()

	frame, writebackID, needsWriteback, err := m.findVictimLocked()
	if err != nil {
		m.mu.Unlock()
		return page.InvalidID, nil, err
	}

	id := m.nextPageID
	m.nextPageID++
	if err := m.scheduler.IncreaseDiskSpace(int(id) + 1); err != nil {
		m.mu.Unlock()
		return page.InvalidID, nil, fmt.Errorf("buffer: grow disk for new page %d: %w", id, err)
	}

	m.bindLocked(frame, id)

	// The victim's dirty bytes still sit in frame.Data; snapshot them before
	// zeroing the frame so the writeback (submitted below, outside the BPM
	// latch) isn't racing our own overwrite.
	var writeback *page.Bytes
	if needsWriteback {
		snap := frame.Data
		writeback = &snap
	}
	frame.Data = page.Bytes{}
	frame.markIODone()
	m.mu.Unlock()

	if needsWriteback {
		m.scheduler.Schedule(diskio.Request{Kind: diskio.Write, PageID: writebackID, Data: writeback}, int64(writebackID))
	}
	return id, frame, nil
}

// FetchRead pins id for reading, loading it from disk if it is not already
// resident.
func (m *Manager) FetchRead(id page.ID) (*FrameHeader, error) {
	return m.fetch(id)
}

// FetchWrite pins id for writing, loading it from disk if it is not already
// resident. Page contents are identical to FetchRead; callers distinguish
// read/write intent through the guard type, not through the frame itself.
func (m *Manager) FetchWrite(id page.ID) (*FrameHeader, error) {
	return m.fetch(id)
}

func (m *Manager) fetch(id page.ID) (*FrameHeader, error) {
	m.mu.Lock()
	if fid, ok := m.pageTable[id]; ok {
		frame := m.frames[fid]
		frame.pin()
		m.replacer.RecordAccess(fid, replacer.Lookup)
		m.replacer.SetEvictable(fid, false)
		m.mu.Unlock()
		frame.waitIODone()
		return frame, nil
	}

	frame, writebackID, needsWriteback, err := m.findVictimLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.bindLocked(frame, id)
	shardKey := int64(id)
	m.mu.Unlock()

	// Submit the victim's writeback (if any) and the incoming read on the
	// same shard key, both after dropping the BPM latch: the scheduler's
	// per-shard FIFO (spec §4.1/§4.3) orders the write ahead of the read, so
	// we only need to wait on the read's own completion signal, never on the
	// write's, and never while holding m.mu.
	if needsWriteback {
		m.scheduler.Schedule(diskio.Request{Kind: diskio.Write, PageID: writebackID, Data: &frame.Data}, shardKey)
	}

	done := make(chan bool, 1)
	m.scheduler.Schedule(diskio.Request{Kind: diskio.Read, PageID: id, Data: &frame.Data, Done: done}, shardKey)
	<-done
	frame.markIODone()
	return frame, nil
}

// findVictimLocked returns a frame ready to be rebound, either from the free
// list or by evicting via the replacer, along with whether the victim needs
// its dirty contents written back and the page id to write them under.
// Caller holds m.mu.
func (m *Manager) findVictimLocked() (frame *FrameHeader, writebackID page.ID, needsWriteback bool, err error) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return m.frames[fid], page.InvalidID, false, nil
	}

	fid, ok := m.replacer.Evict()
	if !ok {
		return nil, page.InvalidID, false, fmt.Errorf("buffer: pool exhausted, no evictable frame")
	}
	victim := m.frames[fid]
	if pid := victim.PageID(); pid != page.InvalidID {
		if victim.IsDirty() {
			writebackID, needsWriteback = pid, true
		}
		delete(m.pageTable, pid)
	}
	return victim, writebackID, needsWriteback, nil
}

// bindLocked rebinds frame to id, registers it in the page table, pins it
// once, and marks it non-evictable. Caller holds m.mu.
func (m *Manager) bindLocked(frame *FrameHeader, id page.ID) {
	frame.reset(id)
	frame.pin()
	m.pageTable[id] = frame.ID
	m.replacer.RecordAccess(frame.ID, replacer.Lookup)
	m.replacer.SetEvictable(frame.ID, false)
}

// Unpin decrements a frame's pin count. When it reaches zero the frame
// becomes eligible for eviction. isDirty, if true, marks the frame dirty
// even if the caller only read from it (defensive: never clears a dirty bit
// that a concurrent writer already set).
func (m *Manager) Unpin(fid page.FrameID, isDirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame := m.frames[fid]
	if isDirty {
		frame.markDirty()
	}
	if n := frame.unpin(); n <= 0 {
		m.replacer.SetEvictable(fid, true)
	}
}

// FlushPage writes a resident page back to disk, regardless of its dirty
// bit, and clears the dirty bit on success.
func (m *Manager) FlushPage(id page.ID) error {
	m.mu.Lock()
	fid, ok := m.pageTable[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("buffer: FlushPage: page %d not resident", id)
	}
	frame := m.frames[fid]
	m.mu.Unlock()
	return m.flushLocked(frame)
}

// flushLocked issues the write and blocks for completion. Safe to call with
// or without m.mu held by the caller, since it only touches the scheduler
// and the frame's own dirty bit.
func (m *Manager) flushLocked(frame *FrameHeader) error {
	done := make(chan bool, 1)
	id := frame.PageID()
	m.scheduler.Schedule(diskio.Request{Kind: diskio.Write, PageID: id, Data: &frame.Data, Done: done}, int64(id))
	<-done
	frame.clearDirty()
	return nil
}

// FlushAllPages writes every resident page back to disk.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	ids := make([]page.ID, 0, len(m.pageTable))
	for id := range m.pageTable {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.FlushPage(id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes a page from the pool and tells the backend to reclaim
// its disk space. Fails if the page is currently pinned.
func (m *Manager) DeletePage(id page.ID) error {
	m.mu.Lock()
	fid, ok := m.pageTable[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	frame := m.frames[fid]
	if frame.PinCount() > 0 {
		m.mu.Unlock()
		return fmt.Errorf("buffer: DeletePage: page %d is pinned", id)
	}
	delete(m.pageTable, id)
	m.replacer.SetEvictable(fid, true)
	m.replacer.Remove(fid)
	frame.reset(page.InvalidID)
	m.freeList = append(m.freeList, fid)
	m.mu.Unlock()

	return m.scheduler.DeallocatePage(id)
}

// GetPinCount returns the pin count of a resident page, or -1 if it is not
// currently in the pool.
func (m *Manager) GetPinCount(id page.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	fid, ok := m.pageTable[id]
	if !ok {
		return -1
	}
	return m.frames[fid].PinCount()
}
