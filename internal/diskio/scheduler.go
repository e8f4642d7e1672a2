// Package diskio implements the disk-facing layer of the buffer pool: a
// sharded, asynchronous request scheduler (C1) sitting on top of a
// file-backed page store.
//
// What: a fixed number of shards, each a single goroutine consuming a FIFO
// channel of read/write requests against the backing Backend.
// How: Schedule(req, shardKey) routes to shard (shardKey mod N); because
// each shard has exactly one consumer, requests submitted to the same shard
// key complete in submission order — the buffer pool manager leans on this
// to chain "write back the evicted page, then read the incoming page"
// without an explicit barrier.
// Why: mirrors the worker-pool/channel pattern the teacher already uses for
// its concurrency framework (internal/storage/concurrency.go), repointed at
// page I/O instead of row-level work requests.
package diskio

import (
	"log"
	"sync"

	"github.com/latchwood/latchdb/internal/page"
)

// RequestKind distinguishes a read from a write request.
type RequestKind int

const (
	Read RequestKind = iota
	Write
)

// Request is a single page I/O job. Completion is signalled exactly once by
// sending a bool (true on success) on Done; the spec treats backend failures
// as out of scope, so Done is always sent true in this implementation, but
// the channel-based contract leaves room for a future backend that can fail.
type Request struct {
	Kind     RequestKind
	PageID   page.ID
	Data     *page.Bytes // for Write: source; for Read: destination
	Done     chan bool
	shutdown bool
}

// Backend is the thing a shard worker actually drives. See backend.go for
// the file-backed implementation.
type Backend interface {
	ReadPage(id page.ID, dst *page.Bytes) error
	WritePage(id page.ID, src *page.Bytes) error
	IncreaseDiskSpace(pages int) error
	DeletePage(id page.ID) error
}

// Scheduler owns N shard queues, each drained by a single worker goroutine.
// Requests submitted to the same shard key are guaranteed to complete in
// submission order.
type Scheduler struct {
	backend Backend
	shards  []chan Request
	wg      sync.WaitGroup
}

// New starts a scheduler with the given shard count, each shard backed by a
// dedicated worker goroutine.
func New(backend Backend, nShards int) *Scheduler {
	if nShards < 1 {
		nShards = 1
	}
	s := &Scheduler{
		backend: backend,
		shards:  make([]chan Request, nShards),
	}
	for i := range s.shards {
		s.shards[i] = make(chan Request, 64)
		s.wg.Add(1)
		go s.runShard(i)
	}
	return s
}

func (s *Scheduler) runShard(idx int) {
	defer s.wg.Done()
	for req := range s.shards[idx] {
		if req.shutdown {
			return
		}
		s.execute(req)
	}
}

func (s *Scheduler) execute(req Request) {
	var err error
	switch req.Kind {
	case Read:
		err = s.backend.ReadPage(req.PageID, req.Data)
	case Write:
		err = s.backend.WritePage(req.PageID, req.Data)
	}
	if err != nil {
		// The spec treats backend I/O failure as out of scope: it is not
		// distinguished from success here, but we log it so a misconfigured
		// backend doesn't fail silently in development.
		log.Printf("diskio: shard I/O error for page %d: %v", req.PageID, err)
	}
	if req.Done != nil {
		req.Done <- true
	}
}

// shardFor maps a shard key to one of the N worker channels.
func (s *Scheduler) shardFor(shardKey int64) int {
	n := int64(len(s.shards))
	m := shardKey % n
	if m < 0 {
		m += n
	}
	return int(m)
}

// Schedule enqueues req on the shard identified by shardKey. Requests with
// the same shardKey complete in the order they were scheduled.
func (s *Scheduler) Schedule(req Request, shardKey int64) {
	s.shards[s.shardFor(shardKey)] <- req
}

// IncreaseDiskSpace grows the backing file so that page ids 0..pages-1 are
// addressable.
func (s *Scheduler) IncreaseDiskSpace(pages int) error {
	return s.backend.IncreaseDiskSpace(pages)
}

// DeallocatePage notifies the backend that a page id is no longer in use.
func (s *Scheduler) DeallocatePage(id page.ID) error {
	return s.backend.DeletePage(id)
}

// Shutdown sends a terminator to every shard and waits for all workers to
// drain and exit.
func (s *Scheduler) Shutdown() {
	for _, ch := range s.shards {
		ch <- Request{shutdown: true}
	}
	s.wg.Wait()
	for _, ch := range s.shards {
		close(ch)
	}
}
