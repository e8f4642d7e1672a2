package buffer

import (
	"path/filepath"
	"testing"

	"github.com/latchwood/latchdb/internal/diskio"
)

func newTestManager(t *testing.T, poolSize int) *Manager {
	t.Helper()
	dir := t.TempDir()
	backend, err := diskio.OpenFileBackend(filepath.Join(dir, "pages.db"))
	if err != nil {
		t.Fatalf("OpenFileBackend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	sched := diskio.New(backend, 4)
	t.Cleanup(sched.Shutdown)
	return NewManager(poolSize, 2, sched)
}

func TestNewPageWriteReadRoundTrip(t *testing.T) {
	bpm := newTestManager(t, 4)

	wg, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded: %v", err)
	}
	id := wg.PageID()
	copy(wg.Data()[:], "hello")
	wg.Drop()

	if err := bpm.FlushPage(id); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	rg, err := bpm.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer rg.Drop()
	if got := string(rg.Data()[:5]); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestPinCountTracksOutstandingGuards(t *testing.T) {
	bpm := newTestManager(t, 4)
	wg, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded: %v", err)
	}
	id := wg.PageID()
	if got := bpm.GetPinCount(id); got != 1 {
		t.Fatalf("expected pin count 1 while guard held, got %d", got)
	}
	wg.Drop()
	if got := bpm.GetPinCount(id); got != 0 {
		t.Fatalf("expected pin count 0 after Drop, got %d", got)
	}
}

func TestEvictionSkipsPinnedPages(t *testing.T) {
	bpm := newTestManager(t, 2)

	wg1, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded: %v", err)
	}
	defer wg1.Drop()

	wg2, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded: %v", err)
	}
	wg2.Drop()

	// Pool has 2 frames, both pages resident, wg1 still pinned. A third
	// NewPage must evict the unpinned page 2, not page 1.
	if _, _, err := bpm.NewPage(); err != nil {
		t.Fatalf("NewPage after filling pool: %v", err)
	}
	if got := bpm.GetPinCount(wg1.PageID()); got != 1 {
		t.Fatalf("pinned page must survive eviction, got pin count %d", got)
	}
}

func TestDeletePageRejectsPinned(t *testing.T) {
	bpm := newTestManager(t, 4)
	wg, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded: %v", err)
	}
	defer wg.Drop()

	if err := bpm.DeletePage(wg.PageID()); err == nil {
		t.Fatalf("expected DeletePage to reject a pinned page")
	}
}

func TestMoveInvalidatesSource(t *testing.T) {
	bpm := newTestManager(t, 4)
	wg, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded: %v", err)
	}
	moved := wg.Move()
	defer moved.Drop()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic using a guard after Move")
		}
	}()
	wg.Data()
}
