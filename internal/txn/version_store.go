package txn

import (
	"sync"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
)

// VersionStore maps a RID to the head of its undo-log chain (if any past
// version has been pushed) and resolves "tuple as of read_ts" by walking
// that chain through the owning transactions.
type VersionStore struct {
	mu    sync.RWMutex
	links map[heap.RID]UndoLink

	txnLookup func(txnID uint64) (*Transaction, bool)
}

func newVersionStore(lookup func(uint64) (*Transaction, bool)) *VersionStore {
	return &VersionStore{links: make(map[heap.RID]UndoLink), txnLookup: lookup}
}

// GetUndoLink returns the current chain head for rid, if any.
func (vs *VersionStore) GetUndoLink(rid heap.RID) (UndoLink, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	link, ok := vs.links[rid]
	return link, ok
}

// SetUndoLink installs a new chain head for rid.
func (vs *VersionStore) SetUndoLink(rid heap.RID, link UndoLink) {
	vs.mu.Lock()
	vs.links[rid] = link
	vs.mu.Unlock()
}

// Reconstruct resolves the tuple visible to a reader at readTs, per spec
// §4.7: if the base version is already visible (committed at-or-before
// readTs, or owned by readerTxnID itself), return it directly; otherwise
// walk the undo chain collecting logs until one with ts <= readTs (or the
// chain ends).
func (vs *VersionStore) Reconstruct(schema *catalog.Schema, rid heap.RID, meta heap.TupleMeta, base catalog.Tuple, readTs uint64, readerTxnID uint64) (catalog.Tuple, bool) {
	if meta.IsTemporary() {
		if (TxnStartID ^ meta.Ts) == readerTxnID {
			if meta.IsDeleted {
				return catalog.Tuple{}, false
			}
			return base, true
		}
	} else if meta.Ts <= readTs {
		if meta.IsDeleted {
			return catalog.Tuple{}, false
		}
		return base, true
	}

	link, ok := vs.GetUndoLink(rid)
	if !ok {
		return catalog.Tuple{}, false
	}

	var collected []UndoLog
	found := false
	for ok && link.Valid {
		owner, present := vs.txnLookup(link.PrevTxnID)
		if !present {
			break
		}
		owner.mu.Lock()
		if link.PrevLogIdx < 0 || link.PrevLogIdx >= len(owner.UndoLogs) {
			owner.mu.Unlock()
			break
		}
		log := owner.UndoLogs[link.PrevLogIdx]
		owner.mu.Unlock()

		collected = append(collected, log)
		if log.Ts <= readTs {
			found = true
			break
		}
		link = log.PrevVersion
	}
	// The chain ran out (invalid link, missing owner, or an out-of-range
	// index) before any log with ts <= readTs turned up: per spec §4.7 the
	// tuple did not exist as of readTs, even though logs newer than readTs
	// were collected along the way.
	if !found {
		return catalog.Tuple{}, false
	}

	// collected is newest-first; ReconstructTuple expects oldest-first.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return ReconstructTuple(schema, base, false, collected)
}
