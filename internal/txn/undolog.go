package txn

import (
	"github.com/latchwood/latchdb/internal/catalog"
)

// GenerateNewUndoLog builds the first undo log a transaction records for
// rid: a partial pre-image of the columns oldTuple had before this write,
// linked to whatever undo chain already existed for rid (prevLink).
// Deletion captures every column (oldIsDeleted false -> true transition);
// insertion captures none (the log only marks "did not exist").
func GenerateNewUndoLog(schema *catalog.Schema, oldTuple catalog.Tuple, oldIsDeleted, newIsDeleted bool, ts uint64, prevLink UndoLink) UndoLog {
	n := schema.ColumnCount()
	modified := make([]bool, n)
	partial := make([]catalog.Value, 0, n)

	switch {
	case !oldIsDeleted && newIsDeleted:
		// Full deletion: the undo log must be able to resurrect every
		// column.
		for i := range modified {
			modified[i] = true
			partial = append(partial, oldTuple.Values[i])
		}
		return UndoLog{IsDeleted: false, ModifiedFields: modified, PartialTuple: partial, Ts: ts, PrevVersion: prevLink}
	case oldIsDeleted && !newIsDeleted:
		// Insert-into-tombstone: the prior state was "deleted", nothing to
		// capture but the is_deleted flag itself.
		return UndoLog{IsDeleted: true, ModifiedFields: modified, PartialTuple: partial, Ts: ts, PrevVersion: prevLink}
	default:
		// Ordinary update: no column is captured here; NewUndoLogForUpdate
		// builds the pre-image for that case.
		return UndoLog{IsDeleted: oldIsDeleted, ModifiedFields: modified, PartialTuple: partial, Ts: ts, PrevVersion: prevLink}
	}
}

// NewUndoLogForUpdate builds the pre-image undo log for an ordinary
// (non-PK-touching) update: columns whose value the update is about to
// change are captured from oldTuple.
func NewUndoLogForUpdate(schema *catalog.Schema, oldTuple, newTuple catalog.Tuple, ts uint64, prevLink UndoLink) UndoLog {
	n := schema.ColumnCount()
	modified := make([]bool, n)
	partial := make([]catalog.Value, 0, n)
	for i := 0; i < n; i++ {
		if !oldTuple.Values[i].CompareEqual(newTuple.Values[i]) {
			modified[i] = true
			partial = append(partial, oldTuple.Values[i])
		}
	}
	return UndoLog{ModifiedFields: modified, PartialTuple: partial, Ts: ts, PrevVersion: prevLink}
}

// MergeUndoLog folds a second write's pre-image into an already-existing
// undo log for the same RID within the same transaction (GenerateUpdatedUndoLog):
// a column already captured keeps its original pre-txn value; a
// newly-touched column's pre-image is taken from oldTuple. PartialTuple
// stays in column order, the order ReconstructTuple reads it in.
func MergeUndoLog(existing UndoLog, schema *catalog.Schema, oldTuple, newTuple catalog.Tuple) UndoLog {
	n := schema.ColumnCount()
	modified := append([]bool(nil), existing.ModifiedFields...)
	partial := make([]catalog.Value, 0, n)

	partialIdx := 0
	for i := 0; i < n; i++ {
		if modified[i] {
			partial = append(partial, existing.PartialTuple[partialIdx])
			partialIdx++
		} else if !oldTuple.Values[i].CompareEqual(newTuple.Values[i]) {
			modified[i] = true
			partial = append(partial, oldTuple.Values[i])
		}
	}
	return UndoLog{IsDeleted: existing.IsDeleted, ModifiedFields: modified, PartialTuple: partial, Ts: existing.Ts, PrevVersion: existing.PrevVersion}
}

// ReconstructTuple resolves the version of (base, meta) visible to a
// transaction reading at readTs, applying undo logs oldest-first as
// supplied by a VersionStore. Returns ok=false if the tuple did not exist
// as of readTs (chain exhausted without finding a visible version, or the
// most recent applicable version is a deletion).
func ReconstructTuple(schema *catalog.Schema, base catalog.Tuple, baseIsDeleted bool, logs []UndoLog) (catalog.Tuple, bool) {
	if len(logs) == 0 {
		if baseIsDeleted {
			return catalog.Tuple{}, false
		}
		return base, true
	}

	values := make([]catalog.Value, schema.ColumnCount())
	copy(values, base.Values)
	isDeleted := baseIsDeleted
	// Logs are supplied oldest-first by the caller (VersionStore walks the
	// chain newest-first and reverses before calling this), so applying
	// them in order reproduces the state as of the oldest collected log.
	for _, log := range logs {
		isDeleted = log.IsDeleted
		pIdx := 0
		for col, touched := range log.ModifiedFields {
			if touched {
				values[col] = log.PartialTuple[pIdx]
				pIdx++
			}
		}
	}
	if isDeleted {
		return catalog.Tuple{}, false
	}
	return catalog.NewTuple(values), true
}
