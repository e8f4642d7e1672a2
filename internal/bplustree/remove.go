package bplustree

import (
	"encoding/binary"
	"fmt"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/page"
)

// Remove deletes key from the tree. It is not an error for key to be
// absent; the call simply has no effect.
func (t *BPlusTree) Remove(key catalog.Value) error {
	ctx := newContext()

	headerGuard, err := t.bpm.Write(t.headerID)
	if err != nil {
		return fmt.Errorf("bplustree: fetch header: %w", err)
	}
	ctx.pushHeader(headerGuard)

	root := page.ID(binary.LittleEndian.Uint64(headerGuard.Data()[0:8]))
	if root == page.InvalidID {
		ctx.releaseAll()
		return nil
	}

	id := root
	for {
		wg, err := t.bpm.Write(id)
		if err != nil {
			ctx.releaseAll()
			return fmt.Errorf("bplustree: descend to %d: %w", id, err)
		}
		ctx.push(wg)
		tp := wrapTreePage(wg.Data())

		// The root is exempt from the min-occupancy safety check; it may
		// shrink freely (the tree collapses a level when it empties out).
		isRoot := id == root
		if !isRoot && safeForDelete(tp) {
			ctx.releaseAncestors()
		}
		if tp.isLeaf() {
			break
		}
		id = t.internalFind(tp, key)
	}

	return t.removeFromLeaf(ctx, key)
}

func (t *BPlusTree) removeFromLeaf(ctx *context, key catalog.Value) error {
	leafGuard := ctx.pop()
	leaf := wrapTreePage(leafGuard.Data())
	entries := t.leafEntries(leaf)

	idx := -1
	for i, e := range entries {
		if t.comparator.Equal(e.key, key) {
			idx = i
			break
		}
	}
	if idx < 0 {
		leafGuard.Drop()
		ctx.releaseAll()
		return nil // key absent: no-op
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	t.writeLeaf(leaf, entries)

	isRoot := len(ctx.guards) == 0
	min := (t.leafMax + 1) / 2
	if isRoot || uint16(len(entries)) >= min {
		leafGuard.Drop()
		ctx.releaseAll()
		return nil
	}

	return t.fixUnderflow(ctx, leafGuard)
}

// fixUnderflow resolves an under-occupied page (leaf or internal) by
// redistributing from a sibling, or merging with one, then recursing on
// the parent. guard is the underflowed page; it has already been popped
// from ctx, so ctx's remaining stack holds only its ancestors.
func (t *BPlusTree) fixUnderflow(ctx *context, guard guardLike) error {
	if len(ctx.guards) == 0 {
		// Underflowed page is the root with nothing to redistribute from
		// or merge with. If it has shrunk to a single child, the tree
		// loses a level: the header now points directly at that child,
		// and the old internal root page is deallocated.
		root := wrapTreePage(guard.Data())
		if !root.isLeaf() && root.size() == 0 {
			entries := t.internalEntries(root)
			newRoot := entries[0].child
			if ctx.headerGuard != nil {
				binary.LittleEndian.PutUint64(ctx.headerGuard.Data()[0:8], uint64(newRoot))
			}
			oldRootID := guard.PageID()
			guard.Drop()
			ctx.releaseAll()
			if err := t.bpm.DeletePage(oldRootID); err != nil {
				return fmt.Errorf("bplustree: deallocate collapsed root %d: %w", oldRootID, err)
			}
			return nil
		}
		guard.Drop()
		ctx.releaseAll()
		return nil
	}

	parentGuard := ctx.pop()
	parent := wrapTreePage(parentGuard.Data())
	parentEntries := t.internalEntries(parent)

	myIdx := -1
	for i, e := range parentEntries {
		if e.child == guard.PageID() {
			myIdx = i
			break
		}
	}
	if myIdx < 0 {
		// Should not happen if the tree is well-formed; fail safe by
		// dropping guards rather than leaving them held.
		guard.Drop()
		parentGuard.Drop()
		ctx.releaseAll()
		return fmt.Errorf("bplustree: page %d not found among parent's children", guard.PageID())
	}

	// Prefer the left sibling first (matches the original implementation's
	// Redistribute/Coalesce preference order), then the right.
	if myIdx > 0 {
		leftID := parentEntries[myIdx-1].child
		leftGuard, err := t.bpm.Write(leftID)
		if err != nil {
			guard.Drop()
			parentGuard.Drop()
			ctx.releaseAll()
			return err
		}
		leftPage := wrapTreePage(leftGuard.Data())
		if canLendOneEntry(t, leftPage) {
			t.redistributeFromLeft(leftGuard, leftPage, guard, parentGuard, parent, myIdx)
			leftGuard.Drop()
			guard.Drop()
			parentGuard.Drop()
			ctx.releaseAll()
			return nil
		}
		leftGuard.Drop()
	}
	if myIdx < len(parentEntries)-1 {
		rightID := parentEntries[myIdx+1].child
		rightGuard, err := t.bpm.Write(rightID)
		if err != nil {
			guard.Drop()
			parentGuard.Drop()
			ctx.releaseAll()
			return err
		}
		rightPage := wrapTreePage(rightGuard.Data())
		if canLendOneEntry(t, rightPage) {
			t.redistributeFromRight(guard, rightGuard, rightPage, parent, myIdx)
			rightGuard.Drop()
			guard.Drop()
			parentGuard.Drop()
			ctx.releaseAll()
			return nil
		}
		rightGuard.Drop()
	}

	// No sibling can lend: merge. Prefer merging with the left sibling
	// when present, matching the same left-first preference. The
	// right-hand page of the pair is absorbed and its space reclaimed.
	var absorbedID page.ID
	if myIdx > 0 {
		leftID := parentEntries[myIdx-1].child
		leftGuard, err := t.bpm.Write(leftID)
		if err != nil {
			guard.Drop()
			parentGuard.Drop()
			ctx.releaseAll()
			return err
		}
		t.mergeInto(leftGuard, guard, parent, myIdx)
		leftGuard.Drop()
		absorbedID = guard.PageID()
		guard.Drop()
	} else {
		rightID := parentEntries[myIdx+1].child
		rightGuard, err := t.bpm.Write(rightID)
		if err != nil {
			guard.Drop()
			parentGuard.Drop()
			ctx.releaseAll()
			return err
		}
		t.mergeInto(guard, rightGuard, parent, myIdx+1)
		absorbedID = rightGuard.PageID()
		rightGuard.Drop()
		guard.Drop()
	}
	if err := t.bpm.DeletePage(absorbedID); err != nil {
		parentGuard.Drop()
		ctx.releaseAll()
		return fmt.Errorf("bplustree: deallocate merged page %d: %w", absorbedID, err)
	}

	// The merge removed one (key, child) pair from parent; recurse upward
	// if the parent itself now underflows.
	parentEntries = t.internalEntries(parent)
	isParentRoot := len(ctx.guards) == 0
	min := (t.internalMax + 1) / 2
	// A root parent left with zero keys falls through to fixUnderflow, whose
	// root branch collapses it into its single remaining child.
	if (isParentRoot && len(parentEntries) > 1) || (!isParentRoot && uint16(len(parentEntries)-1) >= min) {
		parentGuard.Drop()
		ctx.releaseAll()
		return nil
	}
	return t.fixUnderflow(ctx, parentGuard)
}

// guardLike is implemented by *buffer.WritePageGuard; used so
// fixUnderflow works uniformly over leaf and internal guards.
type guardLike interface {
	Data() *page.Bytes
	PageID() page.ID
	Drop()
}

func canLendOneEntry(t *BPlusTree, tp *treePage) bool {
	if tp.isLeaf() {
		min := (t.leafMax + 1) / 2
		return tp.size() > min
	}
	min := (t.internalMax + 1) / 2
	return tp.size() > min
}

func (t *BPlusTree) redistributeFromLeft(leftGuard guardLike, left *treePage, guard guardLike, parentGuard guardLike, parent *treePage, myIdx int) {
	parentEntries := t.internalEntries(parent)
	if left.isLeaf() {
		leftEntries := t.leafEntries(left)
		borrowed := leftEntries[len(leftEntries)-1]
		t.writeLeaf(left, leftEntries[:len(leftEntries)-1])

		cur := wrapTreePage(guard.Data())
		curEntries := t.leafEntries(cur)
		curEntries = append([]leafEntry{borrowed}, curEntries...)
		t.writeLeaf(cur, curEntries)

		parentEntries[myIdx].key = borrowed.key
		t.writeInternal(parent, parentEntries)
		return
	}

	leftEntries := t.internalEntries(left)
	borrowed := leftEntries[len(leftEntries)-1]
	t.writeInternal(left, leftEntries[:len(leftEntries)-1])

	cur := wrapTreePage(guard.Data())
	curEntries := t.internalEntries(cur)
	oldSeparator := parentEntries[myIdx].key
	curEntries = append([]internalEntry{{key: oldSeparator, hasKey: false, child: borrowed.child}}, curEntries...)
	curEntries[0].hasKey = false
	if len(curEntries) > 1 {
		curEntries[1].key = oldSeparator
		curEntries[1].hasKey = true
	}
	t.writeInternal(cur, curEntries)

	parentEntries[myIdx].key = borrowed.key
	t.writeInternal(parent, parentEntries)
}

func (t *BPlusTree) redistributeFromRight(guard guardLike, rightGuard guardLike, right *treePage, parent *treePage, myIdx int) {
	parentEntries := t.internalEntries(parent)
	if right.isLeaf() {
		rightEntries := t.leafEntries(right)
		borrowed := rightEntries[0]
		t.writeLeaf(right, rightEntries[1:])

		cur := wrapTreePage(guard.Data())
		curEntries := t.leafEntries(cur)
		curEntries = append(curEntries, borrowed)
		t.writeLeaf(cur, curEntries)

		if len(rightEntries) > 1 {
			parentEntries[myIdx+1].key = rightEntries[1].key
		}
		t.writeInternal(parent, parentEntries)
		return
	}

	rightEntries := t.internalEntries(right)
	borrowed := rightEntries[0]
	oldSeparator := parentEntries[myIdx+1].key
	t.writeInternal(right, withoutFirstKeyed(rightEntries))

	cur := wrapTreePage(guard.Data())
	curEntries := t.internalEntries(cur)
	curEntries = append(curEntries, internalEntry{key: oldSeparator, hasKey: true, child: borrowed.child})
	t.writeInternal(cur, curEntries)

	parentEntries[myIdx+1].key = rightEntries[1].key
	t.writeInternal(parent, parentEntries)
}

// withoutFirstKeyed drops an internal page's slot-0 child (now relocated
// to the left sibling) and promotes slot 1 to be the new keyless slot 0.
func withoutFirstKeyed(entries []internalEntry) []internalEntry {
	out := make([]internalEntry, len(entries)-1)
	copy(out, entries[1:])
	out[0].hasKey = false
	return out
}

// mergeInto folds right's entries into left, then removes right's
// (separator, child) pair from parent. rightIdx is right's position among
// parent's children.
func (t *BPlusTree) mergeInto(leftGuard guardLike, rightGuard guardLike, parent *treePage, rightIdx int) {
	left := wrapTreePage(leftGuard.Data())
	right := wrapTreePage(rightGuard.Data())
	parentEntries := t.internalEntries(parent)

	if left.isLeaf() {
		merged := append(t.leafEntries(left), t.leafEntries(right)...)
		t.writeLeaf(left, merged)
		left.setNextPageID(right.nextPageID())
	} else {
		separator := parentEntries[rightIdx].key
		rightEntries := t.internalEntries(right)
		rightEntries[0] = internalEntry{key: separator, hasKey: true, child: rightEntries[0].child}
		merged := append(t.internalEntries(left), rightEntries...)
		t.writeInternal(left, merged)
	}

	parentEntries = append(parentEntries[:rightIdx], parentEntries[rightIdx+1:]...)
	t.writeInternal(parent, parentEntries)
}
