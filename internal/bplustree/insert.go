package bplustree

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/latchwood/latchdb/internal/catalog"
	"github.com/latchwood/latchdb/internal/heap"
	"github.com/latchwood/latchdb/internal/page"
)

// Insert adds (key, rid) to the tree. Returns false if key already exists
// (duplicates are rejected, per spec).
func (t *BPlusTree) Insert(key catalog.Value, rid heap.RID) (bool, error) {
	ctx := newContext()

	headerGuard, err := t.bpm.Write(t.headerID)
	if err != nil {
		return false, fmt.Errorf("bplustree: fetch header: %w", err)
	}
	ctx.pushHeader(headerGuard)

	root := page.ID(binary.LittleEndian.Uint64(headerGuard.Data()[0:8]))
	if root == page.InvalidID {
		leafWG, err := t.bpm.NewPageGuarded()
		if err != nil {
			ctx.releaseAll()
			return false, fmt.Errorf("bplustree: allocate first leaf: %w", err)
		}
		leaf := initTreePage(leafWG.Data(), pageTypeLeaf, t.leafMax)
		t.writeLeaf(leaf, []leafEntry{{key: key, rid: rid}})
		id := leafWG.PageID()
		leafWG.Drop()
		binary.LittleEndian.PutUint64(headerGuard.Data()[0:8], uint64(id))
		ctx.releaseAll()
		return true, nil
	}

	// Descend, crabbing: release ancestors once a child proves safe for
	// insertion (it won't need to split).
	id := root
	for {
		wg, err := t.bpm.Write(id)
		if err != nil {
			ctx.releaseAll()
			return false, fmt.Errorf("bplustree: descend to %d: %w", id, err)
		}
		ctx.push(wg)
		tp := wrapTreePage(wg.Data())

		if safeForInsert(tp) {
			ctx.releaseAncestors()
		}
		if tp.isLeaf() {
			break
		}
		id = t.internalFind(tp, key)
	}

	leafGuard := ctx.leaf()
	leaf := wrapTreePage(leafGuard.Data())
	entries := t.leafEntries(leaf)

	insertAt := sort.Search(len(entries), func(i int) bool { return !t.comparator.Less(entries[i].key, key) })
	if insertAt < len(entries) && t.comparator.Equal(entries[insertAt].key, key) {
		ctx.releaseAll()
		return false, nil
	}
	entries = append(entries, leafEntry{})
	copy(entries[insertAt+1:], entries[insertAt:])
	entries[insertAt] = leafEntry{key: key, rid: rid}

	if uint16(len(entries)) <= t.leafMax {
		t.writeLeaf(leaf, entries)
		ctx.releaseAll()
		return true, nil
	}

	// Split: left keeps the first half (including original page), right is
	// a freshly allocated leaf holding the rest; right's first key is
	// pushed up to the parent as the new separator.
	mid := (len(entries) + 1) / 2
	rightWG, err := t.bpm.NewPageGuarded()
	if err != nil {
		ctx.releaseAll()
		return false, fmt.Errorf("bplustree: allocate split leaf: %w", err)
	}
	rightPage := initTreePage(rightWG.Data(), pageTypeLeaf, t.leafMax)
	t.writeLeaf(rightPage, entries[mid:])
	rightPage.setNextPageID(leaf.nextPageID())
	rightID := rightWG.PageID()
	rightWG.Drop()

	t.writeLeaf(leaf, entries[:mid])
	leaf.setNextPageID(rightID)
	separator := entries[mid].key

	ctx.pop() // leaf guard, done with it
	return t.insertIntoParent(ctx, leafGuard.PageID(), separator, rightID)
}

// insertIntoParent pushes (separator, rightID) into the parent of leftID,
// recursing upward through splits as needed. ctx's remaining stack (after
// the child has already been popped) holds ancestor guards, innermost
// last.
func (t *BPlusTree) insertIntoParent(ctx *context, leftID page.ID, separator catalog.Value, rightID page.ID) (bool, error) {
	if len(ctx.guards) == 0 {
		// left was the root: allocate a new root internal page.
		rootWG, err := t.bpm.NewPageGuarded()
		if err != nil {
			ctx.releaseAll()
			return false, fmt.Errorf("bplustree: allocate new root: %w", err)
		}
		rootPage := initTreePage(rootWG.Data(), pageTypeInternal, t.internalMax)
		t.writeInternal(rootPage, []internalEntry{
			{hasKey: false, child: leftID},
			{key: separator, hasKey: true, child: rightID},
		})
		rootID := rootWG.PageID()
		rootWG.Drop()
		binary.LittleEndian.PutUint64(ctx.headerGuard.Data()[0:8], uint64(rootID))
		ctx.releaseAll()
		return true, nil
	}

	parentGuard := ctx.pop()
	parent := wrapTreePage(parentGuard.Data())
	entries := t.internalEntries(parent)

	insertAt := 1
	for insertAt < len(entries) && !t.comparator.Less(separator, entries[insertAt].key) {
		insertAt++
	}
	entries = append(entries, internalEntry{})
	copy(entries[insertAt+1:], entries[insertAt:])
	entries[insertAt] = internalEntry{key: separator, hasKey: true, child: rightID}

	if uint16(len(entries)-1) <= t.internalMax {
		t.writeInternal(parent, entries)
		parentGuard.Drop()
		ctx.releaseAll()
		return true, nil
	}

	// Split internal page: push the median key up (it is not duplicated
	// into either child, unlike a leaf split).
	mid := len(entries) / 2
	medianKey := entries[mid].key

	rightWG, err := t.bpm.NewPageGuarded()
	if err != nil {
		parentGuard.Drop()
		ctx.releaseAll()
		return false, fmt.Errorf("bplustree: allocate split internal: %w", err)
	}
	rightPage := initTreePage(rightWG.Data(), pageTypeInternal, t.internalMax)
	rightEntries := make([]internalEntry, len(entries)-mid)
	copy(rightEntries, entries[mid:])
	rightEntries[0].hasKey = false // slot 0 of the new right page carries no key
	t.writeInternal(rightPage, rightEntries)
	rightID := rightWG.PageID()
	rightWG.Drop()

	t.writeInternal(parent, entries[:mid])
	parentID := parentGuard.PageID()
	parentGuard.Drop()

	return t.insertIntoParent(ctx, parentID, medianKey, rightID)
}
