package allocator

import (
	"path/filepath"
	"testing"

	"github.com/daemondb/rtreestore/internal/bufferpool"
	"github.com/daemondb/rtreestore/internal/diskio"
	"github.com/daemondb/rtreestore/internal/handle"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	dir := t.TempDir()
	disk, err := diskio.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	pool := bufferpool.New(8, disk)
	alloc, err := New(pool, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return alloc
}

// TestConsecutiveAllocFree verifies spec §8's "allocate A then B, free A,
// free B" scenario coalesces into a single free-list entry spanning both.
func TestConsecutiveAllocFree(t *testing.T) {
	alloc := newTestAllocator(t)

	bufA, hA, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc A: %v", err)
	}
	if err := bufA.Release(true); err != nil {
		t.Fatalf("release A: %v", err)
	}

	bufB, hB, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc B: %v", err)
	}
	if err := bufB.Release(true); err != nil {
		t.Fatalf("release B: %v", err)
	}

	if err := alloc.Free(hA, 100); err != nil {
		t.Fatalf("free A: %v", err)
	}
	if err := alloc.Free(hB, 100); err != nil {
		t.Fatalf("free B: %v", err)
	}

	if got := alloc.FreeListLen(); got != 1 {
		t.Fatalf("expected consecutive frees to coalesce into 1 entry, got %d", got)
	}
	if got := alloc.FreeListEntrySize(0); got != 200 {
		t.Fatalf("expected coalesced entry size 200, got %d", got)
	}
}

// TestNonAdjacentFreesDoNotCoalesce ensures two frees separated by a still-
// live allocation remain distinct free-list entries.
func TestNonAdjacentFreesDoNotCoalesce(t *testing.T) {
	alloc := newTestAllocator(t)

	bufA, hA, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc A: %v", err)
	}
	_ = bufA.Release(true)

	bufB, _, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc B: %v", err)
	}
	_ = bufB.Release(true)

	bufC, hC, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc C: %v", err)
	}
	_ = bufC.Release(true)

	if err := alloc.Free(hA, 100); err != nil {
		t.Fatalf("free A: %v", err)
	}
	if err := alloc.Free(hC, 100); err != nil {
		t.Fatalf("free C: %v", err)
	}

	if got := alloc.FreeListLen(); got != 2 {
		t.Fatalf("expected non-adjacent frees to stay separate, got %d entries", got)
	}
}

// TestLargeRemainderReuse checks that freeing a large block and then
// requesting a smaller size reuses the free entry and tracks the leftover
// remainder, per spec §4.3 step 2's remainder-tracking clause.
func TestLargeRemainderReuse(t *testing.T) {
	alloc := newTestAllocator(t)

	buf, h, err := alloc.CreateNewTreeNode(500, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	_ = buf.Release(true)

	if err := alloc.Free(h, 500); err != nil {
		t.Fatalf("free: %v", err)
	}
	if got := alloc.FreeListLen(); got != 1 {
		t.Fatalf("expected 1 free entry, got %d", got)
	}

	buf2, h2, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("realloc: %v", err)
	}
	_ = buf2.Release(true)

	if !h2.Equal(h) {
		t.Fatalf("expected reuse to reissue the freed handle, got %+v want %+v", h2, h)
	}
	if got := alloc.FreeListLen(); got != 1 {
		t.Fatalf("expected 400-byte remainder to be tracked, got %d entries", got)
	}
	if got := alloc.FreeListEntrySize(0); got != 400 {
		t.Fatalf("expected remainder size 400, got %d", got)
	}
}

// TestSmallRemainderAbandoned checks that a remainder at or below tMin is
// not tracked — it is lost to internal fragmentation rather than kept as
// an unusably small free-list entry.
func TestSmallRemainderAbandoned(t *testing.T) {
	alloc := newTestAllocator(t)

	size := 116 // 100 (request) + 16 (tMin) == remainder exactly at threshold
	buf, h, err := alloc.CreateNewTreeNode(size, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	_ = buf.Release(true)
	if err := alloc.Free(h, size); err != nil {
		t.Fatalf("free: %v", err)
	}

	buf2, _, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("realloc: %v", err)
	}
	_ = buf2.Release(true)

	if got := alloc.FreeListLen(); got != 0 {
		t.Fatalf("expected remainder at tMin to be abandoned, got %d entries", got)
	}
}

// TestPageOverflowAdvancesPage checks that a request too large for the
// remaining space in the current page triggers a fresh page rather than
// an error, donating the old tail to the free-list if it clears tMin.
func TestPageOverflowAdvancesPage(t *testing.T) {
	alloc := newTestAllocator(t)

	chunk := 2000
	for i := 0; i < 2; i++ {
		buf, _, err := alloc.CreateNewTreeNode(chunk, handle.TypeLeafNode)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		_ = buf.Release(true)
	}
	firstPage := alloc.CurrentPage()

	buf, _, err := alloc.CreateNewTreeNode(chunk, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc triggering page advance: %v", err)
	}
	_ = buf.Release(true)

	if alloc.CurrentPage() == firstPage {
		t.Fatalf("expected allocator to advance to a new page")
	}
	if got := alloc.FreeListLen(); got != 1 {
		t.Fatalf("expected the old page's tail to be donated as 1 free entry, got %d", got)
	}
}

// TestDoubleFreeDetected exercises the DebugAssertions double-free guard.
func TestDoubleFreeDetected(t *testing.T) {
	alloc := newTestAllocator(t)

	buf, h, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	_ = buf.Release(true)

	if err := alloc.Free(h, 100); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := alloc.Free(h, 100); err == nil {
		t.Fatalf("expected double free to be rejected")
	}
}

// TestPagedOutSurvival verifies that a node's handle still resolves
// correctly after enough intervening allocations evict its page from the
// buffer pool and bring it back.
func TestPagedOutSurvival(t *testing.T) {
	dir := t.TempDir()
	disk, err := diskio.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	defer disk.Close()

	pool := bufferpool.New(2, disk)
	alloc, err := New(pool, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buf, h, err := alloc.CreateNewTreeNode(100, handle.TypeLeafNode)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	copy((*buf.Object())[:5], []byte("hello"))
	if err := buf.Release(true); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Force enough page churn to evict h's page from a 2-page pool.
	for i := 0; i < 10; i++ {
		b, _, err := alloc.CreateNewTreeNode(2000, handle.TypeLeafNode)
		if err != nil {
			t.Fatalf("churn alloc %d: %v", i, err)
		}
		_ = b.Release(true)
	}

	back, err := alloc.GetTreeNode(h, 100)
	if err != nil {
		t.Fatalf("GetTreeNode after eviction: %v", err)
	}
	defer back.Release(false)

	if got := string((*back.Object())[:5]); got != "hello" {
		t.Fatalf("data did not survive paging out: got %q", got)
	}
}
