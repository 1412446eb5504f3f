package handle

import (
	"testing"

	"github.com/daemondb/rtreestore/internal/page"
)

// fakePinner is a minimal Pinner for testing PinnedPtr in isolation from
// the real buffer pool.
type fakePinner struct {
	pins map[int64]int
}

func newFakePinner() *fakePinner { return &fakePinner{pins: make(map[int64]int)} }

func (f *fakePinner) Pin(id int64) error {
	f.pins[id]++
	return nil
}

func (f *fakePinner) UnpinPage(id int64, dirty bool) error {
	f.pins[id]--
	return nil
}

func TestPinnedPtrPinsOnConstructionAndUnpinsOnRelease(t *testing.T) {
	pinner := newFakePinner()
	pg := page.New(1)
	obj := []byte("hello")

	ptr, err := New(pinner, pg, Handle{PageID: 1}, &obj)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if pinner.pins[1] != 1 {
		t.Fatalf("expected construction to pin the page, got count %d", pinner.pins[1])
	}

	if err := ptr.Release(false); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if pinner.pins[1] != 0 {
		t.Fatalf("expected Release to unpin the page, got count %d", pinner.pins[1])
	}
}

func TestPinnedPtrReleaseIsIdempotent(t *testing.T) {
	pinner := newFakePinner()
	pg := page.New(1)
	obj := []byte("x")
	ptr, err := New(pinner, pg, Handle{PageID: 1}, &obj)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_ = ptr.Release(false)
	_ = ptr.Release(false)

	if pinner.pins[1] != 0 {
		t.Fatalf("expected double release to unpin exactly once, got count %d", pinner.pins[1])
	}
}

func TestReinterpretTransfersPin(t *testing.T) {
	pinner := newFakePinner()
	pg := page.New(1)
	obj := []byte("data")
	ptr, err := New(pinner, pg, Handle{PageID: 1}, &obj)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	type header struct{ X int }
	h := &header{X: 7}
	reinterpreted := Reinterpret(ptr, h)

	if err := ptr.Release(false); err != nil {
		t.Fatalf("release of consumed pointer should be a no-op, got error: %v", err)
	}
	if pinner.pins[1] != 1 {
		t.Fatalf("expected the pin to still be held after transfer, got count %d", pinner.pins[1])
	}

	if err := reinterpreted.Release(false); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if pinner.pins[1] != 0 {
		t.Fatalf("expected releasing the reinterpreted pointer to drop the pin, got count %d", pinner.pins[1])
	}
}

func TestCopyProducesIndependentPin(t *testing.T) {
	pinner := newFakePinner()
	pg := page.New(1)
	obj := []byte("data")
	ptr, err := New(pinner, pg, Handle{PageID: 1}, &obj)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cp, err := ptr.Copy()
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if pinner.pins[1] != 2 {
		t.Fatalf("expected Copy to add a second pin, got count %d", pinner.pins[1])
	}

	_ = ptr.Release(false)
	if pinner.pins[1] != 1 {
		t.Fatalf("expected releasing one of two pins to leave one held, got count %d", pinner.pins[1])
	}
	_ = cp.Release(false)
	if pinner.pins[1] != 0 {
		t.Fatalf("expected releasing the copy to drop the last pin, got count %d", pinner.pins[1])
	}
}
