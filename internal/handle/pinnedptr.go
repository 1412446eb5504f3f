package handle

import (
	"fmt"

	"github.com/daemondb/rtreestore/internal/bufferpool"
	"github.com/daemondb/rtreestore/internal/page"
)

// Pinner is the subset of bufferpool.Pool a PinnedPtr needs. Defined here
// rather than importing the concrete type directly into every call site,
// so tests can fake it.
type Pinner interface {
	Pin(id int64) error
	UnpinPage(id int64, dirty bool) error
}

var _ Pinner = (*bufferpool.Pool)(nil)

// PinnedPtr is a scoped capability: while it lives it holds +1 on the pin
// count of its page, guaranteeing the page stays resident and Object()
// remains a valid view onto live data. It must be released exactly once
// via Release — Go has no destructors, so unlike the teacher's C++-shaped
// ancestor this is not automatic; every construction site pairs one
// New/Copy with one deferred Release, mirroring the teacher's own
// `defer bufferPool.UnpinPage(...)` discipline (see DESIGN.md).
type PinnedPtr[T any] struct {
	pool     Pinner
	pg       *page.Page
	h        Handle
	obj      *T
	released bool
}

// New constructs a pinned pointer over obj, which lives inside pg at h,
// pinning pg's page.
func New[T any](pool Pinner, pg *page.Page, h Handle, obj *T) (*PinnedPtr[T], error) {
	if obj == nil {
		return &PinnedPtr[T]{pool: pool, h: Null}, nil
	}
	if err := pool.Pin(pg.ID); err != nil {
		return nil, fmt.Errorf("handle: pin page %d: %w", pg.ID, err)
	}
	return &PinnedPtr[T]{pool: pool, pg: pg, h: h, obj: obj}, nil
}

// IsNull reports whether the pointer addresses nothing.
func (p *PinnedPtr[T]) IsNull() bool {
	return p == nil || p.obj == nil
}

// Object returns the typed in-memory address of the pinned object. Only
// valid while the pointer is live (i.e. before Release).
func (p *PinnedPtr[T]) Object() *T {
	if p == nil {
		return nil
	}
	return p.obj
}

// Handle returns the stable handle this pointer was constructed from.
func (p *PinnedPtr[T]) Handle() Handle {
	if p == nil {
		return Null
	}
	return p.h
}

// Page returns the underlying resident page.
func (p *PinnedPtr[T]) Page() *page.Page {
	if p == nil {
		return nil
	}
	return p.pg
}

// Copy pins once more and returns a second independent pointer to the
// same object. Both must be released independently.
func (p *PinnedPtr[T]) Copy() (*PinnedPtr[T], error) {
	if p.IsNull() {
		return &PinnedPtr[T]{pool: p.pool, h: Null}, nil
	}
	if err := p.pool.Pin(p.pg.ID); err != nil {
		return nil, fmt.Errorf("handle: pin page %d: %w", p.pg.ID, err)
	}
	return &PinnedPtr[T]{pool: p.pool, pg: p.pg, h: p.h, obj: p.obj}, nil
}

// Release drops this pointer's pin. dirty marks the underlying page dirty
// as part of the same call, matching bufferpool.UnpinPage's contract.
// Releasing twice, or releasing a null pointer, is a no-op.
func (p *PinnedPtr[T]) Release(dirty bool) error {
	if p == nil || p.IsNull() || p.released {
		return nil
	}
	p.released = true
	if err := p.pool.UnpinPage(p.pg.ID, dirty); err != nil {
		return fmt.Errorf("handle: unpin page %d: %w", p.pg.ID, err)
	}
	return nil
}

// Equal compares two pointers by the address of the object they carry;
// two null pointers are equal.
func (p *PinnedPtr[T]) Equal(o *PinnedPtr[T]) bool {
	if p.IsNull() || o.IsNull() {
		return p.IsNull() && o.IsNull()
	}
	return p.obj == o.obj
}

// Reinterpret transfers p's live pin into a newly-typed pinned pointer
// over obj, which the caller asserts is validly addressed by the same
// page and handle (e.g. a polygon blob prefix reinterpreted as its header
// type). p is consumed: calling Release on p after this is a no-op, and
// the pin now lives on the returned pointer.
func Reinterpret[T, U any](p *PinnedPtr[T], obj *U) *PinnedPtr[U] {
	if p.IsNull() {
		return &PinnedPtr[U]{pool: p.pool, h: Null}
	}
	p.released = true // pin ownership transfers, not released
	return &PinnedPtr[U]{pool: p.pool, pg: p.pg, h: p.h, obj: obj}
}
