// Package bufferpool is a bounded-capacity cache of Pages over a single
// backing file, with explicit pinning, LRU-ish eviction, and write-back.
//
// Grounded on storage_engine/bufferpool/bufferpool.go (teacher): same
// FetchPage/NewPage/UnpinPage/FlushAllPages/GetStats shape and the same
// accessOrder-slice LRU approximation. The teacher's sync.Mutex is dropped
// throughout — this module's execution model (spec §5) is single-threaded
// by design, not by omission.
package bufferpool

import (
	"fmt"
	"io"
	"os"

	"github.com/daemondb/rtreestore/internal/diskio"
	"github.com/daemondb/rtreestore/internal/page"
)

// Pool is a bounded cache of resident pages backed by a single file.
type Pool struct {
	pages       map[int64]*page.Page
	accessOrder []int64 // least-recently-used at the front
	capacity    int
	disk        *diskio.Manager

	// Verbose gates the pool's [BufferPool] trace lines. Off by default —
	// a library used inside benchmarks and tests alike should not print
	// unconditionally.
	Verbose bool
	trace   io.Writer
}

// New creates a pool of the given page capacity over disk.
func New(capacity int, disk *diskio.Manager) *Pool {
	return &Pool{
		pages:       make(map[int64]*page.Page, capacity),
		accessOrder: make([]int64, 0, capacity),
		capacity:    capacity,
		disk:        disk,
		trace:       os.Stderr,
	}
}

// NewWithBudget derives a page capacity from a byte budget, per spec §4.1
// (C = memory_budget / PAGE_SIZE).
func NewWithBudget(memoryBudget int64, disk *diskio.Manager) *Pool {
	capacity := int(memoryBudget / page.Size)
	if capacity < 1 {
		capacity = 1
	}
	return New(capacity, disk)
}

func (p *Pool) logf(format string, args ...any) {
	if p.Verbose {
		fmt.Fprintf(p.trace, format, args...)
	}
}

// GetPage resolves id to a resident page. Pin count is left untouched —
// per spec §4.1 pinning is a separate explicit step (Pin), normally taken
// immediately by the caller via handle.PinnedPtr's constructor. If not
// resident, a victim is evicted (writing it back if dirty) to make room,
// the page is read from disk (or zero-filled if it has never existed),
// and installed unpinned.
//
// Returns an error when every slot is pinned and no victim can be found,
// or when writing back the victim or reading the page from disk fails.
func (p *Pool) GetPage(id int64) (*page.Page, error) {
	if pg, ok := p.pages[id]; ok {
		p.logf("[BufferPool] HIT  pageID=%d pinCount=%d\n", id, pg.PinCount)
		p.touch(id)
		return pg, nil
	}

	p.logf("[BufferPool] MISS pageID=%d — loading from disk\n", id)
	if err := p.ensureRoom(); err != nil {
		return nil, err
	}

	pg, err := p.disk.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: failed to read page %d: %w", id, err)
	}
	p.install(pg)
	return pg, nil
}

// NewPage allocates a brand-new page id past the current end of file and
// installs it resident, dirty, and unpinned.
func (p *Pool) NewPage(id int64) (*page.Page, error) {
	if err := p.ensureRoom(); err != nil {
		return nil, err
	}
	pg := page.New(id)
	pg.Dirty = true
	p.install(pg)
	return pg, nil
}

// Pin increments a resident page's pin count.
func (p *Pool) Pin(id int64) error {
	pg, ok := p.pages[id]
	if !ok {
		return fmt.Errorf("bufferpool: page %d not resident", id)
	}
	pg.PinCount++
	return nil
}

// UnpinPage decrements a resident page's pin count and optionally marks it
// dirty. Unpinning below zero is a programming error and is reported as
// such rather than silently clamped.
func (p *Pool) UnpinPage(id int64, dirty bool) error {
	pg, ok := p.pages[id]
	if !ok {
		return fmt.Errorf("bufferpool: page %d not resident", id)
	}
	if pg.PinCount <= 0 {
		return fmt.Errorf("bufferpool: unpin of page %d with pin count %d", id, pg.PinCount)
	}
	pg.PinCount--
	if dirty {
		pg.Dirty = true
	}
	return nil
}

// MarkDirty sets the dirty bit on a resident page without touching its pin
// count.
func (p *Pool) MarkDirty(id int64) error {
	pg, ok := p.pages[id]
	if !ok {
		return fmt.Errorf("bufferpool: page %d not resident", id)
	}
	pg.Dirty = true
	return nil
}

// WritebackAllPages synchronously writes every dirty resident page. After
// it returns, no resident page is dirty.
func (p *Pool) WritebackAllPages() error {
	p.logf("[BufferPool] WritebackAllPages — pool size=%d\n", len(p.pages))
	for id, pg := range p.pages {
		if !pg.Dirty {
			continue
		}
		if err := p.disk.WritePage(pg); err != nil {
			return fmt.Errorf("bufferpool: failed to flush page %d: %w", id, err)
		}
		pg.Dirty = false
	}
	return nil
}

// GetPreexistingPageCount probes the backing file's size.
func (p *Pool) GetPreexistingPageCount() (int64, error) {
	return p.disk.PreexistingPageCount()
}

// Capacity returns the pool's page capacity.
func (p *Pool) Capacity() int { return p.capacity }

// Size returns the number of currently resident pages.
func (p *Pool) Size() int { return len(p.pages) }

// ensureRoom evicts one unpinned page if the pool is at capacity.
func (p *Pool) ensureRoom() error {
	if len(p.pages) < p.capacity {
		return nil
	}
	return p.evictOne()
}

// install adds a freshly-resolved page to the pool, unpinned.
func (p *Pool) install(pg *page.Page) {
	p.pages[pg.ID] = pg
	p.touch(pg.ID)
}

// evictOne evicts the least-recently-used unpinned page, writing it back
// first if dirty. Fails if every resident page is pinned.
func (p *Pool) evictOne() error {
	for i := 0; i < len(p.accessOrder); i++ {
		id := p.accessOrder[i]
		pg, ok := p.pages[id]
		if !ok {
			p.accessOrder = append(p.accessOrder[:i], p.accessOrder[i+1:]...)
			i--
			continue
		}
		if pg.PinCount > 0 {
			continue
		}

		p.logf("[BufferPool] EVICT pageID=%d dirty=%v\n", id, pg.Dirty)
		if pg.Dirty {
			if err := p.disk.WritePage(pg); err != nil {
				return fmt.Errorf("bufferpool: failed to write back page %d during eviction: %w", id, err)
			}
			pg.Dirty = false
		}

		delete(p.pages, id)
		p.accessOrder = append(p.accessOrder[:i], p.accessOrder[i+1:]...)
		return nil
	}
	return fmt.Errorf("bufferpool: all %d pages are pinned, cannot evict", p.capacity)
}

// touch moves id to the most-recently-used end of accessOrder.
func (p *Pool) touch(id int64) {
	for i, v := range p.accessOrder {
		if v == id {
			p.accessOrder = append(p.accessOrder[:i], p.accessOrder[i+1:]...)
			break
		}
	}
	p.accessOrder = append(p.accessOrder, id)
}
