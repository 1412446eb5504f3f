package bufferpool

import "github.com/daemondb/rtreestore/internal/page"

// Stats is a point-in-time snapshot of pool occupancy, grounded on
// storage_engine/bufferpool/helpers.go's BufferPoolStats.
type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}

// GetStats reports current pool occupancy.
func (p *Pool) GetStats() Stats {
	stats := Stats{
		TotalPages: len(p.pages),
		Capacity:   p.capacity,
	}
	for _, pg := range p.pages {
		if pg.PinCount > 0 {
			stats.PinnedPages++
		}
		if pg.Dirty {
			stats.DirtyPages++
		}
	}
	return stats
}

// Reset flushes and clears the pool. Used by tests.
func (p *Pool) Reset() error {
	if err := p.WritebackAllPages(); err != nil {
		return err
	}
	p.pages = make(map[int64]*page.Page, p.capacity)
	p.accessOrder = p.accessOrder[:0]
	return nil
}
