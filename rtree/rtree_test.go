package rtree

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/allocator"
	"github.com/daemondb/rtreestore/internal/bufferpool"
	"github.com/daemondb/rtreestore/internal/diskio"
	"github.com/daemondb/rtreestore/internal/handle"
)

func newTestTree(t *testing.T, cfg Config) *Tree {
	t.Helper()
	disk, err := diskio.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	pool := bufferpool.New(64, disk)
	tMin := geom.UnboundedPolygonSize(cfg.MaxRectangleCount)
	alloc, err := allocator.New(pool, tMin)
	if err != nil {
		t.Fatalf("allocator.New: %v", err)
	}
	return Open(alloc, cfg, handle.Null)
}

func TestInsertThenSearchPointFindsIt(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())

	pt := geom.Point{3, 4}
	if err := tree.Insert(pt); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := tree.SearchPoint(pt)
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 match, got %d", len(got))
	}
}

func TestInsertManyTriggersSplitAndStaysValid(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())

	rng := rand.New(rand.NewSource(1))
	const n = 500
	pts := make([]geom.Point, n)
	for i := range pts {
		pts[i] = geom.Point{rng.Float64() * 1000, rng.Float64() * 1000}
		if err := tree.Insert(pts[i]); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after %d inserts: %v", n, err)
	}

	height, err := tree.Height()
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	if height == 0 {
		t.Fatalf("expected tree to have grown beyond a single leaf root after %d inserts", n)
	}

	for i, pt := range pts {
		got, err := tree.SearchPoint(pt)
		if err != nil {
			t.Fatalf("SearchPoint #%d: %v", i, err)
		}
		if len(got) == 0 {
			t.Fatalf("point #%d %v missing after bulk insert", i, pt)
		}
	}
}

func TestDeleteRemovesPointAndKeepsOthers(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())

	pts := []geom.Point{{1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}}
	for _, pt := range pts {
		if err := tree.Insert(pt); err != nil {
			t.Fatalf("Insert %v: %v", pt, err)
		}
	}

	ok, err := tree.Delete(geom.Point{3, 3})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Fatalf("expected Delete to report the point was present")
	}

	got, err := tree.SearchPoint(geom.Point{3, 3})
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected deleted point to be gone")
	}

	for _, pt := range []geom.Point{{1, 1}, {2, 2}, {4, 4}, {5, 5}} {
		got, err := tree.SearchPoint(pt)
		if err != nil {
			t.Fatalf("SearchPoint %v: %v", pt, err)
		}
		if len(got) != 1 {
			t.Fatalf("expected surviving point %v to remain", pt)
		}
	}

	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after delete: %v", err)
	}
}

func TestDeleteMissingPointReportsFalse(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	if err := tree.Insert(geom.Point{1, 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := tree.Delete(geom.Point{99, 99})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Fatalf("expected Delete of an absent point to report false")
	}
}

func TestBulkInsertDeleteEverythingLeavesTreeEmpty(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())

	rng := rand.New(rand.NewSource(2))
	const n = 200
	pts := make([]geom.Point, n)
	for i := range pts {
		pts[i] = geom.Point{rng.Float64() * 100, rng.Float64() * 100}
		if err := tree.Insert(pts[i]); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	for i, pt := range pts {
		ok, err := tree.Delete(pt)
		if err != nil {
			t.Fatalf("Delete #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Delete #%d: point %v unexpectedly absent", i, pt)
		}
	}

	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after draining tree: %v", err)
	}

	remaining, err := tree.SearchRect(geom.Rect{Min: geom.Point{-1e6, -1e6}, Max: geom.Point{1e6, 1e6}})
	if err != nil {
		t.Fatalf("SearchRect: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected an empty tree, found %d leftover points", len(remaining))
	}
}

func TestSearchRectAndExhaustiveSearchAgree(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())

	rng := rand.New(rand.NewSource(3))
	const n = 150
	for i := 0; i < n; i++ {
		if err := tree.Insert(geom.Point{rng.Float64() * 50, rng.Float64() * 50}); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	probe := geom.Point{25, 25}
	if err := tree.Insert(probe); err != nil {
		t.Fatalf("Insert probe: %v", err)
	}

	viaSearch, err := tree.SearchPoint(probe)
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	viaExhaustive, err := tree.ExhaustiveSearch(probe)
	if err != nil {
		t.Fatalf("ExhaustiveSearch: %v", err)
	}
	if len(viaSearch) != len(viaExhaustive) {
		t.Fatalf("SearchPoint and ExhaustiveSearch disagree: %d vs %d", len(viaSearch), len(viaExhaustive))
	}
}

func TestChecksumStableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	cfg := DefaultConfig()
	disk, err := diskio.Open(path)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	pool := bufferpool.New(64, disk)
	tMin := geom.UnboundedPolygonSize(cfg.MaxRectangleCount)
	alloc, err := allocator.New(pool, tMin)
	if err != nil {
		t.Fatalf("allocator.New: %v", err)
	}
	tree := Open(alloc, cfg, handle.Null)

	pts := []geom.Point{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	for _, pt := range pts {
		if err := tree.Insert(pt); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	before, err := tree.Checksum()
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	root := tree.Root

	if err := pool.WritebackAllPages(); err != nil {
		t.Fatalf("WritebackAllPages: %v", err)
	}
	if err := disk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	disk2, err := diskio.Open(path)
	if err != nil {
		t.Fatalf("reopen diskio.Open: %v", err)
	}
	defer disk2.Close()
	pool2 := bufferpool.New(64, disk2)
	alloc2, err := allocator.New(pool2, tMin)
	if err != nil {
		t.Fatalf("reopen allocator.New: %v", err)
	}
	tree2 := Open(alloc2, cfg, root)

	after, err := tree2.Checksum()
	if err != nil {
		t.Fatalf("Checksum after reopen: %v", err)
	}
	if before != after {
		t.Fatalf("checksum changed across reopen: before=%x after=%x", before, after)
	}
}
