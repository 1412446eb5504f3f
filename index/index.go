// Package index is the public facade over the allocator and R*-tree
// layers: open/create a disk-backed spatial index by path, insert,
// delete, search, and close it. Root-handle persistence lives in a
// "<path>.meta" sidecar file, since a single-file-per-index backing
// store (spec §6) has no spare page to dedicate to metadata the way the
// teacher's multi-file DiskManager does with page 0.
//
// Grounded on the teacher's top-level bplustree.NewBPlusTree wiring
// (bplustree/new_bplus_tree.go) — pager + buffer pool assembled once at
// construction — and bplustree/disk_pager.go's file-size-derived page
// count probing.
package index

import (
	"fmt"
	"io"
	"os"

	"github.com/daemondb/rtreestore/geom"
	"github.com/daemondb/rtreestore/internal/allocator"
	"github.com/daemondb/rtreestore/internal/bufferpool"
	"github.com/daemondb/rtreestore/internal/diskio"
	"github.com/daemondb/rtreestore/internal/handle"
	"github.com/daemondb/rtreestore/rtree"
)

// Config is the subset of spec §6's enumerated options a caller sets when
// opening an index.
type Config struct {
	PoolCapacity int // buffer pool page capacity; spec §4.1's fixed budget
	TreeConfig   rtree.Config
	Verbose      bool // gate bufferpool trace logging
}

// DefaultConfig returns sane defaults: a 64-page buffer pool and the
// R*-tree's default branching factors.
func DefaultConfig() Config {
	return Config{
		PoolCapacity: 64,
		TreeConfig:   rtree.DefaultConfig(),
	}
}

// Index is an open disk-backed R*-tree spatial index.
type Index struct {
	cfg   Config
	disk  *diskio.Manager
	pool  *bufferpool.Pool
	alloc *allocator.Allocator
	tree  *rtree.Tree

	metaPath string
}

const metaSuffix = ".meta"
const metaHeaderSize = handle.EncodedSize

// Open opens an existing index at path, or creates a new empty one if no
// backing file exists yet, per spec §4.5's "open-or-create" semantics.
func Open(path string, cfg Config) (*Index, error) {
	disk, err := diskio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: failed to open backing file %s: %w", path, err)
	}

	pool := bufferpool.New(cfg.PoolCapacity, disk)
	pool.Verbose = cfg.Verbose

	tMin := geom.UnboundedPolygonSize(cfg.TreeConfig.MaxRectangleCount)
	alloc, err := allocator.New(pool, tMin)
	if err != nil {
		return nil, fmt.Errorf("index: failed to create allocator: %w", err)
	}

	metaPath := path + metaSuffix
	root, err := readRootHandle(metaPath)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		cfg:      cfg,
		disk:     disk,
		pool:     pool,
		alloc:    alloc,
		tree:     rtree.Open(alloc, cfg.TreeConfig, root),
		metaPath: metaPath,
	}
	return idx, nil
}

// readRootHandle loads the persisted root handle from path's sidecar
// metadata file, or returns handle.Null if it doesn't exist yet (a
// brand-new index).
func readRootHandle(metaPath string) (handle.Handle, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return handle.Null, nil
		}
		return handle.Null, fmt.Errorf("index: failed to read metadata %s: %w", metaPath, err)
	}
	if len(data) < metaHeaderSize {
		return handle.Null, fmt.Errorf("index: metadata file %s too short", metaPath)
	}
	return handle.Decode(data), nil
}

// writeRootHandle persists the current root handle to the sidecar file.
func (idx *Index) writeRootHandle() error {
	buf := make([]byte, metaHeaderSize)
	idx.tree.Root.Encode(buf)
	tmp := idx.metaPath + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("index: failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp, idx.metaPath); err != nil {
		return fmt.Errorf("index: failed to commit metadata: %w", err)
	}
	return nil
}

// Insert adds pt to the index.
func (idx *Index) Insert(pt geom.Point) error {
	return idx.tree.Insert(pt)
}

// Delete removes one occurrence of pt, reporting whether it was present.
func (idx *Index) Delete(pt geom.Point) (bool, error) {
	return idx.tree.Delete(pt)
}

// SearchPoint returns every stored point equal to pt.
func (idx *Index) SearchPoint(pt geom.Point) ([]geom.Point, error) {
	return idx.tree.SearchPoint(pt)
}

// SearchRect returns every stored point contained in rect.
func (idx *Index) SearchRect(rect geom.Rect) ([]geom.Point, error) {
	return idx.tree.SearchRect(rect)
}

// SetObstaclePolygon attaches an obstacle/hole polygon to child's entry in
// its parent node (spec §6 MAX_RECTANGLE_COUNT; see SPEC_FULL.md §4.4).
func (idx *Index) SetObstaclePolygon(child handle.Handle, poly geom.Polygon) error {
	return idx.tree.SetObstaclePolygon(child, poly)
}

// ObstaclePolygon returns the obstacle/hole polygon currently attached to
// child's entry in its parent node, if any.
func (idx *Index) ObstaclePolygon(child handle.Handle) (geom.Polygon, error) {
	return idx.tree.ObstaclePolygon(child)
}

// Validate checks the tree's structural invariants (spec §8).
func (idx *Index) Validate() error {
	return idx.tree.Validate()
}

// Checksum hashes the index's contents for crash/reopen comparison.
func (idx *Index) Checksum() (uint64, error) {
	return idx.tree.Checksum()
}

// Stats reports the tree's current shape.
func (idx *Index) Stats() (rtree.Stats, error) {
	return idx.tree.Stats()
}

// Visualize writes a Graphviz digraph of the tree to w.
func (idx *Index) Visualize(w io.Writer) error {
	return idx.tree.Visualize(w)
}

// BufferPoolStats exposes the buffer pool's resident/pinned/dirty counts,
// for tests and the inspection CLI.
func (idx *Index) BufferPoolStats() bufferpool.Stats {
	return idx.pool.GetStats()
}

// Flush writes back every dirty page and persists the root handle, without
// closing the index.
func (idx *Index) Flush() error {
	if err := idx.pool.WritebackAllPages(); err != nil {
		return fmt.Errorf("index: writeback failed: %w", err)
	}
	if err := idx.disk.Sync(); err != nil {
		return fmt.Errorf("index: sync failed: %w", err)
	}
	return idx.writeRootHandle()
}

// Close flushes and releases the backing file.
func (idx *Index) Close() error {
	if err := idx.Flush(); err != nil {
		_ = idx.disk.Close()
		return err
	}
	return idx.disk.Close()
}
