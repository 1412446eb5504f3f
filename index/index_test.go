package index

import (
	"path/filepath"
	"testing"

	"github.com/daemondb/rtreestore/geom"
)

func TestOpenCreateInsertSearchClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spatial.db")

	idx, err := Open(path, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pts := []geom.Point{{1, 1}, {2, 2}, {3, 3}}
	for _, pt := range pts {
		if err := idx.Insert(pt); err != nil {
			t.Fatalf("Insert %v: %v", pt, err)
		}
	}

	got, err := idx.SearchPoint(geom.Point{2, 2})
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReopenPreservesContentsAndRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spatial.db")

	idx, err := Open(path, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pts := []geom.Point{{10, 10}, {20, 20}, {30, 30}, {40, 40}}
	for _, pt := range pts {
		if err := idx.Insert(pt); err != nil {
			t.Fatalf("Insert %v: %v", pt, err)
		}
	}
	beforeChecksum, err := idx.Checksum()
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, DefaultConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	afterChecksum, err := reopened.Checksum()
	if err != nil {
		t.Fatalf("Checksum after reopen: %v", err)
	}
	if beforeChecksum != afterChecksum {
		t.Fatalf("checksum changed across reopen: before=%x after=%x", beforeChecksum, afterChecksum)
	}

	for _, pt := range pts {
		got, err := reopened.SearchPoint(pt)
		if err != nil {
			t.Fatalf("SearchPoint %v: %v", pt, err)
		}
		if len(got) != 1 {
			t.Fatalf("expected point %v to survive reopen", pt)
		}
	}

	if err := reopened.Validate(); err != nil {
		t.Fatalf("Validate after reopen: %v", err)
	}
}

func TestOpenOnMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	idx, err := Open(path, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	stats, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.NodeCount != 0 {
		t.Fatalf("expected an empty index to have no nodes yet, got %d", stats.NodeCount)
	}
}
