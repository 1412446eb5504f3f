// Inspect a spatial index file. Usage: go run ./cmd/rtreeinspect <path>
// Prints tree shape statistics, runs Validate, and (with -dot) emits a
// Graphviz dump of the tree structure to stdout.
//
// Grounded on cmd/inspect_idx/main.go (teacher): thin main calling into a
// library Inspect routine, nothing more.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daemondb/rtreestore/index"
)

func main() {
	dot := flag.Bool("dot", false, "emit a Graphviz digraph of the tree to stdout instead of stats")
	verbose := flag.Bool("v", false, "enable buffer pool trace logging")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dot] [-v] <index-path>\n", os.Args[0])
		os.Exit(1)
	}
	path := flag.Arg(0)

	cfg := index.DefaultConfig()
	cfg.Verbose = *verbose

	idx, err := index.Open(path, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()

	if *dot {
		if err := idx.Visualize(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := printStats(idx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printStats(idx *index.Index) error {
	stats, err := idx.Stats()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Printf("Height:       %d\n", stats.Height)
	fmt.Printf("Nodes:        %d (leaves=%d branches=%d)\n", stats.NodeCount, stats.LeafCount, stats.BranchCount)
	fmt.Printf("Points:       %d\n", stats.PointCount)
	fmt.Printf("Fanout:       min=%d max=%d avg=%.2f\n", stats.MinFanout, stats.MaxFanout, stats.AvgFanout)

	bp := idx.BufferPoolStats()
	fmt.Printf("Buffer pool:  %d/%d resident, %d pinned, %d dirty\n",
		bp.TotalPages, bp.Capacity, bp.PinnedPages, bp.DirtyPages)

	if err := idx.Validate(); err != nil {
		fmt.Printf("Validate:     FAILED: %v\n", err)
		return nil
	}
	fmt.Println("Validate:     ok")

	sum, err := idx.Checksum()
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}
	fmt.Printf("Checksum:     %016x\n", sum)
	return nil
}
