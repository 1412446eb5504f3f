package rtree

import "github.com/daemondb/rtreestore/internal/handle"

// Stats summarizes a tree's shape, for the inspection CLI and tests —
// spec §7's "surface enough structural state to detect divergence from
// the invariants, not just trust them."
type Stats struct {
	Height      int
	NodeCount   int
	LeafCount   int
	BranchCount int
	PointCount  int
	MinFanout   int
	MaxFanout   int
	AvgFanout   float64

	branchEntrySum int
}

// Stats walks the whole tree and aggregates shape statistics.
func (t *Tree) Stats() (Stats, error) {
	var s Stats
	if t.Root.IsNull() {
		return s, nil
	}
	s.MinFanout = -1
	if err := t.statsNode(t.Root, &s); err != nil {
		return Stats{}, err
	}
	if s.NodeCount > 0 {
		s.AvgFanout = float64(s.PointCount+s.BranchEntryTotal()) / float64(s.NodeCount)
	}
	height, err := t.Height()
	if err != nil {
		return Stats{}, err
	}
	s.Height = height
	return s, nil
}

// BranchEntryTotal returns the branch-entry count statsNode accumulates in
// branchEntrySum, so Stats() can compute AvgFanout without a second
// traversal. Only meaningful immediately after statsNode populates s.
func (s *Stats) BranchEntryTotal() int {
	return s.branchEntrySum
}

func (t *Tree) statsNode(h handle.Handle, s *Stats) error {
	node, err := t.fetchNode(h)
	if err != nil {
		return err
	}
	defer node.Release(false)
	n := node.Object()

	s.NodeCount++
	count := n.Count()
	if s.MinFanout < 0 || count < s.MinFanout {
		s.MinFanout = count
	}
	if count > s.MaxFanout {
		s.MaxFanout = count
	}

	if n.IsLeaf() {
		s.LeafCount++
		s.PointCount += count
		return nil
	}

	s.BranchCount++
	s.branchEntrySum += count
	for _, e := range n.Branches {
		if err := t.statsNode(e.Child, s); err != nil {
			return err
		}
	}
	return nil
}
