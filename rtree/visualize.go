package rtree

import (
	"fmt"
	"io"

	"github.com/daemondb/rtreestore/internal/handle"
)

// Visualize writes a Graphviz "digraph" description of the tree to w, one
// node per R*-tree node labelled with its level and entry count, and one
// edge per parent-child link with the bounding rectangle that entry
// carries. Intended as a debugging seam for cmd/rtreeinspect, not a
// performance-sensitive path.
func (t *Tree) Visualize(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph rtree {"); err != nil {
		return err
	}
	if !t.Root.IsNull() {
		if err := t.visualizeNode(w, t.Root); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func (t *Tree) visualizeNode(w io.Writer, h handle.Handle) error {
	node, err := t.fetchNode(h)
	if err != nil {
		return err
	}
	defer node.Release(false)
	n := node.Object()

	label := fmt.Sprintf("L%d n=%d", n.Level, n.Count())
	if _, err := fmt.Fprintf(w, "  \"%+v\" [label=%q];\n", h, label); err != nil {
		return err
	}

	if n.IsLeaf() {
		return nil
	}
	for _, e := range n.Branches {
		if _, err := fmt.Fprintf(w, "  \"%+v\" -> \"%+v\" [label=%q];\n", h, e.Child, fmt.Sprintf("%v", e.Rect)); err != nil {
			return err
		}
		if err := t.visualizeNode(w, e.Child); err != nil {
			return err
		}
	}
	return nil
}
