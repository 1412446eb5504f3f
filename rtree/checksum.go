package rtree

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/daemondb/rtreestore/geom"
)

// Checksum hashes every leaf point in the tree, visited in leaf order.
// The hash depends on that order: the same tree layout read back (for
// example after a close/reopen cycle) gives the same value, but the same
// points held in a different layout, e.g. after a different insertion
// history, generally do not.
//
// cespare/xxhash/v2 was only an unused, ristretto-transitive dependency in
// the teacher's go.mod (see DESIGN.md); it is promoted here to a direct one.
func (t *Tree) Checksum() (uint64, error) {
	h := xxhash.New()
	var buf [16]byte
	if err := t.walkLeaves(t.Root, func(p geom.Point) {
		for d := 0; d < geom.Dimensions; d++ {
			binary.LittleEndian.PutUint64(buf[d*8:], math.Float64bits(p[d]))
		}
		_, _ = h.Write(buf[:geom.Dimensions*8])
	}); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
