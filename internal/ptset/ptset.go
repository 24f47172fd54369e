// Package ptset implements the compact points-to set described in
// spec §4.2: ordered enumeration, a changed-bool single insert, and a
// bulk insert that reports how many elements were new. It is backed by
// golang.org/x/tools/container/intsets, the same sparse bitvector the
// teacher's vendored pointer analysis uses for its own node sets
// (o2lab-go2/gopta/go/pointer/solve.go's nodeset).
package ptset

import (
	"github.com/ChengyuSong/kernel-analyzer/internal/node"
	"golang.org/x/tools/container/intsets"
)

// Set is a monotonically growing set of node indices. The zero value is
// an empty set ready to use.
type Set struct {
	bits intsets.Sparse
}

// Insert adds idx to the set and reports whether the set changed.
func (s *Set) Insert(idx node.Index) bool {
	return s.bits.Insert(int(idx))
}

// InsertSet unions other into s and returns the number of elements that
// were newly added. Only the sign (zero vs. non-zero) of the result is
// meaningful to callers, per spec §4.2.
func (s *Set) InsertSet(other *Set) int {
	if other == nil {
		return 0
	}
	before := s.bits.Len()
	s.bits.UnionWith(&other.bits)
	return s.bits.Len() - before
}

// Has reports whether idx is a member.
func (s *Set) Has(idx node.Index) bool {
	return s.bits.Has(int(idx))
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return s.bits.IsEmpty()
}

// Cardinality returns the number of members (not one-past-max; see Size
// for that).
func (s *Set) Cardinality() int {
	return s.bits.Len()
}

// FindFirst returns the smallest member, or Size() if the set is empty.
func (s *Set) FindFirst() node.Index {
	if s.bits.IsEmpty() {
		return s.Size()
	}
	return node.Index(s.bits.Min())
}

// FindNext returns the smallest member strictly greater than idx, or
// Size() if none exists. Callers iterate:
//
//	for i := s.FindFirst(); i < s.Size(); i = s.FindNext(i) { ... }
func (s *Set) FindNext(idx node.Index) node.Index {
	// intsets.Sparse exposes no "smallest member greater than x" query,
	// only ascending enumeration, so walk it; callers iterate whole
	// points-to sets anyway, not single steps in a hot loop.
	for _, v := range s.bits.AppendTo(nil) {
		if v > int(idx) {
			return node.Index(v)
		}
	}
	return s.Size()
}

// Size returns one past the maximum index present, per spec §4.2 (not
// cardinality).
func (s *Set) Size() node.Index {
	if s.bits.IsEmpty() {
		return 0
	}
	return node.Index(s.bits.Max() + 1)
}

// Elements returns the members in ascending order. Convenience wrapper
// around FindFirst/FindNext for callers that do not need to avoid the
// allocation.
func (s *Set) Elements() []node.Index {
	raw := s.bits.AppendTo(nil)
	out := make([]node.Index, len(raw))
	for i, v := range raw {
		out[i] = node.Index(v)
	}
	return out
}

// String renders the set for debug logging.
func (s *Set) String() string {
	return s.bits.String()
}
