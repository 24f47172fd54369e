// Package node assigns and tracks the stable integer indices — spec
// §3's NodeIndex — that identify every abstract location the points-to
// analysis reasons about: SSA values, allocation-site object fields,
// function return slots, vararg slots, and the two special locations
// NullObject and Universal.
package node

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// Index is a dense nonnegative integer identifying one abstract
// location (spec §3's NodeIndex).
type Index uint32

// Invalid is the reserved sentinel for "no such node". Non-optional
// lookups that return it indicate a factory/IR desync and are a fatal
// assertion failure per spec §7.
const Invalid Index = ^Index(0)

// Special, always-valid indices (spec §3).
const (
	NullObject Index = 0
	Universal  Index = 1
)

// Kind classifies a node (spec §3's disjoint node kinds).
type Kind uint8

const (
	KindSpecial Kind = iota
	KindValue
	KindObject
	KindReturn
	KindVararg
)

func (k Kind) String() string {
	switch k {
	case KindSpecial:
		return "special"
	case KindValue:
		return "value"
	case KindObject:
		return "object"
	case KindReturn:
		return "return"
	case KindVararg:
		return "vararg"
	default:
		return "unknown"
	}
}

// entry is the per-index metadata the factory keeps. Object nodes carry
// a back-pointer to the group they belong to; everything else only
// needs its kind.
type entry struct {
	kind  Kind
	group *group // non-nil only for KindObject entries
}

// group describes one allocation site: a contiguous block of object
// nodes [base, base+size). This is spec §3's "object group".
type group struct {
	base     Index
	size     uint32
	isHeap   bool
	isOpaque bool
	unions   []bool      // unions[i] true if field i belongs to a union
	val      value.Value // the allocation-site value, for inverse lookup
}

// Factory assigns and tracks node indices for one analysis run. It owns
// every NodeIndex allocation for the lifetime of the analysis (spec §5)
// and never deletes a node; the only in-place mutation is the
// opaque-heap resize of §4.4, which appends to an existing group.
type Factory struct {
	module *ir.Module

	entries []entry // indexed by Index

	valueNodes  map[value.Value]Index
	objectNodes map[value.Value]Index // base object node, keyed by the allocation-site value
	returnNodes map[*ir.Func]Index
	varargNodes map[*ir.Func]Index

	nodeValue map[Index]value.Value // inverse lookup for object nodes only
}

// NewFactory creates a factory with the two special nodes pre-registered.
func NewFactory() *Factory {
	f := &Factory{
		valueNodes:  make(map[value.Value]Index),
		objectNodes: make(map[value.Value]Index),
		returnNodes: make(map[*ir.Func]Index),
		varargNodes: make(map[*ir.Func]Index),
		nodeValue:   make(map[Index]value.Value),
	}
	f.entries = append(f.entries, entry{kind: KindSpecial}) // NullObject
	f.entries = append(f.entries, entry{kind: KindSpecial}) // Universal
	return f
}

// SetModule records the module currently being processed; the node
// factory borrows the module for the duration of one doModulePass (spec
// §9's "Scoped resources").
func (f *Factory) SetModule(m *ir.Module) { f.module = m }

func (f *Factory) alloc(e entry) Index {
	idx := Index(len(f.entries))
	f.entries = append(f.entries, e)
	return idx
}

// GetValueNodeFor returns the value node for v, creating one if this is
// the first time v has been seen. Every transfer function calls this
// rather than CreateValueNode: a value's node must exist the moment
// anything needs to read or write its points-to set, regardless of
// which instruction happens to touch it first.
func (f *Factory) GetValueNodeFor(v value.Value) Index {
	return f.CreateValueNode(v)
}

// CreateValueNode creates (or returns the existing) value node for v.
func (f *Factory) CreateValueNode(v value.Value) Index {
	if idx, ok := f.valueNodes[v]; ok {
		return idx
	}
	idx := f.alloc(entry{kind: KindValue})
	f.valueNodes[v] = idx
	return idx
}

// GetObjectNodeFor returns the base object node for an allocation-like
// value (global, heap call, function address, ...), or Invalid if it
// has not been created.
func (f *Factory) GetObjectNodeFor(v value.Value) Index {
	if idx, ok := f.objectNodes[v]; ok {
		return idx
	}
	return Invalid
}

// GetReturnNodeFor returns the return node for fn, or Invalid.
func (f *Factory) GetReturnNodeFor(fn *ir.Func) Index {
	if idx, ok := f.returnNodes[fn]; ok {
		return idx
	}
	return Invalid
}

// CreateReturnNodeFor creates (or returns the existing) return node for fn.
func (f *Factory) CreateReturnNodeFor(fn *ir.Func) Index {
	if idx, ok := f.returnNodes[fn]; ok {
		return idx
	}
	idx := f.alloc(entry{kind: KindReturn})
	f.returnNodes[fn] = idx
	return idx
}

// GetVarargNodeFor returns the vararg node for fn, or Invalid.
func (f *Factory) GetVarargNodeFor(fn *ir.Func) Index {
	if idx, ok := f.varargNodes[fn]; ok {
		return idx
	}
	return Invalid
}

// CreateVarargNodeFor creates (or returns the existing) vararg node for fn.
func (f *Factory) CreateVarargNodeFor(fn *ir.Func) Index {
	if idx, ok := f.varargNodes[fn]; ok {
		return idx
	}
	idx := f.alloc(entry{kind: KindVararg})
	f.varargNodes[fn] = idx
	return idx
}

// CreateObjectNode creates a fresh object group of the given expanded
// size for val (spec §4.1's createObjectNode) and registers it as val's
// base object node. unions[i] records whether field i belongs to a
// union, per the struct layout oracle. size must be at least 1.
func (f *Factory) CreateObjectNode(val value.Value, size uint32, isHeap bool, unions []bool) Index {
	if size == 0 {
		size = 1
	}
	base := Index(len(f.entries))
	g := &group{base: base, size: size, isHeap: isHeap, unions: unions, val: val}
	for i := uint32(0); i < size; i++ {
		f.alloc(entry{kind: KindObject, group: g})
	}
	if val != nil {
		f.objectNodes[val] = base
		f.nodeValue[base] = val
	}
	return base
}

// CreateOpaqueObjectNode creates a single-field opaque object node for
// an allocation whose record type is not yet known (spec's "opaque
// object"), such as the result of a heap-allocation call site.
func (f *Factory) CreateOpaqueObjectNode(site value.Value, isHeap bool) Index {
	base := f.CreateObjectNode(site, 1, isHeap, []bool{false})
	f.entries[base].group.isOpaque = true
	return base
}

// ResizeObject appends newSize-getObjectSize(base) new field nodes to
// an existing opaque-heap object group, preserving base's index and the
// validity of every previously issued index into the group. Only
// opaque, heap-originated groups may be resized (spec §4.4's GEP
// resize); calling it otherwise panics, matching the original's assert.
func (f *Factory) ResizeObject(base Index, newSize uint32, unions []bool) {
	g := f.groupOf(base)
	if !g.isOpaque || !g.isHeap {
		panic(fmt.Sprintf("node: resize of non-opaque-heap object %d", base))
	}
	if newSize <= g.size {
		return
	}
	for i := g.size; i < newSize; i++ {
		isUnion := false
		if int(i) < len(unions) {
			isUnion = unions[i]
		}
		f.alloc(entry{kind: KindObject, group: g})
		_ = isUnion // per-field union info is tracked on g.unions below
	}
	if uint32(len(g.unions)) < newSize {
		grown := make([]bool, newSize)
		copy(grown, g.unions)
		copy(grown[len(g.unions):], unions[len(g.unions):])
		g.unions = grown
	}
	g.size = newSize
}

func (f *Factory) groupOf(idx Index) *group {
	if int(idx) >= len(f.entries) {
		panic(fmt.Sprintf("node: index %d out of range", idx))
	}
	e := f.entries[idx]
	if e.kind != KindObject {
		panic(fmt.Sprintf("node: index %d is not an object node", idx))
	}
	return e.group
}

// GetObjectSize returns the expanded size of the object group whose
// base node is base.
func (f *Factory) GetObjectSize(base Index) uint32 {
	return f.groupOf(base).size
}

// GetObjectOffset returns the distance of idx from its group's base.
func (f *Factory) GetObjectOffset(idx Index) uint32 {
	g := f.groupOf(idx)
	return uint32(idx - g.base)
}

// BaseOf returns the base index of the object group idx belongs to.
func (f *Factory) BaseOf(idx Index) Index {
	return f.groupOf(idx).base
}

// IsFieldUnion reports whether field i (absolute index) of idx's group
// belongs to a union.
func (f *Factory) IsFieldUnion(idx Index) bool {
	g := f.groupOf(idx)
	off := int(idx - g.base)
	if off < len(g.unions) {
		return g.unions[off]
	}
	return false
}

// GetValueForNode returns the allocation-site value for an object node,
// or nil if idx is not an object node or has none recorded.
func (f *Factory) GetValueForNode(idx Index) value.Value {
	return f.nodeValue[idx]
}

// GetNullObjectNode returns the NullObject special index.
func (f *Factory) GetNullObjectNode() Index { return NullObject }

// KindOf returns the kind of idx.
func (f *Factory) KindOf(idx Index) Kind {
	if int(idx) >= len(f.entries) {
		return KindSpecial
	}
	return f.entries[idx].kind
}

// IsObjectNode reports whether idx is an object node.
func (f *Factory) IsObjectNode(idx Index) bool { return f.KindOf(idx) == KindObject }

// IsSpecialNode reports whether idx is NullObject, Universal, or any
// other node registered with KindSpecial.
func (f *Factory) IsSpecialNode(idx Index) bool {
	return int(idx) < len(f.entries) && f.entries[idx].kind == KindSpecial
}

// IsHeapObject reports whether idx's object group originates from a
// dynamic allocation call.
func (f *Factory) IsHeapObject(idx Index) bool {
	if !f.IsObjectNode(idx) {
		return false
	}
	return f.groupOf(idx).isHeap
}

// IsOpaqueObject reports whether idx's object group's record type is
// not yet known.
func (f *Factory) IsOpaqueObject(idx Index) bool {
	if !f.IsObjectNode(idx) {
		return false
	}
	return f.groupOf(idx).isOpaque
}

// NumNodes returns the total number of allocated indices, including the
// two special nodes.
func (f *Factory) NumNodes() int { return len(f.entries) }
