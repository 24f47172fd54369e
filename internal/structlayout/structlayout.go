// Package structlayout is the struct/record layout oracle consulted by
// internal/callgraph (to size shortcut objects and opaque-heap resizes,
// and to turn a GetElementPtr's field path into a node offset). It
// flattens nested structs, arrays, and vectors into one contiguous list
// of scalar fields, memoizing the flattening per named or literal type
// exactly once.
package structlayout

import (
	"fmt"
	"sync"

	"github.com/llir/llvm/ir/types"
)

// Info describes the flattened field layout of one aggregate type.
type Info struct {
	typ    types.Type
	fields []fieldInfo
}

type fieldInfo struct {
	typ     types.Type
	isUnion bool
}

// ExpandedSize returns the number of scalar fields the type flattens
// to. Non-aggregate types (including opaque/forward-declared structs)
// report 1.
func (i *Info) ExpandedSize() uint32 {
	if i == nil || len(i.fields) == 0 {
		return 1
	}
	return uint32(len(i.fields))
}

// IsFieldUnion reports whether flattened field index fieldIdx sits
// inside a C union arm. LLVM IR has no native union type; a record is
// treated as having a union arm when one of its immediate fields
// overlaps byte-for-byte with a sibling, which this package does not
// attempt to re-derive from IR alone (unions are already lowered to
// a single representative field by the front end). This always
// reports false; it exists so callers' field-union bookkeeping has a
// stable home once a front end that preserves union info is wired in.
func (i *Info) IsFieldUnion(fieldIdx uint32) bool {
	if i == nil || int(fieldIdx) >= len(i.fields) {
		return false
	}
	return i.fields[fieldIdx].isUnion
}

// FieldType returns the scalar type at flattened index fieldIdx.
func (i *Info) FieldType(fieldIdx uint32) types.Type {
	if i == nil || int(fieldIdx) >= len(i.fields) {
		return nil
	}
	return i.fields[fieldIdx].typ
}

// Unions returns the per-field union flags for the whole flattened
// layout, in the representation internal/node's object groups want.
func (i *Info) Unions() []bool {
	if i == nil {
		return []bool{false}
	}
	out := make([]bool, len(i.fields))
	for idx, f := range i.fields {
		out[idx] = f.isUnion
	}
	return out
}

// Oracle flattens types on demand and memoizes the result, mirroring
// the flattenMemo map the teacher's pointer analysis keeps for the same
// reason: flattening the same record type repeatedly across a large
// module is otherwise quadratic in practice.
type Oracle struct {
	mu    sync.Mutex
	memo  map[types.Type]*Info
	stack map[types.Type]bool // cycle guard for self-referential structs via pointer fields
}

// NewOracle creates an empty, ready-to-use Oracle.
func NewOracle() *Oracle {
	return &Oracle{
		memo:  make(map[types.Type]*Info),
		stack: make(map[types.Type]bool),
	}
}

// LayoutOf returns the flattened layout of t, computing and caching it
// on first request. Pointer, scalar, and function types are their own
// single-field layout.
func (o *Oracle) LayoutOf(t types.Type) *Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.layout(t)
}

func (o *Oracle) layout(t types.Type) *Info {
	if info, ok := o.memo[t]; ok {
		return info
	}
	// A type already on the recursion stack gets a one-field layout
	// instead of being flattened again. A self-referential struct (a
	// struct containing a pointer to itself) terminates anyway, since a
	// pointer field is its own single-field layout and is not entered.
	if o.stack[t] {
		return &Info{typ: t, fields: []fieldInfo{{typ: t}}}
	}
	o.stack[t] = true
	defer delete(o.stack, t)

	var info *Info
	switch tt := t.(type) {
	case *types.StructType:
		info = o.flattenStruct(tt)
	case *types.ArrayType:
		info = o.flattenArray(tt)
	case *types.VectorType:
		info = &Info{typ: t, fields: []fieldInfo{{typ: tt.ElemType}}}
	default:
		info = &Info{typ: t, fields: []fieldInfo{{typ: t}}}
	}
	o.memo[t] = info
	return info
}

func (o *Oracle) flattenStruct(st *types.StructType) *Info {
	info := &Info{typ: st}
	if st.Opaque {
		// Unknown layout: one opaque scalar field, matching
		// internal/node's opaque-object treatment.
		info.fields = []fieldInfo{{typ: st}}
		return info
	}
	for _, field := range st.Fields {
		sub := o.layout(field)
		info.fields = append(info.fields, sub.fields...)
	}
	if len(info.fields) == 0 {
		info.fields = []fieldInfo{{typ: st}}
	}
	return info
}

func (o *Oracle) flattenArray(at *types.ArrayType) *Info {
	info := &Info{typ: at}
	elem := o.layout(at.ElemType)
	n := at.Len
	if n == 0 {
		n = 1
	}
	// Cap expansion for large arrays: the analysis treats array
	// elements field-insensitively beyond the first few slots, so
	// flattening more than this only wastes node budget without
	// sharpening precision.
	const maxArrayExpand = 4
	reps := n
	if reps > maxArrayExpand {
		reps = maxArrayExpand
	}
	for i := uint64(0); i < reps; i++ {
		info.fields = append(info.fields, elem.fields...)
	}
	return info
}

// ElementType unwraps a pointer, array, or vector type to its pointee
// or element type, matching the original's getElementTy helper. It
// panics if t is none of those, which callers only invoke after
// already checking t's kind.
func ElementType(t types.Type) types.Type {
	switch tt := t.(type) {
	case *types.PointerType:
		return tt.ElemType
	case *types.ArrayType:
		return tt.ElemType
	case *types.VectorType:
		return tt.ElemType
	default:
		panic(fmt.Sprintf("structlayout: %T has no element type", t))
	}
}

// IsAggregate reports whether t is a struct, array, or vector — the
// types CreateObjectNode must expand rather than treat as one scalar
// field.
func IsAggregate(t types.Type) bool {
	switch t.(type) {
	case *types.StructType, *types.ArrayType, *types.VectorType:
		return true
	default:
		return false
	}
}
