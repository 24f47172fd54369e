package callgraph

import (
	log "github.com/sirupsen/logrus"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ChengyuSong/kernel-analyzer/internal/node"
	"github.com/ChengyuSong/kernel-analyzer/internal/structlayout"
)

// handleGEP is the GetElementPtr transfer function: for every object
// the base pointer points to, resize it if it is an opaque heap object
// smaller than the accessed struct type (CallGraph.cc's "GEP resize
// obj"), then land the result on the matching field node, clamped to the
// object's last field when it runs past the end. A field path with a
// negative or non-constant index is logged and contributes nothing for
// that object.
func (fs *funcState) handleGEP(f *ir.Func, gep *ir.InstGetElementPtr) bool {
	nf := fs.ctx.Nodes
	ptrNode := nf.GetValueNodeFor(gep.Src)
	valNode := nf.GetValueNodeFor(gep)

	pts, ok := fs.graph.Lookup(ptrNode)
	if !ok {
		return false
	}

	elemTy := gep.ElemType
	for {
		if at, ok := elemTy.(*types.ArrayType); ok {
			elemTy = at.ElemType
			continue
		}
		if vt, ok := elemTy.(*types.VectorType); ok {
			elemTy = vt.ElemType
			continue
		}
		break
	}

	changed := false
	for _, idx := range pts.Elements() {
		if nf.IsSpecialNode(idx) {
			if fs.graph.Insert(valNode, idx) {
				changed = true
			}
			continue
		}

		allocSize := nf.GetObjectSize(nf.BaseOf(idx))
		base := nf.BaseOf(idx)
		if st, ok := elemTy.(*types.StructType); ok {
			info := fs.ctx.Layouts.LayoutOf(st)
			ptrSize := info.ExpandedSize()
			if ptrSize > allocSize {
				if !nf.IsOpaqueObject(base) {
					log.Warnf("callgraph: GEP non-opaque object size mismatch at %d", base)
					continue
				}
				if !nf.IsHeapObject(base) {
					log.Warnf("callgraph: GEP resize of non-heap object %d", base)
					continue
				}
				nf.ResizeObject(base, ptrSize, info.Unions())
				allocSize = ptrSize
			}
		}

		fieldNum, ok := gepFieldNum(fs.ctx.Layouts, gep)
		if !ok {
			log.Warnf("callgraph: GEP %v has a negative or non-constant offset", gep)
			continue
		}

		off := nf.GetObjectOffset(idx)
		nidx := idx + node.Index(fieldNum)
		if off+fieldNum >= allocSize {
			log.Warnf("callgraph: GEP field number out of bound (%d)", allocSize)
			nidx = base + node.Index(allocSize-1)
		}

		if fs.graph.Insert(valNode, nidx) {
			changed = true
		}
	}
	return changed
}

// gepFieldNum walks a GetElementPtr's index list against its source
// element type and the struct layout oracle to compute the flattened
// field number the GEP selects — the Go analog of CallGraph.cc's
// getGEPOffset (byte offset under a DataLayout) composed with
// offsetToFieldNum (byte offset -> field index). Typed GEP instructions
// already carry structural indices rather than raw byte displacements,
// so this walks the type nesting directly instead of reconstructing it
// from a byte count.
//
// ok is false for a negative or non-constant index anywhere in the
// path (the original's "FIXME: handle negative offset, like
// container_of" case): the caller logs a warning and skips the GEP for
// that object.
func gepFieldNum(oracle *structlayout.Oracle, gep *ir.InstGetElementPtr) (uint32, bool) {
	indices := gep.Indices
	if len(indices) == 0 {
		return 0, true
	}

	// indices[0] walks the array of the base allocation itself (e.g.
	// `gep %T, %p, i64 0, ...`). A negative or non-constant first index
	// is rejected; any non-negative constant is treated like zero, so the
	// result stays inside the object the pointer already names.
	if !isConstZero(indices[0]) {
		if !isConstNonNegative(indices[0]) {
			return 0, false
		}
	}

	cur := gep.ElemType
	var field uint32
	for _, idxVal := range indices[1:] {
		idx, ok := constIndex(idxVal)
		if !ok {
			return 0, false
		}
		if idx < 0 {
			return 0, false
		}

		switch t := cur.(type) {
		case *types.StructType:
			if int(idx) >= len(t.Fields) {
				return 0, false
			}
			for i := 0; i < int(idx); i++ {
				field += oracle.LayoutOf(t.Fields[i]).ExpandedSize()
			}
			cur = t.Fields[idx]
		case *types.ArrayType:
			elemSize := oracle.LayoutOf(t.ElemType).ExpandedSize()
			field += elemSize * uint32(idx)
			cur = t.ElemType
		case *types.VectorType:
			cur = t.ElemType
		default:
			// scalar reached with more indices remaining: malformed GEP
			// for this type, but treat as "stop here" rather than panic.
			return field, true
		}
	}

	return field, true
}

func isConstZero(v value.Value) bool {
	c, ok := v.(constant.Constant)
	if !ok {
		return false
	}
	i, ok := c.(*constant.Int)
	return ok && i.X.Sign() == 0
}

func isConstNonNegative(v value.Value) bool {
	c, ok := v.(constant.Constant)
	if !ok {
		return false
	}
	i, ok := c.(*constant.Int)
	return ok && i.X.Sign() >= 0
}

func constIndex(v value.Value) (int64, bool) {
	c, ok := v.(constant.Constant)
	if !ok {
		return 0, false
	}
	i, ok := c.(*constant.Int)
	if !ok {
		return 0, false
	}
	return i.X.Int64(), true
}
