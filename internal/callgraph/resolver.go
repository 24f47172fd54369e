package callgraph

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

// getFuncDef resolves a possibly-external function reference to its
// definition, if one was seen anywhere in the module set, matching
// CallGraph.cc's getFuncDef. A symbol's identity here is its linker
// name: unlike the original's GUID (a hash meant to survive ThinLTO
// renaming across translation units), every module in this analysis is
// loaded into one process with no renaming, so the name alone is a
// stable enough cross-module key.
func getFuncDef(c *ctxt.Context, f *ir.Func) *ir.Func {
	if def, ok := c.Funcs[f.Name()]; ok {
		return def
	}
	return f
}

// isCompatibleType reports whether two LLVM IR types are similar enough
// that a function of one type could plausibly be called where the
// other is expected — the type-based fallback findCalleesByType uses
// when points-to resolution of an indirect call target is empty. This
// is a direct port of CallGraph.cc's isCompatibleType, built against
// llir/llvm's opaque-pointer-free (typed pointer) type model, which is
// the branch of the original's `#if LLVM_VERSION_MAJOR > 12` the
// targeted LLVM version actually takes.
func isCompatibleType(t1, t2 types.Type) bool {
	if t1 == t2 {
		return true
	}
	switch a := t1.(type) {
	case *types.VoidType:
		_, ok := t2.(*types.VoidType)
		return ok
	case *types.IntType:
		if ptr, ok := t2.(*types.PointerType); ok {
			// matches the original's getIntegerBitWidth() ==
			// getPointerAddressSpace() check.
			return uint64(a.BitSize) == uint64(ptr.AddrSpace)
		}
		_, ok := t2.(*types.IntType)
		return ok
	case *types.PointerType:
		elT2, ok := t2.(*types.PointerType)
		if !ok {
			return false
		}
		// "void *" and "char *" are equivalent to any pointer type
		if isI8(a.ElemType) || isI8(elT2.ElemType) {
			return true
		}
		return isCompatibleType(a.ElemType, elT2.ElemType)
	case *types.ArrayType:
		b, ok := t2.(*types.ArrayType)
		if !ok {
			return false
		}
		return isCompatibleType(a.ElemType, b.ElemType)
	case *types.StructType:
		b, ok := t2.(*types.StructType)
		if !ok {
			return false
		}
		if a.Opaque != b.Opaque {
			return false
		}
		isLiteral := a.TypeName == ""
		if isLiteral != (b.TypeName == "") {
			return false
		}
		if isLiteral {
			if len(a.Fields) != len(b.Fields) {
				return false
			}
			for i := range a.Fields {
				if !isCompatibleType(a.Fields[i], b.Fields[i]) {
					return false
				}
			}
			return true
		}
		return a.TypeName == b.TypeName
	case *types.FuncType:
		b, ok := t2.(*types.FuncType)
		if !ok {
			return false
		}
		if !isCompatibleType(a.RetType, b.RetType) {
			return false
		}
		if a.Variadic {
			return b.Variadic
		}
		if len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !isCompatibleType(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	default:
		// scalar types (float, double, label, metadata, ...): same
		// concrete Go type is the closest equivalent of the original's
		// getTypeID() comparison.
		return sameTypeKind(t1, t2)
	}
}

func isI8(t types.Type) bool {
	it, ok := t.(*types.IntType)
	return ok && it.BitSize == 8
}

func sameTypeKind(t1, t2 types.Type) bool {
	switch t1.(type) {
	case *types.FloatType:
		_, ok := t2.(*types.FloatType)
		return ok
	case *types.LabelType:
		_, ok := t2.(*types.LabelType)
		return ok
	case *types.MetadataType:
		_, ok := t2.(*types.MetadataType)
		return ok
	case *types.VectorType:
		_, ok := t2.(*types.VectorType)
		return ok
	default:
		return false
	}
}

// findCalleesByType scans every address-taken function for one whose
// signature is compatible with a call site's, the fallback resolution
// strategy for an indirect call whose points-to set came up empty.
// args and retType describe the site uniformly for both *ir.InstCall and
// *ir.TermInvoke, which share this fallback (the original resolves both
// through the common CallBase).
func findCalleesByType(c *ctxt.Context, args []value.Value, retType types.Type) map[*ir.Func]bool {
	out := make(map[*ir.Func]bool)
	for f := range c.AddressTaken {
		sig := f.Sig
		if sig.Variadic {
			continue
		}
		if len(sig.Params) != len(args) {
			continue
		}
		if !isCompatibleType(sig.RetType, retType) {
			continue
		}
		matched := true
		for i, p := range f.Params {
			if !isCompatibleType(p.Type(), args[i].Type()) {
				matched = false
				break
			}
		}
		if matched {
			out[f] = true
		}
	}
	return out
}

// isAllocWrapper reports whether a callee's name suggests it is a heap
// allocation wrapper, the substring heuristic handleCall uses to decide
// whether an opaque, untyped return value should be treated as a fresh
// heap object rather than whatever the callee's return points-to set
// already contains.
func isAllocWrapper(name string) bool {
	return strings.Contains(name, "alloc")
}

// handleCall binds a call instruction's actual arguments and return
// value against a resolved callee's formal parameter and return nodes,
// the same propagation CallGraph.cc's handleCall performs for both
// direct and indirect calls. callNode is the value node of the call
// instruction itself (the node its return value, if any, is bound to).
func handleCall(c *ctxt.Context, g *Graph, shortcuts *shortcutState, callInst value.Value, args []value.Value, callee *ir.Func) bool {
	if callee.Blocks == nil {
		// external function: nothing to propagate through
		return false
	}

	changed := false
	nf := c.Nodes

	if callee.Sig.Variadic {
		// vararg actuals are not propagated further, matching the
		// original's disabled branch; the vararg node still exists for
		// anything that looks it up (e.g. a va_arg read).
		nf.CreateVarargNodeFor(callee)
	} else {
		if len(args) != len(callee.Params) {
			log.Warnf("callgraph: arity mismatch calling %s: %d args, %d params", callee.Name(), len(args), len(callee.Params))
			return false
		}
		for i, arg := range args {
			argNode := nf.GetValueNodeFor(arg)
			src, ok := g.Lookup(argNode)
			if !ok {
				continue
			}
			formalNode := nf.GetValueNodeFor(callee.Params[i])
			if shortcuts.isShortcutObj(formalNode) {
				continue
			}
			if g.InsertSet(formalNode, src) {
				changed = true
			}
		}
	}

	if !isVoid(callee.Sig.RetType) {
		retNode := nf.CreateReturnNodeFor(callee)
		callNode := nf.GetValueNodeFor(callInst)
		if src, ok := g.Lookup(retNode); ok {
			for _, idx := range src.Elements() {
				if nf.IsHeapObject(idx) && nf.IsOpaqueObject(idx) && isAllocWrapper(callee.Name()) {
					idx = nf.CreateOpaqueObjectNode(callInst, true)
				}
				if g.Insert(callNode, idx) {
					changed = true
				}
			}
		}
	}

	return changed
}

func isVoid(t types.Type) bool {
	_, ok := t.(*types.VoidType)
	return ok
}

// collectAddressTaken walks every instruction operand in the module to
// find functions referenced as a value rather than solely as a direct
// call target — llir/llvm keeps no use-lists, so this is the one
// operand-walk pass that would otherwise be free via Function::users()
// in the original. It also walks every global variable's initializer
// for function references reachable only through a global aggregate (an
// ops-table pattern: a struct of function pointers).
func collectAddressTaken(c *ctxt.Context, m *ir.Module) {
	calledDirectly := make(map[value.Value]bool)
	fromGlobal := make(map[*ir.Func]bool)
	seen := make(map[*ir.Func]bool)

	walk := func(v value.Value) {
		if f, ok := v.(*ir.Func); ok {
			seen[f] = true
		}
	}

	for _, fn := range m.Funcs {
		for _, block := range fn.Blocks {
			for _, inst := range block.Insts {
				if call, ok := inst.(*ir.InstCall); ok {
					if callee, ok := call.Callee.(*ir.Func); ok {
						calledDirectly[callee] = true
					}
				}
				for _, op := range operandsOf(inst) {
					walk(op)
				}
			}
			if call, ok := block.Term.(*ir.TermInvoke); ok {
				if callee, ok := call.Invokee.(*ir.Func); ok {
					calledDirectly[callee] = true
				}
			}
			for _, op := range termOperandsOf(block.Term) {
				walk(op)
			}
		}
	}

	for _, g := range m.Globals {
		if g.Init == nil {
			continue
		}
		collectAddressTakenInConstant(c, g.Init, fromGlobal)
	}

	// A function can be passed to calledDirectly lookups only after the
	// whole module is scanned once, since a direct-call site may appear
	// lexically before an address-taking use; so every function seen as
	// an operand is checked here, after the scan, and added unless its
	// only appearances in this module are direct calls. This mirrors
	// hasAddressTaken()'s semantics: a function is address-taken only if
	// at least one use is not itself a direct call. A function found
	// inside a global initializer is already added and skips this check:
	// a global initializer never "calls" anything, so every appearance
	// there is address-taking by definition. Functions are only added
	// here, never removed, so one found in an earlier module stays.
	for f := range seen {
		if fromGlobal[f] {
			continue
		}
		if calledDirectly[f] && onlyDirectlyCalled(f, m) {
			continue
		}
		c.AddressTaken[f] = true
	}
}

// collectAddressTakenInConstant recurses into a global initializer
// constant for every *ir.Func it references. llir/llvm constants carry
// no Operands() method (that only exists on ir.Instruction/ir.Terminator,
// for in-place rewriting), so this walks the handful of aggregate and
// cast-like constant-expression kinds that can nest a function pointer
// directly, the constant-side analogue of the operand walk above.
func collectAddressTakenInConstant(c *ctxt.Context, v constant.Constant, fromGlobal map[*ir.Func]bool) {
	switch cv := v.(type) {
	case *ir.Func:
		c.AddressTaken[cv] = true
		fromGlobal[cv] = true
	case *constant.Struct:
		for _, f := range cv.Fields {
			collectAddressTakenInConstant(c, f, fromGlobal)
		}
	case *constant.Array:
		for _, e := range cv.Elems {
			collectAddressTakenInConstant(c, e, fromGlobal)
		}
	case *constant.Vector:
		for _, e := range cv.Elems {
			collectAddressTakenInConstant(c, e, fromGlobal)
		}
	case *constant.ExprBitCast:
		collectAddressTakenInConstant(c, cv.From, fromGlobal)
	case *constant.ExprPtrToInt:
		collectAddressTakenInConstant(c, cv.From, fromGlobal)
	case *constant.ExprIntToPtr:
		collectAddressTakenInConstant(c, cv.From, fromGlobal)
	case *constant.ExprGetElementPtr:
		collectAddressTakenInConstant(c, cv.Src, fromGlobal)
	}
}

func onlyDirectlyCalled(f *ir.Func, m *ir.Module) bool {
	for _, fn := range m.Funcs {
		for _, block := range fn.Blocks {
			for _, inst := range block.Insts {
				for _, op := range operandsOf(inst) {
					if op == value.Value(f) {
						if call, ok := inst.(*ir.InstCall); !ok || call.Callee != value.Value(f) {
							return false
						}
					}
				}
			}
			for _, op := range termOperandsOf(block.Term) {
				if op == value.Value(f) {
					if inv, ok := block.Term.(*ir.TermInvoke); !ok || inv.Invokee != value.Value(f) {
						return false
					}
				}
			}
		}
	}
	return true
}
