package callgraph

import (
	log "github.com/sirupsen/logrus"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

// funcState is the per-processing-pass context a function's transfer
// functions need: the shared context, the points-to graph, and the
// type-shortcut bookkeeping, plus the driver that owns reachability
// worklists spanning the whole module set.
type funcState struct {
	ctx       *ctxt.Context
	graph     *Graph
	shortcuts *shortcutState
	d         *Driver
}

// runOnFunction applies every instruction's transfer function once and
// reports whether any points-to set changed, the Go analog of
// CallGraph.cc's runOnFunction. Branches, comparisons, and other
// instructions with no pointer semantics are skipped, matching the
// original's opcode filter at the top of its switch.
func (fs *funcState) runOnFunction(f *ir.Func) bool {
	log.Debugf("callgraph: processing function %s", f.Name())

	changed := false
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			if fs.processInstruction(f, inst) {
				changed = true
			}
		}
		if fs.processTerminator(f, block.Term) {
			changed = true
		}
	}
	return changed
}

func (fs *funcState) processTerminator(f *ir.Func, term ir.Terminator) bool {
	switch t := term.(type) {
	case *ir.TermRet:
		return fs.handleRet(f, t)
	case *ir.TermInvoke:
		return fs.handleCallLike(f, t, t.Invokee, t.Args)
	default:
		// unconditional/conditional branch, switch, unreachable, etc.:
		// no pointer semantics.
		return false
	}
}

func (fs *funcState) handleRet(f *ir.Func, ret *ir.TermRet) bool {
	if ret.X == nil {
		return false
	}
	nf := fs.ctx.Nodes
	rvNode := nf.GetValueNodeFor(ret.X)
	rt := nf.CreateReturnNodeFor(f)
	if fs.shortcuts.isShortcutObj(rt) {
		return false
	}
	src, ok := fs.graph.Lookup(rvNode)
	if !ok {
		return false
	}
	return fs.graph.InsertSet(rt, src)
}

func (fs *funcState) processInstruction(f *ir.Func, inst ir.Instruction) bool {
	switch in := inst.(type) {
	case *ir.InstCall:
		return fs.handleCallLike(f, in, in.Callee, in.Args)
	case *ir.InstAlloca:
		return false
	case *ir.InstLoad:
		return fs.handleLoad(in)
	case *ir.InstStore:
		return fs.handleStore(in)
	case *ir.InstGetElementPtr:
		return fs.handleGEP(f, in)
	case *ir.InstBitCast:
		return fs.handleCopy(in.From, in)
	case *ir.InstPhi:
		return fs.handlePhi(in)
	case *ir.InstSelect:
		return fs.handleSelect(in)
	default:
		log.Debugf("callgraph: unhandled instruction %T", inst)
		return false
	}
}

// handleCallLike is shared by InstCall and TermInvoke: resolve the
// callee (direct or indirect), update Callees/reachability bookkeeping,
// and run handleCall against every resolved target. site is the call's
// own value identity (what argument/return binding propagates into and
// out of).
func (fs *funcState) handleCallLike(f *ir.Func, site ir.Instruction, callee value.Value, args []value.Value) bool {
	changed := false
	nf := fs.ctx.Nodes
	fs.ctx.SiteCaller[site] = f

	if direct, ok := callee.(*ir.Func); ok {
		rcf := getFuncDef(fs.ctx, direct)
		fs.d.markReachable(rcf)
		fs.ctx.AddCallee(site, rcf)
		if handleCall(fs.ctx, fs.graph, fs.shortcuts, site.(value.Value), args, rcf) {
			changed = true
		}
		return changed
	}

	// indirect call
	calleeNode := nf.GetValueNodeFor(callee)
	pts, ok := fs.graph.Lookup(calleeNode)
	if !ok {
		log.Debugf("callgraph: indirect call callee node %d not in graph", calleeNode)
		fs.recordTypeFallback(site, args)
		return changed
	}

	for _, idx := range pts.Elements() {
		if nf.IsSpecialNode(idx) {
			log.Warnf("callgraph: indirect call target is a special node: %d", idx)
			continue
		}
		v := nf.GetValueForNode(idx)
		target, ok := v.(*ir.Func)
		if !ok {
			log.Warnf("callgraph: indirect call %v points to non-function object", callee)
			continue
		}
		fs.d.markReachable(target)
		fs.ctx.AddCallee(site, target)
		if handleCall(fs.ctx, fs.graph, fs.shortcuts, site.(value.Value), args, target) {
			changed = true
		}
	}
	return changed
}

func (fs *funcState) recordTypeFallback(site ir.Instruction, args []value.Value) {
	v, ok := site.(value.Value)
	if !ok {
		return
	}
	matched := findCalleesByType(fs.ctx, args, v.Type())
	if len(matched) > 0 {
		fs.ctx.CalleeByType[site] = matched
	}
}

func (fs *funcState) handleLoad(ld *ir.InstLoad) bool {
	nf := fs.ctx.Nodes
	valNode := nf.GetValueNodeFor(ld)
	if fs.shortcuts.isShortcutObj(valNode) {
		return false
	}

	if st := elementStructType(ld.Type()); st != nil {
		info := fs.ctx.Layouts.LayoutOf(st)
		if obj, ok := fs.shortcuts.lookup(info); ok {
			changed := fs.graph.Insert(valNode, obj)
			fs.shortcuts.markApplied(valNode)
			return changed
		}
	}

	changed := false
	ptrNode := nf.GetValueNodeFor(ld.Src)
	pts, ok := fs.graph.Lookup(ptrNode)
	if !ok {
		return changed
	}
	for _, idx := range pts.Elements() {
		if idx == nf.GetNullObjectNode() && pts.Cardinality() == 1 {
			fs.graph.Insert(valNode, idx)
			break
		}
		fieldSet, ok := fs.graph.Lookup(idx)
		if !ok {
			continue
		}
		if fs.graph.InsertSet(valNode, fieldSet) {
			changed = true
		}
	}
	return changed
}

func (fs *funcState) handleStore(st *ir.InstStore) bool {
	if !isPointerType(st.Src.Type()) {
		return false
	}
	nf := fs.ctx.Nodes
	valNode := nf.GetValueNodeFor(st.Src)
	ptrNode := nf.GetValueNodeFor(st.Dst)

	valSet, ok := fs.graph.Lookup(valNode)
	if !ok {
		return false
	}
	ptrSet, ok := fs.graph.Lookup(ptrNode)
	if !ok {
		return false
	}

	changed := false
	for _, idx := range ptrSet.Elements() {
		if nf.IsSpecialNode(idx) {
			log.Warnf("callgraph: store destination is a special node: %d", idx)
			continue
		}
		if fs.graph.InsertSet(idx, valSet) {
			changed = true
		}
	}
	return changed
}

func (fs *funcState) handleCopy(src, dst value.Value) bool {
	nf := fs.ctx.Nodes
	srcNode := nf.GetValueNodeFor(src)
	dstNode := nf.GetValueNodeFor(dst)
	set, ok := fs.graph.Lookup(srcNode)
	if !ok {
		return false
	}
	return fs.graph.InsertSet(dstNode, set)
}

func (fs *funcState) handlePhi(phi *ir.InstPhi) bool {
	changed := false
	for _, inc := range phi.Incs {
		if fs.handleCopy(inc.X, phi) {
			changed = true
		}
	}
	return changed
}

func (fs *funcState) handleSelect(sel *ir.InstSelect) bool {
	changed := false
	if fs.handleCopy(sel.ValueTrue, sel) {
		changed = true
	}
	if fs.handleCopy(sel.ValueFalse, sel) {
		changed = true
	}
	return changed
}

func isPointerType(t types.Type) bool {
	_, ok := t.(*types.PointerType)
	return ok
}
