package callgraph

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

// buildIndirectCallModule builds:
//
//	define void @target() { ret void }
//	define void @funcMid(void()* %fp) { call void %fp()  ret void }
//	define void @main() { call void @funcMid(void()* @target)  ret void }
//
// so that resolving funcMid's indirect call requires the fixpoint driver
// to propagate @target's address through one level of argument passing.
func buildIndirectCallModule() (*ir.Module, *ir.Func, *ir.Func, *ir.Func) {
	m := ir.NewModule()

	target := ir.NewFunc("target", types.Void)
	tb := ir.NewBlock("")
	tb.Term = ir.NewRet(nil)
	target.Blocks = append(target.Blocks, tb)

	fpParam := ir.NewParam("fp", types.NewPointer(types.NewFunc(types.Void)))
	funcMid := ir.NewFunc("funcMid", types.Void, fpParam)
	mb := ir.NewBlock("")
	mb.Insts = append(mb.Insts, ir.NewCall(fpParam))
	mb.Term = ir.NewRet(nil)
	funcMid.Blocks = append(funcMid.Blocks, mb)

	main := ir.NewFunc("main", types.Void)
	ab := ir.NewBlock("")
	ab.Insts = append(ab.Insts, ir.NewCall(funcMid, target))
	ab.Term = ir.NewRet(nil)
	main.Blocks = append(main.Blocks, ab)

	m.Funcs = append(m.Funcs, target, funcMid, main)
	return m, target, funcMid, main
}

func TestDriverResolvesIndirectCallThroughArgument(t *testing.T) {
	m, target, funcMid, main := buildIndirectCallModule()

	c := ctxt.New()
	c.Funcs[target.Name()] = target
	c.Funcs[funcMid.Name()] = funcMid
	c.Funcs[main.Name()] = main

	d := NewDriver()
	d.Run(c, []ctxt.Module{{IR: m, Path: "test.ll"}})

	reachable := d.Reachable()
	for _, f := range []*ir.Func{main, funcMid, target} {
		if !reachable[f] {
			t.Fatalf("expected %s to be reachable", f.Name())
		}
	}

	indirectCall := funcMid.Blocks[0].Insts[0].(*ir.InstCall)
	targets := c.Callees[indirectCall]
	if !targets[target] {
		t.Fatalf("expected funcMid's indirect call to resolve to target, got %v", targets)
	}

	foundCaller := false
	for _, cs := range c.Callers[target] {
		if cs.Caller == funcMid {
			foundCaller = true
		}
	}
	if !foundCaller {
		t.Fatalf("expected funcMid to be recorded as a caller of target")
	}
}
