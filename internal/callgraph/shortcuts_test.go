package callgraph

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

func newTestModule(st *types.StructType) (*ir.Module, *ir.Func, *ir.Func) {
	m := ir.NewModule()

	retFn := ir.NewFunc("make_it", types.NewPointer(st))
	m.Funcs = append(m.Funcs, retFn)

	argFn := ir.NewFunc("use_it", types.Void, ir.NewParam("p", types.NewPointer(st)))
	m.Funcs = append(m.Funcs, argFn)

	return m, retFn, argFn
}

func TestCollectShortcutCandidatesAndCreate(t *testing.T) {
	st := &types.StructType{TypeName: "struct.T", Fields: []types.Type{types.I32, types.I64}}
	m, retFn, argFn := newTestModule(st)

	c := ctxt.New()
	c.Nodes.SetModule(m)

	s := newShortcutState()
	s.collectShortcutCandidates(c, m)

	info := c.Layouts.LayoutOf(st)
	if _, ok := s.retStructs[info]; !ok {
		t.Fatalf("expected a return-struct candidate to be recorded")
	}
	if _, ok := s.argStructs[info]; !ok {
		t.Fatalf("expected an argument-struct candidate to be recorded")
	}

	g := NewGraph()
	s.create(c, g)

	retNode := c.Nodes.GetReturnNodeFor(retFn)
	argNode := c.Nodes.GetValueNodeFor(argFn.Params[0])
	if !s.isShortcutObj(retNode) {
		t.Fatalf("expected the return node to be marked as a shortcut object")
	}
	if !s.isShortcutObj(argNode) {
		t.Fatalf("expected the argument node to be marked as a shortcut object")
	}

	obj, ok := s.lookup(info)
	if !ok {
		t.Fatalf("expected a shared shortcut object to exist")
	}
	retPts, ok := g.Lookup(retNode)
	if !ok || !retPts.Has(obj) {
		t.Fatalf("expected the return node's points-to set to contain the shared object")
	}
}

func TestCreateIsGatedOnce(t *testing.T) {
	st := &types.StructType{TypeName: "struct.U", Fields: []types.Type{types.I32}}
	m, _, _ := newTestModule(st)

	c := ctxt.New()
	c.Nodes.SetModule(m)

	s := newShortcutState()
	s.collectShortcutCandidates(c, m)

	g := NewGraph()
	s.create(c, g)
	info := c.Layouts.LayoutOf(st)
	firstObj, _ := s.lookup(info)

	s.create(c, g)
	secondObj, _ := s.lookup(info)
	if firstObj != secondObj {
		t.Fatalf("expected create to be a no-op after the first call")
	}
}

func TestCreateSkipsTypeWithGlobal(t *testing.T) {
	st := &types.StructType{TypeName: "struct.V", Fields: []types.Type{types.I32}}
	m, _, _ := newTestModule(st)
	gv := ir.NewGlobal("g", types.NewPointer(st))
	m.Globals = append(m.Globals, gv)

	c := ctxt.New()
	c.Nodes.SetModule(m)

	s := newShortcutState()
	s.collectShortcutCandidates(c, m)

	g := NewGraph()
	s.create(c, g)

	info := c.Layouts.LayoutOf(st)
	if _, ok := s.lookup(info); ok {
		t.Fatalf("expected no shortcut object when a global of the same type exists")
	}
}
