package callgraph

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
	"github.com/ChengyuSong/kernel-analyzer/internal/node"
	"github.com/ChengyuSong/kernel-analyzer/internal/structlayout"
)

// shortcutState tracks the type-shortcut scalability heuristic (spec
// §4.5): when a struct-pointer type is used as both a return value and
// an argument type somewhere in the module, and no global variable
// shares that type, every return/argument site of that type is
// collapsed onto one shared abstract object instead of tracking each
// allocation separately. This trades precision for termination on
// modules where a naive allocation-site model would blow up the node
// count. Grounded on CallGraph.cc's doModulePass "create type shortcut"
// block and its retStructs/argStructs/globalStructs collection in
// doInitialization.
type shortcutState struct {
	retStructs    map[*structlayout.Info]map[node.Index]bool
	argStructs    map[*structlayout.Info]map[node.Index]bool
	globalStructs map[*structlayout.Info]map[node.Index]bool

	objects   map[*structlayout.Info]node.Index // struct layout -> shared shortcut object
	shortcuts map[node.Index]bool                // value nodes rewritten to use a shortcut object
	created   bool
}

func newShortcutState() *shortcutState {
	return &shortcutState{
		retStructs:    make(map[*structlayout.Info]map[node.Index]bool),
		argStructs:    make(map[*structlayout.Info]map[node.Index]bool),
		globalStructs: make(map[*structlayout.Info]map[node.Index]bool),
		objects:       make(map[*structlayout.Info]node.Index),
		shortcuts:     make(map[node.Index]bool),
	}
}

func (s *shortcutState) isShortcutObj(idx node.Index) bool { return s.shortcuts[idx] }

func addToSet(m map[*structlayout.Info]map[node.Index]bool, info *structlayout.Info, idx node.Index) {
	set := m[info]
	if set == nil {
		set = make(map[node.Index]bool)
		m[info] = set
	}
	set[idx] = true
}

// collectShortcutCandidates records, for one module's globals and
// functions, every struct-pointer return type, argument type, and
// global-variable type seen — the raw material create() consults once
// every module has been scanned.
func (s *shortcutState) collectShortcutCandidates(c *ctxt.Context, m *ir.Module) {
	for _, gv := range m.Globals {
		st := elementStructType(gv.ContentType)
		if st == nil {
			continue
		}
		info := c.Layouts.LayoutOf(st)
		valNode := c.Nodes.CreateValueNode(gv)
		addToSet(s.globalStructs, info, valNode)
	}

	for _, fn := range m.Funcs {
		if st := elementStructType(fn.Sig.RetType); st != nil {
			info := c.Layouts.LayoutOf(st)
			retNode := c.Nodes.CreateReturnNodeFor(fn)
			addToSet(s.retStructs, info, retNode)
		}
		for _, p := range fn.Params {
			if st := elementStructType(p.Type()); st != nil {
				info := c.Layouts.LayoutOf(st)
				argNode := c.Nodes.CreateValueNode(p)
				addToSet(s.argStructs, info, argNode)
			}
		}
	}
}

func elementStructType(t types.Type) *types.StructType {
	ptr, ok := t.(*types.PointerType)
	if !ok {
		return nil
	}
	st, ok := ptr.ElemType.(*types.StructType)
	if !ok {
		return nil
	}
	return st
}

// create builds the shared shortcut object for every candidate struct
// type that appears as both a return and an argument type, and no
// global variable shares that type. It runs once, the first time
// doModulePass is entered (the original gates this on
// `typeShortcuts.empty()`).
func (s *shortcutState) create(c *ctxt.Context, g *Graph) {
	if s.created {
		return
	}
	s.created = true

	for info, retNodes := range s.retStructs {
		argNodes, hasArgs := s.argStructs[info]
		if !hasArgs {
			continue
		}
		if _, hasGlobal := s.globalStructs[info]; hasGlobal {
			continue
		}

		obj := c.Nodes.CreateObjectNode(nil, info.ExpandedSize(), false, info.Unions())
		s.objects[info] = obj

		for n := range retNodes {
			g.Insert(n, obj)
			s.shortcuts[n] = true
		}
		for n := range argNodes {
			g.Insert(n, obj)
			s.shortcuts[n] = true
		}
	}
}

// lookup returns the shared shortcut object for a struct layout, if one
// was created, used by the Load transfer function's fast path.
func (s *shortcutState) lookup(info *structlayout.Info) (node.Index, bool) {
	obj, ok := s.objects[info]
	return obj, ok
}

// markApplied records that valNode's points-to set has been seeded from
// a type shortcut, so later iterations skip it (CallGraph.cc's
// typeShortcutsObj fast path in the Load case).
func (s *shortcutState) markApplied(valNode node.Index) { s.shortcuts[valNode] = true }
