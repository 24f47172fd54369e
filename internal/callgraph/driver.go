package callgraph

import (
	log "github.com/sirupsen/logrus"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
	"github.com/ChengyuSong/kernel-analyzer/internal/node"
)

// Driver runs the three-phase whole-program pass: doInitialization over
// every module, an iterative doModulePass fixpoint capped at
// MaxIterations, then doFinalization over every module — the Go analog
// of Global.h's IterativeModulePass::run, specialized to this one pass.
type Driver struct {
	// MaxIterations bounds how many times doModulePass revisits a
	// module's functions. The original hardcodes this at 2
	// (`Iteration < 2`); spec §9 asks for it to be configurable instead
	// of guessed at, so it is a field here with the same default.
	MaxIterations int

	// IsEntryPoint, if set, additionally marks any function whose name
	// it accepts as reachable during initialization, on top of the
	// original's hardcoded "main" root.
	IsEntryPoint func(name string) bool

	reachable map[*ir.Func]bool
	unvisited map[*ir.Func]bool

	graph     *Graph
	shortcuts *shortcutState
}

// NewDriver creates a Driver with the original's default iteration cap.
func NewDriver() *Driver {
	return &Driver{
		MaxIterations: 2,
		reachable:     make(map[*ir.Func]bool),
		unvisited:     make(map[*ir.Func]bool),
		graph:         NewGraph(),
		shortcuts:     newShortcutState(),
	}
}

// Graph exposes the points-to graph the driver accumulated, for callers
// that want to inspect it after Run (e.g. a report renderer).
func (d *Driver) Graph() *Graph { return d.graph }

// Reachable returns the set of functions found reachable from a root
// (main, or any configured entry point) during the run.
func (d *Driver) Reachable() map[*ir.Func]bool { return d.reachable }

func (d *Driver) markReachable(f *ir.Func) {
	if !d.reachable[f] {
		d.reachable[f] = true
		d.unvisited[f] = true
	}
}

// Run drives the whole pipeline over modules: basic per-module
// initialization, then doModulePass revisited up to MaxIterations
// times, then finalization. Each phase runs over every module before
// the next phase starts, matching IterativeModulePass::run's structure
// exactly (init over all modules, then the fixpoint loop, then
// finalize over all modules).
func (d *Driver) Run(c *ctxt.Context, modules []ctxt.Module) {
	for _, m := range modules {
		d.doInitialization(c, m.IR)
	}

	for iter := 0; iter < d.MaxIterations; iter++ {
		changed := false
		for _, m := range modules {
			if d.doModulePass(c, m.IR, iter) {
				changed = true
			}
		}
		log.Infof("callgraph: iteration %d changed=%v", iter, changed)
		if !changed {
			break
		}
	}

	for _, m := range modules {
		d.doFinalization(c, m.IR)
	}
}

// doInitialization seeds reachability roots, collects address-taken
// functions and their value->object edges, and gathers type-shortcut
// candidates for one module, matching CallGraph.cc's doInitialization.
func (d *Driver) doInitialization(c *ctxt.Context, m *ir.Module) {
	c.Nodes.SetModule(m)

	collectAddressTaken(c, m)

	for f := range c.AddressTaken {
		valNode := c.Nodes.CreateValueNode(f)
		objNode := c.Nodes.GetObjectNodeFor(f)
		if objNode == node.Invalid {
			objNode = c.Nodes.CreateObjectNode(f, 1, false, []bool{false})
		}
		d.graph.Insert(valNode, objNode)
		log.Debugf("callgraph: address-taken %s: %d -> %d", f.Name(), valNode, objNode)
	}

	for _, f := range m.Funcs {
		if f.Name() == "main" || (d.IsEntryPoint != nil && d.IsEntryPoint(f.Name())) {
			d.markReachable(f)
		}
	}

	d.shortcuts.collectShortcutCandidates(c, m)
}

// doModulePass runs the type-shortcut creation heuristic once (on the
// first call across the whole driver) and then runs every function's
// transfer functions once. iter is the current fixpoint iteration; the
// cap that CallGraph.cc's `if (Iteration < 2)` imposes is enforced by
// Run's loop over MaxIterations, and doModulePass does not consult iter.
func (d *Driver) doModulePass(c *ctxt.Context, m *ir.Module, iter int) bool {
	c.Nodes.SetModule(m)
	d.shortcuts.create(c, d.graph)

	changed := false
	fs := &funcState{ctx: c, graph: d.graph, shortcuts: d.shortcuts, d: d}
	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			continue // declaration, intrinsic, or otherwise body-less
		}
		if fs.runOnFunction(f) {
			changed = true
		}
	}
	return changed
}

// doFinalization recomputes Callers from Callees and populates
// CalleeByType for every indirect call site, matching CallGraph.cc's
// doFinalization. Both InstCall and TermInvoke sites are considered,
// the same pair handleCallLike's transfer functions treat uniformly.
func (d *Driver) doFinalization(c *ctxt.Context, m *ir.Module) {
	for _, f := range m.Funcs {
		for _, block := range f.Blocks {
			for _, inst := range block.Insts {
				if call, ok := inst.(*ir.InstCall); ok {
					finalizeCallSite(c, f, call, call.Callee, call.Args)
				}
			}
			if inv, ok := block.Term.(*ir.TermInvoke); ok {
				finalizeCallSite(c, f, inv, inv.Invokee, inv.Args)
			}
		}
	}
}

func finalizeCallSite(c *ctxt.Context, f *ir.Func, site ir.Instruction, callee value.Value, args []value.Value) {
	for target := range c.Callees[site] {
		c.Callers[target] = append(c.Callers[target], ctxt.CallSite{Caller: f, Inst: site})
	}
	if _, isDirect := callee.(*ir.Func); isDirect {
		return
	}
	v, ok := site.(value.Value)
	if !ok {
		return
	}
	matched := findCalleesByType(c, args, v.Type())
	if len(matched) > 0 {
		c.CalleeByType[site] = matched
	}
}
