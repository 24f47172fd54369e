// Package ctxt holds the cross-module state one whole-program
// call-graph run threads through every phase: the node factory and
// struct layout oracle, the name-keyed function/global maps, the
// address-taken set, the Callers/Callees/CalleeByType results, the
// global-init points-to graph, and the module list itself. It is the
// Go shape of the analysis's GlobalContext.
package ctxt

import (
	"github.com/llir/llvm/ir"

	"github.com/ChengyuSong/kernel-analyzer/internal/node"
	"github.com/ChengyuSong/kernel-analyzer/internal/ptset"
	"github.com/ChengyuSong/kernel-analyzer/internal/structlayout"
)

// Module pairs one parsed LLVM module with the source path it was
// loaded from, mirroring the original's ModuleList entries.
type Module struct {
	IR   *ir.Module
	Path string
}

// CallSite is a call or invoke instruction together with the function
// that contains it — the Callers map's value type needs both to report
// a human-readable caller list.
type CallSite struct {
	Caller *ir.Func
	Inst   ir.Instruction
}

// Context is the state shared by every phase of one analysis run: the
// node factory, struct layout oracle, name-keyed symbol tables, and the
// accumulated call-graph results.
type Context struct {
	Nodes   *node.Factory
	Layouts *structlayout.Oracle

	// Symbol tables keyed by linker name, populated during basic
	// initialization (one pass over every loaded module, before the
	// iterative driver starts) so that a declaration in one module
	// resolves against a definition in another.
	Funcs    map[string]*ir.Func // name -> definition
	ExtFuncs map[string]*ir.Func // name -> a single declaration, for externs with no definition anywhere
	Gobjs    map[string]*ir.Global
	ExtGobjs map[string]*ir.Global

	// FuncPtrs maps a value node holding function pointers to the set
	// of functions it may point to. callgraph.Driver does not populate
	// it; it stays empty after a run.
	FuncPtrs map[node.Index]map[*ir.Func]bool

	// AddressTaken is the set of functions that appear anywhere as a
	// value rather than solely as a call target — computed via an
	// operand walk since llir/llvm keeps no use-lists (see
	// internal/callgraph/resolver.go).
	AddressTaken map[*ir.Func]bool

	// Callees maps a call or invoke instruction, direct or indirect, to
	// every function it was resolved to call. Callers is the inverse: a
	// function to every such call site that may call it.
	Callees map[ir.Instruction]map[*ir.Func]bool
	Callers map[*ir.Func][]CallSite

	// SiteCaller maps every call/invoke instruction seen to the
	// function it appears in, recorded unconditionally (even when
	// resolution finds zero callees) so diagnostics like an "empty
	// callee set" report can still name the caller.
	SiteCaller map[ir.Instruction]*ir.Func

	// CalleeByType maps an indirect call site to the address-taken
	// functions whose signatures findCalleesByType found compatible
	// with it, the type-based fallback used when points-to resolution
	// of a call target comes up empty. Keyed
	// by the call/invoke instruction itself: an Ident() string is only
	// unique within its own function, so two indirect call sites in
	// different functions that both land on the unnamed result "%1"
	// would otherwise collide.
	CalleeByType map[ir.Instruction]map[*ir.Func]bool

	IndirectCalls []ir.Instruction

	// AllocSites is a set of call instructions for heap allocation
	// wrappers. handleCall's "alloc"-substring heuristic does not record
	// into it; it stays empty after a run.
	AllocSites map[ir.Instruction]bool

	// GlobalInitPtsGraph is a points-to graph for global-variable
	// initializers, separate from the driver's own graph. Global
	// initializers are not modeled, so it stays empty after a run.
	GlobalInitPtsGraph map[node.Index]*ptset.Set

	Modules []Module

	// InvolvedModules is every module path actually used during the
	// analysis (non-empty, successfully parsed), for diagnostics.
	InvolvedModules map[string]bool
}

// New creates an empty Context ready for basic initialization.
func New() *Context {
	return &Context{
		Nodes:               node.NewFactory(),
		Layouts:             structlayout.NewOracle(),
		Funcs:               make(map[string]*ir.Func),
		ExtFuncs:            make(map[string]*ir.Func),
		Gobjs:               make(map[string]*ir.Global),
		ExtGobjs:            make(map[string]*ir.Global),
		FuncPtrs:            make(map[node.Index]map[*ir.Func]bool),
		AddressTaken:        make(map[*ir.Func]bool),
		Callees:             make(map[ir.Instruction]map[*ir.Func]bool),
		Callers:             make(map[*ir.Func][]CallSite),
		SiteCaller:          make(map[ir.Instruction]*ir.Func),
		CalleeByType:        make(map[ir.Instruction]map[*ir.Func]bool),
		AllocSites:          make(map[ir.Instruction]bool),
		GlobalInitPtsGraph:  make(map[node.Index]*ptset.Set),
		InvolvedModules:     make(map[string]bool),
		Modules:             nil,
	}
}

// AddCallee records that call resolves to callee, used by both direct
// dispatch and every indirect-resolution strategy in
// internal/callgraph/resolver.go.
func (c *Context) AddCallee(call ir.Instruction, callee *ir.Func) {
	set := c.Callees[call]
	if set == nil {
		set = make(map[*ir.Func]bool)
		c.Callees[call] = set
	}
	set[callee] = true
}
