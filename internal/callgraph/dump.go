package callgraph

import (
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/llir/llvm/ir"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

// DumpCallees writes, for every indirect call site with at least one
// resolved callee, one line per resolved target, then reports every
// indirect call site whose points-to set came up empty — annotated
// with its TypeMatch fallback candidates, if any — matching
// CallGraph.cc's dumpCallees (including its "!!EMPTY" diagnostic).
func DumpCallees(w io.Writer, c *ctxt.Context, reachable map[*ir.Func]bool) {
	log.Infof("callgraph: %d call sites with resolved callees", len(c.Callees))

	sites := sortedCallSites(c.Callees)
	empty := 0
	for _, call := range sites {
		if isDirectCall(call) {
			continue // direct calls are not dumped
		}
		targets := c.Callees[call]
		if len(targets) == 0 {
			empty++
			continue
		}
		for _, f := range sortedFuncs(targets) {
			fmt.Fprintf(w, "%v\t%s\n", call, f.Name())
		}
	}
	log.Infof("callgraph: %d empty callee sets", empty)

	for _, call := range sites {
		targets := c.Callees[call]
		if len(targets) != 0 {
			continue
		}
		if reachable != nil {
			if caller, ok := c.SiteCaller[call]; ok && !reachable[caller] {
				continue
			}
		}
		fmt.Fprintf(w, "!!EMPTY =>%v\n", call)
		if tv, ok := c.CalleeByType[call]; ok && len(tv) > 0 {
			fmt.Fprint(w, "TypeMatch: ")
			for _, f := range sortedFuncs(tv) {
				fmt.Fprintf(w, "%s ", f.Name())
			}
			fmt.Fprintln(w)
		}
	}
}

func isDirectCall(call ir.Instruction) bool {
	switch c := call.(type) {
	case *ir.InstCall:
		_, direct := c.Callee.(*ir.Func)
		return direct
	case *ir.TermInvoke:
		_, direct := c.Invokee.(*ir.Func)
		return direct
	default:
		return false
	}
}

// DumpCallers writes, for every function with at least one recorded
// call site, every caller site that may reach it, matching
// CallGraph.cc's dumpCallers.
func DumpCallers(w io.Writer, c *ctxt.Context) {
	funcs := make([]*ir.Func, 0, len(c.Callers))
	for f := range c.Callers {
		funcs = append(funcs, f)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name() < funcs[j].Name() })

	for _, f := range funcs {
		fmt.Fprintf(w, "F : %s\n", f.Name())
		for _, cs := range c.Callers[f] {
			if cs.Caller != nil {
				fmt.Fprintf(w, "\t(%s) %v\n", cs.Caller.Name(), cs.Inst)
			} else {
				fmt.Fprintf(w, "\t(anonymous) %v\n", cs.Inst)
			}
		}
	}
}

func sortedCallSites(m map[ir.Instruction]map[*ir.Func]bool) []ir.Instruction {
	out := make([]ir.Instruction, 0, len(m))
	for call := range m {
		out = append(out, call)
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out
}

func sortedFuncs(m map[*ir.Func]bool) []*ir.Func {
	out := make([]*ir.Func, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
