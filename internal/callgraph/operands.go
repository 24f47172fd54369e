package callgraph

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// operandsOf and termOperandsOf dereference the *value.Value slots
// llir/llvm's Instruction/Terminator interfaces expose via Operands().
// The library keeps no use-lists (no Function.Users() equivalent), so
// every address-taken and caller-site computation in this package walks
// operands explicitly instead, once per module, rather than querying a
// use-list that doesn't exist.
func operandsOf(inst ir.Instruction) []value.Value {
	ptrs := inst.Operands()
	out := make([]value.Value, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

func termOperandsOf(term ir.Terminator) []value.Value {
	ptrs := term.Operands()
	out := make([]value.Value, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}
