package callgraph

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

func TestIsCompatibleTypeIdentical(t *testing.T) {
	if !isCompatibleType(types.I32, types.I32) {
		t.Fatalf("identical types must be compatible")
	}
}

func TestIsCompatibleTypeVoidPointerIsUniversal(t *testing.T) {
	voidPtr := types.NewPointer(types.I8)
	intPtr := types.NewPointer(types.I32)
	if !isCompatibleType(voidPtr, intPtr) {
		t.Fatalf("expected i8* to be compatible with any pointer type")
	}
	if !isCompatibleType(intPtr, voidPtr) {
		t.Fatalf("expected compatibility to be symmetric for i8*")
	}
}

func TestIsCompatibleTypePointerElementMismatch(t *testing.T) {
	a := types.NewPointer(types.I32)
	b := types.NewPointer(types.Float)
	if isCompatibleType(a, b) {
		t.Fatalf("i32* and float* should not be compatible")
	}
}

func TestIsCompatibleTypeIntAndPointer(t *testing.T) {
	addrSpace64 := &types.PointerType{ElemType: types.I32, AddrSpace: 64}
	if !isCompatibleType(types.I64, addrSpace64) {
		t.Fatalf("expected an int whose bit width matches the pointer's address space to be compatible")
	}
	if isCompatibleType(types.I32, addrSpace64) {
		t.Fatalf("expected an int whose bit width does not match the pointer's address space to be incompatible")
	}
	defaultSpacePtr := types.NewPointer(types.I32) // address space 0
	if isCompatibleType(types.I64, defaultSpacePtr) {
		t.Fatalf("expected a 64-bit int not to be compatible with a default-address-space (0) pointer")
	}
}

func TestIsCompatibleTypeLiteralStructs(t *testing.T) {
	a := types.NewStruct(types.I32, types.I64)
	b := types.NewStruct(types.I32, types.I64)
	if !isCompatibleType(a, b) {
		t.Fatalf("literal structs with the same field types should be compatible")
	}

	c := types.NewStruct(types.I32)
	if isCompatibleType(a, c) {
		t.Fatalf("literal structs with a different field count should not be compatible")
	}
}

func TestIsCompatibleTypeNamedStructsByName(t *testing.T) {
	a := &types.StructType{TypeName: "struct.Foo", Fields: []types.Type{types.I32}}
	b := &types.StructType{TypeName: "struct.Foo", Fields: []types.Type{types.I64}}
	if !isCompatibleType(a, b) {
		t.Fatalf("named structs with the same name should be compatible regardless of field types")
	}

	c := &types.StructType{TypeName: "struct.Bar", Fields: []types.Type{types.I32}}
	if isCompatibleType(a, c) {
		t.Fatalf("named structs with different names should not be compatible")
	}
}

func TestIsCompatibleTypeFuncSignature(t *testing.T) {
	a := types.NewFunc(types.Void, types.I32, types.I32)
	b := types.NewFunc(types.Void, types.I32, types.I32)
	if !isCompatibleType(a, b) {
		t.Fatalf("identical function signatures should be compatible")
	}

	c := types.NewFunc(types.Void, types.I32)
	if isCompatibleType(a, c) {
		t.Fatalf("function signatures with different arity should not be compatible")
	}
}

func TestIsI8(t *testing.T) {
	if !isI8(types.I8) {
		t.Fatalf("expected I8 to be recognized")
	}
	if isI8(types.I32) {
		t.Fatalf("did not expect I32 to be recognized as i8")
	}
}

// TestCollectAddressTakenFindsFunctionInGlobalInitializer covers a
// function referenced only from a global ops-table-style aggregate
// (e.g. a struct of function pointers), never from any instruction
// operand — the case an instruction-only operand walk would miss.
func TestCollectAddressTakenFindsFunctionInGlobalInitializer(t *testing.T) {
	m := ir.NewModule()

	target := ir.NewFunc("target", types.Void)
	tb := ir.NewBlock("")
	tb.Term = ir.NewRet(nil)
	target.Blocks = append(target.Blocks, tb)
	m.Funcs = append(m.Funcs, target)

	opsType := types.NewStruct(types.NewPointer(target.Sig))
	g := ir.NewGlobal("ops_table", opsType)
	g.Init = &constant.Struct{Typ: opsType, Fields: []constant.Constant{target}}
	m.Globals = append(m.Globals, g)

	c := ctxt.New()
	collectAddressTaken(c, m)

	if !c.AddressTaken[target] {
		t.Fatalf("expected target to be address-taken via the global initializer")
	}
}

// TestCollectAddressTakenGlobalReferenceSurvivesDirectCallCleanup
// guards the interaction between the global-initializer walk and the
// direct-call cleanup pass: a function reachable only through a global
// initializer has no function-body occurrence at all, so the cleanup
// pass must not delete it as if it were "only ever directly called".
func TestCollectAddressTakenGlobalReferenceSurvivesDirectCallCleanup(t *testing.T) {
	m := ir.NewModule()

	target := ir.NewFunc("target", types.Void)
	tb := ir.NewBlock("")
	tb.Term = ir.NewRet(nil)
	target.Blocks = append(target.Blocks, tb)

	caller := ir.NewFunc("caller", types.Void)
	cb := ir.NewBlock("")
	cb.Insts = append(cb.Insts, ir.NewCall(target))
	cb.Term = ir.NewRet(nil)
	caller.Blocks = append(caller.Blocks, cb)

	m.Funcs = append(m.Funcs, target, caller)

	opsType := types.NewStruct(types.NewPointer(target.Sig))
	g := ir.NewGlobal("ops_table", opsType)
	g.Init = &constant.Struct{Typ: opsType, Fields: []constant.Constant{target}}
	m.Globals = append(m.Globals, g)

	c := ctxt.New()
	collectAddressTaken(c, m)

	if !c.AddressTaken[target] {
		t.Fatalf("expected target to remain address-taken despite also being called directly")
	}
}

func TestIsAllocWrapper(t *testing.T) {
	if !isAllocWrapper("kmalloc") {
		t.Fatalf("expected kmalloc to be recognized as an allocator")
	}
	if !isAllocWrapper("xmalloc_wrapper") {
		t.Fatalf("expected xmalloc_wrapper to be recognized as an allocator")
	}
	if isAllocWrapper("memcpy") {
		t.Fatalf("did not expect memcpy to be recognized as an allocator")
	}
}
