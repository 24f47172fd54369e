package load

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

func TestModulesSkipsUnparseableFiles(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.ll")
	if err := os.WriteFile(good, []byte("define void @main() {\nret void\n}\n"), 0o644); err != nil {
		t.Fatalf("writing good.ll: %v", err)
	}

	bad := filepath.Join(dir, "bad.ll")
	if err := os.WriteFile(bad, []byte("this is not valid LLVM IR {{{"), 0o644); err != nil {
		t.Fatalf("writing bad.ll: %v", err)
	}

	modules := Modules([]string{good, bad})
	if len(modules) != 1 {
		t.Fatalf("expected 1 module to parse successfully, got %d", len(modules))
	}
	if modules[0].Path != good {
		t.Fatalf("expected the surviving module to be %s, got %s", good, modules[0].Path)
	}
}

func TestModulesMissingFile(t *testing.T) {
	modules := Modules([]string{"/nonexistent/path/module.ll"})
	if len(modules) != 0 {
		t.Fatalf("expected no modules for a missing file, got %d", len(modules))
	}
}

func TestBasicInitializePopulatesSymbolTables(t *testing.T) {
	m := ir.NewModule()
	defFn := ir.NewFunc("defined_fn", types.Void)
	defFn.Blocks = append(defFn.Blocks, ir.NewBlock(""))
	declFn := ir.NewFunc("declared_fn", types.Void)
	m.Funcs = append(m.Funcs, defFn, declFn)

	gv := ir.NewGlobal("g", types.I32)
	gv.Init = nil
	extGv := ir.NewGlobal("ext_g", types.I32)
	m.Globals = append(m.Globals, gv, extGv)

	c := ctxt.New()
	BasicInitialize(c, []ctxt.Module{{IR: m, Path: "mod.ll"}})

	if c.Funcs["defined_fn"] != defFn {
		t.Fatalf("expected defined_fn to be recorded as a definition")
	}
	if c.ExtFuncs["declared_fn"] != declFn {
		t.Fatalf("expected declared_fn to be recorded as an external declaration")
	}
	if !c.InvolvedModules["mod.ll"] {
		t.Fatalf("expected mod.ll to be recorded as an involved module")
	}
	if len(c.Modules) != 1 {
		t.Fatalf("expected 1 module recorded, got %d", len(c.Modules))
	}
}

func TestBasicInitializeSkipsDuplicateDefinitions(t *testing.T) {
	m1 := ir.NewModule()
	fn1 := ir.NewFunc("dup", types.Void)
	fn1.Blocks = append(fn1.Blocks, ir.NewBlock(""))
	m1.Funcs = append(m1.Funcs, fn1)

	m2 := ir.NewModule()
	fn2 := ir.NewFunc("dup", types.Void)
	fn2.Blocks = append(fn2.Blocks, ir.NewBlock(""))
	m2.Funcs = append(m2.Funcs, fn2)

	c := ctxt.New()
	BasicInitialize(c, []ctxt.Module{{IR: m1, Path: "a.ll"}, {IR: m2, Path: "b.ll"}})

	if c.Funcs["dup"] != fn1 {
		t.Fatalf("expected the first definition of dup to be kept")
	}
}
