// Package load parses LLVM IR assembly (.ll) files into the module
// set the analysis runs over, skipping files that fail to parse rather
// than aborting the whole run — matching KAMain.cc's main() loop, which
// logs a parse failure and continues to the next input file.
package load

import (
	log "github.com/sirupsen/logrus"

	"github.com/llir/llvm/asm"

	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
)

// Modules parses every path in paths, in order, returning one
// ctxt.Module per file that parsed successfully. A parse failure is
// logged as a warning and that file is skipped, so one malformed input
// does not fail an entire batch run.
func Modules(paths []string) []ctxt.Module {
	var out []ctxt.Module
	for _, path := range paths {
		m, err := asm.ParseFile(path)
		if err != nil {
			log.Warnf("load: skipping %s: %v", path, err)
			continue
		}
		out = append(out, ctxt.Module{IR: m, Path: path})
	}
	log.Infof("load: parsed %d of %d input files", len(out), len(paths))
	return out
}

// BasicInitialize populates the name-keyed symbol tables every module
// needs before the iterative driver starts: a function or global
// defined in one module must be resolvable from a declaration
// referencing it in another. Grounded on KAMain.cc's
// doBasicInitialization.
func BasicInitialize(c *ctxt.Context, modules []ctxt.Module) {
	for _, m := range modules {
		c.Modules = append(c.Modules, m)
		c.InvolvedModules[m.Path] = true

		for _, f := range m.IR.Funcs {
			if len(f.Blocks) == 0 {
				if _, exists := c.ExtFuncs[f.Name()]; !exists {
					c.ExtFuncs[f.Name()] = f
				}
				continue
			}
			if existing, exists := c.Funcs[f.Name()]; exists {
				log.Warnf("load: duplicate definition of function %s (keeping %p, ignoring %p)", f.Name(), existing, f)
				continue
			}
			c.Funcs[f.Name()] = f
		}

		for _, g := range m.IR.Globals {
			if g.Init == nil {
				if _, exists := c.ExtGobjs[g.Name()]; !exists {
					c.ExtGobjs[g.Name()] = g
				}
				continue
			}
			if _, exists := c.Gobjs[g.Name()]; !exists {
				c.Gobjs[g.Name()] = g
			}
		}
	}
}
