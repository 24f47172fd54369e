// Command ircg builds a whole-program call graph over one or more
// LLVM IR files and prints the resolved indirect call sites, mirroring
// original_source/src/lib/KAMain.cc's driver (cl::list<std::string>
// InputFilenames, cl::opt<unsigned> VerboseLevel) translated to Go's
// flag package the way o2lab-go2's main.go and cmd/main.go use it.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ChengyuSong/kernel-analyzer/internal/callgraph"
	"github.com/ChengyuSong/kernel-analyzer/internal/config"
	"github.com/ChengyuSong/kernel-analyzer/internal/ctxt"
	"github.com/ChengyuSong/kernel-analyzer/internal/load"
	"github.com/ChengyuSong/kernel-analyzer/internal/report"
)

type entryFlags []string

func (e *entryFlags) String() string { return fmt.Sprint([]string(*e)) }
func (e *entryFlags) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func main() {
	verbose := flag.Int("verbose", 0, "Verbosity level (0 = warnings only, higher is more detail).")
	configPath := flag.String("config", "", "Path to a YAML analysis config file.")
	dumpEmpty := flag.Bool("dump-empty", true, "Report indirect call sites with an empty resolved callee set.")
	reportPath := flag.String("report", "", "If set, write an HTML call-graph report to this path.")
	help := flag.Bool("help", false, "Show all command-line options.")
	var entries entryFlags
	flag.Var(&entries, "entry", "Additional reachability-root function name pattern (repeatable).")
	flag.Parse()

	if *help {
		log.Println("Usage: ircg [options] <IR file>...")
		flag.PrintDefaults()
		return
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	switch {
	case *verbose >= 3:
		log.SetLevel(log.DebugLevel)
	case *verbose >= 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}

	if flag.NArg() == 0 {
		log.Fatalf("ircg: no input files given")
	}

	var cfg *config.Config
	if *configPath != "" {
		config.SetGlobalConfig(*configPath)
	}
	var err error
	cfg, err = config.LoadGlobal()
	if err != nil {
		log.Fatalf("ircg: %v", err)
	}
	cfg.EntryPoints = append(cfg.EntryPoints, entries...)
	if *reportPath != "" {
		cfg.ReportPath = *reportPath
	}
	if *dumpEmpty {
		cfg.DumpEmpty = true
	}

	if err := run(flag.Args(), cfg); err != nil {
		log.Fatalf("ircg: %v", err)
	}
}

func run(paths []string, cfg *config.Config) error {
	modules := load.Modules(paths)
	if len(modules) == 0 {
		return fmt.Errorf("no input file parsed successfully")
	}

	c := ctxt.New()
	load.BasicInitialize(c, modules)

	driver := callgraph.NewDriver()
	if cfg.MaxIterations > 0 {
		driver.MaxIterations = cfg.MaxIterations
	}
	driver.IsEntryPoint = cfg.IsEntryPoint
	driver.Run(c, modules)

	reachable := driver.Reachable()
	callgraph.DumpCallees(os.Stdout, c, reachable)
	callgraph.DumpCallers(os.Stdout, c)

	if cfg.ReportPath != "" {
		f, err := os.Create(cfg.ReportPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if err := report.Write(f, c); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		log.Infof("ircg: wrote report to %s", cfg.ReportPath)
	}

	return nil
}
