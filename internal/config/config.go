// Package config loads the YAML analysis configuration: entry-point
// patterns, excluded packages/files, the fixpoint iteration cap, and an
// optional HTML report path. The teacher carries no config file of its
// own (its AnalyzerConfig is built from flag.Args() and a Go slice
// literal); this package's YAML-tagged struct and Load/LoadGlobal shape
// are grounded on awslabs-ar-go-tools/analysis/config/config.go, the
// pack's own example of a YAML-driven analysis config.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the analysis's tunable knobs. Any field left unset in the
// YAML file keeps its Go zero value.
type Config struct {
	// EntryPoints lists regular expressions; a function whose name
	// matches one of them is treated as a reachability root in
	// addition to "main", per spec §6's -entry flag.
	EntryPoints []string `yaml:"entry-points"`

	// ExcludedFiles lists path patterns that IsExcluded matches against,
	// mirroring the teacher's config.ExcludedPkgs list
	// (analyzer.NewAnalyzerConfig's second argument). load.Modules does
	// not consult it; every input path given is parsed.
	ExcludedFiles []string `yaml:"excluded-files"`

	// MaxIterations overrides callgraph.Driver's default fixpoint cap.
	// Zero means "use the driver's own default".
	MaxIterations int `yaml:"max-iterations"`

	// ReportPath, if set, renders an HTML call-graph report there in
	// addition to the unconditional text dump.
	ReportPath string `yaml:"report-path"`

	// DumpEmpty records whether unresolved ("!!EMPTY") indirect call
	// sites are wanted in the text dump. callgraph.DumpCallees does not
	// read it: it always includes them.
	DumpEmpty bool `yaml:"dump-empty"`

	entryPointRegexps []*regexp.Regexp
}

var globalConfigFile string

// SetGlobalConfig records the config file path set via the -config flag.
func SetGlobalConfig(path string) { globalConfigFile = path }

// LoadGlobal loads whatever config file SetGlobalConfig recorded, or
// returns a zero-value Config if none was set.
func LoadGlobal() (*Config, error) {
	if globalConfigFile == "" {
		return &Config{}, nil
	}
	return Load(globalConfigFile)
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	for _, pattern := range c.EntryPoints {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("config: entry-points pattern %q: %w", pattern, err)
		}
		c.entryPointRegexps = append(c.entryPointRegexps, re)
	}
	return &c, nil
}

// IsEntryPoint reports whether name matches one of the configured
// entry-point patterns.
func (c *Config) IsEntryPoint(name string) bool {
	for _, re := range c.entryPointRegexps {
		if re.MatchString(name) {
			return true
		}
	}
	// Patterns appended to EntryPoints after Load (the -entry flag) have
	// no compiled form; match them directly.
	for _, pattern := range c.EntryPoints[len(c.entryPointRegexps):] {
		if ok, _ := regexp.MatchString(pattern, name); ok {
			return true
		}
	}
	return false
}

// IsExcluded reports whether path matches one of the configured
// excluded-file patterns (exact match or, failing that, an unanchored
// regular-expression match).
func (c *Config) IsExcluded(path string) bool {
	for _, pattern := range c.ExcludedFiles {
		if pattern == path {
			return true
		}
		if ok, _ := regexp.MatchString(pattern, path); ok {
			return true
		}
	}
	return false
}
