// Package pyre is the public entry point to the Pyre compiler: it wires
// together the File Parser, Rule Parser, and Rule Builder into a single
// Compile/CompileFile call that turns Pyre source into parallel
// iptables-restore and ip6tables-restore scripts.
package pyre

import (
	"strings"

	"github.com/pyre-fw/pyre/internal/config"
	"github.com/pyre-fw/pyre/internal/fileparser"
	"github.com/pyre-fw/pyre/pkg/logger"
)

// Result holds the two compiled rule streams.
type Result struct {
	V4 []string
	V6 []string
}

// Warner receives non-fatal diagnostics. *logger.Logger satisfies this.
type Warner interface {
	Warn(msg string, kvs ...interface{})
}

// Compile compiles Pyre source text held entirely in memory (no
// @import resolution against the filesystem beyond what cfg.SearchPaths
// allows) into v4/v6 iptables-restore scripts.
func Compile(source string, cfg *config.Config, warn Warner) (*Result, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if warn == nil {
		warn = logger.Discard()
	}

	fp := fileparser.New(cfg, warn)
	for _, line := range strings.Split(source, "\n") {
		if err := fp.ProcessLine(line); err != nil {
			return nil, err
		}
	}
	if err := fp.Finish(); err != nil {
		return nil, err
	}
	return &Result{V4: fp.OutputV4(), V6: fp.OutputV6()}, nil
}

// CompileFile compiles a Pyre source file (and any files it @imports)
// into v4/v6 iptables-restore scripts.
func CompileFile(path string, cfg *config.Config, warn Warner) (*Result, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if warn == nil {
		warn = logger.Discard()
	}

	fp := fileparser.New(cfg, warn)
	if err := fp.ParseFile(path); err != nil {
		return nil, err
	}
	if err := fp.Finish(); err != nil {
		return nil, err
	}
	return &Result{V4: fp.OutputV4(), V6: fp.OutputV6()}, nil
}
