// Package fileparser implements the File Parser: it consumes
// a sequence of Pyre source lines, handling control directives
// (@table, @chain, @import) and delegating ordinary rule lines to the
// Rule Parser, batching the results into per-table iptables-restore
// sections.
package fileparser

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pyre-fw/pyre/internal/chain"
	"github.com/pyre-fw/pyre/internal/config"
	"github.com/pyre-fw/pyre/internal/pyreerr"
	"github.com/pyre-fw/pyre/internal/ruleparser"
)

// Warner is the diagnostic sink for non-fatal warnings; *logger.Logger
// satisfies this.
type Warner interface {
	Warn(msg string, kvs ...interface{})
}

// Parser is the File Parser's mutable state.
type Parser struct {
	cfg *config.Config
	log Warner

	currentTable  string
	chainPolicies map[chain.Ref]chain.Policy

	cacheV4, cacheV6   []string
	outputV4, outputV6 []string
	committed          bool

	importStack []string // resolved absolute paths, for cycle detection
}

// New creates a File Parser initialised with the default table and its
// default chain policies.
func New(cfg *config.Config, log Warner) *Parser {
	p := &Parser{
		cfg:          cfg,
		log:          log,
		currentTable: cfg.DefaultTable,
		committed:    true,
	}
	p.chainPolicies = chain.DefaultPolicies(p.currentTable)
	return p
}

// OutputV4 returns the accumulated v4 iptables-restore script.
func (p *Parser) OutputV4() []string { return p.outputV4 }

// OutputV6 returns the accumulated v6 iptables-restore script.
func (p *Parser) OutputV6() []string { return p.outputV6 }

// ParseFile reads path line by line and processes it, following any
// @import directives it contains. Call Finish afterwards to flush the
// final table's cache.
func (p *Parser) ParseFile(path string) error {
	resolved, err := p.cfg.ResolvePyreFile(path)
	if err != nil {
		return err
	}
	return p.parseResolvedFile(resolved)
}

func (p *Parser) parseResolvedFile(resolved string) error {
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	for _, seen := range p.importStack {
		if seen == resolved {
			return pyreerr.ErrImportCycle.WithToken(resolved)
		}
	}
	p.importStack = append(p.importStack, resolved)
	defer func() {
		p.importStack = p.importStack[:len(p.importStack)-1]
	}()

	f, err := os.Open(resolved)
	if err != nil {
		return pyreerr.ErrFileNotFound.WithToken(resolved).Wrap(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := p.ProcessLine(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Finish flushes any pending cache into the output streams. Call this
// once after the top-level file (and all its imports) have been
// processed.
func (p *Parser) Finish() error {
	return p.commit()
}

// ProcessLine handles one source line: blank/comment lines are skipped,
// control directives dispatch to their handler, everything else goes to
// the Rule Parser and its emitted lines are appended to the per-family
// caches.
func (p *Parser) ProcessLine(raw string) error {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "@table":
		return p.directiveTable(fields[1:])
	case "@chain":
		return p.directiveChain(fields[1:])
	case "@import":
		return p.directiveImport(fields[1:])
	}

	rp := ruleparser.New(p.cfg.Strict, p.currentTable, p.log)
	v4, v6, err := rp.ParseLine(line)
	if err != nil {
		return err
	}
	p.cacheV4 = append(p.cacheV4, v4...)
	p.cacheV6 = append(p.cacheV6, v6...)
	p.committed = false
	return nil
}

// directiveTable implements "@table <name>".
func (p *Parser) directiveTable(args []string) error {
	if len(args) == 0 {
		return pyreerr.ErrMissingArg.WithToken("@table")
	}
	name := args[0]
	if name == p.currentTable {
		return nil
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.currentTable = name
	p.chainPolicies = chain.DefaultPolicies(name)
	return nil
}

// directiveChain implements "@chain <name> [policy] [counters]".
func (p *Parser) directiveChain(args []string) error {
	if len(args) == 0 {
		return pyreerr.ErrMissingArg.WithToken("@chain")
	}
	name := chain.Ref(strings.ToUpper(args[0]))
	policy := "ACCEPT"
	counters := chain.DefaultCounters
	if len(args) >= 2 {
		policy = strings.ToUpper(args[1])
	}
	if len(args) >= 3 {
		counters = args[2]
	}
	p.chainPolicies[name] = chain.Policy{Target: policy, Counters: counters}
	return nil
}

// directiveImport implements "@import [type] <path>".
func (p *Parser) directiveImport(args []string) error {
	if len(args) == 0 {
		return pyreerr.ErrMissingArg.WithToken("@import")
	}

	kind := ""
	path := args[0]
	if len(args) >= 2 {
		if k, ok := config.ParseImportKind(args[0]); ok {
			kind = k
			path = args[1]
		}
	}
	if kind == "" {
		kind = p.cfg.InferImportKind(path)
	}

	resolved, err := p.cfg.FindFile(path)
	if err != nil {
		return err
	}

	switch kind {
	case config.ImportPyre:
		return p.parseResolvedFile(resolved)
	case config.ImportV4:
		lines, err := readStrippedLines(resolved)
		if err != nil {
			return err
		}
		p.cacheV4 = append(p.cacheV4, lines...)
		p.committed = false
		return nil
	case config.ImportV6:
		lines, err := readStrippedLines(resolved)
		if err != nil {
			return err
		}
		p.cacheV6 = append(p.cacheV6, lines...)
		p.committed = false
		return nil
	default:
		return pyreerr.ErrSyntax.WithToken(kind)
	}
}

func readStrippedLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pyreerr.ErrFileNotFound.WithToken(path).Wrap(err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// commit flushes the current per-family caches into framed sections in
// the output streams. An empty cache for a family is a no-op for that
// family, and calling commit again before any new line is processed is
// a no-op entirely.
func (p *Parser) commit() error {
	if p.committed {
		return nil
	}

	if len(p.cacheV4) > 0 {
		p.outputV4 = append(p.outputV4, p.frameSection(p.cacheV4)...)
	}
	if len(p.cacheV6) > 0 {
		p.outputV6 = append(p.outputV6, p.frameSection(p.cacheV6)...)
	}

	p.cacheV4 = nil
	p.cacheV6 = nil
	p.committed = true
	p.chainPolicies = chain.DefaultPolicies(p.currentTable)
	return nil
}

// frameSection wraps cached rule lines in "*<table>" / chain headers /
// "COMMIT" / end-marker framing, in default-chain order first followed
// by any chains added via @chain that aren't part of the default set.
func (p *Parser) frameSection(cache []string) []string {
	out := make([]string, 0, len(cache)+3)
	out = append(out, "*"+p.currentTable)

	for _, c := range chain.DefaultChains(p.currentTable) {
		pol := p.chainPolicies[c]
		out = append(out, fmt.Sprintf(":%s %s %s", c, pol.Target, pol.Counters))
	}
	for _, c := range p.extraChains() {
		out = append(out, fmt.Sprintf(":%s %s %s", c, p.chainPolicies[c].Target, p.chainPolicies[c].Counters))
	}

	out = append(out, cache...)
	out = append(out, "COMMIT")
	out = append(out, fmt.Sprintf("### End of table %s ###", p.currentTable))
	return out
}

// extraChains returns the chain_policies keys that aren't part of the
// current table's default set, sorted so output is deterministic across
// runs (chainPolicies is a map, whose iteration order Go deliberately
// randomises).
func (p *Parser) extraChains() []chain.Ref {
	defaults := make(map[chain.Ref]bool)
	for _, c := range chain.DefaultChains(p.currentTable) {
		defaults[c] = true
	}
	var extra []chain.Ref
	for c := range p.chainPolicies {
		if !defaults[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return extra
}
