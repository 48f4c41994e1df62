// Package ruleparser implements the Rule Parser: it tokenises
// one Pyre source line, dispatches each keyword to a handler that mutates
// a Rule Builder, then asks the builder to emit lines for whichever
// address families the line implicated.
package ruleparser

import (
	"strings"

	"github.com/pyre-fw/pyre/internal/action"
	"github.com/pyre-fw/pyre/internal/builder"
	"github.com/pyre-fw/pyre/internal/chain"
	"github.com/pyre-fw/pyre/internal/family"
	"github.com/pyre-fw/pyre/internal/lexer"
	"github.com/pyre-fw/pyre/internal/netspec"
	"github.com/pyre-fw/pyre/internal/pyreerr"
)

// Warner receives non-fatal diagnostics (unknown keywords, dropped ports)
// when the parser is not running in strict mode. *logger.Logger satisfies
// this with its Warn method; tests can pass a small stub.
type Warner interface {
	Warn(msg string, kvs ...interface{})
}

// Parser holds the settings a line is parsed under: whether unknown
// keywords/invalid ports are fatal, and which table's default chains
// "all" expands to.
type Parser struct {
	Strict bool
	Table  string
	Warn   Warner
}

// New creates a Parser. table is the owning File Parser's current table
// (used by the "all" keyword); it defaults to "filter" when empty.
func New(strict bool, table string, warn Warner) *Parser {
	if table == "" {
		table = "filter"
	}
	return &Parser{Strict: strict, Table: table, Warn: warn}
}

const defaultPrimaryChain = chain.Ref("INPUT")

// ParseLine tokenises and interprets one source line, returning the
// iptables-restore lines it emits for each family. Both slices are nil
// for a blank or pure-comment line, or for a line dropped by a
// non-strict warning.
func (p *Parser) ParseLine(line string) (v4, v6 []string, err error) {
	tokens := lexer.Tokenize(line)
	if len(tokens) == 0 {
		return nil, nil, nil
	}

	b := builder.New(defaultPrimaryChain)
	cur := tokens
	seg := 0

	for len(cur) > 0 {
		kw := strings.ToLower(cur[0])
		h, ok := dispatch[kw]
		if !ok {
			if p.Strict {
				return nil, nil, pyreerr.ErrUnknownKw.WithToken(cur[0])
			}
			p.warnf("unknown keyword dropped", "keyword", cur[0])
			return nil, nil, nil
		}
		rest, herr := h(p, b, cur[1:], seg)
		if herr != nil {
			if p.Strict {
				return nil, nil, herr
			}
			p.warnf("rule line dropped", "error", herr.Error())
			return nil, nil, nil
		}
		cur = rest
		seg++
	}

	if !b.HasV4 && !b.HasV6 {
		lines := b.Build(family.V4)
		return lines, lines, nil
	}
	if b.HasV4 {
		v4 = b.Build(family.V4)
	}
	if b.HasV6 {
		v6 = b.Build(family.V6)
	}
	return v4, v6, nil
}

func (p *Parser) warnf(msg string, kvs ...interface{}) {
	if p.Warn != nil {
		p.Warn.Warn(msg, kvs...)
	}
}

// handler consumes (part of) the token stream after a keyword and returns
// the unconsumed tail. segIndex is the keyword's 0-based position among
// keywords processed so far on this line.
type handler func(p *Parser, b *builder.Builder, rest []string, segIndex int) ([]string, error)

var dispatch = map[string]handler{
	"allow":   hAccept,
	"accept":  hAccept,
	"drop":    hDrop,
	"reject":  hReject,
	"forward": hForward,
	"output":  hOutput,
	"chain":   hChain,
	"all":     hAll,
	"from":    hFrom,
	"to":      hTo,
	"if-in":   hIfIn,
	"if-out":  hIfOut,
	"port":    hPort,
	"sport":   hSPort,
	"state":   hState,
	"icmp":    hICMP,
	"icmp4":   hICMPv4,
	"icmpv4":  hICMPv4,
	"icmp6":   hICMPv6,
	"icmpv6":  hICMPv6,

	"rem":    hRemBoth,
	"remark": hRemBoth,

	"rem4":     hRemV4,
	"remv4":    hRemV4,
	"remark4":  hRemV4,
	"remarkv4": hRemV4,

	"rem6":     hRemV6,
	"remv6":    hRemV6,
	"remark6":  hRemV6,
	"remarkv6": hRemV6,
}

func hAccept(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.Action = action.AcceptAction
	return rest, nil
}

func hDrop(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.Action = action.DropAction
	return rest, nil
}

func hReject(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.Action = action.RejectAction
	return rest, nil
}

func hForward(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.PrimaryChain = "FORWARD"
	return rest, nil
}

func hOutput(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.PrimaryChain = "OUTPUT"
	return rest, nil
}

func hChain(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("chain")
	}
	names := strings.Split(rest[0], ",")
	var refs []chain.Ref
	for _, n := range names {
		n = strings.TrimSpace(n)
		ref, ok := chain.Lookup(n)
		if !ok {
			return nil, pyreerr.ErrSyntax.WithToken(n)
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("chain")
	}
	b.PrimaryChain = refs[0]
	b.ExtraChains = append(b.ExtraChains, refs[1:]...)
	return rest[1:], nil
}

func hAll(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.ExtraChains = append(b.ExtraChains, chain.AllAsExtra(p.Table, b.PrimaryChain)...)
	return rest, nil
}

func hFrom(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("from")
	}
	v4, v6, err := netspec.ParseNetworkList(rest[0], &b.FromCIDRs)
	if err != nil {
		return nil, err
	}
	b.HasV4 = b.HasV4 || v4
	b.HasV6 = b.HasV6 || v6
	return rest[1:], nil
}

func hTo(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("to")
	}
	v4, v6, err := netspec.ParseNetworkList(rest[0], &b.ToCIDRs)
	if err != nil {
		return nil, err
	}
	b.HasV4 = b.HasV4 || v4
	b.HasV6 = b.HasV6 || v6
	return rest[1:], nil
}

func hIfIn(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("if-in")
	}
	b.InIfaces = append(b.InIfaces, splitCSV(rest[0])...)
	return rest[1:], nil
}

func hIfOut(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("if-out")
	}
	b.OutIfaces = append(b.OutIfaces, splitCSV(rest[0])...)
	return rest[1:], nil
}

// protocolModifier checks whether tok is a port-keyword protocol
// modifier ("tcp"/"udp"/"both") rather than the port spec itself.
func protocolModifier(tok string) (string, bool) {
	switch strings.ToLower(tok) {
	case "tcp", "udp", "both":
		return strings.ToLower(tok), true
	default:
		return "", false
	}
}

// applyPortProtocol implements the port/sport protocol-modifier logic:
// "both" appends udp as an extra protocol, setting tcp as the primary
// only if none was set yet; a bare "tcp"/"udp" sets the primary
// directly; no modifier defaults the primary to tcp if unset.
func applyPortProtocol(b *builder.Builder, modifier string, hadModifier bool) {
	if !hadModifier {
		if b.Protocol == "" {
			b.Protocol = "tcp"
		}
		return
	}
	switch modifier {
	case "both":
		if b.Protocol == "" {
			b.Protocol = "tcp"
		}
		b.ExtraProtocols = append(b.ExtraProtocols, "udp")
	default:
		b.Protocol = modifier
	}
}

// hPort and hSPort both accept the protocol modifier either before or
// after the port spec ("port both 9090,1010" and "port 9090,1010 both"
// are equivalent), since rules written either way appear in practice.
func hPort(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	rest, modifier, had, err := consumeLeadingProtocolModifier(rest, "port")
	if err != nil {
		return nil, err
	}
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("port")
	}
	ports, warnings, err := netspec.ParsePortList(rest[0], p.Strict)
	for _, w := range warnings {
		p.warnf(w)
	}
	if err != nil {
		return nil, err
	}
	rest = rest[1:]
	if !had {
		rest, modifier, had = consumeTrailingProtocolModifier(rest)
	}
	applyPortProtocol(b, modifier, had)
	b.DestPorts = append(b.DestPorts, ports...)
	return rest, nil
}

func hSPort(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	rest, modifier, had, err := consumeLeadingProtocolModifier(rest, "sport")
	if err != nil {
		return nil, err
	}
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("sport")
	}
	ports, warnings, err := netspec.ParsePortList(rest[0], p.Strict)
	for _, w := range warnings {
		p.warnf(w)
	}
	if err != nil {
		return nil, err
	}
	rest = rest[1:]
	if !had {
		rest, modifier, had = consumeTrailingProtocolModifier(rest)
	}
	applyPortProtocol(b, modifier, had)
	b.SourcePorts = append(b.SourcePorts, ports...)
	return rest, nil
}

func consumeLeadingProtocolModifier(rest []string, kw string) ([]string, string, bool, error) {
	if len(rest) == 0 {
		return nil, "", false, pyreerr.ErrMissingArg.WithToken(kw)
	}
	if mod, ok := protocolModifier(rest[0]); ok {
		if len(rest) < 2 {
			return nil, "", false, pyreerr.ErrMissingArg.WithToken(kw)
		}
		return rest[1:], mod, true, nil
	}
	return rest, "", false, nil
}

// consumeTrailingProtocolModifier peeks at the token following an
// already-consumed port spec for a modifier written after it instead of
// before. Absence is not an error: the modifier is optional either way.
func consumeTrailingProtocolModifier(rest []string) ([]string, string, bool) {
	if len(rest) == 0 {
		return rest, "", false
	}
	if mod, ok := protocolModifier(rest[0]); ok {
		return rest[1:], mod, true
	}
	return rest, "", false
}

var validStateNames = map[string]string{
	"invalid":     "INVALID",
	"new":         "NEW",
	"related":     "RELATED",
	"established": "ESTABLISHED",
}

func hState(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	if len(rest) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("state")
	}
	names := splitCSV(rest[0])
	upper := make([]string, 0, len(names))
	for _, n := range names {
		canon, ok := validStateNames[strings.ToLower(n)]
		if !ok {
			return nil, pyreerr.ErrSyntax.WithToken(n)
		}
		upper = append(upper, canon)
	}
	if len(upper) == 0 {
		return nil, pyreerr.ErrMissingArg.WithToken("state")
	}
	b.MatchFragments = append(b.MatchFragments,
		"-m state --state "+strings.Join(upper, ","))
	return rest[1:], nil
}

func hICMP(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.Protocol = "icmp"
	b.HasV4 = true
	b.HasV6 = true
	rest, types, had, err := consumeTypeList(rest)
	if err != nil {
		return nil, err
	}
	if had {
		b.HasV6 = false
		b.ICMPTypes.V4 = types
	}
	return rest, nil
}

func hICMPv4(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.Protocol = "icmpv4"
	b.HasV4 = true
	rest, types, had, err := consumeTypeList(rest)
	if err != nil {
		return nil, err
	}
	if had {
		b.ICMPTypes.V4 = types
	}
	return rest, nil
}

func hICMPv6(p *Parser, b *builder.Builder, rest []string, _ int) ([]string, error) {
	b.Protocol = "icmpv6"
	b.HasV6 = true
	rest, types, had, err := consumeTypeList(rest)
	if err != nil {
		return nil, err
	}
	if had {
		b.ICMPTypes.V6 = types
	}
	return rest, nil
}

func consumeTypeList(rest []string) ([]string, []string, bool, error) {
	if len(rest) == 0 || strings.ToLower(rest[0]) != "type" {
		return rest, nil, false, nil
	}
	if len(rest) < 2 {
		return nil, nil, false, pyreerr.ErrMissingArg.WithToken("type")
	}
	return rest[2:], netspec.ParseTypeList(rest[1]), true, nil
}

func hRemBoth(p *Parser, b *builder.Builder, rest []string, seg int) ([]string, error) {
	if seg == 0 {
		b.Protocol = "rem"
	}
	b.SetCommentBoth(strings.Join(rest, " "))
	return nil, nil
}

func hRemV4(p *Parser, b *builder.Builder, rest []string, seg int) ([]string, error) {
	if seg == 0 {
		b.Protocol = "rem4"
	}
	b.SetComment(family.V4, strings.Join(rest, " "))
	return nil, nil
}

func hRemV6(p *Parser, b *builder.Builder, rest []string, seg int) ([]string, error) {
	if seg == 0 {
		b.Protocol = "rem6"
	}
	b.SetComment(family.V6, strings.Join(rest, " "))
	return nil, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
