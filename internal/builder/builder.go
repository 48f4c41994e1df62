// Package builder implements the Rule Builder: a staging
// record for one source line's rule state, expanded at Build time into one
// or more iptables-restore lines for a requested address family.
package builder

import (
	"strconv"
	"strings"

	"github.com/pyre-fw/pyre/internal/action"
	"github.com/pyre-fw/pyre/internal/chain"
	"github.com/pyre-fw/pyre/internal/family"
	"github.com/pyre-fw/pyre/internal/netspec"
)

// icmpAliasesV4 and icmpAliasesV6 are the protocol tokens that refer to
// ICMP under each family.
var icmpAliasesV4 = map[string]bool{"icmp": true, "icmp4": true, "icmpv4": true}
var icmpAliasesV6 = map[string]bool{"icmp6": true, "icmpv6": true, "ipv6-icmp": true, "icmp": true}

// commentProtocols are pseudo-protocols that make a line a pure comment.
var commentProtocols = map[string]bool{"comment": true, "rem": true, "rem4": true, "rem6": true}

// Builder stages one rule's state between the moment the Rule Parser
// starts a source line and the moment it asks for emitted lines.
type Builder struct {
	PrimaryChain chain.Ref
	ExtraChains  []chain.Ref

	Action Action

	Protocol       string
	ExtraProtocols []string

	DestPorts   []netspec.Port
	SourcePorts []netspec.Port

	FromCIDRs family.Pair[[]string]
	ToCIDRs   family.Pair[[]string]

	InIfaces  []string
	OutIfaces []string

	ICMPTypes family.Pair[[]string]

	MatchFragments []string

	Comment    family.Pair[string]
	hasComment family.Pair[bool]

	HasV4, HasV6 bool
}

// Action is a thin alias so callers don't need to import internal/action
// just to zero-value a Builder; the zero value behaves as "unset".
type Action = action.Action

// New creates a Builder for the given primary chain.
func New(primary chain.Ref) *Builder {
	return &Builder{PrimaryChain: primary}
}

// Reset clears the Builder back to its zero state with a new primary
// chain. The Rule Parser owns one Builder and resets it between source
// lines rather than allocating a fresh one each time.
func (b *Builder) Reset(primary chain.Ref) {
	*b = Builder{PrimaryChain: primary}
}

// SetComment sets the per-family comment text.
func (b *Builder) SetComment(f family.Family, text string) {
	b.Comment.Set(f, text)
	b.hasComment.Set(f, true)
}

// SetCommentBoth sets the same comment text for both families.
func (b *Builder) SetCommentBoth(text string) {
	b.SetComment(family.V4, text)
	b.SetComment(family.V6, text)
}

// override is one cross-product combination: it overrides exactly the
// per-line dimensions that carry extra values (CIDRs, interfaces, ICMP
// types, protocol, chain) on top of the base line's values.
type override struct {
	fromCIDR string
	toCIDR   string
	inIface  string
	outIface string
	icmpType string
	protocol string
	chainRef chain.Ref
}

// Build emits the iptables-restore lines for family f.
func (b *Builder) Build(f family.Family) []string {
	proto := strings.ToLower(b.Protocol)

	// Step 1: comment-only protocols.
	if commentProtocols[proto] {
		if b.hasComment.Get(f) {
			return []string{"# " + b.Comment.Get(f)}
		}
		return nil
	}

	// Step 2: family-restricted ICMP.
	if (proto == "icmpv4" || proto == "icmp4") && f != family.V4 {
		return nil
	}
	if (proto == "icmpv6" || proto == "icmp6") && f != family.V6 {
		return nil
	}

	base := override{
		fromCIDR: firstOrEmpty(b.FromCIDRs.Get(f)),
		toCIDR:   firstOrEmpty(b.ToCIDRs.Get(f)),
		inIface:  firstOrEmpty(b.InIfaces),
		outIface: firstOrEmpty(b.OutIfaces),
		icmpType: firstOrEmpty(b.ICMPTypes.Get(f)),
		protocol: b.Protocol,
		chainRef: b.PrimaryChain,
	}

	overrides := []override{base}

	// Extra CIDRs/interfaces/ICMP types are positionally zipped into
	// additional override records: from_cidrs[2] and in_ifaces[2]
	// co-occur in the same extra record rather than being multiplied
	// against each other.
	extraCount := maxInt(
		len(b.FromCIDRs.Get(f))-1,
		len(b.ToCIDRs.Get(f))-1,
		len(b.InIfaces)-1,
		len(b.OutIfaces)-1,
		len(b.ICMPTypes.Get(f))-1,
	)
	for i := 1; i <= extraCount; i++ {
		ov := base
		if v := nthOrEmpty(b.FromCIDRs.Get(f), i); v != "" {
			ov.fromCIDR = v
		}
		if v := nthOrEmpty(b.ToCIDRs.Get(f), i); v != "" {
			ov.toCIDR = v
		}
		if v := nthOrEmpty(b.InIfaces, i); v != "" {
			ov.inIface = v
		}
		if v := nthOrEmpty(b.OutIfaces, i); v != "" {
			ov.outIface = v
		}
		if v := nthOrEmpty(b.ICMPTypes.Get(f), i); v != "" {
			ov.icmpType = v
		}
		overrides = append(overrides, ov)
	}

	// extra_protocols multiply the override set so far.
	if len(b.ExtraProtocols) > 0 {
		var withProtocols []override
		withProtocols = append(withProtocols, overrides...)
		for _, p := range b.ExtraProtocols {
			for _, ov := range overrides {
				dup := ov
				dup.protocol = p
				withProtocols = append(withProtocols, dup)
			}
		}
		overrides = withProtocols
	}

	// extra_chains multiply the resulting override set.
	if len(b.ExtraChains) > 0 {
		var withChains []override
		withChains = append(withChains, overrides...)
		for _, c := range b.ExtraChains {
			for _, ov := range overrides {
				dup := ov
				dup.chainRef = c
				withChains = append(withChains, dup)
			}
		}
		overrides = withChains
	}

	lines := make([]string, 0, len(overrides))
	for _, ov := range overrides {
		lines = append(lines, b.renderLine(f, ov))
	}

	if b.hasComment.Get(f) {
		comment := "# " + b.Comment.Get(f)
		out := make([]string, 0, len(lines)+1)
		out = append(out, comment)
		out = append(out, lines...)
		return out
	}
	return lines
}

// renderLine builds one "-A <chain> ..." line from an override record.
func (b *Builder) renderLine(f family.Family, ov override) string {
	var sb strings.Builder
	sb.WriteString("-A ")
	sb.WriteString(string(ov.chainRef))

	proto := strings.ToLower(ov.protocol)
	if ov.protocol != "" {
		sb.WriteString(" -p ")
		sb.WriteString(protocolForFamily(proto, f))
	}

	if isICMPAlias(proto, f) && ov.icmpType != "" {
		if f == family.V4 {
			sb.WriteString(" --icmp-type ")
		} else {
			sb.WriteString(" --icmpv6-type ")
		}
		sb.WriteString(ov.icmpType)
	}

	if len(b.DestPorts) > 0 {
		sb.WriteString(portClause(b.DestPorts, "--dport", "--dports"))
	}
	if len(b.SourcePorts) > 0 {
		sb.WriteString(portClause(b.SourcePorts, "--sport", "--sports"))
	}

	for _, m := range b.MatchFragments {
		sb.WriteString(" ")
		sb.WriteString(m)
	}

	if ov.fromCIDR != "" {
		sb.WriteString(" -s ")
		sb.WriteString(ov.fromCIDR)
	}
	if ov.toCIDR != "" {
		sb.WriteString(" -d ")
		sb.WriteString(ov.toCIDR)
	}
	if ov.inIface != "" {
		sb.WriteString(" -i ")
		sb.WriteString(ov.inIface)
	}
	if ov.outIface != "" {
		sb.WriteString(" -o ")
		sb.WriteString(ov.outIface)
	}

	sb.WriteString(" -j ")
	sb.WriteString(b.Action.Target())

	return sb.String()
}

// protocolForFamily translates ICMP protocol aliases to the concrete
// -p value iptables/ip6tables expect.
func protocolForFamily(proto string, f family.Family) string {
	if f == family.V4 && icmpAliasesV4[proto] {
		return "icmp"
	}
	if f == family.V6 && icmpAliasesV6[proto] {
		return "ipv6-icmp"
	}
	return proto
}

func isICMPAlias(proto string, f family.Family) bool {
	if f == family.V4 {
		return icmpAliasesV4[proto]
	}
	return icmpAliasesV6[proto]
}

// portClause renders a single-port ("--dport N") or multiport
// ("-m multiport --dports a,b,c") clause step 3.
func portClause(ports []netspec.Port, single, multi string) string {
	if netspec.IsSimple(ports) {
		return " " + single + " " + strconv.Itoa(ports[0].Lo)
	}
	return " -m multiport " + multi + " " + netspec.FormatPortSpec(ports)
}

func firstOrEmpty(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}

func nthOrEmpty(items []string, i int) string {
	if i < len(items) {
		return items[i]
	}
	return ""
}

func maxInt(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
