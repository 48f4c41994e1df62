package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pyre-fw/pyre/internal/action"
	"github.com/pyre-fw/pyre/internal/chain"
	"github.com/pyre-fw/pyre/internal/family"
	"github.com/pyre-fw/pyre/internal/netspec"
)

func TestBuild_SimpleAccept(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "tcp"
	b.DestPorts = []netspec.Port{{Lo: 22, Hi: 22}}

	lines := b.Build(family.V4)
	assert.Equal(t, []string{"-A INPUT -p tcp --dport 22 -j ACCEPT"}, lines)
}

func TestBuild_MultiportDest(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.DropAction
	b.Protocol = "tcp"
	b.DestPorts = []netspec.Port{{Lo: 80, Hi: 80}, {Lo: 8000, Hi: 9000}}

	lines := b.Build(family.V4)
	assert.Equal(t, []string{"-A INPUT -p tcp -m multiport --dports 80,8000:9000 -j DROP"}, lines)
}

func TestBuild_ExtraCIDRsZipWithExtraIfaces(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	family.Append(&b.FromCIDRs, family.V4, "10.0.0.0/8")
	family.Append(&b.FromCIDRs, family.V4, "192.168.0.0/16")
	b.InIfaces = []string{"eth0", "eth1"}

	lines := b.Build(family.V4)
	assert.Equal(t, []string{
		"-A INPUT -s 10.0.0.0/8 -i eth0 -j ACCEPT",
		"-A INPUT -s 192.168.0.0/16 -i eth1 -j ACCEPT",
	}, lines)
}

func TestBuild_ExtraProtocolsMultiplyAfterExtras(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "tcp"
	b.ExtraProtocols = []string{"udp"}
	family.Append(&b.FromCIDRs, family.V4, "10.0.0.0/8")
	family.Append(&b.FromCIDRs, family.V4, "10.1.0.0/16")

	lines := b.Build(family.V4)
	assert.Equal(t, []string{
		"-A INPUT -p tcp -s 10.0.0.0/8 -j ACCEPT",
		"-A INPUT -p tcp -s 10.1.0.0/16 -j ACCEPT",
		"-A INPUT -p udp -s 10.0.0.0/8 -j ACCEPT",
		"-A INPUT -p udp -s 10.1.0.0/16 -j ACCEPT",
	}, lines)
}

func TestBuild_ExtraChainsMultiplyLast(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "tcp"
	b.ExtraProtocols = []string{"udp"}
	b.ExtraChains = []chain.Ref{"FORWARD"}

	lines := b.Build(family.V4)
	assert.Equal(t, []string{
		"-A INPUT -p tcp -j ACCEPT",
		"-A INPUT -p udp -j ACCEPT",
		"-A FORWARD -p tcp -j ACCEPT",
		"-A FORWARD -p udp -j ACCEPT",
	}, lines)
}

func TestBuild_CommentOnlyLine(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Protocol = "rem"
	b.SetCommentBoth("allow ssh from office")

	assert.Equal(t, []string{"# allow ssh from office"}, b.Build(family.V4))
	assert.Equal(t, []string{"# allow ssh from office"}, b.Build(family.V6))
}

func TestBuild_CommentAnnotatesRuleWithoutReplacingIt(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "tcp"
	b.SetCommentBoth("ssh")

	lines := b.Build(family.V4)
	assert.Equal(t, []string{"# ssh", "-A INPUT -p tcp -j ACCEPT"}, lines)
}

func TestBuild_ICMPv4OnlyDroppedOnV6(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "icmpv4"
	b.HasV4 = true

	assert.Nil(t, b.Build(family.V6))
	assert.Equal(t, []string{"-A INPUT -p icmp -j ACCEPT"}, b.Build(family.V4))
}

func TestBuild_BareICMPTranslatesPerFamily(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "icmp"

	assert.Equal(t, []string{"-A INPUT -p icmp -j ACCEPT"}, b.Build(family.V4))
	assert.Equal(t, []string{"-A INPUT -p ipv6-icmp -j ACCEPT"}, b.Build(family.V6))
}

func TestBuild_ICMPTypeClauseUsesFamilySpecificFlag(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Action = action.AcceptAction
	b.Protocol = "icmp"
	b.ICMPTypes.V4 = []string{"8"}
	b.ICMPTypes.V6 = []string{"128"}

	assert.Equal(t, []string{"-A INPUT -p icmp --icmp-type 8 -j ACCEPT"}, b.Build(family.V4))
	assert.Equal(t, []string{"-A INPUT -p ipv6-icmp --icmpv6-type 128 -j ACCEPT"}, b.Build(family.V6))
}

func TestReset_ClearsState(t *testing.T) {
	b := New(chain.Ref("INPUT"))
	b.Protocol = "tcp"
	b.DestPorts = []netspec.Port{{Lo: 22, Hi: 22}}

	b.Reset(chain.Ref("OUTPUT"))

	assert.Equal(t, chain.Ref("OUTPUT"), b.PrimaryChain)
	assert.Empty(t, b.Protocol)
	assert.Empty(t, b.DestPorts)
}
