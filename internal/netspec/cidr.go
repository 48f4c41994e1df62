package netspec

import (
	"net"
	"strings"

	"github.com/pyre-fw/pyre/internal/family"
	"github.com/pyre-fw/pyre/internal/pyreerr"
)

// Network is a parsed CIDR, normalised to always carry an explicit
// prefix (/32 for a bare IPv4 address, /128 for a bare IPv6 address).
type Network struct {
	Family family.Family
	CIDR   string
}

// ParseNetwork parses a single "from"/"to" token into a Network, inferring
// the address family from the parsed IP. Bare addresses are normalised to
// a /32 or /128 CIDR; inputs that already carry a prefix are validated and
// passed through.
func ParseNetwork(token string) (Network, error) {
	if strings.Contains(token, "/") {
		ip, _, err := net.ParseCIDR(token)
		if err != nil {
			return Network{}, pyreerr.ErrSyntax.WithToken(token).Wrap(err)
		}
		f := family.V4
		if ip.To4() == nil {
			f = family.V6
		}
		// Preserve the token verbatim (host bits included) rather than
		// net.IPNet.String()'s masked form: iptables -s/-d accept a host
		// address with an explicit prefix.
		return Network{Family: f, CIDR: token}, nil
	}

	ip := net.ParseIP(token)
	if ip == nil {
		return Network{}, pyreerr.ErrSyntax.WithToken(token)
	}
	if ip.To4() != nil {
		return Network{Family: family.V4, CIDR: token + "/32"}, nil
	}
	return Network{Family: family.V6, CIDR: token + "/128"}, nil
}

// ParseNetworkList parses a comma-separated "from"/"to" token list,
// routing each network into the v4 or v6 bucket of dst by family, and
// reports which families were touched (for has_v4/has_v6 flags).
func ParseNetworkList(spec string, dst *family.Pair[[]string]) (touchedV4, touchedV6 bool, err error) {
	items := strings.Split(spec, ",")
	any := false
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		any = true
		n, err := ParseNetwork(item)
		if err != nil {
			return touchedV4, touchedV6, err
		}
		family.Append(dst, n.Family, n.CIDR)
		if n.Family == family.V4 {
			touchedV4 = true
		} else {
			touchedV6 = true
		}
	}
	if !any {
		return false, false, pyreerr.ErrSyntax.WithToken(spec)
	}
	return touchedV4, touchedV6, nil
}
