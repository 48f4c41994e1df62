// Package netspec implements the small grammars the Pyre DSL uses for port
// lists, ICMP type lists, and CIDR routing by address family.
package netspec

import (
	"strconv"
	"strings"

	"github.com/pyre-fw/pyre/internal/pyreerr"
)

// Port is a single port spec item: either a lone port (Lo == Hi) or a
// range. Emission decides --dport vs -m multiport based on the full list,
// not on any one item.
type Port struct {
	Lo, Hi int
}

// Single reports whether this item is a lone port with no range.
func (p Port) Single() bool { return p.Lo == p.Hi }

// String renders the item in canonical "lo:hi" form (emission always uses
// ':', even though the parser also accepts '-'), or a bare number when
// single.
func (p Port) String() string {
	if p.Single() {
		return strconv.Itoa(p.Lo)
	}
	return strconv.Itoa(p.Lo) + ":" + strconv.Itoa(p.Hi)
}

// ParsePortList parses a comma-separated port spec ("800", "123,443,600-900"),
// validating each endpoint is in [1,65535] and that ranges are non-decreasing.
// In strict mode, any invalid item returns a pyreerr.Error. In non-strict
// mode, invalid items are skipped and reported individually via the
// returned warnings slice (caller logs them and continues).
func ParsePortList(spec string, strict bool) (ports []Port, warnings []string, err error) {
	items := strings.Split(spec, ",")
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		p, perr := parsePortItem(item)
		if perr != nil {
			if strict {
				return nil, warnings, pyreerr.ErrInvalidPort.WithToken(item)
			}
			warnings = append(warnings, "invalid port "+item+" dropped: "+perr.Error())
			continue
		}
		ports = append(ports, p)
	}
	return ports, warnings, nil
}

func parsePortItem(item string) (Port, error) {
	if strings.Contains(item, ":") {
		lo, hi, err := splitRange(item, ":")
		if err != nil {
			return Port{}, err
		}
		return Port{Lo: lo, Hi: hi}, nil
	}
	if strings.Contains(item, "-") {
		lo, hi, err := splitRange(item, "-")
		if err != nil {
			return Port{}, err
		}
		return Port{Lo: lo, Hi: hi}, nil
	}
	n, err := strconv.Atoi(item)
	if err != nil {
		return Port{}, err
	}
	if err := validatePort(n); err != nil {
		return Port{}, err
	}
	return Port{Lo: n, Hi: n}, nil
}

func splitRange(item, sep string) (int, int, error) {
	parts := strings.SplitN(item, sep, 2)
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if err := validatePort(lo); err != nil {
		return 0, 0, err
	}
	if err := validatePort(hi); err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, pyreerr.ErrInvalidPort
	}
	return lo, hi, nil
}

func validatePort(n int) error {
	if n < 1 || n > 65535 {
		return pyreerr.ErrInvalidPort
	}
	return nil
}

// FormatPortSpec renders a parsed port list the way the Rule Builder does:
// a single non-range port uses the bare number (for --dport/--sport), and
// anything else is the comma-joined canonical form (for -m multiport).
func FormatPortSpec(ports []Port) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

// IsSimple reports whether ports is exactly one lone port with no range —
// the only case that uses --dport/--sport instead of -m multiport.
func IsSimple(ports []Port) bool {
	return len(ports) == 1 && ports[0].Single()
}
