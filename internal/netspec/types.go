package netspec

import (
	"strconv"
	"strings"
)

// ParseTypeList parses the comma-separated ICMP type-spec grammar: each
// item is either a bare token (kept as-is — e.g. "echo-request") or a
// numeric range "a-b"/"a:b" expanded to every integer a..=b inclusive.
// Tokens containing any letter are never expanded, even if they also
// contain '-' or ':'.
func ParseTypeList(spec string) []string {
	var out []string
	for _, raw := range strings.Split(spec, ",") {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		if hasLetter(item) {
			out = append(out, item)
			continue
		}
		if lo, hi, ok := tryRange(item); ok {
			for n := lo; n <= hi; n++ {
				out = append(out, strconv.Itoa(n))
			}
			continue
		}
		out = append(out, item)
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func tryRange(item string) (lo, hi int, ok bool) {
	sep := ""
	if strings.Contains(item, ":") {
		sep = ":"
	} else if strings.Contains(item, "-") {
		sep = "-"
	} else {
		return 0, 0, false
	}
	parts := strings.SplitN(item, sep, 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	l, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return l, h, true
}
