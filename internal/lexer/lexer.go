// Package lexer tokenises a single Pyre source line.
package lexer

import "strings"

// Tokenize splits line on whitespace, truncating at the first token that
// begins with '#' (a trailing comment). A line whose first non-blank
// character is '#' yields no tokens at all (a pure comment line).
func Tokenize(line string) []string {
	fields := strings.Fields(line)
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if strings.HasPrefix(tok, "#") {
			break
		}
		out = append(out, tok)
	}
	return out
}
