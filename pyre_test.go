package pyre

import (
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyre-fw/pyre/internal/config"
)

// assertScriptEqual compares two iptables-restore scripts line by line,
// failing with a unified diff instead of testify's default slice dump —
// useful once a script runs to dozens of lines across two tables.
func assertScriptEqual(t *testing.T, want, got []string) {
	t.Helper()
	if assert.ObjectsAreEqual(want, got) {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(want, "\n")),
		B:        difflib.SplitLines(strings.Join(got, "\n")),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	require.NoError(t, err)
	t.Errorf("scripts differ:\n%s", diff)
}

func TestCompile_EndToEndSingleTable(t *testing.T) {
	src := "allow port 22\nallow from 10.0.0.0/8 port 443\n"
	result, err := Compile(src, nil, nil)
	require.NoError(t, err)

	assertScriptEqual(t, []string{
		"*filter",
		":INPUT ACCEPT [0:0]",
		":FORWARD ACCEPT [0:0]",
		":OUTPUT ACCEPT [0:0]",
		"-A INPUT -p tcp --dport 22 -j ACCEPT",
		"-A INPUT -p tcp --dport 443 -s 10.0.0.0/8 -j ACCEPT",
		"COMMIT",
		"### End of table filter ###",
	}, result.V4)

	assert.Equal(t, []string{
		"*filter",
		":INPUT ACCEPT [0:0]",
		":FORWARD ACCEPT [0:0]",
		":OUTPUT ACCEPT [0:0]",
		"-A INPUT -p tcp --dport 22 -j ACCEPT",
		"COMMIT",
		"### End of table filter ###",
	}, result.V6)
}

func TestCompile_IsDeterministicAcrossRuns(t *testing.T) {
	src := "@chain custom_b ACCEPT\n@chain custom_a ACCEPT\nallow port 22\n"
	first, err := Compile(src, nil, nil)
	require.NoError(t, err)
	second, err := Compile(src, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.V4, second.V4)
	assert.Equal(t, first.V6, second.V6)
}

func TestCompile_ConcatenatedRulesEmitInOrder(t *testing.T) {
	src := "allow port 10\nallow port 20\nallow port 30\n"
	result, err := Compile(src, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-A INPUT -p tcp --dport 10 -j ACCEPT",
		"-A INPUT -p tcp --dport 20 -j ACCEPT",
		"-A INPUT -p tcp --dport 30 -j ACCEPT",
	}, result.V4[4:7])
}

func TestCompile_StrictModeFailsOnUnknownKeyword(t *testing.T) {
	cfg := config.Default()
	cfg.Strict = true
	_, err := Compile("allow bogus 22\n", cfg, nil)
	assert.Error(t, err)
}
