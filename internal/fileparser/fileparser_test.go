package fileparser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyre-fw/pyre/internal/config"
)

func newParser(t *testing.T) *Parser {
	t.Helper()
	return New(config.Default(), nil)
}

func TestProcessLine_SingleTableFraming(t *testing.T) {
	p := newParser(t)
	require.NoError(t, p.ProcessLine("allow port 22"))
	require.NoError(t, p.Finish())

	assert.Equal(t, []string{
		"*filter",
		":INPUT ACCEPT [0:0]",
		":FORWARD ACCEPT [0:0]",
		":OUTPUT ACCEPT [0:0]",
		"-A INPUT -p tcp --dport 22 -j ACCEPT",
		"COMMIT",
		"### End of table filter ###",
	}, p.OutputV4())
}

func TestProcessLine_TableSwitchCommitsPreviousTable(t *testing.T) {
	p := newParser(t)
	require.NoError(t, p.ProcessLine("allow port 22"))
	require.NoError(t, p.ProcessLine("@table nat"))
	require.NoError(t, p.ProcessLine("allow port 80"))
	require.NoError(t, p.Finish())

	out := p.OutputV4()
	assert.Contains(t, out, "*filter")
	assert.Contains(t, out, "*nat")
	assert.Equal(t, []string{":PREROUTING ACCEPT [0:0]", ":INPUT ACCEPT [0:0]", ":OUTPUT ACCEPT [0:0]", ":POSTROUTING ACCEPT [0:0]"},
		out[indexOf(out, "*nat")+1:indexOf(out, "*nat")+5])
}

func TestProcessLine_ChainDirectiveOverridesPolicy(t *testing.T) {
	p := newParser(t)
	require.NoError(t, p.ProcessLine("@chain input DROP"))
	require.NoError(t, p.ProcessLine("allow port 22"))
	require.NoError(t, p.Finish())

	assert.Contains(t, p.OutputV4(), ":INPUT DROP [0:0]")
}

func TestProcessLine_ChainDirectiveAddsExtraChainSortedByName(t *testing.T) {
	p := newParser(t)
	require.NoError(t, p.ProcessLine("@chain custom_b ACCEPT"))
	require.NoError(t, p.ProcessLine("@chain custom_a ACCEPT"))
	require.NoError(t, p.ProcessLine("allow port 22"))
	require.NoError(t, p.Finish())

	out := p.OutputV4()
	aIdx := indexOf(out, ":CUSTOM_A ACCEPT [0:0]")
	bIdx := indexOf(out, ":CUSTOM_B ACCEPT [0:0]")
	require.NotEqual(t, -1, aIdx)
	require.NotEqual(t, -1, bIdx)
	assert.Less(t, aIdx, bIdx)
}

func TestFinish_IsIdempotentWithoutNewLines(t *testing.T) {
	p := newParser(t)
	require.NoError(t, p.ProcessLine("allow port 22"))
	require.NoError(t, p.Finish())
	first := append([]string(nil), p.OutputV4()...)

	require.NoError(t, p.Finish())
	assert.Equal(t, first, p.OutputV4())
}

func TestParseFile_ImportCycleIsDetected(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pyre")
	b := filepath.Join(dir, "b.pyre")
	require.NoError(t, os.WriteFile(a, []byte("@import pyre b.pyre\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("@import pyre a.pyre\n"), 0o644))

	cfg := config.Default()
	cfg.SearchPaths = []string{dir}
	p := New(cfg, nil)
	err := p.ParseFile(a)
	assert.Error(t, err)
}

func TestParseFile_ImportV4AppendsRawLinesVerbatim(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.v4")
	require.NoError(t, os.WriteFile(extra, []byte("-A INPUT -p tcp --dport 9000 -j ACCEPT\n"), 0o644))

	main := filepath.Join(dir, "main.pyre")
	require.NoError(t, os.WriteFile(main, []byte("@import ip4 extra.v4\n"), 0o644))

	cfg := config.Default()
	cfg.SearchPaths = []string{dir}
	p := New(cfg, nil)
	require.NoError(t, p.ParseFile(main))
	require.NoError(t, p.Finish())

	assert.Contains(t, p.OutputV4(), "-A INPUT -p tcp --dport 9000 -j ACCEPT")
	assert.Empty(t, p.OutputV6())
}

func indexOf(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}
