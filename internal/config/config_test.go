package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFindFile_ExtensionOuterBeatsLaterSearchPath exercises a name that
// resolves to different extensions in different search-path positions:
// dir1 only has the ".v4" form, dir2 only has the ".pyre" form. With
// extensions tried outer and search paths inner, ".pyre" (sorted before
// ".v4") must win even though dir1 is searched first.
func TestFindFile_ExtensionOuterBeatsLaterSearchPath(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir1, "rules.v4"), []byte("-A INPUT -j ACCEPT\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "rules.pyre"), []byte("allow port 22\n"), 0o644))

	cfg := Default()
	cfg.SearchPaths = []string{dir1, dir2}

	got, err := cfg.FindFile("rules")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir2, "rules.pyre"), got)
}

func TestFindFile_NoExtensionWinsBeforeAnyExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules"), []byte("allow port 22\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.pyre"), []byte("allow port 80\n"), 0o644))

	cfg := Default()
	cfg.SearchPaths = []string{dir}

	got, err := cfg.FindFile("rules")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rules"), got)
}
