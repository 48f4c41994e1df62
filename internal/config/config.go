// Package config holds the compiler's configuration object: table
// defaults, @import search paths, recognised file-extension categories,
// and strict mode. It is an explicit value constructed at program start
// and threaded through the File Parser, loaded from YAML rather than
// environment variables or a dotenv file.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pyre-fw/pyre/internal/pyreerr"
)

// Import kind tags, inferred from file extension or given explicitly to
// @import.
const (
	ImportPyre = "pyre"
	ImportV4   = "ip4"
	ImportV6   = "ip6"
)

// Config is the compiler's explicit configuration value.
type Config struct {
	// DefaultTable is the table a File Parser starts in ("filter" unless
	// overridden).
	DefaultTable string `yaml:"default_table"`

	// SearchPaths are the directories @import resolves relative paths
	// against, in order. The current working directory is prepended by
	// Default() unless the caller opts out.
	SearchPaths []string `yaml:"search_paths"`

	// Extensions maps a file extension (including the leading '.') to
	// an import kind, overriding/extending the built-in defaults.
	Extensions map[string]string `yaml:"extensions"`

	// Strict promotes unknown keywords and invalid ports from warnings
	// to fatal errors.
	Strict bool `yaml:"strict"`
}

// defaultExtensions is the built-in extension→kind table.
var defaultExtensions = map[string]string{
	".pyre": ImportPyre,
	".v4":   ImportV4,
	".v6":   ImportV6,
}

// Default returns a Config with table "filter", the current working
// directory as the sole search path, the built-in extension table, and
// strict mode off.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		DefaultTable: "filter",
		SearchPaths:  []string{cwd},
		Extensions:   cloneExtensions(defaultExtensions),
		Strict:       false,
	}
}

// FromYAML loads a Config from a YAML file, starting from Default() and
// overlaying whatever the file specifies. The current working directory
// is always prepended to SearchPaths, even when the file supplies its
// own list.
func FromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	raw := *cfg
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.DefaultTable == "" {
		raw.DefaultTable = "filter"
	}
	if raw.Extensions == nil {
		raw.Extensions = cloneExtensions(defaultExtensions)
	} else {
		for ext, kind := range defaultExtensions {
			if _, ok := raw.Extensions[ext]; !ok {
				raw.Extensions[ext] = kind
			}
		}
	}
	cwd, err := os.Getwd()
	if err == nil {
		raw.SearchPaths = append([]string{cwd}, raw.SearchPaths...)
	}
	return &raw, nil
}

func cloneExtensions(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ParseImportKind reports whether tok is one of the explicit @import
// kind tags ("pyre", "ip4", "ip6").
func ParseImportKind(tok string) (string, bool) {
	switch strings.ToLower(tok) {
	case ImportPyre, ImportV4, ImportV6:
		return strings.ToLower(tok), true
	default:
		return "", false
	}
}

// InferImportKind guesses an @import target's kind from its extension,
// falling back to "pyre" when the extension is unrecognised.
func (c *Config) InferImportKind(path string) string {
	ext := filepath.Ext(path)
	if kind, ok := c.Extensions[ext]; ok {
		return kind
	}
	return ImportPyre
}

// FindFile resolves name against SearchPaths and the known extensions:
// if name is absolute, it is returned as-is when readable; otherwise
// each extension (including no extension) is tried in turn, and for
// each extension every search path is checked in order before moving on
// to the next extension — so a name matching an earlier extension in a
// later search path wins over a name matching a later extension in an
// earlier search path.
func (c *Config) FindFile(name string) (string, error) {
	if filepath.IsAbs(name) {
		if readable(name) {
			return name, nil
		}
		return "", pyreerr.ErrFileNotFound.WithToken(name)
	}

	exts := []string{""}
	sortedExts := make([]string, 0, len(c.Extensions))
	for ext := range c.Extensions {
		sortedExts = append(sortedExts, ext)
	}
	sort.Strings(sortedExts)
	exts = append(exts, sortedExts...)

	for _, ext := range exts {
		for _, dir := range c.SearchPaths {
			candidate := filepath.Join(dir, name+ext)
			if readable(candidate) {
				return candidate, nil
			}
		}
	}
	return "", pyreerr.ErrFileNotFound.WithToken(name)
}

// ResolvePyreFile resolves the top-level file given to ParseFile. Unlike
// @import targets, a direct ParseFile argument is tried as a literal path
// first (so `pyre compile ./rules.pyre` works without a search path
// round-trip), falling back to FindFile.
func (c *Config) ResolvePyreFile(path string) (string, error) {
	if readable(path) {
		return path, nil
	}
	return c.FindFile(path)
}

func readable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
