// Package manifest handles nxrt.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "nxrt.toml"

// Manifest represents an nxrt.toml runtime configuration.
type Manifest struct {
	Stack    Stack    `toml:"stack"`
	Dispatch Dispatch `toml:"dispatch"`
	Log      Log      `toml:"log"`
	Trace    Trace    `toml:"trace"`

	// Dir is the directory containing the nxrt.toml file (set at load time).
	Dir string `toml:"-"`
}

// Stack configures the activation-record store.
type Stack struct {
	InitialCapacity int  `toml:"initial-capacity"`
	MaxDepth        int  `toml:"max-depth"`
	Assertions      bool `toml:"assertions"`
}

// Dispatch toggles the interception layers of method dispatch.
type Dispatch struct {
	Filters *bool `toml:"filters"`
	Mixins  *bool `toml:"mixins"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Trace configures the SQLite trace store.
type Trace struct {
	Enabled         bool   `toml:"enabled"`
	Database        string `toml:"database"`
	SnapshotOnError bool   `toml:"snapshot-on-error"`
}

// Defaults
const (
	DefaultInitialCapacity = 64
	DefaultMaxDepth        = 1000
	DefaultTraceDatabase   = ".nxrt/trace.db"
)

// Default returns a manifest with every default filled in, for use when no
// nxrt.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Stack.InitialCapacity <= 0 {
		m.Stack.InitialCapacity = DefaultInitialCapacity
	}
	if m.Stack.MaxDepth <= 0 {
		m.Stack.MaxDepth = DefaultMaxDepth
	}
	if m.Dispatch.Filters == nil {
		m.Dispatch.Filters = boolPtr(true)
	}
	if m.Dispatch.Mixins == nil {
		m.Dispatch.Mixins = boolPtr(true)
	}
	if m.Trace.Database == "" {
		m.Trace.Database = DefaultTraceDatabase
	}
}

func boolPtr(b bool) *bool { return &b }

// Load parses an nxrt.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find an nxrt.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// FiltersEnabled reports whether filter interception is on.
func (m *Manifest) FiltersEnabled() bool {
	return m.Dispatch.Filters == nil || *m.Dispatch.Filters
}

// MixinsEnabled reports whether mixin classes take part in resolution.
func (m *Manifest) MixinsEnabled() bool {
	return m.Dispatch.Mixins == nil || *m.Dispatch.Mixins
}

// TraceDatabasePath returns the trace database path. Relative paths are
// resolved against the manifest directory.
func (m *Manifest) TraceDatabasePath() string {
	db := m.Trace.Database
	if db == "" {
		db = DefaultTraceDatabase
	}
	if filepath.IsAbs(db) || m.Dir == "" {
		return db
	}
	return filepath.Join(m.Dir, db)
}

// LogPath returns the log file path or nil for stderr, in the form
// commonlog.Configure expects.
func (m *Manifest) LogPath() *string {
	if m.Log.Path == "" {
		return nil
	}
	p := m.Log.Path
	if !filepath.IsAbs(p) && m.Dir != "" {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}
