// Package project manages pvduck projects: a named YAML configuration in the
// user's config directory paired with a DuckDB store in the data directory.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vegardege/pvduck/config"
)

// Paths locates project files. Build it once with DefaultPaths and pass it
// to whatever needs it.
type Paths struct {
	// ConfigDir holds <name>.yml files.
	ConfigDir string

	// DataDir holds <name>.duckdb files.
	DataDir string

	// Editor is the command used to edit configurations.
	Editor string
}

// DefaultPaths derives Paths from XDG_CONFIG_HOME, XDG_DATA_HOME and EDITOR,
// falling back to ~/.config, ~/.local/share and nano.
func DefaultPaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("home directory: %w", err)
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = config.DefaultEditor
	}

	return Paths{
		ConfigDir: filepath.Join(configHome, config.AppName),
		DataDir:   filepath.Join(dataHome, config.AppName),
		Editor:    editor,
	}, nil
}

// ConfigPath returns the configuration file of project name.
func (p Paths) ConfigPath(name string) string {
	return filepath.Join(p.ConfigDir, name+config.ConfigExt)
}

// DatabasePath returns the store file of project name.
func (p Paths) DatabasePath(name string) string {
	return filepath.Join(p.DataDir, name+config.DatabaseExt)
}

// Ensure creates the config and data directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
