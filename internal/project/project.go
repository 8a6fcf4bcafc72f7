package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vegardege/pvduck/config"
	"github.com/vegardege/pvduck/internal/errors"
	"github.com/vegardege/pvduck/internal/logging"
	"github.com/vegardege/pvduck/internal/store"
	"github.com/vegardege/pvduck/internal/validation"
)

// EditFunc opens path for interactive editing and returns once the user is
// done.
type EditFunc func(ctx context.Context, path string) error

// Manager creates, edits, lists and removes projects.
type Manager struct {
	paths  Paths
	edit   EditFunc
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithEditFunc replaces the editor, mostly for tests.
func WithEditFunc(fn EditFunc) Option {
	return func(m *Manager) { m.edit = fn }
}

// NewManager creates a Manager rooted at paths.
func NewManager(paths Paths, opts ...Option) *Manager {
	m := &Manager{
		paths:  paths,
		logger: logging.Component("project"),
	}
	m.edit = m.runEditor
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Paths returns the directories the manager works in.
func (m *Manager) Paths() Paths {
	return m.paths
}

// ValidateName rejects names that cannot be used as file names.
func ValidateName(name string) error {
	return validation.ValidateProjectName(name)
}

// Exists reports whether the configuration of project name exists.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(m.paths.ConfigPath(name))
	return err == nil
}

// Create writes the default configuration, lets the user edit it and
// creates the store. Nothing is left behind if any step fails.
func (m *Manager) Create(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := m.paths.Ensure(); err != nil {
		return err
	}

	cfgPath := m.paths.ConfigPath(name)
	dbPath := m.paths.DatabasePath(name)
	if m.Exists(name) {
		return errors.NewAlreadyExists(errors.ErrProjectAlreadyExists, name)
	}
	if _, err := os.Stat(dbPath); err == nil {
		return errors.NewAlreadyExists(errors.ErrStoreAlreadyExists, dbPath)
	}

	if err := m.editCopy(ctx, name, DefaultConfig(), cfgPath); err != nil {
		return err
	}

	st, err := store.Create(ctx, dbPath)
	if err != nil {
		os.Remove(cfgPath)
		return err
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	m.logger.Info("created project", "name", name, "config", cfgPath, "database", dbPath)
	return nil
}

// Edit lets the user edit the configuration of project name. The edit is
// made on a copy which replaces the original only if it validates.
func (m *Manager) Edit(ctx context.Context, name string) error {
	cfgPath, err := m.configPath(name)
	if err != nil {
		return err
	}

	current, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return m.editCopy(ctx, name, current, cfgPath)
}

// editCopy writes content to a temporary file, opens it in the editor,
// validates the result and moves it to target.
func (m *Manager) editCopy(ctx context.Context, name string, content []byte, target string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+name+"-*"+config.ConfigExt)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := m.edit(ctx, tmpPath); err != nil {
		return fmt.Errorf("edit config: %w", err)
	}
	if err := ValidateFile(tmpPath); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// runEditor runs the configured editor attached to the terminal.
func (m *Manager) runEditor(ctx context.Context, path string) error {
	args := strings.Fields(m.paths.Editor)
	if len(args) == 0 {
		args = []string{config.DefaultEditor}
	}

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Remove deletes the configuration of project name and, if deleteDB is
// set, its store. A store kept without its configuration stays usable as a
// read-only data source.
func (m *Manager) Remove(name string, deleteDB bool) error {
	cfgPath, err := m.configPath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(cfgPath); err != nil {
		return fmt.Errorf("remove config: %w", err)
	}

	if deleteDB {
		dbPath := m.paths.DatabasePath(name)
		for _, p := range []string{dbPath, dbPath + ".wal"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove database: %w", err)
			}
		}
	}

	m.logger.Info("removed project", "name", name, "database_deleted", deleteDB)
	return nil
}

// List returns the names of all projects in alphabetical order.
func (m *Manager) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.paths.ConfigDir, "*"+config.ConfigExt))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	names := make([]string, 0, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(base, config.ConfigExt))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the configuration of project name.
func (m *Manager) Load(name string) (*Config, error) {
	cfgPath, err := m.configPath(name)
	if err != nil {
		return nil, err
	}
	return LoadConfig(cfgPath)
}

// OpenStore opens the store of project name.
func (m *Manager) OpenStore(name string) (*store.Store, error) {
	if _, err := m.configPath(name); err != nil {
		return nil, err
	}
	return store.Open(m.paths.DatabasePath(name))
}

func (m *Manager) configPath(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if !m.Exists(name) {
		return "", errors.NewNotFound(errors.ErrProjectNotFound, name)
	}
	return m.paths.ConfigPath(name), nil
}
