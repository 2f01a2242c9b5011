package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"
)

const (
	// ControlDir is the hidden directory marking a workspace root.
	ControlDir = ".kw"
	// StoreVersion is written to metadata.yml on init.
	StoreVersion = "sv1"
	// SandboxName names the fallback workspace under the data directory.
	SandboxName = "sandbox"
)

var (
	namePattern  = regexp.MustCompile(`^[\w-]+$`)
	nameReplacer = regexp.MustCompile(`[^\w-]+`)
)

// Workspace is a directory holding items plus the control directory.
type Workspace struct {
	Name      string         `yaml:"name" json:"name"`
	Path      string         `yaml:"path" json:"path"`
	Sandbox   bool           `yaml:"sandbox" json:"sandbox"`
	Settings  map[string]any `yaml:"settings" json:"settings"`
	CreatedAt time.Time      `yaml:"created_at" json:"created_at"`
	LastUsed  time.Time      `yaml:"last_used" json:"last_used"`
}

// Metadata is the content of .kw/metadata.yml.
type Metadata struct {
	StoreVersion string    `yaml:"store_version"`
	Created      time.Time `yaml:"created"`
}

// New returns a workspace for the directory at path, named after the
// directory.
func New(path string) (*Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}
	return &Workspace{
		Name:     NameFor(abs),
		Path:     abs,
		Settings: map[string]any{},
	}, nil
}

// ControlDir returns the .kw directory.
func (w *Workspace) ControlDir() string {
	return filepath.Join(w.Path, ControlDir)
}

// ArchiveDir returns the directory archived items are moved into.
func (w *Workspace) ArchiveDir() string {
	return filepath.Join(w.ControlDir(), "archive")
}

func (w *Workspace) SettingsDir() string {
	return filepath.Join(w.ControlDir(), "settings")
}

// SelectionPath returns the persisted selection history file.
func (w *Workspace) SelectionPath() string {
	return filepath.Join(w.SettingsDir(), "selection.yml")
}

// ParamsPath returns the workspace parameter file.
func (w *Workspace) ParamsPath() string {
	return filepath.Join(w.SettingsDir(), "params.yml")
}

func (w *Workspace) IndexPath() string {
	return filepath.Join(w.ControlDir(), "index", "index.db")
}

func (w *Workspace) JournalPath() string {
	return filepath.Join(w.ControlDir(), "provenance.jsonl")
}

func (w *Workspace) LogDir() string {
	return filepath.Join(w.ControlDir(), "logs")
}

func (w *Workspace) LogPath() string {
	return filepath.Join(w.LogDir(), "kw.log")
}

func (w *Workspace) ContentCacheDir() string {
	return filepath.Join(w.ControlDir(), "cache", "content")
}

func (w *Workspace) MediaCacheDir() string {
	return filepath.Join(w.ControlDir(), "cache", "media")
}

func (w *Workspace) metadataPath() string {
	return filepath.Join(w.ControlDir(), "metadata.yml")
}

// IsInitialized reports whether the control directory has been created.
func (w *Workspace) IsInitialized() bool {
	_, err := os.Stat(w.metadataPath())
	return err == nil
}

// Init creates the control directory layout. It is safe to call on an
// initialized workspace.
func (w *Workspace) Init() error {
	if err := w.Validate(); err != nil {
		return err
	}
	for _, dir := range []string{
		w.ArchiveDir(),
		w.SettingsDir(),
		filepath.Dir(w.IndexPath()),
		w.LogDir(),
		w.ContentCacheDir(),
		w.MediaCacheDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create workspace directory: %w", err)
		}
	}
	if w.IsInitialized() {
		return nil
	}

	data, err := yaml.Marshal(Metadata{StoreVersion: StoreVersion, Created: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode workspace metadata: %w", err)
	}
	if err := os.WriteFile(w.metadataPath(), data, 0644); err != nil {
		return fmt.Errorf("write workspace metadata: %w", err)
	}
	return nil
}

// ReadMetadata reads .kw/metadata.yml.
func (w *Workspace) ReadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(w.metadataPath())
	if err != nil {
		return nil, fmt.Errorf("read workspace metadata: %w", err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse workspace metadata: %w", err)
	}
	return &m, nil
}

// Contains reports whether path lies inside the workspace.
func (w *Workspace) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(w.Path, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Validate checks the workspace fields.
func (w *Workspace) Validate() error {
	if strings.HasPrefix(w.Path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		w.Path = filepath.Join(home, w.Path[1:])
	}
	return criterio.ValidateStruct(
		criterio.Run("name", w.Name, ValidateName),
		criterio.Run("path", w.Path, isDirectoryOrNotExist),
	)
}

// ValidateName checks that a workspace name is a single word.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("use letters, digits, '-' or '_' only: %q", name)
	}
	return nil
}

// NameFor derives a valid workspace name from a directory path.
func NameFor(path string) string {
	name := strings.Trim(nameReplacer.ReplaceAllString(filepath.Base(path), "_"), "_")
	if name == "" {
		return "workspace"
	}
	return name
}

func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// Find returns the nearest directory at or above start that holds a
// control directory, or "" when there is none.
func Find(start string) string {
	current, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(current, ControlDir)); err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// ErrNoWorkspace is returned by Resolve when no workspace applies and the
// sandbox is disabled.
var ErrNoWorkspace = errors.New("no workspace found")

// ResolveOptions controls which workspace Resolve picks.
type ResolveOptions struct {
	// Override is an explicit workspace directory.
	Override string
	// Cwd is where the upward search starts.
	Cwd string
	// DataDir holds the sandbox workspace.
	DataDir string
	// NoSandbox disables the sandbox fallback.
	NoSandbox bool
}

// Resolve picks the current workspace: the override if given, else the
// nearest enclosing workspace, else the sandbox under the data directory.
func Resolve(opts ResolveOptions) (*Workspace, error) {
	if opts.Override != "" {
		path := opts.Override
		if !filepath.IsAbs(path) && opts.Cwd != "" {
			path = filepath.Join(opts.Cwd, path)
		}
		return New(path)
	}

	cwd := opts.Cwd
	if cwd == "" {
		var err error
		if cwd, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if root := Find(cwd); root != "" {
		return New(root)
	}

	if opts.NoSandbox || opts.DataDir == "" {
		return nil, fmt.Errorf("%w in %s; create one with `kw init`", ErrNoWorkspace, cwd)
	}
	w, err := New(filepath.Join(opts.DataDir, SandboxName))
	if err != nil {
		return nil, err
	}
	w.Sandbox = true
	return w, nil
}
