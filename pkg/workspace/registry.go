package workspace

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/models"
)

// Registry remembers the workspaces that have been used.
type Registry struct {
	db      *sql.DB
	dataDir string
	log     *logrus.Entry
	now     func() time.Time
}

// NewRegistry opens the workspace registry under dataDir.
func NewRegistry(dataDir string, log *logrus.Entry) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "workspaces.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	r := &Registry{
		db:      db,
		dataDir: dataDir,
		log:     logging.Component(log, "registry"),
		now:     time.Now,
	}

	if err := r.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize registry: %w", err)
	}

	return r, nil
}

func (r *Registry) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspaces (
		name TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		sandbox INTEGER NOT NULL DEFAULT 0,
		settings TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_workspaces_path ON workspaces(path);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Add registers a workspace, replacing any entry with the same name or
// path. The creation time of an existing entry is kept.
func (r *Registry) Add(w *Workspace) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validate workspace: %w", err)
	}

	settings, err := json.Marshal(w.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	now := r.now()
	created := now
	if existing, err := r.byPath(w.Path); err == nil {
		created = existing.CreatedAt
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM workspaces WHERE name = ? OR path = ?", w.Name, w.Path); err != nil {
		return err
	}
	if _, err := tx.Exec(`
	INSERT INTO workspaces (name, path, sandbox, settings, created_at, last_used)
	VALUES (?, ?, ?, ?, ?, ?)
	`, w.Name, w.Path, w.Sandbox, string(settings), created, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	w.CreatedAt = created
	w.LastUsed = now
	return nil
}

const selectColumns = `SELECT name, path, sandbox, settings, created_at, last_used FROM workspaces`

func scanWorkspace(scan func(dest ...any) error) (*Workspace, error) {
	w := &Workspace{}
	var settings sql.NullString
	if err := scan(&w.Name, &w.Path, &w.Sandbox, &settings, &w.CreatedAt, &w.LastUsed); err != nil {
		return nil, err
	}
	if settings.Valid && settings.String != "" && settings.String != "null" {
		if err := json.Unmarshal([]byte(settings.String), &w.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	if w.Settings == nil {
		w.Settings = map[string]any{}
	}
	return w, nil
}

// Get retrieves a workspace by name.
func (r *Registry) Get(name string) (*Workspace, error) {
	w, err := scanWorkspace(r.db.QueryRow(selectColumns+" WHERE name = ?", name).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "workspace", Ref: name}
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Registry) byPath(path string) (*Workspace, error) {
	return scanWorkspace(r.db.QueryRow(selectColumns+" WHERE path = ?", path).Scan)
}

// List returns all registered workspaces, most recently used first.
func (r *Registry) List() ([]*Workspace, error) {
	rows, err := r.db.Query(selectColumns + " ORDER BY last_used DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []*Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows.Scan)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

// FindByPath finds the registered workspace that most specifically
// contains path, or nil.
func (r *Registry) FindByPath(path string) (*Workspace, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	workspaces, err := r.List()
	if err != nil {
		return nil, err
	}

	var bestMatch *Workspace
	bestMatchLen := 0

	// Case-insensitive to tolerate filesystem case variations.
	lowerAbsPath := strings.ToLower(absPath)

	for _, w := range workspaces {
		lowerWsPath := strings.ToLower(w.Path)
		if lowerAbsPath != lowerWsPath && !strings.HasPrefix(lowerAbsPath, lowerWsPath+string(filepath.Separator)) {
			continue
		}
		if len(w.Path) > bestMatchLen {
			bestMatch = w
			bestMatchLen = len(w.Path)
		}
	}

	if bestMatch != nil {
		if err := r.Touch(bestMatch.Name); err != nil {
			r.log.WithError(err).Warn("failed to update last used")
		}
	}
	return bestMatch, nil
}

// Touch records that a workspace was just used.
func (r *Registry) Touch(name string) error {
	_, err := r.db.Exec("UPDATE workspaces SET last_used = ? WHERE name = ?", r.now(), name)
	return err
}

// Remove removes a workspace from the registry. The directory is untouched.
func (r *Registry) Remove(name string) error {
	_, err := r.db.Exec("DELETE FROM workspaces WHERE name = ?", name)
	return err
}

// Close closes the registry database.
func (r *Registry) Close() error {
	return r.db.Close()
}
