// Package index is the sqlite arena behind the content store: items by
// identity and path, derivation edges, and cache entries. Everything in it
// can be rebuilt from the workspace files and the provenance journal.
package index

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

	"github.com/grovetools/kw/pkg/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Record is the indexed view of an item.
type Record struct {
	Identity    string
	Path        string
	Type        models.ItemType
	Format      models.Format
	Title       string
	State       models.State
	Modified    time.Time
	DerivedFrom []string
	DerivedBy   *models.DerivedBy
}

// CacheOutput is one output of a cached action invocation.
type CacheOutput struct {
	Identity string
	Path     string
}

// CacheEntry maps a cache key to the outputs it produced.
type CacheEntry struct {
	Key     string
	Action  string
	Outputs []CacheOutput
	Created time.Time
}

// Index manages the item index
type Index struct {
	db     *sql.DB
	useFTS bool
}

// Open opens or creates the index database at dbPath.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &Index{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize index: %w", err)
	}

	return idx, nil
}

// init creates the database schema
func (idx *Index) init() error {
	idx.useFTS = idx.checkFTS5Support()

	schema := `
	CREATE TABLE IF NOT EXISTS items (
		path TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		type TEXT,
		format TEXT,
		title TEXT,
		state TEXT,
		modified_at TIMESTAMP,
		derived_by_action TEXT,
		derived_by_params TEXT,
		content TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_items_identity ON items(identity);
	CREATE INDEX IF NOT EXISTS idx_items_state ON items(state);

	CREATE TABLE IF NOT EXISTS edges (
		child TEXT NOT NULL,
		parent TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (child, position)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_parent ON edges(parent);

	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		created_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cache_outputs (
		key TEXT NOT NULL,
		position INTEGER NOT NULL,
		identity TEXT NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (key, position)
	);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	if idx.useFTS {
		ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			path UNINDEXED,
			title,
			content,
			tokenize = 'porter unicode61'
		);
		`
		if _, err := idx.db.Exec(ftsSchema); err != nil {
			// If FTS creation fails, disable FTS and continue
			idx.useFTS = false
		}
	}

	return nil
}

// checkFTS5Support checks if FTS5 module is available
func (idx *Index) checkFTS5Support() bool {
	_, err := idx.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS fts5_test USING fts5(content)")
	if err != nil {
		return false
	}
	_, _ = idx.db.Exec("DROP TABLE IF EXISTS fts5_test")
	return true
}

// Put indexes or reindexes an item at its path and adds its derivation
// edges.
func (idx *Index) Put(item *models.Item) error {
	if item.Path == "" {
		return fmt.Errorf("index item without path")
	}

	var action, params sql.NullString
	if db := item.Relations.DerivedBy; db != nil {
		action = sql.NullString{String: db.Action, Valid: true}
		if len(db.Params) > 0 {
			data, err := json.Marshal(db.Params)
			if err != nil {
				return fmt.Errorf("marshal params: %w", err)
			}
			params = sql.NullString{String: string(data), Valid: true}
		}
	}

	content := ""
	if !item.IsBinary() {
		content = item.Body
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := deletePath(tx, idx.useFTS, item.Path); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO items (
			path, identity, type, format, title, state, modified_at,
			derived_by_action, derived_by_params, content
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.Path, item.Identity, item.Type, item.Format, item.Title, item.State,
		item.Modified, action, params, content)
	if err != nil {
		return err
	}

	if idx.useFTS {
		_, err = tx.Exec(`INSERT INTO items_fts (path, title, content) VALUES (?, ?, ?)`,
			item.Path, item.Title, content)
		if err != nil {
			return err
		}
	}

	if err := addEdges(tx, item.Identity, item.Relations.DerivedFrom); err != nil {
		return err
	}

	return tx.Commit()
}

// addEdges records parents of child that are not known yet. Copies share an
// identity, so edges from every path holding it accumulate, and an item is
// never its own parent.
func addEdges(tx *sql.Tx, child string, parents []string) error {
	rows, err := tx.Query("SELECT parent, position FROM edges WHERE child = ?", child)
	if err != nil {
		return err
	}
	known := map[string]bool{child: true}
	position := 0
	for rows.Next() {
		var parent string
		var pos int
		if err := rows.Scan(&parent, &pos); err != nil {
			rows.Close()
			return err
		}
		known[parent] = true
		position = max(position, pos+1)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, parent := range parents {
		if known[parent] {
			continue
		}
		known[parent] = true
		if _, err := tx.Exec("INSERT INTO edges (child, parent, position) VALUES (?, ?, ?)",
			child, parent, position); err != nil {
			return err
		}
		position++
	}
	return nil
}

// Remove drops the item at path. Edges stay, since they describe content
// that may still exist elsewhere.
func (idx *Index) Remove(path string) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := deletePath(tx, idx.useFTS, path); err != nil {
		return err
	}
	return tx.Commit()
}

func deletePath(tx *sql.Tx, useFTS bool, path string) error {
	if useFTS {
		if _, err := tx.Exec("DELETE FROM items_fts WHERE path = ?", path); err != nil {
			return err
		}
	}
	_, err := tx.Exec("DELETE FROM items WHERE path = ?", path)
	return err
}

const recordColumns = `path, identity, type, format, title, state, modified_at, derived_by_action, derived_by_params`

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	r := &Record{}
	var action, params sql.NullString
	var modified sql.NullTime
	if err := scan(&r.Path, &r.Identity, &r.Type, &r.Format, &r.Title, &r.State,
		&modified, &action, &params); err != nil {
		return nil, err
	}
	if modified.Valid {
		r.Modified = modified.Time
	}
	if action.Valid {
		r.DerivedBy = &models.DerivedBy{Action: action.String}
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &r.DerivedBy.Params); err != nil {
				return nil, fmt.Errorf("unmarshal params: %w", err)
			}
		}
	}
	return r, nil
}

// ByPath returns the record at path.
func (idx *Index) ByPath(path string) (*Record, error) {
	row := idx.db.QueryRow("SELECT "+recordColumns+" FROM items WHERE path = ?", path)
	r, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.DerivedFrom, err = idx.Parents(r.Identity)
	return r, err
}

// PathsForIdentity returns every path holding content with this identity,
// workspace items first and archived ones last.
func (idx *Index) PathsForIdentity(identity string) ([]string, error) {
	rows, err := idx.db.Query(`
		SELECT path FROM items WHERE identity = ?
		ORDER BY CASE state WHEN 'archived' THEN 1 ELSE 0 END, modified_at DESC, path
	`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Parents returns the identities an item was derived from, in order.
func (idx *Index) Parents(identity string) ([]string, error) {
	return idx.queryStrings("SELECT parent FROM edges WHERE child = ? ORDER BY position", identity)
}

// Children returns the identities derived from an item.
func (idx *Index) Children(identity string) ([]string, error) {
	return idx.queryStrings("SELECT DISTINCT child FROM edges WHERE parent = ? ORDER BY child", identity)
}

func (idx *Index) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of indexed items.
func (idx *Index) Count() (int, error) {
	var n int
	err := idx.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n)
	return n, err
}

// PutCacheEntry records the outputs produced for a cache key.
func (idx *Index) PutCacheEntry(entry CacheEntry) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM cache_outputs WHERE key = ?", entry.Key); err != nil {
		return err
	}
	created := entry.Created
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO cache_entries (key, action, created_at) VALUES (?, ?, ?)",
		entry.Key, entry.Action, created); err != nil {
		return err
	}
	for i, out := range entry.Outputs {
		if _, err := tx.Exec("INSERT INTO cache_outputs (key, position, identity, path) VALUES (?, ?, ?, ?)",
			entry.Key, i, out.Identity, out.Path); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CacheEntry looks up a cache key.
func (idx *Index) CacheEntry(key string) (*CacheEntry, error) {
	entry := &CacheEntry{Key: key}
	err := idx.db.QueryRow("SELECT action, created_at FROM cache_entries WHERE key = ?", key).
		Scan(&entry.Action, &entry.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := idx.db.Query("SELECT identity, path FROM cache_outputs WHERE key = ? ORDER BY position", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var out CacheOutput
		if err := rows.Scan(&out.Identity, &out.Path); err != nil {
			return nil, err
		}
		entry.Outputs = append(entry.Outputs, out)
	}
	return entry, rows.Err()
}

// DeleteCacheEntry evicts a cache key.
func (idx *Index) DeleteCacheEntry(key string) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM cache_outputs WHERE key = ?", key); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return err
	}
	return tx.Commit()
}

// CacheEntryCount returns the number of cache entries.
func (idx *Index) CacheEntryCount() (int, error) {
	var n int
	err := idx.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n)
	return n, err
}

// Reset clears every table so the index can be rebuilt.
func (idx *Index) Reset() error {
	if err := idx.ResetItems(); err != nil {
		return err
	}
	return idx.ResetCache()
}

// ResetItems clears items and edges, keeping cache entries.
func (idx *Index) ResetItems() error {
	tables := []string{"items", "edges"}
	if idx.useFTS {
		tables = append(tables, "items_fts")
	}
	return idx.clear(tables...)
}

// ResetCache clears every cache entry.
func (idx *Index) ResetCache() error {
	return idx.clear("cache_entries", "cache_outputs")
}

func (idx *Index) clear(tables ...string) error {
	for _, t := range tables {
		if _, err := idx.db.Exec("DELETE FROM " + t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	return nil
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Type            models.ItemType
	IncludeArchived bool
	Limit           int
}

// Search performs a full-text search over titles and text bodies.
func (idx *Index) Search(query string, opts *SearchOptions) ([]*Record, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	if opts.Limit == 0 {
		opts.Limit = 50
	}

	var conditions []string
	var args []any
	if !opts.IncludeArchived {
		conditions = append(conditions, "m.state != 'archived'")
	}
	if opts.Type != "" {
		conditions = append(conditions, "m.type = ?")
		args = append(args, opts.Type)
	}

	var q string
	if idx.useFTS {
		conditions = append(conditions, "items_fts MATCH ?")
		args = append(args, query)
		q = fmt.Sprintf(`
			SELECT m.path, m.identity, m.type, m.format, m.title, m.state, m.modified_at,
				m.derived_by_action, m.derived_by_params
			FROM items_fts
			JOIN items m ON items_fts.path = m.path
			WHERE %s
			ORDER BY rank
			LIMIT ?
		`, strings.Join(conditions, " AND "))
	} else {
		pattern := "%" + strings.ReplaceAll(query, " ", "%") + "%"
		conditions = append(conditions, "(m.title LIKE ? OR m.content LIKE ?)")
		args = append(args, pattern, pattern)
		q = fmt.Sprintf(`
			SELECT m.path, m.identity, m.type, m.format, m.title, m.state, m.modified_at,
				m.derived_by_action, m.derived_by_params
			FROM items m
			WHERE %s
			ORDER BY m.modified_at DESC
			LIMIT ?
		`, strings.Join(conditions, " AND "))
	}
	args = append(args, opts.Limit)

	rows, err := idx.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the index
func (idx *Index) Close() error {
	return idx.db.Close()
}
