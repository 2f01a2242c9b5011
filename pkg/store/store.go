// Package store persists items as human-readable files inside a workspace.
package store

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/frontmatter"
	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/slug"
)

const (
	// ControlDir holds workspace state and is never treated as items.
	ControlDir = ".kw"
	// ArchiveDir mirrors archived item paths, relative to the workspace root.
	ArchiveDir = ControlDir + "/archive"
	// SidecarSuffix marks the metadata file stored next to a binary item.
	SidecarSuffix = ".meta.yml"
)

// Store reads and writes items under a workspace root.
type Store struct {
	root    string
	index   *index.Index
	journal *journal.Journal
	log     *logrus.Entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store rooted at root.
func New(root string, idx *index.Index, j *journal.Journal, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	s := &Store{
		root:    abs,
		index:   idx,
		journal: j,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "store")
	return s, nil
}

// Root returns the absolute workspace root.
func (s *Store) Root() string {
	return s.root
}

// Index returns the backing item index.
func (s *Store) Index() *index.Index {
	return s.index
}

// Abs converts a workspace-relative path to an absolute one.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Exists reports whether a workspace-relative path exists on disk.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Abs(rel))
	return err == nil
}

// Save persists an item and returns the stored copy with its final path
// and identity. Items without a path get a new, unique one; items with a
// path are rewritten in place.
func (s *Store) Save(item *models.Item) (*models.Item, error) {
	saved := item.Clone()
	now := s.now()
	if saved.Type == "" {
		saved.Type = models.TypeDoc
	}
	if saved.Format == "" {
		saved.Format = models.FormatMarkdown
	}
	if saved.State == "" {
		saved.State = models.StateInWorkspace
	}
	if saved.Title == "" {
		saved.Title = saved.DisplayTitle()
	}
	if saved.Created.IsZero() {
		saved.Created = now
	}
	saved.Modified = now
	saved.Identity = saved.ComputeIdentity()
	saved.RecordedIdentity = ""

	if saved.Path == "" {
		saved.Path = s.newPath(saved)
	}

	if err := s.write(saved); err != nil {
		return nil, fmt.Errorf("write item %s: %w", saved.Path, err)
	}
	if err := s.index.Put(saved); err != nil {
		return nil, fmt.Errorf("index item %s: %w", saved.Path, err)
	}

	entry := journal.Entry{
		Kind:        journal.KindItemSaved,
		Path:        saved.Path,
		Identity:    saved.Identity,
		DerivedFrom: saved.Relations.DerivedFrom,
	}
	if db := saved.Relations.DerivedBy; db != nil {
		entry.Action = db.Action
		entry.Params = db.Params
	}
	if _, err := s.journal.Append(entry); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"path": saved.Path, "identity": saved.ShortIdentity()}).Debug("saved item")
	return saved, nil
}

// newPath computes <folder>/<slug>.<type>.<ext>, disambiguated on collision.
func (s *Store) newPath(item *models.Item) string {
	candidate := path.Join(item.Type.Folder(),
		fmt.Sprintf("%s.%s.%s", slug.Make(item.Title), item.Type, item.Format.Ext()))
	return s.uniquePath(candidate)
}

// uniquePath appends __1, __2, ... to the stem of candidate until neither
// the workspace nor the archive holds that path.
func (s *Store) uniquePath(candidate string) string {
	dir, stem, suffix := splitPath(candidate)
	for n := 1; s.taken(candidate); n++ {
		candidate = path.Join(dir, fmt.Sprintf("%s__%d%s", stem, n, suffix))
	}
	return candidate
}

func (s *Store) taken(rel string) bool {
	return s.Exists(rel) || s.Exists(path.Join(ArchiveDir, rel))
}

func (s *Store) write(item *models.Item) error {
	abs := s.Abs(item.Path)
	fm := frontmatter.FromItem(item)

	if item.IsBinary() {
		header, err := frontmatter.Encode(fm)
		if err != nil {
			return err
		}
		if err := atomicWrite(abs, []byte(item.Body)); err != nil {
			return err
		}
		return atomicWrite(abs+SidecarSuffix, []byte(header))
	}

	content, err := frontmatter.BuildContent(fm, item.Body)
	if err != nil {
		return err
	}
	return atomicWrite(abs, []byte(content))
}

// Load resolves a path or identity and reads the item.
func (s *Store) Load(ref string) (*models.Item, error) {
	rel, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.LoadPath(rel)
}

// Resolve turns a reference into a workspace-relative path. References may
// be identities, absolute paths inside the workspace, or relative paths.
func (s *Store) Resolve(ref string) (string, error) {
	if models.IsIdentity(ref) {
		if rel, ok := s.FindByIdentity(ref); ok {
			return rel, nil
		}
		return "", &models.NotFoundError{Kind: "item", Ref: ref}
	}

	rel := ref
	if filepath.IsAbs(ref) {
		r, err := filepath.Rel(s.root, ref)
		if err != nil || strings.HasPrefix(r, "..") {
			return "", &models.NotFoundError{Kind: "item", Ref: ref}
		}
		rel = r
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if !s.Exists(rel) {
		return "", &models.NotFoundError{Kind: "item", Ref: ref}
	}
	return rel, nil
}

// FindByIdentity returns the first existing path holding this identity.
func (s *Store) FindByIdentity(identity string) (string, bool) {
	paths, err := s.index.PathsForIdentity(identity)
	if err != nil {
		s.log.WithError(err).Warn("identity lookup failed")
		return "", false
	}
	for _, p := range paths {
		if s.Exists(p) {
			return p, true
		}
	}
	return "", false
}

// LoadPath reads the item at a workspace-relative path. A header whose
// identity no longer matches the content is reported through
// Item.RecordedIdentity and the index is corrected.
func (s *Store) LoadPath(rel string) (*models.Item, error) {
	abs := s.Abs(rel)
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &models.NotFoundError{Kind: "item", Ref: rel}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return nil, &models.NotFoundError{Kind: "item", Ref: rel}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}

	stem, itemType, ext := parseFilename(rel)
	format, ok := models.FormatForExt(ext)
	if !ok {
		format = models.FormatBinary
	}

	item := &models.Item{Path: rel}
	var fm *frontmatter.Frontmatter

	if format.IsText() {
		var body string
		fm, body, err = frontmatter.Parse(string(data))
		if err != nil {
			return nil, &models.MalformedMetadataError{Path: rel, Err: err}
		}
		item.Body = body
	} else {
		item.Body = string(data)
		sidecar, err := os.ReadFile(abs + SidecarSuffix)
		if err == nil {
			fm, err = frontmatter.Decode(sidecar)
			if err != nil {
				return nil, &models.MalformedMetadataError{Path: rel + SidecarSuffix, Err: err}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read sidecar %s: %w", rel, err)
		}
	}

	if fm != nil {
		fm.Apply(item)
	}
	if item.Type == "" {
		item.Type = itemType
		if item.Type == "" {
			item.Type = defaultTypeFor(format)
		}
	}
	if item.Format == "" {
		item.Format = format
	}
	if item.Title == "" {
		item.Title = slug.Title(strings.SplitN(stem, "__", 2)[0])
	}
	if item.Created.IsZero() {
		item.Created = info.ModTime()
	}
	if item.Modified.IsZero() {
		item.Modified = info.ModTime()
	}
	if item.State == "" {
		item.State = models.StateInWorkspace
	}
	if IsArchived(rel) {
		item.State = models.StateArchived
	}

	recorded := item.Identity
	item.Identity = item.ComputeIdentity()
	if recorded != "" && recorded != item.Identity {
		item.RecordedIdentity = recorded
		s.log.WithFields(logrus.Fields{"path": rel, "recorded": recorded}).
			Info("item content changed outside kw; identity recomputed")
		if err := s.index.Put(item); err != nil {
			s.log.WithError(err).Warn("reindex edited item")
		}
	}

	return item, nil
}

// IsArchived reports whether a workspace-relative path lies in the archive.
func IsArchived(rel string) bool {
	return strings.HasPrefix(rel, ArchiveDir+"/")
}

func defaultTypeFor(format models.Format) models.ItemType {
	switch format {
	case models.FormatMarkdown, models.FormatMdHTML, models.FormatPlaintext:
		return models.TypeDoc
	case models.FormatYAML:
		return models.TypeConfig
	default:
		return models.TypeResource
	}
}

// parseFilename splits "<dir>/<stem>.<type>.<ext>" into stem, type and ext.
// The type is empty when the name carries no recognized type suffix.
func parseFilename(rel string) (string, models.ItemType, string) {
	base := path.Base(rel)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	var itemType models.ItemType
	if t := path.Ext(name); t != "" {
		if it, ok := models.ParseItemType(t[1:]); ok {
			itemType = it
			name = strings.TrimSuffix(name, t)
		}
	}
	return name, itemType, strings.TrimPrefix(ext, ".")
}

// splitPath is the inverse of joining dir, stem and a ".<type>.<ext>" suffix.
func splitPath(rel string) (string, string, string) {
	stem, itemType, ext := parseFilename(rel)
	suffix := ""
	if itemType != "" {
		suffix = "." + string(itemType)
	}
	if ext != "" {
		suffix += "." + ext
	}
	return path.Dir(rel), stem, suffix
}

// atomicWrite writes data to a temp file in the target directory and
// renames it over the destination.
func atomicWrite(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpName, dst)
}
