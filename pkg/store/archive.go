package store

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/frontmatter"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/models"
)

// Archive moves an item into the archive, mirroring its path, and marks
// it archived. It returns the new path.
func (s *Store) Archive(ref string) (string, error) {
	rel, err := s.Resolve(ref)
	if err != nil {
		return "", err
	}
	if IsArchived(rel) {
		return "", &models.InvalidInputError{Reason: fmt.Sprintf("already archived: %s", rel)}
	}

	dst := path.Join(ArchiveDir, rel)
	if s.Exists(dst) {
		dst = s.uniquePath(dst)
	}
	if err := s.move(rel, dst, models.StateArchived, journal.KindItemArchived); err != nil {
		return "", fmt.Errorf("archive %s: %w", rel, err)
	}
	return dst, nil
}

// Unarchive restores an archived item to its original location, or to a
// disambiguated path when that location has since been taken.
func (s *Store) Unarchive(ref string) (string, error) {
	rel, err := s.Resolve(ref)
	if err != nil {
		return "", err
	}
	if !IsArchived(rel) {
		return "", &models.InvalidInputError{Reason: fmt.Sprintf("not archived: %s", rel)}
	}

	dst := strings.TrimPrefix(rel, ArchiveDir+"/")
	if s.Exists(dst) {
		dst = s.uniquePath(dst)
	}
	if err := s.move(rel, dst, models.StateInWorkspace, journal.KindItemUnarchived); err != nil {
		return "", fmt.Errorf("unarchive %s: %w", rel, err)
	}
	return dst, nil
}

func (s *Store) move(src, dst string, state models.State, kind journal.Kind) error {
	if err := os.MkdirAll(filepath.Dir(s.Abs(dst)), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.Rename(s.Abs(src), s.Abs(dst)); err != nil {
		return err
	}

	sidecar := s.Abs(src) + SidecarSuffix
	hasSidecar := false
	if _, err := os.Stat(sidecar); err == nil {
		hasSidecar = true
		if err := os.Rename(sidecar, s.Abs(dst)+SidecarSuffix); err != nil {
			return fmt.Errorf("move sidecar: %w", err)
		}
	}

	if err := s.setState(dst, state, hasSidecar); err != nil {
		return err
	}

	if err := s.index.Remove(src); err != nil {
		return fmt.Errorf("unindex %s: %w", src, err)
	}
	item, err := s.LoadPath(dst)
	if err != nil {
		return err
	}
	if err := s.index.Put(item); err != nil {
		return fmt.Errorf("index %s: %w", dst, err)
	}

	if _, err := s.journal.Append(journal.Entry{
		Kind:     kind,
		Path:     dst,
		OldPath:  src,
		Identity: item.Identity,
	}); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"from": src, "to": dst}).Debug("moved item")
	return nil
}

// setState rewrites only the state and modified fields of the header.
func (s *Store) setState(rel string, state models.State, hasSidecar bool) error {
	updates := map[string]any{
		"state":    string(state),
		"modified": frontmatter.FormatTimestamp(s.now()),
	}

	target := s.Abs(rel)
	update := frontmatter.UpdateFields
	if hasSidecar {
		target += SidecarSuffix
		update = frontmatter.UpdateSidecar
	} else if _, _, ext := parseFilename(rel); !isTextExt(ext) {
		return nil
	}

	data, err := os.ReadFile(target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	updated, err := update(data, updates)
	if err != nil {
		return &models.MalformedMetadataError{Path: rel, Err: err}
	}
	return atomicWrite(target, updated)
}

func isTextExt(ext string) bool {
	f, ok := models.FormatForExt(ext)
	return ok && f.IsText()
}
