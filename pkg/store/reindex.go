package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/grovetools/kw/pkg/models"
)

// ReindexReport summarizes a rebuild of the item index.
type ReindexReport struct {
	Indexed    int
	Skipped    int
	Duplicates int
	Errors     map[string]error
}

// Reindex rebuilds the item index from a full scan of the workspace,
// archive included. Cache entries are kept.
func (s *Store) Reindex(ctx context.Context) (*ReindexReport, error) {
	if err := s.index.ResetItems(); err != nil {
		return nil, fmt.Errorf("reset index: %w", err)
	}

	report := &ReindexReport{Errors: map[string]error{}}
	seen := map[string]string{}
	for item, err := range s.Walk(ListOptions{IncludeArchived: true}) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		if err != nil {
			report.Skipped++
			var malformed *models.MalformedMetadataError
			if errors.As(err, &malformed) {
				report.Errors[malformed.Path] = err
			} else {
				report.Errors[fmt.Sprintf("#%d", len(report.Errors))] = err
			}
			continue
		}
		if first, ok := seen[item.Identity]; ok {
			report.Duplicates++
			s.log.WithField("path", item.Path).WithField("duplicate_of", first).Info("duplicate content")
		} else {
			seen[item.Identity] = item.Path
		}
		if err := s.index.Put(item); err != nil {
			return report, fmt.Errorf("index %s: %w", item.Path, err)
		}
		report.Indexed++
	}

	s.log.WithField("indexed", report.Indexed).Info("reindexed workspace")
	return report, nil
}

// EnsureIndexed rebuilds the index when it is empty but the workspace is not.
func (s *Store) EnsureIndexed(ctx context.Context) error {
	n, err := s.index.Count()
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}
	if n > 0 {
		return nil
	}
	for item := range s.Walk(ListOptions{IncludeArchived: true}) {
		if item != nil {
			_, err := s.Reindex(ctx)
			return err
		}
	}
	return nil
}
