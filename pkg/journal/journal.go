// Package journal keeps an append-only record of every store write and
// cache entry, so the item index can be rebuilt after it is lost.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/logging"
)

// Kind identifies what an entry records.
type Kind string

const (
	KindItemSaved      Kind = "item_saved"
	KindItemArchived   Kind = "item_archived"
	KindItemUnarchived Kind = "item_unarchived"
	KindCachePut       Kind = "cache_put"
	KindCacheEvicted   Kind = "cache_evicted"
)

// Output is one recorded action output.
type Output struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
}

// Entry is a single journal line.
type Entry struct {
	ID          string            `json:"id"`
	Time        time.Time         `json:"time"`
	Kind        Kind              `json:"kind"`
	Path        string            `json:"path,omitempty"`
	OldPath     string            `json:"old_path,omitempty"`
	Identity    string            `json:"identity,omitempty"`
	DerivedFrom []string          `json:"derived_from,omitempty"`
	Action      string            `json:"action,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	CacheKey    string            `json:"cache_key,omitempty"`
	Outputs     []Output          `json:"outputs,omitempty"`
}

// Journal appends entries to a JSON-lines file.
type Journal struct {
	path string
	mu   sync.Mutex
	log  *logrus.Entry
	now  func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(j *Journal) {
		j.log = log
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// Open prepares a journal at path. The file is created on first append.
func Open(path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j := &Journal{path: path, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	j.log = logging.Component(j.log, "journal")
	return j, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append writes e, assigning its ID and timestamp.
func (j *Journal) Append(e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.Time = j.now().UTC()
	e.ID = ulid.MustNew(ulid.Timestamp(e.Time), ulid.DefaultEntropy()).String()

	line, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("marshal journal entry: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return e, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return e, fmt.Errorf("write journal: %w", err)
	}
	j.log.WithFields(logrus.Fields{"kind": e.Kind, "path": e.Path}).Debug("journaled")
	return e, nil
}

// Entries iterates over the journal in write order. Lines that fail to
// decode are logged and skipped. Each iteration re-reads the file.
func (j *Journal) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		f, err := os.Open(j.path)
		if os.IsNotExist(err) {
			return
		}
		if err != nil {
			yield(Entry{}, fmt.Errorf("open journal: %w", err))
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if len(scanner.Bytes()) == 0 {
				continue
			}
			var e Entry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				j.log.WithError(err).WithField("line", lineNo).Warn("skipping unreadable journal line")
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("read journal: %w", err))
		}
	}
}

// IsEmpty reports whether nothing has been journaled yet.
func (j *Journal) IsEmpty() bool {
	info, err := os.Stat(j.path)
	return err != nil || info.Size() == 0
}
