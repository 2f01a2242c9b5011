// Package provenance implements the content-addressed action cache and
// derivation chains over stored items.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/index"
	"github.com/grovetools/kw/pkg/journal"
	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/store"
)

// Key derives the cache key for one action invocation. Parameter maps are
// hashed independently of their iteration order, and input order matters.
func Key(action, version string, params map[string]string, inputs []string) (string, error) {
	paramsHash, err := hashstructure.Hash(params, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "action=%s\nversion=%s\nparams=%016x\n", action, version, paramsHash)
	for _, id := range inputs {
		fmt.Fprintf(h, "input=%s\n", id)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cache maps cache keys to previously produced outputs.
type Cache struct {
	store   *store.Store
	index   *index.Index
	journal *journal.Journal
	log     *logrus.Entry
}

// NewCache creates a cache over the store's index.
func NewCache(st *store.Store, j *journal.Journal, log *logrus.Entry) *Cache {
	return &Cache{
		store:   st,
		index:   st.Index(),
		journal: j,
		log:     logging.Component(log, "cache"),
	}
}

// Get returns the outputs recorded for key. An entry whose outputs are
// missing or no longer hash to their recorded identity is evicted, and
// the lookup reports a miss.
func (c *Cache) Get(key string) ([]*models.Item, bool, error) {
	entry, err := c.index.CacheEntry(key)
	if errors.Is(err, index.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	items := make([]*models.Item, 0, len(entry.Outputs))
	for _, out := range entry.Outputs {
		item, reason := c.resolve(out)
		if item == nil {
			c.log.WithFields(logrus.Fields{"key": ShortKey(key), "path": out.Path, "reason": reason}).
				Info("evicting stale cache entry")
			if err := c.evict(key); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		items = append(items, item)
	}
	return items, true, nil
}

// resolve loads a recorded output, following it by identity if it moved.
func (c *Cache) resolve(out index.CacheOutput) (*models.Item, string) {
	path := out.Path
	if !c.store.Exists(path) || store.IsArchived(path) {
		moved, ok := c.store.FindByIdentity(out.Identity)
		if !ok || store.IsArchived(moved) {
			return nil, "output missing"
		}
		path = moved
	}

	item, err := c.store.LoadPath(path)
	if err != nil {
		return nil, err.Error()
	}
	if item.Identity != out.Identity {
		return nil, "output edited"
	}
	return item, ""
}

// Put records outputs for key.
func (c *Cache) Put(key, action string, outputs []*models.Item) error {
	entry := index.CacheEntry{Key: key, Action: action}
	recorded := make([]journal.Output, len(outputs))
	for i, item := range outputs {
		entry.Outputs = append(entry.Outputs, index.CacheOutput{Identity: item.Identity, Path: item.Path})
		recorded[i] = journal.Output{Identity: item.Identity, Path: item.Path}
	}
	if err := c.index.PutCacheEntry(entry); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if _, err := c.journal.Append(journal.Entry{
		Kind:     journal.KindCachePut,
		CacheKey: key,
		Action:   action,
		Outputs:  recorded,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Cache) evict(key string) error {
	if err := c.index.DeleteCacheEntry(key); err != nil {
		return fmt.Errorf("evict cache entry: %w", err)
	}
	_, err := c.journal.Append(journal.Entry{Kind: journal.KindCacheEvicted, CacheKey: key})
	return err
}

// Rebuild restores cache entries by replaying the journal. It is used when
// the index has been lost or reset.
func (c *Cache) Rebuild() (int, error) {
	if err := c.index.ResetCache(); err != nil {
		return 0, err
	}

	live := map[string]index.CacheEntry{}
	ordered := map[string]bool{}
	var order []string
	for e, err := range c.journal.Entries() {
		if err != nil {
			return 0, err
		}
		switch e.Kind {
		case journal.KindCachePut:
			if !ordered[e.CacheKey] {
				ordered[e.CacheKey] = true
				order = append(order, e.CacheKey)
			}
			entry := index.CacheEntry{Key: e.CacheKey, Action: e.Action, Created: e.Time}
			for _, out := range e.Outputs {
				entry.Outputs = append(entry.Outputs, index.CacheOutput{Identity: out.Identity, Path: out.Path})
			}
			live[e.CacheKey] = entry
		case journal.KindCacheEvicted:
			delete(live, e.CacheKey)
		case journal.KindItemArchived, journal.KindItemUnarchived:
			// Keep recorded paths pointing at the item's current location.
			for key, entry := range live {
				for i, out := range entry.Outputs {
					if out.Path == e.OldPath {
						entry.Outputs[i].Path = e.Path
					}
				}
				live[key] = entry
			}
		}
	}

	n := 0
	for _, key := range order {
		entry, ok := live[key]
		if !ok {
			continue
		}
		if err := c.index.PutCacheEntry(entry); err != nil {
			return n, err
		}
		n++
	}
	c.log.WithField("entries", n).Info("rebuilt cache from journal")
	return n, nil
}

// EnsureRebuilt replays the journal when the cache is empty but the
// journal is not.
func (c *Cache) EnsureRebuilt() error {
	n, err := c.index.CacheEntryCount()
	if err != nil {
		return err
	}
	if n > 0 || c.journal.IsEmpty() {
		return nil
	}
	_, err = c.Rebuild()
	return err
}

// ShortKey abbreviates a cache key for display.
func ShortKey(key string) string {
	return key[:min(12, len(key))]
}
