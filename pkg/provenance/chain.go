package provenance

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/precondition"
	"github.com/grovetools/kw/pkg/store"
)

// Link is one ancestor in a derivation chain.
type Link struct {
	Item  *models.Item
	Depth int
}

// Chain is the lineage of an item, nearest ancestors first.
type Chain struct {
	Item      *models.Item
	Ancestors []Link
	// Broken lists ancestor identities that could not be found. The walk
	// stops at each of them.
	Broken []string
}

// Complete reports whether every ancestor was found.
func (c *Chain) Complete() bool {
	return len(c.Broken) == 0
}

// Tracker walks derivation relations between stored items.
type Tracker struct {
	store *store.Store
	log   *logrus.Entry
}

// NewTracker creates a tracker over a store.
func NewTracker(st *store.Store, log *logrus.Entry) *Tracker {
	return &Tracker{store: st, log: logging.Component(log, "provenance")}
}

// DerivationChain walks derived_from relations breadth first. Each
// ancestor appears once, at its shortest distance from item. Copies share
// an identity, so an identity resolves to a path other than the ones
// already in the chain, preferring a path that records where it came from.
func (t *Tracker) DerivationChain(item *models.Item) (*Chain, error) {
	chain := &Chain{Item: item}

	type pending struct {
		identity string
		depth    int
	}
	seen := map[string]bool{item.Path: true}
	visited := map[string]bool{}
	var queue []pending
	enqueue := func(parents []string, depth int) {
		for _, id := range parents {
			if !visited[id] {
				visited[id] = true
				queue = append(queue, pending{identity: id, depth: depth})
			}
		}
	}

	parents, err := t.parentsOf(item)
	if err != nil {
		return nil, err
	}
	enqueue(parents, 1)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		ancestor, err := t.resolve(next.identity, seen)
		if err != nil {
			return nil, err
		}
		if ancestor == nil {
			if next.identity == item.Identity {
				continue
			}
			chain.Broken = append(chain.Broken, next.identity)
			t.log.WithField("identity", next.identity).Debug("derivation chain truncated")
			continue
		}
		seen[ancestor.Path] = true
		chain.Ancestors = append(chain.Ancestors, Link{Item: ancestor, Depth: next.depth})

		parents, err := t.parentsOf(ancestor)
		if err != nil {
			return nil, err
		}
		enqueue(parents, next.depth+1)
	}

	return chain, nil
}

// resolve loads the item holding identity at a path not in seen. It
// returns nil when no such path can be read.
func (t *Tracker) resolve(identity string, seen map[string]bool) (*models.Item, error) {
	paths, err := t.store.Index().PathsForIdentity(identity)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", identity, err)
	}
	var fallback *models.Item
	for _, rel := range paths {
		if seen[rel] || !t.store.Exists(rel) {
			continue
		}
		item, err := t.store.LoadPath(rel)
		if err != nil {
			t.log.WithError(err).WithField("path", rel).Debug("skipping unreadable ancestor")
			continue
		}
		if hasLineage(item) {
			return item, nil
		}
		if fallback == nil {
			fallback = item
		}
	}
	return fallback, nil
}

// hasLineage reports whether item records a parent other than itself.
func hasLineage(item *models.Item) bool {
	for _, id := range item.Relations.DerivedFrom {
		if id != item.Identity {
			return true
		}
	}
	return false
}

func (t *Tracker) parentsOf(item *models.Item) ([]string, error) {
	if len(item.Relations.DerivedFrom) > 0 {
		return item.Relations.DerivedFrom, nil
	}
	parents, err := t.store.Index().Parents(item.Identity)
	if err != nil {
		return nil, fmt.Errorf("read parents: %w", err)
	}
	return parents, nil
}

// FindUpstream returns the nearest ancestor satisfying p. When includeSelf
// is set the item itself is considered first.
func (t *Tracker) FindUpstream(item *models.Item, p precondition.Precondition, includeSelf bool) (*models.Item, error) {
	if includeSelf && p.Check(item) {
		return item, nil
	}
	chain, err := t.DerivationChain(item)
	if err != nil {
		return nil, err
	}
	for _, link := range chain.Ancestors {
		if p.Check(link.Item) {
			return link.Item, nil
		}
	}
	return nil, &models.NotFoundError{Kind: "upstream item", Ref: p.Name()}
}

// Derived returns the stored items directly derived from item.
func (t *Tracker) Derived(item *models.Item) ([]*models.Item, error) {
	children, err := t.store.Index().Children(item.Identity)
	if err != nil {
		return nil, fmt.Errorf("read children: %w", err)
	}
	var items []*models.Item
	for _, id := range children {
		rel, ok := t.store.FindByIdentity(id)
		if !ok {
			continue
		}
		child, err := t.store.LoadPath(rel)
		if err != nil {
			continue
		}
		items = append(items, child)
	}
	return items, nil
}
