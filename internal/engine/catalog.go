package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Catalog is the last-known set of node kinds the engine supports. The
// validator's external-compatibility check reads it instead of making a live
// engine call. Entries past the TTL are still served (best-effort by design);
// staleness only marks the catalog refreshable.
type Catalog struct {
	mu        sync.RWMutex
	kinds     map[string]bool
	ttl       time.Duration
	refreshed time.Time
}

// NewCatalog creates a catalog seeded with the given kinds. When seed is
// empty the compiled-in kind table is used so the service can start with
// zero configuration.
func NewCatalog(seed []string, ttl time.Duration) *Catalog {
	if len(seed) == 0 {
		seed = model.AllKinds()
	}
	c := &Catalog{
		kinds: make(map[string]bool, len(seed)),
		ttl:   ttl,
	}
	for _, k := range seed {
		c.kinds[k] = true
	}
	c.refreshed = time.Now()
	return c
}

// Known reports whether the engine supports the given node kind, per the
// last-known snapshot.
func (c *Catalog) Known(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kinds[kind]
}

// Kinds returns the supported kinds, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of known kinds.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kinds)
}

// Stale reports whether the snapshot is older than the TTL. A zero TTL never
// goes stale.
func (c *Catalog) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ttl <= 0 {
		return false
	}
	return time.Since(c.refreshed) > c.ttl
}

// Replace swaps the snapshot wholesale. Empty input is ignored so a failed
// refresh can never blank the catalog.
func (c *Catalog) Replace(kinds []string) {
	if len(kinds) == 0 {
		return
	}
	next := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		next[k] = true
	}
	c.mu.Lock()
	c.kinds = next
	c.refreshed = time.Now()
	c.mu.Unlock()
}

// RefreshFunc fetches the current supported kinds from some source.
type RefreshFunc func(ctx context.Context) ([]string, error)

// RunRefreshLoop periodically replaces the catalog using fn until ctx is
// cancelled. Refresh failures keep the previous snapshot.
func (c *Catalog) RunRefreshLoop(ctx context.Context, fn RefreshFunc, interval time.Duration) {
	if fn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if kinds, err := fn(ctx); err == nil {
				c.Replace(kinds)
			}
		}
	}
}
