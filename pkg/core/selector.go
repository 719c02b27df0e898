package core

import (
	"context"
	"sync"

	"github.com/rexliu/idelink/pkg/paths"
)

// SessionCache remembers the instance chosen per workspace for the life of the process.
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]Instance
}

// NewSessionCache returns an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{entries: make(map[string]Instance)}
}

// Get returns the instance stored under the normalized form of key.
func (c *SessionCache) Get(key string) (Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.entries[paths.Normalize(key)]
	return inst, ok
}

// Put stores inst under the normalized form of key.
func (c *SessionCache) Put(key string, inst Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[paths.Normalize(key)] = inst
}

// Len reports the number of cached workspaces.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Selector narrows a candidate list to one instance.
type Selector struct {
	// Cache may be nil, which disables remembering choices.
	Cache *SessionCache
	// Chooser resolves ambiguity. A nil Chooser picks the first candidate.
	Chooser Chooser
}

// NewSelector returns a Selector backed by cache.
func NewSelector(cache *SessionCache, chooser Chooser) *Selector {
	if cache == nil {
		cache = NewSessionCache()
	}
	return &Selector{Cache: cache, Chooser: chooser}
}

// Select picks one of candidates for the workspace key. ok is false when there are no candidates
// or the chooser declined. A lone candidate is returned without consulting the cache, but is still
// remembered so a later ambiguous call prefers it while it stays alive.
func (s *Selector) Select(ctx context.Context, candidates []Instance, key string) (Instance, bool) {
	switch len(candidates) {
	case 0:
		return Instance{}, false
	case 1:
		s.remember(key, candidates[0])
		return candidates[0], true
	}
	if cached, ok := s.recall(key); ok {
		for _, c := range candidates {
			if c.PID == cached.PID {
				return c, true
			}
		}
	}
	choice, ok := s.choose(ctx, candidates)
	if !ok {
		return Instance{}, false
	}
	s.remember(key, choice)
	return choice, true
}

func (s *Selector) recall(key string) (Instance, bool) {
	if s.Cache == nil {
		return Instance{}, false
	}
	return s.Cache.Get(key)
}

func (s *Selector) remember(key string, inst Instance) {
	if s.Cache != nil {
		s.Cache.Put(key, inst)
	}
}

func (s *Selector) choose(ctx context.Context, candidates []Instance) (Instance, bool) {
	if s.Chooser == nil {
		return candidates[0], true
	}
	return s.Chooser.ChooseOne(ctx, candidates)
}

// FirstChooser always picks the first candidate. It suits non-interactive callers.
type FirstChooser struct{}

// ChooseOne implements Chooser.
func (FirstChooser) ChooseOne(_ context.Context, candidates []Instance) (Instance, bool) {
	if len(candidates) == 0 {
		return Instance{}, false
	}
	return candidates[0], true
}
