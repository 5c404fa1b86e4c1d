// Package cache memoizes per-dataset aggregates in process and fans
// invalidations out to peer instances over Redis pub/sub.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Aggregates is an in-memory cache of computed views keyed by dataset.
// Every dataset has a generation; Invalidate bumps it so results computed
// before the bump are stored under a key nobody reads again.
type Aggregates struct {
	items *gocache.Cache

	mu   sync.Mutex
	gens map[string]uint64
}

func New(ttl time.Duration) *Aggregates {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Aggregates{
		items: gocache.New(ttl, 2*ttl),
		gens:  make(map[string]uint64),
	}
}

func (a *Aggregates) generation(dataset string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gens[dataset]
}

// Key builds the cache key of one view of dataset at its current generation.
func (a *Aggregates) Key(dataset string, params ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%d", dataset, a.generation(dataset))
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

func (a *Aggregates) Get(key string) (any, bool) {
	return a.items.Get(key)
}

func (a *Aggregates) Set(key string, value any) {
	a.items.SetDefault(key, value)
}

// Invalidate drops every cached view of dataset and returns how many were dropped.
func (a *Aggregates) Invalidate(dataset string) int {
	a.mu.Lock()
	a.gens[dataset]++
	a.mu.Unlock()

	prefix := dataset + "@"
	dropped := 0
	for key := range a.items.Items() {
		if strings.HasPrefix(key, prefix) {
			a.items.Delete(key)
			dropped++
		}
	}
	return dropped
}

func (a *Aggregates) Len() int {
	return a.items.ItemCount()
}

func (a *Aggregates) Flush() {
	a.mu.Lock()
	for dataset := range a.gens {
		a.gens[dataset]++
	}
	a.mu.Unlock()
	a.items.Flush()
}

// Remember returns the cached value under key or stores what load produces.
// Errors are not cached.
func Remember[T any](a *Aggregates, key string, load func() (T, error)) (T, error) {
	if a != nil {
		if v, ok := a.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if a != nil {
		a.Set(key, v)
	}
	return v, nil
}
