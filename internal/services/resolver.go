package services

import (
	"context"
	"fmt"
	"time"

	"expensehub/internal/cache"
	"expensehub/internal/core"
	"expensehub/internal/metrics"
)

// TitleStore looks master data up by its unique title.
type TitleStore interface {
	LocationByTitle(ctx context.Context, title string) (core.Location, error)
	CategoryByTitle(ctx context.Context, title string) (core.Category, error)
	ProjectByTitle(ctx context.Context, title string) (core.Project, error)
}

// TitleResolver resolves titles sent by mobile clients, caching hits.
// Misses are never cached so master data added by the seed command is
// visible immediately.
type TitleResolver struct {
	store      TitleStore
	locations  *cache.LRUCache[core.Location]
	categories *cache.LRUCache[core.Category]
	projects   *cache.LRUCache[core.Project]
}

func NewTitleResolver(store TitleStore, size int, ttl time.Duration) *TitleResolver {
	return &TitleResolver{
		store:      store,
		locations:  cache.NewLRUCache[core.Location](size, ttl),
		categories: cache.NewLRUCache[core.Category](size, ttl),
		projects:   cache.NewLRUCache[core.Project](size, ttl),
	}
}

// Register hands the resolver's caches to a janitor for periodic cleanup
// and exposes their hit counters on /metrics.
func (r *TitleResolver) Register(j *cache.Janitor) {
	j.Register(r.locations)
	j.Register(r.categories)
	j.Register(r.projects)
	metrics.TrackCache("location", r.locations.Stats)
	metrics.TrackCache("category", r.categories.Stats)
	metrics.TrackCache("project", r.projects.Stats)
}

func (r *TitleResolver) Location(ctx context.Context, title string) (core.Location, error) {
	return lookup(ctx, r.locations, title, r.store.LocationByTitle)
}

// Category resolves an optional category; an empty title yields the zero value.
func (r *TitleResolver) Category(ctx context.Context, title string) (core.Category, error) {
	if title == "" {
		return core.Category{}, nil
	}
	return lookup(ctx, r.categories, title, r.store.CategoryByTitle)
}

// Project resolves an optional project; an empty title yields the zero value.
func (r *TitleResolver) Project(ctx context.Context, title string) (core.Project, error) {
	if title == "" {
		return core.Project{}, nil
	}
	return lookup(ctx, r.projects, title, r.store.ProjectByTitle)
}

func lookup[T any](ctx context.Context, c *cache.LRUCache[T], title string, load func(context.Context, string) (T, error)) (T, error) {
	if v, ok := c.Get(title); ok {
		return v, nil
	}
	v, err := load(ctx, title)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("resolve %q: %w", title, err)
	}
	c.Set(title, v)
	return v, nil
}
