// Package cache provides small in-process caches for read-mostly master data.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is a keyed store with expiry.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans every registered cache until its context ends.
type Janitor struct {
	mu     sync.Mutex
	caches []Cleaner
	done   chan struct{}
}

func NewJanitor() *Janitor {
	return &Janitor{}
}

func (j *Janitor) Register(c Cleaner) {
	j.mu.Lock()
	j.caches = append(j.caches, c)
	j.mu.Unlock()
}

// Start launches the cleanup loop. Wait blocks until it has exited.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := j.sweep(); n > 0 {
					slog.DebugContext(ctx, "Expired cache entries removed", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (j *Janitor) sweep() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

func (j *Janitor) Wait() {
	if j.done != nil {
		<-j.done
	}
}
