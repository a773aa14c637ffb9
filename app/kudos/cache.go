package kudos

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itswincer/inkstone/app/database"
)

// Repository is the persistence surface the cache needs.
type Repository interface {
	InsertBatch(entries []database.KudosEntry) error
	CountsByPath() (map[string]int64, error)
	EntriesSince(since time.Time) ([]database.KudosEntry, error)
}

type pathEntry struct {
	mu         sync.Mutex
	count      int64
	interacted map[string]bool
}

// Cache holds per-path kudos counts and today's interaction sets in
// memory, with a write-behind log flushed to the store in batches.
// Reads and idempotency checks never touch the database.
type Cache struct {
	repo Repository

	mu      sync.RWMutex
	entries map[string]*pathEntry

	pendingMu sync.Mutex
	pending   []database.KudosEntry
}

func NewCache(repo Repository) *Cache {
	return &Cache{
		repo:    repo,
		entries: make(map[string]*pathEntry),
	}
}

// Warm loads persisted counts and today's interaction ids. Interaction
// sets only need the current UTC day because interaction ids rotate at
// midnight.
func (c *Cache) Warm(now time.Time) error {
	counts, err := c.repo.CountsByPath()
	if err != nil {
		return fmt.Errorf("failed to warm kudos counts: %w", err)
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	recent, err := c.repo.EntriesSince(dayStart)
	if err != nil {
		return fmt.Errorf("failed to warm kudos interactions: %w", err)
	}

	entries := make(map[string]*pathEntry, len(counts))
	for path, count := range counts {
		entries[path] = &pathEntry{count: count, interacted: make(map[string]bool)}
	}
	for _, e := range recent {
		entry, ok := entries[e.Path]
		if !ok {
			entry = &pathEntry{interacted: make(map[string]bool)}
			entries[e.Path] = entry
		}
		entry.interacted[e.InteractionID] = true
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	slog.Info("Kudos cache warmed", "paths", len(entries), "today", len(recent))
	return nil
}

func (c *Cache) entry(path string) *pathEntry {
	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[path]; ok {
		return e
	}
	e = &pathEntry{interacted: make(map[string]bool)}
	c.entries[path] = e
	return e
}

// Get returns the count for a path and whether this interaction id
// already gave kudos today.
func (c *Cache) Get(path, interactionID string) (int64, bool) {
	e := c.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count, e.interacted[interactionID]
}

// Put records a kudos. It is idempotent per (path, interaction id):
// the first call increments the count and queues the write, repeats are
// no-ops. Returns the resulting count and whether anything changed.
func (c *Cache) Put(path, interactionID string, now time.Time) (int64, bool) {
	e := c.entry(path)

	e.mu.Lock()
	if e.interacted[interactionID] {
		count := e.count
		e.mu.Unlock()
		return count, false
	}
	e.interacted[interactionID] = true
	e.count++
	count := e.count
	e.mu.Unlock()

	c.pendingMu.Lock()
	c.pending = append(c.pending, database.KudosEntry{
		Path:          path,
		InteractionID: interactionID,
		CreatedAt:     now.UTC(),
	})
	c.pendingMu.Unlock()

	return count, true
}

// Flush drains the pending log into the store in one transaction. On
// failure the drained entries are restored for the next attempt; the
// composite primary key absorbs any duplicates that sneak through.
func (c *Cache) Flush() error {
	c.pendingMu.Lock()
	batch := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := c.repo.InsertBatch(batch); err != nil {
		c.pendingMu.Lock()
		c.pending = append(batch, c.pending...)
		c.pendingMu.Unlock()
		return fmt.Errorf("failed to flush %d kudos entries: %w", len(batch), err)
	}

	slog.Debug("Kudos flushed", "entries", len(batch))
	return nil
}

// PendingCount reports the size of the unflushed log.
func (c *Cache) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// CacheStatus is a point-in-time summary of the in-memory state.
type CacheStatus struct {
	Paths   int
	Total   int64
	Pending int
}

// Status sums the cached counts. Counts are read per entry, so a burst
// of concurrent kudos may land between two entries; the numbers are
// diagnostic, not transactional.
func (c *Cache) Status() CacheStatus {
	c.mu.RLock()
	entries := make([]*pathEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	status := CacheStatus{Paths: len(entries), Pending: c.PendingCount()}
	for _, e := range entries {
		e.mu.Lock()
		status.Total += e.count
		e.mu.Unlock()
	}
	return status
}
