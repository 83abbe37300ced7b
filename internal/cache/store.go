package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
)

// Store is a bounded key/value cache where every entry carries its own TTL.
// When full, inserting a new key evicts the entry with the oldest insertion
// time. Expired entries are never returned; they are removed on access or by
// Cleanup.
type Store[V any] struct {
	maxSize    int
	defaultTTL time.Duration

	// Insertion order: front is the oldest insertedAt.
	items map[string]*list.Element
	order *list.List

	clock  clock.Clock
	logger *log.Logger

	mu sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

type storeEntry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

// expiredAt reports whether the entry's age has reached its TTL. A zero TTL
// is therefore expired on the first access.
func (e *storeEntry[V]) expiredAt(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// New creates a store. A nil config means DefaultConfig.
func New[V any](cfg *Config, opts ...Option) (*Store[V], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &Store[V]{
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		items:      make(map[string]*list.Element, cfg.MaxSize),
		order:      list.New(),
		clock:      o.clock,
		logger:     o.logger,
	}, nil
}

// Set stores value under key with the default TTL.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, value, s.defaultTTL)
}

// SetWithTTL stores value under key, expiring after ttl. A negative ttl is
// rejected and leaves the store untouched.
func (s *Store[V]) SetWithTTL(key string, value V, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w: negative ttl %s for key %q", ErrInvalidArgument, ttl, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, value, ttl)
	return nil
}

func (s *Store[V]) setLocked(key string, value V, ttl time.Duration) {
	now := s.clock.Now()

	// Overwrites restart the entry's lifetime and move it to the newest slot.
	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*storeEntry[V])
		entry.value = value
		entry.insertedAt = now
		entry.ttl = ttl
		s.order.MoveToBack(elem)
		return
	}

	if len(s.items) >= s.maxSize {
		s.evictOldest()
	}

	s.items[key] = s.order.PushBack(&storeEntry[V]{
		key:        key,
		value:      value,
		insertedAt: now,
		ttl:        ttl,
	})
}

// Get returns the value for key if it is present and not expired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	elem, ok := s.items[key]
	if !ok {
		s.misses++
		return zero, false
	}

	entry := elem.Value.(*storeEntry[V])
	if entry.expiredAt(s.clock.Now()) {
		s.removeElement(elem)
		s.expirations++
		s.misses++
		return zero, false
	}

	s.hits++
	return entry.value, true
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// DeleteFunc removes every entry whose key satisfies match and returns how
// many were removed. match runs with the store locked and must not call back
// into the store.
func (s *Store[V]) DeleteFunc(match func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	elem := s.order.Front()
	for elem != nil {
		next := elem.Next()
		if match(elem.Value.(*storeEntry[V]).key) {
			s.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Clear removes all entries. Counters are kept.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element, s.maxSize)
	s.order.Init()
}

// Cleanup removes every expired entry and returns how many were removed.
func (s *Store[V]) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0

	// TTLs differ per entry, so the whole list is scanned.
	elem := s.order.Front()
	for elem != nil {
		next := elem.Next()
		if elem.Value.(*storeEntry[V]).expiredAt(now) {
			s.removeElement(elem)
			removed++
		}
		elem = next
	}

	s.expirations += int64(removed)
	return removed
}

// Len returns the number of stored entries, including expired entries that
// have not been removed yet.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// Keys returns the unexpired keys, oldest first. It does not remove anything.
func (s *Store[V]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	keys := make([]string, 0, len(s.items))
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*storeEntry[V])
		if !entry.expiredAt(now) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

// Snapshot returns metadata for every stored entry, oldest first.
func (s *Store[V]) Snapshot() []EntryMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	metas := make([]EntryMeta, 0, len(s.items))
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*storeEntry[V])
		metas = append(metas, EntryMeta{
			Key:        entry.key,
			InsertedAt: entry.insertedAt,
			TTL:        entry.ttl,
			Age:        now.Sub(entry.insertedAt),
			Expired:    entry.expiredAt(now),
		})
	}
	return metas
}

// Stats returns cache statistics.
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Size:        len(s.items),
		MaxSize:     s.maxSize,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
	if lookups := s.hits + s.misses; lookups > 0 {
		stats.HitRate = float64(s.hits) / float64(lookups)
	}
	return stats
}

// evictOldest removes the entry with the smallest insertedAt (must be called with lock held).
func (s *Store[V]) evictOldest() {
	elem := s.order.Front()
	if elem == nil {
		return
	}
	entry := elem.Value.(*storeEntry[V])
	s.removeElement(elem)
	s.evictions++
	s.logger.Debug("Evicted oldest cache entry", "key", entry.key, "inserted", entry.insertedAt)
}

// removeElement unlinks an entry (must be called with lock held).
func (s *Store[V]) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*storeEntry[V]).key)
}
