package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// GenerateKey builds a stable cache key from a prefix and its arguments.
func GenerateKey(prefix string, parts ...any) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte('_')
		fmt.Fprint(&b, p)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:16]) // Use first 16 bytes for shorter keys
}

// Memoizer caches the results of expensive calls in a Store. Concurrent
// callers asking for the same missing key share a single call. Keys are
// stored under the memoizer's namespace, so several memoizers and plain
// entries can share one Store.
type Memoizer[V any] struct {
	store     *Store[V]
	namespace string
	ttl       time.Duration
	group     singleflight.Group

	// gen is bumped by every invalidation. A call that started under an
	// older generation still returns its value but does not store it.
	mu  sync.RWMutex
	gen uint64
}

// NewMemoizer wraps store. Results are cached for ttl under keys prefixed
// with namespace. An empty namespace claims the whole store.
func NewMemoizer[V any](store *Store[V], namespace string, ttl time.Duration) (*Memoizer[V], error) {
	if ttl < 0 {
		return nil, fmt.Errorf("%w: negative memo ttl %s", ErrInvalidArgument, ttl)
	}
	return &Memoizer[V]{store: store, namespace: namespace, ttl: ttl}, nil
}

// Do returns the cached value for key, or calls fn and caches its result.
// Errors from fn are returned to every waiting caller and are not cached.
// A result is not cached if the memoizer was invalidated while fn ran.
func (m *Memoizer[V]) Do(key string, fn func() (V, error)) (V, error) {
	key = m.namespace + key
	if v, ok := m.store.Get(key); ok {
		return v, nil
	}

	res, err, _ := m.group.Do(key, func() (any, error) {
		// Another caller may have filled the key while we waited.
		if v, ok := m.store.Get(key); ok {
			return v, nil
		}

		m.mu.RLock()
		gen := m.gen
		m.mu.RUnlock()

		v, err := fn()
		if err != nil {
			return v, err
		}
		return v, m.fill(key, v, gen)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V) // nil when V is an interface holding nil
	return v, nil
}

// fill stores v unless an invalidation happened after gen was read.
func (m *Memoizer[V]) fill(key string, v V, gen uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.gen != gen {
		return nil
	}
	return m.store.SetWithTTL(key, v, m.ttl)
}

// Invalidate drops a single memoized key.
func (m *Memoizer[V]) Invalidate(key string) {
	key = m.namespace + key

	m.mu.Lock()
	m.gen++
	m.store.Delete(key)
	m.mu.Unlock()

	m.group.Forget(key)
}

// InvalidatePrefix drops every memoized key starting with prefix and returns
// how many entries were removed. Entries outside the namespace are kept.
func (m *Memoizer[V]) InvalidatePrefix(prefix string) int {
	prefix = m.namespace + prefix

	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	return m.store.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// InvalidateAll drops every memoized value.
func (m *Memoizer[V]) InvalidateAll() int {
	return m.InvalidatePrefix("")
}
