// Package cmap provides the atomic map primitive behind the registry and
// the party store: insert-if-absent, compare-and-swap update and atomic
// remove, so individual operations are linearizable per key. Values are
// constrained to comparable types (in practice: pointers) so a caller's
// snapshot can be compared by identity.
package cmap

import "sync"

type Map[K comparable, V comparable] struct {
	mu sync.RWMutex
	m  map[K]V
}

func New[K comparable, V comparable]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

func (c *Map[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *Map[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

// Set unconditionally stores value under key.
func (c *Map[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

// SetIfAbsent stores value only when key is unoccupied. Returns whether the
// value was stored.
func (c *Map[K, V]) SetIfAbsent(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; ok {
		return false
	}
	c.m[key] = value
	return true
}

// CompareAndSwap replaces old with new under key only when the stored value
// still equals old. Returns whether the swap happened.
func (c *Map[K, V]) CompareAndSwap(key K, old, new V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.m[key]
	if !ok || cur != old {
		return false
	}
	c.m[key] = new
	return true
}

// Upsert stores value under key and reports whether the key was newly
// created (true) or replaced (false).
func (c *Map[K, V]) Upsert(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed := c.m[key]
	c.m[key] = value
	return !existed
}

// Delete removes key, returning the removed value if present.
func (c *Map[K, V]) Delete(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if ok {
		delete(c.m, key)
	}
	return v, ok
}

// CompareAndDelete removes key only when the stored value equals old.
func (c *Map[K, V]) CompareAndDelete(key K, old V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.m[key]
	if !ok || cur != old {
		return false
	}
	delete(c.m, key)
	return true
}

// Clear removes every entry, returning how many were removed.
func (c *Map[K, V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.m)
	c.m = make(map[K]V)
	return n
}

// Range calls fn for each entry over a snapshot taken under the read lock,
// so fn may call back into the map.
func (c *Map[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.RLock()
	type pair struct {
		k K
		v V
	}
	pairs := make([]pair, 0, len(c.m))
	for k, v := range c.m {
		pairs = append(pairs, pair{k, v})
	}
	c.mu.RUnlock()
	for _, p := range pairs {
		if !fn(p.k, p.v) {
			return
		}
	}
}

// Values returns a snapshot of all values.
func (c *Map[K, V]) Values() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]V, 0, len(c.m))
	for _, v := range c.m {
		out = append(out, v)
	}
	return out
}
