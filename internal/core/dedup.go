package core

// DedupCache tracks recently seen trade signatures.
// Unlike an LRU it evicts in batch: when the cache reaches capacity it
// keeps only the most recent retain entries in one pass. Lookups stay
// O(1) and eviction cost is amortized over capacity-retain inserts.
type DedupCache struct {
	capacity int
	retain   int
	seen     map[string]struct{}
	order    []string // insertion order, oldest first
}

func NewDedupCache(capacity, retain int) *DedupCache {
	if retain >= capacity {
		retain = capacity / 2
	}
	return &DedupCache{
		capacity: capacity,
		retain:   retain,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Seen reports whether key has been recorded and not yet evicted.
func (d *DedupCache) Seen(key string) bool {
	_, ok := d.seen[key]
	return ok
}

// Record adds key to the cache, evicting the oldest entries down to
// retain if the cache is full. Recording an already-present key is a
// no-op; its position is not refreshed.
func (d *DedupCache) Record(key string) {
	if _, ok := d.seen[key]; ok {
		return
	}

	if len(d.order) >= d.capacity {
		evict := d.order[:len(d.order)-d.retain]
		for _, k := range evict {
			delete(d.seen, k)
		}
		kept := make([]string, d.retain, d.capacity)
		copy(kept, d.order[len(d.order)-d.retain:])
		d.order = kept
	}

	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
}

// Len returns the current number of tracked keys.
func (d *DedupCache) Len() int {
	return len(d.order)
}
