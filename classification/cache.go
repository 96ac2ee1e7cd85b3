package classification

import (
	"hash/fnv"
	"sync"
)

const cacheShards = 64

// ResultCache stores issued results by hash. Entries are never replaced:
// the first result stored for a hash is the one every later caller sees.
// Each shard has its own lock so unrelated hashes do not contend.
type ResultCache struct {
	shards [cacheShards]cacheShard
}

type cacheShard struct {
	mu    sync.RWMutex
	items map[string]*Result
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	c := &ResultCache{}
	for i := range c.shards {
		c.shards[i].items = make(map[string]*Result)
	}
	return c
}

func (c *ResultCache) shard(hash string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return &c.shards[h.Sum32()%cacheShards]
}

// Get returns the stored result for hash.
func (c *ResultCache) Get(hash string) (*Result, bool) {
	s := c.shard(hash)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[hash]
	return r, ok
}

// PutIfAbsent stores r unless a result already exists for its hash, and
// returns whichever result is stored.
func (c *ResultCache) PutIfAbsent(r *Result) *Result {
	s := c.shard(r.Hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[r.Hash]; ok {
		return existing
	}
	s.items[r.Hash] = r
	return r
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
