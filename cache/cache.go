// Package cache implements the small write-through caches DbManager keeps in
// front of the key-value store: one bounded LRU per key family, populated on
// write and consulted on read so a hot header/body/TD lookup never round
// trips to disk.
package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Family names one of the key families the store maintains independently.
type Family int

const (
	Header Family = iota
	Body
	NumberToHash
	HashToNumber
	TotalDifficulty

	numFamilies
)

// DefaultCapacity is the per-family entry limit used when the caller does not
// specify one. It mirrors the order of magnitude of the corpus's own
// header/number caches (core/rawdb header & number LRUs).
const DefaultCapacity = 256

// Cache holds one bounded LRU per family. The zero value is not usable; build
// one with New.
type Cache struct {
	families [numFamilies]*lru.Cache
}

// New builds a Cache with capacity entries per family. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{}
	for i := range c.families {
		l, err := lru.New(capacity)
		if err != nil {
			// lru.New only fails for size <= 0, which New already guards against.
			panic(err)
		}
		c.families[i] = l
	}
	return c
}

// Get returns the cached value for key in family, if present.
func (c *Cache) Get(family Family, key string) ([]byte, bool) {
	v, ok := c.families[family].Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put inserts or overwrites the cached value for key in family.
func (c *Cache) Put(family Family, key string, value []byte) {
	// Copy so later mutation of the caller's slice can't corrupt the cache.
	cp := make([]byte, len(value))
	copy(cp, value)
	c.families[family].Add(key, cp)
}

// Del removes key from family's cache, if present.
func (c *Cache) Del(family Family, key string) {
	c.families[family].Remove(key)
}
