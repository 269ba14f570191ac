package clip

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the default number of clusters whose encoding is memoized by a Tokenizer.
const DefaultCacheSize = 1 << 16

// encodeCache memoizes the token IDs of clusters. It is safe for concurrent use.
//
// A nil *encodeCache is a valid disabled cache: lookups always miss and additions are dropped.
type encodeCache struct {
	lru *lru.Cache[string, []int]
}

// newEncodeCache creates a cache holding up to size clusters. It returns nil (a disabled cache) if size <= 0.
func newEncodeCache(size int) (*encodeCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, []int](size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create encode cache of size %d", size)
	}
	return &encodeCache{lru: c}, nil
}

func (c *encodeCache) get(cluster string) ([]int, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(cluster)
}

// add stores ids, which must not be modified afterwards.
func (c *encodeCache) add(cluster string, ids []int) {
	if c == nil {
		return
	}
	c.lru.Add(cluster, ids)
}

func (c *encodeCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *encodeCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
