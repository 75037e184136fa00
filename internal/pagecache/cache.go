// Package pagecache keeps recently extracted page text for follow-up questions.
package pagecache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults for New.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 16
)

// Page is extracted page text.
type Page struct {
	URL       string
	Text      string
	Source    string
	FetchedAt time.Time
}

// Cache is a size-bounded page cache with per-entry expiry.
type Cache struct {
	lru *expirable.LRU[string, Page]
}

// New constructs a cache. Non-positive arguments select the defaults.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: expirable.NewLRU[string, Page](maxEntries, nil, ttl)}
}

// Get returns the cached page for url.
func (c *Cache) Get(url string) (Page, bool) {
	return c.lru.Get(url)
}

// Put stores page under its url.
func (c *Cache) Put(page Page) {
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now()
	}
	c.lru.Add(page.URL, page)
}

// Remove drops url from the cache.
func (c *Cache) Remove(url string) bool {
	return c.lru.Remove(url)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
