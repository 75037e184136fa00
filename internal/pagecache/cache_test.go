package pagecache

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheEvictsOldestBeyondCapacity(t *testing.T) {
	c := New(2, time.Minute)
	for i := 0; i < 3; i++ {
		c.Put(Page{URL: fmt.Sprintf("https://example.com/%d", i), Text: "body"})
	}
	if _, ok := c.Get("https://example.com/0"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if page, ok := c.Get("https://example.com/2"); !ok || page.Text != "body" {
		t.Fatalf("expected newest entry, got %+v %v", page, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestCacheExpiresEntries(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Put(Page{URL: "https://example.com", Text: "body"})
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("https://example.com"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestCacheRemove(t *testing.T) {
	c := New(0, 0)
	c.Put(Page{URL: "https://example.com", Text: "body"})
	if !c.Remove("https://example.com") {
		t.Fatalf("expected remove to report true")
	}
	if c.Remove("https://example.com") {
		t.Fatalf("expected second remove to report false")
	}
}
