// Package cache holds the in-memory recently-viewed book list.
package cache

import (
	"sync"
	"time"
)

// RecentEntry is one recently viewed book
type RecentEntry struct {
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	ViewedAt time.Time `json:"viewed_at"`
}

// RecentlyViewed is a concurrency-safe, bounded most-recently-used list of
// viewed books. Viewing a book already on the list moves it to the front.
type RecentlyViewed struct {
	mu       sync.Mutex
	capacity int
	entries  []RecentEntry
}

// NewRecentlyViewed creates a list holding at most capacity entries
func NewRecentlyViewed(capacity int) *RecentlyViewed {
	if capacity < 1 {
		capacity = 10
	}
	return &RecentlyViewed{
		capacity: capacity,
		entries:  make([]RecentEntry, 0, capacity),
	}
}

// Record notes that a book was viewed, promoting it to the front of the list
func (r *RecentlyViewed) Record(slug, title string) {
	if slug == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.Slug == slug {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}

	entry := RecentEntry{Slug: slug, Title: title, ViewedAt: time.Now()}
	r.entries = append([]RecentEntry{entry}, r.entries...)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[:r.capacity]
	}
}

// List returns a copy of the list, most recent first
func (r *RecentlyViewed) List() []RecentEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RecentEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
