package api

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/coursehub/models"
)

// cacheEntry is a single cached course with its insertion time
type cacheEntry struct {
	course     models.Course
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// CourseCache is an in-memory LRU cache with TTL for course details.
// Thread-safe; values are copied in and out.
type CourseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewCourseCache creates a cache holding at most maxSize courses for ttl each
func NewCourseCache(maxSize int, ttl time.Duration) *CourseCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &CourseCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached course for id, or nil when missing or expired
func (c *CourseCache) Get(id string) *models.Course {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(id)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	course := entry.course
	return &course
}

// Set stores a copy of course under its ID
func (c *CourseCache) Set(course *models.Course) {
	if course == nil || course.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[course.ID]; exists {
		entry.course = *course
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{course: *course, insertedAt: time.Now()}
	entry.element = c.lruList.PushFront(course.ID)
	c.entries[course.ID] = entry
}

// Invalidate removes the entry for id
func (c *CourseCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntry(id)
}

// Clear removes all entries from the cache
func (c *CourseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// Stats returns cache statistics
func (c *CourseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *CourseCache) removeEntry(id string) {
	if entry, exists := c.entries[id]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, id)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *CourseCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, id)
}
