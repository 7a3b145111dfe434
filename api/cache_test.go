package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/coursehub/models"
)

func TestCourseCache_SetGet(t *testing.T) {
	cache := NewCourseCache(10, time.Minute)

	cache.Set(&models.Course{ID: "c1", Title: "Go"})
	got := cache.Get("c1")
	require.NotNil(t, got)
	assert.Equal(t, "Go", got.Title)

	got.Title = "mutated"
	assert.Equal(t, "Go", cache.Get("c1").Title, "Get returns a copy")

	assert.Nil(t, cache.Get("missing"))

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCourseCache_IgnoresCoursesWithoutID(t *testing.T) {
	cache := NewCourseCache(10, time.Minute)
	cache.Set(&models.Course{Title: "untitled"})
	cache.Set(nil)
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestCourseCache_Expiry(t *testing.T) {
	cache := NewCourseCache(10, 10*time.Millisecond)
	cache.Set(&models.Course{ID: "c1"})

	time.Sleep(20 * time.Millisecond)

	assert.Nil(t, cache.Get("c1"))
	assert.Equal(t, 0, cache.Stats().Size, "expired entries are dropped on read")
}

func TestCourseCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCourseCache(2, time.Minute)
	cache.Set(&models.Course{ID: "c1"})
	cache.Set(&models.Course{ID: "c2"})

	require.NotNil(t, cache.Get("c1"))
	cache.Set(&models.Course{ID: "c3"})

	assert.NotNil(t, cache.Get("c1"))
	assert.Nil(t, cache.Get("c2"))
	assert.NotNil(t, cache.Get("c3"))
}

func TestCourseCache_InvalidateAndClear(t *testing.T) {
	cache := NewCourseCache(10, time.Minute)
	cache.Set(&models.Course{ID: "c1"})
	cache.Set(&models.Course{ID: "c2"})

	cache.Invalidate("c1")
	assert.Nil(t, cache.Get("c1"))
	assert.NotNil(t, cache.Get("c2"))

	cache.Clear()
	assert.Nil(t, cache.Get("c2"))
	assert.Equal(t, 0, cache.Stats().Size)
}
