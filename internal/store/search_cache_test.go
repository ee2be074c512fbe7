package store

import (
	"fmt"
	"testing"
	"time"

	"tunefetch/pkg/audiolink"
)

func results(ids ...string) []audiolink.SearchResult {
	out := make([]audiolink.SearchResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, audiolink.SearchResult{ID: id})
	}
	return out
}

func TestSearchCache_Basic(t *testing.T) {
	cache := NewSearchCache(100, time.Minute, 0.001)

	// Test empty cache
	if _, ok := cache.Get("rick astley"); ok {
		t.Error("Empty cache should not have any entries")
	}

	if cache.Size() != 0 {
		t.Errorf("Empty cache size should be 0, got %d", cache.Size())
	}

	cache.Add("rick astley", results("dQw4w9WgXcQ"))
	got, ok := cache.Get("rick astley")
	if !ok {
		t.Fatal("Cache should have entry after adding")
	}
	if len(got) != 1 || got[0].ID != "dQw4w9WgXcQ" {
		t.Errorf("Get() = %+v", got)
	}

	// Overwrite keeps a single entry
	cache.Add("rick astley", results("a", "b"))
	if cache.Size() != 1 {
		t.Errorf("Cache size should still be 1 after overwrite, got %d", cache.Size())
	}
	got, _ = cache.Get("rick astley")
	if len(got) != 2 {
		t.Errorf("Get() after overwrite returned %d results, want 2", len(got))
	}

	// Empty keys are ignored
	cache.Add("", results("x"))
	if cache.Size() != 1 {
		t.Errorf("Empty key should not be stored, size %d", cache.Size())
	}
}

func TestSearchCache_Expiry(t *testing.T) {
	cache := NewSearchCache(10, 50*time.Millisecond, 0.001)
	cache.Add("q", results("a"))

	if _, ok := cache.Get("q"); !ok {
		t.Fatal("entry should be present before expiry")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get("q"); ok {
		t.Error("entry should have expired")
	}
}

func TestSearchCache_Clear(t *testing.T) {
	cache := NewSearchCache(100, time.Minute, 0.001)

	queries := []string{"one", "two", "three"}
	for _, q := range queries {
		cache.Add(q, results(q))
	}

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Cache size should be 0 after clear, got %d", cache.Size())
	}
	for _, q := range queries {
		if _, ok := cache.Get(q); ok {
			t.Errorf("Cache should not have %s after clear", q)
		}
	}
}

func TestSearchCache_MaxCapacity(t *testing.T) {
	maxEntries := 5
	cache := NewSearchCache(maxEntries, time.Minute, 0.001)

	for i := 0; i < maxEntries+3; i++ {
		cache.Add(fmt.Sprintf("query%d", i), results("id"))
	}

	if cache.Size() > maxEntries {
		t.Errorf("Cache size should not exceed %d, got %d", maxEntries, cache.Size())
	}

	for _, q := range []string{"query5", "query6", "query7"} {
		if _, ok := cache.Get(q); !ok {
			t.Errorf("Cache should have recent query %s", q)
		}
	}
	if _, ok := cache.Get("query0"); ok {
		t.Error("oldest query should have been evicted")
	}
}

func TestSearchCache_BloomRebuildKeepsLiveEntries(t *testing.T) {
	maxEntries := 10
	cache := NewSearchCache(maxEntries, time.Minute, 0.001)

	// Enough insertions to force several rebuilds.
	total := maxEntries*bloomRebuildFactor*3 + 7
	for i := 0; i < total; i++ {
		cache.Add(fmt.Sprintf("query%d", i), results("id"))
	}

	for i := total - maxEntries; i < total; i++ {
		q := fmt.Sprintf("query%d", i)
		if _, ok := cache.Get(q); !ok {
			t.Errorf("live query %s lost after bloom rebuild", q)
		}
	}
}

func BenchmarkSearchCache_GetMiss(b *testing.B) {
	cache := NewSearchCache(10000, time.Minute, 0.001)
	for i := 0; i < 1000; i++ {
		cache.Add(fmt.Sprintf("query_%d", i), results("id"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(fmt.Sprintf("missing_%d", i))
	}
}
