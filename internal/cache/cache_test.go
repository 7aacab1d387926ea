package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, config Config) *Cache {
	t.Helper()
	if config.Dir == "" {
		config.Dir = t.TempDir()
	}
	c, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return c
}

func TestCache_GetPut(t *testing.T) {
	cache := newTestCache(t, Config{MaxSize: 1 << 20, MaxAge: time.Hour})

	key := "https://example.com/report.pdf"
	data := []byte("%PDF-1.4 test document")
	meta := map[string]string{"etag": `"abc"`}

	if err := cache.Put(key, data, meta); err != nil {
		t.Fatalf("Failed to put data: %v", err)
	}

	retrieved, gotMeta, found := cache.Get(key)
	if !found {
		t.Fatal("Data not found in cache")
	}
	if !bytes.Equal(retrieved, data) {
		t.Errorf("Retrieved data doesn't match: got %s, want %s", retrieved, data)
	}
	if gotMeta["etag"] != `"abc"` {
		t.Errorf("Meta etag = %q, want %q", gotMeta["etag"], `"abc"`)
	}

	// The returned meta is a copy.
	gotMeta["etag"] = "changed"
	_, again, _ := cache.Get(key)
	if again["etag"] != `"abc"` {
		t.Error("Caller mutated the cached meta")
	}

	if _, _, found := cache.Get("missing"); found {
		t.Error("Missing key reported as found")
	}

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Stats = %+v, want 2 hits and 1 miss", stats)
	}
	if stats.Entries != 1 || stats.TotalSize != int64(len(data)) {
		t.Errorf("Stats = %+v, want one entry of %d bytes", stats, len(data))
	}
}

func TestCache_Replace(t *testing.T) {
	cache := newTestCache(t, Config{})

	cache.Put("k", []byte("first"), nil)
	cache.Put("k", []byte("second version"), map[string]string{"etag": "2"})

	data, meta, found := cache.Get("k")
	if !found || string(data) != "second version" || meta["etag"] != "2" {
		t.Errorf("Get = %q %v %v", data, meta, found)
	}
	if got := cache.Stats().TotalSize; got != int64(len("second version")) {
		t.Errorf("TotalSize = %d after replace", got)
	}
}

func TestCache_DamagedEntry(t *testing.T) {
	cache := newTestCache(t, Config{})
	cache.Put("k", []byte("original bytes"), nil)

	entry := cache.index.Entries["k"]
	if err := os.WriteFile(cache.path(entry), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, found := cache.Get("k"); found {
		t.Error("Damaged entry should be dropped")
	}
	if cache.Stats().Entries != 0 {
		t.Error("Damaged entry still indexed")
	}
}

func TestCache_Eviction(t *testing.T) {
	tests := []struct {
		name     string
		strategy EvictionStrategy
		evicted  string
	}{
		{"lru keeps recently read", LRU, "b"},
		{"fifo drops oldest", FIFO, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newTestCache(t, Config{MaxSize: 100, Strategy: tt.strategy})

			for _, key := range []string{"a", "b"} {
				cache.Put(key, bytes.Repeat([]byte(key), 40), nil)
				time.Sleep(2 * time.Millisecond)
			}
			cache.Get("a")
			time.Sleep(2 * time.Millisecond)
			cache.Put("c", bytes.Repeat([]byte("c"), 40), nil)

			if _, _, found := cache.Get(tt.evicted); found {
				t.Errorf("%s should have been evicted", tt.evicted)
			}
			if _, _, found := cache.Get("c"); !found {
				t.Error("New entry missing")
			}
			if got := cache.Stats().Evictions; got != 1 {
				t.Errorf("Evictions = %d, want 1", got)
			}
		})
	}
}

func TestCache_TooLarge(t *testing.T) {
	cache := newTestCache(t, Config{MaxSize: 10})
	if err := cache.Put("k", make([]byte, 11), nil); err == nil {
		t.Error("Expected an error for an entry larger than the cache")
	}
}

func TestCache_Expiration(t *testing.T) {
	cache := newTestCache(t, Config{MaxAge: 10 * time.Millisecond})
	cache.Put("k", []byte("short lived"), nil)

	time.Sleep(20 * time.Millisecond)

	if _, _, found := cache.Get("k"); found {
		t.Error("Expired entry returned")
	}
}

func TestCache_Persistence(t *testing.T) {
	dir := t.TempDir()

	first := newTestCache(t, Config{Dir: dir})
	first.Put("k", []byte("persisted"), map[string]string{"last-modified": "Mon, 01 Jan 2024 00:00:00 GMT"})
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newTestCache(t, Config{Dir: dir})
	data, meta, found := second.Get("k")
	if !found || string(data) != "persisted" {
		t.Fatalf("Reopened cache lost the entry: %q %v", data, found)
	}
	if meta["last-modified"] == "" {
		t.Error("Meta not persisted")
	}
	if second.Stats().TotalSize != int64(len("persisted")) {
		t.Errorf("TotalSize = %d after reopen", second.Stats().TotalSize)
	}
}

func TestCache_UnreadableIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cache := newTestCache(t, Config{Dir: dir})
	if cache.Stats().Entries != 0 {
		t.Error("Expected an empty cache")
	}
}

func TestCache_SharedFile(t *testing.T) {
	cache := newTestCache(t, Config{})
	data := []byte("same document")
	cache.Put("http://mirror-a/doc.pdf", data, nil)
	cache.Put("http://mirror-b/doc.pdf", data, nil)

	if err := cache.Delete("http://mirror-a/doc.pdf"); err != nil {
		t.Fatal(err)
	}
	if _, _, found := cache.Get("http://mirror-b/doc.pdf"); !found {
		t.Error("Deleting one key removed the file shared with another")
	}
}

func TestCache_Clear(t *testing.T) {
	cache := newTestCache(t, Config{})
	for i := 0; i < 3; i++ {
		cache.Put(fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("doc %d", i)), nil)
	}

	if err := cache.Clear(); err != nil {
		t.Fatal(err)
	}
	if stats := cache.Stats(); stats.Entries != 0 || stats.TotalSize != 0 {
		t.Errorf("Stats after clear = %+v", stats)
	}
	files, _ := os.ReadDir(filepath.Join(cache.dir, "documents"))
	if len(files) != 0 {
		t.Errorf("%d files left after clear", len(files))
	}
}

func TestCache_Concurrent(t *testing.T) {
	cache := newTestCache(t, Config{MaxSize: 1 << 20})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("doc-%d", n)
			for j := 0; j < 10; j++ {
				cache.Put(key, []byte(fmt.Sprintf("%s rev %d", key, j)), nil)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if got := cache.Stats().Entries; got != 10 {
		t.Errorf("Entries = %d, want 10", got)
	}
}
