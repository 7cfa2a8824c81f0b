package fragments

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

const validCatalog = `{
  "fragments": [
    {"slot": "main", "scope": "billing", "entryUrl": "https://cdn.example.com/billing/entry.json"},
    {"slot": "side", "scope": "reports", "entryUrl": "https://cdn.example.com/reports/entry.json", "preload": true}
  ]
}`

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, validCatalog)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.Fragments, 2)
	assert.Equal(t, "billing", catalog.Fragments[0].Scope)
	assert.True(t, catalog.Fragments[1].Preload)
}

func TestLoadCatalogRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not json", "{", "decoding"},
		{"missing fields", `{"fragments":[{"slot":"main"}]}`, "required"},
		{"duplicate slot", `{"fragments":[
			{"slot":"main","scope":"a","entryUrl":"https://a"},
			{"slot":"main","scope":"b","entryUrl":"https://b"}]}`, "duplicate slot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.json")
			writeCatalog(t, path, tt.content)

			_, err := LoadCatalog(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCatalogApplyRegistersSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, validCatalog)
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	controller := NewController(NewRegistry(newCountingFetcher(), quietLogger()), quietLogger())
	catalog.Apply(controller)

	slots := controller.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, "main", slots[0].ID)
	assert.Equal(t, "idle", slots[0].Phase)
	assert.Equal(t, "side", slots[1].ID)
}

func TestCatalogPreloadWarmsOnlyMarkedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, validCatalog)
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	fetcher := newCountingFetcher()
	fetcher.serve("https://cdn.example.com/reports/entry.json", Manifest{
		Scope:   "reports",
		Version: "1.0.0",
		Exports: map[string]string{ExportBootstrap: "./bootstrap"},
	})
	registry := NewRegistry(fetcher, quietLogger())

	catalog.PreloadEntries(context.Background(), registry, quietLogger())

	_, warm := registry.Get("reports")
	assert.True(t, warm)
	_, cold := registry.Get("billing")
	assert.False(t, cold)
	assert.Equal(t, 1, fetcher.callCount("https://cdn.example.com/reports/entry.json"))
}

func TestCatalogPreloadFailureIsNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, validCatalog)
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	fetcher := newCountingFetcher()
	fetcher.fail("https://cdn.example.com/reports/entry.json", errors.New("origin unavailable"))
	registry := NewRegistry(fetcher, quietLogger())

	catalog.PreloadEntries(context.Background(), registry, quietLogger())

	_, warm := registry.Get("reports")
	assert.False(t, warm)
}

func TestCatalogWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	writeCatalog(t, path, validCatalog)

	var mu sync.Mutex
	var reloaded []*Catalog
	watcher, err := WatchCatalog(path, quietLogger(), func(c *Catalog) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = append(reloaded, c)
	})
	require.NoError(t, err)
	defer watcher.Close()

	writeCatalog(t, path, `{"fragments":[
		{"slot":"main","scope":"billing","entryUrl":"https://cdn.example.com/billing/v2/entry.json"}]}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	last := reloaded[len(reloaded)-1]
	mu.Unlock()
	require.Len(t, last.Fragments, 1)
	assert.Equal(t, "https://cdn.example.com/billing/v2/entry.json", last.Fragments[0].EntryURL)
}

func TestCatalogWatcherKeepsPreviousOnInvalidWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	writeCatalog(t, path, validCatalog)

	var mu sync.Mutex
	var reloads int
	watcher, err := WatchCatalog(path, quietLogger(), func(*Catalog) {
		mu.Lock()
		defer mu.Unlock()
		reloads++
	})
	require.NoError(t, err)
	defer watcher.Close()

	writeCatalog(t, path, "{ not json")

	// Give the watcher time to see the event; the broken write must not
	// reach the callback.
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, reloads)
}
