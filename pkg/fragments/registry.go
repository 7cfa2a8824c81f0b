package fragments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Registry fetches and caches fragment code at most once per scope.
type Registry struct {
	fetcher Fetcher
	log     *logrus.Logger

	mu      sync.RWMutex
	entries map[string]*Metadata

	// group shares the in-flight fetch for a scope between concurrent
	// loaders, so "check cache, else fetch" cannot interleave a
	// duplicate fetch.
	group singleflight.Group

	// onLoad, when set, observes each fetch outcome. Metrics hook.
	onLoad func(scope string, duration time.Duration, err error)
}

// SetLoadObserver registers a hook called after every fetch attempt. Set
// before the registry is shared.
func (r *Registry) SetLoadObserver(fn func(scope string, duration time.Duration, err error)) {
	r.onLoad = fn
}

// NewRegistry creates an empty registry.
func NewRegistry(fetcher Fetcher, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		fetcher: fetcher,
		log:     log,
		entries: make(map[string]*Metadata),
	}
}

// Load returns the metadata for scope, fetching the remote entry from
// entryURL the first time. Cached scopes return immediately with no network
// access. Concurrent first loads share one fetch. Failures are not cached;
// a subsequent Load retries.
func (r *Registry) Load(ctx context.Context, scope, entryURL string) (*Metadata, error) {
	if meta, ok := r.Get(scope); ok {
		return meta, nil
	}

	v, err, _ := r.group.Do(scope, func() (interface{}, error) {
		// A loser of the singleflight race may arrive here after the
		// winner already populated the cache.
		if meta, ok := r.Get(scope); ok {
			return meta, nil
		}
		start := time.Now()
		meta, err := r.fetch(ctx, scope, entryURL)
		if r.onLoad != nil {
			r.onLoad(scope, time.Since(start), err)
		}
		return meta, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

// Get returns the cached metadata for scope, if loaded.
func (r *Registry) Get(scope string) (*Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.entries[scope]
	return meta, ok
}

// Scopes returns the loaded scopes, sorted.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scopes := make([]string, 0, len(r.entries))
	for scope := range r.entries {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

func (r *Registry) fetch(ctx context.Context, scope, entryURL string) (*Metadata, error) {
	start := time.Now()

	data, err := r.fetcher.Fetch(ctx, entryURL)
	if err != nil {
		return nil, &RemoteLoadError{Scope: scope, EntryURL: entryURL, Err: err}
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, &RemoteLoadError{Scope: scope, EntryURL: entryURL, Err: err}
	}
	if manifest.Scope != scope {
		return nil, &RemoteLoadError{
			Scope:    scope,
			EntryURL: entryURL,
			Err:      fmt.Errorf("remote entry declares scope %q", manifest.Scope),
		}
	}

	meta := &Metadata{
		Scope:    scope,
		Version:  manifest.Version,
		Runtime:  manifest.Runtime,
		LoadedAt: time.Now().UTC(),
	}

	if manifest.HasBootstrap() {
		factory, ok := lookupRuntime(manifest.Runtime)
		if !ok {
			return nil, &RemoteLoadError{
				Scope:    scope,
				EntryURL: entryURL,
				Err:      fmt.Errorf("unknown runtime %q", manifest.Runtime),
			}
		}
		bootstrap, err := factory(manifest)
		if err != nil {
			return nil, &RemoteLoadError{Scope: scope, EntryURL: entryURL, Err: err}
		}
		meta.Bootstrap = bootstrap
	} else if ref, ok := manifest.ComponentRef(); ok {
		// Degraded mode: the caller renders the bare component without
		// lifecycle management.
		meta.Component = ref
	} else {
		return nil, &RemoteLoadError{
			Scope:    scope,
			EntryURL: entryURL,
			Err:      fmt.Errorf("remote entry exposes neither %s nor %s", ExportBootstrap, ExportComponent),
		}
	}

	r.mu.Lock()
	r.entries[scope] = meta
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"scope":    scope,
		"version":  meta.Version,
		"runtime":  meta.Runtime,
		"duration": time.Since(start).String(),
	}).Info("Fragment loaded")

	return meta, nil
}
