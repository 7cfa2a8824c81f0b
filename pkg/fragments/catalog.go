package fragments

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaic-shell/mosaic/pkg/async"
)

// CatalogEntry binds a UI slot to a deployed fragment.
type CatalogEntry struct {
	Slot     string `json:"slot"`
	Scope    string `json:"scope"`
	EntryURL string `json:"entryUrl"`

	// Preload marks fragments the host may speculatively load before
	// navigation.
	Preload bool `json:"preload,omitempty"`
}

// Catalog is the host's set of known fragments.
type Catalog struct {
	Fragments []CatalogEntry `json:"fragments"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(c.Fragments))
	for i, entry := range c.Fragments {
		if entry.Slot == "" || entry.Scope == "" || entry.EntryURL == "" {
			return nil, fmt.Errorf("catalog entry %d: slot, scope and entryUrl are required", i)
		}
		if _, dup := seen[entry.Slot]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate slot %q", i, entry.Slot)
		}
		seen[entry.Slot] = struct{}{}
	}
	return &c, nil
}

// Apply registers every catalog entry as a slot on the controller.
func (c *Catalog) Apply(controller *Controller) {
	for _, entry := range c.Fragments {
		controller.AddSlot(entry.Slot, entry.Scope, entry.EntryURL)
	}
}

// preloadWorkers bounds concurrent speculative fetches.
const preloadWorkers = 4

// PreloadEntries warms the registry for entries marked preload. A failed
// warm-up is not cached, so the first real activation fetches again.
func (c *Catalog) PreloadEntries(ctx context.Context, registry *Registry, log *logrus.Logger) {
	if log == nil {
		log = logrus.New()
	}
	var entries []CatalogEntry
	for _, entry := range c.Fragments {
		if entry.Preload {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return
	}

	errs := async.Batch(ctx, preloadWorkers, 15*time.Second, entries, func(ctx context.Context, entry CatalogEntry) error {
		_, err := registry.Load(ctx, entry.Scope, entry.EntryURL)
		return err
	})
	for _, err := range errs {
		log.WithError(err).Warn("Fragment preload failed")
	}
}
