package fragments

import (
	"encoding/json"
	"fmt"
)

// Well-known export names in a remote entry manifest.
const (
	// ExportBootstrap resolves to the fragment's lifecycle capability.
	ExportBootstrap = "./bootstrap"

	// ExportComponent is the degraded-mode fallback: a bare component
	// reference with no lifecycle management.
	ExportComponent = "./Component"
)

// Manifest is a fragment's remote entry: the machine-readable description
// of what a deployed fragment exposes and which runtime can bootstrap it.
type Manifest struct {
	Scope   string            `json:"scope"`
	Version string            `json:"version"`
	Runtime string            `json:"runtime"`
	Exports map[string]string `json:"exports"`
}

// ParseManifest decodes and validates a remote entry.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding remote entry: %w", err)
	}
	if m.Scope == "" {
		return nil, fmt.Errorf("remote entry missing scope")
	}
	if m.Runtime == "" {
		m.Runtime = RuntimeEmbed
	}
	if len(m.Exports) == 0 {
		return nil, fmt.Errorf("remote entry for %q has no exports", m.Scope)
	}
	return &m, nil
}

// HasBootstrap reports whether the manifest exposes lifecycle exports.
func (m *Manifest) HasBootstrap() bool {
	_, ok := m.Exports[ExportBootstrap]
	return ok
}

// ComponentRef returns the bare component reference, if any.
func (m *Manifest) ComponentRef() (string, bool) {
	ref, ok := m.Exports[ExportComponent]
	return ref, ok
}
