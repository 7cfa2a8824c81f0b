package fragments

import (
	"context"
	"time"
)

// Instance is a live, mounted fragment. Its concrete type belongs to the
// runtime that produced it.
type Instance interface{}

// Bootstrap is a fragment's lifecycle capability, recovered from its remote
// entry.
type Bootstrap interface {
	// Mount brings the fragment up inside the named container. It must
	// return a descriptive error when the container does not exist.
	Mount(ctx context.Context, containerID string) (Instance, error)

	// Unmount tears a previously mounted instance down.
	Unmount(ctx context.Context, instance Instance) error
}

// Metadata is the registry's record of a loaded fragment. Created on first
// successful fetch for a scope and kept for the process lifetime; the
// Bootstrap, once captured, is immutable.
type Metadata struct {
	Scope   string
	Version string
	Runtime string

	// Bootstrap is nil in degraded mode, when the fragment exposes only
	// a bare component reference.
	Bootstrap Bootstrap

	// Component is the bare component reference for degraded-mode
	// fragments; the caller renders it without lifecycle management.
	Component string

	LoadedAt time.Time

	// Mount bookkeeping, owned by the Controller.
	instance    Instance
	containerID string
}

// Mounted reports whether a live instance exists, and into which container.
func (m *Metadata) Mounted() (containerID string, mounted bool) {
	return m.containerID, m.instance != nil
}
