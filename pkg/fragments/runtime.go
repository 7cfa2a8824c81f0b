package fragments

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RuntimeEmbed is the built-in runtime: fragments that run in-process and
// only need slot binding.
const RuntimeEmbed = "embed"

// BootstrapFactory builds a Bootstrap from a manifest's exports.
type BootstrapFactory func(manifest *Manifest) (Bootstrap, error)

var (
	runtimesMu sync.RWMutex
	runtimes   = make(map[string]BootstrapFactory)
)

// RegisterRuntime makes a bootstrap factory available under the given
// runtime name. It panics if name is already registered, like a duplicate
// database/sql driver.
func RegisterRuntime(name string, factory BootstrapFactory) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	if factory == nil {
		panic("fragments: RegisterRuntime factory is nil")
	}
	if _, dup := runtimes[name]; dup {
		panic("fragments: RegisterRuntime called twice for runtime " + name)
	}
	runtimes[name] = factory
}

func lookupRuntime(name string) (BootstrapFactory, bool) {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	factory, ok := runtimes[name]
	return factory, ok
}

func init() {
	RegisterRuntime(RuntimeEmbed, newEmbedBootstrap)
}

// EmbedInstance is the live instance produced by the embed runtime.
type EmbedInstance struct {
	Scope       string
	ContainerID string
	MountedAt   time.Time
}

type embedBootstrap struct {
	scope string
}

func newEmbedBootstrap(manifest *Manifest) (Bootstrap, error) {
	return &embedBootstrap{scope: manifest.Scope}, nil
}

func (b *embedBootstrap) Mount(ctx context.Context, containerID string) (Instance, error) {
	if containerID == "" {
		return nil, fmt.Errorf("mounting %q: container does not exist", b.scope)
	}
	return &EmbedInstance{
		Scope:       b.scope,
		ContainerID: containerID,
		MountedAt:   time.Now().UTC(),
	}, nil
}

func (b *embedBootstrap) Unmount(ctx context.Context, instance Instance) error {
	if _, ok := instance.(*EmbedInstance); !ok {
		return fmt.Errorf("unmounting %q: foreign instance %T", b.scope, instance)
	}
	return nil
}
