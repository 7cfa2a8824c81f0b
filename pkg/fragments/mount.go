package fragments

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// SlotPhase is the lifecycle phase of one UI slot.
type SlotPhase int

const (
	SlotIdle SlotPhase = iota
	SlotLoading
	SlotMounted
	SlotFailed
)

func (p SlotPhase) String() string {
	switch p {
	case SlotIdle:
		return "idle"
	case SlotLoading:
		return "loading"
	case SlotMounted:
		return "mounted"
	case SlotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SlotStatus is a point-in-time snapshot of one slot.
type SlotStatus struct {
	ID          string `json:"id"`
	Scope       string `json:"scope"`
	EntryURL    string `json:"entryUrl"`
	ContainerID string `json:"containerId,omitempty"`
	Phase       string `json:"phase"`
	Error       string `json:"error,omitempty"`
}

type slot struct {
	id       string
	scope    string
	entryURL string

	containerID string
	phase       SlotPhase
	err         error

	// epoch invalidates in-flight activations: a result is applied only
	// if the epoch it started under is still current.
	epoch uint64
}

// Controller mounts loaded fragments and drives slot lifecycles.
type Controller struct {
	registry *Registry
	log      *logrus.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

// NewController creates a controller over a registry.
func NewController(registry *Registry, log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.New()
	}
	return &Controller{
		registry: registry,
		log:      log,
		slots:    make(map[string]*slot),
	}
}

// Mount brings up the fragment for scope inside containerID. The scope must
// already be loaded. At most one live instance exists per scope; mounting
// an already mounted scope returns the live instance.
func (c *Controller) Mount(ctx context.Context, scope, containerID string) (Instance, error) {
	meta, ok := c.registry.Get(scope)
	if !ok {
		return nil, &NotLoadedError{Scope: scope}
	}
	if meta.Bootstrap == nil {
		return nil, &NoBootstrapError{Scope: scope}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if meta.instance != nil {
		c.log.WithFields(logrus.Fields{
			"scope":     scope,
			"container": meta.containerID,
		}).Warn("Fragment already mounted, returning live instance")
		return meta.instance, nil
	}

	instance, err := meta.Bootstrap.Mount(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("mounting fragment %q: %w", scope, err)
	}

	meta.instance = instance
	meta.containerID = containerID
	return instance, nil
}

// Unmount tears down the live instance for scope. It is idempotent: a no-op
// when nothing is mounted. The fragment's own unmount failing is logged,
// not propagated, and the bookkeeping is cleared regardless.
func (c *Controller) Unmount(ctx context.Context, scope string) {
	meta, ok := c.registry.Get(scope)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if meta.instance == nil {
		return
	}

	if err := meta.Bootstrap.Unmount(ctx, meta.instance); err != nil {
		c.log.WithError(err).WithField("scope", scope).Warn("Fragment unmount failed")
	}
	meta.instance = nil
	meta.containerID = ""
}

// AddSlot registers a UI slot bound to a fragment scope and entry URL. The
// slot starts Idle. Re-adding an existing slot updates its binding without
// touching a live mount.
func (c *Controller) AddSlot(id, scope, entryURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.slots[id]; ok {
		existing.scope = scope
		existing.entryURL = entryURL
		return
	}
	c.slots[id] = &slot{id: id, scope: scope, entryURL: entryURL, phase: SlotIdle}
}

// Activate drives a slot Idle -> Loading -> {Mounted, Failed}: it loads the
// fragment through the registry and mounts it into containerID. An
// activation superseded by a later Activate or Deactivate discards its
// result instead of applying it.
func (c *Controller) Activate(ctx context.Context, slotID, containerID string) error {
	c.mu.Lock()
	s, ok := c.slots[slotID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown slot %q", slotID)
	}
	s.epoch++
	epoch := s.epoch
	s.phase = SlotLoading
	s.err = nil
	s.containerID = containerID
	scope, entryURL := s.scope, s.entryURL
	c.mu.Unlock()

	meta, err := c.registry.Load(ctx, scope, entryURL)
	if !c.slotCurrent(slotID, epoch) {
		return nil
	}
	if err != nil {
		c.failSlot(slotID, epoch, err)
		return err
	}

	var instance Instance
	if meta.Bootstrap != nil {
		instance, err = c.Mount(ctx, scope, containerID)
		if !c.slotCurrent(slotID, epoch) {
			// Deactivated while mounting; do not leave an orphan.
			if err == nil {
				c.Unmount(ctx, scope)
			}
			return nil
		}
		if err != nil {
			c.failSlot(slotID, epoch, err)
			return err
		}
	}

	c.mu.Lock()
	if s.epoch == epoch {
		s.phase = SlotMounted
	}
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"slot":      slotID,
		"scope":     scope,
		"container": containerID,
		"degraded":  instance == nil,
	}).Info("Slot activated")
	return nil
}

// Deactivate returns the slot to Idle and unmounts its fragment. Any
// in-flight activation is invalidated.
func (c *Controller) Deactivate(ctx context.Context, slotID string) {
	c.mu.Lock()
	s, ok := c.slots[slotID]
	if !ok {
		c.mu.Unlock()
		return
	}
	s.epoch++
	s.phase = SlotIdle
	s.err = nil
	s.containerID = ""
	scope := s.scope
	c.mu.Unlock()

	c.Unmount(ctx, scope)
}

// Retry re-enters Loading for a failed slot.
func (c *Controller) Retry(ctx context.Context, slotID string) error {
	c.mu.Lock()
	s, ok := c.slots[slotID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown slot %q", slotID)
	}
	containerID := s.containerID
	c.mu.Unlock()

	return c.Activate(ctx, slotID, containerID)
}

// Status returns a snapshot of one slot.
func (c *Controller) Status(slotID string) (SlotStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[slotID]
	if !ok {
		return SlotStatus{}, false
	}
	return c.snapshotLocked(s), true
}

// Slots returns snapshots of every slot, sorted by ID.
func (c *Controller) Slots() []SlotStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]SlotStatus, 0, len(c.slots))
	for _, s := range c.slots {
		statuses = append(statuses, c.snapshotLocked(s))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func (c *Controller) snapshotLocked(s *slot) SlotStatus {
	status := SlotStatus{
		ID:       s.id,
		Scope:    s.scope,
		EntryURL: s.entryURL,
		Phase:    s.phase.String(),
	}
	if s.phase == SlotMounted || s.phase == SlotLoading {
		status.ContainerID = s.containerID
	}
	if s.err != nil {
		status.Error = s.err.Error()
	}
	return status
}

func (c *Controller) slotCurrent(slotID string, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[slotID]
	return ok && s.epoch == epoch
}

func (c *Controller) failSlot(slotID string, epoch uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[slotID]
	if !ok || s.epoch != epoch {
		return
	}
	s.phase = SlotFailed
	s.err = err
}
