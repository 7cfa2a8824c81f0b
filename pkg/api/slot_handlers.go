package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mosaic-shell/mosaic/pkg/async"
	"github.com/mosaic-shell/mosaic/pkg/httputil"
)

// activateTimeout bounds a background activation, including the fragment
// entry fetch.
const activateTimeout = 30 * time.Second

type activateRequest struct {
	ContainerID string `json:"containerId"`
}

var slotPhaseNames = []string{"idle", "loading", "mounted", "failed"}

func (s *Server) recordSlotPhases() {
	if s.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, status := range s.controller.Slots() {
		counts[status.Phase]++
	}
	for _, phase := range slotPhaseNames {
		s.metrics.SlotsByPhase.WithLabelValues(phase).Set(float64(counts[phase]))
	}
}

func (s *Server) recordMount(scope, operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.FragmentMountsTotal.WithLabelValues(scope, operation, outcome).Inc()
	s.recordSlotPhases()
}

type fragmentInfo struct {
	Scope     string `json:"scope"`
	Version   string `json:"version"`
	Runtime   string `json:"runtime"`
	Component string `json:"component,omitempty"`
	Degraded  bool   `json:"degraded"`
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"slots": s.controller.Slots(),
	})
}

func (s *Server) handleSlotStatus(w http.ResponseWriter, r *http.Request) {
	slotID, err := httputil.PathVar(r, "slot")
	if err != nil {
		httputil.WriteBadRequest(w, "missing slot ID")
		return
	}
	status, ok := s.controller.Status(slotID)
	if !ok {
		httputil.WriteNotFound(w, "slot not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// handleActivateSlot kicks off the activation and answers 202; clients
// poll the slot status for the outcome. Activation failures land in the
// slot's failed phase rather than in this response.
func (s *Server) handleActivateSlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := httputil.PathVar(r, "slot")
	if err != nil {
		httputil.WriteBadRequest(w, "missing slot ID")
		return
	}
	var req activateRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.ContainerID == "" {
		httputil.WriteBadRequest(w, "containerId is required")
		return
	}
	status, ok := s.controller.Status(slotID)
	if !ok {
		httputil.WriteNotFound(w, "slot not found")
		return
	}

	scope := status.Scope
	containerID := req.ContainerID
	// The activation outlives this request; a canceled request context
	// must not abort the fetch after the 202 is written.
	async.SafeGo(context.WithoutCancel(r.Context()), s.log, activateTimeout, "slot activation", func(ctx context.Context) error {
		err := s.controller.Activate(ctx, slotID, containerID)
		s.recordMount(scope, "mount", err)
		return err
	})

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"slot":   slotID,
		"status": "activating",
	})
}

func (s *Server) handleDeactivateSlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := httputil.PathVar(r, "slot")
	if err != nil {
		httputil.WriteBadRequest(w, "missing slot ID")
		return
	}
	before, ok := s.controller.Status(slotID)
	if !ok {
		httputil.WriteNotFound(w, "slot not found")
		return
	}
	s.controller.Deactivate(r.Context(), slotID)
	s.recordMount(before.Scope, "unmount", nil)

	status, _ := s.controller.Status(slotID)
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) handleRetrySlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := httputil.PathVar(r, "slot")
	if err != nil {
		httputil.WriteBadRequest(w, "missing slot ID")
		return
	}
	status, ok := s.controller.Status(slotID)
	if !ok {
		httputil.WriteNotFound(w, "slot not found")
		return
	}
	if status.Phase != "failed" {
		httputil.WriteBadRequest(w, "slot is not in a failed state")
		return
	}

	scope := status.Scope
	async.SafeGo(context.WithoutCancel(r.Context()), s.log, activateTimeout, "slot retry", func(ctx context.Context) error {
		err := s.controller.Retry(ctx, slotID)
		s.recordMount(scope, "mount", err)
		return err
	})

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"slot":   slotID,
		"status": "retrying",
	})
}

func (s *Server) handleListFragments(w http.ResponseWriter, r *http.Request) {
	scopes := s.registry.Scopes()
	infos := make([]fragmentInfo, 0, len(scopes))
	for _, scope := range scopes {
		meta, ok := s.registry.Get(scope)
		if !ok {
			continue
		}
		infos = append(infos, fragmentInfo{
			Scope:     meta.Scope,
			Version:   meta.Version,
			Runtime:   meta.Runtime,
			Component: meta.Component,
			Degraded:  meta.Bootstrap == nil,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fragments": infos,
	})
}

// handleFragmentPage serves the shell document for a mounted fragment
// route. It sits behind the route guard, so an unauthenticated browser
// never reaches it.
func (s *Server) handleFragmentPage(w http.ResponseWriter, r *http.Request) {
	slotID, err := httputil.PathVar(r, "slot")
	if err != nil {
		httputil.WriteBadRequest(w, "missing slot ID")
		return
	}
	status, ok := s.controller.Status(slotID)
	if !ok {
		httputil.WriteNotFound(w, "slot not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
