package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mosaic-shell/mosaic/pkg/authbus"
	"github.com/mosaic-shell/mosaic/pkg/httputil"
	"github.com/mosaic-shell/mosaic/pkg/identity"
	"github.com/mosaic-shell/mosaic/pkg/session"
)

// redirectStasher is satisfied by identity clients that park an
// authorization-code response for the next HandleRedirect call.
type redirectStasher interface {
	StashRedirect(ctx context.Context, code, state string) error
}

// handleSignIn records the caller's intended destination and replays the
// identity provider's authorization redirect as an HTTP redirect.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if s.client == nil || s.nav == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}
	// On a fresh deployment no synchronizer pass has initialized the
	// client yet; Initialize is idempotent once it has.
	if err := s.client.Initialize(r.Context()); err != nil {
		s.log.WithError(err).Error("Identity client initialization failed")
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "identity provider is unavailable")
		return
	}

	if returnURL := r.URL.Query().Get("returnUrl"); returnURL != "" {
		if err := session.SetReturnURL(r.Context(), s.store, returnURL); err != nil {
			s.log.WithError(err).Warn("Failed to store return URL")
		}
	}

	// The identity client reports its destination through the shared
	// navigator, so the request and its capture must not interleave
	// with another sign-in.
	s.authMu.Lock()
	err := s.client.LoginRedirect(r.Context(), identity.TokenRequest{
		LoginHint: r.URL.Query().Get("loginHint"),
	})
	target := s.nav.Take()
	s.authMu.Unlock()
	if err != nil {
		s.log.WithError(err).Error("Login redirect failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if target == "" {
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "identity provider produced no redirect")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleCallback completes the interactive login, announces it on the
// bus, and sends the browser back to where it was headed.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}
	if err := s.client.Initialize(r.Context()); err != nil {
		s.log.WithError(err).Error("Identity client initialization failed")
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "identity provider is unavailable")
		return
	}
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		s.log.WithFields(logrus.Fields{
			"error":       errCode,
			"description": query.Get("error_description"),
		}).Warn("Authorization callback returned an error")
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "sign-in was rejected by the identity provider")
		return
	}
	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		httputil.WriteBadRequest(w, "missing code or state")
		return
	}

	stasher, ok := s.client.(redirectStasher)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "client does not support redirect completion")
		return
	}
	if err := stasher.StashRedirect(r.Context(), code, state); err != nil {
		s.log.WithError(err).Error("Failed to stash redirect response")
		httputil.WriteInternalError(w, err)
		return
	}
	result, err := s.client.HandleRedirect(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Redirect completion failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if result != nil {
		s.client.SetActiveAccount(&result.Account)
		if s.bus != nil {
			if err := s.bus.PublishSignedIn(r.Context(), authbus.SignedInPayload{
				LoginHint:     result.Account.Username,
				HomeAccountID: result.Account.HomeAccountID,
				ClientID:      s.client.ClientID(),
			}); err != nil {
				s.log.WithError(err).Warn("Failed to announce sign-in")
			} else if s.metrics != nil {
				s.metrics.BusEventsPublished.WithLabelValues(string(authbus.EventSignedIn)).Inc()
			}
		}
	}

	target := s.defaultURL
	if returnURL, ok, err := session.ConsumeReturnURL(r.Context(), s.store); err != nil {
		s.log.WithError(err).Warn("Failed to consume return URL")
	} else if ok {
		target = returnURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleSignOut tears down the local session. The identity client's
// logout hook publishes the signed-out event for the rest of the portal.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}
	if err := s.client.Logout(r.Context()); err != nil {
		s.log.WithError(err).Error("Logout failed")
		httputil.WriteInternalError(w, err)
		return
	}
	http.Redirect(w, r, s.defaultURL, http.StatusFound)
}
