package routeguard

import (
	"net/url"
	"strings"

	"github.com/mosaic-shell/mosaic/pkg/authsync"
	"github.com/mosaic-shell/mosaic/pkg/identity"
	"github.com/sirupsen/logrus"
)

// Location describes the navigation being guarded.
type Location struct {
	// Pathname is the path component of the attempted location.
	Pathname string

	// RawQuery is the query string without the leading "?".
	RawQuery string

	// Preload marks a speculative prefetch rather than a user-initiated
	// navigation.
	Preload bool
}

// String reassembles the location for use as a return URL.
func (l Location) String() string {
	if l.RawQuery == "" {
		return l.Pathname
	}
	return l.Pathname + "?" + l.RawQuery
}

// Action is the guard's verdict.
type Action int

const (
	// Allow lets the navigation proceed.
	Allow Action = iota

	// Redirect sends the navigation to sign-in instead.
	Redirect
)

// Decision is the outcome of guarding one navigation.
type Decision struct {
	Action Action

	// Target is the sign-in URL, with returnUrl encoded. Set only when
	// Action is Redirect.
	Target string
}

// AccountSource exposes the known accounts of the relevant identity client.
// identity.Client satisfies it.
type AccountSource interface {
	Accounts() []identity.Account
}

// Config assembles a guard.
type Config struct {
	// PublicPrefixes are path prefixes that short-circuit the guard
	// unconditionally.
	PublicPrefixes []string

	// HostSignInURL is the redirect target when running embedded under
	// the host shell.
	HostSignInURL string

	// LocalSignInURL is the redirect target when running standalone.
	LocalSignInURL string

	// Accounts is consulted on protected routes; an empty list means
	// unauthenticated. A nil source is treated as unauthenticated.
	Accounts AccountSource

	Env    authsync.Environment
	Nav    authsync.Navigator
	Logger *logrus.Logger
}

// Guard gates navigations against the current authentication state.
type Guard struct {
	cfg Config
	log *logrus.Logger
}

// New creates a guard.
func New(cfg Config) *Guard {
	if cfg.Env == nil {
		cfg.Env = authsync.StaticEnvironment{IsVisible: true, IsEmbedded: true}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Guard{cfg: cfg, log: cfg.Logger}
}

// Decide computes the verdict for a navigation without side effects.
func (g *Guard) Decide(loc Location) Decision {
	for _, prefix := range g.cfg.PublicPrefixes {
		if strings.HasPrefix(loc.Pathname, prefix) {
			return Decision{Action: Allow}
		}
	}

	if g.authenticated() {
		return Decision{Action: Allow}
	}

	if loc.Preload {
		// Defer to the moment of actual navigation.
		return Decision{Action: Allow}
	}

	target := g.cfg.LocalSignInURL
	if g.cfg.Env.Embedded() {
		target = g.cfg.HostSignInURL
	}
	return Decision{
		Action: Redirect,
		Target: target + "?returnUrl=" + url.QueryEscape(loc.String()),
	}
}

// Check applies the verdict: it returns normally to allow the navigation or
// performs the redirect through the Navigator. The side effect is the
// signal.
func (g *Guard) Check(loc Location) {
	decision := g.Decide(loc)
	if decision.Action != Redirect {
		return
	}

	g.log.WithFields(logrus.Fields{
		"path":   loc.Pathname,
		"target": decision.Target,
	}).Info("Unauthenticated protected navigation, redirecting to sign-in")

	if g.cfg.Nav != nil {
		g.cfg.Nav.Navigate(decision.Target)
	}
}

func (g *Guard) authenticated() bool {
	if g.cfg.Accounts == nil {
		return false
	}
	return len(g.cfg.Accounts.Accounts()) > 0
}
