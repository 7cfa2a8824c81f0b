package authsync

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/mosaic-shell/mosaic/pkg/authbus"
	"github.com/mosaic-shell/mosaic/pkg/identity"
	"github.com/mosaic-shell/mosaic/pkg/session"
	"github.com/sirupsen/logrus"
)

// Environment answers the two questions the suppression policy asks.
type Environment interface {
	// Visible reports whether this context is actually being viewed, as
	// opposed to speculatively preloaded.
	Visible() bool

	// Embedded reports whether this context runs under the host shell,
	// as opposed to detached standalone development.
	Embedded() bool
}

// StaticEnvironment is a fixed Environment.
type StaticEnvironment struct {
	IsVisible  bool
	IsEmbedded bool
}

func (e StaticEnvironment) Visible() bool  { return e.IsVisible }
func (e StaticEnvironment) Embedded() bool { return e.IsEmbedded }

// Navigator performs a redirect; the side effect is the signal.
type Navigator interface {
	Navigate(url string)
}

// Config assembles a synchronizer's collaborators.
type Config struct {
	// AppName identifies this context on the bus.
	AppName string

	Mode      Mode
	RouteType RouteType

	// ClientFactory constructs the identity client on demand. It is not
	// called at all when the quick check shows initialization cannot
	// succeed.
	ClientFactory func(ctx context.Context) (identity.Client, error)

	Store session.Store
	Bus   *authbus.Bus
	Env   Environment
	Nav   Navigator

	// HostSignInURL is the host shell's interactive sign-in location.
	HostSignInURL string

	// CurrentLocation returns the location to encode as the return URL
	// when redirecting to sign-in.
	CurrentLocation func() string

	// Scopes requested on token acquisitions. Empty means the client's
	// configured scopes.
	Scopes []string

	// OnTransition, when set, observes phase changes. Metrics hook.
	OnTransition func(to Phase)

	// OnRedirectSuppressed, when set, observes sign-in redirects the
	// policy withheld. Metrics hook.
	OnRedirectSuppressed func(reason string)

	Logger *logrus.Logger
}

// Synchronizer drives one identity client and keeps its session consistent
// with the rest of the portal via the bus. Create with New, drive with Run,
// release with Close on unmount.
type Synchronizer struct {
	cfg Config
	log *logrus.Logger

	// opMu serializes transitions: Run and bus-event handling never
	// interleave, so no transition begins before the previous async
	// step resolved.
	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	client     identity.Client
	lastResult *identity.Result
	pending    []authbus.Event
	attempt    uint64

	closed      atomic.Bool
	unsubBus    func()
	unsubLogout func()

	terminal     chan struct{}
	terminalOnce sync.Once
}

// New creates a synchronizer and immediately subscribes it to the bus, so
// events arriving before Run reaches a terminal phase are queued rather
// than lost.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.AppName == "" {
		return nil, fmt.Errorf("authsync: AppName is required")
	}
	if cfg.ClientFactory == nil {
		return nil, fmt.Errorf("authsync: ClientFactory is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("authsync: Store is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("authsync: Bus is required")
	}
	if cfg.Env == nil {
		cfg.Env = StaticEnvironment{IsVisible: true, IsEmbedded: true}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRemote
	}
	if cfg.RouteType == "" {
		cfg.RouteType = RouteProtected
	}
	if cfg.CurrentLocation == nil {
		cfg.CurrentLocation = func() string { return "/" }
	}

	s := &Synchronizer{
		cfg: cfg,
		log: cfg.Logger,
		state: State{
			Phase:     PhaseUninitialized,
			RouteType: cfg.RouteType,
			Mode:      cfg.Mode,
		},
		terminal: make(chan struct{}),
	}
	s.unsubBus = cfg.Bus.Subscribe(s.onBusEvent)
	return s, nil
}

// Run drives the machine to a terminal phase. Transitions are strictly
// sequential; Run returns once the phase is Ready or Error.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.dispatch(ctx, Started{})

	if phase := s.Phase(); !phase.Terminal() {
		return fmt.Errorf("authsync: machine stalled in phase %s", phase)
	}
	return nil
}

// Phase returns the current phase.
func (s *Synchronizer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Phase
}

// State returns a copy of the machine state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CanRender reports whether protected children may render.
func (s *Synchronizer) CanRender() bool {
	return s.State().CanRender()
}

// Client returns the identity client, or nil when the quick check skipped
// constructing one.
func (s *Synchronizer) Client() identity.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Done is closed when the machine first reaches a terminal phase.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.terminal
}

// Close marks the synchronizer irrelevant: in-flight effects discard their
// results, and bus/logout subscriptions are released. Call on unmount.
func (s *Synchronizer) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.unsubBus != nil {
		s.unsubBus()
	}
	s.mu.Lock()
	unsubLogout := s.unsubLogout
	s.mu.Unlock()
	if unsubLogout != nil {
		unsubLogout()
	}
}

// dispatch applies one event and runs the resulting effects. Callers must
// hold opMu.
func (s *Synchronizer) dispatch(ctx context.Context, ev Event) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	before := s.state.Phase
	next, effects := Transition(s.state, ev)
	s.state = next
	s.mu.Unlock()

	if next.Phase != before {
		s.log.WithFields(logrus.Fields{
			"app":  s.cfg.AppName,
			"from": before.String(),
			"to":   next.Phase.String(),
		}).Debug("Auth synchronizer transition")
		if s.cfg.OnTransition != nil {
			s.cfg.OnTransition(next.Phase)
		}
	}

	if fail, ok := ev.(SsoFailed); ok && s.cfg.OnRedirectSuppressed != nil {
		if fail.InteractionRequired && !hasSignInRedirect(effects) {
			s.cfg.OnRedirectSuppressed(suppressReason(fail))
		}
	}

	for _, fx := range effects {
		s.execute(ctx, fx)
	}

	if next.Phase.Terminal() {
		s.markTerminal(ctx)
	}
}

func hasSignInRedirect(effects []Effect) bool {
	for _, fx := range effects {
		if _, ok := fx.(PerformSignInRedirect); ok {
			return true
		}
	}
	return false
}

func suppressReason(ev SsoFailed) string {
	switch {
	case !ev.Visible:
		return "hidden"
	case !ev.Embedded:
		return "standalone"
	default:
		return "none"
	}
}

func (s *Synchronizer) execute(ctx context.Context, fx Effect) {
	if s.closed.Load() {
		return
	}

	switch fx := fx.(type) {
	case PeekCredentials:
		found, err := session.HasCredentialKey(ctx, s.cfg.Store)
		if err != nil {
			// An unreadable store is indistinguishable from a
			// present credential; take the full initialization
			// path.
			s.log.WithError(err).Warn("Credential peek failed, initializing anyway")
			found = true
		}
		s.dispatch(ctx, CredentialPeeked{Found: found})

	case InitializeClient:
		s.executeInitialize(ctx)

	case ActivateAndAnnounce:
		s.executeActivateAndAnnounce(ctx)

	case NavigateReturnURL:
		target, ok, err := session.ConsumeReturnURL(ctx, s.cfg.Store)
		if err != nil {
			s.log.WithError(err).Warn("Failed to consume return URL")
			return
		}
		if ok && s.cfg.Nav != nil {
			s.cfg.Nav.Navigate(target)
		}

	case AcquireCachedToken:
		client := s.Client()
		if client == nil {
			s.dispatch(ctx, CachedTokenFailed{})
			return
		}
		id := s.beginAttempt()
		_, err := client.AcquireTokenSilent(ctx, identity.TokenRequest{Scopes: s.cfg.Scopes})
		if !s.attemptCurrent(id) {
			return
		}
		if err != nil {
			s.dispatch(ctx, CachedTokenFailed{})
			return
		}
		s.dispatch(ctx, SilentSucceeded{})

	case AttemptSso:
		s.executeAttemptSso(ctx, fx)

	case AnnounceTokenAcquired:
		client := s.Client()
		if client == nil {
			return
		}
		err := s.cfg.Bus.PublishTokenAcquired(ctx, authbus.TokenAcquiredPayload{
			ClientID: client.ClientID(),
			Scopes:   s.cfg.Scopes,
		})
		if err != nil {
			s.log.WithError(err).Warn("Failed to publish token-acquired")
		}

	case PerformSignInRedirect:
		s.executeSignInRedirect(ctx)

	case PurgeLocalSession:
		s.executePurge(ctx)
	}
}

func (s *Synchronizer) executeInitialize(ctx context.Context) {
	client, err := s.cfg.ClientFactory(ctx)
	if err == nil {
		err = client.Initialize(ctx)
	}
	if err != nil {
		s.log.WithError(err).Error("Identity client initialization failed")
		s.publishInitError(ctx, err)
		s.dispatch(ctx, ClientInitFailed{})
		return
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	// Logout anywhere ends the shared session; announce it so every
	// other context can drop its local state.
	unsub := client.OnLogout(func(account identity.Account) {
		if s.closed.Load() {
			return
		}
		if err := s.cfg.Bus.PublishSignedOut(context.Background()); err != nil {
			s.log.WithError(err).Warn("Failed to publish signed-out")
		}
	})
	s.mu.Lock()
	s.unsubLogout = unsub
	s.mu.Unlock()

	redirectCompleted := false
	if s.cfg.Mode == ModeHost {
		result, err := client.HandleRedirect(ctx)
		if err != nil {
			s.log.WithError(err).Error("Redirect completion failed")
			s.publishInitError(ctx, err)
			s.dispatch(ctx, ClientInitFailed{})
			return
		}
		if result != nil {
			redirectCompleted = true
			s.mu.Lock()
			s.lastResult = result
			s.mu.Unlock()
		}
	}

	hasAccount := len(client.Accounts()) > 0
	s.dispatch(ctx, ClientInitialized{
		RedirectCompleted: redirectCompleted,
		HasAccount:        hasAccount,
	})
}

func (s *Synchronizer) executeActivateAndAnnounce(ctx context.Context) {
	client := s.Client()
	if client == nil {
		return
	}

	s.mu.Lock()
	result := s.lastResult
	s.mu.Unlock()

	var account identity.Account
	if result != nil {
		account = result.Account
	} else {
		accounts := client.Accounts()
		if len(accounts) == 0 {
			return
		}
		account = accounts[0]
	}

	client.SetActiveAccount(&account)

	err := s.cfg.Bus.PublishSignedIn(ctx, authbus.SignedInPayload{
		LoginHint:     account.Username,
		HomeAccountID: account.HomeAccountID,
		ClientID:      client.ClientID(),
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to publish signed-in")
	}
}

func (s *Synchronizer) executeAttemptSso(ctx context.Context, fx AttemptSso) {
	client := s.Client()
	if client == nil {
		s.dispatch(ctx, s.ssoFailure(true))
		return
	}

	hint := fx.Hint
	if fx.UseOwnHint && hint == "" {
		if active := client.ActiveAccount(); active != nil {
			hint = active.Username
		}
	}
	if hint == "" && !fx.UseOwnHint {
		// An early signed-in is the common case when a fragment mounts
		// after the host already authenticated; its hint beats an
		// unhinted attempt.
		if queued, ok := s.takeQueuedSignedInHint(); ok {
			hint = queued
		}
	}

	id := s.beginAttempt()
	_, err := client.SsoSilent(ctx, identity.TokenRequest{
		LoginHint: hint,
		Scopes:    s.cfg.Scopes,
	})
	if !s.attemptCurrent(id) {
		// A newer signed-in hint superseded this attempt; its result
		// no longer matters (last event wins).
		return
	}
	if err != nil {
		s.dispatch(ctx, s.ssoFailure(identity.IsInteractionRequired(err)))
		return
	}
	s.dispatch(ctx, SilentSucceeded{})
}

func (s *Synchronizer) ssoFailure(interactionRequired bool) SsoFailed {
	return SsoFailed{
		InteractionRequired: interactionRequired,
		Visible:             s.cfg.Env.Visible(),
		Embedded:            s.cfg.Env.Embedded(),
	}
}

func (s *Synchronizer) executeSignInRedirect(ctx context.Context) {
	location := s.cfg.CurrentLocation()
	if err := session.SetReturnURL(ctx, s.cfg.Store, location); err != nil {
		s.log.WithError(err).Warn("Failed to store return URL")
	}
	if s.cfg.Nav == nil {
		return
	}
	s.cfg.Nav.Navigate(s.cfg.HostSignInURL + "?returnUrl=" + url.QueryEscape(location))
}

func (s *Synchronizer) executePurge(ctx context.Context) {
	client := s.Client()
	if client == nil {
		return
	}
	client.SetActiveAccount(nil)
	if err := session.ClearCredentials(ctx, s.cfg.Store, client.ClientID()); err != nil {
		s.log.WithError(err).Warn("Failed to purge local credentials")
	}
}

func (s *Synchronizer) publishInitError(ctx context.Context, initErr error) {
	err := s.cfg.Bus.PublishError(ctx, authbus.ErrorPayload{
		Code:    "auth_initialization_failed",
		Message: initErr.Error(),
	})
	if err != nil {
		s.log.WithError(err).Debug("Failed to publish error event")
	}
}

// onBusEvent receives validated bus events. Before the machine is terminal
// the event is queued (signed-in collapses to the newest, since a receiver
// only ever acts on the last hint); afterward it is handled inline.
func (s *Synchronizer) onBusEvent(ev authbus.Event) {
	if s.closed.Load() {
		return
	}
	switch ev.Type {
	case authbus.EventSignedIn, authbus.EventSignedOut:
	default:
		return
	}

	s.mu.Lock()
	if !s.state.Phase.Terminal() {
		if ev.Type == authbus.EventSignedIn {
			// Last-event-wins: drop any older queued signed-in.
			filtered := s.pending[:0]
			for _, p := range s.pending {
				if p.Type != authbus.EventSignedIn {
					filtered = append(filtered, p)
				}
			}
			s.pending = filtered
		}
		s.pending = append(s.pending, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Handle off the delivery goroutine: a transport may deliver
	// synchronously from another synchronizer's transition, and taking
	// opMu there could deadlock two contexts publishing at each other.
	go func() {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		if s.closed.Load() {
			return
		}
		s.handleBusEvent(context.Background(), ev)
	}()
}

// handleBusEvent feeds a bus event into the machine. Callers must hold
// opMu.
func (s *Synchronizer) handleBusEvent(ctx context.Context, ev authbus.Event) {
	switch ev.Type {
	case authbus.EventSignedIn:
		payload, err := ev.SignedIn()
		if err != nil {
			return
		}
		s.dispatch(ctx, SignedInReceived{LoginHint: payload.LoginHint})
	case authbus.EventSignedOut:
		s.dispatch(ctx, SignedOutReceived{})
	}
}

// markTerminal closes Done and drains events queued during initialization.
// Callers must hold opMu.
func (s *Synchronizer) markTerminal(ctx context.Context) {
	s.terminalOnce.Do(func() {
		close(s.terminal)
	})

	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range queued {
		s.handleBusEvent(ctx, ev)
	}
}

// takeQueuedSignedInHint consumes the newest queued signed-in event, if
// any, and returns its login hint.
func (s *Synchronizer) takeQueuedSignedInHint() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].Type != authbus.EventSignedIn {
			continue
		}
		payload, err := s.pending[i].SignedIn()
		if err != nil {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		return payload.LoginHint, true
	}
	return "", false
}

func (s *Synchronizer) beginAttempt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt++
	return s.attempt
}

func (s *Synchronizer) attemptCurrent(id uint64) bool {
	if s.closed.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt == id
}
