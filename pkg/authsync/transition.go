package authsync

// Event is an input to the transition function. Events describe completed
// facts (an async step resolved, a bus message arrived); they carry no
// behavior.
type Event interface {
	isEvent()
}

// Started begins the machine.
type Started struct{}

// CredentialPeeked reports the QuickChecking storage peek.
type CredentialPeeked struct {
	Found bool
}

// ClientInitialized reports a completed identity-client initialization.
type ClientInitialized struct {
	// RedirectCompleted is true when a pending interactive login was
	// detected and completed.
	RedirectCompleted bool

	// HasAccount is true when the client already knows at least one
	// account.
	HasAccount bool
}

// ClientInitFailed reports that initialization or redirect handling threw.
type ClientInitFailed struct{}

// SilentSucceeded reports a successful silent acquisition (cached token or
// silent SSO).
type SilentSucceeded struct{}

// CachedTokenFailed reports that silent acquisition from the local cache
// failed; the chain falls through to silent SSO with the account's own
// hint.
type CachedTokenFailed struct{}

// SsoFailed reports that silent SSO failed. Visible and Embedded are the
// environment sampled at failure time; the policy table decides the rest.
type SsoFailed struct {
	InteractionRequired bool
	Visible             bool
	Embedded            bool
}

// SignedInReceived is a bus signed-in event, delivered once the machine is
// in a terminal phase (earlier arrivals are queued by the interpreter).
type SignedInReceived struct {
	LoginHint string
}

// SignedOutReceived is a bus signed-out event.
type SignedOutReceived struct{}

func (Started) isEvent()           {}
func (CredentialPeeked) isEvent()  {}
func (ClientInitialized) isEvent() {}
func (ClientInitFailed) isEvent()  {}
func (SilentSucceeded) isEvent()   {}
func (CachedTokenFailed) isEvent() {}
func (SsoFailed) isEvent()         {}
func (SignedInReceived) isEvent()  {}
func (SignedOutReceived) isEvent() {}

// Effect is an instruction to the interpreter. Effects are data; the
// transition function never performs I/O.
type Effect interface {
	isEffect()
}

// PeekCredentials checks durable storage for any cached credential key.
type PeekCredentials struct{}

// InitializeClient constructs and initializes the identity client, then
// (host mode) processes any pending redirect completion.
type InitializeClient struct{}

// ActivateAndAnnounce sets the detected account active and publishes
// signed-in with its login hint.
type ActivateAndAnnounce struct{}

// NavigateReturnURL consumes a pending return URL and navigates there.
// A no-op when none is pending.
type NavigateReturnURL struct{}

// AcquireCachedToken attempts silent token acquisition for the cached
// account.
type AcquireCachedToken struct{}

// AttemptSso attempts silent SSO. An empty hint with UseOwnHint set means
// the active account's own hint; both empty means unhinted.
type AttemptSso struct {
	Hint       string
	UseOwnHint bool
}

// AnnounceTokenAcquired publishes token-acquired on the bus.
type AnnounceTokenAcquired struct{}

// PerformSignInRedirect records the current location as the return URL and
// navigates to the host's sign-in.
type PerformSignInRedirect struct{}

// PurgeLocalSession clears the active account and this context's durable
// credentials. Never navigates.
type PurgeLocalSession struct{}

func (PeekCredentials) isEffect()       {}
func (InitializeClient) isEffect()      {}
func (ActivateAndAnnounce) isEffect()   {}
func (NavigateReturnURL) isEffect()     {}
func (AcquireCachedToken) isEffect()    {}
func (AttemptSso) isEffect()            {}
func (AnnounceTokenAcquired) isEffect() {}
func (PerformSignInRedirect) isEffect() {}
func (PurgeLocalSession) isEffect()     {}

// Transition is the pure state machine. Given the current state and an
// event it returns the next state and the effects to run, in order. All
// mode- and visibility-dependent branching lives here and in the policy
// table, nowhere else.
func Transition(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case Started:
		if s.RouteType == RouteProtected {
			s.Phase = PhaseQuickChecking
			return s, []Effect{PeekCredentials{}}
		}
		s.Phase = PhaseInitializing
		return s, []Effect{InitializeClient{}}

	case CredentialPeeked:
		if s.Phase != PhaseQuickChecking {
			return s, nil
		}
		if !ev.Found {
			// Initialization is certain to come up empty; go Ready
			// now so the route guard redirects immediately.
			s.Phase = PhaseReady
			return s, nil
		}
		s.Phase = PhaseInitializing
		return s, []Effect{InitializeClient{}}

	case ClientInitFailed:
		s.Phase = PhaseError
		return s, nil

	case ClientInitialized:
		if s.Phase != PhaseInitializing {
			return s, nil
		}
		if s.Mode == ModeHost {
			return transitionHostInitialized(s, ev)
		}
		return transitionRemoteInitialized(s, ev)

	case SilentSucceeded:
		s.Phase = PhaseReady
		return s, []Effect{AnnounceTokenAcquired{}}

	case CachedTokenFailed:
		// Fall through to silent SSO using the account's own hint.
		return s, []Effect{AttemptSso{UseOwnHint: true}}

	case SsoFailed:
		s.Phase = PhaseReady
		// Only an interaction-required failure means the user must sign
		// in; transient faults never push a working fragment into a
		// full-page redirect.
		if !ev.InteractionRequired {
			return s, nil
		}
		action := ResolveFallback(Condition{Visible: ev.Visible, Embedded: ev.Embedded})
		if action == RedirectToSignIn {
			return s, []Effect{PerformSignInRedirect{}}
		}
		return s, nil

	case SignedInReceived:
		if !s.Phase.Terminal() || s.Mode != ModeRemote {
			return s, nil
		}
		return s, []Effect{AttemptSso{Hint: ev.LoginHint}}

	case SignedOutReceived:
		if s.Mode != ModeRemote {
			return s, nil
		}
		// Clear locally; the next protected navigation's route guard
		// performs any redirect, so in-flight preloads are not
		// aborted mid-flight.
		return s, []Effect{PurgeLocalSession{}}
	}

	return s, nil
}

func transitionHostInitialized(s State, ev ClientInitialized) (State, []Effect) {
	s.Phase = PhaseReady
	if ev.RedirectCompleted {
		// Announce the fresh login, then honor a pending return URL.
		return s, []Effect{ActivateAndAnnounce{}, NavigateReturnURL{}}
	}
	if ev.HasAccount {
		return s, []Effect{ActivateAndAnnounce{}}
	}
	// No silent SSO from the host: it is the one party allowed to go
	// interactive, and a hidden-iframe attempt only risks visible
	// flicker.
	return s, nil
}

func transitionRemoteInitialized(s State, ev ClientInitialized) (State, []Effect) {
	if ev.HasAccount {
		return s, []Effect{AcquireCachedToken{}}
	}
	return s, []Effect{AttemptSso{}}
}
