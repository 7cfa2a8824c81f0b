package identity

import (
	"context"
	"time"
)

// Account identifies a signed-in user within one provider tenant.
type Account struct {
	// HomeAccountID is the provider-scoped unique account ID.
	HomeAccountID string `json:"homeAccountId"`

	// Username is the account's login hint (preferred username or email).
	Username string `json:"username"`

	// Name is the display name, when the provider supplies one.
	Name string `json:"name,omitempty"`

	// TenantID is the provider tenant the account belongs to.
	TenantID string `json:"tenantId,omitempty"`
}

// Result is the outcome of a successful token acquisition.
type Result struct {
	Account      Account   `json:"account"`
	IDToken      string    `json:"idToken,omitempty"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresOn    time.Time `json:"expiresOn"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// TokenRequest parameterizes silent and interactive acquisitions.
type TokenRequest struct {
	// Scopes to request. Empty means the client's configured scopes.
	Scopes []string

	// Account selects the account for silent acquisition. Nil means the
	// active account.
	Account *Account

	// LoginHint steers silent SSO and interactive login toward an
	// existing provider session.
	LoginHint string
}

// Navigator performs a redirect. The side effect is the signal; it never
// returns a value.
type Navigator interface {
	Navigate(url string)
}

// Client is the identity-client abstraction. One instance per context, each
// with its own application client ID. Implementations must be safe for
// concurrent use.
type Client interface {
	// ClientID returns the application client ID this instance is
	// configured with.
	ClientID() string

	// Initialize prepares the client: provider discovery plus restoring
	// any persisted accounts. Must be called before any other operation.
	Initialize(ctx context.Context) error

	// HandleRedirect processes a pending interactive-login completion.
	// Returns (nil, nil) when no redirect is pending.
	HandleRedirect(ctx context.Context) (*Result, error)

	// Accounts returns every account the client knows about.
	Accounts() []Account

	// ActiveAccount returns the currently active account, or nil.
	ActiveAccount() *Account

	// SetActiveAccount selects the account subsequent silent
	// acquisitions default to. Nil clears the selection.
	SetActiveAccount(account *Account)

	// AcquireTokenSilent obtains a token from cache or via refresh,
	// without user interaction. Returns InteractionRequiredError when no
	// silent path can succeed.
	AcquireTokenSilent(ctx context.Context, req TokenRequest) (*Result, error)

	// SsoSilent obtains a token via the existing provider session,
	// without using a locally cached token. Returns
	// InteractionRequiredError when no session matches the hint.
	SsoSilent(ctx context.Context, req TokenRequest) (*Result, error)

	// LoginRedirect starts an interactive login by navigating to the
	// provider's authorization endpoint.
	LoginRedirect(ctx context.Context, req TokenRequest) error

	// Logout clears all accounts and cached credentials, then notifies
	// logout subscribers.
	Logout(ctx context.Context) error

	// OnLogout registers a callback fired after Logout completes and
	// returns its unsubscribe function. Callers must unsubscribe on
	// teardown to avoid leaking listeners across mount cycles.
	OnLogout(fn func(Account)) (unsubscribe func())
}
