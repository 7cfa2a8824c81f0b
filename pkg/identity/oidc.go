package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/mosaic-shell/mosaic/pkg/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// OIDCConfig configures one OIDC-backed identity client.
type OIDCConfig struct {
	ClientID     string
	ClientSecret string
	IssuerURL    string
	RedirectURL  string
	Scopes       []string

	// TokenTTL bounds the in-memory token cache layer.
	TokenTTL time.Duration
}

// pendingRedirect is the transient record a callback handler stashes for
// HandleRedirect to consume. It lives outside the credential namespace so
// the quick-check peek does not mistake it for a cached credential.
type pendingRedirect struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func pendingRedirectKey(clientID string) string {
	return "mosaic.redirect." + clientID
}

func authStateKey(clientID string) string {
	return "mosaic.authstate." + clientID
}

// OIDCClient implements Client over OpenID Connect authorization-code flow
// with refresh-token based silent acquisition and a hint-keyed backplane
// for silent SSO.
type OIDCClient struct {
	cfg       OIDCConfig
	store     session.Store
	backplane Backplane
	nav       Navigator
	tokens    *TokenCache
	log       *logrus.Logger

	mu          sync.Mutex
	provider    *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	oauth       *oauth2.Config
	accounts    map[string]Account
	activeID    string
	logoutSubs  map[int]func(Account)
	nextSubID   int
	initialized bool
}

// NewOIDCClient creates an uninitialized client. Initialize must be called
// before any other operation.
func NewOIDCClient(cfg OIDCConfig, store session.Store, backplane Backplane, nav Navigator, log *logrus.Logger) *OIDCClient {
	if log == nil {
		log = logrus.New()
	}
	return &OIDCClient{
		cfg:        cfg,
		store:      store,
		backplane:  backplane,
		nav:        nav,
		tokens:     NewTokenCache(cfg.ClientID, store, cfg.TokenTTL),
		log:        log,
		accounts:   make(map[string]Account),
		logoutSubs: make(map[int]func(Account)),
	}
}

// ClientID returns the configured application client ID.
func (c *OIDCClient) ClientID() string {
	return c.cfg.ClientID
}

// Initialize discovers the provider and restores persisted accounts.
func (c *OIDCClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	provider, err := oidc.NewProvider(ctx, c.cfg.IssuerURL)
	if err != nil {
		return &InitializationError{ClientID: c.cfg.ClientID, Err: fmt.Errorf("provider discovery: %w", err)}
	}

	scopes := c.cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	c.provider = provider
	c.verifier = provider.Verifier(&oidc.Config{ClientID: c.cfg.ClientID})
	c.oauth = &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  c.cfg.RedirectURL,
		Scopes:       scopes,
	}

	if err := c.restoreAccountsLocked(ctx); err != nil {
		return &InitializationError{ClientID: c.cfg.ClientID, Err: err}
	}

	c.initialized = true
	return nil
}

// StashRedirect records an interactive-login completion for HandleRedirect
// to consume. The HTTP callback route calls this with the query parameters
// the provider sent back.
func (c *OIDCClient) StashRedirect(ctx context.Context, code, state string) error {
	raw, err := json.Marshal(pendingRedirect{Code: code, State: state})
	if err != nil {
		return fmt.Errorf("encoding pending redirect: %w", err)
	}
	return c.store.Set(ctx, pendingRedirectKey(c.cfg.ClientID), string(raw))
}

// HandleRedirect completes a pending interactive login, if one exists.
func (c *OIDCClient) HandleRedirect(ctx context.Context) (*Result, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	key := pendingRedirectKey(c.cfg.ClientID)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: err}
	}
	if !ok {
		return nil, nil
	}
	// Consume the stash regardless of outcome; a failed exchange must not
	// replay on the next initialization.
	_ = c.store.Delete(ctx, key)

	var pending pendingRedirect
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: fmt.Errorf("decoding pending redirect: %w", err)}
	}

	expectedState, ok, err := c.store.Get(ctx, authStateKey(c.cfg.ClientID))
	if err != nil {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: err}
	}
	_ = c.store.Delete(ctx, authStateKey(c.cfg.ClientID))
	if !ok || expectedState != pending.State {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: fmt.Errorf("state mismatch in redirect completion")}
	}

	token, err := c.oauth.Exchange(ctx, pending.Code)
	if err != nil {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: fmt.Errorf("code exchange: %w", err)}
	}

	result, err := c.resultFromToken(ctx, token, nil)
	if err != nil {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: err}
	}

	if err := c.adoptResult(ctx, result); err != nil {
		return nil, &InitializationError{ClientID: c.cfg.ClientID, Err: err}
	}
	return result, nil
}

// Accounts returns every known account.
func (c *OIDCClient) Accounts() []Account {
	c.mu.Lock()
	defer c.mu.Unlock()

	accounts := make([]Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		accounts = append(accounts, a)
	}
	return accounts
}

// ActiveAccount returns the active account, or nil.
func (c *OIDCClient) ActiveAccount() *Account {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID == "" {
		return nil
	}
	if account, ok := c.accounts[c.activeID]; ok {
		return &account
	}
	return nil
}

// SetActiveAccount selects the default account for silent acquisition.
func (c *OIDCClient) SetActiveAccount(account *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if account == nil {
		c.activeID = ""
		_ = c.store.Delete(context.Background(), session.CredentialKey(c.cfg.ClientID, "active"))
		return
	}
	c.activeID = account.HomeAccountID
	_ = c.store.Set(context.Background(), session.CredentialKey(c.cfg.ClientID, "active"), account.HomeAccountID)
}

// AcquireTokenSilent returns a cached token or refreshes one, without user
// interaction.
func (c *OIDCClient) AcquireTokenSilent(ctx context.Context, req TokenRequest) (*Result, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	account := req.Account
	if account == nil {
		account = c.ActiveAccount()
	}
	if account == nil {
		return nil, &InteractionRequiredError{
			Code:    "no_account",
			Message: "silent acquisition requires a cached or selected account",
		}
	}

	scopes := c.scopesFor(req)
	if res, ok := c.tokens.Get(ctx, account.HomeAccountID, scopes); ok {
		return res, nil
	}

	refreshToken, err := c.backplane.SessionForHint(ctx, account.Username)
	if err != nil {
		return nil, &InteractionRequiredError{
			Code:     "invalid_grant",
			Message:  "no refresh credential available for silent acquisition",
			SubError: "token_expired",
		}
	}

	return c.redeemRefreshToken(ctx, refreshToken, account, scopes)
}

// SsoSilent obtains a token via the shared provider session.
func (c *OIDCClient) SsoSilent(ctx context.Context, req TokenRequest) (*Result, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	hint := req.LoginHint
	if hint == "" && req.Account != nil {
		hint = req.Account.Username
	}
	if hint == "" {
		if active := c.ActiveAccount(); active != nil {
			hint = active.Username
		}
	}
	if hint == "" {
		return nil, &InteractionRequiredError{
			Code:    "login_required",
			Message: "silent SSO needs a login hint or an existing session",
		}
	}

	refreshToken, err := c.backplane.SessionForHint(ctx, hint)
	if err != nil {
		return nil, &InteractionRequiredError{
			Code:     "login_required",
			Message:  fmt.Sprintf("no provider session for hint %q", hint),
			SubError: "consent_required",
		}
	}

	result, err := c.redeemRefreshToken(ctx, refreshToken, req.Account, c.scopesFor(req))
	if err != nil {
		return nil, err
	}
	if err := c.adoptResult(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// LoginRedirect navigates to the provider's authorization endpoint.
func (c *OIDCClient) LoginRedirect(ctx context.Context, req TokenRequest) error {
	if err := c.requireInit(); err != nil {
		return err
	}
	if c.nav == nil {
		return fmt.Errorf("identity client %s has no navigator", c.cfg.ClientID)
	}

	state := uuid.NewString()
	if err := c.store.Set(ctx, authStateKey(c.cfg.ClientID), state); err != nil {
		return fmt.Errorf("storing auth state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}

	c.nav.Navigate(c.oauth.AuthCodeURL(state, opts...))
	return nil
}

// Logout clears accounts and credentials, then notifies subscribers.
func (c *OIDCClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	var active *Account
	if c.activeID != "" {
		if account, ok := c.accounts[c.activeID]; ok {
			active = &account
		}
	}
	c.accounts = make(map[string]Account)
	c.activeID = ""
	subs := make([]func(Account), 0, len(c.logoutSubs))
	for _, fn := range c.logoutSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if err := c.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clearing token cache: %w", err)
	}
	if err := session.ClearCredentials(ctx, c.store, c.cfg.ClientID); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	if active != nil {
		if err := c.backplane.ClearSession(ctx, active.Username); err != nil {
			c.log.WithError(err).Warn("Failed to clear backplane session on logout")
		}
		for _, fn := range subs {
			fn(*active)
		}
	}
	return nil
}

// OnLogout registers a logout callback.
func (c *OIDCClient) OnLogout(fn func(Account)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.logoutSubs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.logoutSubs, id)
	}
}

func (c *OIDCClient) requireInit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return &InitializationError{ClientID: c.cfg.ClientID, Err: fmt.Errorf("client not initialized")}
	}
	return nil
}

func (c *OIDCClient) scopesFor(req TokenRequest) []string {
	if len(req.Scopes) > 0 {
		return req.Scopes
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oauth.Scopes
}

// redeemRefreshToken exchanges a refresh credential for fresh tokens bound
// to this client ID. Exchange failures surface as interaction-required:
// from the synchronizer's perspective the silent path is simply exhausted.
func (c *OIDCClient) redeemRefreshToken(ctx context.Context, refreshToken string, account *Account, scopes []string) (*Result, error) {
	c.mu.Lock()
	conf := *c.oauth
	c.mu.Unlock()
	conf.Scopes = scopes

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, &InteractionRequiredError{
			Code:     "invalid_grant",
			Message:  fmt.Sprintf("refresh grant rejected: %v", err),
			SubError: "bad_token",
		}
	}

	result, err := c.resultFromToken(ctx, token, account)
	if err != nil {
		return nil, err
	}
	result.Scopes = scopes

	if err := c.tokens.Put(ctx, result); err != nil {
		c.log.WithError(err).Warn("Failed to persist refreshed token")
	}
	// Refresh-token rotation: keep the backplane pointing at the newest
	// credential for this hint.
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if err := c.backplane.StoreSession(ctx, result.Account.Username, token.RefreshToken); err != nil {
			c.log.WithError(err).Warn("Failed to rotate backplane session")
		}
	}
	return result, nil
}

// resultFromToken builds a Result from an oauth2 token, extracting the
// account from the ID token when one is present.
func (c *OIDCClient) resultFromToken(ctx context.Context, token *oauth2.Token, fallback *Account) (*Result, error) {
	result := &Result{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresOn:    token.Expiry,
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if ok && rawIDToken != "" {
		idToken, err := c.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("verifying ID token: %w", err)
		}
		account, err := accountFromIDToken(idToken)
		if err != nil {
			return nil, err
		}
		result.IDToken = rawIDToken
		result.Account = *account
		return result, nil
	}

	if fallback == nil {
		return nil, fmt.Errorf("token response carried no id_token and no account context")
	}
	result.Account = *fallback
	return result, nil
}

// adoptResult records the result's account as known and active, persists
// it, caches the token, and seeds the backplane.
func (c *OIDCClient) adoptResult(ctx context.Context, result *Result) error {
	account := result.Account

	c.mu.Lock()
	c.accounts[account.HomeAccountID] = account
	c.activeID = account.HomeAccountID
	c.mu.Unlock()

	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}
	if err := c.store.Set(ctx, session.CredentialKey(c.cfg.ClientID, "account", account.HomeAccountID), string(raw)); err != nil {
		return fmt.Errorf("persisting account: %w", err)
	}
	if err := c.store.Set(ctx, session.CredentialKey(c.cfg.ClientID, "active"), account.HomeAccountID); err != nil {
		return fmt.Errorf("persisting active account: %w", err)
	}
	if err := c.tokens.Put(ctx, result); err != nil {
		return fmt.Errorf("caching token: %w", err)
	}
	if result.RefreshToken != "" {
		if err := c.backplane.StoreSession(ctx, account.Username, result.RefreshToken); err != nil {
			return fmt.Errorf("seeding backplane session: %w", err)
		}
	}
	return nil
}

func (c *OIDCClient) restoreAccountsLocked(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, session.CredentialKey(c.cfg.ClientID, "account")+".")
	if err != nil {
		return fmt.Errorf("listing persisted accounts: %w", err)
	}
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var account Account
		if err := json.Unmarshal([]byte(raw), &account); err != nil {
			c.log.WithField("key", key).Warn("Dropping undecodable persisted account")
			_ = c.store.Delete(ctx, key)
			continue
		}
		c.accounts[account.HomeAccountID] = account
	}

	activeID, ok, err := c.store.Get(ctx, session.CredentialKey(c.cfg.ClientID, "active"))
	if err != nil {
		return fmt.Errorf("reading active account: %w", err)
	}
	if ok {
		if _, known := c.accounts[activeID]; known {
			c.activeID = activeID
		}
	}
	return nil
}

func accountFromIDToken(idToken *oidc.IDToken) (*Account, error) {
	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		TenantID          string `json:"tid"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parsing ID token claims: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	homeID := claims.Sub
	if claims.TenantID != "" {
		homeID = claims.Sub + "." + claims.TenantID
	}

	return &Account{
		HomeAccountID: homeID,
		Username:      username,
		Name:          claims.Name,
		TenantID:      claims.TenantID,
	}, nil
}
