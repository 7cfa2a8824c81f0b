// Package identity defines the identity-client abstraction the portal
// requires from its auth provider, and an OpenID Connect implementation of
// it.
//
// Each context (the host shell and every fragment) owns exactly one Client
// configured with its own application client ID. All clients in one portal
// deployment are backed by the same underlying provider session, which is
// what makes silent SSO possible: after the host signs in interactively,
// fragments obtain their own tokens silently using the published login hint.
//
// The Client interface deliberately mirrors the operations the auth
// synchronizer drives: initialize, redirect completion, account management,
// silent token acquisition, silent SSO, interactive login, logout, and a
// typed logout-event subscription with explicit unsubscribe.
//
// InteractionRequiredError is control flow, not a fault: it is the expected
// signal that silent paths are exhausted and only an interactive login can
// produce a session.
package identity
