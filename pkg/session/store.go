package session

import (
	"context"
	"fmt"
	"strings"
)

const (
	// credentialKeyPrefix namespaces every cached identity credential.
	credentialKeyPrefix = "mosaic.credential."

	// ssoSessionPrefix namespaces the silent-SSO backplane entries keyed
	// by login hint.
	ssoSessionPrefix = "mosaic.sso."
)

// Store is a durable per-context key/value store. Implementations must be
// safe for concurrent use; semantics are last-writer-wins with no locking
// across callers (credential keys are namespaced per client ID, so
// collisions are not expected).
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Clear removes every key in the store.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// CredentialKey builds a namespaced credential key for the given client ID.
// Additional parts are joined with dots, e.g.
// CredentialKey("billing-app", "account", "abc") ->
// "mosaic.credential.billing-app.account.abc".
func CredentialKey(clientID string, parts ...string) string {
	key := credentialKeyPrefix + clientID
	if len(parts) > 0 {
		key += "." + strings.Join(parts, ".")
	}
	return key
}

// SSOSessionKey builds the backplane key for a login hint.
func SSOSessionKey(loginHint string) string {
	return ssoSessionPrefix + loginHint
}

// HasCredentialKey reports whether any cached credential key exists in the
// store, without inspecting or validating the credentials themselves. The
// auth synchronizer uses this as its quick check: no key means a full
// identity-client initialization is certain to come up empty.
func HasCredentialKey(ctx context.Context, s Store) (bool, error) {
	keys, err := s.Keys(ctx, credentialKeyPrefix)
	if err != nil {
		return false, fmt.Errorf("peeking credential keys: %w", err)
	}
	return len(keys) > 0, nil
}

// ClearCredentials removes every cached credential for the given client ID.
func ClearCredentials(ctx context.Context, s Store, clientID string) error {
	keys, err := s.Keys(ctx, credentialKeyPrefix+clientID+".")
	if err != nil {
		return fmt.Errorf("listing credential keys for %s: %w", clientID, err)
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting credential key %s: %w", key, err)
		}
	}
	return nil
}
