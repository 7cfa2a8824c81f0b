package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaic-shell/mosaic/pkg/session"
)

// ErrNoBackplaneSession reports that no provider session exists for a hint.
var ErrNoBackplaneSession = errors.New("no backplane session for login hint")

// Backplane is the shared record of the underlying provider session, keyed
// by login hint. The host writes an entry after interactive sign-in; every
// fragment's silent SSO reads it to mint a token bound to its own client ID
// without user interaction.
type Backplane interface {
	// SessionForHint returns the refresh credential for a login hint, or
	// ErrNoBackplaneSession.
	SessionForHint(ctx context.Context, loginHint string) (string, error)

	// StoreSession records the refresh credential for a login hint.
	StoreSession(ctx context.Context, loginHint, refreshToken string) error

	// ClearSession removes the entry for a login hint.
	ClearSession(ctx context.Context, loginHint string) error
}

// StoreBackplane implements Backplane on top of the shared session store.
type StoreBackplane struct {
	store session.Store
}

// NewStoreBackplane wraps a session store as a backplane.
func NewStoreBackplane(store session.Store) *StoreBackplane {
	return &StoreBackplane{store: store}
}

// SessionForHint returns the refresh credential for a login hint.
func (b *StoreBackplane) SessionForHint(ctx context.Context, loginHint string) (string, error) {
	value, ok, err := b.store.Get(ctx, session.SSOSessionKey(loginHint))
	if err != nil {
		return "", fmt.Errorf("reading backplane session: %w", err)
	}
	if !ok {
		return "", ErrNoBackplaneSession
	}
	return value, nil
}

// StoreSession records the refresh credential for a login hint.
func (b *StoreBackplane) StoreSession(ctx context.Context, loginHint, refreshToken string) error {
	if err := b.store.Set(ctx, session.SSOSessionKey(loginHint), refreshToken); err != nil {
		return fmt.Errorf("storing backplane session: %w", err)
	}
	return nil
}

// ClearSession removes the entry for a login hint.
func (b *StoreBackplane) ClearSession(ctx context.Context, loginHint string) error {
	if err := b.store.Delete(ctx, session.SSOSessionKey(loginHint)); err != nil {
		return fmt.Errorf("clearing backplane session: %w", err)
	}
	return nil
}
