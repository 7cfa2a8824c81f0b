package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mosaic-shell/mosaic/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestTokenCachePutGet(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	cache := NewTokenCache("billing-app", store, time.Hour)

	res := &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: "token-bytes",
		ExpiresOn:   time.Now().Add(time.Hour),
		Scopes:      []string{"openid", "profile"},
	}
	require.NoError(t, cache.Put(ctx, res))

	got, ok := cache.Get(ctx, "acct-1", []string{"openid", "profile"})
	require.True(t, ok)
	assert.Equal(t, "token-bytes", got.AccessToken)

	// Scope order must not matter
	got, ok = cache.Get(ctx, "acct-1", []string{"profile", "openid"})
	require.True(t, ok)
	assert.Equal(t, "token-bytes", got.AccessToken)

	// Different account misses
	_, ok = cache.Get(ctx, "acct-2", []string{"openid", "profile"})
	assert.False(t, ok)
}

func TestTokenCacheExpiredTokenMisses(t *testing.T) {
	ctx := context.Background()
	cache := NewTokenCache("billing-app", session.NewMemoryStore(), time.Hour)

	require.NoError(t, cache.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: "stale",
		ExpiresOn:   time.Now().Add(time.Minute), // inside the expiry skew
	}))

	_, ok := cache.Get(ctx, "acct-1", nil)
	assert.False(t, ok, "tokens inside the expiry skew must not be served")
}

func TestTokenCacheExpiryFromJWT(t *testing.T) {
	ctx := context.Background()
	cache := NewTokenCache("billing-app", session.NewMemoryStore(), time.Hour)

	// No ExpiresOn set: validity comes from the token's exp claim.
	require.NoError(t, cache.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: signedToken(t, time.Now().Add(time.Hour)),
	}))

	got, ok := cache.Get(ctx, "acct-1", nil)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresOn, 5*time.Second)
}

func TestTokenCacheOpaqueTokenWithoutExpiryMisses(t *testing.T) {
	ctx := context.Background()
	cache := NewTokenCache("billing-app", session.NewMemoryStore(), time.Hour)

	require.NoError(t, cache.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: "opaque-not-a-jwt",
	}))

	_, ok := cache.Get(ctx, "acct-1", nil)
	assert.False(t, ok, "a token with unknowable expiry must not be served")
}

func TestTokenCacheSurvivesMemoryLayer(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	first := NewTokenCache("billing-app", store, time.Hour)
	require.NoError(t, first.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: "persisted",
		ExpiresOn:   time.Now().Add(time.Hour),
	}))

	// A fresh cache over the same store still finds the token.
	second := NewTokenCache("billing-app", store, time.Hour)
	got, ok := second.Get(ctx, "acct-1", nil)
	require.True(t, ok)
	assert.Equal(t, "persisted", got.AccessToken)
}

func TestTokenCacheClear(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	cache := NewTokenCache("billing-app", store, time.Hour)

	require.NoError(t, cache.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: "x",
		ExpiresOn:   time.Now().Add(time.Hour),
	}))
	require.NoError(t, cache.Clear(ctx))

	_, ok := cache.Get(ctx, "acct-1", nil)
	assert.False(t, ok)

	found, err := session.HasCredentialKey(ctx, store)
	require.NoError(t, err)
	assert.False(t, found, "clear must remove the persisted credential keys too")
}

func TestTokenCacheResults(t *testing.T) {
	ctx := context.Background()
	cache := NewTokenCache("billing-app", session.NewMemoryStore(), time.Hour)

	require.NoError(t, cache.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-1", Username: "ada@example.com"},
		AccessToken: "a",
		ExpiresOn:   time.Now().Add(time.Hour),
	}))
	require.NoError(t, cache.Put(ctx, &Result{
		Account:     Account{HomeAccountID: "acct-2", Username: "grace@example.com"},
		AccessToken: "b",
		ExpiresOn:   time.Now().Add(time.Hour),
	}))

	assert.Len(t, cache.Results(ctx), 2)
}
