package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mosaic-shell/mosaic/pkg/session"
)

const (
	// tokenCacheEntries bounds the in-memory layer. The durable store
	// underneath keeps everything; the LRU only avoids re-reading it.
	tokenCacheEntries = 64

	// expirySkew is subtracted from token lifetimes so a token is never
	// handed out moments before the provider rejects it.
	expirySkew = 2 * time.Minute
)

// TokenCache caches acquisition results per account and scope set. Reads
// hit an in-memory LRU first and fall back to the durable session store;
// writes go through to both. Entries are namespaced under the owning
// client ID, so the quick-check credential peek observes them.
type TokenCache struct {
	clientID string
	store    session.Store
	memory   *lru.LRU[string, *Result]
}

// NewTokenCache creates a cache for one client ID.
func NewTokenCache(clientID string, store session.Store, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCache{
		clientID: clientID,
		store:    store,
		memory:   lru.NewLRU[string, *Result](tokenCacheEntries, nil, ttl),
	}
}

// Get returns a still-valid cached result, or (nil, false).
func (c *TokenCache) Get(ctx context.Context, homeAccountID string, scopes []string) (*Result, bool) {
	key := c.cacheKey(homeAccountID, scopes)

	if res, ok := c.memory.Get(key); ok && tokenValid(res) {
		return res, true
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		// Corrupt entry; drop it so the next acquisition rewrites it.
		_ = c.store.Delete(ctx, key)
		return nil, false
	}
	if !tokenValid(&res) {
		return nil, false
	}
	c.memory.Add(key, &res)
	return &res, true
}

// Put stores an acquisition result.
func (c *TokenCache) Put(ctx context.Context, res *Result) error {
	if res.ExpiresOn.IsZero() {
		res.ExpiresOn = expiryFromToken(res.AccessToken)
	}

	key := c.cacheKey(res.Account.HomeAccountID, res.Scopes)
	c.memory.Add(key, res)

	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding cached token: %w", err)
	}
	if err := c.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("persisting cached token: %w", err)
	}
	return nil
}

// Results returns every persisted result for this client, valid or not.
// The refresher uses this to find tokens worth renewing ahead of expiry.
func (c *TokenCache) Results(ctx context.Context) []*Result {
	keys, err := c.store.Keys(ctx, session.CredentialKey(c.clientID, "token")+".")
	if err != nil {
		return nil
	}

	var results []*Result
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var res Result
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			continue
		}
		results = append(results, &res)
	}
	return results
}

// Clear purges the in-memory layer and every persisted token for this
// client.
func (c *TokenCache) Clear(ctx context.Context) error {
	c.memory.Purge()

	keys, err := c.store.Keys(ctx, session.CredentialKey(c.clientID, "token")+".")
	if err != nil {
		return fmt.Errorf("listing cached tokens: %w", err)
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting cached token: %w", err)
		}
	}
	return nil
}

func (c *TokenCache) cacheKey(homeAccountID string, scopes []string) string {
	sorted := make([]string, len(scopes))
	copy(sorted, scopes)
	sort.Strings(sorted)
	return session.CredentialKey(c.clientID, "token", homeAccountID, strings.Join(sorted, " "))
}

func tokenValid(res *Result) bool {
	if res.AccessToken == "" {
		return false
	}
	expiry := res.ExpiresOn
	if expiry.IsZero() {
		expiry = expiryFromToken(res.AccessToken)
	}
	if expiry.IsZero() {
		return false
	}
	return time.Now().Add(expirySkew).Before(expiry)
}

// expiryFromToken introspects the exp claim of a JWT access token without
// verifying it. Verification is the provider's and the ID-token verifier's
// job; this only schedules cache validity.
func expiryFromToken(accessToken string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
