package session

import (
	"context"
	"fmt"
)

// returnURLKey holds the single pending return URL. A second sign-in attempt
// overwrites the previous value rather than queueing behind it.
const returnURLKey = "mosaic.return_url"

// SetReturnURL records the location the user intended to reach before being
// diverted to sign-in.
func SetReturnURL(ctx context.Context, s Store, url string) error {
	if err := s.Set(ctx, returnURLKey, url); err != nil {
		return fmt.Errorf("storing return URL: %w", err)
	}
	return nil
}

// ConsumeReturnURL reads and clears the pending return URL in one step, so
// it is honored exactly once. Returns false when no return URL is pending.
func ConsumeReturnURL(ctx context.Context, s Store) (string, bool, error) {
	url, ok, err := s.Get(ctx, returnURLKey)
	if err != nil {
		return "", false, fmt.Errorf("reading return URL: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	if err := s.Delete(ctx, returnURLKey); err != nil {
		return "", false, fmt.Errorf("clearing return URL: %w", err)
	}
	return url, true, nil
}
