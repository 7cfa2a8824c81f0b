package identity

import (
	"errors"
	"fmt"
)

// InteractionRequiredError signals that every silent acquisition path is
// exhausted and a visible login is necessary. The auth synchronizer treats
// it as control flow feeding the redirect-suppression policy, not as a
// fault.
type InteractionRequiredError struct {
	Code     string
	Message  string
	SubError string
}

func (e *InteractionRequiredError) Error() string {
	if e.SubError != "" {
		return fmt.Sprintf("interaction required (%s/%s): %s", e.Code, e.SubError, e.Message)
	}
	return fmt.Sprintf("interaction required (%s): %s", e.Code, e.Message)
}

// IsInteractionRequired reports whether err is, or wraps, an
// InteractionRequiredError.
func IsInteractionRequired(err error) bool {
	var target *InteractionRequiredError
	return errors.As(err, &target)
}

// InitializationError reports that client initialization or redirect
// handling itself failed. The synchronizer transitions to its Error state
// (treated as unauthenticated) rather than blocking the UI forever.
type InitializationError struct {
	ClientID string
	Err      error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("identity client %s initialization failed: %v", e.ClientID, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}
