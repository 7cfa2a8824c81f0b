package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInteractionRequired(t *testing.T) {
	base := &InteractionRequiredError{Code: "login_required", Message: "no session"}

	assert.True(t, IsInteractionRequired(base))
	assert.True(t, IsInteractionRequired(fmt.Errorf("silent sso: %w", base)))
	assert.False(t, IsInteractionRequired(errors.New("network down")))
	assert.False(t, IsInteractionRequired(nil))
}

func TestInteractionRequiredErrorMessage(t *testing.T) {
	err := &InteractionRequiredError{Code: "invalid_grant", Message: "refresh rejected", SubError: "bad_token"}
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Contains(t, err.Error(), "bad_token")

	noSub := &InteractionRequiredError{Code: "login_required", Message: "no session"}
	assert.Contains(t, noSub.Error(), "login_required")
}

func TestInitializationErrorUnwrap(t *testing.T) {
	cause := errors.New("discovery timed out")
	err := &InitializationError{ClientID: "billing-app", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "billing-app")
}
