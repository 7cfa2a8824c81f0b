package authbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   Event
		wantErr string
	}{
		{
			name: "valid signed-in",
			event: Event{
				Type:      EventSignedIn,
				Timestamp: now,
				AppName:   "portal-shell",
				Payload:   json.RawMessage(`{"loginHint":"a@b.c","homeAccountId":"h1","clientId":"c1"}`),
			},
		},
		{
			name: "valid signed-out without payload",
			event: Event{
				Type:      EventSignedOut,
				Timestamp: now,
				AppName:   "billing-app",
			},
		},
		{
			name: "valid error",
			event: Event{
				Type:      EventError,
				Timestamp: now,
				AppName:   "billing-app",
				Payload:   json.RawMessage(`{"code":"init_failed","message":"boom","subError":"bad_token"}`),
			},
		},
		{
			name: "unknown type",
			event: Event{
				Type:      EventType("mystery"),
				Timestamp: now,
				AppName:   "x",
			},
			wantErr: "unrecognized type",
		},
		{
			name: "missing timestamp",
			event: Event{
				Type:    EventSignedOut,
				AppName: "x",
			},
			wantErr: "missing timestamp",
		},
		{
			name: "missing appName",
			event: Event{
				Type:      EventSignedOut,
				Timestamp: now,
			},
			wantErr: "missing appName",
		},
		{
			name: "signed-in without payload",
			event: Event{
				Type:      EventSignedIn,
				Timestamp: now,
				AppName:   "x",
			},
			wantErr: "no payload",
		},
		{
			name: "signed-in missing fields",
			event: Event{
				Type:      EventSignedIn,
				Timestamp: now,
				AppName:   "x",
				Payload:   json.RawMessage(`{"loginHint":"a@b.c"}`),
			},
			wantErr: "missing required fields",
		},
		{
			name: "error missing message",
			event: Event{
				Type:      EventError,
				Timestamp: now,
				AppName:   "x",
				Payload:   json.RawMessage(`{"code":"init_failed"}`),
			},
			wantErr: "missing code or message",
		},
		{
			name: "token-acquired missing clientId",
			event: Event{
				Type:      EventTokenAcquired,
				Timestamp: now,
				AppName:   "x",
				Payload:   json.RawMessage(`{"scopes":["openid"]}`),
			},
			wantErr: "missing clientId",
		},
		{
			name: "account-changed missing homeAccountId",
			event: Event{
				Type:      EventAccountChanged,
				Timestamp: now,
				AppName:   "x",
				Payload:   json.RawMessage(`{}`),
			},
			wantErr: "missing homeAccountId",
		},
		{
			name: "undecodable payload",
			event: Event{
				Type:      EventSignedIn,
				Timestamp: now,
				AppName:   "x",
				Payload:   json.RawMessage(`[1,2,3]`),
			},
			wantErr: "undecodable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var malformed *MalformedEventError
			assert.ErrorAs(t, err, &malformed)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := Event{
		Type:      EventSignedIn,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		AppName:   "portal-shell",
	}
	payload, err := json.Marshal(SignedInPayload{
		LoginHint:     "ada@example.com",
		HomeAccountID: "acct.tenant",
		ClientID:      "portal-shell",
	})
	require.NoError(t, err)
	ev.Payload = payload

	data, err := json.Marshal(&ev)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())

	got, err := decoded.SignedIn()
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.LoginHint)
	assert.Equal(t, "acct.tenant", got.HomeAccountID)
}
