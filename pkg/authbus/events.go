package authbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of auth event.
type EventType string

const (
	EventSignedIn       EventType = "signed-in"
	EventSignedOut      EventType = "signed-out"
	EventTokenAcquired  EventType = "token-acquired"
	EventAccountChanged EventType = "account-changed"
	EventError          EventType = "error"
)

// knownEventTypes is the set of valid tags.
var knownEventTypes = map[EventType]bool{
	EventSignedIn:       true,
	EventSignedOut:      true,
	EventTokenAcquired:  true,
	EventAccountChanged: true,
	EventError:          true,
}

// Event is the wire envelope carried over the broadcast transport.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AppName   string          `json:"appName"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SignedInPayload announces a completed sign-in. The login hint lets every
// receiver attempt silent SSO without calling back to the publisher.
type SignedInPayload struct {
	LoginHint     string `json:"loginHint"`
	HomeAccountID string `json:"homeAccountId"`
	ClientID      string `json:"clientId"`
}

// TokenAcquiredPayload announces a successful silent token acquisition.
type TokenAcquiredPayload struct {
	ClientID string   `json:"clientId"`
	Scopes   []string `json:"scopes,omitempty"`
}

// AccountChangedPayload announces an active-account switch.
type AccountChangedPayload struct {
	HomeAccountID string `json:"homeAccountId"`
	LoginHint     string `json:"loginHint,omitempty"`
}

// ErrorPayload announces an auth failure in the publishing context.
type ErrorPayload struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	SubError string `json:"subError,omitempty"`
}

// MalformedEventError reports an event that failed validation. It is fully
// absorbed at the bus boundary: logged, dropped, never delivered.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed auth event: %s", e.Reason)
}

// Validate checks the envelope and the payload required by its tag.
func (ev *Event) Validate() error {
	if !knownEventTypes[ev.Type] {
		return &MalformedEventError{Reason: fmt.Sprintf("unrecognized type %q", ev.Type)}
	}
	if ev.Timestamp.IsZero() {
		return &MalformedEventError{Reason: "missing timestamp"}
	}
	if ev.AppName == "" {
		return &MalformedEventError{Reason: "missing appName"}
	}

	switch ev.Type {
	case EventSignedIn:
		p, err := ev.SignedIn()
		if err != nil {
			return err
		}
		if p.LoginHint == "" || p.HomeAccountID == "" || p.ClientID == "" {
			return &MalformedEventError{Reason: "signed-in payload missing required fields"}
		}
	case EventError:
		p, err := ev.ErrorDetail()
		if err != nil {
			return err
		}
		if p.Code == "" || p.Message == "" {
			return &MalformedEventError{Reason: "error payload missing code or message"}
		}
	case EventAccountChanged:
		p, err := ev.AccountChanged()
		if err != nil {
			return err
		}
		if p.HomeAccountID == "" {
			return &MalformedEventError{Reason: "account-changed payload missing homeAccountId"}
		}
	case EventTokenAcquired:
		p, err := ev.TokenAcquired()
		if err != nil {
			return err
		}
		if p.ClientID == "" {
			return &MalformedEventError{Reason: "token-acquired payload missing clientId"}
		}
	}
	return nil
}

// SignedIn decodes the payload of a signed-in event.
func (ev *Event) SignedIn() (*SignedInPayload, error) {
	var p SignedInPayload
	if err := decodePayload(ev, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// TokenAcquired decodes the payload of a token-acquired event.
func (ev *Event) TokenAcquired() (*TokenAcquiredPayload, error) {
	var p TokenAcquiredPayload
	if err := decodePayload(ev, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AccountChanged decodes the payload of an account-changed event.
func (ev *Event) AccountChanged() (*AccountChangedPayload, error) {
	var p AccountChangedPayload
	if err := decodePayload(ev, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ErrorDetail decodes the payload of an error event.
func (ev *Event) ErrorDetail() (*ErrorPayload, error) {
	var p ErrorPayload
	if err := decodePayload(ev, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodePayload(ev *Event, out interface{}) error {
	if len(ev.Payload) == 0 {
		return &MalformedEventError{Reason: fmt.Sprintf("%s event has no payload", ev.Type)}
	}
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		return &MalformedEventError{Reason: fmt.Sprintf("undecodable %s payload: %v", ev.Type, err)}
	}
	return nil
}
