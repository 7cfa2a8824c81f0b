// Package authbus implements the auth event bus that keeps fragment sessions
// consistent with the host shell's.
//
// # Transport
//
// The bus runs over a Port, a same-context broadcast transport with one hard
// invariant: a publisher's own subscribers never receive its publications
// (loop prevention). Two transports are provided:
//
//   - MemoryHub: an in-process hub for tests and single-process deployments.
//   - RedisPort: Redis pub/sub for cross-process deployments, with sender-ID
//     based self-delivery suppression.
//
// # Events
//
// Events are a tagged union over signed-in, signed-out, token-acquired,
// account-changed, and error. Every event carries a timestamp and the
// publishing app name; payloads carry enough for a receiver to act without
// calling back to the publisher. Malformed payloads are logged and dropped
// at the bus boundary, never surfaced to subscribers.
//
// # Usage
//
//	hub := authbus.NewMemoryHub()
//	bus := authbus.NewBus(hub.Attach(), "portal-shell", logger)
//	defer bus.Close()
//
//	unsubscribe := bus.Subscribe(func(ev authbus.Event) { ... })
//	defer unsubscribe()
//
//	bus.PublishSignedIn(ctx, authbus.SignedInPayload{
//		LoginHint:     "ada@example.com",
//		HomeAccountID: "abc.tenant",
//		ClientID:      "portal-shell",
//	})
package authbus
