// Package authsync implements the per-context auth synchronizer: a state
// machine that drives exactly one identity client through initialization,
// redirect completion, silent-SSO fallback, and redirect suppression, while
// publishing and consuming auth events on the bus.
//
// # Structure
//
// The decision logic is a pure transition function
//
//	Transition(state, event) -> (state, effects)
//
// with a separate effect interpreter (Synchronizer), so the fallback chain
// and the visible/preloading/standalone suppression policy are unit-testable
// without any transport or identity provider. The suppression policy itself
// is a single table lookup over (visible, embedded); see ResolveFallback.
//
// # Phases
//
//	Uninitialized -> QuickChecking -> Initializing -> {Ready, Error}
//
// QuickChecking peeks at durable storage for any cached credential key. On a
// protected route with no key it jumps straight to Ready so the route guard
// can redirect immediately instead of waiting out a full initialization
// round-trip that is certain to fail; the identity client is never even
// constructed in that case.
//
// Both terminal phases render children: Ready normally, Error as an
// unauthenticated render recoverable through the route guard. A permanently
// blocked spinner is not recoverable.
//
// # Ordering
//
// Within one synchronizer, transitions are strictly sequential. Across
// synchronizers the bus is the only coordination primitive: events arriving
// before this context reaches a terminal phase are queued (an early
// signed-in is the common case when a fragment mounts after the host
// already authenticated), and conflicting rapid signed-in events resolve
// last-event-wins. Every asynchronous effect checks a relevance flag before
// applying its result.
package authsync
