// Package routeguard gates protected navigations. Public routes pass
// unconditionally; protected routes check the identity client's account list
// and redirect unauthenticated navigations to sign-in with the attempted
// location encoded as the return URL.
//
// Speculative preloads are never redirected. A preload is not a user
// decision, so the guard defers to the moment of actual navigation instead
// of hijacking it.
//
// Decide is the pure decision function; Guard applies it through a
// Navigator so the redirect side effect stays testable.
package routeguard
