// Package api exposes the host portal's HTTP surface: slot lifecycle
// operations over the fragment mount controller, the fragment catalog
// read endpoints, and the interactive sign-in, callback, and sign-out
// flows backed by the identity client.
package api
