// Package async provides supervised goroutine helpers. SafeGo replaces bare
// `go func()` for fire-and-forget work like slot activations, adding panic
// recovery, a timeout, and error logging. Batch fans a slice of items out
// over a bounded worker pool; the host uses it to preload fragment catalogs.
package async
