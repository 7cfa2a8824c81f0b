// Package fragments implements the remote fragment lifecycle: the registry
// that fetches and caches each fragment's code at most once, the mount
// controller that drives UI slots through Idle -> Loading -> {Mounted,
// Failed}, and the catalog that maps slots to fragment entry URLs.
//
// # Registry
//
// Registry.Load fetches a fragment's remote entry manifest the first time a
// scope is requested and caches the resulting Metadata for the process
// lifetime. Concurrent loads of the same scope share one fetch; failures
// are never cached, so a later call retries.
//
// # Mounting
//
// Controller.Mount requires the scope to be loaded already and enforces at
// most one live instance per scope. Unmount is idempotent and clears its
// bookkeeping even when the fragment's own unmount fails, so the
// controller's view never drifts from reality. Slot activations carry an
// epoch; results arriving after a slot was deactivated or reactivated are
// discarded rather than mounted into a container that no longer exists.
package fragments
