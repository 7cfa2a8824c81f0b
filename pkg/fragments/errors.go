package fragments

import "fmt"

// RemoteLoadError reports a failed fetch or parse of a fragment's remote
// entry. The failure is not cached; a subsequent Load retries.
type RemoteLoadError struct {
	Scope    string
	EntryURL string
	Err      error
}

func (e *RemoteLoadError) Error() string {
	return fmt.Sprintf("loading fragment %q from %s: %v", e.Scope, e.EntryURL, e.Err)
}

func (e *RemoteLoadError) Unwrap() error { return e.Err }

// NotLoadedError reports a mount attempt for a scope the registry has not
// loaded.
type NotLoadedError struct {
	Scope string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("fragment %q is not loaded", e.Scope)
}

// NoBootstrapError reports a mount attempt for a fragment that exposes no
// lifecycle exports, only a bare component reference.
type NoBootstrapError struct {
	Scope string
}

func (e *NoBootstrapError) Error() string {
	return fmt.Sprintf("fragment %q exposes no bootstrap", e.Scope)
}
