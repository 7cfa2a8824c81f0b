package authsync

// Condition captures the two environment facts the redirect-suppression
// policy depends on: whether the document is actually visible (as opposed
// to a speculative preload) and whether the fragment runs embedded under
// the host (as opposed to detached standalone development).
type Condition struct {
	Visible  bool
	Embedded bool
}

// FallbackAction decides what a failed silent fallback does.
type FallbackAction int

const (
	// SuppressRedirect transitions to Ready without navigating. A
	// preloading fragment must never hijack navigation, and a standalone
	// fragment has no host to redirect to.
	SuppressRedirect FallbackAction = iota

	// RedirectToSignIn navigates to the host's sign-in with the current
	// location as the return URL.
	RedirectToSignIn
)

// fallbackPolicy is the full policy as one table: only a visible, embedded
// fragment may redirect.
var fallbackPolicy = map[Condition]FallbackAction{
	{Visible: true, Embedded: true}:   RedirectToSignIn,
	{Visible: true, Embedded: false}:  SuppressRedirect,
	{Visible: false, Embedded: true}:  SuppressRedirect,
	{Visible: false, Embedded: false}: SuppressRedirect,
}

// ResolveFallback looks up the action for a condition.
func ResolveFallback(c Condition) FallbackAction {
	return fallbackPolicy[c]
}
