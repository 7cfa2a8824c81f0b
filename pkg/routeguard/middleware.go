package routeguard

import (
	"net/http"
)

// Middleware adapts a Guard to HTTP routing. Speculative prefetch requests
// are detected from the Sec-Purpose and Purpose headers sent by browsers.
type Middleware struct {
	guard *Guard
}

// NewMiddleware creates middleware around a guard.
func NewMiddleware(guard *Guard) *Middleware {
	return &Middleware{guard: guard}
}

// Handler gates requests with the guard. Allowed requests continue to next;
// gated requests receive a 302 to the sign-in target.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc := Location{
			Pathname: r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Preload:  isPrefetch(r),
		}

		decision := m.guard.Decide(loc)
		if decision.Action == Redirect {
			http.Redirect(w, r, decision.Target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPrefetch(r *http.Request) bool {
	if r.Header.Get("Sec-Purpose") == "prefetch" {
		return true
	}
	// Older browsers use the Purpose header.
	return r.Header.Get("Purpose") == "prefetch"
}
