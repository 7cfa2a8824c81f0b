package authsync

// Phase is the synchronizer's lifecycle phase.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseQuickChecking
	PhaseInitializing
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseQuickChecking:
		return "quick-checking"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase is Ready or Error.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseError
}

// RouteType classifies the route the synchronizer guards.
type RouteType string

const (
	RoutePublic    RouteType = "public"
	RouteProtected RouteType = "protected"
	RouteCallback  RouteType = "callback"
)

// Mode distinguishes the host shell's synchronizer from a fragment's.
type Mode string

const (
	ModeHost   Mode = "host"
	ModeRemote Mode = "remote"
)

// State is the synchronizer's complete machine state. It is owned
// exclusively by one Synchronizer and mutated only through Transition.
type State struct {
	Phase     Phase
	RouteType RouteType
	Mode      Mode
}

// CanRender reports whether protected children may render. Ready renders
// normally; Error renders an unauthenticated tree the route guard can
// recover; public routes render unconditionally.
func (s State) CanRender() bool {
	return s.Phase == PhaseReady || s.Phase == PhaseError || s.RouteType == RoutePublic
}
