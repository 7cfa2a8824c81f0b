package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mosaic-shell/mosaic/pkg/authbus"
	"github.com/mosaic-shell/mosaic/pkg/fragments"
	"github.com/mosaic-shell/mosaic/pkg/httputil"
	"github.com/mosaic-shell/mosaic/pkg/identity"
	"github.com/mosaic-shell/mosaic/pkg/observability"
	"github.com/mosaic-shell/mosaic/pkg/routeguard"
	"github.com/mosaic-shell/mosaic/pkg/session"
)

// CaptureNavigator records the last URL an identity client asked the
// browser to visit so a request handler can replay it as an HTTP
// redirect. LoginRedirect and Take must run under the same lock.
type CaptureNavigator struct {
	mu   sync.Mutex
	last string
}

func (n *CaptureNavigator) Navigate(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = url
}

// Take returns the most recently captured URL and clears it.
func (n *CaptureNavigator) Take() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	url := n.last
	n.last = ""
	return url
}

// Config carries the collaborators the server routes requests to.
// Client and Nav may be nil when no identity provider is configured;
// the auth endpoints then answer 503.
type Config struct {
	Controller *fragments.Controller
	Registry   *fragments.Registry
	Guard      *routeguard.Guard
	Bus        *authbus.Bus
	Store      session.Store
	Client     identity.Client
	Nav        *CaptureNavigator
	Metrics    *observability.Metrics
	Logger     *logrus.Logger
	DefaultURL string
}

// Server is the host portal's HTTP front end.
type Server struct {
	router     *mux.Router
	controller *fragments.Controller
	registry   *fragments.Registry
	guard      *routeguard.Guard
	bus        *authbus.Bus
	store      session.Store
	client     identity.Client
	nav        *CaptureNavigator
	metrics    *observability.Metrics
	log        *logrus.Logger
	defaultURL string

	authMu sync.Mutex
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	defaultURL := cfg.DefaultURL
	if defaultURL == "" {
		defaultURL = "/"
	}
	s := &Server{
		router:     mux.NewRouter(),
		controller: cfg.Controller,
		registry:   cfg.Registry,
		guard:      cfg.Guard,
		bus:        cfg.Bus,
		store:      cfg.Store,
		client:     cfg.Client,
		nav:        cfg.Nav,
		metrics:    cfg.Metrics,
		log:        log,
		defaultURL: defaultURL,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(httputil.RecoveryMiddleware(s.log))
	s.router.Use(httputil.LoggingMiddleware(s.log))
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	s.router.HandleFunc("/api/slots", s.handleListSlots).Methods("GET")
	s.router.HandleFunc("/api/slots/{slot}", s.handleSlotStatus).Methods("GET")
	s.router.HandleFunc("/api/slots/{slot}/activate", s.handleActivateSlot).Methods("POST")
	s.router.HandleFunc("/api/slots/{slot}/deactivate", s.handleDeactivateSlot).Methods("POST")
	s.router.HandleFunc("/api/slots/{slot}/retry", s.handleRetrySlot).Methods("POST")
	s.router.HandleFunc("/api/fragments", s.handleListFragments).Methods("GET")

	s.router.HandleFunc("/auth/sign-in", s.handleSignIn).Methods("GET")
	s.router.HandleFunc("/auth/callback", s.handleCallback).Methods("GET")
	s.router.HandleFunc("/auth/sign-out", s.handleSignOut).Methods("GET", "POST")

	fragment := s.router.PathPrefix("/fragments").Subrouter()
	if s.guard != nil {
		fragment.Use(routeguard.NewMiddleware(s.guard).Handler)
	}
	fragment.HandleFunc("/{slot}", s.handleFragmentPage).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "mosaic.http")
}
