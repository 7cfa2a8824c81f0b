package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mosaic-shell/mosaic/pkg/authbus"
	"github.com/mosaic-shell/mosaic/pkg/authsync"
	"github.com/mosaic-shell/mosaic/pkg/config"
	"github.com/mosaic-shell/mosaic/pkg/fragments"
	"github.com/mosaic-shell/mosaic/pkg/httputil"
	"github.com/mosaic-shell/mosaic/pkg/identity"
	"github.com/mosaic-shell/mosaic/pkg/routeguard"
	"github.com/mosaic-shell/mosaic/pkg/session"
)

// fragmentd runs one remote fragment standalone, outside the host shell.
// It joins the shared auth bus so a sign-in on the host carries over, and
// falls back to its own sign-in route when there is no session to join.

func main() {
	scope := flag.String("scope", "", "Fragment scope to serve")
	entryURL := flag.String("entry-url", "", "Remote entry URL for the fragment")
	port := flag.String("port", "8081", "Port to listen on")
	flag.Parse()

	log := logrus.New()
	if *scope == "" || *entryURL == "" {
		log.Fatal("Both -scope and -entry-url are required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.Observability.LogLevel)

	ctx := context.Background()

	store := session.NewMemoryStore()

	var busPort authbus.Port
	if cfg.Bus.Transport == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Bus.RedisURL,
			Password: cfg.Bus.RedisPassword,
			DB:       cfg.Bus.RedisDB,
		})
		redisPort, err := authbus.NewRedisPort(ctx, redisClient, cfg.Bus.Channel, log)
		if err != nil {
			log.Fatalf("Failed to connect auth bus to redis: %v", err)
		}
		defer redisPort.Close()
		busPort = redisPort
	} else {
		hub := authbus.NewMemoryHub()
		defer hub.Close()
		busPort = hub.Attach()
	}
	bus := authbus.NewBus(busPort, *scope, log)

	fetcher := fragments.NewSchemeFetcher()
	fetcher.Register("http", fragments.NewHTTPFetcher(nil))
	fetcher.Register("https", fragments.NewHTTPFetcher(nil))
	registry := fragments.NewRegistry(fetcher, log)
	controller := fragments.NewController(registry, log)
	controller.AddSlot("main", *scope, *entryURL)

	var client identity.Client
	if cfg.Auth.Issuer != "" {
		oidcClient := identity.NewOIDCClient(identity.OIDCConfig{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			IssuerURL:    cfg.Auth.Issuer,
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       cfg.Auth.Scopes,
		}, store, identity.NewStoreBackplane(store), noopNavigator{}, log)
		client = oidcClient

		synchronizer, err := authsync.New(authsync.Config{
			AppName:   *scope,
			Mode:      authsync.ModeRemote,
			RouteType: authsync.RouteProtected,
			ClientFactory: func(ctx context.Context) (identity.Client, error) {
				if err := oidcClient.Initialize(ctx); err != nil {
					return nil, err
				}
				return oidcClient, nil
			},
			Store: store,
			Bus:   bus,
			// Standalone means not embedded under the host, so an
			// unauthenticated start stays on this context's own sign-in.
			Env:             authsync.StaticEnvironment{IsVisible: true, IsEmbedded: false},
			Nav:             noopNavigator{},
			HostSignInURL:   cfg.Auth.SignInPath,
			CurrentLocation: func() string { return "/" },
			Scopes:          cfg.Auth.Scopes,
			Logger:          log,
		})
		if err != nil {
			log.Fatalf("Failed to build auth synchronizer: %v", err)
		}
		defer synchronizer.Close()
		if err := synchronizer.Run(ctx); err != nil {
			log.WithError(err).Warn("Auth synchronizer did not reach ready")
		}
	}

	var guard *routeguard.Guard
	if client != nil {
		guard = routeguard.New(routeguard.Config{
			PublicPrefixes: []string{"/auth/", "/healthz"},
			HostSignInURL:  cfg.Auth.SignInPath,
			LocalSignInURL: "/auth/sign-in",
			Accounts:       client,
			Env:            authsync.StaticEnvironment{IsVisible: true, IsEmbedded: false},
			Logger:         log,
		})
	}

	router := mux.NewRouter()
	router.Use(httputil.RecoveryMiddleware(log))
	router.Use(httputil.LoggingMiddleware(log))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	protected := router.PathPrefix("/").Subrouter()
	if guard != nil {
		protected.Use(routeguard.NewMiddleware(guard).Handler)
	}
	protected.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		status, ok := controller.Status("main")
		if !ok {
			httputil.WriteNotFound(w, "fragment not configured")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}).Methods("GET")

	if err := controller.Activate(ctx, "main", "root"); err != nil {
		log.WithError(err).Error("Fragment activation failed; serving failed status")
	}

	log.WithFields(logrus.Fields{"scope": *scope, "port": *port}).Info("Fragment listening")
	if err := http.ListenAndServe(":"+*port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// noopNavigator swallows redirect requests; standalone fragments surface
// sign-in through the route guard instead of a captured browser redirect.
type noopNavigator struct{}

func (noopNavigator) Navigate(url string) {}
