package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mosaic-shell/mosaic/pkg/api"
	"github.com/mosaic-shell/mosaic/pkg/authbus"
	"github.com/mosaic-shell/mosaic/pkg/authsync"
	"github.com/mosaic-shell/mosaic/pkg/config"
	"github.com/mosaic-shell/mosaic/pkg/fragments"
	"github.com/mosaic-shell/mosaic/pkg/identity"
	"github.com/mosaic-shell/mosaic/pkg/observability"
	"github.com/mosaic-shell/mosaic/pkg/routeguard"
	"github.com/mosaic-shell/mosaic/pkg/session"
)

func main() {
	log := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetLevel(cfg.Observability.LogLevel)

	ctx := context.Background()

	promRegistry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	// Session store
	var store session.Store
	var sessionDB *session.SQLiteStore
	switch cfg.Session.Store {
	case "sqlite":
		sqlite, err := session.NewSQLiteStore(cfg.Session.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open session store: %v", err)
		}
		defer sqlite.Close()
		store = sqlite
		sessionDB = sqlite
	default:
		store = session.NewMemoryStore()
	}
	log.WithField("backend", cfg.Session.Store).Info("Session store initialized")

	// Auth event bus
	var port authbus.Port
	var redisClient *redis.Client
	switch cfg.Bus.Transport {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Bus.RedisURL,
			Password: cfg.Bus.RedisPassword,
			DB:       cfg.Bus.RedisDB,
		})
		redisPort, err := authbus.NewRedisPort(ctx, redisClient, cfg.Bus.Channel, log)
		if err != nil {
			log.Fatalf("Failed to connect auth bus to redis: %v", err)
		}
		defer redisPort.Close()
		port = redisPort
	default:
		hub := authbus.NewMemoryHub()
		defer hub.Close()
		port = hub.Attach()
	}
	bus := authbus.NewBus(port, "host", log)
	log.WithField("transport", cfg.Bus.Transport).Info("Auth bus initialized")
	if metrics != nil {
		bus.SetDropObserver(func(reason string) {
			metrics.BusEventsDropped.WithLabelValues(reason).Inc()
		})
		unsubscribe := bus.Subscribe(func(ev authbus.Event) {
			metrics.BusEventsReceived.WithLabelValues(string(ev.Type)).Inc()
		})
		defer unsubscribe()
	}

	// Fragment fetchers, registry, mount controller
	fetcher := fragments.NewSchemeFetcher()
	fetcher.Register("http", fragments.NewHTTPFetcher(nil))
	fetcher.Register("https", fragments.NewHTTPFetcher(nil))
	if cfg.Fragments.S3Region != "" {
		s3Fetcher, err := fragments.NewS3Fetcher(ctx, fragments.S3Config{
			Region:       cfg.Fragments.S3Region,
			Endpoint:     cfg.Fragments.S3Endpoint,
			UsePathStyle: cfg.Fragments.S3UsePathStyle,
		})
		if err != nil {
			log.Fatalf("Failed to build s3 fetcher: %v", err)
		}
		fetcher.Register("s3", s3Fetcher)
	}
	registry := fragments.NewRegistry(fetcher, log)
	if metrics != nil {
		registry.SetLoadObserver(func(scope string, duration time.Duration, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			metrics.FragmentLoadsTotal.WithLabelValues(scope, outcome).Inc()
			metrics.FragmentLoadDuration.WithLabelValues(scope).Observe(duration.Seconds())
		})
	}
	controller := fragments.NewController(registry, log)

	if cfg.Fragments.CatalogPath != "" {
		catalog, err := fragments.LoadCatalog(cfg.Fragments.CatalogPath)
		if err != nil {
			log.Fatalf("Failed to load fragment catalog: %v", err)
		}
		catalog.Apply(controller)
		log.WithField("slots", len(catalog.Fragments)).Info("Fragment catalog applied")
		go catalog.PreloadEntries(ctx, registry, log)

		if cfg.Fragments.WatchCatalog {
			watcher, err := fragments.WatchCatalog(cfg.Fragments.CatalogPath, log, func(c *fragments.Catalog) {
				c.Apply(controller)
			})
			if err != nil {
				log.Fatalf("Failed to watch fragment catalog: %v", err)
			}
			defer watcher.Close()
		}
	}

	// Identity client and host-side synchronizer
	nav := &api.CaptureNavigator{}
	var client identity.Client
	var refresher *identity.Refresher
	if cfg.Auth.Issuer != "" {
		oidcClient := identity.NewOIDCClient(identity.OIDCConfig{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			IssuerURL:    cfg.Auth.Issuer,
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       cfg.Auth.Scopes,
		}, store, identity.NewStoreBackplane(store), nav, log)
		client = oidcClient

		syncCfg := authsync.Config{
			AppName:   "host",
			Mode:      authsync.ModeHost,
			RouteType: authsync.RouteProtected,
			ClientFactory: func(ctx context.Context) (identity.Client, error) {
				if err := oidcClient.Initialize(ctx); err != nil {
					return nil, err
				}
				return oidcClient, nil
			},
			Store:           store,
			Bus:             bus,
			Env:             authsync.StaticEnvironment{IsVisible: true, IsEmbedded: false},
			Nav:             nav,
			HostSignInURL:   cfg.Auth.SignInPath,
			CurrentLocation: func() string { return "/" },
			Scopes:          cfg.Auth.Scopes,
			Logger:          log,
		}
		if metrics != nil {
			syncCfg.OnTransition = func(to authsync.Phase) {
				metrics.SyncTransitionsTotal.WithLabelValues("host", to.String()).Inc()
			}
			syncCfg.OnRedirectSuppressed = func(reason string) {
				metrics.SyncRedirectsSuppressed.WithLabelValues("host", reason).Inc()
			}
		}
		synchronizer, err := authsync.New(syncCfg)
		if err != nil {
			log.Fatalf("Failed to build auth synchronizer: %v", err)
		}
		defer synchronizer.Close()
		if err := synchronizer.Run(ctx); err != nil {
			log.WithError(err).Warn("Auth synchronizer did not reach ready")
		}

		// On a fresh deployment the quick-check finds no credential and
		// the synchronizer reaches ready without building the client, so
		// its logout hook was never registered. Wire it here so sign-out
		// through the HTTP surface still announces signed-out.
		if synchronizer.Client() == nil {
			oidcClient.OnLogout(func(identity.Account) {
				if err := bus.PublishSignedOut(context.Background()); err != nil {
					log.WithError(err).Warn("Failed to publish signed-out")
				}
			})
		}

		if cfg.Auth.RefreshSchedule != "" {
			refresher, err = identity.NewRefresher(cfg.Auth.RefreshSchedule, log)
			if err != nil {
				log.Fatalf("Invalid token refresh schedule: %v", err)
			}
			refresher.Register(oidcClient)
			if metrics != nil {
				refresher.OnResult = func(clientID string, err error) {
					outcome := "success"
					if err != nil {
						outcome = "error"
					}
					metrics.TokenRefreshesTotal.WithLabelValues(clientID, outcome).Inc()
				}
			}
			refresher.Start()
			defer refresher.Stop()
		}
	} else {
		log.Info("No identity provider configured; auth endpoints disabled")
	}

	// Route guard over protected fragment routes
	var guard *routeguard.Guard
	if client != nil {
		guard = routeguard.New(routeguard.Config{
			PublicPrefixes: []string{"/auth/", "/api/"},
			HostSignInURL:  cfg.Auth.SignInPath,
			Accounts:       client,
			Env:            authsync.StaticEnvironment{IsVisible: true, IsEmbedded: true},
			Logger:         log,
		})
	}

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, log)
		if err != nil {
			log.Fatalf("Failed to initialize telemetry: %v", err)
		}
	}

	// HTTP server
	server := api.NewServer(api.Config{
		Controller: controller,
		Registry:   registry,
		Guard:      guard,
		Bus:        bus,
		Store:      store,
		Client:     client,
		Nav:        nav,
		Metrics:    metrics,
		Logger:     log,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on the side port
	sideMux := http.NewServeMux()
	var healthDB *sql.DB
	if sessionDB != nil {
		healthDB = sessionDB.DB()
	}
	checker := observability.NewHealthChecker(healthDB, redisClient)
	observability.RegisterHealthRoutes(sideMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(sideMux, promRegistry)
	}
	sideServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: sideMux,
	}
	go func() {
		log.WithField("addr", sideServer.Addr).Info("Health endpoint listening")
		if err := sideServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Health server stopped")
		}
	}()

	// Graceful shutdown
	shutdown := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error {
		return sideServer.Shutdown(ctx)
	})
	if otelProviders != nil {
		shutdown.Register(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, log)
		})
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("Portal listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server stopped")
		}
	}()

	if err := shutdown.Wait(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
	}
}
