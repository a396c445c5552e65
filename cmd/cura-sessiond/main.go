package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/cura/pkg/api"
	"github.com/platinummonkey/cura/pkg/async"
	"github.com/platinummonkey/cura/pkg/audit"
	"github.com/platinummonkey/cura/pkg/config"
	"github.com/platinummonkey/cura/pkg/directory"
	"github.com/platinummonkey/cura/pkg/kv"
	"github.com/platinummonkey/cura/pkg/middleware"
	"github.com/platinummonkey/cura/pkg/notify"
	"github.com/platinummonkey/cura/pkg/observability"
	"github.com/platinummonkey/cura/pkg/session"
	"github.com/platinummonkey/cura/pkg/sso"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides CURA_CONFIG_FILE)")
	flag.Parse()
	if *configFile != "" {
		_ = os.Setenv("CURA_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Session agent stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	shutdown := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout)
	defer func() {
		if err := shutdown.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("Shutdown finished with errors")
		}
	}()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", otelProviders.Shutdown)

	clock := clockwork.NewRealClock()
	tasks := async.NewGroup(log)
	shutdown.Register("background tasks", func(ctx context.Context) error {
		wait := time.Until(deadlineOr(ctx, time.Now().Add(10*time.Second)))
		if !tasks.Wait(wait) {
			return errors.New("background tasks still running")
		}
		return nil
	})

	health := observability.NewHealthChecker(version)

	// User directory
	dir, err := directory.Open(ctx, cfg.Directory.Driver, cfg.Directory.DSN, directory.Options{
		DeviceID:   cfg.Directory.DeviceID,
		BcryptCost: cfg.Directory.BcryptCost,
		Clock:      clock,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	shutdown.Register("directory", func(context.Context) error { return dir.Close() })
	health.RegisterDatabase("directory", dir.DB())

	if cfg.Directory.BootstrapAdminEmail != "" {
		uid, err := dir.BootstrapAdmin(ctx, cfg.Directory.BootstrapAdminEmail, cfg.Directory.BootstrapAdminUsername, cfg.Directory.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("failed to bootstrap administrator: %w", err)
		}
		if uid != "" {
			log.WithField("uid", uid).Info("Created bootstrap administrator")
		}
	}

	// Session cache
	cache, redisStore, err := openCache(cfg.Cache, log)
	if err != nil {
		return err
	}
	shutdown.Register("session cache", func(context.Context) error { return cache.Close() })
	if redisStore != nil {
		health.RegisterRedis("session-cache", redisStore.Client())
	}

	// Metrics
	var (
		registry    *prometheus.Registry
		promMetrics *observability.Metrics
		sessMetrics session.Metrics
	)
	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		return err
	}
	sessMetrics = otelMetrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promMetrics = observability.NewMetrics(registry)
		sessMetrics = observability.MultiMetrics{promMetrics, otelMetrics}
	}

	// Notifications
	sinks := []notify.Sink{notify.NewLogSink(log)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Secret:  cfg.Notify.WebhookSecret,
			Timeout: cfg.Notify.WebhookTimeout,
		}))
	}
	if promMetrics != nil {
		for i, sink := range sinks {
			sinks[i] = observability.InstrumentSink(sink, promMetrics)
		}
	}
	dispatcher := notify.NewDispatcher(notify.Config{SuppressionWindow: cfg.Notify.SuppressionWindow}, log, sinks...)

	// Audit trail
	auditLoggers := []audit.Logger{audit.NewLogrusLogger(log)}
	if cfg.Audit.Dir != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			Dir:      cfg.Audit.Dir,
			MaxSize:  cfg.Audit.MaxSize,
			MaxFiles: cfg.Audit.MaxFiles,
			Clock:    clock,
		})
		if err != nil {
			return err
		}
		auditLoggers = append(auditLoggers, fileLogger)
	}
	auditLog := audit.NewMultiLogger(auditLoggers...)
	shutdown.Register("audit", func(context.Context) error { return auditLog.Close() })

	backend := dir.Backend()
	backend.Notifier = dispatcher

	// Federated identity providers
	providers, err := sso.LoadRegistry(ctx, sso.NewProviderFactory(cfg.SSO.BaseURL), cfg.SSO.Providers)
	if err != nil {
		return err
	}
	var federated session.FederatedAuthenticator
	if len(providers.Names()) > 0 {
		federated = sso.NewAuthenticator(backend, providers, clock, log, tasks)
		log.WithField("providers", providers.Names()).Info("Federated login enabled")
	}

	breakGlass := session.BreakGlassConfig{Enabled: cfg.Session.BreakGlassEnabled}
	if breakGlass.Enabled {
		breakGlass.Credentials, err = session.ParseBreakGlassCredentials(cfg.Session.BreakGlassCredentials)
		if err != nil {
			return err
		}
	}

	store, err := session.New(session.Config{
		QuickLoginTTL:     cfg.Session.QuickLoginTTL,
		InactivityTimeout: cfg.Session.InactivityTimeout,
		ReconcileInterval: cfg.Session.ReconcileInterval,
		BreakGlass:        breakGlass,
	}, session.Options{
		Backend:   backend,
		Cache:     cache,
		Federated: federated,
		Clock:     clock,
		Logger:    log,
		Audit:     auditLog,
		Metrics:   sessMetrics,
		Tasks:     tasks,
	})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	shutdown.Register("session", store.Dispose)

	// HTTP API
	var limiter middleware.Limiter
	rateCfg := middleware.DefaultRateLimitConfig()
	if cfg.Server.LoginRatePerMinute > 0 {
		rateCfg.RequestsPerMinute = cfg.Server.LoginRatePerMinute
		rateCfg.BurstSize = cfg.Server.LoginBurst
		if redisStore != nil {
			limiter = middleware.NewDistributedRateLimiter(redisStore.Client(), rateCfg, clock, "")
		} else {
			limiter = middleware.NewRateLimiter(rateCfg, clock)
		}
	}

	server := api.NewServer(api.Options{
		Sessions:     store,
		Providers:    providers,
		Logger:       log,
		Metrics:      promMetrics,
		Registry:     registry,
		Health:       health,
		LoginLimiter: limiter,
		RateLimit:    rateCfg,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.Register("http server", httpServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"address": httpServer.Addr,
			"version": version,
		}).Info("Starting session agent")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down session agent")
		return shutdown.Shutdown(context.Background())
	})
	return g.Wait()
}

// openCache returns the configured session cache. The redis store is also returned so its
// connection can be shared.
func openCache(cfg config.CacheConfig, log *logrus.Logger) (kv.Store, *kv.RedisStore, error) {
	switch cfg.Type {
	case "memory":
		return kv.NewMemoryStore(), nil, nil
	case "redis":
		store, err := kv.NewRedisStore(kv.RedisConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		store, err := kv.NewFileStore(cfg.FilePath, log)
		if err != nil {
			return nil, nil, err
		}
		if !cfg.Watch {
			return unwatched{store}, nil, nil
		}
		return store, nil, nil
	}
}

// unwatched hides kv.Watcher so the session store does not follow edits from other processes
type unwatched struct {
	kv.Store
}

func deadlineOr(ctx context.Context, fallback time.Time) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return fallback
}
