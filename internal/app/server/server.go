package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"appraisal/internal/domain/appraisal"
	"appraisal/internal/domain/appraisal/memstore"
	"appraisal/internal/domain/audit"
	"appraisal/internal/domain/auth"
	"appraisal/internal/domain/notifications"
	"appraisal/internal/platform/config"
	"appraisal/internal/platform/db"
	"appraisal/internal/platform/email"
	"appraisal/internal/platform/jobs"
	"appraisal/internal/platform/metrics"
	"appraisal/internal/platform/sqlite"
	"appraisal/internal/transport/http/api"
	appraisalhandler "appraisal/internal/transport/http/handlers/appraisal"
	notificationshandler "appraisal/internal/transport/http/handlers/notifications"
	"appraisal/internal/transport/http/middleware"
)

const devJWTSecret = "dev-secret-change-me"

type App struct {
	Config   config.Config
	Router   http.Handler
	Metrics  *metrics.Collector
	Jobs     *jobs.Service
	TenantID string

	ping  func(context.Context) error
	close func()
}

// backend is one storage mode's set of stores.
type backend struct {
	store    appraisal.StoreAPI
	audit    audit.Log
	notify   notifications.StoreAPI
	runs     jobs.RunRecorder
	tenantID string
	ping     func(context.Context) error
	close    func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if cfg.JWTSecret == "" && cfg.Environment != "production" {
		slog.Warn("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = devJWTSecret
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	notifySvc := notifications.New(b.notify, email.New(cfg))
	notifySvc.DefaultFrom = cfg.EmailFrom

	svc := appraisal.NewService(b.store)
	svc.Notify = notifySvc
	svc.Metrics = collector

	app := &App{
		Config:   cfg,
		Metrics:  collector,
		Jobs:     jobs.New(b.runs, svc, cfg),
		TenantID: b.tenantID,
		ping:     b.ping,
		close:    b.close,
	}
	app.Router = app.routes(svc, notifySvc, b.audit)

	if cfg.Environment == "development" {
		logDemoTokens(cfg.JWTSecret, b.tenantID)
	}
	return app, nil
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Driver() {
	case "postgres":
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return backend{}, fmt.Errorf("db connect failed: %w", err)
		}
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
				pool.Close()
				return backend{}, fmt.Errorf("migrations failed: %w", err)
			}
		}
		tenantID := ""
		if cfg.RunSeed {
			if tenantID, err = db.Seed(ctx, pool, cfg); err != nil {
				pool.Close()
				return backend{}, fmt.Errorf("seed failed: %w", err)
			}
		}
		return backend{
			store:    appraisal.NewStore(pool),
			audit:    audit.New(pool),
			notify:   notifications.NewStore(pool),
			runs:     jobs.PgRuns{DB: pool},
			tenantID: tenantID,
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	case "sqlite":
		store, err := sqlite.New(cfg.SQLitePath())
		if err != nil {
			return backend{}, err
		}
		b := inProcessBackend(cfg, store)
		b.ping = store.Ping
		b.close = func() {
			if err := store.Close(); err != nil {
				slog.Warn("sqlite close failed", "err", err)
			}
		}
		if cfg.RunSeed {
			if err := db.SeedDemo(ctx, store, db.DemoTenantID); err != nil {
				store.Close()
				return backend{}, fmt.Errorf("seed failed: %w", err)
			}
		}
		return b, nil

	case "memory":
		store := memstore.New()
		b := inProcessBackend(cfg, store)
		if cfg.RunSeed {
			if err := db.SeedDemo(ctx, store, db.DemoTenantID); err != nil {
				return backend{}, fmt.Errorf("seed failed: %w", err)
			}
		}
		return b, nil
	}
	return backend{}, fmt.Errorf("unsupported DATABASE_URL %q", cfg.DatabaseURL)
}

// inProcessBackend keeps audit events and notifications in memory next to a
// single-node appraisal store.
func inProcessBackend(cfg config.Config, store appraisal.StoreAPI) backend {
	notify := notifications.NewMemoryStore(cfg.EmailEnabled, cfg.EmailFrom)
	for _, p := range db.DemoPeople {
		notify.SetUserEmail(db.DemoTenantID, p.UserID, p.Email)
	}
	return backend{
		store:    store,
		audit:    audit.NewMemoryLog(),
		notify:   notify,
		tenantID: db.DemoTenantID,
		ping:     func(context.Context) error { return nil },
		close:    func() {},
	}
}

func (a *App) routes(svc *appraisal.Service, notifySvc *notifications.Service, auditLog audit.Log) http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(a.Metrics))
	}
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		appraisalhandler.NewHandler(svc, auth.StaticPermissions{}, auditLog).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
	})
	return router
}

func (a *App) Close() {
	if a.close != nil {
		a.close()
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func Run() error {
	cfg := config.Load()
	configureLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("appraisal server listening", "addr", cfg.Addr, "driver", cfg.Driver(), "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func configureLogging(cfg config.Config) {
	var handler slog.Handler
	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}

func logDemoTokens(secret, tenantID string) {
	if tenantID == "" {
		return
	}
	for _, p := range db.DemoPeople {
		token, err := auth.GenerateToken(secret, auth.Claims{
			UserID:     p.UserID,
			TenantID:   tenantID,
			EmployeeID: p.EmployeeID,
			Role:       p.Role,
		}, 12*time.Hour)
		if err != nil {
			slog.Warn("demo token failed", "name", p.Name, "err", err)
			continue
		}
		slog.Info("demo token", "name", p.Name, "role", p.Role, "employeeId", p.EmployeeID, "token", token)
	}
}
