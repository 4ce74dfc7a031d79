package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hookwatch/internal/api"
	"hookwatch/internal/app"
	"hookwatch/internal/config"
	"hookwatch/internal/ingest"
	"hookwatch/internal/migrate"
	"hookwatch/internal/observability"
	"hookwatch/internal/providers/github"
	"hookwatch/internal/store"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite"
)

const dbPingTimeout = 10 * time.Second

type Runtime struct {
	Handler     http.Handler
	StorageMode string
	Cleanup     func()
}

func NewRuntime(ctx context.Context, cfg config.Config, logger logr.Logger) (*Runtime, error) {
	adapter := github.NewAdapter(cfg.GitHub.WebhookSecret)
	registry := ingest.NewRegistry(adapter)
	if err := registry.MustHaveProviders(); err != nil {
		return nil, err
	}
	repo, mode, cleanup, err := buildRepository(ctx, cfg, logger.WithName("store"))
	if err != nil {
		return nil, err
	}
	if !adapter.SignatureConfigured() {
		logger.Info("WARNING: webhook signature verification is disabled; set GITHUB_WEBHOOK_SECRET")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coordinator, err := registry.Coordinator(github.Provider, repo, logger.WithName("ingest"))
	if err != nil {
		cleanup()
		return nil, err
	}
	coordinator.Recorder = observability.NewIngestMetrics(promRegistry)

	server := api.NewServer(app.NewService(repo, coordinator), api.ServerOptions{
		RateLimit: api.RateLimitPolicy{
			Enabled:          cfg.RateLimit.Enabled,
			WebhookPerMinute: cfg.RateLimit.WebhookPerMinute,
			ReadPerMinute:    cfg.RateLimit.ReadPerMinute,
			TrustedProxies:   cfg.RateLimit.TrustedProxies,
		},
		StorageMode:  mode,
		PollInterval: cfg.PollInterval,
		Providers:    registry.Providers(),
		Logger:       logger.WithName("api"),
	})

	metrics := observability.NewHTTPMetrics(promRegistry)
	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	rootMux.Handle("/", metrics.Wrap(server.Routes()))

	return &Runtime{
		Handler:     rootMux,
		StorageMode: mode,
		Cleanup:     cleanup,
	}, nil
}

// openPool opens the configured database without connecting. SQLite gets a
// single connection and a busy timeout so concurrent writers queue instead of
// failing with SQLITE_BUSY.
func openPool(cfg config.Config) (*sql.DB, error) {
	dsn := applyPostgresTLS(cfg)
	if cfg.DBDialect == "sqlite" {
		dsn = applySQLitePragmas(dsn)
	}
	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, err
	}
	if cfg.DBDialect == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenDB opens and pings the configured database.
func OpenDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := openPool(cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// buildRepository returns the SQL repository whenever a database is
// configured, even if it is unreachable right now: writes then fail with a
// storage error and senders retry. Schema migration runs lazily on first use.
// The in-memory store is used only without a database or when
// DBFallbackMemory is set.
func buildRepository(ctx context.Context, cfg config.Config, logger logr.Logger) (store.Repository, string, func(), error) {
	memory := func() (store.Repository, string, func(), error) {
		return store.NewMemoryRepository(), "memory", func() {}, nil
	}
	if cfg.DBDriver == "" || cfg.DBDSN == "" {
		logger.Info("running with in-memory repository")
		return memory()
	}

	db, err := openPool(cfg)
	if err != nil {
		if cfg.DBFallbackMemory {
			logger.Error(err, "db driver unavailable, falling back to in-memory repository")
			return memory()
		}
		return nil, "", nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	pingErr := db.PingContext(pingCtx)
	cancel()
	if pingErr != nil {
		if cfg.DBFallbackMemory {
			logger.Error(pingErr, "db unavailable, falling back to in-memory repository")
			_ = db.Close()
			return memory()
		}
		logger.Error(pingErr, "db unavailable at startup; requests will fail until it recovers")
	}

	opts := []store.SQLOption{store.WithTimeout(cfg.DBTimeout)}
	if cfg.DBMigrate {
		migrateLog := logger.WithName("migrate")
		opts = append(opts, store.WithInit(func(ctx context.Context, db *sql.DB) error {
			applied, err := migrate.Default().Apply(ctx, db, cfg.DBDialect)
			if err != nil {
				migrateLog.Error(err, "migration apply failed")
				return err
			}
			migrateLog.Info("migrations applied", "count", len(applied), "versions", applied)
			return nil
		}))
	}

	repo, err := store.NewSQLRepository(db, cfg.DBDialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, "", nil, err
	}
	if cfg.DBMigrate && pingErr == nil {
		// Migrate eagerly while the database is reachable.
		if _, err := repo.Query(ctx, store.Query{Limit: 1}); err != nil {
			logger.Error(err, "initial schema check failed")
		}
	}
	logger.Info("running with SQL repository", "dialect", cfg.DBDialect, "timeout", cfg.DBTimeout.String())
	return repo, "sql:" + repo.Dialect(), func() { _ = db.Close() }, nil
}

func applyPostgresTLS(cfg config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver != "pgx" {
		return cfg.DBDSN
	}
	if strings.TrimSpace(cfg.DB.SSLMode) == "" &&
		strings.TrimSpace(cfg.DB.SSLRootCert) == "" &&
		strings.TrimSpace(cfg.DB.SSLCert) == "" &&
		strings.TrimSpace(cfg.DB.SSLKey) == "" {
		return cfg.DBDSN
	}
	u, err := url.Parse(cfg.DBDSN)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg.DBDSN
	}
	q := u.Query()
	if strings.TrimSpace(cfg.DB.SSLMode) != "" {
		q.Set("sslmode", strings.TrimSpace(cfg.DB.SSLMode))
	}
	if strings.TrimSpace(cfg.DB.SSLRootCert) != "" {
		q.Set("sslrootcert", strings.TrimSpace(cfg.DB.SSLRootCert))
	}
	if strings.TrimSpace(cfg.DB.SSLCert) != "" {
		q.Set("sslcert", strings.TrimSpace(cfg.DB.SSLCert))
	}
	if strings.TrimSpace(cfg.DB.SSLKey) != "" {
		q.Set("sslkey", strings.TrimSpace(cfg.DB.SSLKey))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

const sqliteBusyTimeoutMillis = 5000

// applySQLitePragmas adds a busy timeout to a modernc sqlite DSN unless the
// DSN already sets one.
func applySQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, sqliteBusyTimeoutMillis)
}
