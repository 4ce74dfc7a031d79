package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hookwatch/internal/config"
	"hookwatch/internal/migrate"
	"hookwatch/internal/model"
	"hookwatch/internal/providers/shared"
	"hookwatch/internal/store"

	"github.com/go-logr/logr"
)

func testConfig() config.Config {
	return config.Config{
		Addr:         ":0",
		DBMigrate:    true,
		DBTimeout:    time.Second,
		PollInterval: 5 * time.Second,
		GitHub:       config.GitHubConfig{WebhookSecret: "topsecret"},
	}
}

func TestRuntimeMemoryEndToEnd(t *testing.T) {
	rt, err := NewRuntime(context.Background(), testConfig(), logr.Discard())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Cleanup()
	if rt.StorageMode != "memory" {
		t.Fatalf("expected memory mode, got %s", rt.StorageMode)
	}

	body := `{"ref":"refs/heads/main","pusher":{"name":"alice"},"commits":[{"id":"abcdef1234567","timestamp":"2024-01-01T00:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", shared.SignSHA256("topsecret", []byte(body)))
	res := httptest.NewRecorder()
	rt.Handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	rt.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	metrics := res.Body.String()
	if !strings.Contains(metrics, `hookwatch_ingest_deliveries_total{event_type="push",outcome="stored"} 1`) {
		t.Fatalf("expected ingest metric, got:\n%s", metrics)
	}
	if !strings.Contains(metrics, "hookwatch_http_requests_total") {
		t.Fatalf("expected http metrics")
	}
}

func TestRuntimeSQLiteAndFallback(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "sqlite"
	cfg.DBDialect = "sqlite"
	cfg.DBDSN = "file:bootstrap_test?mode=memory&cache=shared"
	rt, err := NewRuntime(context.Background(), cfg, logr.Discard())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Cleanup()
	if rt.StorageMode != "sql:sqlite" {
		t.Fatalf("expected sqlite mode, got %s", rt.StorageMode)
	}

	res := httptest.NewRecorder()
	rt.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]interface{}
	if err := json.Unmarshal(res.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["storage"] != "connected" || health["storage_mode"] != "sql:sqlite" {
		t.Fatalf("unexpected health %v", health)
	}
}

func TestRuntimeUnreachableDatabaseFailsDeliveries(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "sqlite"
	cfg.DBDialect = "sqlite"
	cfg.DBDSN = "file:" + filepath.Join(t.TempDir(), "missing", "dir", "events.db")

	rt, err := NewRuntime(context.Background(), cfg, logr.Discard())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Cleanup()
	if rt.StorageMode != "sql:sqlite" {
		t.Fatalf("expected sql storage to be kept, got %s", rt.StorageMode)
	}

	body := `{"ref":"refs/heads/main","pusher":{"name":"alice"},"commits":[{"id":"abcdef1234567","timestamp":"2024-01-01T00:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", shared.SignSHA256("topsecret", []byte(body)))
	res := httptest.NewRecorder()
	rt.Handler.ServeHTTP(res, req)
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the sender retries, got %d: %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	rt.Handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]interface{}
	if err := json.Unmarshal(res.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "degraded" || health["storage"] != "disconnected" {
		t.Fatalf("unexpected health %v", health)
	}
}

func TestRuntimeMemoryFallbackIsOptIn(t *testing.T) {
	bad := testConfig()
	bad.DBDriver = "no-such-driver"
	bad.DBDialect = "postgres"
	bad.DBDSN = "whatever"
	if _, err := NewRuntime(context.Background(), bad, logr.Discard()); err == nil {
		t.Fatalf("expected an error for an unusable database without fallback")
	}

	bad.DBFallbackMemory = true
	fallback, err := NewRuntime(context.Background(), bad, logr.Discard())
	if err != nil {
		t.Fatalf("fallback runtime: %v", err)
	}
	defer fallback.Cleanup()
	if fallback.StorageMode != "memory" {
		t.Fatalf("expected fallback to memory, got %s", fallback.StorageMode)
	}
}

func TestOpenDBSQLiteConcurrentSaves(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "sqlite"
	cfg.DBDialect = "sqlite"
	cfg.DBDSN = "file:" + filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := migrate.Default().Apply(ctx, db, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo, err := store.NewSQLRepository(db, "sqlite")
	if err != nil {
		t.Fatalf("repository: %v", err)
	}

	const (
		workers    = 64
		requestIDs = 8
	)
	var (
		wg                sync.WaitGroup
		mu                sync.Mutex
		stored, duplicate int
		failures          []error
	)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := model.Event{
				RequestID: fmt.Sprintf("r%d", i%requestIDs),
				Author:    "alice",
				Action:    model.ActionPush,
				ToBranch:  "main",
				Timestamp: base.Add(time.Duration(i%requestIDs) * time.Minute),
			}
			inserted, err := repo.Save(ctx, ev)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case inserted:
				stored++
			default:
				duplicate++
			}
		}(i)
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("expected no storage errors, got %d, first: %v", len(failures), failures[0])
	}
	if stored != requestIDs || duplicate != workers-requestIDs {
		t.Fatalf("expected %d stored and %d duplicate, got %d and %d", requestIDs, workers-requestIDs, stored, duplicate)
	}
}

func TestApplySQLitePragmas(t *testing.T) {
	cases := map[string]string{
		"/var/lib/hookwatch.db":               "/var/lib/hookwatch.db?_pragma=busy_timeout(5000)",
		"file:hookwatch.db?mode=rwc":          "file:hookwatch.db?mode=rwc&_pragma=busy_timeout(5000)",
		"file:x.db?_pragma=busy_timeout(100)": "file:x.db?_pragma=busy_timeout(100)",
	}
	for in, want := range cases {
		if got := applySQLitePragmas(in); got != want {
			t.Fatalf("%s: got %s want %s", in, got, want)
		}
	}
}

func TestApplyPostgresTLS(t *testing.T) {
	cfg := config.Config{DBDriver: "pgx", DBDSN: "postgres://u:p@db:5432/hookwatch"}
	if got := applyPostgresTLS(cfg); got != cfg.DBDSN {
		t.Fatalf("expected dsn unchanged without tls settings, got %s", got)
	}
	cfg.DB.SSLMode = "verify-full"
	cfg.DB.SSLRootCert = "/etc/ca.crt"
	got := applyPostgresTLS(cfg)
	if !strings.Contains(got, "sslmode=verify-full") || !strings.Contains(got, "sslrootcert=%2Fetc%2Fca.crt") {
		t.Fatalf("expected tls params in dsn, got %s", got)
	}
	cfg.DBDriver = "sqlite"
	if got := applyPostgresTLS(cfg); got != cfg.DBDSN {
		t.Fatalf("expected non-pgx dsn unchanged, got %s", got)
	}
}
