package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mutex/app/controller"
	"github.com/vibast-solutions/ms-go-mutex/app/lock"
	"github.com/vibast-solutions/ms-go-mutex/config"
)

func newTestServer(t *testing.T) *http.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{Store: "memory", KeyPrefix: "test:", TTL: time.Minute, WaitInterval: 10 * time.Millisecond, ShutdownCleanup: true}
	store, err := buildStore(cfg)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	manager, err := buildManager(cfg, store, logger)
	if err != nil {
		t.Fatalf("buildManager: %v", err)
	}

	e := setupHTTPServer(controller.NewLockController(manager, store, logger))
	e.Logger.SetOutput(io.Discard)
	return &http.Server{Handler: e}
}

func serve(server *http.Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSetupHTTPServerHealthRoute(t *testing.T) {
	server := newTestServer(t)

	rec := serve(server, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}

func TestSetupHTTPServerLockRoutes(t *testing.T) {
	server := newTestServer(t)

	rec := serve(server, http.MethodPost, "/locks/job:send-campaign-7", `{"timeout_ms":0}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"acquired":true`) {
		t.Fatalf("acquire: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(server, http.MethodGet, "/locks", "")
	if !strings.Contains(rec.Body.String(), "job:send-campaign-7") {
		t.Fatalf("list: %s", rec.Body.String())
	}

	rec = serve(server, http.MethodPut, "/locks/job:send-campaign-7/refresh", `{"ttl_ms":120000}`)
	if !strings.Contains(rec.Body.String(), `"refreshed":true`) {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(server, http.MethodGet, "/locks/job:send-campaign-7", "")
	if !strings.Contains(rec.Body.String(), `"acquired":true`) {
		t.Fatalf("status: %s", rec.Body.String())
	}

	rec = serve(server, http.MethodDelete, "/locks/job:send-campaign-7", "")
	if !strings.Contains(rec.Body.String(), `"released":true`) {
		t.Fatalf("release: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSetupHTTPServerMetricsRoute(t *testing.T) {
	server := newTestServer(t)

	rec := serve(server, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mutex_acquire_total") {
		t.Fatalf("metrics output missing counters: %s", rec.Body.String())
	}
}

func TestBuildStoreRejectsUnknownBackend(t *testing.T) {
	if _, err := buildStore(&config.Config{Store: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}

func TestBuildManagerMapsConfig(t *testing.T) {
	store := lock.NewMemoryStore()
	_ = store.Connect(context.Background())

	cfg := &config.Config{KeyPrefix: "app:", HashKey: true, TTL: 5 * time.Second, WaitInterval: 10 * time.Millisecond, AutoRelease: true, ShutdownCleanup: true, Reentrant: true}
	manager, err := buildManager(cfg, store, logrus.New())
	if err != nil {
		t.Fatalf("buildManager: %v", err)
	}
	opts := manager.Options()
	if opts.KeyPrefix != "app:" || !opts.HashKey || !opts.AutoRelease || !opts.Reentrant || opts.TTL != cfg.TTL {
		t.Fatalf("options not mapped: %+v", opts)
	}

	if _, err := buildManager(&config.Config{}, store, logrus.New()); err == nil {
		t.Fatalf("expected error for zero TTL")
	}
}
