package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vaxtrax/internal/config"
	"vaxtrax/pkg/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "--", "-16", "-14", "-10")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	want := "-16\tSafe\n-14\tAt Risk\n-10\tUnsafe\n"
	if out != want {
		t.Fatalf("unexpected output %q", out)
	}
	out, err = run(t, "classify", "--min=-30", "--max=-25", "--", "-26")
	if err != nil || !strings.Contains(out, "Safe") {
		t.Fatalf("custom limits: %q %v", out, err)
	}
	if _, err := run(t, "classify", "warm"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := run(t, "classify", "--min=-10", "--max=-20", "--", "-15"); err == nil {
		t.Fatalf("expected inverted limits error")
	}
}

func TestSeedCommandPrintsDemoBatches(t *testing.T) {
	out, err := run(t, "seed", "--seed", "3")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	var batches []domain.Batch
	if err := json.Unmarshal([]byte(out), &batches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(batches) != 5 || batches[4].Stage != domain.StagePatient {
		t.Fatalf("unexpected seed output %+v", batches)
	}
}

func TestSeedImportIntoSQLite(t *testing.T) {
	t.Setenv("VAXTRAX_STORAGE_DRIVER", "sqlite")
	t.Setenv("VAXTRAX_SQLITE_PATH", t.TempDir()+"/vt.db")
	out, err := run(t, "seed", "--import")
	if err != nil || !strings.Contains(out, "imported 5 batches") {
		t.Fatalf("first import: %q %v", out, err)
	}
	out, err = run(t, "seed", "--import")
	if err != nil || !strings.Contains(out, "imported 0 batches") {
		t.Fatalf("second import must skip existing: %q %v", out, err)
	}
}

func testConfig() config.Config {
	return config.Config{
		LogLevel:       "info",
		StorageDriver:  "memory",
		AuditDriver:    "memory",
		BlobDriver:     "memory",
		AuditBuffer:    16,
		AuditTimeout:   time.Second,
		SessionSecret:  "test",
		SessionTTL:     time.Hour,
		Demo:           true,
		DemoSeed:       5,
		MetricsBackend: "prometheus",
	}
}

func TestBuildAppServesAPI(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	a, err := buildApp(context.Background(), testConfig(), logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()

	body := strings.NewReader(`{"email":"admin@vaxtrax.com","password":"admin123"}`)
	resp, err = http.Post(srv.URL+"/login", "application/json", body)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %v %d", err, resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&login)
	_ = resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/batches", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	var batches []domain.Batch
	_ = json.NewDecoder(resp.Body).Decode(&batches)
	_ = resp.Body.Close()
	if len(batches) != 5 {
		t.Fatalf("expected demo batches, got %d", len(batches))
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(raw), "vaxtrax_registry_operation_duration_seconds") {
		t.Fatalf("expected registry histogram in exposition")
	}
}

func TestBuildAppRejectsBadStorage(t *testing.T) {
	cfg := testConfig()
	cfg.StorageDriver = "redis"
	if _, err := buildApp(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected storage error")
	}
}

func TestBuildMetricsBackends(t *testing.T) {
	for _, backend := range []string{"prometheus", "expvar", "none"} {
		cfg := testConfig()
		cfg.MetricsBackend = backend
		rec, h, err := buildMetrics(cfg)
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if (rec == nil) != (backend == "none") || (h == nil) != (backend == "none") {
			t.Fatalf("%s: unexpected recorder/handler presence", backend)
		}
	}
}
