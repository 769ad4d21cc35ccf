package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_MODE", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendMock {
		t.Fatalf("backend = %q, want mock", cfg.Backend)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.HTTPClientRetries != 2 || cfg.HTTPClientTimeout != 10*time.Second {
		t.Fatalf("unexpected client settings: %+v", cfg)
	}
	if cfg.DefaultTransportType != "road" {
		t.Fatalf("default transport = %q", cfg.DefaultTransportType)
	}
}

func TestLoadHTTPBackendRequiresURLs(t *testing.T) {
	t.Setenv("BACKEND_MODE", "http")
	t.Setenv("STOCK_API_BASE_URL", "")
	t.Setenv("LOGISTICA_API_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when http backend has no base urls")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("COMPENSATION_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "BACKEND_MODE=http\nSTOCK_API_BASE_URL=http://stock\nLOGISTICA_API_BASE_URL=http://logistics\nHTTP_CLIENT_MAX_RETRIES=4\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registered so t.Setenv restores them once godotenv has set them.
	for _, k := range []string{"BACKEND_MODE", "STOCK_API_BASE_URL", "LOGISTICA_API_BASE_URL", "HTTP_CLIENT_MAX_RETRIES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendHTTP || cfg.StockBaseURL != "http://stock" || cfg.HTTPClientRetries != 4 {
		t.Fatalf("env file not applied: %+v", cfg)
	}
}
