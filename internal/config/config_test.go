package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.toml"))
	if err == nil {
		_ = cfg
	}
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 9090
log_level = "debug"
data_dir = "` + dir + `"

[admin]
enabled = true
port = 9091

[session]
cookie_name = "sid"
max_age_seconds = 3600
secure = true
http_only = true
same_site = "lax"
fingerprint_mode = "soft"
save_strategy = "immediate"
storage_backend = "memory"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Admin.Port != 9091 {
		t.Errorf("Admin.Port: got %d, want 9091", cfg.Admin.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Session.CookieName != "sid" {
		t.Errorf("Session.CookieName: got %q, want %q", cfg.Session.CookieName, "sid")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 8080
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("WEBCORE_SERVER_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Port with env override: got %d, want 8888", cfg.Server.Port)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestLoad_ValidationFailure_SamePorts(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "same-ports.toml")

	content := `
[server]
port = 7777
log_level = "info"
data_dir = "` + dir + `"

[admin]
enabled = true
port = 7777
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for same ports")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Admin.Port != DefaultAdminPort {
		t.Errorf("Admin.Port: got %d, want %d", cfg.Admin.Port, DefaultAdminPort)
	}
	if cfg.Resilience.RetryMaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("RetryMaxAttempts: got %d, want %d", cfg.Resilience.RetryMaxAttempts, DefaultRetryMaxAttempts)
	}
	if cfg.Resilience.CBEnabled != true {
		t.Error("CBEnabled: got false, want true")
	}
	if cfg.Cache.Response.MaxEntries != DefaultResponseCacheMaxEntries {
		t.Errorf("Cache.Response.MaxEntries: got %d, want %d", cfg.Cache.Response.MaxEntries, DefaultResponseCacheMaxEntries)
	}
}

func TestResilienceConfig_DurationHelpers(t *testing.T) {
	r := ResilienceConfig{RetryBaseDelayMs: 250, RetryMaxDelayMs: 5000, CBResetTimeoutSec: 30}

	if got := r.RetryBaseDelay().Milliseconds(); got != 250 {
		t.Errorf("RetryBaseDelay: got %dms, want 250ms", got)
	}
	if got := r.RetryMaxDelay().Milliseconds(); got != 5000 {
		t.Errorf("RetryMaxDelay: got %dms, want 5000ms", got)
	}
	if got := r.CBResetTimeout().Seconds(); got != 30 {
		t.Errorf("CBResetTimeout: got %fs, want 30s", got)
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "exported.toml")

	cfg := DefaultConfig()
	set(cfg)

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported config is empty")
	}
}

func TestImportConfig(t *testing.T) {
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.toml")

	content := `
[server]
port = 9999
log_level = "warn"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(importPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := ImportConfig(importPath); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.Port != 9999 {
		t.Errorf("Port after import: got %d, want 9999", cfg.Server.Port)
	}

	set(DefaultConfig())
}
