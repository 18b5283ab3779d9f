package config_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dcc/internal/config"
)

var envKeys = []string{
	"DCC_BACKEND", "DCC_FIRESTORE_PROJECT", "DCC_FIRESTORE_DATABASE", "DCC_SQLITE_PATH",
	"DCC_BASE_PATH", "DCC_LISTEN_ADDR", "DCC_POLL_INTERVAL", "DCC_AI_MODEL",
}

// loadWithEnv builds a config in a temp dir with a clean DCC_* environment.
func loadWithEnv(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.New(t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return cfg
}

func TestNew_DefaultDirUsesXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg, err := config.New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(xdg, "dcc")
	if cfg.Dir != want {
		t.Errorf("expected %q, got %q", want, cfg.Dir)
	}
	if cfg.TokenPath() != filepath.Join(want, "token.json") {
		t.Errorf("unexpected token path %q", cfg.TokenPath())
	}
	if cfg.UserPath() != filepath.Join(want, "user.json") {
		t.Errorf("unexpected user path %q", cfg.UserPath())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWithEnv(t, nil)

	if cfg.Backend != config.BackendFirestore {
		t.Errorf("expected firestore backend, got %q", cfg.Backend)
	}
	if cfg.FirestoreDatabase != "(default)" {
		t.Errorf("expected (default) database, got %q", cfg.FirestoreDatabase)
	}
	if cfg.SQLitePath != filepath.Join(cfg.Dir, "dcc.db") {
		t.Errorf("unexpected sqlite path %q", cfg.SQLitePath)
	}
	if cfg.BasePath != "/" {
		t.Errorf("expected base path /, got %q", cfg.BasePath)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.ListenAddr)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.PollInterval)
	}
	if cfg.AIModel != "gemini-1.5-flash" {
		t.Errorf("expected gemini-1.5-flash, got %q", cfg.AIModel)
	}
}

func TestLoad_EnvValues(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{
		"DCC_BACKEND":            "SQLite",
		"DCC_FIRESTORE_PROJECT":  "family-tasks",
		"DCC_FIRESTORE_DATABASE": "tasks-db",
		"DCC_SQLITE_PATH":        "/tmp/x.db",
		"DCC_BASE_PATH":          "/command-center/",
		"DCC_LISTEN_ADDR":        "127.0.0.1:9000",
		"DCC_POLL_INTERVAL":      "500ms",
		"DCC_AI_MODEL":           "gemini-1.5-pro",
	})

	if cfg.Backend != config.BackendSQLite {
		t.Errorf("expected sqlite, got %q", cfg.Backend)
	}
	if cfg.FirestoreProject != "family-tasks" || cfg.FirestoreDatabase != "tasks-db" {
		t.Errorf("unexpected firestore settings %q %q", cfg.FirestoreProject, cfg.FirestoreDatabase)
	}
	if cfg.SQLitePath != "/tmp/x.db" {
		t.Errorf("unexpected sqlite path %q", cfg.SQLitePath)
	}
	if cfg.BasePath != "/command-center/" {
		t.Errorf("unexpected base path %q", cfg.BasePath)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", cfg.PollInterval)
	}
	if cfg.AIModel != "gemini-1.5-pro" {
		t.Errorf("unexpected model %q", cfg.AIModel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_SettingsFile(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("DCC_AI_MODEL", "from-env")

	cfg, _ := config.New(t.TempDir())
	yaml := "backend: sqlite\nai_model: from-file\npoll_interval: 5s\n"
	if err := os.WriteFile(cfg.SettingsPath(), []byte(yaml), 0600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Backend != config.BackendSQLite {
		t.Errorf("expected backend from file, got %q", cfg.Backend)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("expected 5s from file, got %v", cfg.PollInterval)
	}
	if cfg.AIModel != "from-env" {
		t.Errorf("expected env to override file, got %q", cfg.AIModel)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{
		"DCC_BASE_PATH":     "api",
		"DCC_POLL_INTERVAL": "soon",
	})

	err := cfg.Validate()
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "configuration error: ") {
		t.Errorf("unexpected message %q", err.Error())
	}
	for _, want := range []string{"DCC_FIRESTORE_PROJECT", "DCC_BASE_PATH", "DCC_POLL_INTERVAL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{"DCC_BACKEND": "postgres"})

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DCC_BACKEND") {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestLogger(t *testing.T) {
	cfg, _ := config.New(t.TempDir())
	if cfg.Logger().Writer() != io.Discard {
		t.Error("expected discarding logger without --debug")
	}

	cfg.Debug = true
	if cfg.Logger().Writer() != os.Stderr {
		t.Error("expected stderr logger with --debug")
	}
}

func TestEnsureDir_Mode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dcc")
	cfg, _ := config.New(dir)

	if err := cfg.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("expected mode 0700, got %o", info.Mode().Perm())
	}
	if cfg.HasToken() || cfg.HasOAuthClient() {
		t.Error("expected no token or client in fresh dir")
	}
}
