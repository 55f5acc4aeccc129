package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livereload/internal/artifact"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "library: /srv/libgame.so\naddr: :9999\ntick_ms: 5\nreload_every: 3\ndebounce_ms: 200\nretry_unloaded: true\nwatch_buffer: 16\nlog_format: console\ncors_origins: [\"http://localhost:3000\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Library != "/srv/libgame.so" || cfg.Addr != ":9999" || cfg.TickMS != 5 || cfg.ReloadEvery != 3 || cfg.DebounceMS != 200 || cfg.WatchBuffer != 16 || !cfg.RetryUnloaded || cfg.LogFormat != "console" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"lib_dir":"/libs","lib_name":"game","addr":":7070","fail_on_reload_error":true,"log_level":"debug"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LibDir != "/libs" || cfg.LibName != "game" || cfg.Addr != ":7070" || !cfg.FailOnReloadError || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "library=\"./libx.so\"\naddr=\":8081\"\ntick_ms=33\ncors_origins=[\"*\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Library != "./libx.so" || cfg.Addr != ":8081" || cfg.TickMS != 33 || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.TickMS != DefaultTickMS || cfg.ReloadEvery != DefaultReloadEvery || cfg.DebounceMS != DefaultDebounceMS {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg)
	}
	if cfg.Tick() != 16*time.Millisecond || cfg.Debounce() != time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.Tick(), cfg.Debounce())
	}
	kept := Config{TickMS: 5, LogFormat: "console"}.WithDefaults()
	if kept.TickMS != 5 || kept.LogFormat != "console" {
		t.Fatalf("explicit values overwritten: %+v", kept)
	}
}

func TestArtifactPath(t *testing.T) {
	d := t.TempDir()
	got, err := Config{Library: filepath.Join(d, "libgame.so")}.ArtifactPath()
	if err != nil || got != filepath.Join(d, "libgame.so") {
		t.Fatalf("library: %q, %v", got, err)
	}
	got, err = Config{LibDir: d, LibName: "game"}.ArtifactPath()
	if err != nil || got != filepath.Join(d, artifact.FileName("game")) {
		t.Fatalf("lib_dir: %q, %v", got, err)
	}
	if _, err := (Config{}).ArtifactPath(); err == nil {
		t.Fatalf("expected error without artifact")
	}
	if _, err := (Config{LibDir: filepath.Join(d, "missing"), LibName: "game"}).ArtifactPath(); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing lib_dir error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{Library: "x", LogFormat: "json"}).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := (Config{LogFormat: "xml"}).Validate(); err == nil {
		t.Fatalf("expected log_format error")
	}
	if err := (Config{Library: "x", LibName: "y"}).Validate(); err == nil {
		t.Fatalf("expected mutual exclusion error")
	}
	if err := (Config{Library: "x", WatchBuffer: -1}).Validate(); err == nil {
		t.Fatalf("expected watch_buffer error")
	}
}
