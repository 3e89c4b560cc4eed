package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != nil || cfg.Test.RowLength != nil || cfg.Distance.Skip != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
url = "https://screen.example"
token = "abc"

[test]
start-level = "6/9"
row-length = 3
symbol-timeout = "8s"
viewing-distance-mm = 3000.0

[distance]
skip = true
target-frames = 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL == nil || *cfg.Server.URL != "https://screen.example" {
		t.Fatalf("unexpected url: %v", cfg.Server.URL)
	}
	if cfg.Test.StartLevel == nil || *cfg.Test.StartLevel != "6/9" {
		t.Fatalf("unexpected start level: %v", cfg.Test.StartLevel)
	}
	if cfg.Test.RowLength == nil || *cfg.Test.RowLength != 3 {
		t.Fatalf("unexpected row length: %v", cfg.Test.RowLength)
	}
	if got := cfg.Test.SymbolTimeout.Std(); got == nil || *got != 8*time.Second {
		t.Fatalf("unexpected symbol timeout: %v", got)
	}
	if cfg.Test.PrepCountdown.Std() != nil {
		t.Fatalf("expected prep countdown unset")
	}
	if cfg.Distance.Skip == nil || !*cfg.Distance.Skip {
		t.Fatalf("expected skip = true")
	}
	if cfg.Distance.FramesDir != nil {
		t.Fatalf("expected frames dir unset")
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[test]\nsymbol-timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadConfigRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[test]\nwords = 25\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestDefaultPathsFollowXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))

	if got, want := DefaultConfigPath(), filepath.Join(root, "cfg", "landolt", "config.toml"); got != want {
		t.Fatalf("config path = %q, want %q", got, want)
	}
	if got, want := DefaultDBPath(), filepath.Join(root, "data", "landolt", "landolt.db"); got != want {
		t.Fatalf("db path = %q, want %q", got, want)
	}
	if got, want := DefaultLogPath(), filepath.Join(root, "state", "landolt", "log.jsonl"); got != want {
		t.Fatalf("log path = %q, want %q", got, want)
	}
}

func TestStateHomeFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)
	if got, want := XDGStateHome(), filepath.Join(home, ".local", "state"); got != want {
		t.Fatalf("state home = %q, want %q", got, want)
	}
}
