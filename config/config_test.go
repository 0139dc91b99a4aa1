package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.App.Name != "stagekit" {
		t.Errorf("App.Name = %q, want stagekit", cfg.App.Name)
	}
	if cfg.App.Environment != EnvDevelopment {
		t.Errorf("App.Environment = %q, want %q", cfg.App.Environment, EnvDevelopment)
	}
	if cfg.Runtime.FrameRate != 60 {
		t.Errorf("Runtime.FrameRate = %d, want 60", cfg.Runtime.FrameRate)
	}
	if cfg.Runtime.Margin() != 5*time.Millisecond {
		t.Errorf("Runtime.Margin() = %v, want 5ms", cfg.Runtime.Margin())
	}
	if cfg.Runtime.PollInterval() != 10*time.Millisecond {
		t.Errorf("Runtime.PollInterval() = %v, want 10ms", cfg.Runtime.PollInterval())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:    "valid",
			modify:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "empty app name",
			modify:  func(c *Config) { c.App.Name = "" },
			wantErr: ErrInvalidAppName,
		},
		{
			name:    "bad environment",
			modify:  func(c *Config) { c.App.Environment = "staging" },
			wantErr: ErrInvalidEnvironment,
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "frame rate too low",
			modify:  func(c *Config) { c.Runtime.FrameRate = 0 },
			wantErr: ErrInvalidFrameRate,
		},
		{
			name:    "frame rate too high",
			modify:  func(c *Config) { c.Runtime.FrameRate = 500 },
			wantErr: ErrInvalidFrameRate,
		},
		{
			name:    "zero mailbox size",
			modify:  func(c *Config) { c.Runtime.MailboxSize = 0 },
			wantErr: ErrInvalidMailboxSize,
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.Runtime.PollIntervalMS = 0 },
			wantErr: ErrInvalidPollInterval,
		},
		{
			name:    "negative margin",
			modify:  func(c *Config) { c.Runtime.ProcessingMarginMS = -1 },
			wantErr: ErrInvalidMargin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagekit.yaml")

	data := `
app:
  name: demo
  environment: production
runtime:
  frame_rate: 30
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.App.Name != "demo" {
		t.Errorf("App.Name = %q, want demo", cfg.App.Name)
	}
	if cfg.App.Environment != EnvProduction {
		t.Errorf("App.Environment = %q, want production", cfg.App.Environment)
	}
	if cfg.Runtime.FrameRate != 30 {
		t.Errorf("Runtime.FrameRate = %d, want 30", cfg.Runtime.FrameRate)
	}
	// Fields not in the file keep their defaults.
	if cfg.Runtime.MailboxSize != 256 {
		t.Errorf("Runtime.MailboxSize = %d, want default 256", cfg.Runtime.MailboxSize)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagekit.json")

	data := `{"runtime": {"backend": "memory", "poll_interval_ms": 25}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Runtime.PollInterval() != 25*time.Millisecond {
		t.Errorf("Runtime.PollInterval() = %v, want 25ms", cfg.Runtime.PollInterval())
	}
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	if _, err := NewLoader().LoadFromFile("config.toml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromFileInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagekit.yaml")

	data := "runtime:\n  frame_rate: 1000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := NewLoader().LoadFromFile(path)
	if !errors.Is(err, ErrInvalidFrameRate) {
		t.Errorf("LoadFromFile = %v, want %v", err, ErrInvalidFrameRate)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	loader := NewLoader().SetSearchPaths([]string{t.TempDir()})

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Name != "stagekit" {
		t.Errorf("App.Name = %q, want default stagekit", cfg.App.Name)
	}
}

func TestLoadFindsFileInSearchPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: found\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader().SetSearchPaths([]string{dir}).Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Name != "found" {
		t.Errorf("App.Name = %q, want found", cfg.App.Name)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STAGEKIT_APP_NAME", "enved")
	t.Setenv("STAGEKIT_RUNTIME_FRAME_RATE", "120")
	t.Setenv("STAGEKIT_APP_DEBUG", "true")

	loader := NewLoader().SetSearchPaths([]string{t.TempDir()})
	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "enved" {
		t.Errorf("App.Name = %q, want enved", cfg.App.Name)
	}
	if cfg.Runtime.FrameRate != 120 {
		t.Errorf("Runtime.FrameRate = %d, want 120", cfg.Runtime.FrameRate)
	}
	if !cfg.App.Debug {
		t.Error("App.Debug = false, want true")
	}
}

func TestEnvOverrideBadValue(t *testing.T) {
	t.Setenv("STAGEKIT_RUNTIME_FRAME_RATE", "fast")

	loader := NewLoader().SetSearchPaths([]string{t.TempDir()})
	if _, err := loader.Load(""); err == nil {
		t.Error("expected error for non-numeric frame rate")
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagekit.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: before\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	watcher, err := NewWatcher(path, NewLoader(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer watcher.Stop()

	if got := watcher.GetConfig().App.Name; got != "before" {
		t.Fatalf("initial App.Name = %q, want before", got)
	}

	var oldName, newName string
	watcher.OnConfigChange(func(oldCfg, newCfg *Config) {
		oldName = oldCfg.App.Name
		newName = newCfg.App.Name
	})

	if err := os.WriteFile(path, []byte("app:\n  name: after\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := watcher.GetConfig().App.Name; got != "after" {
		t.Errorf("reloaded App.Name = %q, want after", got)
	}
	if oldName != "before" || newName != "after" {
		t.Errorf("callback saw %q -> %q, want before -> after", oldName, newName)
	}
}

func TestWatcherRejectsUnsupportedFile(t *testing.T) {
	if _, err := NewWatcher("config.toml", NewLoader(), zerolog.Nop()); err == nil {
		t.Error("expected error for unsupported file format")
	}
}
