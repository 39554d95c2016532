package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
engine:
  defaultTimeout: 5s
  pollInterval: 250ms
  strategyOrder: [image, text]
driver:
  backend: mock
  platform: android
  deviceId: emulator-5554
stream:
  heartbeat: 10s
  workspaceInterval: 2s
  bufferSize: 16
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Engine.DefaultTimeout.Std() != 5*time.Second {
		t.Errorf("expected defaultTimeout 5s, got %v", cfg.Engine.DefaultTimeout.Std())
	}
	if cfg.Engine.PollInterval.Std() != 250*time.Millisecond {
		t.Errorf("expected pollInterval 250ms, got %v", cfg.Engine.PollInterval.Std())
	}
	if len(cfg.Engine.StrategyOrder) != 2 || cfg.Engine.StrategyOrder[0] != "image" {
		t.Errorf("expected strategyOrder [image text], got %v", cfg.Engine.StrategyOrder)
	}
	if cfg.Driver.Platform != "android" || cfg.Driver.DeviceID != "emulator-5554" {
		t.Errorf("unexpected driver config %+v", cfg.Driver)
	}
	if cfg.Stream.WorkspaceInterval.Std() != 2*time.Second {
		t.Errorf("expected workspaceInterval 2s, got %v", cfg.Stream.WorkspaceInterval.Std())
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoad_NumericDurations(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
engine:
  defaultTimeout: 30
stream:
  heartbeat: 2.5
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.DefaultTimeout.Std() != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Engine.DefaultTimeout.Std())
	}
	if cfg.Stream.Heartbeat.Std() != 2500*time.Millisecond {
		t.Errorf("expected 2.5s, got %v", cfg.Stream.Heartbeat.Std())
	}
}

func TestLoad_ClampsWorkspaceInterval(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
stream:
  workspaceInterval: 100ms
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stream.WorkspaceInterval.Std() != MinWorkspaceInterval {
		t.Errorf("expected interval clamped to %v, got %v",
			MinWorkspaceInterval, cfg.Stream.WorkspaceInterval.Std())
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `engine: [invalid yaml`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
engine:
  pollInterval: soon
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestLoad_EmptyKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(``), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def := Default()
	if cfg.Engine.DefaultTimeout != def.Engine.DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", def.Engine.DefaultTimeout, cfg.Engine.DefaultTimeout)
	}
	if cfg.Driver.Backend != "mock" {
		t.Errorf("expected default backend mock, got %s", cfg.Driver.Backend)
	}
}

func TestLoadFromDir_ConfigYaml(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
driver:
  platform: android
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Driver.Platform != "android" {
		t.Errorf("expected platform android, got %s", cfg.Driver.Platform)
	}
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Driver.Backend != "mock" {
		t.Errorf("expected defaults, got %+v", cfg.Driver)
	}
}

func TestLoadFromDir_PrefersYamlOverYml(t *testing.T) {
	dir := t.TempDir()

	yamlContent := "driver:\n  platform: ios\n"
	ymlContent := "driver:\n  platform: android\n"

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(ymlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should prefer config.yaml
	if cfg.Driver.Platform != "ios" {
		t.Errorf("expected platform ios (from config.yaml), got %s", cfg.Driver.Platform)
	}
}
