// Package config handles configuration for keyflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/logger"
)

// MinWorkspaceInterval is the workspace stream floor; shorter configured
// intervals are raised to it.
const MinWorkspaceInterval = 500 * time.Millisecond

// Duration is a time.Duration that unmarshals from YAML strings like "5s"
// or plain numbers of seconds.
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax or seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("line %d: bad duration %q: %w", node.Line, v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("line %d: bad duration %v", node.Line, raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Engine holds keyword resolution defaults.
type Engine struct {
	DefaultTimeout Duration `yaml:"defaultTimeout"` // Locator resolution timeout
	PollInterval   Duration `yaml:"pollInterval"`   // Locator poll interval
	StrategyOrder  []string `yaml:"strategyOrder"`  // Detection preference: text, path, image
}

// Driver selects and configures the driver backend for new sessions.
type Driver struct {
	Backend      string `yaml:"backend"` // Only "mock" ships in-tree
	Platform     string `yaml:"platform"`
	DeviceID     string `yaml:"deviceId"`
	AppVersion   string `yaml:"appVersion"`
	ScreenWidth  int    `yaml:"screenWidth"`
	ScreenHeight int    `yaml:"screenHeight"`
}

// Stream holds event and workspace streaming settings.
type Stream struct {
	Heartbeat         Duration `yaml:"heartbeat"`         // Event stream idle heartbeat
	WorkspaceInterval Duration `yaml:"workspaceInterval"` // Snapshot capture period
	BufferSize        int      `yaml:"bufferSize"`        // Subscriber channel buffer
}

// Config is the full keyflow configuration (config.yaml).
type Config struct {
	Engine    Engine              `yaml:"engine"`
	Driver    Driver              `yaml:"driver"`
	Stream    Stream              `yaml:"stream"`
	Artifacts core.ArtifactConfig `yaml:"artifacts"`
	Log       logger.Config       `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine: Engine{
			DefaultTimeout: Duration(10 * time.Second),
			PollInterval:   Duration(500 * time.Millisecond),
			StrategyOrder:  []string{"text", "path", "image"},
		},
		Driver: Driver{Backend: "mock"},
		Stream: Stream{
			Heartbeat:         Duration(15 * time.Second),
			WorkspaceInterval: Duration(time.Second),
			BufferSize:        64,
		},
		Artifacts: core.DefaultArtifactConfig(),
		Log:       logger.Config{Level: "info", Format: "console"},
	}
}

// Load loads configuration from a file, layered over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.clamp()
	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}
	return Default(), nil
}

// clamp enforces the floors the engine depends on.
func (c *Config) clamp() {
	if c.Stream.WorkspaceInterval.Std() < MinWorkspaceInterval {
		c.Stream.WorkspaceInterval = Duration(MinWorkspaceInterval)
	}
	if c.Stream.BufferSize <= 0 {
		c.Stream.BufferSize = 64
	}
	if c.Engine.PollInterval.Std() <= 0 {
		c.Engine.PollInterval = Duration(500 * time.Millisecond)
	}
	if c.Engine.DefaultTimeout.Std() <= 0 {
		c.Engine.DefaultTimeout = Duration(10 * time.Second)
	}
}
