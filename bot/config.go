package bot

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "gatebot/core/config"
	coredatabase "gatebot/core/database"
)

// Storage backends for the relay state document.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

const defaultStatePath = "state.json"

// GateConfig tunes the access-control layer.
type GateConfig struct {
	// Storage selects where the state document lives: "file" or "postgres".
	Storage   string `yaml:"storage" envconfig:"GATE_STORAGE"`
	StatePath string `yaml:"state_path" envconfig:"GATE_STATE_PATH"`
	// PasskeyLength and PasskeyTimeoutMinutes override the persisted values
	// when set; zero keeps what the state document carries.
	PasskeyLength         int `yaml:"passkey_length" envconfig:"GATE_PASSKEY_LENGTH"`
	PasskeyTimeoutMinutes int `yaml:"passkey_timeout_minutes" envconfig:"GATE_PASSKEY_TIMEOUT_MINUTES"`
}

// Config aggregates core settings with the bot-specific sections.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Gate     GateConfig          `yaml:"gate"`
	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// LoadConfig reads configuration from a YAML file and environment variables.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := normalizeGate(&cfg.Gate); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeGate(cfg *GateConfig) error {
	storage := strings.ToLower(strings.TrimSpace(cfg.Storage))
	if storage == "" {
		storage = StorageFile
	}
	switch storage {
	case StorageFile, StoragePostgres:
	default:
		return fmt.Errorf("invalid gate.storage %q; allowed: file, postgres", cfg.Storage)
	}
	cfg.Storage = storage

	if strings.TrimSpace(cfg.StatePath) == "" {
		cfg.StatePath = defaultStatePath
	}
	if cfg.PasskeyLength < 0 {
		return fmt.Errorf("gate.passkey_length must be >= 0")
	}
	if cfg.PasskeyTimeoutMinutes < 0 {
		return fmt.Errorf("gate.passkey_timeout_minutes must be >= 0")
	}
	return nil
}
