package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the paesd daemon and the paes CLI.
type LocalConfig struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	LLM      LLMConfig      `yaml:"llm"`
	Sourcing SourcingConfig `yaml:"sourcing"`
	Content  ContentConfig  `yaml:"content"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
	MaxTokens       int                        `yaml:"max_tokens"`
	Temperature     float64                    `yaml:"temperature"`
	Resilient       bool                       `yaml:"resilient"`
}

// ProviderConfig holds settings for a single LLM provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"` // For Ollama
	APIKey  string `yaml:"-"`             // Loaded from secrets.yaml or the environment
}

// SourcingConfig tunes exercise sourcing and proficiency tracking.
type SourcingConfig struct {
	GenerationTimeout time.Duration     `yaml:"generation_timeout"`
	CorrectDelta      float64           `yaml:"correct_delta"`
	IncorrectDelta    float64           `yaml:"incorrect_delta"`
	InitialLevel      float64           `yaml:"initial_level"`
	ExamCodes         map[string]string `yaml:"exam_codes,omitempty"`
	SkillDifficulty   map[string]string `yaml:"skill_difficulty,omitempty"`
}

// ContentConfig locates the official exam packs.
type ContentConfig struct {
	ExamsPath string `yaml:"exams_path"`
}

// StorageConfig selects the telemetry backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url,omitempty"`
	// OfficialFromPostgres reads the official bank from the examenes tables
	// instead of the YAML packs.
	OfficialFromPostgres bool `yaml:"official_from_postgres"`
}

// QueueConfig enables attempt fan-out over AMQP.
type QueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
}

// NotifyConfig configures user notifications.
type NotifyConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Channel   string `yaml:"channel"`
}

// SecretsConfig holds API keys loaded from secrets.yaml
type SecretsConfig struct {
	Providers map[string]struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"providers"`
}

// PaesDir returns the path to ~/.paespro
func PaesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".paespro"), nil
}

// EnsurePaesDir creates ~/.paespro and subdirectories if they don't exist
func EnsurePaesDir() (string, error) {
	dir, err := PaesDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data", "exams"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7432,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		LLM: LLMConfig{
			DefaultProvider: "auto",
			Providers: map[string]*ProviderConfig{
				"openai": {
					Enabled: true,
					Model:   "gpt-4o-mini",
				},
				"claude": {
					Enabled: true,
					Model:   "claude-sonnet-4-20250514",
				},
				"gemini": {
					Enabled: false,
					Model:   "gemini-2.0-flash",
				},
				"ollama": {
					Enabled: false,
					URL:     "http://localhost:11434",
					Model:   "llama3.1",
				},
			},
			MaxTokens:   1500,
			Temperature: 0.7,
			Resilient:   true,
		},
		Sourcing: SourcingConfig{
			GenerationTimeout: 12 * time.Second,
			CorrectDelta:      0.05,
			IncorrectDelta:    0.03,
			InitialLevel:      0.5,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Notify: NotifyConfig{
			Channel: "paes:notifications",
		},
	}
}

// LoadLocalConfig loads configuration from ~/.paespro/config.yaml and
// applies environment overrides.
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := PaesDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads config.yaml and secrets.yaml from dir. A missing
// config file yields defaults.
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	cfg.ApplyEnv()
	cfg.resolvePaths(dir)
	return cfg, nil
}

func (c *LocalConfig) resolvePaths(dir string) {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(dir, "data", "paes.db")
	}
	if c.Content.ExamsPath == "" {
		c.Content.ExamsPath = filepath.Join(dir, "exams")
	}
}

// loadSecrets loads API keys from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	for name, secret := range secrets.Providers {
		if provider, ok := cfg.LLM.Providers[name]; ok {
			provider.APIKey = secret.APIKey
		}
	}

	return nil
}

// SaveLocalConfig saves configuration to ~/.paespro/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsurePaesDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves API keys to ~/.paespro/secrets.yaml
func SaveSecrets(secrets map[string]string) error {
	dir, err := EnsurePaesDir()
	if err != nil {
		return err
	}

	secretsCfg := SecretsConfig{
		Providers: make(map[string]struct {
			APIKey string `yaml:"api_key"`
		}),
	}
	for name, key := range secrets {
		secretsCfg.Providers[name] = struct {
			APIKey string `yaml:"api_key"`
		}{APIKey: key}
	}

	data, err := yaml.Marshal(secretsCfg)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}
