// Package config holds all mnemon configuration: defaults, YAML file
// loading, MNEMON_* environment overrides, and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemon configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Staging       StagingConfig       `yaml:"staging"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Decay         DecayConfig         `yaml:"decay"`
	Router        RouterConfig        `yaml:"router"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Spool         SpoolConfig         `yaml:"spool"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file, empty = ~/.mnemon/mnemon.db
	URL    string `yaml:"url"`    // postgres connection string
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "hash" (offline) or "http" (Ollama-compatible)
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
}

type RetrievalConfig struct {
	RRFK         int `yaml:"rrf_k"`
	DefaultLimit int `yaml:"default_limit"`
}

type StagingConfig struct {
	TTLHours          int     `yaml:"ttl_hours"`
	MaxActive         int     `yaml:"max_active"`
	ReplayFire        float64 `yaml:"replay_fire"` // similarity that fires a replay
	ReplayLog         float64 `yaml:"replay_log"`  // similarity that logs a near-miss
	CoolingAfterHours int     `yaml:"cooling_after_hours"`
}

type ConsolidationConfig struct {
	Threshold               float64 `yaml:"threshold"`
	WeightSalience          float64 `yaml:"weight_salience"`
	WeightReplay            float64 `yaml:"weight_replay"`
	WeightRecency           float64 `yaml:"weight_recency"`
	ReplayNorm              float64 `yaml:"replay_norm"` // replays that count as full signal
	CandidateStabilityHours float64 `yaml:"candidate_stability_hours"`
}

type DecayConfig struct {
	StabilityBaseHours float64 `yaml:"stability_base_hours"`
	StabilityGainHours float64 `yaml:"stability_gain_hours"`
	StabilityCapHours  float64 `yaml:"stability_cap_hours"`
	AccessWeight       float64 `yaml:"access_weight"`
}

type RouterConfig struct {
	SuggestGap float64 `yaml:"suggest_gap"` // declared within this of best = accept
	DriftFloor float64 `yaml:"drift_floor"` // branch health below this = warn
}

type MaintenanceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression
}

type SpoolConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty = ~/.mnemon/spool
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37941,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "", // resolved at runtime via sqlite.DefaultPath()
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			Dimension: 256,
		},
		Retrieval: RetrievalConfig{
			RRFK:         60,
			DefaultLimit: 10,
		},
		Staging: StagingConfig{
			TTLHours:          168,
			MaxActive:         512,
			ReplayFire:        0.75,
			ReplayLog:         0.55,
			CoolingAfterHours: 24,
		},
		Consolidation: ConsolidationConfig{
			Threshold:               0.5,
			WeightSalience:          0.5,
			WeightReplay:            0.3,
			WeightRecency:           0.2,
			ReplayNorm:              5,
			CandidateStabilityHours: 24,
		},
		Decay: DecayConfig{
			StabilityBaseHours: 24,
			StabilityGainHours: 12,
			StabilityCapHours:  8760,
			AccessWeight:       1.0,
		},
		Router: RouterConfig{
			SuggestGap: 0.15,
			DriftFloor: 0.40,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "0 3 * * *",
		},
		Spool: SpoolConfig{
			Enabled: false,
			Dir:     "", // resolved at runtime
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration: defaults, then the YAML file at path (skipped
// when path is empty and the default file does not exist), then MNEMON_*
// environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// No config file is fine; defaults apply.
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mnemon", "config.yaml")
}

// applyEnv overlays MNEMON_* environment variables on the config.
func (c *Config) applyEnv() {
	c.Server.Bind = envStr("MNEMON_BIND", c.Server.Bind)
	c.Server.Port = envInt("MNEMON_PORT", c.Server.Port)
	c.Database.Driver = envStr("MNEMON_DB_DRIVER", c.Database.Driver)
	c.Database.Path = envStr("MNEMON_DB_PATH", c.Database.Path)
	c.Database.URL = envStr("MNEMON_DB_URL", c.Database.URL)
	c.Embedding.Provider = envStr("MNEMON_EMBED_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = envStr("MNEMON_EMBED_MODEL", c.Embedding.Model)
	c.Embedding.BaseURL = envStr("MNEMON_EMBED_URL", c.Embedding.BaseURL)
	c.Embedding.Dimension = envInt("MNEMON_EMBED_DIM", c.Embedding.Dimension)
	c.Spool.Dir = envStr("MNEMON_SPOOL_DIR", c.Spool.Dir)
	c.Spool.Enabled = envBool("MNEMON_SPOOL_ENABLED", c.Spool.Enabled)
	c.Logging.Level = envStr("MNEMON_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envStr("MNEMON_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the config for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Embedding.Provider {
	case "hash", "http":
	default:
		return fmt.Errorf("embedding.provider must be hash or http, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.RRFK < 1 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Retrieval.DefaultLimit < 1 {
		return fmt.Errorf("retrieval.default_limit must be positive, got %d", c.Retrieval.DefaultLimit)
	}
	if c.Staging.TTLHours < 1 {
		return fmt.Errorf("staging.ttl_hours must be positive, got %d", c.Staging.TTLHours)
	}
	if c.Staging.MaxActive < 1 {
		return fmt.Errorf("staging.max_active must be positive, got %d", c.Staging.MaxActive)
	}
	if c.Staging.ReplayFire < c.Staging.ReplayLog {
		return fmt.Errorf("staging.replay_fire (%v) must be >= staging.replay_log (%v)",
			c.Staging.ReplayFire, c.Staging.ReplayLog)
	}
	if c.Consolidation.Threshold < 0 || c.Consolidation.Threshold > 1 {
		return fmt.Errorf("consolidation.threshold must be in [0,1], got %v", c.Consolidation.Threshold)
	}
	sum := c.Consolidation.WeightSalience + c.Consolidation.WeightReplay + c.Consolidation.WeightRecency
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("consolidation weights must sum to 1.0, got %v", sum)
	}
	if c.Consolidation.ReplayNorm <= 0 {
		return fmt.Errorf("consolidation.replay_norm must be positive, got %v", c.Consolidation.ReplayNorm)
	}
	if c.Decay.StabilityBaseHours <= 0 {
		return fmt.Errorf("decay.stability_base_hours must be positive, got %v", c.Decay.StabilityBaseHours)
	}
	if c.Decay.StabilityCapHours < c.Decay.StabilityBaseHours {
		return fmt.Errorf("decay.stability_cap_hours (%v) must be >= decay.stability_base_hours (%v)",
			c.Decay.StabilityCapHours, c.Decay.StabilityBaseHours)
	}
	if c.Decay.AccessWeight <= 0 {
		return fmt.Errorf("decay.access_weight must be positive, got %v", c.Decay.AccessWeight)
	}
	if c.Router.SuggestGap < 0 || c.Router.SuggestGap > 1 {
		return fmt.Errorf("router.suggest_gap must be in [0,1], got %v", c.Router.SuggestGap)
	}
	if c.Router.DriftFloor < 0 || c.Router.DriftFloor > 1 {
		return fmt.Errorf("router.drift_floor must be in [0,1], got %v", c.Router.DriftFloor)
	}
	if c.Maintenance.Enabled && c.Maintenance.Schedule == "" {
		return fmt.Errorf("maintenance.schedule is required when maintenance is enabled")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// SpoolDir resolves the spool directory, defaulting to ~/.mnemon/spool.
func (c *Config) SpoolDir() (string, error) {
	if c.Spool.Dir != "" {
		return c.Spool.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mnemon", "spool"), nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
