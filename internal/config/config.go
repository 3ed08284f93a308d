package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".ossgard"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".ossgard/ossgard.db"
	DefaultProfileDir = ".ossgard/profiles"
)

// Load reads the config file (falling back to defaults if absent) and
// returns a populated Config. The configPath flag may override the
// default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !isNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// No config yet — defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

// setDefaults populates viper with the out-of-the-box pipeline settings.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("github.host", "github.com")
	v.SetDefault("github.max_concurrent", 4)

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.embed_model", "text-embedding-3-small")
	v.SetDefault("ai.embed_context_tokens", 8192)
	v.SetDefault("ai.intent_summaries", false)

	v.SetDefault("vector.provider", "qdrant")
	v.SetDefault("vector.url", "http://localhost:6333")

	v.SetDefault("scan.code_similarity_threshold", 0.85)
	v.SetDefault("scan.intent_similarity_threshold", 0.80)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.embed_batch_size", 64)
	v.SetDefault("scan.token_budget_factor", 0.95)
	v.SetDefault("scan.workers", 2)
	v.SetDefault("scan.max_retries", 3)

	v.SetDefault("gateway.port", 6380)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}
