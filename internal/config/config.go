package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rsclarke/replaycache/internal/events"
	"github.com/rsclarke/replaycache/internal/normalize"
	"github.com/rsclarke/replaycache/internal/session"
	"github.com/rsclarke/replaycache/internal/store"
)

type Config struct {
	DBPath    string
	Mode      store.Mode
	RulesFile string
	Rules     normalize.Rules
}

// Load reads REPLAYCACHE_DB, REPLAYCACHE_MODE and REPLAYCACHE_RULES, loading
// the rules file if one is named.
func Load() (*Config, error) {
	cfg := Default()
	cfg.DBPath = getEnv("REPLAYCACHE_DB", cfg.DBPath)

	if v := os.Getenv("REPLAYCACHE_MODE"); v != "" {
		mode, err := store.ParseMode(v)
		if err != nil {
			return nil, fmt.Errorf("REPLAYCACHE_MODE: %w", err)
		}
		cfg.Mode = mode
	}

	cfg.RulesFile = os.Getenv("REPLAYCACHE_RULES")
	if cfg.RulesFile != "" {
		rules, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		cfg.Rules = rules
	}

	return cfg, nil
}

// LoadRules reads normalization rules from a YAML file. Unknown keys are
// rejected.
func LoadRules(path string) (normalize.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return normalize.Rules{}, fmt.Errorf("read rules: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return normalize.Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes YAML normalization rules.
func ParseRules(data []byte) (normalize.Rules, error) {
	var rules normalize.Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return normalize.Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	return rules, nil
}

// Session builds the session configuration for cfg.
func (c *Config) Session(logger *zap.Logger, sink events.Sink) session.Config {
	return session.Config{
		Path:   c.DBPath,
		Mode:   c.Mode,
		Rules:  c.Rules.Clone(),
		Logger: logger,
		Events: sink,
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Default() *Config {
	return &Config{
		DBPath: "replaycache.db",
		Mode:   store.ModePlayback,
	}
}
