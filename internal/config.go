package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCandidates = 100
	DefaultSelect     = 50
	DefaultStorePath  = "pool.db"
	DefaultTrees      = 10
	DefaultNeighbors  = 5
	DefaultInbox      = "inbox"
	DefaultDebounce   = 500 * time.Millisecond
)

type SelectionConfig struct {
	Candidates  int    `yaml:"candidates"`
	Select      int    `yaml:"select"`
	ZeroVectors string `yaml:"zero_vectors"`
	Workers     int    `yaml:"workers"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type IndexConfig struct {
	Trees     int `yaml:"trees"`
	Neighbors int `yaml:"neighbors"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Debounce time.Duration `yaml:"debounce"`
}

type Config struct {
	Selection SelectionConfig `yaml:"selection"`
	Store     StoreConfig     `yaml:"store"`
	Index     IndexConfig     `yaml:"index"`
	Log       LogConfig       `yaml:"log"`
	Watch     WatchConfig     `yaml:"watch"`
}

func DefaultConfig() *Config {
	return &Config{
		Selection: SelectionConfig{
			Candidates:  DefaultCandidates,
			Select:      DefaultSelect,
			ZeroVectors: string(ZeroVectorError),
		},
		Store: StoreConfig{Path: DefaultStorePath},
		Index: IndexConfig{
			Trees:     DefaultTrees,
			Neighbors: DefaultNeighbors,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Inbox:    DefaultInbox,
			Debounce: DefaultDebounce,
		},
	}
}

// LoadConfig reads the workspace config over the defaults. A missing file
// yields the defaults.
func LoadConfig(ws Workspace) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ws.ConfigPath())
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

func SaveConfig(ws Workspace, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(ws.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values from POOLSEL_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"POOLSEL_CANDIDATES", &c.Selection.Candidates},
		{"POOLSEL_SELECT", &c.Selection.Select},
		{"POOLSEL_WORKERS", &c.Selection.Workers},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidArgument, e.key, v)
		}
		*e.dst = n
	}

	if v := getenv("POOLSEL_ZERO_VECTORS"); v != "" {
		c.Selection.ZeroVectors = v
	}
	if v := getenv("POOLSEL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Selection.Candidates <= 0 {
		return fmt.Errorf("%w: selection.candidates must be positive, got %d", ErrInvalidArgument, c.Selection.Candidates)
	}
	if c.Selection.Select < 0 {
		return fmt.Errorf("%w: selection.select must not be negative, got %d", ErrInvalidArgument, c.Selection.Select)
	}
	if c.Selection.Workers < 0 {
		return fmt.Errorf("%w: selection.workers must not be negative, got %d", ErrInvalidArgument, c.Selection.Workers)
	}
	if _, err := ParseZeroVectorPolicy(c.Selection.ZeroVectors); err != nil {
		return err
	}
	if c.Index.Trees <= 0 {
		return fmt.Errorf("%w: index.trees must be positive, got %d", ErrInvalidArgument, c.Index.Trees)
	}
	if c.Index.Neighbors <= 0 {
		return fmt.Errorf("%w: index.neighbors must be positive, got %d", ErrInvalidArgument, c.Index.Neighbors)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce must not be negative", ErrInvalidArgument)
	}
	if _, err := ParseLogFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// SimilarityOptions translates the selection section into computer options.
func (c *Config) SimilarityOptions() ([]SimilarityOption, error) {
	policy, err := ParseZeroVectorPolicy(c.Selection.ZeroVectors)
	if err != nil {
		return nil, err
	}
	return []SimilarityOption{
		WithZeroVectorPolicy(policy),
		WithWorkers(c.Selection.Workers),
	}, nil
}
