// Package config loads and validates the pipeline configuration. Loading is
// fail-closed: a file that does not parse, or parses into an incoherent
// configuration, aborts the run rather than scanning with half-applied
// settings.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/quantprep/openprep/internal/enrich"
	"github.com/quantprep/openprep/internal/fingerprint"
	"github.com/quantprep/openprep/internal/httpapi"
	"github.com/quantprep/openprep/internal/notify"
	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/schedule"
	"github.com/quantprep/openprep/internal/scoring"
	"github.com/quantprep/openprep/internal/screen"
	"github.com/quantprep/openprep/internal/signals"
	"github.com/quantprep/openprep/internal/store"
)

var validate = validator.New()

// PipelineConfig aggregates every stage's settings plus run-level knobs.
// Fields left out of the YAML file keep their defaults.
type PipelineConfig struct {
	UniverseFile      string `yaml:"universe_file" default:"config/universe.yaml"` // Default: config/universe.yaml
	ArtifactDir       string `yaml:"artifact_dir" default:"out"`                   // Default: out
	TopN              int    `yaml:"top_n" default:"15" validate:"gte=1"`          // Default: 15
	WeightsFile       string `yaml:"weights_file"`                                 // Default: "" (built-in weights)
	RegimeWeightsFile string `yaml:"regime_weights_file"`                          // Default: "" (built-in multipliers)

	Regime      regime.DetectorConfig `yaml:"regime"`
	Screen      screen.Config         `yaml:"screen"`
	Scoring     scoring.Config        `yaml:"scoring"`
	Playbook    playbook.Config       `yaml:"playbook"`
	Enrich      enrich.Config         `yaml:"enrich"`
	Fingerprint fingerprint.Config    `yaml:"fingerprint"`
	Store       store.Config          `yaml:"store"`
	Notify      notify.Config         `yaml:"notify"`
	Schedule    schedule.Config       `yaml:"schedule"`
	Signals     signals.Config        `yaml:"signals"`
	Server      httpapi.Config        `yaml:"server"`
}

// Default returns the configuration the shipped config/pipeline.yaml mirrors.
func Default() *PipelineConfig {
	return &PipelineConfig{
		UniverseFile: "config/universe.yaml",
		ArtifactDir:  "out",
		TopN:         15,
		Regime:       regime.DefaultDetectorConfig(),
		Screen:       screen.DefaultConfig(),
		Scoring:      scoring.DefaultConfig(),
		Playbook:     playbook.DefaultConfig(),
		Enrich:       enrich.DefaultConfig(),
		Fingerprint:  fingerprint.DefaultConfig(),
		Store:        store.DefaultConfig(),
		Notify:       notify.DefaultConfig(),
		Schedule:     schedule.DefaultConfig(),
		Signals:      signals.DefaultConfig(),
		Server:       httpapi.DefaultConfig(),
	}
}

// Load reads a YAML configuration file. Defaults are applied first, so a
// partial file only has to name what it changes.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &PipelineConfig{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv loads a config file and applies environment overrides on top.
// Environment wins over the file, so deployments can point one config at
// different backing services.
func LoadWithEnv(path string) (*PipelineConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed after env overrides: %w", err)
	}
	return cfg, nil
}

// DefaultWithEnv returns the default configuration with environment
// overrides applied, for running without any config file.
func DefaultWithEnv() (*PipelineConfig, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed after env overrides: %w", err)
	}
	return cfg, nil
}

var durationScalar = regexp.MustCompile(`^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`)

// normalizeDurations rewrites duration-shaped scalars ("10s", "1h30m") into
// integer nanoseconds. yaml.v3 has no native duration support, and keeping
// plain time.Duration fields in the stage configs means every consumer reads
// them without conversion. No string field in the config tree accepts a
// value matching the duration pattern, so the rewrite cannot misfire.
func normalizeDurations(node *yaml.Node) {
	if node == nil {
		return
	}
	if node.Kind == yaml.ScalarNode && durationScalar.MatchString(node.Value) {
		if d, err := time.ParseDuration(node.Value); err == nil {
			node.Value = strconv.FormatInt(int64(d), 10)
			node.Tag = "!!int"
		}
		return
	}
	for _, child := range node.Content {
		normalizeDurations(child)
	}
}

// UnmarshalYAML decodes the config tree after normalizing duration strings.
func (c *PipelineConfig) UnmarshalYAML(node *yaml.Node) error {
	normalizeDurations(node)
	type alias PipelineConfig
	return node.Decode((*alias)(c))
}

func (c *PipelineConfig) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		c.Store.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Notify.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Fingerprint.RedisAddr = v
		c.Fingerprint.Backend = "redis"
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("QUOTE_FEED_URL"); v != "" {
		c.Signals.URL = v
	}
}

// Validate checks cross-field coherence on top of the struct tags.
func (c *PipelineConfig) Validate() error {
	if c.UniverseFile == "" {
		return fmt.Errorf("universe file is required")
	}
	if c.ArtifactDir == "" {
		return fmt.Errorf("artifact directory is required")
	}
	if err := c.Regime.Validate(); err != nil {
		return fmt.Errorf("regime config: %w", err)
	}
	if err := c.Screen.Validate(); err != nil {
		return fmt.Errorf("screen config: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}
	if err := c.Playbook.Validate(); err != nil {
		return fmt.Errorf("playbook config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}
