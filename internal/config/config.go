package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// EnvPrefix prefixes environment overrides, e.g. ANNOTATOR_SEGMENT_URL.
const EnvPrefix = "ANNOTATOR"

// Config holds the application configuration
type Config struct {
	Viewport  ViewportConfig  `mapstructure:"viewport" yaml:"viewport"`
	Focus     FocusConfig     `mapstructure:"focus" yaml:"focus"`
	Prompt    PromptConfig    `mapstructure:"prompt" yaml:"prompt"`
	Hierarchy HierarchyConfig `mapstructure:"hierarchy" yaml:"hierarchy"`
	Segment   SegmentConfig   `mapstructure:"segment" yaml:"segment"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Vision    VisionConfig    `mapstructure:"vision" yaml:"vision"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
}

// ViewportConfig holds the wheel zoom policy
type ViewportConfig struct {
	MinZoom  float64 `mapstructure:"min_zoom" yaml:"min_zoom"`
	MaxZoom  float64 `mapstructure:"max_zoom" yaml:"max_zoom"`
	ZoomStep float64 `mapstructure:"zoom_step" yaml:"zoom_step"`
}

// FocusConfig holds the focus transform policy
type FocusConfig struct {
	Padding        float64 `mapstructure:"padding" yaml:"padding"`
	TargetFill     float64 `mapstructure:"target_fill" yaml:"target_fill"`
	MinZoom        float64 `mapstructure:"min_zoom" yaml:"min_zoom"`
	MaxZoom        float64 `mapstructure:"max_zoom" yaml:"max_zoom"`
	RetryTolerance float64 `mapstructure:"retry_tolerance" yaml:"retry_tolerance"`
	RetryReduction float64 `mapstructure:"retry_reduction" yaml:"retry_reduction"`
	RetryMinZoom   float64 `mapstructure:"retry_min_zoom" yaml:"retry_min_zoom"`
}

// PromptConfig holds gesture thresholds
type PromptConfig struct {
	DragThreshold float64       `mapstructure:"drag_threshold" yaml:"drag_threshold"`
	MinBoxSize    float64       `mapstructure:"min_box_size" yaml:"min_box_size"`
	WarningTTL    time.Duration `mapstructure:"warning_ttl" yaml:"warning_ttl"`
}

// HierarchyConfig bounds hierarchy ingestion
type HierarchyConfig struct {
	MaxNodes int `mapstructure:"max_nodes" yaml:"max_nodes"`
}

// SegmentConfig locates the segmentation service
type SegmentConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RedisConfig configures the hierarchy cache
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// VisionConfig configures box suggestions
type VisionConfig struct {
	// Backend is "ollama" or "llamacpp".
	Backend       string  `mapstructure:"backend" yaml:"backend"`
	URL           string  `mapstructure:"url" yaml:"url"`
	Model         string  `mapstructure:"model" yaml:"model"`
	MaxDimension  int     `mapstructure:"max_dimension" yaml:"max_dimension"`
	Quality       int     `mapstructure:"quality" yaml:"quality"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// LogConfig configures logging
type LogConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// OutputConfig holds configuration for rendered output
type OutputConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Format  string `mapstructure:"format" yaml:"format"`
	Quality int    `mapstructure:"quality" yaml:"quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	zoom := viewport.DefaultZoomConfig()
	focus := geometry.DefaultFocusConfig()
	gestures := prompt.DefaultConfig()
	return &Config{
		Viewport: ViewportConfig{MinZoom: zoom.Min, MaxZoom: zoom.Max, ZoomStep: zoom.Step},
		Focus: FocusConfig{
			Padding:        focus.Padding,
			TargetFill:     focus.TargetFill,
			MinZoom:        focus.MinZoom,
			MaxZoom:        focus.MaxZoom,
			RetryTolerance: focus.RetryTolerance,
			RetryReduction: focus.RetryReduction,
			RetryMinZoom:   focus.RetryMinZoom,
		},
		Prompt: PromptConfig{
			DragThreshold: gestures.DragThreshold,
			MinBoxSize:    gestures.MinBoxSize,
			WarningTTL:    gestures.WarningTTL,
		},
		Hierarchy: HierarchyConfig{MaxNodes: hierarchy.DefaultConfig().MaxNodes},
		Segment:   SegmentConfig{URL: "http://localhost:8000", Timeout: 60 * time.Second},
		Redis:     RedisConfig{Addr: "localhost:6379", Prefix: "annotator:hierarchy:", TTL: 24 * time.Hour},
		Vision: VisionConfig{
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			Model:         "llava:13b",
			MaxDimension:  1024,
			Quality:       85,
			MinConfidence: 0.2,
		},
		Log:    LogConfig{Mode: "development", Level: "info"},
		Output: OutputConfig{Dir: "./output", Format: "png", Quality: 90},
	}
}

// Load reads configuration from path (YAML or JSON by extension) on top of
// the defaults. An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("viewport.min_zoom", d.Viewport.MinZoom)
	v.SetDefault("viewport.max_zoom", d.Viewport.MaxZoom)
	v.SetDefault("viewport.zoom_step", d.Viewport.ZoomStep)

	v.SetDefault("focus.padding", d.Focus.Padding)
	v.SetDefault("focus.target_fill", d.Focus.TargetFill)
	v.SetDefault("focus.min_zoom", d.Focus.MinZoom)
	v.SetDefault("focus.max_zoom", d.Focus.MaxZoom)
	v.SetDefault("focus.retry_tolerance", d.Focus.RetryTolerance)
	v.SetDefault("focus.retry_reduction", d.Focus.RetryReduction)
	v.SetDefault("focus.retry_min_zoom", d.Focus.RetryMinZoom)

	v.SetDefault("prompt.drag_threshold", d.Prompt.DragThreshold)
	v.SetDefault("prompt.min_box_size", d.Prompt.MinBoxSize)
	v.SetDefault("prompt.warning_ttl", d.Prompt.WarningTTL)

	v.SetDefault("hierarchy.max_nodes", d.Hierarchy.MaxNodes)

	v.SetDefault("segment.url", d.Segment.URL)
	v.SetDefault("segment.timeout", d.Segment.Timeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("vision.backend", d.Vision.Backend)
	v.SetDefault("vision.url", d.Vision.URL)
	v.SetDefault("vision.model", d.Vision.Model)
	v.SetDefault("vision.max_dimension", d.Vision.MaxDimension)
	v.SetDefault("vision.quality", d.Vision.Quality)
	v.SetDefault("vision.min_confidence", d.Vision.MinConfidence)

	v.SetDefault("log.mode", d.Log.Mode)
	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.quality", d.Output.Quality)
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Viewport.MinZoom <= 0 || c.Viewport.MinZoom > c.Viewport.MaxZoom {
		return fmt.Errorf("viewport.min_zoom must be positive and not above viewport.max_zoom")
	}
	if c.Viewport.ZoomStep <= 1 {
		return fmt.Errorf("viewport.zoom_step must be greater than 1")
	}

	if c.Focus.Padding < 0 || c.Focus.Padding > 1 {
		return fmt.Errorf("focus.padding must be between 0 and 1")
	}
	if c.Focus.TargetFill <= 0 || c.Focus.TargetFill > 1 {
		return fmt.Errorf("focus.target_fill must be in (0, 1]")
	}
	if c.Focus.MinZoom <= 0 || c.Focus.MinZoom > c.Focus.MaxZoom {
		return fmt.Errorf("focus.min_zoom must be positive and not above focus.max_zoom")
	}
	if c.Focus.RetryReduction < 0 || c.Focus.RetryReduction >= 1 {
		return fmt.Errorf("focus.retry_reduction must be in [0, 1)")
	}

	if c.Prompt.DragThreshold < 0 {
		return fmt.Errorf("prompt.drag_threshold cannot be negative")
	}
	if c.Prompt.MinBoxSize < 0 {
		return fmt.Errorf("prompt.min_box_size cannot be negative")
	}

	if c.Hierarchy.MaxNodes < 0 {
		return fmt.Errorf("hierarchy.max_nodes cannot be negative")
	}

	switch c.Vision.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("vision.backend must be ollama or llamacpp")
	}
	if c.Vision.Quality < 1 || c.Vision.Quality > 100 {
		return fmt.Errorf("vision.quality must be between 1 and 100")
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg or webp")
	}
	return nil
}

// ZoomConfig maps the viewport section onto the viewport package.
func (c *Config) ZoomConfig() viewport.ZoomConfig {
	return viewport.ZoomConfig{Step: c.Viewport.ZoomStep, Min: c.Viewport.MinZoom, Max: c.Viewport.MaxZoom}
}

// FocusTransformConfig maps the focus section onto the geometry package.
func (c *Config) FocusTransformConfig() geometry.FocusConfig {
	return geometry.FocusConfig{
		Padding:        c.Focus.Padding,
		TargetFill:     c.Focus.TargetFill,
		MinZoom:        c.Focus.MinZoom,
		MaxZoom:        c.Focus.MaxZoom,
		RetryTolerance: c.Focus.RetryTolerance,
		RetryReduction: c.Focus.RetryReduction,
		RetryMinZoom:   c.Focus.RetryMinZoom,
	}
}

// GestureConfig maps the prompt section onto the prompt package.
func (c *Config) GestureConfig() prompt.Config {
	return prompt.Config{
		DragThreshold: c.Prompt.DragThreshold,
		MinBoxSize:    c.Prompt.MinBoxSize,
		WarningTTL:    c.Prompt.WarningTTL,
	}
}

// HierarchyLimits maps the hierarchy section onto the hierarchy package.
func (c *Config) HierarchyLimits() hierarchy.Config {
	cfg := hierarchy.DefaultConfig()
	cfg.MaxNodes = c.Hierarchy.MaxNodes
	return cfg
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-annotator", "config.yaml")
}
