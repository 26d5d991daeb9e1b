package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, geometry.DefaultFocusConfig(), cfg.FocusTransformConfig())
	assert.Equal(t, prompt.DefaultConfig(), cfg.GestureConfig())
	assert.Equal(t, viewport.DefaultZoomConfig(), cfg.ZoomConfig())
	assert.Zero(t, cfg.HierarchyLimits().MaxNodes)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
focus:
  padding: 0.1
prompt:
  warning_ttl: 5s
segment:
  url: http://segment:9000
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Focus.Padding)
	assert.Equal(t, 0.6, cfg.Focus.TargetFill, "untouched keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Prompt.WarningTTL)
	assert.Equal(t, "http://segment:9000", cfg.Segment.URL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ANNOTATOR_REDIS_ADDR", "redis:6380")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"focus": {"padding": 2}}`), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "focus.padding")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zoom step", func(c *Config) { c.Viewport.ZoomStep = 1 }, "viewport.zoom_step"},
		{"zoom range", func(c *Config) { c.Viewport.MinZoom = 20 }, "viewport.min_zoom"},
		{"target fill", func(c *Config) { c.Focus.TargetFill = 0 }, "focus.target_fill"},
		{"retry reduction", func(c *Config) { c.Focus.RetryReduction = 1 }, "focus.retry_reduction"},
		{"max nodes", func(c *Config) { c.Hierarchy.MaxNodes = -1 }, "hierarchy.max_nodes"},
		{"vision backend", func(c *Config) { c.Vision.Backend = "openai" }, "vision.backend"},
		{"output format", func(c *Config) { c.Output.Format = "gif" }, "output.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.field)
		})
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Vision.Model = "minicpm-v4"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetConfigPath(t *testing.T) {
	assert.Contains(t, GetConfigPath(), "image-annotator")
}
