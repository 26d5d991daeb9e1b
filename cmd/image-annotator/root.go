package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	annotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/logging"
	"github.com/menta2k/image-annotator/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "image-annotator",
	Short: "Prompt-driven image annotation engine",
	Long: `image-annotator drives the annotation state engine from the command line:
replay scripted pointer sessions against an image, render the resulting
overlay and ask a vision model for box prompts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level")
}

// setup loads the configuration and builds the logger for a command.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// checkImagePath rejects inputs that are missing or not an image file.
func checkImagePath(path string) error {
	if !utils.FileExists(path) {
		return fmt.Errorf("image not found: %s", path)
	}
	if !utils.IsImageFile(path) {
		return fmt.Errorf("unsupported image type: %s", path)
	}
	return nil
}

func engineConfig(cfg *config.Config) annotator.Config {
	return annotator.Config{
		Zoom:      cfg.ZoomConfig(),
		Focus:     cfg.FocusTransformConfig(),
		Prompt:    cfg.GestureConfig(),
		Hierarchy: cfg.HierarchyLimits(),
	}
}
