package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	annotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/llamacpp"
	"github.com/menta2k/image-annotator/pkg/ollama"
	"github.com/menta2k/image-annotator/pkg/overlay"
	"github.com/menta2k/image-annotator/pkg/suggest"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <image>",
	Short: "Ask a vision model for a box prompt around the main subject",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	f := suggestCmd.Flags()
	f.String("model", "", "vision model (defaults to vision.model)")
	f.String("backend", "", "vision backend: ollama|llamacpp (defaults to vision.backend)")
	f.String("url", "", "vision server URL (defaults to vision.url)")
	f.String("out", "", "write an overlay and a crop of the suggestion to this directory")
	f.Float64("padding", 0.1, "crop padding as a fraction of the box size")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		cfg.Vision.Backend = b
	}
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		cfg.Vision.URL = u
	}
	vision, err := visionClient(cfg, logger)
	if err != nil {
		return err
	}

	scfg := suggest.DefaultConfig()
	scfg.Model = cfg.Vision.Model
	if m, _ := cmd.Flags().GetString("model"); m != "" {
		scfg.Model = m
	}
	scfg.MaxDimension = cfg.Vision.MaxDimension
	scfg.Quality = cfg.Vision.Quality
	scfg.MinConfidence = cfg.Vision.MinConfidence

	if err := checkImagePath(args[0]); err != nil {
		return err
	}
	img, err := overlay.LoadImage(args[0])
	if err != nil {
		return err
	}
	eng := annotator.New(engineConfig(cfg),
		annotator.WithLogger(logger),
		annotator.WithSuggester(suggest.New(vision, scfg, logger)))
	if _, err := eng.SetImage(utils.ImageIDFromPath(args[0]), overlay.Size(img)); err != nil {
		return err
	}

	out, sug, err := eng.SuggestBox(cmd.Context(), img)
	if err != nil {
		return err
	}
	js, _ := json.MarshalIndent(sug, "", "  ")
	fmt.Println(string(js))

	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		return nil
	}
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	format := cfg.Output.Format
	overlayPath := utils.GenerateOutputFilename(args[0], outDir, "_suggestion", format)
	rendered := overlay.Render(img, overlay.Scene{Prompts: out.State.Prompts.Prompts()})
	if err := overlay.SaveImage(rendered, overlayPath, format, cfg.Output.Quality, false); err != nil {
		return err
	}
	logger.Info("wrote overlay", zap.String("path", overlayPath))

	padding, _ := cmd.Flags().GetFloat64("padding")
	corners := sug.Box.Corners()
	crop, err := overlay.CropToObject(img, geometry.BoundingBox(corners[:]), padding)
	if err != nil {
		return err
	}
	cropPath := utils.GenerateOutputFilename(args[0], outDir, "_crop", format)
	if err := overlay.SaveImage(crop, cropPath, format, cfg.Output.Quality, false); err != nil {
		return err
	}
	logger.Info("wrote crop", zap.String("path", cropPath))
	return nil
}

func visionClient(cfg *config.Config, logger *zap.Logger) (client.VisionClient, error) {
	switch cfg.Vision.Backend {
	case "ollama":
		c, err := ollama.NewClient(cfg.Vision.URL, ollama.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.Vision.URL, llamacpp.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q (use ollama or llamacpp)", cfg.Vision.Backend)
	}
}
