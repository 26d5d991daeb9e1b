package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	annotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/metrics"
	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/overlay"
	"github.com/menta2k/image-annotator/pkg/repository/redis"
	"github.com/menta2k/image-annotator/pkg/segment"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Replay a scripted annotation session",
	Long: `Runs the events of a YAML session script through the annotation engine,
then writes the final state as JSON and an overlay image of prompts and objects.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.String("image", "", "image to annotate; sets the image id and size when the script has none")
	f.String("out", "", "output directory (defaults to output.dir)")
	f.String("format", "", "overlay format: png|jpg|webp (defaults to output.format)")
	f.Bool("segment", false, "send segmentation requests to segment.url")
	f.String("store", "none", "hierarchy store: none|http|redis")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	script, err := LoadScript(args[0])
	if err != nil {
		return err
	}

	imagePath, _ := cmd.Flags().GetString("image")
	var img image.Image
	if imagePath != "" {
		if err := checkImagePath(imagePath); err != nil {
			return err
		}
		if img, err = overlay.LoadImage(imagePath); err != nil {
			return err
		}
		if script.ImageID == "" {
			script.ImageID = utils.ImageIDFromPath(imagePath)
		}
		if script.Size.Empty() {
			script.Size = overlay.Size(img)
		}
	}
	if script.ImageID == "" || script.Size.Empty() {
		return fmt.Errorf("script needs image_id and size, or pass --image")
	}

	reg := prometheus.NewRegistry()
	opts := []annotator.Option{
		annotator.WithLogger(logger),
		annotator.WithMetrics(metrics.New(reg)),
	}
	useSegment, _ := cmd.Flags().GetBool("segment")
	store, _ := cmd.Flags().GetString("store")
	var seg *segment.Client
	if useSegment || store == "http" {
		seg, err = segment.NewClient(cfg.Segment.URL,
			segment.WithLogger(logger),
			segment.WithTimeout(cfg.Segment.Timeout))
		if err != nil {
			return err
		}
	}
	if useSegment {
		opts = append(opts, annotator.WithSegmenter(seg))
	}
	repo, err := hierarchyStore(store, cfg, seg)
	if err != nil {
		return err
	}
	if repo != nil {
		opts = append(opts, annotator.WithRepository(repo))
	}

	eng := annotator.New(engineConfig(cfg), opts...)
	r := &runner{eng: eng, logger: logger, dispatch: useSegment}
	if err := r.Run(cmd.Context(), script); err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.Output.Format
	}
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	state := eng.Snapshot()
	name := utils.SanitizeFilename(state.ImageID)
	statePath := filepath.Join(outDir, name+"_state.json")
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.WriteFile(statePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	logger.Info("wrote state", zap.String("path", statePath))

	if img == nil {
		img = imaging.New(int(state.Frame.Image.Width), int(state.Frame.Image.Height), color.NRGBA{40, 40, 40, 255})
	}
	scene := overlay.Scene{
		Objects:  state.VisibleObjects(),
		Selected: state.Hierarchy.Selected(),
		Prompts:  state.Prompts.Prompts(),
		Focus:    state.Focus.Mask(),
	}
	overlayPath := utils.GenerateOutputFilename(name, outDir, "_overlay", format)
	if err := overlay.SaveImage(overlay.Render(img, scene), overlayPath, format, cfg.Output.Quality, false); err != nil {
		return err
	}
	logger.Info("wrote overlay", zap.String("path", overlayPath))

	families, err := reg.Gather()
	if err == nil {
		for _, mf := range families {
			logger.Debug("metric", zap.String("name", mf.GetName()), zap.Int("series", len(mf.GetMetric())))
		}
	}
	return nil
}

func hierarchyStore(kind string, cfg *config.Config, seg *segment.Client) (client.HierarchyRepository, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "http":
		return seg, nil
	case "redis":
		return redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}
