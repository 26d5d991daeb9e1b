// Package suggest asks a vision model for the dominant object of an image
// and turns its answer into an image-space box prompt.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/overlay"
	"github.com/menta2k/image-annotator/pkg/types"
)

// ErrNoSubject is returned when the model found nothing worth boxing.
var ErrNoSubject = errors.New("no subject detected")

// DefaultPrompt asks for a single normalized box in JSON.
const DefaultPrompt = `You are an image object locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (<= 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the visually dominant object.
- Tags: lowercase, concise, no punctuation or duplicates.
- If no object is found, return label "none" with confidence 0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config tunes the suggester.
type Config struct {
	Model         string
	Prompt        string
	MaxDimension  int
	Quality       int
	MinConfidence float64
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Model:         "llava:13b",
		Prompt:        DefaultPrompt,
		MaxDimension:  1024,
		Quality:       85,
		MinConfidence: 0.2,
	}
}

// Suggestion is a model proposal mapped into image pixels.
type Suggestion struct {
	Box       types.Box       `json:"box"`
	Detection types.Detection `json:"detection"`
}

// Suggester proposes box prompts.
type Suggester struct {
	client client.VisionClient
	cfg    Config
	logger *zap.Logger
}

// New creates a suggester backed by a vision client.
func New(c client.VisionClient, cfg Config, logger *zap.Logger) *Suggester {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{client: c, cfg: cfg, logger: logger}
}

// Suggest encodes img, queries the model and returns the proposed box.
func (s *Suggester) Suggest(ctx context.Context, img image.Image) (*Suggestion, error) {
	b64, err := overlay.EncodeBase64(img, "jpg", s.cfg.MaxDimension, s.cfg.Quality)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	return s.SuggestEncoded(ctx, b64, overlay.Size(img))
}

// SuggestEncoded queries the model with an already encoded image of the
// given pixel size.
func (s *Suggester) SuggestEncoded(ctx context.Context, imgB64 string, size types.Size) (*Suggestion, error) {
	det, err := s.client.DetectObject(ctx, s.cfg.Model, s.cfg.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	det = normalize(det)

	if isNone(det) || det.Primary.Confidence < s.cfg.MinConfidence {
		s.logger.Debug("vision model found no subject",
			zap.String("label", det.Primary.Label),
			zap.Float64("confidence", det.Primary.Confidence))
		return nil, ErrNoSubject
	}

	box := ToImageBox(det.Primary.Box, size)
	if box.Width() <= 0 || box.Height() <= 0 {
		return nil, ErrNoSubject
	}
	return &Suggestion{Box: box, Detection: *det}, nil
}

// ToImageBox scales a normalized box to image pixels, clipped to the image.
func ToImageBox(nb types.NormalizedBox, size types.Size) types.Box {
	x0 := clamp(nb.X, 0, 1)
	y0 := clamp(nb.Y, 0, 1)
	x1 := clamp(nb.X+nb.W, 0, 1)
	y1 := clamp(nb.Y+nb.H, 0, 1)
	return types.NewBox(x0*size.Width, y0*size.Height, x1*size.Width, y1*size.Height)
}

func normalize(det *types.Detection) *types.Detection {
	out := *det
	b := det.Primary.Box
	out.Primary.Box = types.NormalizedBox{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
	out.Tags = normalizeTags(det.Tags)
	return &out
}

var fallbackIndicators = []string{"none", "unclear", "parse", "error", "fallback", "non-json"}

func isNone(det *types.Detection) bool {
	label := strings.ToLower(strings.TrimSpace(det.Primary.Label))
	if label == "" {
		return true
	}
	for _, ind := range fallbackIndicators {
		if strings.Contains(label, ind) {
			return true
		}
	}
	return false
}

// normalizeTags lowercases, dedupes and caps tags at five.
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
