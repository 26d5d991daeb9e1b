package geometry

import (
	"math"

	"github.com/menta2k/image-annotator/pkg/types"
)

// FocusConfig tunes the focus transform solver.
type FocusConfig struct {
	// Padding inflates the object box on each side, as a fraction of its size.
	Padding float64
	// TargetFill is the share of the shorter container side the padded box should occupy.
	TargetFill float64
	MinZoom    float64
	MaxZoom    float64
	// RetryTolerance is the display distance between ideal and clamped pan
	// above which a single retry at reduced zoom is attempted.
	RetryTolerance float64
	RetryReduction float64
	// RetryMinZoom is the zoom level a retry requires.
	RetryMinZoom float64
}

// DefaultFocusConfig returns the standard focus policy.
func DefaultFocusConfig() FocusConfig {
	return FocusConfig{
		Padding:        0.2,
		TargetFill:     0.6,
		MinZoom:        1,
		MaxZoom:        4,
		RetryTolerance: 100,
		RetryReduction: 0.15,
		RetryMinZoom:   1.5,
	}
}

// Transform is a zoom level and pan offset in display units.
type Transform struct {
	Zoom float64       `json:"zoom"`
	Pan  types.Point2D `json:"pan"`
}

// FocusTransform computes the zoom and pan that center an object in the
// container. box is in image-pixel space, rendered is the image's fitted
// rectangle inside the container before zoom and pan. Display positions
// follow display = zoom*(p - containerCenter) + pan + containerCenter.
func FocusTransform(box BBox, imageSize, containerSize types.Size, rendered types.Rect, cfg FocusConfig) Transform {
	if imageSize.Empty() || containerSize.Empty() || rendered.Width <= 0 || rendered.Height <= 0 {
		return Transform{Zoom: 1}
	}

	sx := rendered.Width / imageSize.Width
	sy := rendered.Height / imageSize.Height

	paddedW := box.Width * (1 + 2*cfg.Padding) * sx
	paddedH := box.Height * (1 + 2*cfg.Padding) * sy

	zoom := cfg.MaxZoom
	if longest := math.Max(paddedW, paddedH); longest > 0 {
		zoom = cfg.TargetFill * math.Min(containerSize.Width, containerSize.Height) / longest
	}
	zoom = clamp(zoom, cfg.MinZoom, cfg.MaxZoom)

	center := types.Point2D{X: rendered.X + box.CenterX*sx, Y: rendered.Y + box.CenterY*sy}
	ideal, clamped := solvePan(zoom, center, containerSize, rendered)

	if distance(ideal, clamped) > cfg.RetryTolerance && zoom > cfg.RetryMinZoom {
		zoom = math.Max(zoom*(1-cfg.RetryReduction), cfg.MinZoom)
		_, clamped = solvePan(zoom, center, containerSize, rendered)
	}

	return Transform{Zoom: zoom, Pan: clamped}
}

// solvePan returns the pan that puts center on the container center and
// the same pan clamped to the image bounds.
func solvePan(zoom float64, center types.Point2D, container types.Size, rendered types.Rect) (types.Point2D, types.Point2D) {
	cx, cy := container.Width/2, container.Height/2
	ideal := types.Point2D{X: zoom * (cx - center.X), Y: zoom * (cy - center.Y)}
	clamped := types.Point2D{
		X: clampAxis(ideal.X, zoom, rendered.X, rendered.Width, cx, container.Width),
		Y: clampAxis(ideal.Y, zoom, rendered.Y, rendered.Height, cy, container.Height),
	}
	return ideal, clamped
}

// clampAxis bounds pan on one axis. When the scaled image is longer than
// the container it must cover the container; otherwise it must stay inside.
func clampAxis(pan, zoom, start, length, c, extent float64) float64 {
	leadingAtZero := -c - zoom*(start-c)
	trailingAtExtent := extent - c - zoom*(start+length-c)
	if zoom*length > extent {
		return clamp(pan, trailingAtExtent, leadingAtZero)
	}
	return clamp(pan, leadingAtZero, trailingAtExtent)
}

func distance(a, b types.Point2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
