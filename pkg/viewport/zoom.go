package viewport

import (
	"github.com/menta2k/image-annotator/pkg/types"
)

// Direction of a zoom step.
type Direction int

const (
	ZoomOut Direction = -1
	ZoomIn  Direction = 1
)

// ZoomConfig holds the wheel zoom policy.
type ZoomConfig struct {
	Step float64
	Min  float64
	Max  float64
}

// DefaultZoomConfig returns a 1.1x step clamped to [0.1, 10].
func DefaultZoomConfig() ZoomConfig {
	return ZoomConfig{Step: 1.1, Min: 0.1, Max: 10}
}

// ZoomAroundCursor applies one zoom step and recomputes pan so the point
// under the cursor stays put. cursor is a display point measured from the
// container center, which is the origin zoom scales around.
func ZoomAroundCursor(zoom float64, pan, cursor types.Point2D, dir Direction, cfg ZoomConfig) Viewport {
	newZoom := zoom
	switch {
	case dir > 0:
		newZoom = zoom * cfg.Step
	case dir < 0:
		newZoom = zoom / cfg.Step
	}
	newZoom = clamp(newZoom, cfg.Min, cfg.Max)

	ratio := newZoom / zoom
	return Viewport{
		Zoom: newZoom,
		Pan:  cursor.Sub(cursor.Sub(pan).Scale(ratio)),
	}
}

// ZoomAt zooms around a cursor given in display coordinates.
func ZoomAt(v Viewport, f Frame, cursor types.Point2D, dir Direction, cfg ZoomConfig) Viewport {
	if !v.Valid() {
		v = Identity()
	}
	return ZoomAroundCursor(v.Zoom, v.Pan, cursor.Sub(f.Center()), dir, cfg)
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
