// Package geometry implements the stateless geometry used by the annotation
// engine: polygon containment, bounding boxes, focus-mask checks and the
// focus transform solver.
package geometry

import (
	"math"

	"github.com/menta2k/image-annotator/pkg/types"
)

// BBox is an axis-aligned bounding box with derived size and center.
type BBox struct {
	MinX    float64 `json:"min_x"`
	MinY    float64 `json:"min_y"`
	MaxX    float64 `json:"max_x"`
	MaxY    float64 `json:"max_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

// Empty reports whether the box has no area.
func (b BBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// PointInPolygon reports whether (x, y) lies inside the polygon using an
// even-odd ray cast. Edges are half-open: for an axis-aligned polygon a
// point on a minimum-x or minimum-y edge is inside, a point on a maximum-x
// or maximum-y edge is outside. Fewer than 3 vertices is never a polygon.
func PointInPolygon(x, y float64, pts []types.Point2D) bool {
	n := len(pts)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := pts[i].X, pts[i].Y
		xj, yj := pts[j].X, pts[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// BoundingBox computes the bounding box of the points in a single pass.
// Empty input yields the all-zero box.
func BoundingBox(pts []types.Point2D) BBox {
	if len(pts) == 0 {
		return BBox{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	return BBox{
		MinX:    minX,
		MinY:    minY,
		MaxX:    maxX,
		MaxY:    maxY,
		Width:   maxX - minX,
		Height:  maxY - minY,
		CenterX: (minX + maxX) / 2,
		CenterY: (minY + maxY) / 2,
	}
}

// IsPointInFocusedObject reports whether a prompt at (x, y) is allowed by
// the focus mask. An absent mask places no restriction.
func IsPointInFocusedObject(x, y float64, mask []types.Point2D) bool {
	if len(mask) == 0 {
		return true
	}
	return PointInPolygon(x, y, mask)
}

// IsBoxInFocusedObject reports whether all four corners of the box lie in
// the focus mask. Only corners are tested, so a box whose edges leave a
// concave mask between two corners is still accepted.
func IsBoxInFocusedObject(x1, y1, x2, y2 float64, mask []types.Point2D) bool {
	if len(mask) == 0 {
		return true
	}
	for _, c := range types.NewBox(x1, y1, x2, y2).Corners() {
		if !PointInPolygon(c.X, c.Y, mask) {
			return false
		}
	}
	return true
}

// PolygonArea returns the unsigned shoelace area.
func PolygonArea(pts []types.Point2D) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		sum += pts[j].X*pts[i].Y - pts[i].X*pts[j].Y
	}
	return math.Abs(sum) / 2
}

// ContourPoints zips parallel coordinate slices into points. Extra
// coordinates on the longer slice are dropped.
func ContourPoints(xs, ys []float64) []types.Point2D {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	pts := make([]types.Point2D, n)
	for i := 0; i < n; i++ {
		pts[i] = types.Point2D{X: xs[i], Y: ys[i]}
	}
	return pts
}
