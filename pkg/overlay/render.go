package overlay

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Scene is the annotation state drawn by Render. All coordinates are image
// pixels.
type Scene struct {
	Objects  []hierarchy.Object
	Selected []string
	Prompts  []types.Prompt
	Focus    []types.Point2D
}

var (
	positiveColor = color.NRGBA{0, 220, 0, 255}
	negativeColor = color.NRGBA{230, 0, 0, 255}
	boxColor      = color.NRGBA{255, 204, 0, 255}
	focusColor    = color.NRGBA{255, 255, 255, 255}
	fallbackColor = color.NRGBA{0, 170, 255, 255}
)

// Render returns a copy of img with the scene drawn on top. Selected
// objects get a thicker outline.
func Render(img image.Image, s Scene) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	stroke := int(math.Max(1, 0.003*float64(min(b.Dx(), b.Dy()))))

	selected := make(map[string]bool, len(s.Selected))
	for _, id := range s.Selected {
		selected[id] = true
	}

	for _, o := range s.Objects {
		w := stroke
		if selected[o.ID] {
			w = stroke * 2
		}
		drawPolygon(out, o.Points(), parseColor(o.Color), w)
	}
	if len(s.Focus) > 0 {
		drawPolygon(out, s.Focus, focusColor, stroke*2)
	}

	cross := int(math.Max(4, 0.01*float64(min(b.Dx(), b.Dy()))))
	for _, p := range s.Prompts {
		switch p.Kind {
		case types.KindPoint:
			c := positiveColor
			if p.Polarity == types.Negative {
				c = negativeColor
			}
			drawCross(out, p.Point, cross, c)
		case types.KindBox:
			corners := p.Box.Corners()
			drawPolygon(out, corners[:], boxColor, stroke)
		case types.KindPolygon:
			drawPolygon(out, p.Polygon, boxColor, stroke)
		}
	}
	return out
}

func parseColor(hex string) color.NRGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fallbackColor
	}
	r, g, b := c.RGB255()
	return color.NRGBA{r, g, b, 255}
}

func drawPolygon(img *image.NRGBA, pts []types.Point2D, c color.NRGBA, stroke int) {
	if len(pts) < 2 {
		return
	}
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		drawLine(img, a, b, c, stroke)
	}
}

func drawCross(img *image.NRGBA, p types.Point2D, size int, c color.NRGBA) {
	s := float64(size)
	drawLine(img, types.Point2D{X: p.X - s, Y: p.Y}, types.Point2D{X: p.X + s, Y: p.Y}, c, 2)
	drawLine(img, types.Point2D{X: p.X, Y: p.Y - s}, types.Point2D{X: p.X, Y: p.Y + s}, c, 2)
}

// drawLine rasterizes a segment with Bresenham's algorithm, stamping a
// stroke x stroke square at each step.
func drawLine(img *image.NRGBA, a, b types.Point2D, c color.NRGBA, stroke int) {
	x0, y0 := int(math.Round(a.X)), int(math.Round(a.Y))
	x1, y1 := int(math.Round(b.X)), int(math.Round(b.Y))
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	e := dx + dy
	for {
		stamp(img, x0, y0, c, stroke)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func stamp(img *image.NRGBA, x, y int, c color.NRGBA, stroke int) {
	half := stroke / 2
	for yy := y - half; yy < y-half+stroke; yy++ {
		for xx := x - half; xx < x-half+stroke; xx++ {
			if image.Pt(xx, yy).In(img.Bounds()) {
				img.SetNRGBA(xx, yy, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
