package geometry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-annotator/pkg/types"
)

const eps = 1e-6

type scene struct {
	image     types.Size
	container types.Size
	rendered  types.Rect
}

// display maps an image-pixel point through rendered rect, zoom and pan.
func (s scene) display(p types.Point2D, tr Transform) types.Point2D {
	sx := s.rendered.Width / s.image.Width
	sy := s.rendered.Height / s.image.Height
	cx, cy := s.container.Width/2, s.container.Height/2
	return types.Point2D{
		X: tr.Zoom*(s.rendered.X+p.X*sx-cx) + tr.Pan.X + cx,
		Y: tr.Zoom*(s.rendered.Y+p.Y*sy-cy) + tr.Pan.Y + cy,
	}
}

func paddedCorners(b BBox, padding float64) (types.Point2D, types.Point2D) {
	px, py := b.Width*padding, b.Height*padding
	return types.Point2D{X: b.MinX - px, Y: b.MinY - py}, types.Point2D{X: b.MaxX + px, Y: b.MaxY + py}
}

func assertContained(t *testing.T, s scene, b BBox, tr Transform, padding float64) {
	t.Helper()
	lo, hi := paddedCorners(b, padding)
	dlo, dhi := s.display(lo, tr), s.display(hi, tr)
	assert.GreaterOrEqual(t, dlo.X, -eps)
	assert.GreaterOrEqual(t, dlo.Y, -eps)
	assert.LessOrEqual(t, dhi.X, s.container.Width+eps)
	assert.LessOrEqual(t, dhi.Y, s.container.Height+eps)
}

var (
	fitted = scene{
		image:     types.Size{Width: 1000, Height: 750},
		container: types.Size{Width: 800, Height: 600},
		rendered:  types.Rect{X: 0, Y: 0, Width: 800, Height: 600},
	}
	letterboxed = scene{
		image:     types.Size{Width: 2000, Height: 500},
		container: types.Size{Width: 800, Height: 600},
		rendered:  types.Rect{X: 0, Y: 200, Width: 800, Height: 200},
	}
)

func TestFocusTransformLargeObjectStaysAtMinZoom(t *testing.T) {
	cfg := DefaultFocusConfig()
	b := BoundingBox(pts(200, 150, 800, 600))

	tr := FocusTransform(b, fitted.image, fitted.container, fitted.rendered, cfg)

	assert.InDelta(t, 1.0, tr.Zoom, eps)
	assert.InDelta(t, 0, tr.Pan.X, eps)
	assert.InDelta(t, 0, tr.Pan.Y, eps)
	assertContained(t, fitted, b, tr, cfg.Padding)
}

func TestFocusTransformCentersObject(t *testing.T) {
	cfg := DefaultFocusConfig()
	b := BoundingBox(pts(900, 200, 1100, 300))

	tr := FocusTransform(b, letterboxed.image, letterboxed.container, letterboxed.rendered, cfg)

	// padded box is 280 image px wide -> 112 display px; 0.6*600/112
	assert.InDelta(t, 360.0/112.0, tr.Zoom, eps)
	center := letterboxed.display(types.Point2D{X: b.CenterX, Y: b.CenterY}, tr)
	assert.InDelta(t, 400, center.X, eps)
	assert.InDelta(t, 300, center.Y, eps)
	assertContained(t, letterboxed, b, tr, cfg.Padding)
}

func TestFocusTransformRetriesAtReducedZoomNearEdge(t *testing.T) {
	cfg := DefaultFocusConfig()
	b := BoundingBox(pts(10, 10, 60, 60))

	tr := FocusTransform(b, fitted.image, fitted.container, fitted.rendered, cfg)

	assert.InDelta(t, 4*0.85, tr.Zoom, eps)
	// clamped so the image's top-left corner sits on the container's
	origin := fitted.display(types.Point2D{}, tr)
	assert.InDelta(t, 0, origin.X, eps)
	assert.InDelta(t, 0, origin.Y, eps)
	assertContained(t, fitted, b, tr, cfg.Padding)
}

func TestFocusTransformDegenerateInputs(t *testing.T) {
	cfg := DefaultFocusConfig()

	tr := FocusTransform(BBox{}, types.Size{}, fitted.container, fitted.rendered, cfg)
	assert.Equal(t, Transform{Zoom: 1}, tr)

	point := BoundingBox(pts(500, 375))
	tr = FocusTransform(point, fitted.image, fitted.container, fitted.rendered, cfg)
	assert.InDelta(t, cfg.MaxZoom, tr.Zoom, eps)
}

func TestFocusTransformContainmentProperty(t *testing.T) {
	cfg := DefaultFocusConfig()
	rng := rand.New(rand.NewSource(42))

	for _, s := range []scene{fitted, letterboxed} {
		checked := 0
		for i := 0; i < 500; i++ {
			x1 := rng.Float64() * s.image.Width
			y1 := rng.Float64() * s.image.Height
			x2 := x1 + rng.Float64()*(s.image.Width-x1)
			y2 := y1 + rng.Float64()*(s.image.Height-y1)
			b := BoundingBox(pts(x1, y1, x2, y2))

			lo, hi := paddedCorners(b, cfg.Padding)
			if lo.X < 0 || lo.Y < 0 || hi.X > s.image.Width || hi.Y > s.image.Height {
				continue
			}
			checked++

			tr := FocusTransform(b, s.image, s.container, s.rendered, cfg)
			require.GreaterOrEqual(t, tr.Zoom, 1.0)
			require.LessOrEqual(t, tr.Zoom, 4.0)
			assertContained(t, s, b, tr, cfg.Padding)
		}
		require.NotZero(t, checked)
	}
}

func BenchmarkFocusTransform(b *testing.B) {
	cfg := DefaultFocusConfig()
	box := BoundingBox(pts(10, 10, 60, 60))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FocusTransform(box, fitted.image, fitted.container, fitted.rendered, cfg)
	}
}
