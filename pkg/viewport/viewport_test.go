package viewport

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
)

const eps = 1e-6

func testFrame() Frame {
	return ContainFrame(types.Size{Width: 1200, Height: 600}, types.Size{Width: 800, Height: 600})
}

func TestContainFrame(t *testing.T) {
	f := testFrame()
	assertRect(t, types.Rect{X: 0, Y: 100, Width: 800, Height: 400}, f.Rendered)
	assert.True(t, f.Valid())

	tall := ContainFrame(types.Size{Width: 100, Height: 400}, types.Size{Width: 800, Height: 600})
	assertRect(t, types.Rect{X: 325, Y: 0, Width: 150, Height: 600}, tall.Rendered)

	assert.False(t, ContainFrame(types.Size{}, types.Size{Width: 10, Height: 10}).Valid())
}

func assertRect(t *testing.T, want, got types.Rect) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps)
	assert.InDelta(t, want.Y, got.Y, eps)
	assert.InDelta(t, want.Width, got.Width, eps)
	assert.InDelta(t, want.Height, got.Height, eps)
}

func TestImageToDisplayIdentity(t *testing.T) {
	f := testFrame()
	d := ImageToDisplay(types.Point2D{X: 600, Y: 300}, Identity(), f)
	assert.InDelta(t, 400, d.X, eps)
	assert.InDelta(t, 300, d.Y, eps)

	d = ImageToDisplay(types.Point2D{}, Identity(), f)
	assert.InDelta(t, 0, d.X, eps)
	assert.InDelta(t, 100, d.Y, eps)
}

func TestRoundTripProperty(t *testing.T) {
	f := testFrame()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		v := Viewport{
			Zoom: 0.1 + rng.Float64()*9.9,
			Pan:  types.Point2D{X: rng.Float64()*4000 - 2000, Y: rng.Float64()*4000 - 2000},
		}
		p := types.Point2D{X: rng.Float64() * f.Image.Width, Y: rng.Float64() * f.Image.Height}

		back, inside := DisplayToImage(ImageToDisplay(p, v, f), v, f)
		require.True(t, inside)
		require.InDelta(t, p.X, back.X, 1e-6)
		require.InDelta(t, p.Y, back.Y, 1e-6)
	}
}

func TestDisplayToImageOutside(t *testing.T) {
	f := testFrame()

	// letterbox band above the image
	_, inside := DisplayToImage(types.Point2D{X: 400, Y: 50}, Identity(), f)
	assert.False(t, inside)

	p, inside := DisplayToImage(types.Point2D{X: 400, Y: 300}, Identity(), f)
	assert.True(t, inside)
	assert.InDelta(t, 600, p.X, eps)

	_, inside = DisplayToImage(types.Point2D{X: 400, Y: 300}, Viewport{}, f)
	assert.False(t, inside, "zero zoom cannot be inverted")

	_, inside = DisplayToImage(types.Point2D{X: 1, Y: 1}, Identity(), Frame{})
	assert.False(t, inside)
}

func TestZoomAroundCursorFixedPoint(t *testing.T) {
	f := testFrame()
	cfg := DefaultZoomConfig()
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 500; i++ {
		v := Viewport{
			Zoom: 0.1 + rng.Float64()*9.9,
			Pan:  types.Point2D{X: rng.Float64()*600 - 300, Y: rng.Float64()*600 - 300},
		}
		cursor := types.Point2D{X: rng.Float64() * f.Container.Width, Y: rng.Float64() * f.Container.Height}
		dir := ZoomIn
		if i%2 == 1 {
			dir = ZoomOut
		}

		under, _ := DisplayToImage(cursor, v, f)
		next := ZoomAt(v, f, cursor, dir, cfg)
		require.GreaterOrEqual(t, next.Zoom, cfg.Min)
		require.LessOrEqual(t, next.Zoom, cfg.Max)

		after := ImageToDisplay(under, next, f)
		require.InDelta(t, cursor.X, after.X, 1e-6)
		require.InDelta(t, cursor.Y, after.Y, 1e-6)
	}
}

func TestZoomAroundCursorStepAndClamp(t *testing.T) {
	cfg := DefaultZoomConfig()

	v := ZoomAroundCursor(1, types.Point2D{}, types.Point2D{}, ZoomIn, cfg)
	assert.InDelta(t, 1.1, v.Zoom, eps)

	v = ZoomAroundCursor(1, types.Point2D{}, types.Point2D{}, ZoomOut, cfg)
	assert.InDelta(t, 1/1.1, v.Zoom, eps)

	v = ZoomAroundCursor(10, types.Point2D{X: 5, Y: 5}, types.Point2D{X: 50, Y: 50}, ZoomIn, cfg)
	assert.Equal(t, 10.0, v.Zoom)
	assert.Equal(t, types.Point2D{X: 5, Y: 5}, v.Pan, "clamped zoom leaves pan alone")

	v = ZoomAroundCursor(0.1, types.Point2D{}, types.Point2D{}, ZoomOut, cfg)
	assert.Equal(t, 0.1, v.Zoom)
}

func TestPanIsFree(t *testing.T) {
	v := Pan(Identity(), types.Point2D{X: -5000, Y: 12})
	v = Pan(v, types.Point2D{X: 1, Y: 1})
	assert.Equal(t, types.Point2D{X: -4999, Y: 13}, v.Pan)
	assert.Equal(t, 1.0, v.Zoom)
}

func TestFromTransform(t *testing.T) {
	v := FromTransform(geometry.Transform{Zoom: 2, Pan: types.Point2D{X: 3, Y: 4}})
	assert.Equal(t, Viewport{Zoom: 2, Pan: types.Point2D{X: 3, Y: 4}}, v)
	assert.True(t, v.Valid())
	assert.False(t, Viewport{}.Valid())
}

func TestImageRectToDisplay(t *testing.T) {
	f := testFrame()
	r := ImageRectToDisplay(types.NewBox(0, 0, 600, 300), Identity(), f)
	assert.InDelta(t, 0, r.X, eps)
	assert.InDelta(t, 100, r.Y, eps)
	assert.InDelta(t, 400, r.Width, eps)
	assert.InDelta(t, 200, r.Height, eps)
}
