// Package viewport converts between image-pixel space and the zoomed, panned
// display space of the annotation canvas.
//
// Display space is the container's coordinate system. The image is first
// fitted into the container (Frame.Rendered), then scaled around the
// container center by Zoom and finally translated by Pan:
//
//	display = zoom*(rendered(p) - containerCenter) + pan + containerCenter
package viewport

import (
	"math"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Viewport holds the user's zoom level and pan offset.
type Viewport struct {
	Zoom float64       `json:"zoom"`
	Pan  types.Point2D `json:"pan"`
}

// Identity is the viewport every new image starts with.
func Identity() Viewport {
	return Viewport{Zoom: 1}
}

// FromTransform adopts a solved focus transform.
func FromTransform(t geometry.Transform) Viewport {
	return Viewport{Zoom: t.Zoom, Pan: t.Pan}
}

// Valid reports whether the zoom level is a positive finite number.
func (v Viewport) Valid() bool {
	return v.Zoom > 0 && !math.IsInf(v.Zoom, 0) && !math.IsNaN(v.Zoom)
}

// Frame describes where the image sits in the container before zoom/pan.
type Frame struct {
	Image     types.Size `json:"image"`
	Container types.Size `json:"container"`
	Rendered  types.Rect `json:"rendered"`
}

// ContainFrame fits the image inside the container preserving its aspect
// ratio and centers it.
func ContainFrame(image, container types.Size) Frame {
	f := Frame{Image: image, Container: container}
	if image.Empty() || container.Empty() {
		return f
	}

	scale := math.Min(container.Width/image.Width, container.Height/image.Height)
	w, h := image.Width*scale, image.Height*scale
	f.Rendered = types.Rect{
		X:      (container.Width - w) / 2,
		Y:      (container.Height - h) / 2,
		Width:  w,
		Height: h,
	}
	return f
}

// Valid reports whether the frame can map coordinates.
func (f Frame) Valid() bool {
	return !f.Image.Empty() && !f.Container.Empty() && f.Rendered.Width > 0 && f.Rendered.Height > 0
}

// Center returns the container center in display space.
func (f Frame) Center() types.Point2D {
	return types.Point2D{X: f.Container.Width / 2, Y: f.Container.Height / 2}
}

func (f Frame) scale() (float64, float64) {
	return f.Rendered.Width / f.Image.Width, f.Rendered.Height / f.Image.Height
}

// ImageToDisplay maps an image-pixel point to display space.
func ImageToDisplay(p types.Point2D, v Viewport, f Frame) types.Point2D {
	if !f.Valid() {
		return types.Point2D{}
	}
	sx, sy := f.scale()
	c := f.Center()
	return types.Point2D{
		X: v.Zoom*(f.Rendered.X+p.X*sx-c.X) + v.Pan.X + c.X,
		Y: v.Zoom*(f.Rendered.Y+p.Y*sy-c.Y) + v.Pan.Y + c.Y,
	}
}

// DisplayToImage maps a display point back to image-pixel space. The bool
// is false when the point falls outside the image (or the frame or viewport
// cannot map anything); the returned coordinates are still the unclamped
// mapping in that case.
func DisplayToImage(p types.Point2D, v Viewport, f Frame) (types.Point2D, bool) {
	if !f.Valid() || !v.Valid() {
		return types.Point2D{}, false
	}
	sx, sy := f.scale()
	c := f.Center()
	img := types.Point2D{
		X: ((p.X-v.Pan.X-c.X)/v.Zoom + c.X - f.Rendered.X) / sx,
		Y: ((p.Y-v.Pan.Y-c.Y)/v.Zoom + c.Y - f.Rendered.Y) / sy,
	}
	inside := img.X >= 0 && img.Y >= 0 && img.X <= f.Image.Width && img.Y <= f.Image.Height
	return img, inside
}

// ImageRectToDisplay maps an image-space box to its display rectangle.
func ImageRectToDisplay(b types.Box, v Viewport, f Frame) types.Rect {
	lo := ImageToDisplay(types.Point2D{X: b.X1, Y: b.Y1}, v, f)
	hi := ImageToDisplay(types.Point2D{X: b.X2, Y: b.Y2}, v, f)
	return types.Rect{X: lo.X, Y: lo.Y, Width: hi.X - lo.X, Height: hi.Y - lo.Y}
}

// Pan shifts the viewport by a display-space drag delta. Panning is free:
// nothing keeps the image on screen.
func Pan(v Viewport, delta types.Point2D) Viewport {
	v.Pan = v.Pan.Add(delta)
	return v
}
