package overlay

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-annotator/pkg/geometry"
)

// CropToObject crops img to the object's bounding box grown by padding (a
// fraction of the box size on each side), clipped to the image.
func CropToObject(img image.Image, box geometry.BBox, padding float64) (image.Image, error) {
	if box.Empty() {
		return nil, fmt.Errorf("crop: empty bounding box")
	}
	padX, padY := box.Width*padding, box.Height*padding
	rect := image.Rect(
		int(math.Floor(box.MinX-padX)),
		int(math.Floor(box.MinY-padY)),
		int(math.Ceil(box.MaxX+padX)),
		int(math.Ceil(box.MaxY+padY)),
	).Add(img.Bounds().Min).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop: box lies outside the image")
	}
	return imaging.Crop(img, rect), nil
}
