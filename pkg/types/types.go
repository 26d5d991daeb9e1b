package types

import (
	"fmt"
	"strings"
)

// Point2D is a 2D coordinate. It carries no space of its own: every function
// that consumes or produces one documents whether it is image-pixel space or
// display space.
type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p+q.
func (p Point2D) Add(q Point2D) Point2D { return Point2D{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point2D) Sub(q Point2D) Point2D { return Point2D{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p*k.
func (p Point2D) Scale(k float64) Point2D { return Point2D{X: p.X * k, Y: p.Y * k} }

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the center point of the rectangle
func (r Rect) Center() Point2D {
	return Point2D{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Box is an axis-aligned box in image-pixel space. Boxes built with NewBox
// are normalized so that X1 <= X2 and Y1 <= Y2.
type Box struct {
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
	X2 float64 `json:"x2" yaml:"x2"`
	Y2 float64 `json:"y2" yaml:"y2"`
}

// NewBox returns the normalized box spanned by two opposite corners.
func NewBox(x1, y1, x2, y2 float64) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Corners returns the four corners clockwise from the top-left.
func (b Box) Corners() [4]Point2D {
	return [4]Point2D{{X: b.X1, Y: b.Y1}, {X: b.X2, Y: b.Y1}, {X: b.X2, Y: b.Y2}, {X: b.X1, Y: b.Y2}}
}

// Polarity marks a prompt as foreground (positive) or background (negative).
// The numeric values match the segmentation service's point label.
type Polarity int

const (
	Negative Polarity = 0
	Positive Polarity = 1
)

func (p Polarity) String() string {
	if p == Positive {
		return "positive"
	}
	return "negative"
}

// MarshalText encodes the polarity by name.
func (p Polarity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts "positive"/"negative" and the numeric labels "1"/"0".
func (p *Polarity) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "positive", "1", "+":
		*p = Positive
	case "negative", "0", "-":
		*p = Negative
	default:
		return fmt.Errorf("unknown polarity %q", string(text))
	}
	return nil
}

// PromptKind discriminates the Prompt union.
type PromptKind string

const (
	KindPoint   PromptKind = "point"
	KindBox     PromptKind = "box"
	KindPolygon PromptKind = "polygon"
)

// Prompt is a committed user prompt. Only the fields matching Kind are
// meaningful. All coordinates are image-pixel space so prompts survive
// zoom and pan changes. Prompts are treated as immutable once built.
type Prompt struct {
	ID       string     `json:"id"`
	Kind     PromptKind `json:"kind"`
	Polarity Polarity   `json:"polarity"`
	Point    Point2D    `json:"point,omitempty"`
	Box      Box        `json:"box,omitempty"`
	Polygon  []Point2D  `json:"polygon,omitempty"`
}

// NewPointPrompt builds a point prompt.
func NewPointPrompt(id string, p Point2D, polarity Polarity) Prompt {
	return Prompt{ID: id, Kind: KindPoint, Polarity: polarity, Point: p}
}

// NewBoxPrompt builds a positive box prompt, normalizing the corners.
func NewBoxPrompt(id string, b Box) Prompt {
	return Prompt{ID: id, Kind: KindBox, Polarity: Positive, Box: NewBox(b.X1, b.Y1, b.X2, b.Y2)}
}

// NewPolygonPrompt builds a closed polygon prompt. It requires at least
// three vertices and copies the slice.
func NewPolygonPrompt(id string, pts []Point2D) (Prompt, error) {
	if len(pts) < 3 {
		return Prompt{}, fmt.Errorf("polygon with %d vertices: %w", len(pts), ErrTooFewVertices)
	}
	cp := make([]Point2D, len(pts))
	copy(cp, pts)
	return Prompt{ID: id, Kind: KindPolygon, Polarity: Positive, Polygon: cp}, nil
}

// NormalizedBox represents a bounding box with coordinates in [0,1] range
type NormalizedBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Box        NormalizedBox `json:"box"`
	Cx         float64       `json:"cx"`
	Cy         float64       `json:"cy"`
}

// Detection contains the result returned by the vision model
type Detection struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
