package hierarchy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
)

// PlaceholderLabel is the default name given to objects nobody has labeled.
const PlaceholderLabel = "Object"

// Object is one node of the flattened contour hierarchy. ParentID is the
// only authoritative edge; children are derived on demand.
type Object struct {
	ID         string    `json:"id"`
	ContourID  *int64    `json:"contour_id"`
	X          []float64 `json:"x"`
	Y          []float64 `json:"y"`
	ParentID   string    `json:"parent_id,omitempty"`
	Label      string    `json:"label,omitempty"`
	LabelID    *int64    `json:"label_id"`
	LabelOrder int       `json:"label_assignment_order,omitempty"`
	Color      string    `json:"color"`
	Temporary  bool      `json:"temporary"`
	AddedBy    string    `json:"added_by,omitempty"`
}

// Points returns the outline as points.
func (o Object) Points() []types.Point2D {
	return geometry.ContourPoints(o.X, o.Y)
}

// Bounds returns the outline's bounding box.
func (o Object) Bounds() geometry.BBox {
	return geometry.BoundingBox(o.Points())
}

// HasValidLabel reports whether the object carries a real label.
func (o Object) HasValidLabel() bool {
	return ValidLabel(o.Label)
}

// Patch is a partial update of an object. Nil fields are left unchanged.
type Patch struct {
	Label      *string
	LabelID    *int64
	ClearLabel bool
	X          []float64
	Y          []float64
	Temporary  *bool
	AddedBy    *string
}

func (p Patch) touchesLabel() bool {
	return p.Label != nil || p.LabelID != nil || p.ClearLabel
}

// ValidLabel reports whether name counts as a label: not blank, not the
// placeholder and not purely numeric.
func ValidLabel(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == PlaceholderLabel {
		return false
	}
	for _, r := range name {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// ResolveLabel looks up a label id, falling back to a synthesized name.
func ResolveLabel(id int64, labels map[int64]string) string {
	if name, ok := labels[id]; ok {
		return name
	}
	return fmt.Sprintf("Label %d", id)
}

// colorKey picks the key an object's color is derived from: its label id,
// then its label name when that is a valid label, then its own id.
func colorKey(o *Object) string {
	switch {
	case o.LabelID != nil:
		return fmt.Sprintf("label-id:%d", *o.LabelID)
	case ValidLabel(o.Label):
		return "label:" + o.Label
	default:
		return "object:" + o.ID
	}
}

// ColorFor returns a stable hex color for key.
func ColorFor(key string) string {
	h := xxhash.Sum64String(key)
	hue := float64(h % 360)
	sat := 0.55 + float64((h>>16)%30)/100
	return colorful.Hsv(hue, sat, 0.9).Hex()
}
