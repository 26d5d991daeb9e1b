// Package focus implements focus mode: restricting prompts to one object's
// outline and optionally zooming the view onto it.
package focus

import (
	"errors"
	"fmt"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// ErrDegenerateOutline is returned when the target object cannot act as a mask.
var ErrDegenerateOutline = errors.New("object outline has fewer than 3 points")

// Mode is the focus state. The zero value is inactive.
type Mode struct {
	Active   bool            `json:"active"`
	ObjectID string          `json:"object_id,omitempty"`
	Outline  []types.Point2D `json:"object_mask,omitempty"`
}

// Enter focuses the object id of h. When withTransform is set and the frame
// is usable, it also returns the viewport that frames the object.
func Enter(h *hierarchy.Hierarchy, id string, f viewport.Frame, cfg geometry.FocusConfig, withTransform bool) (Mode, *viewport.Viewport, error) {
	o, ok := h.Get(id)
	if !ok {
		return Mode{}, nil, fmt.Errorf("focus %s: %w", id, hierarchy.ErrObjectNotFound)
	}
	mask := o.Points()
	if len(mask) < 3 {
		return Mode{}, nil, fmt.Errorf("focus %s: %w", id, ErrDegenerateOutline)
	}

	m := Mode{Active: true, ObjectID: id, Outline: mask}
	if !withTransform || !f.Valid() {
		return m, nil, nil
	}
	t := geometry.FocusTransform(geometry.BoundingBox(mask), f.Image, f.Container, f.Rendered, cfg)
	v := viewport.FromTransform(t)
	return m, &v, nil
}

// Exit returns the inactive mode.
func (m Mode) Exit() Mode { return Mode{} }

// Mask returns the focused outline in image space, or nil when inactive.
func (m Mode) Mask() []types.Point2D {
	if !m.Active {
		return nil
	}
	return m.Outline
}

// Refresh rebuilds the outline from the focused object's current contour
// in h. Focus ends when the object is gone or no longer a polygon.
func (m Mode) Refresh(h *hierarchy.Hierarchy) Mode {
	if !m.Active {
		return m
	}
	o, ok := h.Get(m.ObjectID)
	if !ok {
		return Mode{}
	}
	outline := o.Points()
	if len(outline) < 3 {
		return Mode{}
	}
	return Mode{Active: true, ObjectID: m.ObjectID, Outline: outline}
}

// Targets reports whether focus is on id.
func (m Mode) Targets(id string) bool {
	return m.Active && m.ObjectID == id
}

// ClearIfTargets exits focus mode when id is the focused object.
func (m Mode) ClearIfTargets(id string) Mode {
	if m.Targets(id) {
		return Mode{}
	}
	return m
}

// AcceptsPoint reports whether an image-space point may be prompted.
func (m Mode) AcceptsPoint(p types.Point2D) bool {
	return geometry.IsPointInFocusedObject(p.X, p.Y, m.Mask())
}

// AcceptsBox reports whether an image-space box may be prompted. Only the
// corners are checked, so a box crossing a concave outline between two
// corners is accepted.
func (m Mode) AcceptsBox(b types.Box) bool {
	return geometry.IsBoxInFocusedObject(b.X1, b.Y1, b.X2, b.Y2, m.Mask())
}
