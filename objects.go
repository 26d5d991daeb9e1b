package annotator

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/pkg/focus"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/types"
)

// ErrOutsideFocus is returned when a drawn object leaves the focused outline.
var ErrOutsideFocus = errors.New(prompt.MsgOutsideFocus)

// AddedByManual marks objects drawn by hand rather than segmented.
const AddedByManual = "manual"

// LoadHierarchy replaces the hierarchy with doc. A malformed document
// leaves an empty hierarchy behind and returns the load error. Focus follows
// its object's new outline and is cleared when the object did not survive.
func (e *Engine) LoadHierarchy(doc *types.HierarchyDocument) (State, error) {
	return e.loadHierarchy(doc, nil)
}

// loadHierarchy loads doc unless epoch is set and no longer current.
func (e *Engine) loadHierarchy(doc *types.HierarchyDocument, epoch *uint64) (State, error) {
	var loadErr error
	next, err := e.update(func(s *State) error {
		if !s.HasImage() {
			return ErrNoActiveImage
		}
		if epoch != nil && *epoch != s.epoch {
			return fmt.Errorf("hierarchy for replaced image: %w", ErrStaleResponse)
		}
		if doc != nil && doc.ImageID != "" && doc.ImageID != s.ImageID {
			return fmt.Errorf("hierarchy for %s while %s is active: %w", doc.ImageID, s.ImageID, ErrStaleResponse)
		}
		var (
			roots  []types.ContourNode
			labels map[int64]string
		)
		if doc != nil {
			roots, labels = doc.Contours, doc.Labels
		}
		s.Hierarchy, loadErr = hierarchy.Load(roots, labels, e.cfg.Hierarchy)
		s.Focus = s.Focus.Refresh(s.Hierarchy)
		return nil
	})
	if err != nil {
		return next, err
	}
	if loadErr != nil {
		e.logger.Warn("hierarchy reset after malformed input",
			zap.String("image_id", next.ImageID), zap.Error(loadErr))
		e.metrics.SetObjects(0)
		return next, fmt.Errorf("load hierarchy: %w", loadErr)
	}
	if next.Hierarchy.Truncated() {
		e.logger.Warn("hierarchy truncated",
			zap.String("image_id", next.ImageID),
			zap.Int("max_nodes", e.cfg.Hierarchy.MaxNodes))
	}
	e.metrics.SetObjects(next.Hierarchy.Len())
	return next, nil
}

// UpdateObject applies a partial update to one object. A new outline for
// the focused object becomes the new focus mask.
func (e *Engine) UpdateObject(id string, patch hierarchy.Patch) (State, error) {
	return e.update(func(s *State) error {
		h, err := s.Hierarchy.Update(id, patch)
		if err != nil {
			return err
		}
		s.Hierarchy = h
		if s.Focus.Targets(id) {
			s.Focus = s.Focus.Refresh(h)
		}
		return nil
	})
}

// RemoveObject deletes an object locally. Its children move up one level
// and focus mode ends if it targeted the object.
func (e *Engine) RemoveObject(id string) (State, error) {
	next, err := e.update(func(s *State) error {
		return e.removeObject(s, id)
	})
	if err == nil {
		e.metrics.SetObjects(next.Hierarchy.Len())
	}
	return next, err
}

func (e *Engine) removeObject(s *State, id string) error {
	h, err := s.Hierarchy.Remove(id)
	if err != nil {
		return err
	}
	s.Hierarchy = h
	s.Focus = s.Focus.ClearIfTargets(id)
	return nil
}

// Select adds objects to the selection.
func (e *Engine) Select(ids ...string) State {
	next, _ := e.update(func(s *State) error {
		s.Hierarchy = s.Hierarchy.Select(ids...)
		return nil
	})
	return next
}

// Deselect removes objects from the selection.
func (e *Engine) Deselect(ids ...string) State {
	next, _ := e.update(func(s *State) error {
		s.Hierarchy = s.Hierarchy.Deselect(ids...)
		return nil
	})
	return next
}

// ToggleSelect flips one object's selection.
func (e *Engine) ToggleSelect(id string) State {
	next, _ := e.update(func(s *State) error {
		s.Hierarchy = s.Hierarchy.ToggleSelect(id)
		return nil
	})
	return next
}

// ClearSelection empties the selection.
func (e *Engine) ClearSelection() State {
	next, _ := e.update(func(s *State) error {
		s.Hierarchy = s.Hierarchy.ClearSelection()
		return nil
	})
	return next
}

// SetVisibilityMode changes which hierarchy levels are shown.
func (e *Engine) SetVisibilityMode(m hierarchy.VisibilityMode) State {
	next, _ := e.update(func(s *State) error {
		s.Hierarchy = s.Hierarchy.SetVisibilityMode(m)
		return nil
	})
	return next
}

// SetLabelHidden hides or shows every object carrying a label.
func (e *Engine) SetLabelHidden(label string, hidden bool) State {
	next, _ := e.update(func(s *State) error {
		s.Hierarchy = s.Hierarchy.SetLabelHidden(label, hidden)
		return nil
	})
	return next
}

// SetParent moves an object under another one, or to the root level when
// parentID is empty.
func (e *Engine) SetParent(id, parentID string) (State, error) {
	return e.update(func(s *State) error {
		h, err := s.Hierarchy.SetParent(id, parentID)
		if err != nil {
			return err
		}
		s.Hierarchy = h
		return nil
	})
}

// EnterFocus restricts prompting to the outline of id and switches to the
// AI tool. With withTransform the view zooms onto the object.
func (e *Engine) EnterFocus(id string, withTransform bool) (State, error) {
	next, err := e.update(func(s *State) error {
		mode, v, err := focus.Enter(s.Hierarchy, id, s.Frame, e.cfg.Focus, withTransform)
		if err != nil {
			return err
		}
		s.Focus = mode
		s.Tool = prompt.ToolAI
		s.Prompts = e.prompts.Cancel(s.Prompts)
		s.panning = false
		if v != nil {
			s.Viewport = *v
		}
		return nil
	})
	if err != nil {
		return next, err
	}
	e.logger.Debug("focus entered",
		zap.String("object_id", id),
		zap.Float64("zoom", next.Viewport.Zoom))
	e.metrics.Focus()
	return next, nil
}

// ExitFocus leaves focus mode. The viewport stays where it is.
func (e *Engine) ExitFocus() State {
	next, _ := e.update(func(s *State) error {
		s.Focus = s.Focus.Exit()
		return nil
	})
	return next
}

// AddPolygonObject adds a hand-drawn outline, in image space, as an unsaved
// object. While focused, every vertex must lie in the focused outline and
// the object becomes its child.
func (e *Engine) AddPolygonObject(pts []types.Point2D) (State, string, error) {
	var id string
	next, err := e.update(func(s *State) error {
		if !s.HasImage() {
			return ErrNoActiveImage
		}
		if len(pts) < 3 {
			return fmt.Errorf("add polygon object: %w", types.ErrTooFewVertices)
		}
		c := types.Contour{X: make([]float64, len(pts)), Y: make([]float64, len(pts))}
		for i, p := range pts {
			if !s.Focus.AcceptsPoint(p) {
				return ErrOutsideFocus
			}
			c.X[i], c.Y[i] = p.X, p.Y
		}
		h, ids, err := s.Hierarchy.AddTemporary([]types.Contour{c}, s.Focus.ObjectID, AddedByManual)
		if err != nil {
			return err
		}
		s.Hierarchy = h
		id = ids[0]
		return nil
	})
	if err == nil {
		e.metrics.SetObjects(next.Hierarchy.Len())
	}
	return next, id, err
}
