package annotator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/internal/metrics"
	"github.com/menta2k/image-annotator/pkg/focus"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// Outcome is the result of an action that may commit a prompt.
type Outcome struct {
	State  State
	Effect prompt.Effect
	// Pending is set when instant segmentation started a request. The
	// caller runs it with Dispatch or its own transport.
	Pending *Pending
}

// SetImage makes id the active image. Prompts, history, focus, the
// viewport and the hierarchy are reset, and any segmentation in flight
// becomes stale. The instant segmentation flag survives.
func (e *Engine) SetImage(id string, size types.Size) (State, error) {
	if id == "" || size.Empty() {
		return e.Snapshot(), fmt.Errorf("set image %q %vx%v: %w", id, size.Width, size.Height, ErrInvalidImage)
	}
	next, err := e.update(func(s *State) error {
		container := s.Frame.Container
		if container.Empty() {
			container = size
		}
		s.ImageID = id
		s.Frame = viewport.ContainFrame(size, container)
		s.Viewport = viewport.Identity()
		s.Prompts = e.prompts.Reset(s.Prompts)
		s.Hierarchy = hierarchy.Empty(e.cfg.Hierarchy)
		s.Focus = focus.Mode{}
		s.Segmentation = Segmentation{Seq: s.Segmentation.Seq + 1}
		s.epoch++
		s.panning = false
		return nil
	})
	if err == nil {
		e.logger.Info("active image changed",
			zap.String("image_id", id),
			zap.Float64("width", size.Width),
			zap.Float64("height", size.Height))
		e.metrics.SetObjects(0)
	}
	return next, err
}

// SetContainer updates the display container size. The viewport is kept.
func (e *Engine) SetContainer(size types.Size) State {
	next, _ := e.update(func(s *State) error {
		s.Frame = viewport.ContainFrame(s.Frame.Image, size)
		return nil
	})
	return next
}

// SetTool selects the prompting tool and abandons any gesture.
func (e *Engine) SetTool(t prompt.Tool) State {
	next, _ := e.update(func(s *State) error {
		if s.Tool == t {
			return nil
		}
		s.Tool = t
		s.Prompts = e.prompts.Cancel(s.Prompts)
		s.panning = false
		return nil
	})
	return next
}

// SetInstantSegmentation toggles segmentation on every prompt commit.
func (e *Engine) SetInstantSegmentation(on bool) State {
	next, _ := e.update(func(s *State) error {
		s.Prompts = e.prompts.SetInstantSegmentation(s.Prompts, on)
		return nil
	})
	return next
}

// SetSegmentLabel sets the label id attached to segmentation results.
func (e *Engine) SetSegmentLabel(label int64) State {
	next, _ := e.update(func(s *State) error {
		s.SegmentLabel = label
		return nil
	})
	return next
}

// PointerDown starts a gesture. With the pan tool it starts a pan drag.
func (e *Engine) PointerDown(ev prompt.PointerEvent) State {
	next, _ := e.update(func(s *State) error {
		if !s.HasImage() {
			return nil
		}
		if s.Tool == prompt.ToolPan {
			s.panning = true
			s.panOrigin = ev.Position
			return nil
		}
		s.Prompts = e.prompts.PointerDown(s.Prompts, ev, s.view(e.now()))
		return nil
	})
	return next
}

// PointerMove advances the gesture or pans the view.
func (e *Engine) PointerMove(ev prompt.PointerEvent) State {
	next, _ := e.update(func(s *State) error {
		if !s.HasImage() {
			return nil
		}
		if s.panning {
			s.Viewport = viewport.Pan(s.Viewport, ev.Position.Sub(s.panOrigin))
			s.panOrigin = ev.Position
			return nil
		}
		s.Prompts = e.prompts.PointerMove(s.Prompts, ev, s.view(e.now()))
		return nil
	})
	return next
}

// PointerUp ends the gesture, committing a point or box prompt when the
// gesture produced one.
func (e *Engine) PointerUp(ev prompt.PointerEvent) Outcome {
	return e.recorded("pointer up", func(s *State) prompt.Effect {
		if s.panning {
			s.Viewport = viewport.Pan(s.Viewport, ev.Position.Sub(s.panOrigin))
			s.panning = false
			return prompt.Effect{}
		}
		var eff prompt.Effect
		s.Prompts, eff = e.prompts.PointerUp(s.Prompts, ev, s.view(e.now()))
		return eff
	})
}

// DoubleClick closes the open polygon.
func (e *Engine) DoubleClick(ev prompt.PointerEvent) Outcome {
	return e.recorded("double click", func(s *State) prompt.Effect {
		var eff prompt.Effect
		s.Prompts, eff = e.prompts.DoubleClick(s.Prompts, ev, s.view(e.now()))
		return eff
	})
}

// Cancel abandons the gesture, the preview and the open polygon.
func (e *Engine) Cancel() State {
	next, _ := e.update(func(s *State) error {
		s.Prompts = e.prompts.Cancel(s.Prompts)
		s.panning = false
		return nil
	})
	return next
}

// AddBoxPrompt commits a box given in image space.
func (e *Engine) AddBoxPrompt(b types.Box) Outcome {
	return e.recorded("add box", func(s *State) prompt.Effect {
		var eff prompt.Effect
		s.Prompts, eff = e.prompts.AddBox(s.Prompts, b, s.view(e.now()))
		return eff
	})
}

// RemoveLastPrompt drops the most recent prompt.
func (e *Engine) RemoveLastPrompt() Outcome {
	return e.commitAction("remove last prompt", func(s *State) prompt.Effect {
		var eff prompt.Effect
		s.Prompts, eff = e.prompts.RemoveLast(s.Prompts)
		return eff
	})
}

// RemovePrompt drops one prompt by id.
func (e *Engine) RemovePrompt(id string) (Outcome, error) {
	var removeErr error
	out := e.commitAction("remove prompt", func(s *State) prompt.Effect {
		var eff prompt.Effect
		s.Prompts, eff, removeErr = e.prompts.Remove(s.Prompts, id)
		return eff
	})
	return out, removeErr
}

// ClearPrompts drops every prompt.
func (e *Engine) ClearPrompts() Outcome {
	return e.commitAction("clear prompts", func(s *State) prompt.Effect {
		var eff prompt.Effect
		s.Prompts, eff = e.prompts.Clear(s.Prompts)
		return eff
	})
}

// Undo restores the previous prompt list.
func (e *Engine) Undo() State {
	next, _ := e.update(func(s *State) error {
		s.Prompts = e.prompts.Undo(s.Prompts)
		return nil
	})
	return next
}

// Redo reapplies the last undone change.
func (e *Engine) Redo() State {
	next, _ := e.update(func(s *State) error {
		s.Prompts = e.prompts.Redo(s.Prompts)
		return nil
	})
	return next
}

// Zoom applies one wheel step around a display-space cursor.
func (e *Engine) Zoom(cursor types.Point2D, dir viewport.Direction) State {
	next, _ := e.update(func(s *State) error {
		s.Viewport = viewport.ZoomAt(s.Viewport, s.Frame, cursor, dir, e.cfg.Zoom)
		return nil
	})
	return next
}

// PanBy shifts the view by a display-space delta.
func (e *Engine) PanBy(delta types.Point2D) State {
	next, _ := e.update(func(s *State) error {
		s.Viewport = viewport.Pan(s.Viewport, delta)
		return nil
	})
	return next
}

// ResetView returns to zoom 1 with no pan.
func (e *Engine) ResetView() State {
	next, _ := e.update(func(s *State) error {
		s.Viewport = viewport.Identity()
		return nil
	})
	return next
}

// commitAction runs a prompt transition and, when it committed and instant
// segmentation is on, starts a segmentation request in the same update.
func (e *Engine) commitAction(name string, fn func(s *State) prompt.Effect) Outcome {
	var out Outcome
	next, _ := e.update(func(s *State) error {
		if !s.HasImage() {
			return nil
		}
		out.Effect = fn(s)
		if !out.Effect.Committed() || !s.Prompts.InstantSegmentation() {
			return nil
		}
		pending, err := e.begin(s, s.SegmentLabel)
		if err != nil {
			e.logger.Debug("instant segmentation skipped", zap.String("action", name), zap.Error(err))
			return nil
		}
		out.Pending = &pending
		return nil
	})
	out.State = next
	return out
}

// recorded is commitAction for transitions that create prompts.
func (e *Engine) recorded(name string, fn func(s *State) prompt.Effect) Outcome {
	out := e.commitAction(name, fn)
	e.recordEffect(out.State.Tool, out.Effect)
	return out
}

func (e *Engine) recordEffect(tool prompt.Tool, eff prompt.Effect) {
	kind := string(tool)
	if eff.Prompt != nil {
		kind = string(eff.Prompt.Kind)
	}
	switch eff.Kind {
	case prompt.EffectCommitted:
		e.metrics.Prompt(kind, metrics.OutcomeCommitted)
	case prompt.EffectRejected:
		e.logger.Info("prompt rejected", zap.String("tool", string(tool)), zap.String("reason", eff.Reason))
		e.metrics.Prompt(kind, metrics.OutcomeRejected)
	case prompt.EffectDiscarded:
		e.metrics.Prompt(kind, metrics.OutcomeDiscarded)
	}
}
