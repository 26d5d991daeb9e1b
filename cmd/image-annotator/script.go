package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	annotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// Script is a recorded annotation session.
type Script struct {
	ImageID   string     `yaml:"image_id"`
	Size      types.Size `yaml:"size"`
	Container types.Size `yaml:"container"`
	// Hierarchy, when set, is loaded before the events run.
	Hierarchy *types.HierarchyDocument `yaml:"hierarchy"`
	Events    []Event                  `yaml:"events"`
}

// Event is one step of a Script. Only the fields its action uses are read.
type Event struct {
	Action    string          `yaml:"action"`
	At        types.Point2D   `yaml:"at"`
	Button    string          `yaml:"button"`
	Tool      string          `yaml:"tool"`
	Direction string          `yaml:"direction"`
	Delta     types.Point2D   `yaml:"delta"`
	Object    string          `yaml:"object"`
	Objects   []string        `yaml:"objects"`
	Parent    string          `yaml:"parent"`
	Transform bool            `yaml:"transform"`
	Mode      string          `yaml:"mode"`
	Label     string          `yaml:"label"`
	LabelID   int64           `yaml:"label_id"`
	On        bool            `yaml:"on"`
	Points    []types.Point2D `yaml:"points"`
	Box       types.Box       `yaml:"box"`
	Size      types.Size      `yaml:"size"`
}

// LoadScript reads a YAML session script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML session script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &s, nil
}

// runner applies script events to an engine.
type runner struct {
	eng    *annotator.Engine
	logger *zap.Logger
	// dispatch sends instant segmentation requests as they are raised.
	dispatch bool
}

// Run replays every event in order and stops at the first failing one.
func (r *runner) Run(ctx context.Context, s *Script) error {
	if s.ImageID != "" {
		if _, err := r.eng.SetImage(s.ImageID, s.Size); err != nil {
			return err
		}
	}
	if !s.Container.Empty() {
		r.eng.SetContainer(s.Container)
	}
	if s.Hierarchy != nil {
		if _, err := r.eng.LoadHierarchy(s.Hierarchy); err != nil {
			return err
		}
	}
	for i, ev := range s.Events {
		if err := r.apply(ctx, ev); err != nil {
			return fmt.Errorf("event %d (%s): %w", i+1, ev.Action, err)
		}
	}
	return nil
}

func (r *runner) apply(ctx context.Context, ev Event) error {
	pointer := prompt.PointerEvent{Position: ev.At}
	if ev.Button == "secondary" || ev.Button == "right" {
		pointer.Button = prompt.ButtonSecondary
	}

	switch ev.Action {
	case "tool":
		r.eng.SetTool(prompt.Tool(ev.Tool))
	case "container":
		r.eng.SetContainer(ev.Size)
	case "instant":
		r.eng.SetInstantSegmentation(ev.On)
	case "segment_label":
		r.eng.SetSegmentLabel(ev.LabelID)
	case "down":
		r.eng.PointerDown(pointer)
	case "move":
		r.eng.PointerMove(pointer)
	case "up":
		return r.outcome(ctx, r.eng.PointerUp(pointer))
	case "click":
		r.eng.PointerDown(pointer)
		return r.outcome(ctx, r.eng.PointerUp(pointer))
	case "double_click":
		return r.outcome(ctx, r.eng.DoubleClick(pointer))
	case "box":
		return r.outcome(ctx, r.eng.AddBoxPrompt(ev.Box))
	case "cancel":
		r.eng.Cancel()
	case "undo":
		r.eng.Undo()
	case "redo":
		r.eng.Redo()
	case "remove_last":
		return r.outcome(ctx, r.eng.RemoveLastPrompt())
	case "clear":
		return r.outcome(ctx, r.eng.ClearPrompts())
	case "zoom":
		dir := viewport.ZoomIn
		if ev.Direction == "out" {
			dir = viewport.ZoomOut
		}
		r.eng.Zoom(ev.At, dir)
	case "pan":
		r.eng.PanBy(ev.Delta)
	case "reset_view":
		r.eng.ResetView()
	case "focus":
		_, err := r.eng.EnterFocus(ev.Object, ev.Transform)
		return err
	case "exit_focus":
		r.eng.ExitFocus()
	case "select":
		r.eng.Select(ev.Objects...)
	case "deselect":
		r.eng.Deselect(ev.Objects...)
	case "clear_selection":
		r.eng.ClearSelection()
	case "visibility":
		mode, ok := hierarchy.ParseVisibilityMode(ev.Mode)
		if !ok {
			return fmt.Errorf("unknown visibility mode %q", ev.Mode)
		}
		r.eng.SetVisibilityMode(mode)
	case "hide_label":
		r.eng.SetLabelHidden(ev.Label, true)
	case "show_label":
		r.eng.SetLabelHidden(ev.Label, false)
	case "label":
		patch := hierarchy.Patch{}
		if ev.Label != "" {
			patch.Label = &ev.Label
		}
		if ev.LabelID > 0 {
			patch.LabelID = &ev.LabelID
		}
		_, err := r.eng.UpdateObject(ev.Object, patch)
		return err
	case "parent":
		_, err := r.eng.SetParent(ev.Object, ev.Parent)
		return err
	case "polygon_object":
		_, _, err := r.eng.AddPolygonObject(ev.Points)
		return err
	case "remove":
		_, err := r.eng.DeleteObject(ctx, ev.Object)
		return err
	case "segment":
		_, ids, err := r.eng.Segment(ctx, ev.LabelID)
		if err != nil {
			return err
		}
		r.logger.Info("segmented", zap.Strings("objects", ids))
	case "fetch":
		_, err := r.eng.FetchHierarchy(ctx)
		return err
	case "persist":
		_, err := r.eng.PersistObjects(ctx, ev.Objects)
		return err
	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
	return nil
}

func (r *runner) outcome(ctx context.Context, out annotator.Outcome) error {
	if out.Effect.Kind == prompt.EffectRejected {
		r.logger.Warn("prompt rejected", zap.String("reason", out.Effect.Reason))
	}
	if out.Pending == nil || !r.dispatch {
		return nil
	}
	_, _, err := r.eng.Dispatch(ctx, *out.Pending)
	if errors.Is(err, annotator.ErrStaleResponse) {
		return nil
	}
	return err
}
