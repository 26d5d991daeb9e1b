// Package prompt turns raw pointer events into committed segmentation
// prompts. It owns the gesture state machine
//
//	Idle -> PendingDrag -> Dragging -> Idle
//
// the live preview, the open polygon draft and a linear undo/redo history
// of prompt-list snapshots. All transitions are pure: they take a State and
// return a new one.
package prompt

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// ErrPromptNotFound is returned when a prompt id is unknown.
var ErrPromptNotFound = errors.New("prompt not found")

// Warning messages shown when a prompt is rejected by focus mode.
const (
	MsgOutsideFocus = "Prompt must be inside the focused object"
)

// Tool selects how pointer gestures are interpreted.
type Tool string

const (
	ToolPan     Tool = "pan"
	ToolAI      Tool = "ai"
	ToolBox     Tool = "box"
	ToolCircle  Tool = "circle"
	ToolPolygon Tool = "polygon"
)

// Button is the pointer button that started a gesture.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
)

// Polarity maps the button to a point polarity.
func (b Button) Polarity() types.Polarity {
	if b == ButtonSecondary {
		return types.Negative
	}
	return types.Positive
}

// PointerEvent is a pointer sample in display space.
type PointerEvent struct {
	Position types.Point2D
	Button   Button
}

// View is everything a transition needs to know about the canvas.
type View struct {
	Tool     Tool
	Viewport viewport.Viewport
	Frame    viewport.Frame
	// Mask is the focused object's outline, nil when focus mode is off.
	Mask []types.Point2D
	Now  time.Time
}

// EffectKind classifies the outcome of a transition.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectCommitted
	EffectRejected
	EffectDiscarded
)

// Effect reports what a transition did beyond changing state.
type Effect struct {
	Kind   EffectKind
	Prompt *types.Prompt
	Reason string
}

// Committed reports whether the prompt list changed.
func (e Effect) Committed() bool { return e.Kind == EffectCommitted }

// Config holds the gesture thresholds.
type Config struct {
	// DragThreshold is the display distance a pointer must travel before a
	// press becomes a drag.
	DragThreshold float64
	// MinBoxSize is the smallest box side, in image pixels, that is kept.
	MinBoxSize float64
	WarningTTL time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DragThreshold: 5,
		MinBoxSize:    3,
		WarningTTL:    3 * time.Second,
	}
}

// IDGenerator produces unique prompt ids.
type IDGenerator func() string

// Manager applies prompt transitions.
type Manager struct {
	cfg    Config
	ids    IDGenerator
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDGenerator replaces the uuid id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(m *Manager) {
		if ids != nil {
			m.ids = ids
		}
	}
}

// New creates a Manager.
func New(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		ids:    uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager's thresholds.
func (m *Manager) Config() Config { return m.cfg }

// PointerDown starts a gesture. Presses outside the image, presses with
// the pan tool and presses during another gesture are ignored.
func (m *Manager) PointerDown(s State, ev PointerEvent, v View) State {
	if v.Tool == ToolPan || v.Tool == "" || s.gesture.Phase != Idle {
		return s
	}
	img, inside := viewport.DisplayToImage(ev.Position, v.Viewport, v.Frame)
	if !inside {
		return s
	}

	s.gesture = Gesture{
		Phase:          PendingDrag,
		Button:         ev.Button,
		StartDisplay:   ev.Position,
		StartImage:     img,
		CurrentDisplay: ev.Position,
	}
	return s
}

// PointerMove advances a gesture and refreshes the live preview.
func (m *Manager) PointerMove(s State, ev PointerEvent, v View) State {
	switch s.gesture.Phase {
	case Idle:
		if v.Tool == ToolPolygon && len(s.draft) > 0 {
			s.preview = m.polygonPreview(s.draft, ev.Position, v)
		}
		return s
	case PendingDrag:
		if !supportsDrag(v.Tool) || distance(ev.Position, s.gesture.StartDisplay) <= m.cfg.DragThreshold {
			s.gesture.CurrentDisplay = ev.Position
			return s
		}
		s.gesture.Phase = Dragging
	}

	s.gesture.CurrentDisplay = ev.Position
	s.preview = m.dragPreview(s.gesture, v.Tool)
	return s
}

// PointerUp ends a gesture. A press that never became a drag is a click.
func (m *Manager) PointerUp(s State, ev PointerEvent, v View) (State, Effect) {
	g := s.gesture
	s.gesture = Gesture{}
	if v.Tool != ToolPolygon {
		s.preview = nil
	}

	switch g.Phase {
	case PendingDrag:
		return m.click(s, g, v)
	case Dragging:
		return m.drag(s, g, ev, v)
	default:
		return s, Effect{}
	}
}

// DoubleClick closes the open polygon when it has at least three distinct
// vertices. Consecutive duplicate vertices, left behind by the clicks that
// make up the double-click, are collapsed first.
func (m *Manager) DoubleClick(s State, ev PointerEvent, v View) (State, Effect) {
	if v.Tool != ToolPolygon {
		return s, Effect{}
	}
	s.gesture = Gesture{}

	vertices := dedupeVertices(s.draft)
	if len(vertices) < 3 {
		s.draft = vertices
		return s, Effect{}
	}

	p, err := types.NewPolygonPrompt(m.ids(), vertices)
	if err != nil {
		return s, Effect{}
	}
	s.draft = nil
	s.preview = nil
	return m.commitAppend(s, p), Effect{Kind: EffectCommitted, Prompt: &p}
}

// Cancel abandons the gesture, the preview and any open polygon.
func (m *Manager) Cancel(s State) State {
	s.gesture = Gesture{}
	s.preview = nil
	s.draft = nil
	return s
}

// AddPoint commits a point prompt at an image-space position.
func (m *Manager) AddPoint(s State, p types.Point2D, polarity types.Polarity, v View) (State, Effect) {
	if !geometry.IsPointInFocusedObject(p.X, p.Y, v.Mask) {
		return m.reject(s, v, MsgOutsideFocus)
	}
	prompt := types.NewPointPrompt(m.ids(), p, polarity)
	return m.commitAppend(s, prompt), Effect{Kind: EffectCommitted, Prompt: &prompt}
}

// AddBox commits a box prompt given in image space. Boxes smaller than
// MinBoxSize on either side are dropped without a warning.
func (m *Manager) AddBox(s State, b types.Box, v View) (State, Effect) {
	b = types.NewBox(b.X1, b.Y1, b.X2, b.Y2)
	if b.Width() < m.cfg.MinBoxSize || b.Height() < m.cfg.MinBoxSize {
		m.logger.Debug("discarding micro box",
			zap.Float64("width", b.Width()), zap.Float64("height", b.Height()))
		return s, Effect{Kind: EffectDiscarded, Reason: "box below minimum size"}
	}
	if !geometry.IsBoxInFocusedObject(b.X1, b.Y1, b.X2, b.Y2, v.Mask) {
		return m.reject(s, v, MsgOutsideFocus)
	}
	prompt := types.NewBoxPrompt(m.ids(), b)
	return m.commitAppend(s, prompt), Effect{Kind: EffectCommitted, Prompt: &prompt}
}

// AddPolygon commits a closed polygon given in image space.
func (m *Manager) AddPolygon(s State, pts []types.Point2D, v View) (State, Effect, error) {
	prompt, err := types.NewPolygonPrompt(m.ids(), pts)
	if err != nil {
		return s, Effect{}, err
	}
	for _, p := range prompt.Polygon {
		if !geometry.IsPointInFocusedObject(p.X, p.Y, v.Mask) {
			next, eff := m.reject(s, v, MsgOutsideFocus)
			return next, eff, nil
		}
	}
	return m.commitAppend(s, prompt), Effect{Kind: EffectCommitted, Prompt: &prompt}, nil
}

// RemoveLast drops the most recent prompt. It is a no-op on an empty list.
func (m *Manager) RemoveLast(s State) (State, Effect) {
	if len(s.prompts) == 0 {
		return s, Effect{}
	}
	last := s.prompts[len(s.prompts)-1]
	return m.commit(s, s.prompts[:len(s.prompts)-1:len(s.prompts)-1]), Effect{Kind: EffectCommitted, Prompt: &last}
}

// Remove drops the prompt with the given id.
func (m *Manager) Remove(s State, id string) (State, Effect, error) {
	for i, p := range s.prompts {
		if p.ID != id {
			continue
		}
		next := make([]types.Prompt, 0, len(s.prompts)-1)
		next = append(next, s.prompts[:i]...)
		next = append(next, s.prompts[i+1:]...)
		removed := p
		return m.commit(s, next), Effect{Kind: EffectCommitted, Prompt: &removed}, nil
	}
	return s, Effect{}, fmt.Errorf("remove %s: %w", id, ErrPromptNotFound)
}

// Clear drops every prompt. It is a no-op on an empty list.
func (m *Manager) Clear(s State) (State, Effect) {
	if len(s.prompts) == 0 {
		return s, Effect{}
	}
	return m.commit(s, nil), Effect{Kind: EffectCommitted}
}

// Undo restores the previous prompt list.
func (m *Manager) Undo(s State) State {
	if s.undo == nil {
		return s
	}
	s.redo = s.redo.push(s.prompts)
	s.prompts = s.undo.prompts
	s.undo = s.undo.next
	return s
}

// Redo reapplies the last undone change. It is a no-op on an empty redo stack.
func (m *Manager) Redo(s State) State {
	if s.redo == nil {
		return s
	}
	s.undo = s.undo.push(s.prompts)
	s.prompts = s.redo.prompts
	s.redo = s.redo.next
	return s
}

// SetInstantSegmentation toggles automatic segmentation on commit.
func (m *Manager) SetInstantSegmentation(s State, on bool) State {
	s.instant = on
	return s
}

// Reset returns an empty state, keeping only the instant segmentation flag.
func (m *Manager) Reset(s State) State {
	return State{instant: s.instant}
}

func (m *Manager) click(s State, g Gesture, v View) (State, Effect) {
	switch v.Tool {
	case ToolAI:
		return m.AddPoint(s, g.StartImage, g.Button.Polarity(), v)
	case ToolPolygon:
		if !geometry.IsPointInFocusedObject(g.StartImage.X, g.StartImage.Y, v.Mask) {
			return m.reject(s, v, MsgOutsideFocus)
		}
		draft := make([]types.Point2D, len(s.draft), len(s.draft)+1)
		copy(draft, s.draft)
		s.draft = append(draft, g.StartImage)
		s.preview = m.polygonPreview(s.draft, g.CurrentDisplay, v)
		return s, Effect{}
	default:
		return s, Effect{}
	}
}

func (m *Manager) drag(s State, g Gesture, ev PointerEvent, v View) (State, Effect) {
	end, _ := viewport.DisplayToImage(ev.Position, v.Viewport, v.Frame)
	end = clampToImage(end, v.Frame.Image)

	switch v.Tool {
	case ToolAI, ToolBox:
		return m.AddBox(s, types.NewBox(g.StartImage.X, g.StartImage.Y, end.X, end.Y), v)
	case ToolCircle:
		r := distance(g.StartImage, end)
		c := g.StartImage
		lo := clampToImage(types.Point2D{X: c.X - r, Y: c.Y - r}, v.Frame.Image)
		hi := clampToImage(types.Point2D{X: c.X + r, Y: c.Y + r}, v.Frame.Image)
		return m.AddBox(s, types.NewBox(lo.X, lo.Y, hi.X, hi.Y), v)
	default:
		return s, Effect{}
	}
}

func (m *Manager) reject(s State, v View, msg string) (State, Effect) {
	m.logger.Debug("prompt rejected", zap.String("reason", msg))
	s.gesture = Gesture{}
	s.warning = &Warning{Message: msg, ExpiresAt: v.Now.Add(m.cfg.WarningTTL)}
	return s, Effect{Kind: EffectRejected, Reason: msg}
}

func (m *Manager) commitAppend(s State, p types.Prompt) State {
	next := make([]types.Prompt, len(s.prompts), len(s.prompts)+1)
	copy(next, s.prompts)
	return m.commit(s, append(next, p))
}

// commit snapshots the current list onto undo and clears redo.
func (m *Manager) commit(s State, next []types.Prompt) State {
	s.undo = s.undo.push(s.prompts)
	s.redo = nil
	s.prompts = next
	return s
}

func (m *Manager) dragPreview(g Gesture, tool Tool) *Preview {
	a, b := g.StartDisplay, g.CurrentDisplay
	if tool == ToolCircle {
		r := distance(a, b)
		return &Preview{Kind: types.KindBox, Rect: types.Rect{X: a.X - r, Y: a.Y - r, Width: 2 * r, Height: 2 * r}}
	}
	box := types.NewBox(a.X, a.Y, b.X, b.Y)
	return &Preview{Kind: types.KindBox, Rect: types.Rect{X: box.X1, Y: box.Y1, Width: box.Width(), Height: box.Height()}}
}

func (m *Manager) polygonPreview(draft []types.Point2D, cursor types.Point2D, v View) *Preview {
	points := make([]types.Point2D, 0, len(draft)+1)
	for _, p := range draft {
		points = append(points, viewport.ImageToDisplay(p, v.Viewport, v.Frame))
	}
	points = append(points, cursor)
	return &Preview{Kind: types.KindPolygon, Points: points}
}

func supportsDrag(t Tool) bool {
	return t == ToolAI || t == ToolBox || t == ToolCircle
}

func dedupeVertices(pts []types.Point2D) []types.Point2D {
	out := make([]types.Point2D, 0, len(pts))
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1] == p {
			continue
		}
		out = append(out, p)
	}
	if n := len(out); n > 1 && out[0] == out[n-1] {
		out = out[:n-1]
	}
	return out
}

func clampToImage(p types.Point2D, size types.Size) types.Point2D {
	return types.Point2D{
		X: math.Max(0, math.Min(p.X, size.Width)),
		Y: math.Max(0, math.Min(p.Y, size.Height)),
	}
}

func distance(a, b types.Point2D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
