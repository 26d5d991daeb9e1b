// Package annotator is the interactive viewport and annotation state engine
// behind a prompt-driven segmentation UI.
//
// An Engine owns one explicit state tree: the active image and its frame,
// the viewport, the prompt lifecycle, the contour hierarchy and focus mode.
// Every mutation goes through a named action that builds a new State;
// readers call Snapshot and never observe a half-applied change.
//
// Basic usage:
//
//	eng := annotator.New(annotator.DefaultConfig(),
//		annotator.WithSegmenter(segmentClient))
//	_ = eng.SetImage("reef-01", types.Size{Width: 1920, Height: 1080})
//	eng.SetContainer(types.Size{Width: 960, Height: 540})
//	eng.SetTool(prompt.ToolAI)
//
//	eng.PointerDown(prompt.PointerEvent{Position: types.Point2D{X: 400, Y: 300}})
//	eng.PointerUp(prompt.PointerEvent{Position: types.Point2D{X: 400, Y: 300}})
//
//	ids, err := eng.Segment(ctx, 0)
//
// Segmentation calls are tagged with a Ticket. A response whose ticket no
// longer matches the active image and request sequence is rejected with
// ErrStaleResponse, so superseded calls are ignored rather than aborted.
package annotator

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/internal/metrics"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/suggest"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// Version of the annotator library
const Version = "1.0.0"

var (
	// ErrNoActiveImage is returned by actions that need an image.
	ErrNoActiveImage = errors.New("no active image")
	// ErrInvalidImage is returned by SetImage for an empty id or size.
	ErrInvalidImage = errors.New("invalid image")
	// ErrNoPrompts is returned when there is nothing to segment.
	ErrNoPrompts = errors.New("no segmentable prompts")
	// ErrStaleResponse is returned when a response belongs to a superseded request.
	ErrStaleResponse = errors.New("stale segmentation response")
	// ErrNotConfigured is returned when a collaborator was not supplied.
	ErrNotConfigured = errors.New("collaborator not configured")
)

// Config groups the component policies.
type Config struct {
	Zoom      viewport.ZoomConfig
	Focus     geometry.FocusConfig
	Prompt    prompt.Config
	Hierarchy hierarchy.Config
}

// DefaultConfig returns the standard policies.
func DefaultConfig() Config {
	return Config{
		Zoom:      viewport.DefaultZoomConfig(),
		Focus:     geometry.DefaultFocusConfig(),
		Prompt:    prompt.DefaultConfig(),
		Hierarchy: hierarchy.DefaultConfig(),
	}
}

// Engine applies actions to the annotation state. Actions are serialized;
// Snapshot is safe to call from any goroutine.
type Engine struct {
	mu    sync.Mutex
	state atomic.Pointer[State]

	cfg       Config
	prompts   *prompt.Manager
	promptIDs prompt.IDGenerator
	segmenter client.Segmenter
	repo      client.HierarchyRepository
	suggester *suggest.Suggester
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSegmenter sets the segmentation service.
func WithSegmenter(s client.Segmenter) Option {
	return func(e *Engine) { e.segmenter = s }
}

// WithRepository sets the hierarchy store.
func WithRepository(r client.HierarchyRepository) Option {
	return func(e *Engine) { e.repo = r }
}

// WithSuggester enables AI box suggestions.
func WithSuggester(s *suggest.Suggester) Option {
	return func(e *Engine) { e.suggester = s }
}

// WithMetrics records engine activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now, which drives warning expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPromptIDs replaces the prompt id generator.
func WithPromptIDs(ids prompt.IDGenerator) Option {
	return func(e *Engine) { e.promptIDs = ids }
}

// New creates an Engine with no active image.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.prompts = prompt.New(cfg.Prompt, prompt.WithLogger(e.logger), prompt.WithIDGenerator(e.promptIDs))

	initial := newState(cfg.Hierarchy)
	e.state.Store(&initial)
	return e
}

// Snapshot returns the current state. The returned value shares immutable
// data with the engine and is never modified afterwards.
func (e *Engine) Snapshot() State {
	return *e.state.Load()
}

// update applies fn to a copy of the current state and publishes it unless
// fn fails.
func (e *Engine) update(fn func(s *State) error) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := *e.state.Load()
	if err := fn(&next); err != nil {
		return *e.state.Load(), err
	}
	e.state.Store(&next)
	return next, nil
}
