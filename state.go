package annotator

import (
	"encoding/json"
	"time"

	"github.com/menta2k/image-annotator/pkg/focus"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/viewport"
)

// Segmentation is the request bookkeeping for the active image.
type Segmentation struct {
	// Seq increases with every request and every image change. Only the
	// response to the latest Seq is accepted.
	Seq       uint64 `json:"seq"`
	InFlight  bool   `json:"in_flight"`
	LastError string `json:"last_error,omitempty"`
}

// State is one immutable version of the annotation state tree. Components
// are value types or copy-on-write pointers; a State obtained from
// Snapshot never changes.
type State struct {
	ImageID      string               `json:"image_id"`
	Frame        viewport.Frame       `json:"frame"`
	Viewport     viewport.Viewport    `json:"viewport"`
	Tool         prompt.Tool          `json:"tool"`
	Prompts      prompt.State         `json:"prompts"`
	Hierarchy    *hierarchy.Hierarchy `json:"hierarchy"`
	Focus        focus.Mode           `json:"focus"`
	Segmentation Segmentation         `json:"segmentation"`
	// SegmentLabel is the label id sent with segmentation requests, 0 for none.
	SegmentLabel int64 `json:"segment_label"`

	// epoch counts image changes; responses carry it to detect a switch.
	epoch     uint64
	panning   bool
	panOrigin types.Point2D
}

func newState(cfg hierarchy.Config) State {
	return State{
		Viewport:  viewport.Identity(),
		Tool:      prompt.ToolAI,
		Prompts:   prompt.NewState(),
		Hierarchy: hierarchy.Empty(cfg),
	}
}

// HasImage reports whether an image is active.
func (s State) HasImage() bool { return s.ImageID != "" }

// Panning reports whether a pan drag is in progress.
func (s State) Panning() bool { return s.panning }

// Warning returns the focus warning still visible at now.
func (s State) Warning(now time.Time) *prompt.Warning {
	return s.Prompts.ActiveWarning(now)
}

// ImageToDisplay maps an image point through the current view.
func (s State) ImageToDisplay(p types.Point2D) types.Point2D {
	return viewport.ImageToDisplay(p, s.Viewport, s.Frame)
}

// DisplayToImage maps a display point through the current view.
func (s State) DisplayToImage(p types.Point2D) (types.Point2D, bool) {
	return viewport.DisplayToImage(p, s.Viewport, s.Frame)
}

// VisibleObjects returns the objects the current visibility settings show.
func (s State) VisibleObjects() []hierarchy.Object {
	return s.Hierarchy.Visible()
}

func (s State) view(now time.Time) prompt.View {
	return prompt.View{
		Tool:     s.Tool,
		Viewport: s.Viewport,
		Frame:    s.Frame,
		Mask:     s.Focus.Mask(),
		Now:      now,
	}
}

type stateAlias State

// MarshalJSON encodes the exported state tree.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateAlias(s))
}
