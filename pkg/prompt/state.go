package prompt

import (
	"encoding/json"
	"time"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Phase is the gesture state of the current pointer interaction.
type Phase int

const (
	Idle Phase = iota
	PendingDrag
	Dragging
)

func (p Phase) String() string {
	switch p {
	case PendingDrag:
		return "pending_drag"
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Gesture tracks one pointer interaction from down to up.
type Gesture struct {
	Phase          Phase
	Button         Button
	StartDisplay   types.Point2D
	StartImage     types.Point2D
	CurrentDisplay types.Point2D
}

// Preview is the transient shape drawn while a gesture is in progress. It
// lives in display space and is never part of the undo history.
type Preview struct {
	Kind   types.PromptKind `json:"kind"`
	Rect   types.Rect       `json:"rect"`
	Points []types.Point2D  `json:"points,omitempty"`
}

// Warning is a user-facing message that expires on its own.
type Warning struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// history is a persistent stack of prompt-list snapshots. Pushing shares
// the tail, so a snapshot costs O(1) regardless of history length.
type history struct {
	prompts []types.Prompt
	next    *history
	depth   int
}

func (h *history) push(prompts []types.Prompt) *history {
	return &history{prompts: prompts, next: h, depth: h.len() + 1}
}

func (h *history) len() int {
	if h == nil {
		return 0
	}
	return h.depth
}

// State is the immutable prompt state for one image. Every transition
// returns a new State; prompt slices are never mutated after creation, so
// old States (and the history) stay valid for concurrent readers.
type State struct {
	prompts []types.Prompt
	undo    *history
	redo    *history
	gesture Gesture
	draft   []types.Point2D
	preview *Preview
	warning *Warning
	instant bool
}

// NewState returns an empty state.
func NewState() State {
	return State{}
}

// Prompts returns the committed prompts in commit order.
func (s State) Prompts() []types.Prompt {
	out := make([]types.Prompt, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Len returns the number of committed prompts.
func (s State) Len() int { return len(s.prompts) }

// Phase returns the current gesture phase.
func (s State) Phase() Phase { return s.gesture.Phase }

// Gesture returns the gesture in progress.
func (s State) Gesture() Gesture { return s.gesture }

// Preview returns the live preview, or nil.
func (s State) Preview() *Preview {
	if s.preview == nil {
		return nil
	}
	cp := *s.preview
	return &cp
}

// Draft returns the open polygon's vertices in image space.
func (s State) Draft() []types.Point2D {
	out := make([]types.Point2D, len(s.draft))
	copy(out, s.draft)
	return out
}

// ActiveWarning returns the warning if it has not expired at now.
func (s State) ActiveWarning(now time.Time) *Warning {
	if s.warning == nil || !now.Before(s.warning.ExpiresAt) {
		return nil
	}
	cp := *s.warning
	return &cp
}

// CanUndo reports whether Undo would change anything.
func (s State) CanUndo() bool { return s.undo != nil }

// CanRedo reports whether Redo would change anything.
func (s State) CanRedo() bool { return s.redo != nil }

// UndoDepth returns the number of snapshots on the undo stack.
func (s State) UndoDepth() int { return s.undo.len() }

// RedoDepth returns the number of snapshots on the redo stack.
func (s State) RedoDepth() int { return s.redo.len() }

// InstantSegmentation reports whether commits should trigger segmentation.
func (s State) InstantSegmentation() bool { return s.instant }

type stateJSON struct {
	Prompts   []types.Prompt  `json:"prompts"`
	Phase     string          `json:"phase"`
	Draft     []types.Point2D `json:"draft,omitempty"`
	Preview   *Preview        `json:"preview,omitempty"`
	Warning   *Warning        `json:"warning,omitempty"`
	Instant   bool            `json:"instant_segmentation"`
	UndoDepth int             `json:"undo_depth"`
	RedoDepth int             `json:"redo_depth"`
}

// MarshalJSON exposes the state for inspection and debugging.
func (s State) MarshalJSON() ([]byte, error) {
	prompts := s.prompts
	if prompts == nil {
		prompts = []types.Prompt{}
	}
	return json.Marshal(stateJSON{
		Prompts:   prompts,
		Phase:     s.gesture.Phase.String(),
		Draft:     s.draft,
		Preview:   s.preview,
		Warning:   s.warning,
		Instant:   s.instant,
		UndoDepth: s.undo.len(),
		RedoDepth: s.redo.len(),
	})
}
