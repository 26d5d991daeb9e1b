package hierarchy

import (
	"encoding/json"
	"sort"
)

// VisibilityMode restricts which objects are drawn. Modes are mutually
// exclusive.
type VisibilityMode int

const (
	ShowAll VisibilityMode = iota
	RootLevelOnly
	// SelectedLevelOnly shows the selected objects and their siblings.
	SelectedLevelOnly
)

func (m VisibilityMode) String() string {
	switch m {
	case RootLevelOnly:
		return "root_level_only"
	case SelectedLevelOnly:
		return "selected_level_only"
	default:
		return "show_all"
	}
}

// ParseVisibilityMode parses the String form of a mode.
func ParseVisibilityMode(s string) (VisibilityMode, bool) {
	for _, m := range []VisibilityMode{ShowAll, RootLevelOnly, SelectedLevelOnly} {
		if m.String() == s {
			return m, true
		}
	}
	return ShowAll, false
}

// Select adds ids to the selection. Unknown ids are ignored.
func (h *Hierarchy) Select(ids ...string) *Hierarchy {
	next := h.withSelection()
	for _, id := range ids {
		if _, ok := h.objects[id]; ok {
			next.selected[id] = struct{}{}
		}
	}
	return next
}

// Deselect removes ids from the selection.
func (h *Hierarchy) Deselect(ids ...string) *Hierarchy {
	next := h.withSelection()
	for _, id := range ids {
		delete(next.selected, id)
	}
	return next
}

// ToggleSelect flips the selection state of id.
func (h *Hierarchy) ToggleSelect(id string) *Hierarchy {
	if h.IsSelected(id) {
		return h.Deselect(id)
	}
	return h.Select(id)
}

// ClearSelection empties the selection.
func (h *Hierarchy) ClearSelection() *Hierarchy {
	if len(h.selected) == 0 {
		return h
	}
	next := *h
	next.selected = map[string]struct{}{}
	return &next
}

// IsSelected reports whether id is selected.
func (h *Hierarchy) IsSelected(id string) bool {
	_, ok := h.selected[id]
	return ok
}

// Selected returns the selected ids in ingestion order.
func (h *Hierarchy) Selected() []string {
	out := make([]string, 0, len(h.selected))
	for _, id := range h.order {
		if _, ok := h.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Mode returns the visibility mode.
func (h *Hierarchy) Mode() VisibilityMode { return h.mode }

// SetVisibilityMode switches the visibility mode.
func (h *Hierarchy) SetVisibilityMode(m VisibilityMode) *Hierarchy {
	next := *h
	next.mode = m
	return &next
}

// SetLabelHidden hides or shows every object carrying the label name.
func (h *Hierarchy) SetLabelHidden(name string, hidden bool) *Hierarchy {
	next := *h
	next.hidden = copySet(h.hidden)
	if hidden {
		next.hidden[name] = struct{}{}
	} else {
		delete(next.hidden, name)
	}
	return &next
}

// HiddenLabels returns the hidden label names, sorted.
func (h *Hierarchy) HiddenLabels() []string {
	out := make([]string, 0, len(h.hidden))
	for name := range h.hidden {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Visible returns the objects to draw under the current mode and label
// toggles. SelectedLevelOnly with nothing selected shows the roots.
func (h *Hierarchy) Visible() []Object {
	levels := map[string]struct{}{"": {}}
	if h.mode == SelectedLevelOnly && len(h.selected) > 0 {
		levels = map[string]struct{}{}
		for id := range h.selected {
			levels[h.objects[id].ParentID] = struct{}{}
		}
	}

	var out []Object
	for _, id := range h.order {
		o := h.objects[id]
		if _, hidden := h.hidden[o.Label]; hidden && o.Label != "" {
			continue
		}
		if h.mode != ShowAll {
			if _, ok := levels[o.ParentID]; !ok {
				continue
			}
		}
		out = append(out, *o)
	}
	return out
}

func (h *Hierarchy) withSelection() *Hierarchy {
	next := *h
	next.selected = copySet(h.selected)
	return &next
}

type hierarchyJSON struct {
	Objects      []Object `json:"objects"`
	Selected     []string `json:"selected"`
	Mode         string   `json:"visibility_mode"`
	HiddenLabels []string `json:"hidden_labels"`
	LabelCounter int      `json:"label_counter"`
}

// MarshalJSON exposes the hierarchy for inspection and debugging.
func (h *Hierarchy) MarshalJSON() ([]byte, error) {
	return json.Marshal(hierarchyJSON{
		Objects:      h.Objects(),
		Selected:     h.Selected(),
		Mode:         h.mode.String(),
		HiddenLabels: h.HiddenLabels(),
		LabelCounter: h.counter,
	})
}
