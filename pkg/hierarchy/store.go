// Package hierarchy holds the flattened, labeled contour hierarchy of one
// image. A Hierarchy is immutable: every operation returns a new value that
// shares unchanged objects with the old one, so readers holding an older
// Hierarchy never see a half-applied change.
package hierarchy

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/menta2k/image-annotator/pkg/types"
)

var (
	// ErrObjectNotFound is returned for unknown object ids.
	ErrObjectNotFound = errors.New("object not found")
	// ErrParentCycle is returned when a re-parent would create a cycle.
	ErrParentCycle = errors.New("parent assignment would create a cycle")
	// ErrMalformedContour is returned for contours whose x and y lengths differ.
	ErrMalformedContour = errors.New("malformed contour")
)

// Config bounds hierarchy ingestion.
type Config struct {
	// MaxNodes caps the breadth-first walk on load. Zero walks every input
	// node once.
	MaxNodes int
	// NewID generates ids for objects without an external contour id.
	NewID func() string
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		NewID:    uuid.NewString,
	}
}

// Hierarchy is a flat map of objects keyed by id, plus the selection and
// visibility state that refers to them.
type Hierarchy struct {
	cfg       Config
	objects   map[string]*Object
	order     []string
	labels    map[int64]string
	counter   int
	truncated bool

	selected map[string]struct{}
	mode     VisibilityMode
	hidden   map[string]struct{}
}

// Empty returns a hierarchy with no objects and a zero label counter.
func Empty(cfg Config) *Hierarchy {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Hierarchy{
		cfg:      cfg,
		objects:  map[string]*Object{},
		labels:   map[int64]string{},
		selected: map[string]struct{}{},
		hidden:   map[string]struct{}{},
	}
}

type queued struct {
	node   *types.ContourNode
	parent string
}

// Load flattens a contour tree breadth-first. Nodes keep their external
// contour id as object id when they have one. Duplicate ids are skipped
// together with their subtrees. The walk visits each input node at most
// once and, when cfg.MaxNodes is set, stops after that many objects.
// On error an empty hierarchy is returned alongside it.
func Load(roots []types.ContourNode, labels map[int64]string, cfg Config) (*Hierarchy, error) {
	h := Empty(cfg)
	for id, name := range labels {
		h.labels[id] = name
	}

	queue := make([]queued, 0, len(roots))
	for i := range roots {
		queue = append(queue, queued{node: &roots[i]})
	}

	for len(queue) > 0 {
		if h.cfg.MaxNodes > 0 && len(h.order) >= h.cfg.MaxNodes {
			h.truncated = true
			break
		}
		q := queue[0]
		queue = queue[1:]
		n := q.node

		if len(n.X) != len(n.Y) {
			return Empty(cfg), fmt.Errorf("load contour %s: %w: %d x values, %d y values",
				nodeName(n), ErrMalformedContour, len(n.X), len(n.Y))
		}

		var id string
		if n.ID != nil {
			id = strconv.FormatInt(*n.ID, 10)
		} else {
			id = h.cfg.NewID()
		}
		if _, dup := h.objects[id]; dup {
			continue
		}

		o := &Object{
			ID:        id,
			ContourID: copyInt64(n.ID),
			X:         append([]float64(nil), n.X...),
			Y:         append([]float64(nil), n.Y...),
			ParentID:  q.parent,
			LabelID:   copyInt64(n.LabelID),
		}
		if o.LabelID != nil {
			o.Label = ResolveLabel(*o.LabelID, h.labels)
		}
		if o.HasValidLabel() {
			h.counter++
			o.LabelOrder = h.counter
		}
		o.Color = ColorFor(colorKey(o))

		h.objects[id] = o
		h.order = append(h.order, id)
		for i := range n.Children {
			queue = append(queue, queued{node: &n.Children[i], parent: id})
		}
	}
	return h, nil
}

// Len returns the number of objects.
func (h *Hierarchy) Len() int { return len(h.order) }

// Truncated reports whether Load stopped at the node limit.
func (h *Hierarchy) Truncated() bool { return h.truncated }

// LabelCounter returns the last label assignment order handed out.
func (h *Hierarchy) LabelCounter() int { return h.counter }

// Labels returns a copy of the label id to name map.
func (h *Hierarchy) Labels() map[int64]string {
	out := make(map[int64]string, len(h.labels))
	for k, v := range h.labels {
		out[k] = v
	}
	return out
}

// Get returns a copy of the object with the given id.
func (h *Hierarchy) Get(id string) (Object, bool) {
	o, ok := h.objects[id]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Objects returns every object in ingestion order.
func (h *Hierarchy) Objects() []Object {
	out := make([]Object, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, *h.objects[id])
	}
	return out
}

// Children returns the direct children of id in ingestion order. An empty
// id returns the roots.
func (h *Hierarchy) Children(id string) []Object {
	var out []Object
	for _, oid := range h.order {
		if o := h.objects[oid]; o.ParentID == id {
			out = append(out, *o)
		}
	}
	return out
}

// Roots returns the objects without a parent.
func (h *Hierarchy) Roots() []Object {
	return h.Children("")
}

// Depth returns the number of ancestors of id, or -1 if it is unknown.
func (h *Hierarchy) Depth(id string) int {
	o, ok := h.objects[id]
	if !ok {
		return -1
	}
	depth := 0
	for o.ParentID != "" && depth <= len(h.order) {
		p, ok := h.objects[o.ParentID]
		if !ok {
			break
		}
		o = p
		depth++
	}
	return depth
}

// Update merges patch into the object. An object gains a label
// assignment order the first time it receives a valid label, and its color
// is recomputed whenever the patch touches its label.
func (h *Hierarchy) Update(id string, patch Patch) (*Hierarchy, error) {
	cur, ok := h.objects[id]
	if !ok {
		return h, fmt.Errorf("update %s: %w", id, ErrObjectNotFound)
	}
	if (patch.X != nil || patch.Y != nil) && len(pick(patch.X, cur.X)) != len(pick(patch.Y, cur.Y)) {
		return h, fmt.Errorf("update %s: %w", id, ErrMalformedContour)
	}

	next := h.clone()
	o := *cur
	hadLabel := o.HasValidLabel()

	if patch.X != nil {
		o.X = append([]float64(nil), patch.X...)
	}
	if patch.Y != nil {
		o.Y = append([]float64(nil), patch.Y...)
	}
	if patch.Temporary != nil {
		o.Temporary = *patch.Temporary
	}
	if patch.AddedBy != nil {
		o.AddedBy = *patch.AddedBy
	}

	if patch.touchesLabel() {
		switch {
		case patch.ClearLabel:
			o.Label, o.LabelID = "", nil
		case patch.LabelID != nil:
			o.LabelID = copyInt64(patch.LabelID)
			if patch.Label != nil {
				o.Label = *patch.Label
				next.labels = copyLabels(next.labels)
				next.labels[*o.LabelID] = o.Label
			} else {
				o.Label = ResolveLabel(*o.LabelID, next.labels)
			}
		default:
			o.Label = *patch.Label
			o.LabelID = nil
		}
		if !hadLabel && o.LabelOrder == 0 && o.HasValidLabel() {
			next.counter++
			o.LabelOrder = next.counter
		}
		o.Color = ColorFor(colorKey(&o))
	}

	next.objects[id] = &o
	return next, nil
}

// Remove deletes an object. Its children move up to its parent and it is
// dropped from the selection.
func (h *Hierarchy) Remove(id string) (*Hierarchy, error) {
	cur, ok := h.objects[id]
	if !ok {
		return h, fmt.Errorf("remove %s: %w", id, ErrObjectNotFound)
	}

	next := h.clone()
	delete(next.objects, id)
	next.order = make([]string, 0, len(h.order)-1)
	for _, oid := range h.order {
		if oid == id {
			continue
		}
		next.order = append(next.order, oid)
		if o := h.objects[oid]; o.ParentID == id {
			child := *o
			child.ParentID = cur.ParentID
			next.objects[oid] = &child
		}
	}
	if _, sel := next.selected[id]; sel {
		next.selected = copySet(next.selected)
		delete(next.selected, id)
	}
	return next, nil
}

// AddTemporary appends unsaved objects built from segmentation contours as
// children of parentID (empty for roots). It returns the new object ids in
// contour order.
func (h *Hierarchy) AddTemporary(contours []types.Contour, parentID, addedBy string) (*Hierarchy, []string, error) {
	if parentID != "" {
		if _, ok := h.objects[parentID]; !ok {
			return h, nil, fmt.Errorf("add under %s: %w", parentID, ErrObjectNotFound)
		}
	}
	for i, c := range contours {
		if len(c.X) != len(c.Y) {
			return h, nil, fmt.Errorf("add contour %d: %w", i, ErrMalformedContour)
		}
	}

	next := h.clone()
	next.order = append(make([]string, 0, len(h.order)+len(contours)), h.order...)
	ids := make([]string, 0, len(contours))
	for _, c := range contours {
		o := &Object{
			ID:        next.cfg.NewID(),
			X:         append([]float64(nil), c.X...),
			Y:         append([]float64(nil), c.Y...),
			ParentID:  parentID,
			Temporary: true,
			AddedBy:   addedBy,
		}
		o.Color = ColorFor(colorKey(o))
		next.objects[o.ID] = o
		next.order = append(next.order, o.ID)
		ids = append(ids, o.ID)
	}
	return next, ids, nil
}

// Persist records the external contour id of a saved object and clears its
// temporary flag. The object id does not change.
func (h *Hierarchy) Persist(id string, contourID int64) (*Hierarchy, error) {
	cur, ok := h.objects[id]
	if !ok {
		return h, fmt.Errorf("persist %s: %w", id, ErrObjectNotFound)
	}
	next := h.clone()
	o := *cur
	o.ContourID = types.Int64(contourID)
	o.Temporary = false
	next.objects[id] = &o
	return next, nil
}

// SetParent moves id under parentID, or to the root level when parentID
// is empty.
func (h *Hierarchy) SetParent(id, parentID string) (*Hierarchy, error) {
	cur, ok := h.objects[id]
	if !ok {
		return h, fmt.Errorf("set parent of %s: %w", id, ErrObjectNotFound)
	}
	if parentID != "" {
		if _, ok := h.objects[parentID]; !ok {
			return h, fmt.Errorf("set parent of %s to %s: %w", id, parentID, ErrObjectNotFound)
		}
		for anc, steps := parentID, 0; anc != ""; steps++ {
			if anc == id || steps > len(h.order) {
				return h, fmt.Errorf("set parent of %s to %s: %w", id, parentID, ErrParentCycle)
			}
			p, ok := h.objects[anc]
			if !ok {
				break
			}
			anc = p.ParentID
		}
	}
	if cur.ParentID == parentID {
		return h, nil
	}

	next := h.clone()
	o := *cur
	o.ParentID = parentID
	next.objects[id] = &o
	return next, nil
}

// Exported is the wire form of part of a hierarchy.
type Exported struct {
	Nodes  []types.ContourNode
	Labels map[int64]string
	// Order lists the exported object ids in breadth-first order over Nodes,
	// the order in which a repository assigns contour ids.
	Order []string
}

// Export rebuilds the nested wire shape for ids, or for every object when
// ids is empty. An exported object whose parent is not exported becomes a
// root. Labels covers the exported label ids.
func (h *Hierarchy) Export(ids []string) (Exported, error) {
	include := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		for _, id := range h.order {
			include[id] = struct{}{}
		}
	}
	for _, id := range ids {
		if _, ok := h.objects[id]; !ok {
			return Exported{}, fmt.Errorf("export %s: %w", id, ErrObjectNotFound)
		}
		include[id] = struct{}{}
	}

	kids := make(map[string][]string)
	var roots []string
	for _, id := range h.order {
		if _, ok := include[id]; !ok {
			continue
		}
		parent := h.objects[id].ParentID
		if _, ok := include[parent]; ok && parent != "" {
			kids[parent] = append(kids[parent], id)
			continue
		}
		roots = append(roots, id)
	}

	out := Exported{Labels: map[int64]string{}}
	var build func(id string, depth int) types.ContourNode
	build = func(id string, depth int) types.ContourNode {
		o := h.objects[id]
		n := types.ContourNode{
			ID:       copyInt64(o.ContourID),
			X:        append([]float64(nil), o.X...),
			Y:        append([]float64(nil), o.Y...),
			LabelID:  copyInt64(o.LabelID),
			Children: []types.ContourNode{},
		}
		if p, ok := h.objects[o.ParentID]; ok {
			n.ParentID = copyInt64(p.ContourID)
		}
		if o.LabelID != nil {
			out.Labels[*o.LabelID] = o.Label
		}
		if depth > len(h.order) {
			return n
		}
		for _, k := range kids[id] {
			n.Children = append(n.Children, build(k, depth+1))
		}
		return n
	}

	out.Nodes = make([]types.ContourNode, 0, len(roots))
	for _, id := range roots {
		out.Nodes = append(out.Nodes, build(id, 0))
	}
	for queue := roots; len(queue) > 0; queue = queue[1:] {
		out.Order = append(out.Order, queue[0])
		queue = append(queue, kids[queue[0]]...)
	}
	return out, nil
}

// clone copies the top-level containers. Objects are shared and must be
// replaced, never modified, by the caller.
func (h *Hierarchy) clone() *Hierarchy {
	next := *h
	next.objects = make(map[string]*Object, len(h.objects))
	for k, v := range h.objects {
		next.objects[k] = v
	}
	return &next
}

func nodeName(n *types.ContourNode) string {
	if n.ID == nil {
		return "<new>"
	}
	return strconv.FormatInt(*n.ID, 10)
}

func pick(a, b []float64) []float64 {
	if a != nil {
		return a
	}
	return b
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyLabels(m map[int64]string) map[int64]string {
	out := make(map[int64]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
