package hierarchy

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-annotator/pkg/types"
)

func testConfig() Config {
	n := 0
	return Config{
		MaxNodes: 100,
		NewID: func() string {
			n++
			return fmt.Sprintf("local-%d", n)
		},
	}
}

func square(id int64, labelID *int64, children ...types.ContourNode) types.ContourNode {
	return types.ContourNode{
		ID:       types.Int64(id),
		X:        []float64{0, 10, 10, 0},
		Y:        []float64{0, 0, 10, 10},
		LabelID:  labelID,
		Children: children,
	}
}

func mustLoad(t *testing.T, roots []types.ContourNode, labels map[int64]string) *Hierarchy {
	t.Helper()
	h, err := Load(roots, labels, testConfig())
	require.NoError(t, err)
	return h
}

func TestValidLabel(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"coral", true},
		{"  reef fish ", true},
		{"", false},
		{"   ", false},
		{"Object", false},
		{"12", false},
		{"12b", true},
		{"object", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidLabel(tt.name))
		})
	}
}

func TestLoadIsBreadthFirst(t *testing.T) {
	roots := []types.ContourNode{
		square(1, nil, square(3, nil, square(5, nil)), square(4, nil)),
		square(2, nil),
	}
	h := mustLoad(t, roots, nil)

	var ids []string
	for _, o := range h.Objects() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)

	o, ok := h.Get("5")
	require.True(t, ok)
	assert.Equal(t, "3", o.ParentID)
	assert.Equal(t, 2, h.Depth("5"))
	assert.Len(t, h.Roots(), 2)
	assert.Len(t, h.Children("1"), 2)
}

func TestLoadAssignsLocalIDs(t *testing.T) {
	node := types.ContourNode{X: []float64{0, 1, 1}, Y: []float64{0, 0, 1}}
	h := mustLoad(t, []types.ContourNode{node, node}, nil)

	ids := []string{h.Objects()[0].ID, h.Objects()[1].ID}
	assert.Equal(t, []string{"local-1", "local-2"}, ids)
	assert.Nil(t, h.Objects()[0].ContourID)
}

func TestLabelAssignmentOrder(t *testing.T) {
	roots := []types.ContourNode{
		square(1, nil),
		square(2, types.Int64(7)),
		square(3, nil),
	}
	h := mustLoad(t, roots, map[int64]string{7: "coral"})

	y, _ := h.Get("2")
	assert.Equal(t, "coral", y.Label)
	assert.Equal(t, 1, y.LabelOrder)

	reef := "reef"
	h, err := h.Update("1", Patch{Label: &reef})
	require.NoError(t, err)
	x, _ := h.Get("1")
	assert.Equal(t, 2, x.LabelOrder)

	// relabeling keeps the first order
	rock := "rock"
	h, err = h.Update("1", Patch{Label: &rock})
	require.NoError(t, err)
	x, _ = h.Get("1")
	assert.Equal(t, 2, x.LabelOrder)
	assert.Equal(t, 2, h.LabelCounter())

	// placeholder and numeric labels do not count
	placeholder := PlaceholderLabel
	h, err = h.Update("3", Patch{Label: &placeholder})
	require.NoError(t, err)
	z, _ := h.Get("3")
	assert.Zero(t, z.LabelOrder)
}

func TestLabelCounterContinuesAcrossIncrementalChanges(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, types.Int64(1))}, map[int64]string{1: "coral"})
	h, ids, err := h.AddTemporary([]types.Contour{{X: []float64{0, 1, 1}, Y: []float64{0, 0, 1}}}, "", "user")
	require.NoError(t, err)

	name := "sponge"
	h, err = h.Update(ids[0], Patch{Label: &name})
	require.NoError(t, err)
	o, _ := h.Get(ids[0])
	assert.Equal(t, 2, o.LabelOrder)

	fresh := mustLoad(t, []types.ContourNode{square(9, types.Int64(1))}, map[int64]string{1: "coral"})
	assert.Equal(t, 1, fresh.LabelCounter(), "replacing the hierarchy restarts the counter")
}

func TestMissingLabelFallsBack(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, types.Int64(42))}, map[int64]string{})
	o, _ := h.Get("1")
	assert.Equal(t, "Label 42", o.Label)
	assert.Equal(t, 1, o.LabelOrder)
}

func TestStableUnlabeledColors(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil), square(2, nil), square(3, nil)}, nil)
	a, _ := h.Get("1")
	c, _ := h.Get("3")

	h, err := h.Remove("2")
	require.NoError(t, err)

	a2, _ := h.Get("1")
	c2, _ := h.Get("3")
	assert.Equal(t, a.Color, a2.Color)
	assert.Equal(t, c.Color, c2.Color)
	assert.Equal(t, ColorFor("object:1"), a2.Color)
}

func TestColorKeyPrecedence(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, types.Int64(5)), square(2, types.Int64(5)), square(3, nil)}, map[int64]string{5: "coral"})
	a, _ := h.Get("1")
	b, _ := h.Get("2")
	assert.Equal(t, a.Color, b.Color, "same label id, same color")
	assert.Equal(t, ColorFor("label-id:5"), a.Color)

	name := "coral"
	h, err := h.Update("3", Patch{Label: &name})
	require.NoError(t, err)
	c, _ := h.Get("3")
	assert.Equal(t, ColorFor("label:coral"), c.Color)

	h, err = h.Update("3", Patch{ClearLabel: true})
	require.NoError(t, err)
	c, _ = h.Get("3")
	assert.Equal(t, ColorFor("object:3"), c.Color)
	assert.Equal(t, 3, c.LabelOrder, "order survives losing the label")
}

func TestPlaceholderLabelKeepsObjectColor(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil), square(2, nil)}, nil)

	placeholder := PlaceholderLabel
	numeric := "17"
	h, err := h.Update("1", Patch{Label: &placeholder})
	require.NoError(t, err)
	h, err = h.Update("2", Patch{Label: &numeric})
	require.NoError(t, err)

	a, _ := h.Get("1")
	b, _ := h.Get("2")
	assert.False(t, a.HasValidLabel())
	assert.False(t, b.HasValidLabel())
	assert.Equal(t, ColorFor("object:1"), a.Color)
	assert.Equal(t, ColorFor("object:2"), b.Color)
	assert.Zero(t, h.LabelCounter())
}

func TestUpdateWithLabelID(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil)}, map[int64]string{3: "sponge"})

	h, err := h.Update("1", Patch{LabelID: types.Int64(3)})
	require.NoError(t, err)
	o, _ := h.Get("1")
	assert.Equal(t, "sponge", o.Label)

	name := "anemone"
	h, err = h.Update("1", Patch{LabelID: types.Int64(8), Label: &name})
	require.NoError(t, err)
	assert.Equal(t, "anemone", h.Labels()[8])
}

func TestUpdateRejectsMismatchedOutline(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil)}, nil)
	_, err := h.Update("1", Patch{X: []float64{1, 2}})
	assert.ErrorIs(t, err, ErrMalformedContour)

	_, err = h.Update("nope", Patch{})
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMalformedInputResets(t *testing.T) {
	roots := []types.ContourNode{
		square(1, types.Int64(1)),
		{ID: types.Int64(2), X: []float64{0, 1}, Y: []float64{0}},
	}
	h, err := Load(roots, map[int64]string{1: "coral"}, testConfig())
	assert.ErrorIs(t, err, ErrMalformedContour)
	require.NotNil(t, h)
	assert.Zero(t, h.Len())
	assert.Zero(t, h.LabelCounter())
}

func TestDuplicateIDsAndNodeLimit(t *testing.T) {
	// a subtree that repeats its ancestor's id is skipped
	roots := []types.ContourNode{square(1, nil, square(2, nil, square(1, nil, square(3, nil))))}
	h := mustLoad(t, roots, nil)
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.Truncated())

	cfg := testConfig()
	cfg.MaxNodes = 3
	wide := []types.ContourNode{square(1, nil), square(2, nil), square(3, nil), square(4, nil)}
	h, err := Load(wide, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())
	assert.True(t, h.Truncated())
}

func TestDefaultConfigLoadsLargeHierarchies(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.MaxNodes)

	roots := make([]types.ContourNode, 12000)
	for i := range roots {
		roots[i] = square(int64(i+1), nil)
	}
	roots[0].Children = []types.ContourNode{square(20000, nil)}

	h, err := Load(roots, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, 12001, h.Len())
	assert.False(t, h.Truncated())
}

func TestRemoveReparentsChildren(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil, square(2, nil, square(3, nil)))}, nil)
	h = h.Select("2", "3")

	next, err := h.Remove("2")
	require.NoError(t, err)

	o, _ := next.Get("3")
	assert.Equal(t, "1", o.ParentID)
	assert.Equal(t, []string{"3"}, next.Selected())

	old, _ := h.Get("3")
	assert.Equal(t, "2", old.ParentID, "old hierarchy is untouched")

	_, err = next.Remove("2")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestSetParentDetectsCycles(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil, square(2, nil, square(3, nil))), square(4, nil)}, nil)

	_, err := h.SetParent("1", "3")
	assert.ErrorIs(t, err, ErrParentCycle)
	_, err = h.SetParent("1", "1")
	assert.ErrorIs(t, err, ErrParentCycle)

	h, err = h.SetParent("4", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, h.Depth("4"))

	h, err = h.SetParent("3", "")
	require.NoError(t, err)
	assert.Equal(t, 0, h.Depth("3"))
	assert.Equal(t, 1, h.Depth("4"))
}

func TestAddTemporaryAndPersist(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil)}, nil)
	contours := []types.Contour{
		{X: []float64{1, 2, 2}, Y: []float64{1, 1, 2}},
		{X: []float64{3, 4, 4}, Y: []float64{3, 3, 4}},
	}

	h, ids, err := h.AddTemporary(contours, "1", "sam")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	o, _ := h.Get(ids[0])
	assert.True(t, o.Temporary)
	assert.Equal(t, "1", o.ParentID)
	assert.Equal(t, "sam", o.AddedBy)

	h, err = h.Persist(ids[0], 77)
	require.NoError(t, err)
	o, _ = h.Get(ids[0])
	assert.False(t, o.Temporary)
	assert.Equal(t, int64(77), *o.ContourID)
	assert.Equal(t, ids[0], o.ID)

	_, _, err = h.AddTemporary(contours, "missing", "sam")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, _, err = h.AddTemporary([]types.Contour{{X: []float64{1}, Y: nil}}, "", "sam")
	assert.ErrorIs(t, err, ErrMalformedContour)
}

func TestExportRoundTripsTheTree(t *testing.T) {
	roots := []types.ContourNode{square(1, types.Int64(1), square(2, nil), square(3, types.Int64(2)))}
	labels := map[int64]string{1: "coral", 2: "fish"}
	h := mustLoad(t, roots, labels)

	ex, err := h.Export(nil)
	require.NoError(t, err)
	require.Len(t, ex.Nodes, 1)
	assert.Equal(t, int64(1), *ex.Nodes[0].ID)
	require.Len(t, ex.Nodes[0].Children, 2)
	assert.Equal(t, int64(1), *ex.Nodes[0].Children[0].ParentID)
	assert.Equal(t, labels, ex.Labels)
	assert.Equal(t, []string{"1", "2", "3"}, ex.Order)

	again := mustLoad(t, ex.Nodes, ex.Labels)
	assert.Equal(t, h.Objects(), again.Objects())
}

func TestExportSubsetPromotesOrphans(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil, square(2, nil, square(3, nil)))}, nil)

	ex, err := h.Export([]string{"3", "1"})
	require.NoError(t, err)
	require.Len(t, ex.Nodes, 2)
	assert.Empty(t, ex.Nodes[0].Children)
	assert.Equal(t, int64(3), *ex.Nodes[1].ID)
	assert.Equal(t, int64(2), *ex.Nodes[1].ParentID)
	assert.Equal(t, []string{"1", "3"}, ex.Order)

	_, err = h.Export([]string{"9"})
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestSelection(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, nil), square(2, nil)}, nil)

	h = h.Select("1", "1", "unknown")
	assert.Equal(t, []string{"1"}, h.Selected())

	h = h.ToggleSelect("2")
	assert.True(t, h.IsSelected("2"))
	h = h.ToggleSelect("2")
	assert.False(t, h.IsSelected("2"))

	h = h.Deselect("1").Deselect("1")
	assert.Empty(t, h.Selected())

	h = h.Select("1", "2").ClearSelection()
	assert.Empty(t, h.Selected())
}

func TestVisibility(t *testing.T) {
	roots := []types.ContourNode{
		square(1, types.Int64(1), square(3, nil), square(4, types.Int64(2))),
		square(2, nil, square(5, nil)),
	}
	h := mustLoad(t, roots, map[int64]string{1: "coral", 2: "fish"})

	ids := func(objs []Object) []string {
		var out []string
		for _, o := range objs {
			out = append(out, o.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(h.Visible()))

	h = h.SetVisibilityMode(RootLevelOnly)
	assert.Equal(t, []string{"1", "2"}, ids(h.Visible()))

	h = h.SetVisibilityMode(SelectedLevelOnly).Select("3")
	assert.Equal(t, []string{"3", "4"}, ids(h.Visible()))

	h = h.SetLabelHidden("fish", true)
	assert.Equal(t, []string{"3"}, ids(h.Visible()))

	h = h.SetVisibilityMode(ShowAll).SetLabelHidden("fish", false).SetLabelHidden("coral", true)
	assert.Equal(t, []string{"2", "3", "4", "5"}, ids(h.Visible()))
	assert.Equal(t, []string{"coral"}, h.HiddenLabels())
}

func TestParseVisibilityMode(t *testing.T) {
	m, ok := ParseVisibilityMode("selected_level_only")
	assert.True(t, ok)
	assert.Equal(t, SelectedLevelOnly, m)

	_, ok = ParseVisibilityMode("bogus")
	assert.False(t, ok)
}

func TestHierarchyJSON(t *testing.T) {
	h := mustLoad(t, []types.ContourNode{square(1, types.Int64(1))}, map[int64]string{1: "coral"})
	raw, err := json.Marshal(h.Select("1"))
	require.NoError(t, err)

	var decoded struct {
		Objects  []Object `json:"objects"`
		Selected []string `json:"selected"`
		Mode     string   `json:"visibility_mode"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded.Objects, 1)
	assert.Equal(t, []string{"1"}, decoded.Selected)
	assert.Equal(t, "show_all", decoded.Mode)
}
