package types

// PointPromptWire is a point prompt as sent to the segmentation service.
// Label is 1 for positive and 0 for negative points.
type PointPromptWire struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label int     `json:"label"`
}

// BoxPromptWire is the single box prompt accepted per segmentation call.
type BoxPromptWire struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// PromptSet groups the prompts of one segmentation call.
type PromptSet struct {
	PointPrompts []PointPromptWire `json:"point_prompts"`
	BoxPrompt    *BoxPromptWire    `json:"box_prompt"`
}

// SegmentRequest is the body of a segmentation call. Coordinates are image-pixel space.
type SegmentRequest struct {
	ImageID string    `json:"image_id"`
	Prompts PromptSet `json:"prompts"`
	Label   int64     `json:"label"`
}

// BuildSegmentRequest converts committed prompts into a segmentation request.
// Only the first box prompt is sent; polygon prompts are not part of the
// segmentation contract and are skipped.
func BuildSegmentRequest(imageID string, prompts []Prompt, label int64) SegmentRequest {
	req := SegmentRequest{
		ImageID: imageID,
		Prompts: PromptSet{PointPrompts: []PointPromptWire{}},
		Label:   label,
	}
	for _, p := range prompts {
		switch p.Kind {
		case KindPoint:
			req.Prompts.PointPrompts = append(req.Prompts.PointPrompts, PointPromptWire{
				X:     p.Point.X,
				Y:     p.Point.Y,
				Label: int(p.Polarity),
			})
		case KindBox:
			if req.Prompts.BoxPrompt == nil {
				req.Prompts.BoxPrompt = &BoxPromptWire{MinX: p.Box.X1, MinY: p.Box.Y1, MaxX: p.Box.X2, MaxY: p.Box.Y2}
			}
		}
	}
	return req
}

// Contour is one closed outline returned by the segmentation service.
type Contour struct {
	X            []float64 `json:"x"`
	Y            []float64 `json:"y"`
	PredictedIoU float64   `json:"predicted_iou"`
}

// Mask groups the contours describing one segmented region.
type Mask struct {
	Contours []Contour `json:"contours"`
}

// SegmentResponse is the segmentation service's answer.
type SegmentResponse struct {
	Masks []Mask `json:"masks"`
}

// ContourNode is the persisted shape of a contour hierarchy. Children are
// nested; ParentID is informational on the wire and rebuilt on export.
type ContourNode struct {
	ID       *int64        `json:"id,omitempty" yaml:"id,omitempty"`
	X        []float64     `json:"x" yaml:"x"`
	Y        []float64     `json:"y" yaml:"y"`
	LabelID  *int64        `json:"label_id" yaml:"label_id"`
	ParentID *int64        `json:"parent_id" yaml:"parent_id"`
	Children []ContourNode `json:"children" yaml:"children"`
}

// HierarchyDocument is a contour tree plus its label id to name map.
type HierarchyDocument struct {
	ImageID  string           `json:"image_id" yaml:"image_id"`
	Contours []ContourNode    `json:"contours" yaml:"contours"`
	Labels   map[int64]string `json:"labels" yaml:"labels"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
