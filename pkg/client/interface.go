// Package client declares the collaborators the annotation engine talks to.
package client

import (
	"context"
	"errors"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Segmenter runs prompt-driven segmentation on an image.
type Segmenter interface {
	Segment(ctx context.Context, req types.SegmentRequest) (*types.SegmentResponse, error)
}

// HierarchyRepository loads and stores contour hierarchies.
type HierarchyRepository interface {
	FetchHierarchy(ctx context.Context, imageID string) (*types.HierarchyDocument, error)
	// AddContours stores nodes and returns the contour ids assigned to
	// them in breadth-first order.
	AddContours(ctx context.Context, imageID string, nodes []types.ContourNode, labels map[int64]string) ([]int64, error)
	DeleteContour(ctx context.Context, imageID string, contourID int64) error
}

// VisionClient queries a vision language model about an image.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectObject(ctx context.Context, model, prompt, imgB64 string) (*types.Detection, error)
}

// ErrHierarchyNotFound is returned when no hierarchy is stored for an image.
var ErrHierarchyNotFound = errors.New("hierarchy not found")
