// Package segment is the HTTP client for the segmentation service and its
// contour store.
package segment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Client talks to the segmentation service over HTTP. It implements
// client.Segmenter and client.HierarchyRepository.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

var (
	_ client.Segmenter           = (*Client)(nil)
	_ client.HierarchyRepository = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc).SetBaseURL(c.http.BaseURL)
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("segment: base URL is required")
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(60 * time.Second).
			SetHeader("Accept", "application/json"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Segment posts the prompts of one segmentation call.
func (c *Client) Segment(ctx context.Context, req types.SegmentRequest) (*types.SegmentResponse, error) {
	var out types.SegmentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/segment")
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", req.ImageID, err)
	}
	if resp.IsError() {
		return nil, statusError("segment "+req.ImageID, resp)
	}

	c.logger.Debug("segmentation response",
		zap.String("image_id", req.ImageID),
		zap.Int("masks", len(out.Masks)),
		zap.Duration("took", resp.Time()))
	return &out, nil
}

// FetchHierarchy loads the stored contour tree of an image.
func (c *Client) FetchHierarchy(ctx context.Context, imageID string) (*types.HierarchyDocument, error) {
	var doc types.HierarchyDocument
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", imageID).
		SetResult(&doc).
		Get("/images/{id}/contours")
	if err != nil {
		return nil, fmt.Errorf("fetch hierarchy %s: %w", imageID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("fetch hierarchy %s: %w", imageID, client.ErrHierarchyNotFound)
	}
	if resp.IsError() {
		return nil, statusError("fetch hierarchy "+imageID, resp)
	}
	if doc.ImageID == "" {
		doc.ImageID = imageID
	}
	return &doc, nil
}

type addContoursRequest struct {
	Contours []types.ContourNode `json:"contours"`
	Labels   map[int64]string    `json:"labels"`
}

type addContoursResponse struct {
	IDs []int64 `json:"ids"`
}

// AddContours stores new contours and returns their assigned ids.
func (c *Client) AddContours(ctx context.Context, imageID string, nodes []types.ContourNode, labels map[int64]string) ([]int64, error) {
	var out addContoursResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", imageID).
		SetBody(addContoursRequest{Contours: nodes, Labels: labels}).
		SetResult(&out).
		Post("/images/{id}/contours")
	if err != nil {
		return nil, fmt.Errorf("add contours %s: %w", imageID, err)
	}
	if resp.IsError() {
		return nil, statusError("add contours "+imageID, resp)
	}
	return out.IDs, nil
}

// DeleteContour removes one stored contour.
func (c *Client) DeleteContour(ctx context.Context, imageID string, contourID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"id":      imageID,
			"contour": strconv.FormatInt(contourID, 10),
		}).
		Delete("/images/{id}/contours/{contour}")
	if err != nil {
		return fmt.Errorf("delete contour %d: %w", contourID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("delete contour %d: %w", contourID, client.ErrHierarchyNotFound)
	}
	if resp.IsError() {
		return statusError(fmt.Sprintf("delete contour %d", contourID), resp)
	}
	return nil
}

func statusError(op string, resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode(), body)
}
