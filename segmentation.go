package annotator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/image-annotator/internal/metrics"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/hierarchy"
	"github.com/menta2k/image-annotator/pkg/prompt"
	"github.com/menta2k/image-annotator/pkg/suggest"
	"github.com/menta2k/image-annotator/pkg/types"
)

// AddedBySegmentation marks objects created from segmentation results.
const AddedBySegmentation = "segmentation"

// Ticket tags a segmentation request with the state it was issued from.
type Ticket struct {
	ImageID string `json:"image_id"`
	Seq     uint64 `json:"seq"`
	Label   int64  `json:"label"`
}

// Pending is a segmentation request waiting to be sent.
type Pending struct {
	Ticket  Ticket               `json:"ticket"`
	Request types.SegmentRequest `json:"request"`
}

// BeginSegmentation builds a request from the committed prompts. Any
// request issued earlier for the image is superseded.
func (e *Engine) BeginSegmentation(label int64) (Pending, error) {
	var p Pending
	_, err := e.update(func(s *State) error {
		var err error
		p, err = e.begin(s, label)
		return err
	})
	return p, err
}

func (e *Engine) begin(s *State, label int64) (Pending, error) {
	if !s.HasImage() {
		return Pending{}, ErrNoActiveImage
	}
	req := types.BuildSegmentRequest(s.ImageID, s.Prompts.Prompts(), label)
	if len(req.Prompts.PointPrompts) == 0 && req.Prompts.BoxPrompt == nil {
		return Pending{}, ErrNoPrompts
	}
	s.Segmentation = Segmentation{Seq: s.Segmentation.Seq + 1, InFlight: true}
	return Pending{
		Ticket:  Ticket{ImageID: s.ImageID, Seq: s.Segmentation.Seq, Label: label},
		Request: req,
	}, nil
}

// CompleteSegmentation ingests a response as unsaved objects, children of
// the focused object when focus mode is on. Responses for a replaced image
// or a superseded request return ErrStaleResponse and change nothing.
func (e *Engine) CompleteSegmentation(t Ticket, resp *types.SegmentResponse) (State, []string, error) {
	var ids []string
	next, err := e.update(func(s *State) error {
		if err := checkTicket(s, t); err != nil {
			return err
		}
		s.Segmentation.InFlight = false
		s.Segmentation.LastError = ""

		contours := usableContours(resp)
		if len(contours) == 0 {
			return nil
		}
		h, added, err := s.Hierarchy.AddTemporary(contours, s.Focus.ObjectID, AddedBySegmentation)
		if err != nil {
			return err
		}
		if t.Label > 0 {
			for _, id := range added {
				if h, err = h.Update(id, hierarchy.Patch{LabelID: types.Int64(t.Label)}); err != nil {
					return err
				}
			}
		}
		s.Hierarchy = h
		ids = added
		return nil
	})
	if errors.Is(err, ErrStaleResponse) {
		e.logger.Debug("discarding stale segmentation response",
			zap.String("image_id", t.ImageID), zap.Uint64("seq", t.Seq))
		return next, nil, err
	}
	if err != nil {
		return next, nil, err
	}
	e.logger.Info("segmentation ingested",
		zap.String("image_id", t.ImageID),
		zap.Int("objects", len(ids)))
	e.metrics.SetObjects(next.Hierarchy.Len())
	return next, ids, nil
}

// FailSegmentation records a failed request. Failures of superseded
// requests are ignored.
func (e *Engine) FailSegmentation(t Ticket, cause error) State {
	next, _ := e.update(func(s *State) error {
		if err := checkTicket(s, t); err != nil {
			return err
		}
		s.Segmentation.InFlight = false
		if cause != nil {
			s.Segmentation.LastError = cause.Error()
		}
		return nil
	})
	return next
}

// Dispatch sends a pending request to the configured segmenter and
// ingests the answer.
func (e *Engine) Dispatch(ctx context.Context, p Pending) (State, []string, error) {
	if e.segmenter == nil {
		return e.Snapshot(), nil, fmt.Errorf("segment: %w", ErrNotConfigured)
	}

	start := time.Now()
	resp, err := e.segmenter.Segment(ctx, p.Request)
	took := time.Since(start)
	if err != nil {
		e.logger.Error("segmentation failed",
			zap.String("image_id", p.Ticket.ImageID),
			zap.Uint64("seq", p.Ticket.Seq),
			zap.Error(err))
		e.metrics.Segmentation(metrics.ResultError, took)
		return e.FailSegmentation(p.Ticket, err), nil, fmt.Errorf("segment %s: %w", p.Ticket.ImageID, err)
	}

	next, ids, err := e.CompleteSegmentation(p.Ticket, resp)
	switch {
	case errors.Is(err, ErrStaleResponse):
		e.metrics.Segmentation(metrics.ResultStale, took)
	case err != nil:
		e.metrics.Segmentation(metrics.ResultError, took)
	default:
		e.metrics.Segmentation(metrics.ResultOK, took)
	}
	return next, ids, err
}

// Segment runs segmentation on the committed prompts and waits for it.
func (e *Engine) Segment(ctx context.Context, label int64) (State, []string, error) {
	if e.segmenter == nil {
		return e.Snapshot(), nil, fmt.Errorf("segment: %w", ErrNotConfigured)
	}
	p, err := e.BeginSegmentation(label)
	if err != nil {
		return e.Snapshot(), nil, err
	}
	return e.Dispatch(ctx, p)
}

// FetchHierarchy loads the stored hierarchy of the active image. An image
// with nothing stored gets an empty hierarchy.
func (e *Engine) FetchHierarchy(ctx context.Context) (State, error) {
	if e.repo == nil {
		return e.Snapshot(), fmt.Errorf("fetch hierarchy: %w", ErrNotConfigured)
	}
	snap := e.Snapshot()
	if !snap.HasImage() {
		return snap, ErrNoActiveImage
	}

	doc, err := e.repo.FetchHierarchy(ctx, snap.ImageID)
	switch {
	case errors.Is(err, client.ErrHierarchyNotFound):
		e.logger.Debug("no stored hierarchy", zap.String("image_id", snap.ImageID))
		doc = &types.HierarchyDocument{ImageID: snap.ImageID}
	case err != nil:
		return e.Snapshot(), fmt.Errorf("fetch hierarchy %s: %w", snap.ImageID, err)
	}
	return e.loadHierarchy(doc, &snap.epoch)
}

// PersistObjects saves objects through the repository and records the
// contour ids it assigns. With no ids every unsaved object is saved.
func (e *Engine) PersistObjects(ctx context.Context, ids []string) (State, error) {
	if e.repo == nil {
		return e.Snapshot(), fmt.Errorf("persist objects: %w", ErrNotConfigured)
	}
	snap := e.Snapshot()
	if !snap.HasImage() {
		return snap, ErrNoActiveImage
	}
	if len(ids) == 0 {
		for _, o := range snap.Hierarchy.Objects() {
			if o.Temporary {
				ids = append(ids, o.ID)
			}
		}
		if len(ids) == 0 {
			return snap, nil
		}
	}

	exp, err := snap.Hierarchy.Export(ids)
	if err != nil {
		return snap, err
	}
	contourIDs, err := e.repo.AddContours(ctx, snap.ImageID, exp.Nodes, exp.Labels)
	if err != nil {
		return e.Snapshot(), fmt.Errorf("persist objects %s: %w", snap.ImageID, err)
	}
	if len(contourIDs) != len(exp.Order) {
		return e.Snapshot(), fmt.Errorf("persist objects %s: got %d ids for %d contours", snap.ImageID, len(contourIDs), len(exp.Order))
	}

	next, err := e.update(func(s *State) error {
		if s.epoch != snap.epoch {
			return fmt.Errorf("persist for replaced image: %w", ErrStaleResponse)
		}
		h := s.Hierarchy
		for i, id := range exp.Order {
			persisted, err := h.Persist(id, contourIDs[i])
			if errors.Is(err, hierarchy.ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			h = persisted
		}
		s.Hierarchy = h
		return nil
	})
	if err != nil {
		return next, err
	}
	e.logger.Info("objects persisted",
		zap.String("image_id", snap.ImageID),
		zap.Int("count", len(contourIDs)))
	return next, nil
}

// DeleteObject removes an object, deleting its stored contour first when
// it has been saved.
func (e *Engine) DeleteObject(ctx context.Context, id string) (State, error) {
	snap := e.Snapshot()
	o, ok := snap.Hierarchy.Get(id)
	if !ok {
		return snap, fmt.Errorf("delete %s: %w", id, hierarchy.ErrObjectNotFound)
	}
	if o.ContourID != nil {
		if e.repo == nil {
			return snap, fmt.Errorf("delete %s: %w", id, ErrNotConfigured)
		}
		if err := e.repo.DeleteContour(ctx, snap.ImageID, *o.ContourID); err != nil {
			return e.Snapshot(), fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return e.RemoveObject(id)
}

// SuggestBox asks the vision model for the main subject of img and commits
// it as a box prompt. img must be the active image.
func (e *Engine) SuggestBox(ctx context.Context, img image.Image) (Outcome, *suggest.Suggestion, error) {
	if e.suggester == nil {
		return Outcome{State: e.Snapshot()}, nil, fmt.Errorf("suggest box: %w", ErrNotConfigured)
	}
	snap := e.Snapshot()
	if !snap.HasImage() {
		return Outcome{State: snap}, nil, ErrNoActiveImage
	}

	sug, err := e.suggester.Suggest(ctx, img)
	if err != nil {
		return Outcome{State: e.Snapshot()}, nil, err
	}

	stale := false
	out := e.recorded("suggest box", func(s *State) prompt.Effect {
		if s.epoch != snap.epoch {
			stale = true
			return prompt.Effect{}
		}
		var eff prompt.Effect
		s.Prompts, eff = e.prompts.AddBox(s.Prompts, sug.Box, s.view(e.now()))
		return eff
	})
	if stale {
		return out, nil, fmt.Errorf("suggest box: %w", ErrStaleResponse)
	}
	return out, sug, nil
}

func checkTicket(s *State, t Ticket) error {
	if t.ImageID != s.ImageID || t.Seq != s.Segmentation.Seq {
		return fmt.Errorf("ticket %s#%d: %w", t.ImageID, t.Seq, ErrStaleResponse)
	}
	return nil
}

// usableContours flattens the masks, dropping contours that cannot form
// an outline.
func usableContours(resp *types.SegmentResponse) []types.Contour {
	if resp == nil {
		return nil
	}
	var out []types.Contour
	for _, m := range resp.Masks {
		for _, c := range m.Contours {
			if len(c.X) != len(c.Y) || len(c.X) < 3 {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}
