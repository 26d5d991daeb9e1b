// Package redis stores contour hierarchies in Redis, one JSON document per
// image.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/types"
)

// ErrContourNotFound is returned when deleting an unknown contour.
var ErrContourNotFound = errors.New("contour not found")

// maxTxRetries bounds optimistic transaction retries on concurrent writes.
const maxTxRetries = 5

// Repository implements client.HierarchyRepository using Redis.
type Repository struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ client.HierarchyRepository = (*Repository)(nil)

type Option func(*Repository)

// WithTTL sets the expiration of stored documents.
func WithTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.prefix = prefix
	}
}

// New creates a repository connected to address.
func New(address, password string, db int, opts ...Option) *Repository {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a repository from an existing client.
func NewFromClient(c *backend.Client, opts ...Option) *Repository {
	r := &Repository{
		client: c,
		prefix: "annotator:hierarchy:",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) key(imageID string) string {
	return r.prefix + imageID
}

func (r *Repository) seqKey() string {
	return r.prefix + "seq"
}

// Save replaces the stored document of doc.ImageID.
func (r *Repository) Save(ctx context.Context, doc *types.HierarchyDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal hierarchy: %w", err)
	}
	if err := r.client.Set(ctx, r.key(doc.ImageID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// FetchHierarchy loads the stored document of an image.
func (r *Repository) FetchHierarchy(ctx context.Context, imageID string) (*types.HierarchyDocument, error) {
	return r.load(ctx, r.client, imageID)
}

type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

func (r *Repository) load(ctx context.Context, g getter, imageID string) (*types.HierarchyDocument, error) {
	val, err := g.Get(ctx, r.key(imageID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("fetch %s: %w", imageID, client.ErrHierarchyNotFound)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	var doc types.HierarchyDocument
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hierarchy: %w", err)
	}
	return &doc, nil
}

// AddContours assigns ids to nodes that have none, attaches each root under
// its ParentID when that contour is stored (else at the top level) and
// returns every node's id in breadth-first order.
func (r *Repository) AddContours(ctx context.Context, imageID string, nodes []types.ContourNode, labels map[int64]string) ([]int64, error) {
	var ids []int64
	err := r.update(ctx, imageID, true, func(doc *types.HierarchyDocument) error {
		missing := countMissing(nodes)
		var next int64
		if missing > 0 {
			top, err := r.client.IncrBy(ctx, r.seqKey(), int64(missing)).Result()
			if err != nil {
				return fmt.Errorf("failed to allocate contour ids: %w", err)
			}
			next = top - int64(missing) + 1
		}

		added := cloneNodes(nodes)
		ids = assignIDs(added, &next)

		for _, n := range added {
			if n.ParentID != nil {
				if parent := findNode(doc.Contours, *n.ParentID); parent != nil {
					parent.Children = append(parent.Children, n)
					continue
				}
				n.ParentID = nil
			}
			doc.Contours = append(doc.Contours, n)
		}
		if doc.Labels == nil {
			doc.Labels = map[int64]string{}
		}
		for id, name := range labels {
			doc.Labels[id] = name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteContour removes a contour. Its children move up to its parent.
func (r *Repository) DeleteContour(ctx context.Context, imageID string, contourID int64) error {
	return r.update(ctx, imageID, false, func(doc *types.HierarchyDocument) error {
		var ok bool
		doc.Contours, ok = removeNode(doc.Contours, contourID, nil)
		if !ok {
			return fmt.Errorf("delete %d from %s: %w", contourID, imageID, ErrContourNotFound)
		}
		return nil
	})
}

// update runs fn on the stored document inside an optimistic transaction.
func (r *Repository) update(ctx context.Context, imageID string, create bool, fn func(*types.HierarchyDocument) error) error {
	key := r.key(imageID)
	txf := func(tx *backend.Tx) error {
		doc, err := r.load(ctx, tx, imageID)
		if err != nil {
			if !create || !errors.Is(err, client.ErrHierarchyNotFound) {
				return err
			}
			doc = &types.HierarchyDocument{ImageID: imageID, Labels: map[int64]string{}}
		}
		if err := fn(doc); err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal hierarchy: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too many concurrent writers", imageID)
}

func countMissing(nodes []types.ContourNode) int {
	n := 0
	for _, c := range nodes {
		if c.ID == nil {
			n++
		}
		n += countMissing(c.Children)
	}
	return n
}

func cloneNodes(nodes []types.ContourNode) []types.ContourNode {
	out := make([]types.ContourNode, len(nodes))
	for i, n := range nodes {
		out[i] = n
		out[i].Children = cloneNodes(n.Children)
	}
	return out
}

// assignIDs walks nodes breadth-first, giving id-less nodes consecutive ids
// from *next and pointing children at their parent.
func assignIDs(nodes []types.ContourNode, next *int64) []int64 {
	var ids []int64
	queue := make([]*types.ContourNode, 0, len(nodes))
	for i := range nodes {
		queue = append(queue, &nodes[i])
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.ID == nil {
			n.ID = types.Int64(*next)
			*next++
		}
		ids = append(ids, *n.ID)
		for i := range n.Children {
			n.Children[i].ParentID = types.Int64(*n.ID)
			queue = append(queue, &n.Children[i])
		}
	}
	return ids
}

func findNode(nodes []types.ContourNode, id int64) *types.ContourNode {
	for i := range nodes {
		if nodes[i].ID != nil && *nodes[i].ID == id {
			return &nodes[i]
		}
		if found := findNode(nodes[i].Children, id); found != nil {
			return found
		}
	}
	return nil
}

func removeNode(nodes []types.ContourNode, id int64, parent *int64) ([]types.ContourNode, bool) {
	for i := range nodes {
		if nodes[i].ID != nil && *nodes[i].ID == id {
			orphans := nodes[i].Children
			out := append(append([]types.ContourNode{}, nodes[:i]...), nodes[i+1:]...)
			for _, o := range orphans {
				o.ParentID = parent
				out = append(out, o)
			}
			return out, true
		}
		if children, ok := removeNode(nodes[i].Children, id, nodes[i].ID); ok {
			nodes[i].Children = children
			return nodes, true
		}
	}
	return nodes, false
}
