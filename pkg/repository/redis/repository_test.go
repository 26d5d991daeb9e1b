package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/repository/redis"
	"github.com/menta2k/image-annotator/pkg/types"
)

func setup(t *testing.T, opts ...redis.Option) (*redis.Repository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return redis.NewFromClient(c, opts...), mr
}

func tri() ([]float64, []float64) {
	return []float64{0, 1, 1}, []float64{0, 0, 1}
}

func TestFetchMissing(t *testing.T) {
	repo, _ := setup(t)
	_, err := repo.FetchHierarchy(context.Background(), "nope")
	assert.ErrorIs(t, err, client.ErrHierarchyNotFound)
}

func TestSaveAndFetch(t *testing.T) {
	repo, mr := setup(t, redis.WithPrefix("test:"))
	ctx := context.Background()
	x, y := tri()

	doc := &types.HierarchyDocument{
		ImageID:  "img-1",
		Contours: []types.ContourNode{{ID: types.Int64(1), X: x, Y: y, LabelID: types.Int64(3)}},
		Labels:   map[int64]string{3: "coral"},
	}
	require.NoError(t, repo.Save(ctx, doc))
	assert.True(t, mr.Exists("test:img-1"))

	got, err := repo.FetchHierarchy(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, "coral", got.Labels[3])
	require.Len(t, got.Contours, 1)
	assert.Equal(t, int64(1), *got.Contours[0].ID)
}

func TestAddContoursAssignsIDs(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()
	x, y := tri()

	ids, err := repo.AddContours(ctx, "img-1", []types.ContourNode{
		{X: x, Y: y, Children: []types.ContourNode{{X: x, Y: y}}},
		{X: x, Y: y},
	}, map[int64]string{1: "coral"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	doc, err := repo.FetchHierarchy(ctx, "img-1")
	require.NoError(t, err)
	require.Len(t, doc.Contours, 2)
	child := doc.Contours[0].Children[0]
	assert.Equal(t, int64(3), *child.ID)
	assert.Equal(t, int64(1), *child.ParentID)
	assert.Equal(t, "coral", doc.Labels[1])

	// a new contour under a stored parent is nested there
	more, err := repo.AddContours(ctx, "img-1", []types.ContourNode{{X: x, Y: y, ParentID: types.Int64(2)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, more)

	doc, err = repo.FetchHierarchy(ctx, "img-1")
	require.NoError(t, err)
	require.Len(t, doc.Contours[1].Children, 1)
	assert.Equal(t, int64(4), *doc.Contours[1].Children[0].ID)
}

func TestDeleteContourReparentsChildren(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()
	x, y := tri()

	_, err := repo.AddContours(ctx, "img-1", []types.ContourNode{
		{X: x, Y: y, Children: []types.ContourNode{
			{X: x, Y: y, Children: []types.ContourNode{{X: x, Y: y}}},
		}},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteContour(ctx, "img-1", 2))

	doc, err := repo.FetchHierarchy(ctx, "img-1")
	require.NoError(t, err)
	require.Len(t, doc.Contours, 1)
	require.Len(t, doc.Contours[0].Children, 1)
	grandchild := doc.Contours[0].Children[0]
	assert.Equal(t, int64(3), *grandchild.ID)
	assert.Equal(t, int64(1), *grandchild.ParentID)

	err = repo.DeleteContour(ctx, "img-1", 99)
	assert.ErrorIs(t, err, redis.ErrContourNotFound)

	err = repo.DeleteContour(ctx, "img-2", 1)
	assert.ErrorIs(t, err, client.ErrHierarchyNotFound)
}

func TestTTL(t *testing.T) {
	repo, mr := setup(t, redis.WithTTL(time.Minute))
	ctx := context.Background()
	x, y := tri()

	_, err := repo.AddContours(ctx, "img-1", []types.ContourNode{{X: x, Y: y}}, nil)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = repo.FetchHierarchy(ctx, "img-1")
	assert.ErrorIs(t, err, client.ErrHierarchyNotFound)
}
