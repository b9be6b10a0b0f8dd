package idea_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/idea"
	"github.com/kiranshivaraju/ideahub/internal/store"
	"github.com/kiranshivaraju/ideahub/internal/store/storetest"
	"github.com/kiranshivaraju/ideahub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() (*idea.Service, *storetest.Store) {
	s := storetest.New()
	return idea.NewService(s), s
}

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newService()
	owner := uuid.New()

	got, err := svc.Create(context.Background(), owner, map[string]any{"title": "T"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, owner, got.OwnerID)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "", got.Description)
	assert.Equal(t, models.StatusIdea, got.Status)
	assert.Equal(t, models.DefaultColor, got.Color)
	assert.Equal(t, []string{}, got.Tags)
	assert.Nil(t, got.ImageURL)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestCreate_SanitizesAndForcesOwner(t *testing.T) {
	svc, _ := newService()
	owner := uuid.New()

	got, err := svc.Create(context.Background(), owner, map[string]any{
		"title":       "  Hi <script>alert(1)</script>there ",
		"description": `<iframe>link</iframe> javascript:void(0)`,
		"owner_id":    uuid.New().String(),
		"tags":        []any{"a", "b"},
		"color":       "#112233",
		"image_url":   "https://example.com/x.png",
		"status":      "progress",
	})
	require.NoError(t, err)

	assert.Equal(t, owner, got.OwnerID)
	assert.Equal(t, "Hi there", got.Title)
	assert.Equal(t, "link void(0)", got.Description)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, "#112233", got.Color)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, "https://example.com/x.png", *got.ImageURL)
	assert.Equal(t, models.StatusProgress, got.Status)
}

func TestCreate_InvalidNeverReachesStore(t *testing.T) {
	svc, s := newService()

	for _, payload := range []map[string]any{
		{},
		{"title": "   "},
		{"title": "Test", "status": "bogus"},
		{"title": "<script>only</script>"},
	} {
		_, err := svc.Create(context.Background(), uuid.New(), payload)
		var verr *idea.ValidationError
		require.ErrorAs(t, err, &verr, payload)
		assert.NotEmpty(t, verr.Details)
	}
	assert.Zero(t, s.Mutations())
}

func TestCreate_StatusDetail(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), uuid.New(), map[string]any{"title": "Test", "status": "bogus"})

	var verr *idea.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"status must be one of: idea, research, progress, launched, archived"}, verr.Details)
}

func TestCreate_StoreError(t *testing.T) {
	svc, s := newService()
	s.WriteErr = errors.New("connection reset")

	_, err := svc.Create(context.Background(), uuid.New(), map[string]any{"title": "T"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create idea")
}

func TestGet_OtherOwnerIsNotFound(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.Create(ctx, owner, map[string]any{"title": "Mine"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Get(ctx, uuid.New(), created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdate_Partial(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.Create(ctx, owner, map[string]any{
		"title":     "Original",
		"tags":      []any{"x"},
		"image_url": "https://example.com/a.png",
	})
	require.NoError(t, err)

	got, err := svc.Update(ctx, owner, created.ID, map[string]any{
		"status":    "launched",
		"title":     " New <button>title</button> ",
		"image_url": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "New title", got.Title)
	assert.Equal(t, models.StatusLaunched, got.Status)
	assert.Equal(t, []string{"x"}, got.Tags, "absent fields untouched")
	assert.Nil(t, got.ImageURL)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdate_EmptyPatchTouchesUpdatedAt(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.Create(ctx, owner, map[string]any{"title": "Same"})
	require.NoError(t, err)

	got, err := svc.Update(ctx, owner, created.ID, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Same", got.Title)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdate_Invalid(t *testing.T) {
	svc, s := newService()
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.Create(ctx, owner, map[string]any{"title": "T"})
	require.NoError(t, err)
	before := s.Mutations()

	_, err = svc.Update(ctx, owner, created.ID, map[string]any{"color": "#12345"})
	var verr *idea.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before, s.Mutations())
}

func TestUpdate_OtherOwnerIsNotFound(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, uuid.New(), map[string]any{"title": "T"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, uuid.New(), created.ID, map[string]any{"title": "Hijack"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestArchive_ThenGetReturnsArchived(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.Create(ctx, owner, map[string]any{"title": "T"})
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)

	got, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, got.Status)

	_, err = svc.Archive(ctx, uuid.New(), created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestList_FiltersAndCounts(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	for _, title := range []string{"alpha", "beta", "gamma"} {
		_, err := svc.Create(ctx, owner, map[string]any{"title": title})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, owner, map[string]any{"title": "delta", "status": "research"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, uuid.New(), map[string]any{"title": "other owner"})
	require.NoError(t, err)

	ideas, total, err := svc.List(ctx, store.IdeaFilter{OwnerID: owner, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, ideas, 2)
	assert.Equal(t, 4, total)

	ideas, total, err = svc.List(ctx, store.IdeaFilter{OwnerID: owner, Status: "research"})
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "delta", ideas[0].Title)
	assert.Equal(t, 1, total)
}

func TestList_InvalidStatus(t *testing.T) {
	svc, _ := newService()
	_, _, err := svc.List(context.Background(), store.IdeaFilter{OwnerID: uuid.New(), Status: "nope"})
	var verr *idea.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestList_StoreError(t *testing.T) {
	svc, s := newService()
	s.ListErr = errors.New("timeout")
	_, _, err := svc.List(context.Background(), store.IdeaFilter{OwnerID: uuid.New()})
	assert.Error(t, err)
}
