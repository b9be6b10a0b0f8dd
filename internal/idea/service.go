// Package idea holds the rules for idea records: payload validation, content
// sanitization and the owner-scoped operations the HTTP layer calls.
package idea

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/store"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// ValidationError lists every rule a payload violated.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// Service implements the idea operations on top of a store.Store.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a Service backed by s.
func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// List returns one page of the owner's ideas and the total number of matches.
func (s *Service) List(ctx context.Context, filter store.IdeaFilter) ([]*models.Idea, int, error) {
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		return nil, 0, &ValidationError{Details: []string{
			fmt.Sprintf("status must be one of: %s", strings.Join(models.Statuses, ", ")),
		}}
	}
	filter = filter.Normalize()

	ideas, total, err := s.store.ListIdeas(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list ideas: %w", err)
	}
	return ideas, total, nil
}

// Get returns one idea. Ideas owned by someone else are reported as
// store.ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Idea, error) {
	i, err := s.store.GetIdea(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get idea: %w", err)
	}
	return i, nil
}

// Create validates and sanitizes payload and inserts it as a new idea owned
// by ownerID. Any owner_id in the payload is ignored.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, payload map[string]any) (*models.Idea, error) {
	if errs := Validate(payload); len(errs) > 0 {
		return nil, &ValidationError{Details: errs}
	}

	title, err := sanitizeTitle(payload["title"].(string))
	if err != nil {
		return nil, err
	}
	description, err := Sanitize(stringField(payload, "description"))
	if err != nil {
		return nil, fmt.Errorf("sanitize description: %w", err)
	}

	now := s.now().UTC()
	i := &models.Idea{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      models.StatusIdea,
		Tags:        []string{},
		Color:       models.DefaultColor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if v, ok := payload["status"].(string); ok {
		i.Status = v
	}
	if v, ok := payload["tags"]; ok {
		i.Tags = toStrings(v)
	}
	if v, ok := payload["color"].(string); ok {
		i.Color = v
	}
	if v, ok := payload["image_url"].(string); ok {
		i.ImageURL = &v
	}

	created, err := s.store.CreateIdea(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("create idea: %w", err)
	}
	return created, nil
}

// Update applies the fields present in payload to the owner's idea. An empty
// payload only refreshes updated_at.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, payload map[string]any) (*models.Idea, error) {
	if errs := ValidatePatch(payload); len(errs) > 0 {
		return nil, &ValidationError{Details: errs}
	}

	var patch models.IdeaPatch
	if v, ok := payload["title"].(string); ok {
		title, err := sanitizeTitle(v)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if v, ok := payload["description"]; ok {
		raw, _ := v.(string)
		description, err := Sanitize(raw)
		if err != nil {
			return nil, fmt.Errorf("sanitize description: %w", err)
		}
		patch.Description = &description
	}
	if v, ok := payload["status"].(string); ok {
		patch.Status = &v
	}
	if v, ok := payload["tags"]; ok {
		tags := toStrings(v)
		patch.Tags = &tags
	}
	if v, ok := payload["color"].(string); ok {
		patch.Color = &v
	}
	if v, ok := payload["image_url"]; ok {
		if url, isStr := v.(string); isStr {
			patch.ImageURL = &url
		} else {
			patch.ClearImageURL = true
		}
	}

	updated, err := s.store.UpdateIdea(ctx, id, ownerID, patch)
	if err != nil {
		return nil, fmt.Errorf("update idea: %w", err)
	}
	return updated, nil
}

// Archive marks the owner's idea as archived and returns it.
func (s *Service) Archive(ctx context.Context, ownerID, id uuid.UUID) (*models.Idea, error) {
	archived, err := s.store.ArchiveIdea(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("archive idea: %w", err)
	}
	return archived, nil
}

// sanitizeTitle rejects titles that sanitize down to nothing.
func sanitizeTitle(raw string) (string, error) {
	title, err := Sanitize(raw)
	if err != nil {
		return "", fmt.Errorf("sanitize title: %w", err)
	}
	if title == "" {
		return "", &ValidationError{Details: []string{"title must not be empty"}}
	}
	return title, nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func toStrings(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		out = append(out, el.(string))
	}
	return out
}
