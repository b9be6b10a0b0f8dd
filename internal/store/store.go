package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Every idea operation is scoped by owner.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	GetAPIKeyStatus(ctx context.Context, id uuid.UUID) (active bool, expiresAt *time.Time, err error)
	RecordAPIKeyUsage(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error

	CreateIdea(ctx context.Context, idea *models.Idea) (*models.Idea, error)
	GetIdea(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Idea, error)
	ListIdeas(ctx context.Context, filter IdeaFilter) ([]*models.Idea, int, error)
	UpdateIdea(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, patch models.IdeaPatch) (*models.Idea, error)
	ArchiveIdea(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Idea, error)

	IncrRateLimitCounter(ctx context.Context, keyID uuid.UUID, endpoint string, windowStart time.Time) (int64, error)
	PruneRateLimitCounters(ctx context.Context, before time.Time) (int64, error)
}

// IdeaFilter selects a page of one owner's ideas, newest update first.
type IdeaFilter struct {
	OwnerID uuid.UUID
	Status  string
	Search  string
	Tag     string
	Limit   int
	Offset  int
}

// Pagination bounds for ListIdeas.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Normalize clamps Limit to [1, MaxLimit] and Offset to >= 0.
// A zero Limit becomes DefaultLimit.
func (f IdeaFilter) Normalize() IdeaFilter {
	switch {
	case f.Limit == 0:
		f.Limit = DefaultLimit
	case f.Limit < 1:
		f.Limit = 1
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
