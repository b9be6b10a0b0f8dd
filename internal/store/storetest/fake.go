// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/store"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// Store is a concurrency-safe in-memory store.Store. The exported error
// fields, when set, are returned by the matching operations.
type Store struct {
	mu       sync.Mutex
	ideas    map[uuid.UUID]*models.Idea
	keys     map[uuid.UUID]*models.APIKey
	counters map[string]int64
	now      func() time.Time

	PingErr      error
	KeyLookupErr error
	StatusErr    error
	ListErr      error
	WriteErr     error

	mutations     int
	statusLookups int
	usageCh       chan uuid.UUID
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		ideas:    make(map[uuid.UUID]*models.Idea),
		keys:     make(map[uuid.UUID]*models.APIKey),
		counters: make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
		usageCh:  make(chan uuid.UUID, 64),
	}
}

// Mutations returns how many idea writes (create, update, archive) ran.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// UsageRecorded delivers key ids passed to RecordAPIKeyUsage.
func (s *Store) UsageRecorded() <-chan uuid.UUID { return s.usageCh }

// Key returns a copy of the stored key with id.
func (s *Store) Key(id uuid.UUID) (models.APIKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return models.APIKey{}, false
	}
	return *k, true
}

func (s *Store) Ping(_ context.Context) error { return s.PingErr }

func (s *Store) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.KeyLookupErr != nil {
		return nil, s.KeyLookupErr
	}
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

// StatusLookups returns how many times GetAPIKeyStatus ran.
func (s *Store) StatusLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLookups
}

func (s *Store) GetAPIKeyStatus(_ context.Context, id uuid.UUID) (bool, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusLookups++
	if s.StatusErr != nil {
		return false, nil, s.StatusErr
	}
	k, ok := s.keys[id]
	if !ok {
		return false, nil, store.ErrNotFound
	}
	return k.IsActive, k.ExpiresAt, nil
}

func (s *Store) RecordAPIKeyUsage(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if k, ok := s.keys[id]; ok {
		now := s.now()
		k.UsageCount++
		k.LastUsedAt = &now
	}
	s.mu.Unlock()

	select {
	case s.usageCh <- id:
	default:
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *key
	s.keys[key.ID] = &c
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.OwnerID == ownerID {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.OwnerID != ownerID || !k.IsActive {
		return store.ErrNotFound
	}
	k.IsActive = false
	k.UpdatedAt = s.now()
	return nil
}

func (s *Store) CreateIdea(_ context.Context, idea *models.Idea) (*models.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	if _, ok := s.ideas[idea.ID]; ok {
		return nil, store.ErrDuplicateKey
	}
	c := cloneIdea(idea)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	s.ideas[idea.ID] = c
	s.mutations++
	return cloneIdea(c), nil
}

func (s *Store) GetIdea(_ context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.ideas[id]
	if !ok || i.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return cloneIdea(i), nil
}

func (s *Store) ListIdeas(_ context.Context, filter store.IdeaFilter) ([]*models.Idea, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, 0, s.ListErr
	}
	filter = filter.Normalize()

	search := strings.ToLower(filter.Search)
	var matched []*models.Idea
	for _, i := range s.ideas {
		if i.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(i.Title), search) &&
			!strings.Contains(strings.ToLower(i.Description), search) {
			continue
		}
		if filter.Tag != "" && !hasTag(i.Tags, filter.Tag) {
			continue
		}
		matched = append(matched, i)
	}
	sort.Slice(matched, func(a, b int) bool {
		if !matched[a].UpdatedAt.Equal(matched[b].UpdatedAt) {
			return matched[a].UpdatedAt.After(matched[b].UpdatedAt)
		}
		return matched[a].ID.String() < matched[b].ID.String()
	})

	total := len(matched)
	out := []*models.Idea{}
	for i := filter.Offset; i < total && i < filter.Offset+filter.Limit; i++ {
		out = append(out, cloneIdea(matched[i]))
	}
	return out, total, nil
}

func (s *Store) UpdateIdea(_ context.Context, id uuid.UUID, ownerID uuid.UUID, patch models.IdeaPatch) (*models.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	i, ok := s.ideas[id]
	if !ok || i.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if patch.Title != nil {
		i.Title = *patch.Title
	}
	if patch.Description != nil {
		i.Description = *patch.Description
	}
	if patch.Status != nil {
		i.Status = *patch.Status
	}
	if patch.Tags != nil {
		i.Tags = append([]string{}, (*patch.Tags)...)
	}
	if patch.Color != nil {
		i.Color = *patch.Color
	}
	if patch.ClearImageURL {
		i.ImageURL = nil
	} else if patch.ImageURL != nil {
		v := *patch.ImageURL
		i.ImageURL = &v
	}
	i.UpdatedAt = s.tick(i.UpdatedAt)
	s.mutations++
	return cloneIdea(i), nil
}

func (s *Store) ArchiveIdea(_ context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	i, ok := s.ideas[id]
	if !ok || i.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	i.Status = models.StatusArchived
	i.UpdatedAt = s.tick(i.UpdatedAt)
	s.mutations++
	return cloneIdea(i), nil
}

func (s *Store) IncrRateLimitCounter(_ context.Context, keyID uuid.UUID, endpoint string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyID.String() + "|" + endpoint + "|" + windowStart.UTC().Format(time.RFC3339)
	s.counters[k]++
	return s.counters[k], nil
}

func (s *Store) PruneRateLimitCounters(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.counters {
		parts := strings.Split(k, "|")
		ts, err := time.Parse(time.RFC3339, parts[2])
		if err == nil && ts.Before(before) {
			delete(s.counters, k)
			n++
		}
	}
	return n, nil
}

// tick returns a timestamp strictly after prev so updated_at always advances.
func (s *Store) tick(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func cloneIdea(i *models.Idea) *models.Idea {
	c := *i
	if i.Tags != nil {
		c.Tags = append([]string{}, i.Tags...)
	}
	if i.ImageURL != nil {
		v := *i.ImageURL
		c.ImageURL = &v
	}
	return &c
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
