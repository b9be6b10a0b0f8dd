package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/cache"
	"github.com/kiranshivaraju/ideahub/internal/store"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// ErrKeyNotFound means no stored key matches the raw key.
var ErrKeyNotFound = errors.New("api key not found")

// Authenticator resolves raw API keys against the store.
type Authenticator struct {
	store    store.Store
	cache    cache.Cache
	prefix   string
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithCache caches resolved key records for ttl. A nil cache or a zero ttl
// disables caching.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Authenticator) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithClock replaces the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator creates an Authenticator for keys carrying formatPrefix.
func NewAuthenticator(s store.Store, formatPrefix string, opts ...Option) *Authenticator {
	a := &Authenticator{store: s, prefix: formatPrefix, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prefix returns the literal every valid raw key starts with.
func (a *Authenticator) Prefix() string { return a.prefix }

// Validate resolves raw to a KeyRecord. It returns ErrKeyNotFound when
// nothing matches; any other error comes from the store. A matched but
// inactive or expired key is returned with IsValid false.
//
// A cache hit skips the bcrypt comparison only. Activity and expiry are
// always read from the store so a revoked key stops working immediately.
func (a *Authenticator) Validate(ctx context.Context, raw string) (*models.KeyRecord, error) {
	lookup := LookupPrefix(a.prefix, raw)
	if lookup == "" {
		return nil, ErrKeyNotFound
	}

	if rec, ok := a.cached(ctx, raw); ok {
		active, expiresAt, err := a.store.GetAPIKeyStatus(ctx, rec.KeyID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrKeyNotFound
		case err != nil:
			return nil, fmt.Errorf("check api key status: %w", err)
		}
		rec.IsActive = active
		rec.ExpiresAt = expiresAt
		rec.IsValid = rec.ValidAt(a.now())
		return rec, nil
	}

	keys, err := a.store.GetAPIKeysByPrefix(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	for _, key := range keys {
		if !CompareKey(key.KeyHash, raw) {
			continue
		}
		rec := &models.KeyRecord{
			KeyID:            key.ID,
			OwnerID:          key.OwnerID,
			Permissions:      key.Permissions,
			RateLimitPerHour: key.RateLimitPerHour,
			IsActive:         key.IsActive,
			ExpiresAt:        key.ExpiresAt,
		}
		rec.IsValid = rec.ValidAt(a.now())
		a.remember(ctx, raw, rec)
		return rec, nil
	}

	return nil, ErrKeyNotFound
}

// RecordUsage bumps the key's usage counter and last-used time.
func (a *Authenticator) RecordUsage(ctx context.Context, keyID uuid.UUID) error {
	return a.store.RecordAPIKeyUsage(ctx, keyID)
}

func (a *Authenticator) cached(ctx context.Context, raw string) (*models.KeyRecord, bool) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return nil, false
	}
	b, found, err := a.cache.Get(ctx, cache.APIKeyLookupKey(Digest(raw)))
	if err != nil {
		slog.Warn("api key cache read failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var rec models.KeyRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (a *Authenticator) remember(ctx context.Context, raw string, rec *models.KeyRecord) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, cache.APIKeyLookupKey(Digest(raw)), b, a.cacheTTL); err != nil {
		slog.Warn("api key cache write failed", "error", err)
	}
}
