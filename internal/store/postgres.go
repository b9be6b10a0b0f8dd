package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, owner_id, name, key_hash, key_prefix, permissions, rate_limit_per_hour,
	is_active, expires_at, usage_count, last_used_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OwnerID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Permissions,
			&k.RateLimitPerHour, &k.IsActive, &k.ExpiresAt, &k.UsageCount, &k.LastUsedAt,
			&k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// GetAPIKeysByPrefix returns every key sharing the lookup prefix, including
// inactive and expired ones; validity is decided by the caller.
func (s *PostgresStore) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api keys by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

// GetAPIKeyStatus reads only the columns that can change after a key is issued.
func (s *PostgresStore) GetAPIKeyStatus(ctx context.Context, id uuid.UUID) (bool, *time.Time, error) {
	var (
		active    bool
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT is_active, expires_at FROM api_keys WHERE id = $1`, id).Scan(&active, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, ErrNotFound
	}
	if err != nil {
		return false, nil, fmt.Errorf("get api key status: %w", err)
	}
	return active, expiresAt, nil
}

func (s *PostgresStore) RecordAPIKeyUsage(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, owner_id, name, key_hash, key_prefix, permissions, rate_limit_per_hour,
		                       is_active, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		key.ID, key.OwnerID, key.Name, key.KeyHash, key.KeyPrefix, key.Permissions, key.RateLimitPerHour,
		key.IsActive, key.ExpiresAt, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

// RevokeAPIKey deactivates a key. The row is kept for auditing usage.
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND is_active`, id, ownerID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Ideas ---

const ideaColumns = `id, owner_id, title, description, status, tags, color, image_url, created_at, updated_at`

func scanIdea(row pgx.Row) (*models.Idea, error) {
	var i models.Idea
	if err := row.Scan(&i.ID, &i.OwnerID, &i.Title, &i.Description, &i.Status, &i.Tags,
		&i.Color, &i.ImageURL, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	if i.Tags == nil {
		i.Tags = []string{}
	}
	return &i, nil
}

func (s *PostgresStore) CreateIdea(ctx context.Context, idea *models.Idea) (*models.Idea, error) {
	tags := idea.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO ideas (id, owner_id, title, description, status, tags, color, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+ideaColumns,
		idea.ID, idea.OwnerID, idea.Title, idea.Description, idea.Status, tags, idea.Color,
		idea.ImageURL, idea.CreatedAt, idea.UpdatedAt)
	created, err := scanIdea(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create idea: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Idea, error) {
	idea, err := scanIdea(s.pool.QueryRow(ctx,
		`SELECT `+ideaColumns+` FROM ideas WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idea: %w", err)
	}
	return idea, nil
}

// ListIdeas returns one page of ideas plus the total number of matches.
func (s *PostgresStore) ListIdeas(ctx context.Context, filter IdeaFilter) ([]*models.Idea, int, error) {
	filter = filter.Normalize()

	conditions := []string{"owner_id = $1"}
	args := []any{filter.OwnerID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Search != "" {
		conditions = append(conditions,
			fmt.Sprintf(`(title ILIKE $%d ESCAPE '\' OR description ILIKE $%d ESCAPE '\')`, argIdx, argIdx))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIdx++
	}
	if filter.Tag != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", argIdx))
		args = append(args, filter.Tag)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	// Count and page run in one read-only transaction so count matches the page.
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, 0, fmt.Errorf("begin list ideas: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM ideas WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ideas: %w", err)
	}

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM ideas WHERE %s ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`,
		ideaColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := tx.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	ideas := []*models.Idea{}
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list ideas: %w", err)
	}
	return ideas, total, nil
}

func (s *PostgresStore) UpdateIdea(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, patch models.IdeaPatch) (*models.Idea, error) {
	query := `UPDATE ideas SET updated_at = NOW()`
	args := []any{id, ownerID}
	argIdx := 3

	set := func(column string, value any) {
		query += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		set("tags", tags)
	}
	if patch.Color != nil {
		set("color", *patch.Color)
	}
	if patch.ClearImageURL {
		query += ", image_url = NULL"
	} else if patch.ImageURL != nil {
		set("image_url", *patch.ImageURL)
	}

	query += " WHERE id = $1 AND owner_id = $2 RETURNING " + ideaColumns

	idea, err := scanIdea(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update idea: %w", err)
	}
	return idea, nil
}

// ArchiveIdea is the logical delete: the row stays, its status becomes archived.
func (s *PostgresStore) ArchiveIdea(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Idea, error) {
	idea, err := scanIdea(s.pool.QueryRow(ctx,
		`UPDATE ideas SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+ideaColumns, id, ownerID, models.StatusArchived))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive idea: %w", err)
	}
	return idea, nil
}

// --- Rate limit counters ---

// IncrRateLimitCounter atomically adds one to the counter for the window and
// returns the new value.
func (s *PostgresStore) IncrRateLimitCounter(ctx context.Context, keyID uuid.UUID, endpoint string, windowStart time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rate_limit_counters (key_id, endpoint, window_start, count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (key_id, endpoint, window_start) DO UPDATE SET
		   count = rate_limit_counters.count + 1
		 RETURNING count`,
		keyID, endpoint, windowStart.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) PruneRateLimitCounters(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rate_limit_counters WHERE window_start < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune rate limit counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// escapeLike escapes LIKE wildcards so search text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
