package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

// APIKeyRepository stores hashed API keys.
type APIKeyRepository struct {
	db dbtx
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{db: pool}
}

const selectAPIKey = `SELECT id::text, name, key_hash, roles, created_at, revoked_at, last_used_at FROM api_keys`

func scanAPIKey(row pgx.CollectableRow) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.Roles, &k.CreatedAt, &k.RevokedAt, &k.LastUsedAt)
	return &k, err
}

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	roles := key.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, roles, created_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, roles, key.CreatedAt, key.RevokedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domain.ErrAPIKeyAlreadyExists
	}
	return err
}

// GetByID looks a key up by id. Ids that are not UUIDs are simply not found.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return r.one(ctx, selectAPIKey+` WHERE id::text = $1`, id)
}

func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return r.one(ctx, selectAPIKey+` WHERE key_hash = $1`, hash)
}

func (r *APIKeyRepository) one(ctx context.Context, query string, arg any) (*domain.APIKey, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	key, err := pgx.CollectExactlyOneRow(rows, scanAPIKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key, err
}

// List returns every key, newest first.
func (r *APIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	rows, err := r.db.Query(ctx, selectAPIKey+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAPIKey)
}

// Revoke marks an active key revoked. Unknown and already revoked keys both
// report ErrAPIKeyNotFound.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id::text = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// Touch moves last_used_at forward to at. It never moves it back.
func (r *APIKeyRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2
		 WHERE id::text = $1 AND (last_used_at IS NULL OR last_used_at < $2)`,
		id, at,
	)
	return err
}
