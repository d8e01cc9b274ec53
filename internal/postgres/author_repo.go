package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
)

// AuthorRepository resolves the monitored account behind an intelligence
// item.
type AuthorRepository struct {
	pool *pgxpool.Pool
}

func NewAuthorRepository(pool *pgxpool.Pool) *AuthorRepository {
	return &AuthorRepository{pool: pool}
}

// AuthorForIntelligence returns the author account for the given
// intelligence id, or nil when the item carries no author entity.
func (r *AuthorRepository) AuthorForIntelligence(ctx context.Context, intelligenceID string) (*enrich.AuthorRecord, error) {
	var record enrich.AuthorRecord
	err := r.pool.QueryRow(ctx, `
		SELECT a.account_id, a.screen_name, a.name, COALESCE(a.avatar, ''), COALESCE(a.master_type, '')
		FROM intelligences i
		JOIN accounts a ON a.account_id = i.account_id
		WHERE i.id = $1
	`, intelligenceID).Scan(
		&record.AccountID, &record.ScreenName, &record.Name, &record.Avatar, &record.MasterType,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load author for intelligence %s: %w", intelligenceID, err)
	}
	return &record, nil
}
