package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/AIGun-Labs/aigun-backend/internal/errors"
)

// SubscriptionRepository resolves subscription-set ids to their tag lists.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// GetTags returns the tags of the subscription set with the given id. An
// unknown id yields a not-found error so callers can distinguish it from
// an infrastructure failure.
func (r *SubscriptionRepository) GetTags(ctx context.Context, subID uuid.UUID) ([]string, error) {
	var tags []string
	err := r.pool.QueryRow(ctx, `
		SELECT tags
		FROM subscription_sets
		WHERE id = $1
	`, subID).Scan(&tags)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundError(fmt.Sprintf("subscription set %s does not exist", subID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription set %s: %w", subID, err)
	}
	return tags, nil
}
