package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FollowRepository persists which agents a user follows. Guests share the
// same code path; their generated principals simply never collide with
// real user ids.
type FollowRepository struct {
	pool *pgxpool.Pool
}

func NewFollowRepository(pool *pgxpool.Pool) *FollowRepository {
	return &FollowRepository{pool: pool}
}

// Follow records that principal follows agentID. Re-following is a no-op.
func (r *FollowRepository) Follow(ctx context.Context, principal, agentID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agent_followers (user_id, agent_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, agent_id) DO NOTHING
	`, principal, agentID)
	if err != nil {
		return fmt.Errorf("failed to follow agent %s: %w", agentID, err)
	}
	return nil
}

// Unfollow removes the follow edge. Unfollowing an agent that was never
// followed is a no-op.
func (r *FollowRepository) Unfollow(ctx context.Context, principal, agentID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM agent_followers
		WHERE user_id = $1 AND agent_id = $2
	`, principal, agentID)
	if err != nil {
		return fmt.Errorf("failed to unfollow agent %s: %w", agentID, err)
	}
	return nil
}
