package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
)

// AgentRepository lists the AI agents whose releases flow through the
// gateway. Usually fronted by the Redis agent cache.
type AgentRepository struct {
	pool *pgxpool.Pool
}

func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

// Agents returns every visible agent with its display info and routing tag.
func (r *AgentRepository) Agents(ctx context.Context) ([]enrich.Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ag.name, COALESCE(ag.avatar, ''), t.slug
		FROM ai_agents ag
		JOIN tags t ON t.id = ag.tag_id
		WHERE ag.is_visible
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}

	agents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (enrich.Agent, error) {
		var agent enrich.Agent
		err := row.Scan(&agent.Name, &agent.Avatar, &agent.TagSlug)
		return agent, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan agents: %w", err)
	}
	return agents, nil
}
