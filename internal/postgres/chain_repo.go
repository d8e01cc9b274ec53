package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
)

// ChainRepository resolves chain/network metadata rows by slug.
type ChainRepository struct {
	pool *pgxpool.Pool
}

func NewChainRepository(pool *pgxpool.Pool) *ChainRepository {
	return &ChainRepository{pool: pool}
}

// ChainsBySlugs loads every chain row matching one of the given slugs.
// Unknown slugs are simply absent from the result.
func (r *ChainRepository) ChainsBySlugs(ctx context.Context, slugs []string) ([]enrich.ChainRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, network_id, name, symbol, slug, COALESCE(logo, '')
		FROM chains
		WHERE slug = ANY($1)
	`, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (enrich.ChainRecord, error) {
		var record enrich.ChainRecord
		err := row.Scan(&record.ID, &record.NetworkID, &record.Name, &record.Symbol, &record.Slug, &record.Logo)
		return record, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan chains: %w", err)
	}
	return records, nil
}
