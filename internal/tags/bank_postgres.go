package tags

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// PostgresBank reads available tags from the question_bank table.
type PostgresBank struct {
	pool *pgxpool.Pool
}

// NewPostgresBank creates a PostgreSQL-backed tag bank.
func NewPostgresBank(pool *pgxpool.Pool) (*PostgresBank, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresBank{pool: pool}, nil
}

// AvailableTags returns the stored tags for facetID, or none if the facet
// has no row.
func (b *PostgresBank) AvailableTags(ctx context.Context, facetID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var available []string
	err := b.pool.QueryRow(ctx,
		`SELECT available_tags FROM question_bank WHERE facet = $1`,
		facetID,
	).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query question bank: %w", err)
	}
	return available, nil
}

// PutTags replaces the tags stored for facetID.
func (b *PostgresBank) PutTags(ctx context.Context, facetID string, available []string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := b.pool.Exec(ctx,
		`INSERT INTO question_bank (facet, available_tags) VALUES ($1, $2)
		 ON CONFLICT (facet) DO UPDATE SET available_tags = EXCLUDED.available_tags`,
		facetID,
		available,
	)
	if err != nil {
		return fmt.Errorf("upsert question bank: %w", err)
	}
	return nil
}
