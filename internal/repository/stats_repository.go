package repository

import (
	"context"
	"fmt"

	"github.com/Polymerase3/elpis-v2/internal/database"
)

// PostgresStatsRepository implements StatsRepository for PostgreSQL
type PostgresStatsRepository struct {
	db *database.DB
}

// NewPostgresStatsRepository creates a new stats repository
func NewPostgresStatsRepository(db *database.DB) StatsRepository {
	return &PostgresStatsRepository{db: db}
}

// HypertableSizes reports the on-disk footprint of every hypertable
func (r *PostgresStatsRepository) HypertableSizes(ctx context.Context) ([]*HypertableSize, error) {
	query := `
		SELECT hypertable_schema, hypertable_name,
		       hypertable_size(format('%I.%I', hypertable_schema, hypertable_name)::regclass)
		FROM timescaledb_information.hypertables
		ORDER BY hypertable_schema, hypertable_name
	`

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hypertable sizes: %w", err)
	}
	defer rows.Close()

	var sizes []*HypertableSize
	for rows.Next() {
		size := &HypertableSize{}
		if err := rows.Scan(&size.Schema, &size.Name, &size.TotalBytes); err != nil {
			return nil, fmt.Errorf("failed to scan hypertable size: %w", err)
		}
		sizes = append(sizes, size)
	}

	return sizes, rows.Err()
}

// RowCounts reports estimated live row counts for the market schema tables
func (r *PostgresStatsRepository) RowCounts(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT relname, n_live_tup
		FROM pg_stat_user_tables
		WHERE schemaname = 'market'
	`

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query row counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row count: %w", err)
		}
		counts[name] = count
	}

	return counts, rows.Err()
}
