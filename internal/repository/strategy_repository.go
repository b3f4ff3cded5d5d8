package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

const errScanStrategy = "failed to scan strategy: %w"

// PostgresStrategyRepository implements StrategyRepository for PostgreSQL
type PostgresStrategyRepository struct {
	db *database.DB
}

// NewPostgresStrategyRepository creates a new strategy repository
func NewPostgresStrategyRepository(db *database.DB) StrategyRepository {
	return &PostgresStrategyRepository{db: db}
}

// InsertBatch inserts strategies, silently skipping rows whose name already
// exists. Returns the number of rows actually inserted.
func (r *PostgresStrategyRepository) InsertBatch(ctx context.Context, tx pgx.Tx, strategies []*models.Strategy) (int64, error) {
	if len(strategies) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO market.strategy (name, description, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, strat := range strategies {
		batch.Queue(query, strat.Name, strat.Description, string(strat.Type))
	}

	var inserted int64
	br := tx.SendBatch(ctx, batch)
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			execErr = tagRecord(database.MapError(err), i)
			break
		}
		inserted += tag.RowsAffected()
	}
	if closeErr := br.Close(); execErr == nil && closeErr != nil {
		execErr = fmt.Errorf("failed to close strategy batch: %w", closeErr)
	}
	if execErr != nil {
		return 0, execErr
	}

	return inserted, nil
}

// GetByID retrieves a strategy by its generated id
func (r *PostgresStrategyRepository) GetByID(ctx context.Context, id int64) (*models.Strategy, error) {
	query := "SELECT id, name, description, type FROM market.strategy WHERE id = $1"

	strat := &models.Strategy{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&strat.ID, &strat.Name, &strat.Description, &strat.Type,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	return strat, nil
}

// GetByName retrieves a strategy by its unique name
func (r *PostgresStrategyRepository) GetByName(ctx context.Context, name string) (*models.Strategy, error) {
	query := "SELECT id, name, description, type FROM market.strategy WHERE name = $1"

	strat := &models.Strategy{}
	err := r.db.GetPool().QueryRow(ctx, query, name).Scan(
		&strat.ID, &strat.Name, &strat.Description, &strat.Type,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy by name: %w", err)
	}

	return strat, nil
}

// List retrieves all strategies ordered by name
func (r *PostgresStrategyRepository) List(ctx context.Context) ([]*models.Strategy, error) {
	query := "SELECT id, name, description, type FROM market.strategy ORDER BY name ASC"

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	var strategies []*models.Strategy
	for rows.Next() {
		strat := &models.Strategy{}
		err := rows.Scan(&strat.ID, &strat.Name, &strat.Description, &strat.Type)
		if err != nil {
			return nil, fmt.Errorf(errScanStrategy, err)
		}
		strategies = append(strategies, strat)
	}

	return strategies, rows.Err()
}

// Exists reports whether a strategy row with the given id exists
func (r *PostgresStrategyRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.db.GetPool().QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM market.strategy WHERE id = $1)", id,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check strategy existence: %w", err)
	}
	return found, nil
}
