package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

// PostgresIntervalRepository implements IntervalRepository for PostgreSQL
type PostgresIntervalRepository struct {
	db *database.DB
}

// NewPostgresIntervalRepository creates a new interval repository
func NewPostgresIntervalRepository(db *database.DB) IntervalRepository {
	return &PostgresIntervalRepository{db: db}
}

// Seed writes the fixed interval enumeration. Safe to call repeatedly:
// existing rows are left untouched.
func (r *PostgresIntervalRepository) Seed(ctx context.Context) error {
	query := `
		INSERT INTO market.interval_code (id, seconds)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, code := range models.IntervalCodes() {
		batch.Queue(query, int16(code), code.Seconds())
	}

	br := r.db.GetPool().SendBatch(ctx, batch)
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			execErr = database.MapError(err)
			break
		}
	}
	if closeErr := br.Close(); execErr == nil && closeErr != nil {
		execErr = fmt.Errorf("failed to close interval seed batch: %w", closeErr)
	}

	return execErr
}

// List retrieves the seeded interval codes in ascending order
func (r *PostgresIntervalRepository) List(ctx context.Context) ([]models.IntervalCode, error) {
	rows, err := r.db.GetPool().Query(ctx, "SELECT id FROM market.interval_code ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list interval codes: %w", err)
	}
	defer rows.Close()

	var codes []models.IntervalCode
	for rows.Next() {
		var code models.IntervalCode
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan interval code: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, rows.Err()
}
