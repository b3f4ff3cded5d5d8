package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/models"
)

const errScanInstrument = "failed to scan instrument: %w"

const instrumentColumns = "id, description, uic, asset_type, symbol, currency, exchange"

// PostgresInstrumentRepository implements InstrumentRepository for PostgreSQL
type PostgresInstrumentRepository struct {
	db *database.DB
}

// NewPostgresInstrumentRepository creates a new instrument repository
func NewPostgresInstrumentRepository(db *database.DB) InstrumentRepository {
	return &PostgresInstrumentRepository{db: db}
}

// UpsertBatch inserts instruments, silently skipping rows whose (uic,
// asset_type) key already exists. Returns the number of rows actually
// inserted; the stored row is never updated on conflict.
func (r *PostgresInstrumentRepository) UpsertBatch(ctx context.Context, tx pgx.Tx, instruments []*models.Instrument) (int64, error) {
	if len(instruments) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO market.instrument (description, uic, asset_type, symbol, currency, exchange)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uic, asset_type) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, instr := range instruments {
		batch.Queue(query,
			instr.Description, instr.UIC, string(instr.AssetType),
			instr.Symbol, instr.Currency, instr.Exchange,
		)
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
		execErr = fmt.Errorf("failed to close instrument batch: %w", closeErr)
	}
	if execErr != nil {
		return 0, execErr
	}

	return inserted, nil
}

// GetByID retrieves an instrument by its generated id
func (r *PostgresInstrumentRepository) GetByID(ctx context.Context, id int64) (*models.Instrument, error) {
	query := "SELECT " + instrumentColumns + " FROM market.instrument WHERE id = $1"

	instr := &models.Instrument{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&instr.ID, &instr.Description, &instr.UIC, &instr.AssetType,
		&instr.Symbol, &instr.Currency, &instr.Exchange,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}

	return instr, nil
}

// GetByKey retrieves an instrument by its natural (uic, asset_type) key
func (r *PostgresInstrumentRepository) GetByKey(ctx context.Context, uic int64, assetType models.AssetType) (*models.Instrument, error) {
	query := "SELECT " + instrumentColumns + " FROM market.instrument WHERE uic = $1 AND asset_type = $2"

	instr := &models.Instrument{}
	err := r.db.GetPool().QueryRow(ctx, query, uic, string(assetType)).Scan(
		&instr.ID, &instr.Description, &instr.UIC, &instr.AssetType,
		&instr.Symbol, &instr.Currency, &instr.Exchange,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument by key: %w", err)
	}

	return instr, nil
}

// Search retrieves instruments whose symbol or description matches the keyword
func (r *PostgresInstrumentRepository) Search(ctx context.Context, keyword string, limit int) ([]*models.Instrument, error) {
	query := `
		SELECT ` + instrumentColumns + `
		FROM market.instrument
		WHERE symbol ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY symbol ASC
		LIMIT $2
	`

	rows, err := r.db.GetPool().Query(ctx, query, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search instruments: %w", err)
	}
	defer rows.Close()

	return scanInstruments(rows)
}

// List retrieves all instruments ordered by symbol
func (r *PostgresInstrumentRepository) List(ctx context.Context) ([]*models.Instrument, error) {
	query := "SELECT " + instrumentColumns + " FROM market.instrument ORDER BY symbol ASC"

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	return scanInstruments(rows)
}

// DeleteByKeys deletes instruments matching the given (uic, asset_type) pairs.
// Price rows cascade; instruments referenced by analyses make the whole call
// fail with a ReferenceError.
func (r *PostgresInstrumentRepository) DeleteByKeys(ctx context.Context, keys []models.InstrumentKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	uics := make([]int64, len(keys))
	assetTypes := make([]string, len(keys))
	for i, k := range keys {
		uics[i] = k.UIC
		assetTypes[i] = string(k.AssetType)
	}

	query := `
		DELETE FROM market.instrument
		WHERE (uic, asset_type) IN (
			SELECT u, a FROM unnest($1::bigint[], $2::text[]) AS t(u, a)
		)
	`

	tag, err := r.db.GetPool().Exec(ctx, query, uics, assetTypes)
	if err != nil {
		return 0, database.MapError(err)
	}

	return tag.RowsAffected(), nil
}

// Exists reports whether an instrument row with the given id exists
func (r *PostgresInstrumentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.db.GetPool().QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM market.instrument WHERE id = $1)", id,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check instrument existence: %w", err)
	}
	return found, nil
}

func scanInstruments(rows pgx.Rows) ([]*models.Instrument, error) {
	var instruments []*models.Instrument
	for rows.Next() {
		instr := &models.Instrument{}
		err := rows.Scan(
			&instr.ID, &instr.Description, &instr.UIC, &instr.AssetType,
			&instr.Symbol, &instr.Currency, &instr.Exchange,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanInstrument, err)
		}
		instruments = append(instruments, instr)
	}

	return instruments, rows.Err()
}
