package transfer

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const schema = `
	CREATE TABLE IF NOT EXISTS transfer_logs (
		id              UUID PRIMARY KEY,
		from_account    TEXT NOT NULL,
		to_account      TEXT NOT NULL,
		transfer_amount BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)
`

// PostgresRepository stores transfer logs in the transfer_logs table.
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates and tests a new connection pool.
func NewPostgresRepository(ctx context.Context, connString string, baseLogger zerolog.Logger) (*PostgresRepository, error) {
	log := baseLogger.With().Str("component", "transfer_repo").Logger()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse DB connection string")
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create connection pool")
		return nil, err
	}

	// Ping the database to ensure a valid connection
	if err := pool.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to ping database")
		pool.Close()

		return nil, err
	}

	log.Info().Msg("Database connection pool established")

	return &PostgresRepository{pool: pool, log: log}, nil
}

// EnsureSchema creates the transfer_logs table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		r.log.Error().Err(err).Msg("Failed to create transfer_logs table")
		return err
	}

	return nil
}

func (r *PostgresRepository) Add(ctx context.Context, l TransferLog) error {
	query := `
		INSERT INTO transfer_logs (id, from_account, to_account, transfer_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, l.ID, l.FromAccount, l.ToAccount, l.TransferAmount, l.CreatedAt)
	if err != nil {
		r.log.Error().Err(err).Stringer("id", l.ID).Msg("Failed to insert transfer log")
	}

	return err
}

// List returns the logs oldest first.
func (r *PostgresRepository) List(ctx context.Context) ([]TransferLog, error) {
	query := `
		SELECT id, from_account, to_account, transfer_amount, created_at
		FROM transfer_logs
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to query transfer logs")
		return nil, err
	}

	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TransferLog, error) {
		var l TransferLog
		err := row.Scan(&l.ID, &l.FromAccount, &l.ToAccount, &l.TransferAmount, &l.CreatedAt)

		return l, err
	})
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to scan transfer logs")
		return nil, err
	}

	return logs, nil
}

// Close gracefully closes the connection pool.
func (r *PostgresRepository) Close() {
	r.log.Info().Msg("Closing database connection pool")
	r.pool.Close()
}
