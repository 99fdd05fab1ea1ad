package formstate

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"marketplace-pricing/decision/marketplace"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore keeps forms in the form_state table.
type PostgresStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

type formRow struct {
	Key       string         `db:"key"`
	Fields    types.JSONText `db:"fields"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// NewPostgres connects with retries and applies the embedded migrations.
func NewPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	logger = logger.With().Str("component", "formstate.postgres").Logger()

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = time.Minute
	retryPolicy.MaxInterval = 10 * time.Second

	var db *sqlx.DB
	err := backoff.RetryNotify(
		func() error {
			conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			db = conn
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, wait time.Duration) {
			logger.Warn().Err(err).Dur("next_attempt_in", wait).Msg("PostgreSQL connection failed, retrying")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to connect after retries: %w", err)
	}

	if err := migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Msg("Connected to PostgreSQL")
	return &PostgresStore{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, k marketplace.Kind, form marketplace.Form) error {
	data, err := json.Marshal(clean(k, form))
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}

	const q = `
		INSERT INTO form_state (key, fields, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, Key(k), types.JSONText(data)); err != nil {
		return fmt.Errorf("save %s: %w", Key(k), err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, k marketplace.Kind) (marketplace.Form, error) {
	var row formRow
	err := s.db.GetContext(ctx, &row, `SELECT key, fields, updated_at FROM form_state WHERE key = $1`, Key(k))
	if errors.Is(err, sql.ErrNoRows) {
		return marketplace.Form{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", Key(k), err)
	}

	var form marketplace.Form
	if err := row.Fields.Unmarshal(&form); err != nil {
		s.logger.Warn().Err(err).Str("key", row.Key).Msg("Discarding unreadable form state")
		return marketplace.Form{}, nil
	}
	return clean(k, form), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
