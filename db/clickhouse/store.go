// Package clickhouse stores versioned marketplace fee schedules in ClickHouse.
// A schedule is an immutable bracket table identified by the hash of its
// rows; one schedule per marketplace is active at a time.
package clickhouse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace-pricing/decision/brackets"
)

// ErrScheduleNotFound is returned when a schedule id is unknown.
var ErrScheduleNotFound = errors.New("fee schedule not found")

// Schedule is one imported version of a marketplace bracket table.
type Schedule struct {
	ID           uuid.UUID `ch:"id" json:"id"`
	Marketplace  string    `ch:"marketplace" json:"marketplace"`
	Source       string    `ch:"source" json:"source"`
	Hash         string    `ch:"hash" json:"hash"`
	BracketCount uint16    `ch:"bracket_count" json:"bracket_count"`
	IsActive     bool      `ch:"is_active" json:"is_active"`
	CreatedAt    time.Time `ch:"created_at" json:"created_at"`
}

// BracketRow is a stored bracket of a schedule.
type BracketRow struct {
	ScheduleID     uuid.UUID        `ch:"schedule_id"`
	Position       uint16           `ch:"position"`
	MinPrice       decimal.Decimal  `ch:"min_price"`
	MaxPrice       *decimal.Decimal `ch:"max_price"`
	CommissionRate decimal.Decimal  `ch:"commission_rate"`
	FixedFee       decimal.Decimal  `ch:"fixed_fee"`
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "precifica",
		Username: "default",
	}
}

// Store implements schedule persistence using ClickHouse
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore opens a connection. It does not contact the server; call Ping.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fee_schedules (
		id            UUID,
		marketplace   LowCardinality(String),
		source        String,
		hash          String,
		bracket_count UInt16,
		is_active     UInt8,
		created_at    DateTime64(3),
		_version      UInt64 DEFAULT 1,
		_deleted      UInt8 DEFAULT 0
	) ENGINE = ReplacingMergeTree(_version)
	ORDER BY (marketplace, id)`,

	`CREATE TABLE IF NOT EXISTS fee_schedule_brackets (
		schedule_id     UUID,
		position        UInt16,
		min_price       Decimal(18, 4),
		max_price       Nullable(Decimal(18, 4)),
		commission_rate Decimal(9, 6),
		fixed_fee       Decimal(18, 4),
		created_at      DateTime64(3) DEFAULT now64(3)
	) ENGINE = MergeTree
	ORDER BY (schedule_id, position)`,
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// SCHEDULE OPERATIONS
// =============================================================================

const scheduleColumns = `id, marketplace, source, hash, bracket_count, is_active, created_at`

// ImportSchedule stores table for marketplace unless an identical schedule
// already exists, in which case the existing one is returned with created
// set to false.
func (s *Store) ImportSchedule(ctx context.Context, marketplace, source string, table *brackets.Table) (sch *Schedule, created bool, err error) {
	rows := table.Brackets()
	hash := HashBrackets(rows)

	existing, err := s.FindScheduleByHash(ctx, marketplace, hash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	sch = &Schedule{
		ID:           uuid.New(),
		Marketplace:  marketplace,
		Source:       source,
		Hash:         hash,
		BracketCount: uint16(len(rows)),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateSchedule(ctx, sch, rows); err != nil {
		return nil, false, err
	}
	return sch, true, nil
}

// CreateSchedule inserts a schedule and its brackets.
func (s *Store) CreateSchedule(ctx context.Context, sch *Schedule, rows []brackets.FeeBracket) error {
	if sch.ID == uuid.Nil {
		sch.ID = uuid.New()
	}
	if sch.CreatedAt.IsZero() {
		sch.CreatedAt = time.Now().UTC()
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fee_schedule_brackets (
			schedule_id, position, min_price, max_price, commission_rate, fixed_fee
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range toRows(sch.ID, rows) {
		if err := batch.Append(r.ScheduleID, r.Position, r.MinPrice, r.MaxPrice, r.CommissionRate, r.FixedFee); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert brackets: %w", err)
	}

	query := `INSERT INTO fee_schedules (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if err := s.conn.Exec(ctx, query,
		sch.ID,
		sch.Marketplace,
		sch.Source,
		sch.Hash,
		sch.BracketCount,
		boolToUInt8(sch.IsActive),
		sch.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID
func (s *Store) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM fee_schedules FINAL WHERE id = ? AND _deleted = 0`
	return s.scanOne(ctx, "get schedule", query, id)
}

// ActiveSchedule returns the active schedule of a marketplace, or nil.
func (s *Store) ActiveSchedule(ctx context.Context, marketplace string) (*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM fee_schedules FINAL
		WHERE marketplace = ? AND is_active = 1 AND _deleted = 0
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanOne(ctx, "get active schedule", query, marketplace)
}

// FindScheduleByHash finds a schedule by its content hash
func (s *Store) FindScheduleByHash(ctx context.Context, marketplace, hash string) (*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM fee_schedules FINAL
		WHERE marketplace = ? AND hash = ? AND _deleted = 0
		LIMIT 1
	`
	return s.scanOne(ctx, "find schedule by hash", query, marketplace, hash)
}

// ListSchedules lists the schedules of a marketplace, newest first.
func (s *Store) ListSchedules(ctx context.Context, marketplace string) ([]*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM fee_schedules FINAL
		WHERE marketplace = ? AND _deleted = 0
		ORDER BY created_at DESC
	`
	rows, err := s.conn.Query(ctx, query, marketplace)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		var sch Schedule
		var isActive uint8
		if err := rows.Scan(
			&sch.ID, &sch.Marketplace, &sch.Source, &sch.Hash,
			&sch.BracketCount, &isActive, &sch.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		sch.IsActive = isActive == 1
		out = append(out, &sch)
	}
	return out, rows.Err()
}

// ActivateSchedule marks a schedule active and deactivates the other
// schedules of its marketplace.
func (s *Store) ActivateSchedule(ctx context.Context, id uuid.UUID) error {
	sch, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sch == nil {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	deactivateQuery := `
		INSERT INTO fee_schedules
		SELECT id, marketplace, source, hash, bracket_count, 0 AS is_active, created_at,
			   _version + 1 AS _version, _deleted
		FROM fee_schedules FINAL
		WHERE marketplace = ? AND is_active = 1 AND _deleted = 0 AND id != ?
	`
	if err := s.conn.Exec(ctx, deactivateQuery, sch.Marketplace, id); err != nil {
		return fmt.Errorf("failed to deactivate schedules: %w", err)
	}

	activateQuery := `
		INSERT INTO fee_schedules
		SELECT id, marketplace, source, hash, bracket_count, 1 AS is_active, created_at,
			   _version + 1 AS _version, _deleted
		FROM fee_schedules FINAL
		WHERE id = ?
	`
	if err := s.conn.Exec(ctx, activateQuery, id); err != nil {
		return fmt.Errorf("failed to activate schedule: %w", err)
	}
	return nil
}

// =============================================================================
// BRACKET OPERATIONS
// =============================================================================

// LoadTable reads the brackets of a schedule into a validated table.
func (s *Store) LoadTable(ctx context.Context, id uuid.UUID) (*brackets.Table, error) {
	query := `
		SELECT schedule_id, position, min_price, max_price, commission_rate, fixed_fee
		FROM fee_schedule_brackets
		WHERE schedule_id = ?
		ORDER BY position
	`
	rows, err := s.conn.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load brackets: %w", err)
	}
	defer rows.Close()

	var stored []BracketRow
	for rows.Next() {
		var r BracketRow
		if err := rows.Scan(&r.ScheduleID, &r.Position, &r.MinPrice, &r.MaxPrice, &r.CommissionRate, &r.FixedFee); err != nil {
			return nil, fmt.Errorf("failed to scan bracket: %w", err)
		}
		stored = append(stored, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load brackets: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: %s has no brackets", ErrScheduleNotFound, id)
	}

	table, err := brackets.NewTable(fromRows(stored))
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", id, err)
	}
	return table, nil
}

// LoadActiveTable returns the active table of a marketplace. Both results are
// nil when no schedule is active.
func (s *Store) LoadActiveTable(ctx context.Context, marketplace string) (*brackets.Table, *Schedule, error) {
	sch, err := s.ActiveSchedule(ctx, marketplace)
	if err != nil || sch == nil {
		return nil, nil, err
	}
	table, err := s.LoadTable(ctx, sch.ID)
	if err != nil {
		return nil, nil, err
	}
	return table, sch, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (s *Store) scanOne(ctx context.Context, op, query string, args ...any) (*Schedule, error) {
	row := s.conn.QueryRow(ctx, query, args...)

	var sch Schedule
	var isActive uint8
	err := row.Scan(
		&sch.ID, &sch.Marketplace, &sch.Source, &sch.Hash,
		&sch.BracketCount, &isActive, &sch.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	sch.IsActive = isActive == 1
	return &sch, nil
}

// HashBrackets returns a content hash of the rows. Equal tables hash equally
// regardless of how their decimals were written ("0.20" and "0.2").
func HashBrackets(rows []brackets.FeeBracket) string {
	var sb strings.Builder
	for _, b := range rows {
		sb.WriteString(b.MinPrice.String())
		sb.WriteString("|")
		if b.MaxPrice == nil {
			sb.WriteString("inf")
		} else {
			sb.WriteString(b.MaxPrice.String())
		}
		sb.WriteString("|")
		sb.WriteString(b.CommissionRate.String())
		sb.WriteString("|")
		sb.WriteString(b.FixedFee.String())
		sb.WriteString(";")
	}

	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])
}

func toRows(id uuid.UUID, rows []brackets.FeeBracket) []BracketRow {
	out := make([]BracketRow, len(rows))
	for i, b := range rows {
		out[i] = BracketRow{
			ScheduleID:     id,
			Position:       uint16(i),
			MinPrice:       b.MinPrice,
			MaxPrice:       b.MaxPrice,
			CommissionRate: b.CommissionRate,
			FixedFee:       b.FixedFee,
		}
	}
	return out
}

func fromRows(rows []BracketRow) []brackets.FeeBracket {
	out := make([]brackets.FeeBracket, len(rows))
	for i, r := range rows {
		out[i] = brackets.FeeBracket{
			MinPrice:       r.MinPrice,
			MaxPrice:       r.MaxPrice,
			CommissionRate: r.CommissionRate,
			FixedFee:       r.FixedFee,
		}
	}
	return out
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
