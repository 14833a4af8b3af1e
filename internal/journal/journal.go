package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orderexec/internal/config"
	"orderexec/internal/logging"
	"orderexec/internal/types"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when no result is stored for an order id
var ErrNotFound = errors.New("order result not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS order_results (
		order_id        TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		asset           TEXT NOT NULL,
		side            TEXT NOT NULL,
		status          TEXT NOT NULL,
		total_amount    TEXT NOT NULL,
		filled_amount   TEXT NOT NULL,
		average_price   TEXT NOT NULL,
		total_fees      TEXT NOT NULL,
		total_value     TEXT NOT NULL,
		fill_percentage TEXT NOT NULL,
		exit_reason     TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT '',
		started_at      TEXT NOT NULL,
		completed_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_fills (
		fill_id   TEXT PRIMARY KEY,
		order_id  TEXT NOT NULL REFERENCES order_results(order_id),
		seq       INTEGER NOT NULL,
		amount    TEXT NOT NULL,
		price     TEXT NOT NULL,
		fee       TEXT NOT NULL,
		filled_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_fills_order_id ON order_fills(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_results_completed_at ON order_results(completed_at)`,
}

const resultColumns = `order_id, kind, asset, side, status, total_amount, filled_amount,
	average_price, total_fees, total_value, fill_percentage, exit_reason, error,
	started_at, completed_at`

// Journal stores completed order results. It is an audit trail only.
type Journal struct {
	db     *sql.DB
	driver string
	logger *logging.Logger
}

// Open connects to the configured database and creates the schema
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Journal, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path == "" {
			return nil, errors.New("database path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		db, err = sql.Open(DriverSQLite, cfg.Path)
		cfg.Driver = DriverSQLite
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("postgres dsn is empty")
		}
		db, err = sql.Open(DriverPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	j := New(db, cfg.Driver)
	if err := j.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	j.logger.WithField("driver", cfg.Driver).Info("Execution journal ready")
	return j, nil
}

// New wraps an open handle
func New(db *sql.DB, driver string) *Journal {
	return &Journal{
		db:     db,
		driver: driver,
		logger: logging.NewComponentLogger("journal"),
	}
}

// Driver returns the database driver name
func (j *Journal) Driver() string {
	return j.driver
}

// Close releases the underlying handle
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Migrate creates missing tables
func (j *Journal) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Record writes a completed result and its fills in one transaction
func (j *Journal) Record(ctx context.Context, result *types.OrderResult) error {
	if result == nil {
		return errors.New("nil result")
	}
	completedAt := time.Now()
	if result.CompletedAt != nil {
		completedAt = *result.CompletedAt
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, j.rebind(`INSERT INTO order_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		result.OrderID,
		string(result.Kind),
		result.Asset,
		string(result.Side),
		string(result.Status),
		result.TotalAmount.String(),
		result.FilledAmount.String(),
		result.AveragePrice.String(),
		result.TotalFees.String(),
		result.TotalValue.String(),
		result.FillPercentage.String(),
		result.ExitReason,
		result.Error,
		formatTime(result.StartedAt),
		formatTime(completedAt),
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", result.OrderID, err)
	}

	insertFill := j.rebind(`INSERT INTO order_fills (fill_id, order_id, seq, amount, price, fee, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for i, f := range result.Fills {
		_, err = tx.ExecContext(ctx, insertFill,
			f.FillID,
			result.OrderID,
			i,
			f.Amount.String(),
			f.Price.String(),
			f.Fee.String(),
			formatTime(f.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("insert fill %d of %s: %w", i, result.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"order_id": result.OrderID,
		"status":   result.Status,
		"fills":    len(result.Fills),
	}).Debug("Result journaled")
	return nil
}

// Recent returns up to limit stored results, newest first, without fills
func (j *Journal) Recent(ctx context.Context, limit int) ([]*types.OrderResult, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx, j.rebind(`SELECT `+resultColumns+`
		FROM order_results
		ORDER BY completed_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []*types.OrderResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// Get returns one stored result with its fills
func (j *Journal) Get(ctx context.Context, orderID string) (*types.OrderResult, error) {
	row := j.db.QueryRowContext(ctx, j.rebind(`SELECT `+resultColumns+`
		FROM order_results
		WHERE order_id = ?`), orderID)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	fills, err := j.fills(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Fills = fills
	return result, nil
}

func (j *Journal) fills(ctx context.Context, orderID string) ([]types.Fill, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`SELECT fill_id, amount, price, fee, filled_at
		FROM order_fills
		WHERE order_id = ?
		ORDER BY seq`), orderID)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	fills := []types.Fill{}
	for rows.Next() {
		var (
			f                  types.Fill
			amount, price, fee string
			filledAt           string
		)
		if err := rows.Scan(&f.FillID, &amount, &price, &fee, &filledAt); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("fill amount: %w", err)
		}
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("fill price: %w", err)
		}
		if f.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("fill fee: %w", err)
		}
		if f.Timestamp, err = parseTime(filledAt); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fills: %w", err)
	}
	return fills, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(s scanner) (*types.OrderResult, error) {
	var (
		r                                    types.OrderResult
		kind, side, status                   string
		total, filled, avg, fees, value, pct string
		startedAt, completedAt               string
	)
	err := s.Scan(&r.OrderID, &kind, &r.Asset, &side, &status,
		&total, &filled, &avg, &fees, &value, &pct,
		&r.ExitReason, &r.Error, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}

	r.Kind = types.OrderKind(kind)
	r.Side = types.OrderSide(side)
	r.Status = types.OrderStatus(status)

	decimals := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{total, &r.TotalAmount},
		{filled, &r.FilledAmount},
		{avg, &r.AveragePrice},
		{fees, &r.TotalFees},
		{value, &r.TotalValue},
		{pct, &r.FillPercentage},
	}
	for _, d := range decimals {
		v, err := decimal.NewFromString(d.raw)
		if err != nil {
			return nil, fmt.Errorf("result %s: %w", r.OrderID, err)
		}
		*d.dst = v
	}

	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	done, err := parseTime(completedAt)
	if err != nil {
		return nil, err
	}
	r.CompletedAt = &done
	r.Fills = []types.Fill{}

	return &r, nil
}

// rebind turns ? placeholders into $n for postgres
func (j *Journal) rebind(query string) string {
	if j.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// timeLayout is fixed width so that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
