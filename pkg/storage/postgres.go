package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HatiCode/loadcast/pkg/forecast"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner runs functions inside a transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner creates a TxRunner on pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx commits when fn succeeds and rolls back otherwise.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PostgresStore implements Store on PostgreSQL. Tables are created by
// database.Migrate.
type PostgresStore struct {
	db DBTX
	tx *TxRunner
}

// NewPostgresStore creates a store on pool. The caller owns the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, tx: NewTxRunner(pool)}
}

func (s *PostgresStore) Append(ctx context.Context, requestID string, points []forecast.Point) error {
	if len(points) == 0 {
		return nil
	}

	id, err := uuid.Parse(requestID)
	if err != nil {
		return fmt.Errorf("request id %q: %w", requestID, err)
	}

	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"forecasts"},
			[]string{"request_id", "ds", "yhat", "yhat_lower", "yhat_upper"},
			pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
				p := points[i]
				return []any{id, p.Timestamp, p.Predicted, p.Lower, p.Upper}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy forecasts: %w", err)
		}
		if int(n) != len(points) {
			return fmt.Errorf("copy forecasts: wrote %d of %d rows", n, len(points))
		}
		return nil
	})
}

func (s *PostgresStore) List(ctx context.Context, page forecast.Page) ([]forecast.Point, error) {
	query := `
		SELECT ds, yhat, yhat_lower, yhat_upper
		FROM forecasts
		ORDER BY ds, id
		OFFSET $1`
	args := []any{page.Offset}
	if page.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, page.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}

	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (forecast.Point, error) {
		var p forecast.Point
		err := row.Scan(&p.Timestamp, &p.Predicted, &p.Lower, &p.Upper)
		p.Timestamp = forecast.Day(p.Timestamp)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan forecasts: %w", err)
	}
	return points, nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, rec forecast.Record) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO forecast_requests (id, horizon_days, cache_key, status, error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		rec.ID, rec.HorizonDays, rec.CacheKey, string(rec.Status), rec.Error,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("request %s already exists: %w", rec.ID, err)
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status forecast.Status, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE forecast_requests
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, string(status), errMsg,
	)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", id, forecast.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (forecast.Record, error) {
	var (
		rec    forecast.Record
		status string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id::text, horizon_days, cache_key, status, error, created_at, updated_at
		FROM forecast_requests
		WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.HorizonDays, &rec.CacheKey, &status, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return forecast.Record{}, fmt.Errorf("request %s: %w", id, forecast.ErrNotFound)
		}
		return forecast.Record{}, fmt.Errorf("get request: %w", err)
	}
	rec.Status = forecast.Status(status)
	return rec, nil
}

func (s *PostgresStore) ReplaceDailyLoad(ctx context.Context, rows []forecast.DailyLoad) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE daily_load`); err != nil {
			return fmt.Errorf("truncate daily_load: %w", err)
		}

		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"daily_load"},
			[]string{"day", "daily_avg_load_mw"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				return []any{rows[i].Day, rows[i].AvgLoadMW}, nil
			}),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("duplicate day in daily load: %w", err)
			}
			return fmt.Errorf("copy daily_load: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy daily_load: wrote %d of %d rows", n, len(rows))
		}
		return nil
	})
}

func (s *PostgresStore) ListDailyLoad(ctx context.Context) ([]forecast.DailyLoad, error) {
	rows, err := s.db.Query(ctx, `SELECT day, daily_avg_load_mw FROM daily_load ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("list daily_load: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (forecast.DailyLoad, error) {
		var d forecast.DailyLoad
		err := row.Scan(&d.Day, &d.AvgLoadMW)
		d.Day = forecast.Day(d.Day)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan daily_load: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isInvalidText matches a malformed uuid literal.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}
