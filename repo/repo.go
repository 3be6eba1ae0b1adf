package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/mattn/go-sqlite3"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/logger"
)

var _ Repository = (*Repo)(nil)

type Repo struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

// runner is satisfied by both *sql.DB and *sql.Tx
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Close checkpoints the sqlite WAL and closes the connection pool
func (r *Repo) Close() error {
	if r.db != nil {
		if err := r.CheckpointWAL(context.Background()); err != nil {
			logger.Warn("Failed to checkpoint WAL", "error", err)
		}
		logger.Info("Closing database connection")
		return r.db.Close()
	}
	return nil
}

func (r *Repo) Ping(ctx context.Context) error {
	if r.db != nil {
		return r.db.PingContext(ctx)
	}
	return sql.ErrConnDone
}

// Driver returns the database/sql driver name the repo was opened with
func (r *Repo) Driver() string {
	return r.driver
}

func (r *Repo) exec(ctx context.Context, run runner, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return run.ExecContext(ctx, query, args...)
}

func (r *Repo) query(ctx context.Context, run runner, q sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return run.QueryContext(ctx, query, args...)
}

// withTx runs fn inside a transaction, rolling back when fn fails
func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// affected maps a zero row count to ErrNotFound
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapWriteErr translates driver uniqueness violations into ErrDuplicate
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(book.DateLayout)
}

func parseDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(book.DateLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", ns.String, err)
	}
	return &t, nil
}
