package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/htol/locallib/config"
	"github.com/htol/locallib/logger"
)

// GetStorage opens (creating if needed) a sqlite database at path with default pool settings.
// It panics when the database cannot be opened.
func GetStorage(path string) *Repo {
	cfg := config.Load().Database
	cfg.Driver = config.DriverSQLite
	cfg.Path = path
	cfg.DSN = ""

	r, err := Open(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to open database", "path", path, "error", err)
		panic(err)
	}
	return r
}

// Open connects to the configured database and ensures the schema exists
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Repo, error) {
	db, err := sql.Open(cfg.Driver, cfg.DataSource())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.InMemory() {
		// every connection to :memory: is a separate empty database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	r := &Repo{
		db:     db,
		driver: cfg.Driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		r.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	case config.DriverSQLite:
		// Cache Size: -64000 means 64MB of cache. Positive would be N pages.
		if _, err := db.ExecContext(ctx, "PRAGMA cache_size = -64000"); err != nil {
			logger.Warn("Failed to set cache_size", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA temp_store = MEMORY"); err != nil {
			logger.Warn("Failed to set temp_store", "error", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := r.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return r, nil
}

// CreateSchema creates tables and indexes. The DDL is shared by sqlite and postgres.
// No foreign keys are declared: references are checked at write time by the service layer
// and cascades are issued as individual record operations.
func (r *Repo) CreateSchema(ctx context.Context) error {
	sqlStmt := `
           CREATE TABLE IF NOT EXISTS authors (
               id TEXT PRIMARY KEY NOT NULL,
               first_name TEXT NOT NULL,
               family_name TEXT NOT NULL,
               date_of_birth TEXT,
               date_of_death TEXT
           );
           CREATE INDEX IF NOT EXISTS idx_authors_family_name ON authors (family_name);

           CREATE TABLE IF NOT EXISTS genres (
               id TEXT PRIMARY KEY NOT NULL,
               name TEXT NOT NULL UNIQUE
           );

           CREATE TABLE IF NOT EXISTS books (
               id TEXT PRIMARY KEY NOT NULL,
               title TEXT NOT NULL,
               summary TEXT NOT NULL DEFAULT '',
               isbn TEXT NOT NULL DEFAULT '',
               author_id TEXT NOT NULL
           );
           CREATE INDEX IF NOT EXISTS idx_books_author_id ON books (author_id);
           CREATE INDEX IF NOT EXISTS idx_books_title ON books (title);

           CREATE TABLE IF NOT EXISTS book_genres (
               book_id TEXT NOT NULL,
               genre_id TEXT NOT NULL,
               seq INTEGER NOT NULL DEFAULT 0,
               PRIMARY KEY (book_id, genre_id)
           );
           CREATE INDEX IF NOT EXISTS idx_book_genres_genre_id ON book_genres (genre_id);

           CREATE TABLE IF NOT EXISTS book_instances (
               id TEXT PRIMARY KEY NOT NULL,
               book_id TEXT NOT NULL,
               imprint TEXT NOT NULL,
               status TEXT NOT NULL,
               due_back TEXT
           );
           CREATE INDEX IF NOT EXISTS idx_book_instances_book_id ON book_instances (book_id);
	`
	_, err := r.db.ExecContext(ctx, sqlStmt)
	return err
}
