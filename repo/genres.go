package repo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/htol/locallib/book"
)

func (r *Repo) selectGenres(ctx context.Context, q sq.SelectBuilder) ([]book.Genre, error) {
	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("query genres: %w", err)
	}
	defer rows.Close()

	genres := make([]book.Genre, 0)
	for rows.Next() {
		var g book.Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genres: %w", err)
	}
	return genres, nil
}

func (r *Repo) oneGenre(ctx context.Context, q sq.SelectBuilder) (*book.Genre, error) {
	genres, err := r.selectGenres(ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(genres) == 0 {
		return nil, ErrNotFound
	}
	return &genres[0], nil
}

func (r *Repo) ListGenres(ctx context.Context) ([]book.Genre, error) {
	return r.selectGenres(ctx, r.sb.Select("id", "name").From("genres"))
}

func (r *Repo) GetGenreByID(ctx context.Context, id string) (*book.Genre, error) {
	return r.oneGenre(ctx, r.sb.Select("id", "name").From("genres").Where(sq.Eq{"id": id}))
}

// FindGenreByName looks a genre up by exact name
func (r *Repo) FindGenreByName(ctx context.Context, name string) (*book.Genre, error) {
	return r.oneGenre(ctx, r.sb.Select("id", "name").From("genres").Where(sq.Eq{"name": name}))
}

// CreateGenre inserts a genre. A name already in use yields ErrDuplicate.
func (r *Repo) CreateGenre(ctx context.Context, g book.Genre) (*book.Genre, error) {
	g.ID = uuid.NewString()
	if _, err := r.exec(ctx, r.db, r.sb.Insert("genres").Columns("id", "name").Values(g.ID, g.Name)); err != nil {
		return nil, fmt.Errorf("insert genre: %w", mapWriteErr(err))
	}
	return &g, nil
}

func (r *Repo) UpdateGenre(ctx context.Context, id string, g book.Genre) (*book.Genre, error) {
	g.ID = id
	res, err := r.exec(ctx, r.db, r.sb.Update("genres").Set("name", g.Name).Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("update genre %s: %w", id, mapWriteErr(err))
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Repo) DeleteGenre(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, r.sb.Delete("genres").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete genre %s: %w", id, err)
	}
	return affected(res)
}
