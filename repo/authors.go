package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/htol/locallib/book"
)

var authorColumns = []string{"id", "first_name", "family_name", "date_of_birth", "date_of_death"}

func scanAuthor(rows *sql.Rows) (book.Author, error) {
	var (
		a        book.Author
		dob, dod sql.NullString
		err      error
	)
	if err := rows.Scan(&a.ID, &a.FirstName, &a.FamilyName, &dob, &dod); err != nil {
		return a, err
	}
	if a.DateOfBirth, err = parseDate(dob); err != nil {
		return a, err
	}
	if a.DateOfDeath, err = parseDate(dod); err != nil {
		return a, err
	}
	return a, nil
}

func (r *Repo) selectAuthors(ctx context.Context, q sq.SelectBuilder) ([]book.Author, error) {
	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}
	defer rows.Close()

	authors := make([]book.Author, 0)
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authors: %w", err)
	}
	return authors, nil
}

func (r *Repo) ListAuthors(ctx context.Context) ([]book.Author, error) {
	return r.selectAuthors(ctx, r.sb.Select(authorColumns...).From("authors"))
}

func (r *Repo) GetAuthorByID(ctx context.Context, id string) (*book.Author, error) {
	authors, err := r.selectAuthors(ctx, r.sb.Select(authorColumns...).From("authors").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(authors) == 0 {
		return nil, ErrNotFound
	}
	return &authors[0], nil
}

func (r *Repo) CreateAuthor(ctx context.Context, a book.Author) (*book.Author, error) {
	a.ID = uuid.NewString()
	_, err := r.exec(ctx, r.db, r.sb.Insert("authors").
		Columns(authorColumns...).
		Values(a.ID, a.FirstName, a.FamilyName, nullableDate(a.DateOfBirth), nullableDate(a.DateOfDeath)))
	if err != nil {
		return nil, fmt.Errorf("insert author: %w", mapWriteErr(err))
	}
	return &a, nil
}

func (r *Repo) UpdateAuthor(ctx context.Context, id string, a book.Author) (*book.Author, error) {
	a.ID = id
	res, err := r.exec(ctx, r.db, r.sb.Update("authors").
		Set("first_name", a.FirstName).
		Set("family_name", a.FamilyName).
		Set("date_of_birth", nullableDate(a.DateOfBirth)).
		Set("date_of_death", nullableDate(a.DateOfDeath)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("update author %s: %w", id, mapWriteErr(err))
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) DeleteAuthor(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, r.sb.Delete("authors").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete author %s: %w", id, err)
	}
	return affected(res)
}
