package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/htol/locallib/book"
)

var bookColumns = []string{"b.id", "b.title", "b.summary", "b.isbn", "b.author_id"}

// selectBooks runs q (which must project bookColumns) and attaches each book's genre ids
func (r *Repo) selectBooks(ctx context.Context, run runner, q sq.SelectBuilder) ([]book.Book, error) {
	rows, err := r.query(ctx, run, q)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}

	books := make([]book.Book, 0)
	for rows.Next() {
		var b book.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Summary, &b.ISBN, &b.AuthorID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	rows.Close()

	genres, err := r.genreIDsFor(ctx, run, lo.Map(books, func(b book.Book, _ int) string { return b.ID }))
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].GenreIDs = genres[books[i].ID]
		if books[i].GenreIDs == nil {
			books[i].GenreIDs = []string{}
		}
	}
	return books, nil
}

// genreIDsFor returns the genre ids of each book in insertion order
func (r *Repo) genreIDsFor(ctx context.Context, run runner, bookIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}

	rows, err := r.query(ctx, run, r.sb.Select("book_id", "genre_id").
		From("book_genres").
		Where(sq.Eq{"book_id": bookIDs}).
		OrderBy("book_id", "seq"))
	if err != nil {
		return nil, fmt.Errorf("query book genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookID, genreID string
		if err := rows.Scan(&bookID, &genreID); err != nil {
			return nil, fmt.Errorf("scan book genre: %w", err)
		}
		result[bookID] = append(result[bookID], genreID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book genres: %w", err)
	}
	return result, nil
}

func (r *Repo) booksFrom() sq.SelectBuilder {
	return r.sb.Select(bookColumns...).From("books b")
}

func (r *Repo) ListBooks(ctx context.Context) ([]book.Book, error) {
	return r.selectBooks(ctx, r.db, r.booksFrom())
}

func (r *Repo) GetBookByID(ctx context.Context, id string) (*book.Book, error) {
	books, err := r.selectBooks(ctx, r.db, r.booksFrom().Where(sq.Eq{"b.id": id}))
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, ErrNotFound
	}
	return &books[0], nil
}

// FindBooksByAuthor returns books whose author field equals authorID
func (r *Repo) FindBooksByAuthor(ctx context.Context, authorID string) ([]book.Book, error) {
	return r.selectBooks(ctx, r.db, r.booksFrom().Where(sq.Eq{"b.author_id": authorID}))
}

// FindBooksByGenre returns books whose genre set contains genreID
func (r *Repo) FindBooksByGenre(ctx context.Context, genreID string) ([]book.Book, error) {
	return r.selectBooks(ctx, r.db, r.booksFrom().
		Join("book_genres bg ON bg.book_id = b.id").
		Where(sq.Eq{"bg.genre_id": genreID}))
}

func (r *Repo) writeGenres(ctx context.Context, tx *sql.Tx, bookID string, genreIDs []string) error {
	if _, err := r.exec(ctx, tx, r.sb.Delete("book_genres").Where(sq.Eq{"book_id": bookID})); err != nil {
		return fmt.Errorf("clear book genres: %w", err)
	}
	if len(genreIDs) == 0 {
		return nil
	}
	ins := r.sb.Insert("book_genres").Columns("book_id", "genre_id", "seq")
	for i, g := range genreIDs {
		ins = ins.Values(bookID, g, i)
	}
	if _, err := r.exec(ctx, tx, ins); err != nil {
		return fmt.Errorf("insert book genres: %w", mapWriteErr(err))
	}
	return nil
}

func (r *Repo) CreateBook(ctx context.Context, b book.Book) (*book.Book, error) {
	b.ID = uuid.NewString()
	b.GenreIDs = lo.Uniq(b.GenreIDs)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := r.exec(ctx, tx, r.sb.Insert("books").
			Columns("id", "title", "summary", "isbn", "author_id").
			Values(b.ID, b.Title, b.Summary, b.ISBN, b.AuthorID))
		if err != nil {
			return fmt.Errorf("insert book: %w", mapWriteErr(err))
		}
		return r.writeGenres(ctx, tx, b.ID, b.GenreIDs)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBook replaces the book record, genre set included, keeping its id
func (r *Repo) UpdateBook(ctx context.Context, id string, b book.Book) (*book.Book, error) {
	b.ID = id
	b.GenreIDs = lo.Uniq(b.GenreIDs)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := r.exec(ctx, tx, r.sb.Update("books").
			Set("title", b.Title).
			Set("summary", b.Summary).
			Set("isbn", b.ISBN).
			Set("author_id", b.AuthorID).
			Where(sq.Eq{"id": id}))
		if err != nil {
			return fmt.Errorf("update book %s: %w", id, mapWriteErr(err))
		}
		if err := affected(res); err != nil {
			return err
		}
		return r.writeGenres(ctx, tx, id, b.GenreIDs)
	})
	if err != nil {
		return nil, err
	}
	if b.GenreIDs == nil {
		b.GenreIDs = []string{}
	}
	return &b, nil
}

// DeleteBook removes the book and its genre links. Instances are left to the caller.
func (r *Repo) DeleteBook(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := r.exec(ctx, tx, r.sb.Delete("books").Where(sq.Eq{"id": id}))
		if err != nil {
			return fmt.Errorf("delete book %s: %w", id, err)
		}
		if err := affected(res); err != nil {
			return err
		}
		if _, err := r.exec(ctx, tx, r.sb.Delete("book_genres").Where(sq.Eq{"book_id": id})); err != nil {
			return fmt.Errorf("delete book genres %s: %w", id, err)
		}
		return nil
	})
}
