package repo

import (
	"context"
	"errors"

	"github.com/htol/locallib/book"
)

// ErrNotFound is returned when a record is not found in the repository
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate record")

// Repository defines the interface for data access operations.
// Every by-id lookup, update and delete addressing an absent record returns ErrNotFound.
type Repository interface {
	// Close closes the database connection
	Close() error

	// Health check
	Ping(ctx context.Context) error

	// Authors
	ListAuthors(ctx context.Context) ([]book.Author, error)
	GetAuthorByID(ctx context.Context, id string) (*book.Author, error)
	CreateAuthor(ctx context.Context, a book.Author) (*book.Author, error)
	UpdateAuthor(ctx context.Context, id string, a book.Author) (*book.Author, error)
	DeleteAuthor(ctx context.Context, id string) error

	// Genres
	ListGenres(ctx context.Context) ([]book.Genre, error)
	GetGenreByID(ctx context.Context, id string) (*book.Genre, error)
	FindGenreByName(ctx context.Context, name string) (*book.Genre, error)
	CreateGenre(ctx context.Context, g book.Genre) (*book.Genre, error)
	UpdateGenre(ctx context.Context, id string, g book.Genre) (*book.Genre, error)
	DeleteGenre(ctx context.Context, id string) error

	// Books
	ListBooks(ctx context.Context) ([]book.Book, error)
	GetBookByID(ctx context.Context, id string) (*book.Book, error)
	FindBooksByAuthor(ctx context.Context, authorID string) ([]book.Book, error)
	FindBooksByGenre(ctx context.Context, genreID string) ([]book.Book, error)
	CreateBook(ctx context.Context, b book.Book) (*book.Book, error)
	UpdateBook(ctx context.Context, id string, b book.Book) (*book.Book, error)
	DeleteBook(ctx context.Context, id string) error

	// Book instances
	ListInstances(ctx context.Context) ([]book.Instance, error)
	GetInstanceByID(ctx context.Context, id string) (*book.Instance, error)
	FindInstancesByBook(ctx context.Context, bookID string) ([]book.Instance, error)
	CreateInstance(ctx context.Context, i book.Instance) (*book.Instance, error)
	UpdateInstance(ctx context.Context, id string, i book.Instance) (*book.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
}
