// Package service provides business logic layer between HTTP handlers and repository
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/logger"
	"github.com/htol/locallib/ordering"
	"github.com/htol/locallib/repo"
	"github.com/htol/locallib/validator"
)

// Redirect targets used once a record is gone
const (
	AuthorListURL   = "/catalog/authors"
	GenreListURL    = "/catalog/genres"
	BookListURL     = "/catalog/books"
	InstanceListURL = "/catalog/bookinstances"
)

// Service provides business logic for the application
type Service struct {
	repo   repo.Repository
	logger *slog.Logger
}

// New creates a new Service with the given repository
func New(repo repo.Repository) *Service {
	return NewWithLogger(repo, nil)
}

// NewWithLogger is New with an explicit logger; nil selects the application default
func NewWithLogger(repo repo.Repository, l *slog.Logger) *Service {
	if l == nil {
		l = logger.Default()
	}
	return &Service{repo: repo, logger: l}
}

// notFound converts repo.ErrNotFound into a *NotFoundError and wraps anything else
func notFound(err error, kind, id, op string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Authors

// ListAuthors returns every author ordered by family name
func (s *Service) ListAuthors(ctx context.Context) ([]book.Author, error) {
	authors, err := s.repo.ListAuthors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return ordering.By(authors, "family_name"), nil
}

func (s *Service) CreateAuthor(ctx context.Context, a book.Author) (*book.Author, error) {
	created, err := s.repo.CreateAuthor(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create author: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateAuthor(ctx context.Context, id string, a book.Author) (*book.Author, error) {
	updated, err := s.repo.UpdateAuthor(ctx, id, a)
	if err != nil {
		return nil, notFound(err, "Author", id, "update author")
	}
	return updated, nil
}

// GetAuthor returns a single author, e.g. to pre-fill an update form
func (s *Service) GetAuthor(ctx context.Context, id string) (*book.Author, error) {
	a, err := s.repo.GetAuthorByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Author", id, "get author")
	}
	return a, nil
}

// Genres

// ListGenres returns every genre ordered by name
func (s *Service) ListGenres(ctx context.Context) ([]book.Genre, error) {
	genres, err := s.repo.ListGenres(ctx)
	if err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	return ordering.By(genres, "name"), nil
}

func (s *Service) GetGenre(ctx context.Context, id string) (*book.Genre, error) {
	g, err := s.repo.GetGenreByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Genre", id, "get genre")
	}
	return g, nil
}

// UpdateGenre renames a genre. Renaming onto another genre's name fails with a field error.
func (s *Service) UpdateGenre(ctx context.Context, id string, g book.Genre) (*book.Genre, error) {
	updated, err := s.repo.UpdateGenre(ctx, id, g)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, validator.Errors{{Field: "name", Value: g.Name, Message: "Genre name already exists."}}
	}
	if err != nil {
		return nil, notFound(err, "Genre", id, "update genre")
	}
	return updated, nil
}

// Books

// ListBooks returns every book ordered by title
func (s *Service) ListBooks(ctx context.Context) ([]book.Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return ordering.By(books, "title"), nil
}

// checkBookRefs verifies that the author and every genre named by b exist
func (s *Service) checkBookRefs(ctx context.Context, b book.Book) error {
	var errs validator.Errors
	if _, err := s.repo.GetAuthorByID(ctx, b.AuthorID); errors.Is(err, repo.ErrNotFound) {
		errs = append(errs, validator.FieldError{Field: "author", Value: b.AuthorID, Message: "Author does not exist."})
	} else if err != nil {
		return fmt.Errorf("check author %s: %w", b.AuthorID, err)
	}
	for _, gid := range b.GenreIDs {
		if _, err := s.repo.GetGenreByID(ctx, gid); errors.Is(err, repo.ErrNotFound) {
			errs = append(errs, validator.FieldError{Field: "genre", Value: gid, Message: "Genre does not exist."})
		} else if err != nil {
			return fmt.Errorf("check genre %s: %w", gid, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateBook inserts a book after checking its references exist
func (s *Service) CreateBook(ctx context.Context, b book.Book) (*book.Book, error) {
	if err := s.checkBookRefs(ctx, b); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateBook(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return created, nil
}

// UpdateBook replaces a book in place, genre list included, after checking its references exist
func (s *Service) UpdateBook(ctx context.Context, id string, b book.Book) (*book.Book, error) {
	if err := s.checkBookRefs(ctx, b); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateBook(ctx, id, b)
	if err != nil {
		return nil, notFound(err, "Book", id, "update book")
	}
	return updated, nil
}

func (s *Service) GetBook(ctx context.Context, id string) (*book.Book, error) {
	b, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Book", id, "get book")
	}
	return b, nil
}

// Book instances

// ListInstances returns every copy ordered by its book's title.
// Copies whose book no longer exists follow, in store order.
func (s *Service) ListInstances(ctx context.Context) ([]book.Instance, error) {
	instances, err := s.repo.ListInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list book instances: %w", err)
	}

	joined := make([]book.Instance, 0, len(instances))
	var dangling []book.Instance
	for _, i := range instances {
		if i.Book == nil {
			dangling = append(dangling, i)
			continue
		}
		joined = append(joined, i)
	}
	return append(ordering.By(joined, "book.title"), dangling...), nil
}

// InstanceFormChoices is what a copy form offers: books by title and the status set
type InstanceFormChoices struct {
	Books    []book.Book   `json:"book_list"`
	Statuses []book.Status `json:"status_values"`
}

func (s *Service) InstanceFormChoices(ctx context.Context) (*InstanceFormChoices, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	return &InstanceFormChoices{Books: books, Statuses: book.Statuses()}, nil
}

func (s *Service) checkInstanceRefs(ctx context.Context, i book.Instance) error {
	_, err := s.repo.GetBookByID(ctx, i.BookID)
	if errors.Is(err, repo.ErrNotFound) {
		return validator.Errors{{Field: "book", Value: i.BookID, Message: "Book does not exist."}}
	}
	if err != nil {
		return fmt.Errorf("check book %s: %w", i.BookID, err)
	}
	return nil
}

func (s *Service) CreateInstance(ctx context.Context, i book.Instance) (*book.Instance, error) {
	if err := s.checkInstanceRefs(ctx, i); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateInstance(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("create book instance: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateInstance(ctx context.Context, id string, i book.Instance) (*book.Instance, error) {
	if err := s.checkInstanceRefs(ctx, i); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateInstance(ctx, id, i)
	if err != nil {
		return nil, notFound(err, "Book copy", id, "update book instance")
	}
	return updated, nil
}

// DeleteInstance removes one copy. Deleting a copy that does not exist is not an error.
func (s *Service) DeleteInstance(ctx context.Context, id string) (string, error) {
	err := s.repo.DeleteInstance(ctx, id)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("delete book instance %s: %w", id, err)
	}
	return InstanceListURL, nil
}

// InstanceDeleteConfirm returns the copy to confirm, or a redirect when it is gone
func (s *Service) InstanceDeleteConfirm(ctx context.Context, id string) (Confirm[book.Instance], error) {
	i, err := s.InstanceDetail(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Confirm[book.Instance]{Redirect: InstanceListURL}, nil
	}
	if err != nil {
		return Confirm[book.Instance]{}, err
	}
	return Confirm[book.Instance]{Detail: i}, nil
}

// Summary is the catalog home page: record counts per kind
type Summary struct {
	Books              int `json:"book_count"`
	Instances          int `json:"book_instance_count"`
	InstancesAvailable int `json:"book_instance_available_count"`
	Authors            int `json:"author_count"`
	Genres             int `json:"genre_count"`
}

// Summary counts every kind concurrently; the first failure cancels the rest
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		books, err := s.repo.ListBooks(ctx)
		sum.Books = len(books)
		return err
	})
	g.Go(func() error {
		instances, err := s.repo.ListInstances(ctx)
		sum.Instances = len(instances)
		sum.InstancesAvailable = lo.CountBy(instances, func(i book.Instance) bool {
			return i.Status == book.StatusAvailable
		})
		return err
	})
	g.Go(func() error {
		authors, err := s.repo.ListAuthors(ctx)
		sum.Authors = len(authors)
		return err
	})
	g.Go(func() error {
		genres, err := s.repo.ListGenres(ctx)
		sum.Genres = len(genres)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("catalog summary: %w", err)
	}
	return &sum, nil
}

// Health

// Ping checks the health of the service and its dependencies
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository ping: %w", err)
	}
	return nil
}
