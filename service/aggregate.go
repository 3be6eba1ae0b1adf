package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/ordering"
	"github.com/htol/locallib/repo"
)

// loadWithDependents runs the primary lookup and the dependents query concurrently and
// returns once both have finished. A missing primary yields *NotFoundError whatever the
// dependents query did; otherwise the first store error is returned and no partial result.
// Dependents are returned in store order.
func loadWithDependents[P, D any](
	ctx context.Context,
	kind, id string,
	primary func(context.Context) (*P, error),
	dependents func(context.Context) ([]D, error),
) (*P, []D, error) {
	var (
		g       errgroup.Group
		p       *P
		deps    []D
		missing bool
	)

	g.Go(func() error {
		rec, err := primary(ctx)
		if errors.Is(err, repo.ErrNotFound) {
			missing = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s %s: %w", kind, id, err)
		}
		p = rec
		return nil
	})
	g.Go(func() error {
		recs, err := dependents(ctx)
		if err != nil {
			return fmt.Errorf("load dependents of %s %s: %w", kind, id, err)
		}
		deps = recs
		return nil
	})

	err := g.Wait()
	if missing {
		return nil, nil, &NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return nil, nil, err
	}
	return p, deps, nil
}

// AuthorDetail is an author with their books ordered by title
type AuthorDetail struct {
	Author book.Author `json:"author"`
	Books  []book.Book `json:"author_books"`
}

// GenreDetail is a genre with the books carrying it ordered by title
type GenreDetail struct {
	Genre book.Genre  `json:"genre"`
	Books []book.Book `json:"genre_books"`
}

// BookDetail is a book joined with its author, genres and copies
type BookDetail struct {
	Book      book.Book       `json:"book"`
	Author    *book.Author    `json:"author,omitempty"` // nil when the reference dangles
	Genres    []book.Genre    `json:"genres"`
	Instances []book.Instance `json:"book_instances"`
}

func (s *Service) authorWithBooks(ctx context.Context, id string) (*AuthorDetail, error) {
	author, books, err := loadWithDependents(ctx, "Author", id,
		func(ctx context.Context) (*book.Author, error) { return s.repo.GetAuthorByID(ctx, id) },
		func(ctx context.Context) ([]book.Book, error) { return s.repo.FindBooksByAuthor(ctx, id) },
	)
	if err != nil {
		return nil, err
	}
	return &AuthorDetail{Author: *author, Books: books}, nil
}

func (s *Service) genreWithBooks(ctx context.Context, id string) (*GenreDetail, error) {
	genre, books, err := loadWithDependents(ctx, "Genre", id,
		func(ctx context.Context) (*book.Genre, error) { return s.repo.GetGenreByID(ctx, id) },
		func(ctx context.Context) ([]book.Book, error) { return s.repo.FindBooksByGenre(ctx, id) },
	)
	if err != nil {
		return nil, err
	}
	return &GenreDetail{Genre: *genre, Books: books}, nil
}

// AuthorDetail returns the author and their books ordered by title
func (s *Service) AuthorDetail(ctx context.Context, id string) (*AuthorDetail, error) {
	d, err := s.authorWithBooks(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Books = ordering.By(d.Books, "title")
	return d, nil
}

// GenreDetail returns the genre and its books ordered by title
func (s *Service) GenreDetail(ctx context.Context, id string) (*GenreDetail, error) {
	d, err := s.genreWithBooks(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Books = ordering.By(d.Books, "title")
	return d, nil
}

// BookDetail returns the book with its author and genres resolved and its copies ordered by imprint.
// Dangling author or genre references are left out rather than failing the view.
func (s *Service) BookDetail(ctx context.Context, id string) (*BookDetail, error) {
	type joined struct {
		book   book.Book
		author *book.Author
		genres []book.Genre
	}

	j, instances, err := loadWithDependents(ctx, "Book", id,
		func(ctx context.Context) (*joined, error) {
			b, err := s.repo.GetBookByID(ctx, id)
			if err != nil {
				return nil, err
			}
			out := &joined{book: *b, genres: make([]book.Genre, 0, len(b.GenreIDs))}
			if a, err := s.repo.GetAuthorByID(ctx, b.AuthorID); err == nil {
				out.author = a
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, err
			}
			for _, gid := range b.GenreIDs {
				g, err := s.repo.GetGenreByID(ctx, gid)
				if errors.Is(err, repo.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				out.genres = append(out.genres, *g)
			}
			return out, nil
		},
		func(ctx context.Context) ([]book.Instance, error) { return s.repo.FindInstancesByBook(ctx, id) },
	)
	if err != nil {
		return nil, err
	}

	return &BookDetail{
		Book:      j.book,
		Author:    j.author,
		Genres:    ordering.By(j.genres, "name"),
		Instances: ordering.By(instances, "imprint"),
	}, nil
}

// InstanceDetail returns one copy with its book populated
func (s *Service) InstanceDetail(ctx context.Context, id string) (*book.Instance, error) {
	i, err := s.repo.GetInstanceByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &NotFoundError{Kind: "Book copy", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get book instance %s: %w", id, err)
	}
	return i, nil
}
