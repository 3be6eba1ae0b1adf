package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/metrics"
	"github.com/htol/locallib/repo"
)

// Confirm is the GET side of a delete: either the record to confirm or, when it is
// already gone, the list page to redirect to
type Confirm[T any] struct {
	Detail   *T
	Redirect string
}

// DeleteResult describes what a delete policy did. Found is false when the target
// did not exist, in which case nothing was mutated.
type DeleteResult struct {
	Redirect         string           `json:"redirect"`
	Found            bool             `json:"found"`
	BooksDeleted     int              `json:"books_deleted,omitempty"`
	InstancesDeleted int              `json:"instances_deleted,omitempty"`
	BooksDetached    int              `json:"books_detached,omitempty"`
	Failures         []CascadeFailure `json:"failures,omitempty"`
}

// AuthorDeleteConfirm returns the author and their books ordered by title
func (s *Service) AuthorDeleteConfirm(ctx context.Context, id string) (Confirm[AuthorDetail], error) {
	d, err := s.AuthorDetail(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Confirm[AuthorDetail]{Redirect: AuthorListURL}, nil
	}
	if err != nil {
		return Confirm[AuthorDetail]{}, err
	}
	return Confirm[AuthorDetail]{Detail: d}, nil
}

// GenreDeleteConfirm returns the genre and the books carrying it ordered by title
func (s *Service) GenreDeleteConfirm(ctx context.Context, id string) (Confirm[GenreDetail], error) {
	d, err := s.GenreDetail(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Confirm[GenreDetail]{Redirect: GenreListURL}, nil
	}
	if err != nil {
		return Confirm[GenreDetail]{}, err
	}
	return Confirm[GenreDetail]{Detail: d}, nil
}

// mutation records the outcome of one dependent write. An absent record counts as
// done since the end state is the one asked for.
func (s *Service) mutation(res *DeleteResult, kind, id, op string, err error) bool {
	if err == nil || errors.Is(err, repo.ErrNotFound) {
		metrics.CascadeMutations.WithLabelValues(kind, op, "ok").Inc()
		return true
	}
	metrics.CascadeMutations.WithLabelValues(kind, op, "error").Inc()
	s.logger.Warn("cascade step failed", "kind", kind, "id", id, "op", op, "error", err)
	res.Failures = append(res.Failures, CascadeFailure{Kind: kind, ID: id, Op: op, Message: err.Error(), Err: err})
	return false
}

// finish deletes the primary record and closes out the result
func (s *Service) finish(ctx context.Context, res *DeleteResult, kind, id string, del func(context.Context, string) error) (*DeleteResult, error) {
	if err := del(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
		metrics.CascadeDeletes.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("delete %s %s: %w", kind, id, err)
	}

	if len(res.Failures) > 0 {
		metrics.CascadeDeletes.WithLabelValues(kind, "partial").Inc()
		s.logger.Error("delete finished with failures", "kind", kind, "id", id, "failures", len(res.Failures))
		return res, &CascadeError{Kind: kind, ID: id, Failures: res.Failures}
	}
	metrics.CascadeDeletes.WithLabelValues(kind, "deleted").Inc()
	s.logger.Info("deleted", "kind", kind, "id", id,
		"books_deleted", res.BooksDeleted, "instances_deleted", res.InstancesDeleted, "books_detached", res.BooksDetached)
	return res, nil
}

// DeleteAuthor removes the author, every book they wrote and every copy of those books.
//
// Books are processed one at a time. A failed copy or book delete does not stop its
// siblings or the author delete. A book whose copies cannot be listed is left in
// place. Failures are listed in the result and returned as *CascadeError. A missing author redirects to the author list without error.
func (s *Service) DeleteAuthor(ctx context.Context, id string) (*DeleteResult, error) {
	res := &DeleteResult{Redirect: AuthorListURL}

	d, err := s.authorWithBooks(ctx, id)
	if errors.Is(err, ErrNotFound) {
		metrics.CascadeDeletes.WithLabelValues("author", "absent").Inc()
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Found = true

	for _, b := range d.Books {
		instances, err := s.repo.FindInstancesByBook(ctx, b.ID)
		if !s.mutation(res, "book", b.ID, "lookup instances", err) {
			// keep the book so its copies can still be found
			continue
		}
		for _, i := range instances {
			if s.mutation(res, "bookinstance", i.ID, "delete", s.repo.DeleteInstance(ctx, i.ID)) {
				res.InstancesDeleted++
			}
		}
		if s.mutation(res, "book", b.ID, "delete", s.repo.DeleteBook(ctx, b.ID)) {
			res.BooksDeleted++
		}
	}

	return s.finish(ctx, res, "author", id, s.repo.DeleteAuthor)
}

// DeleteGenre strips the genre from every book carrying it, keeping the books, and
// then removes the genre. Other genres on a book keep their order. Failures are
// reported as for DeleteAuthor.
func (s *Service) DeleteGenre(ctx context.Context, id string) (*DeleteResult, error) {
	res := &DeleteResult{Redirect: GenreListURL}

	d, err := s.genreWithBooks(ctx, id)
	if errors.Is(err, ErrNotFound) {
		metrics.CascadeDeletes.WithLabelValues("genre", "absent").Inc()
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Found = true

	for _, b := range d.Books {
		b.GenreIDs = lo.Without(b.GenreIDs, id)
		_, err := s.repo.UpdateBook(ctx, b.ID, b)
		if s.mutation(res, "book", b.ID, "detach", err) {
			res.BooksDetached++
		}
	}

	return s.finish(ctx, res, "genre", id, s.repo.DeleteGenre)
}

// CreateOrGetGenre returns the genre named g.Name, inserting it first when no such
// genre exists. created reports whether an insert happened.
func (s *Service) CreateOrGetGenre(ctx context.Context, g book.Genre) (*book.Genre, bool, error) {
	existing, err := s.repo.FindGenreByName(ctx, g.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, fmt.Errorf("find genre %q: %w", g.Name, err)
	}

	created, err := s.repo.CreateGenre(ctx, g)
	if errors.Is(err, repo.ErrDuplicate) {
		// lost an insert race against the same name
		existing, err := s.repo.FindGenreByName(ctx, g.Name)
		if err != nil {
			return nil, false, fmt.Errorf("find genre %q after conflict: %w", g.Name, err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create genre: %w", err)
	}
	return created, true, nil
}
