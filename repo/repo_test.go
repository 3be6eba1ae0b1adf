package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/logger"
)

func init() {
	logger.Init("error")
}

// newTestRepo opens a throwaway sqlite database that is removed with the test's temp dir
func newTestRepo(t testing.TB) *Repo {
	t.Helper()
	storage := GetStorage(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() {
		if err := storage.Close(); err != nil {
			t.Logf("Error closing storage: %v", err)
		}
	})
	return storage
}

func day(s string) *time.Time {
	t, err := time.Parse(book.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestRepo_AuthorCRUD(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	created, err := r.CreateAuthor(ctx, book.Author{FirstName: "Jane", FamilyName: "Austen", DateOfBirth: day("1775-12-16"), DateOfDeath: day("1817-07-18")})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := r.GetAuthorByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Austen", got.FamilyName)
	assert.Equal(t, "1775-12-16", book.FormatDate(got.DateOfBirth))
	assert.Equal(t, "1817-07-18", book.FormatDate(got.DateOfDeath))

	updated, err := r.UpdateAuthor(ctx, created.ID, book.Author{FirstName: "J.", FamilyName: "Austen"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err = r.GetAuthorByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "J.", got.FirstName)
	assert.Nil(t, got.DateOfBirth)

	all, err := r.ListAuthors(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, r.DeleteAuthor(ctx, created.ID))
	_, err = r.GetAuthorByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.DeleteAuthor(ctx, created.ID), ErrNotFound)
}

func TestRepo_MissingRecords(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.GetBookByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetGenreByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetInstanceByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.FindGenreByName(ctx, "Nothing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.UpdateAuthor(ctx, "missing", book.Author{FirstName: "a", FamilyName: "b"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.UpdateGenre(ctx, "missing", book.Genre{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.UpdateBook(ctx, "missing", book.Book{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.UpdateInstance(ctx, "missing", book.Instance{Imprint: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.DeleteGenre(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, r.DeleteBook(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, r.DeleteInstance(ctx, "missing"), ErrNotFound)

	books, err := r.FindBooksByAuthor(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestRepo_GenreUniqueName(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	fantasy, err := r.CreateGenre(ctx, book.Genre{Name: "Fantasy"})
	require.NoError(t, err)

	_, err = r.CreateGenre(ctx, book.Genre{Name: "Fantasy"})
	assert.True(t, errors.Is(err, ErrDuplicate), "got %v", err)

	found, err := r.FindGenreByName(ctx, "Fantasy")
	require.NoError(t, err)
	assert.Equal(t, fantasy.ID, found.ID)

	poetry, err := r.CreateGenre(ctx, book.Genre{Name: "Poetry"})
	require.NoError(t, err)
	_, err = r.UpdateGenre(ctx, poetry.ID, book.Genre{Name: "Fantasy"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRepo_BookGenresRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	author, err := r.CreateAuthor(ctx, book.Author{FirstName: "Terry", FamilyName: "Pratchett"})
	require.NoError(t, err)
	g1, err := r.CreateGenre(ctx, book.Genre{Name: "Fantasy"})
	require.NoError(t, err)
	g2, err := r.CreateGenre(ctx, book.Genre{Name: "Humour"})
	require.NoError(t, err)

	b, err := r.CreateBook(ctx, book.Book{
		Title:    "Mort",
		Summary:  "Death takes an apprentice.",
		ISBN:     "9780552131063",
		AuthorID: author.ID,
		GenreIDs: []string{g2.ID, g1.ID, g2.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{g2.ID, g1.ID}, b.GenreIDs, "duplicates dropped, order kept")

	got, err := r.GetBookByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, *b, *got)

	byGenre, err := r.FindBooksByGenre(ctx, g1.ID)
	require.NoError(t, err)
	require.Len(t, byGenre, 1)
	assert.Equal(t, []string{g2.ID, g1.ID}, byGenre[0].GenreIDs, "membership filter returns the full set")

	byAuthor, err := r.FindBooksByAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.Len(t, byAuthor, 1)

	_, err = r.UpdateBook(ctx, b.ID, book.Book{Title: "Mort", AuthorID: author.ID, GenreIDs: nil})
	require.NoError(t, err)
	got, err = r.GetBookByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.GenreIDs)
	assert.NotNil(t, got.GenreIDs)

	byGenre, err = r.FindBooksByGenre(ctx, g1.ID)
	require.NoError(t, err)
	assert.Empty(t, byGenre)

	require.NoError(t, r.DeleteBook(ctx, b.ID))
	books, err := r.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestRepo_DeleteBookRemovesGenreLinks(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	g, err := r.CreateGenre(ctx, book.Genre{Name: "Horror"})
	require.NoError(t, err)
	b, err := r.CreateBook(ctx, book.Book{Title: "It", AuthorID: "a", GenreIDs: []string{g.ID}})
	require.NoError(t, err)

	require.NoError(t, r.DeleteBook(ctx, b.ID))

	var links int
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book_genres`).Scan(&links))
	assert.Zero(t, links)
}

func TestRepo_Instances(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	b, err := r.CreateBook(ctx, book.Book{Title: "Dune", AuthorID: "a"})
	require.NoError(t, err)

	loaned, err := r.CreateInstance(ctx, book.Instance{BookID: b.ID, Imprint: "Ace, 1990", Status: book.StatusLoaned, DueBack: day("2026-11-01")})
	require.NoError(t, err)
	_, err = r.CreateInstance(ctx, book.Instance{BookID: b.ID, Imprint: "Gollancz, 2001", Status: book.StatusAvailable})
	require.NoError(t, err)
	orphan, err := r.CreateInstance(ctx, book.Instance{BookID: "gone", Imprint: "Unknown", Status: book.StatusMaintenance})
	require.NoError(t, err)

	got, err := r.GetInstanceByID(ctx, loaned.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Book)
	assert.Equal(t, "Dune", got.Book.Title)
	assert.Equal(t, book.StatusLoaned, got.Status)
	assert.Equal(t, "2026-11-01", got.DueBackFormatted())

	got, err = r.GetInstanceByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Book, "dangling reference is not populated")

	byBook, err := r.FindInstancesByBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, byBook, 2)

	all, err := r.ListInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	updated, err := r.UpdateInstance(ctx, loaned.ID, book.Instance{BookID: b.ID, Imprint: "Ace, 1990", Status: book.StatusAvailable})
	require.NoError(t, err)
	assert.Equal(t, loaned.ID, updated.ID)
	got, err = r.GetInstanceByID(ctx, loaned.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DueBack)

	require.NoError(t, r.DeleteInstance(ctx, loaned.ID))
	byBook, err = r.FindInstancesByBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, byBook, 1)
}

func TestRepo_Ping(t *testing.T) {
	r := newTestRepo(t)
	assert.NoError(t, r.Ping(context.Background()))
	assert.Equal(t, "sqlite3", r.Driver())

	var closed Repo
	assert.Error(t, closed.Ping(context.Background()))
}

func TestRepo_CheckpointWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.db")
	r := GetStorage(path)

	_, err := r.CreateGenre(ctx, book.Genre{Name: "Poetry"})
	require.NoError(t, err)
	require.NoError(t, r.CheckpointWAL(ctx))

	if info, err := os.Stat(path + "-wal"); err == nil {
		assert.Zero(t, info.Size())
	}
	require.NoError(t, r.Close())

	// data survives reopening
	r = GetStorage(path)
	defer r.Close()
	g, err := r.FindGenreByName(ctx, "Poetry")
	require.NoError(t, err)
	assert.Equal(t, "Poetry", g.Name)

	pg := &Repo{driver: "pgx"}
	assert.NoError(t, pg.CheckpointWAL(ctx))
}

func TestRepo_InMemorySharesOneDatabase(t *testing.T) {
	ctx := context.Background()
	r := GetStorage(":memory:")
	defer r.Close()

	a, err := r.CreateAuthor(ctx, book.Author{FirstName: "Jane", FamilyName: "Austen"})
	require.NoError(t, err)

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			authors, err := r.ListAuthors(ctx)
			if err != nil {
				return err
			}
			if len(authors) != 1 {
				return errors.New("schema or rows missing on pooled connection")
			}
			_, err = r.FindBooksByAuthor(ctx, a.ID)
			return err
		})
	}
	require.NoError(t, g.Wait())
}
