package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/logger"
	"github.com/htol/locallib/repo"
	"github.com/htol/locallib/validator"
)

func init() {
	logger.Init("error")
}

var errStore = errors.New("store unavailable")

// faultyRepo wraps a real repository and fails selected calls
type faultyRepo struct {
	repo.Repository

	deleteInstance   map[string]error
	deleteBook       map[string]error
	updateBook       map[string]error
	findInstances    map[string]error
	findBooksByOwner error
	getAuthor        error
	createGenre      error
}

func (f *faultyRepo) DeleteInstance(ctx context.Context, id string) error {
	if err := f.deleteInstance[id]; err != nil {
		return err
	}
	return f.Repository.DeleteInstance(ctx, id)
}

func (f *faultyRepo) DeleteBook(ctx context.Context, id string) error {
	if err := f.deleteBook[id]; err != nil {
		return err
	}
	return f.Repository.DeleteBook(ctx, id)
}

func (f *faultyRepo) UpdateBook(ctx context.Context, id string, b book.Book) (*book.Book, error) {
	if err := f.updateBook[id]; err != nil {
		return nil, err
	}
	return f.Repository.UpdateBook(ctx, id, b)
}

func (f *faultyRepo) FindInstancesByBook(ctx context.Context, id string) ([]book.Instance, error) {
	if err := f.findInstances[id]; err != nil {
		return nil, err
	}
	return f.Repository.FindInstancesByBook(ctx, id)
}

func (f *faultyRepo) FindBooksByAuthor(ctx context.Context, id string) ([]book.Book, error) {
	if f.findBooksByOwner != nil {
		return nil, f.findBooksByOwner
	}
	return f.Repository.FindBooksByAuthor(ctx, id)
}

func (f *faultyRepo) FindBooksByGenre(ctx context.Context, id string) ([]book.Book, error) {
	if f.findBooksByOwner != nil {
		return nil, f.findBooksByOwner
	}
	return f.Repository.FindBooksByGenre(ctx, id)
}

func (f *faultyRepo) GetAuthorByID(ctx context.Context, id string) (*book.Author, error) {
	if f.getAuthor != nil {
		return nil, f.getAuthor
	}
	return f.Repository.GetAuthorByID(ctx, id)
}

// CreateGenre simulates a concurrent writer inserting the same name first
func (f *faultyRepo) CreateGenre(ctx context.Context, g book.Genre) (*book.Genre, error) {
	if f.createGenre != nil {
		if _, err := f.Repository.CreateGenre(ctx, g); err != nil {
			return nil, err
		}
		return nil, f.createGenre
	}
	return f.Repository.CreateGenre(ctx, g)
}

func newStore(t *testing.T) *repo.Repo {
	t.Helper()
	r := repo.GetStorage(filepath.Join(t.TempDir(), "catalog.db"))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newTestService(t *testing.T) (*Service, *faultyRepo) {
	t.Helper()
	f := &faultyRepo{Repository: newStore(t)}
	return New(f), f
}

type fixture struct {
	author         *book.Author
	b1, b2         *book.Book
	i1, i2, i3     *book.Instance
	genreG, genreH *book.Genre
}

// seed stores author A with books B1 (copies I1, I2, genres G and H) and B2 (copy I3, genre G)
func seed(t *testing.T, s *Service) fixture {
	t.Helper()
	ctx := context.Background()
	var fx fixture
	var err error

	fx.author, err = s.CreateAuthor(ctx, book.Author{FirstName: "Ursula", FamilyName: "Le Guin"})
	require.NoError(t, err)
	fx.genreG, _, err = s.CreateOrGetGenre(ctx, book.Genre{Name: "Fantasy"})
	require.NoError(t, err)
	fx.genreH, _, err = s.CreateOrGetGenre(ctx, book.Genre{Name: "Science Fiction"})
	require.NoError(t, err)

	fx.b1, err = s.CreateBook(ctx, book.Book{Title: "The Left Hand of Darkness", Summary: "Gethen.", ISBN: "0441478123",
		AuthorID: fx.author.ID, GenreIDs: []string{fx.genreG.ID, fx.genreH.ID}})
	require.NoError(t, err)
	fx.b2, err = s.CreateBook(ctx, book.Book{Title: "A Wizard of Earthsea", Summary: "Ged.", ISBN: "0553383043",
		AuthorID: fx.author.ID, GenreIDs: []string{fx.genreG.ID}})
	require.NoError(t, err)

	fx.i1, err = s.CreateInstance(ctx, book.Instance{BookID: fx.b1.ID, Imprint: "Ace, 1969", Status: book.StatusAvailable})
	require.NoError(t, err)
	fx.i2, err = s.CreateInstance(ctx, book.Instance{BookID: fx.b1.ID, Imprint: "Ace, 1976", Status: book.StatusLoaned})
	require.NoError(t, err)
	fx.i3, err = s.CreateInstance(ctx, book.Instance{BookID: fx.b2.ID, Imprint: "Parnassus, 1968", Status: book.StatusMaintenance})
	require.NoError(t, err)
	return fx
}

func TestDeleteAuthor_HardCascade(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)

	res, err := s.DeleteAuthor(ctx, fx.author.ID)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, AuthorListURL, res.Redirect)
	assert.Equal(t, 2, res.BooksDeleted)
	assert.Equal(t, 3, res.InstancesDeleted)
	assert.Empty(t, res.Failures)

	_, err = f.Repository.GetAuthorByID(ctx, fx.author.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	for _, id := range []string{fx.b1.ID, fx.b2.ID} {
		_, err = f.Repository.GetBookByID(ctx, id)
		assert.ErrorIs(t, err, repo.ErrNotFound)
	}
	for _, id := range []string{fx.i1.ID, fx.i2.ID, fx.i3.ID} {
		_, err = f.Repository.GetInstanceByID(ctx, id)
		assert.ErrorIs(t, err, repo.ErrNotFound)
	}

	// genres are shared and survive
	genres, err := s.ListGenres(ctx)
	require.NoError(t, err)
	assert.Len(t, genres, 2)
}

func TestDeleteAuthor_LeavesOtherAuthorsAlone(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)

	other, err := s.CreateAuthor(ctx, book.Author{FirstName: "Iain", FamilyName: "Banks"})
	require.NoError(t, err)
	kept, err := s.CreateBook(ctx, book.Book{Title: "Excession", Summary: "An outside context problem.", ISBN: "0553575376",
		AuthorID: other.ID, GenreIDs: []string{fx.genreH.ID}})
	require.NoError(t, err)
	copyKept, err := s.CreateInstance(ctx, book.Instance{BookID: kept.ID, Imprint: "Orbit, 1996"})
	require.NoError(t, err)

	_, err = s.DeleteAuthor(ctx, fx.author.ID)
	require.NoError(t, err)

	_, err = f.Repository.GetBookByID(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = f.Repository.GetInstanceByID(ctx, copyKept.ID)
	assert.NoError(t, err)
}

func TestDeleteGenre_SoftDetach(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)

	res, err := s.DeleteGenre(ctx, fx.genreG.ID)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, GenreListURL, res.Redirect)
	assert.Equal(t, 2, res.BooksDetached)

	b1, err := f.Repository.GetBookByID(ctx, fx.b1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{fx.genreH.ID}, b1.GenreIDs)
	assert.Equal(t, fx.b1.Title, b1.Title)
	assert.Equal(t, fx.b1.Summary, b1.Summary)
	assert.Equal(t, fx.b1.ISBN, b1.ISBN)
	assert.Equal(t, fx.b1.AuthorID, b1.AuthorID)

	b2, err := f.Repository.GetBookByID(ctx, fx.b2.ID)
	require.NoError(t, err)
	assert.Empty(t, b2.GenreIDs)

	_, err = f.Repository.GetGenreByID(ctx, fx.genreG.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	books, err := f.Repository.FindBooksByGenre(ctx, fx.genreG.ID)
	require.NoError(t, err)
	assert.Empty(t, books)

	// copies are untouched by a genre delete
	instances, err := s.ListInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, instances, 3)
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	fx := seed(t, s)

	res, err := s.DeleteAuthor(ctx, fx.author.ID)
	require.NoError(t, err)
	assert.True(t, res.Found)
	res, err = s.DeleteAuthor(ctx, fx.author.ID)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, AuthorListURL, res.Redirect)

	res, err = s.DeleteGenre(ctx, fx.genreH.ID)
	require.NoError(t, err)
	assert.True(t, res.Found)
	res, err = s.DeleteGenre(ctx, fx.genreH.ID)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, GenreListURL, res.Redirect)

	url, err := s.DeleteInstance(ctx, "no-such-copy")
	require.NoError(t, err)
	assert.Equal(t, InstanceListURL, url)
}

func TestDeleteAuthor_PartialFailure(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)
	f.deleteInstance = map[string]error{fx.i1.ID: errStore}

	res, err := s.DeleteAuthor(ctx, fx.author.ID)
	var cerr *CascadeError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, errStore)
	require.NotNil(t, res)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, CascadeFailure{Kind: "bookinstance", ID: fx.i1.ID, Op: "delete", Message: errStore.Error(), Err: errStore}, res.Failures[0])

	// siblings, books and the author were still processed
	assert.Equal(t, 2, res.InstancesDeleted)
	assert.Equal(t, 2, res.BooksDeleted)
	_, err = f.Repository.GetInstanceByID(ctx, fx.i2.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = f.Repository.GetAuthorByID(ctx, fx.author.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// the failed copy is left orphaned and shows at the end of the list
	instances, err := s.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, fx.i1.ID, instances[0].ID)
	assert.Nil(t, instances[0].Book)
}

func TestDeleteAuthor_LookupAndBookFailures(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)
	f.findInstances = map[string]error{fx.b1.ID: errStore}
	f.deleteBook = map[string]error{fx.b2.ID: errStore}

	res, err := s.DeleteAuthor(ctx, fx.author.ID)
	assert.ErrorIs(t, err, errStore)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, CascadeFailure{Kind: "book", ID: fx.b1.ID, Op: "lookup instances", Message: errStore.Error(), Err: errStore}, res.Failures[0])
	assert.Equal(t, CascadeFailure{Kind: "book", ID: fx.b2.ID, Op: "delete", Message: errStore.Error(), Err: errStore}, res.Failures[1])
	assert.Zero(t, res.BooksDeleted)
	assert.Equal(t, 1, res.InstancesDeleted)

	// a book whose copies could not be listed is kept so they stay reachable through it
	_, err = f.Repository.GetBookByID(ctx, fx.b1.ID)
	assert.NoError(t, err)
	copies, err := f.Repository.FindInstancesByBook(ctx, fx.b1.ID)
	require.NoError(t, err)
	assert.Len(t, copies, 2)
	_, err = f.Repository.GetInstanceByID(ctx, fx.i3.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = f.Repository.GetBookByID(ctx, fx.b2.ID)
	assert.NoError(t, err)
	_, err = f.Repository.GetAuthorByID(ctx, fx.author.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeleteGenre_PartialFailure(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)
	f.updateBook = map[string]error{fx.b2.ID: errStore}

	res, err := s.DeleteGenre(ctx, fx.genreG.ID)
	var cerr *CascadeError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "genre", cerr.Kind)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "detach", res.Failures[0].Op)
	assert.Equal(t, 1, res.BooksDetached)
}

func TestDelete_StoreFailurePropagates(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)
	f.findBooksByOwner = errStore

	_, err := s.DeleteAuthor(ctx, fx.author.ID)
	assert.ErrorIs(t, err, errStore)
	_, err = s.DeleteGenre(ctx, fx.genreG.ID)
	assert.ErrorIs(t, err, errStore)

	// nothing was mutated
	_, err = f.Repository.GetAuthorByID(ctx, fx.author.ID)
	assert.NoError(t, err)
	_, err = f.Repository.GetGenreByID(ctx, fx.genreG.ID)
	assert.NoError(t, err)
}

func TestAggregation_NotFoundWins(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	f.findBooksByOwner = errStore

	_, err := s.AuthorDetail(ctx, "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Author not found", nf.Error())
	assert.NotErrorIs(t, err, errStore)

	_, err = s.GenreDetail(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.BookDetail(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.InstanceDetail(ctx, "missing")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Book copy", nf.Kind)
}

func TestAggregation_NoPartialResult(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	fx := seed(t, s)
	f.findBooksByOwner = errStore

	d, err := s.AuthorDetail(ctx, fx.author.ID)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, errStore)

	f.findBooksByOwner = nil
	f.getAuthor = errStore
	d, err = s.AuthorDetail(ctx, fx.author.ID)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, errStore)
}

func TestLoadWithDependents_RunsConcurrently(t *testing.T) {
	started := make(chan struct{})

	p, deps, err := loadWithDependents(context.Background(), "Thing", "1",
		func(ctx context.Context) (*string, error) {
			select {
			case <-started:
				v := "primary"
				return &v, nil
			case <-time.After(5 * time.Second):
				return nil, errors.New("dependents query never started")
			}
		},
		func(ctx context.Context) ([]int, error) {
			close(started)
			return []int{3, 1, 2}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "primary", *p)
	assert.Equal(t, []int{3, 1, 2}, deps)
}

func TestLoadWithDependents_MissingPrimaryIgnoresDependents(t *testing.T) {
	for _, depErr := range []error{nil, errStore} {
		_, deps, err := loadWithDependents(context.Background(), "Thing", "1",
			func(ctx context.Context) (*string, error) { return nil, repo.ErrNotFound },
			func(ctx context.Context) ([]int, error) { return []int{1}, depErr },
		)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, deps)
	}
}

func TestDetails_Ordered(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	fx := seed(t, s)

	ad, err := s.AuthorDetail(ctx, fx.author.ID)
	require.NoError(t, err)
	require.Len(t, ad.Books, 2)
	assert.Equal(t, "A Wizard of Earthsea", ad.Books[0].Title)
	assert.Equal(t, "The Left Hand of Darkness", ad.Books[1].Title)

	gd, err := s.GenreDetail(ctx, fx.genreG.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", gd.Genre.Name)
	assert.Len(t, gd.Books, 2)

	bd, err := s.BookDetail(ctx, fx.b1.ID)
	require.NoError(t, err)
	require.NotNil(t, bd.Author)
	assert.Equal(t, "Le Guin, Ursula", bd.Author.Name())
	require.Len(t, bd.Genres, 2)
	assert.Equal(t, "Fantasy", bd.Genres[0].Name)
	require.Len(t, bd.Instances, 2)
	assert.Equal(t, "Ace, 1969", bd.Instances[0].Imprint)

	id, err := s.InstanceDetail(ctx, fx.i3.ID)
	require.NoError(t, err)
	require.NotNil(t, id.Book)
	assert.Equal(t, fx.b2.Title, id.Book.Title)
}

func TestDeleteConfirm(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	fx := seed(t, s)

	ac, err := s.AuthorDeleteConfirm(ctx, fx.author.ID)
	require.NoError(t, err)
	require.NotNil(t, ac.Detail)
	assert.Empty(t, ac.Redirect)
	assert.Len(t, ac.Detail.Books, 2)

	ac, err = s.AuthorDeleteConfirm(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, ac.Detail)
	assert.Equal(t, AuthorListURL, ac.Redirect)

	gc, err := s.GenreDeleteConfirm(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, GenreListURL, gc.Redirect)

	ic, err := s.InstanceDeleteConfirm(ctx, fx.i1.ID)
	require.NoError(t, err)
	require.NotNil(t, ic.Detail)
	assert.Equal(t, fx.i1.Imprint, ic.Detail.Imprint)
}

func TestCreateOrGetGenre(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	first, created, err := s.CreateOrGetGenre(ctx, book.Genre{Name: "Fantasy"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreateOrGetGenre(ctx, book.Genre{Name: "Fantasy"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	genres, err := s.ListGenres(ctx)
	require.NoError(t, err)
	assert.Len(t, genres, 1)
}

func TestCreateOrGetGenre_LostRace(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)
	f.createGenre = repo.ErrDuplicate

	g, created, err := s.CreateOrGetGenre(ctx, book.Genre{Name: "Horror"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Horror", g.Name)

	genres, err := s.ListGenres(ctx)
	require.NoError(t, err)
	assert.Len(t, genres, 1)
}

func TestCreateBook_DanglingReferences(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.CreateBook(ctx, book.Book{Title: "T", Summary: "S", ISBN: "I", AuthorID: "nobody", GenreIDs: []string{"nothing"}})
	var verrs validator.Errors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "author", verrs[0].Field)
	assert.Equal(t, "genre", verrs[1].Field)

	_, err = s.CreateInstance(ctx, book.Instance{BookID: "nothing", Imprint: "x"})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "book", verrs[0].Field)
}

func TestUpdate_MissingRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	fx := seed(t, s)

	_, err := s.UpdateAuthor(ctx, "missing", book.Author{FirstName: "A", FamilyName: "B"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateBook(ctx, "missing", *fx.b1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateGenre(ctx, fx.genreG.ID, book.Genre{Name: "Science Fiction"})
	var verrs validator.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "name", verrs[0].Field)
}

func TestLists_Ordered(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	fx := seed(t, s)

	_, err := s.CreateAuthor(ctx, book.Author{FirstName: "Isaac", FamilyName: "Asimov"})
	require.NoError(t, err)

	authors, err := s.ListAuthors(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Asimov", authors[0].FamilyName)

	instances, err := s.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 3)
	assert.Equal(t, fx.b2.ID, instances[0].BookID)

	choices, err := s.InstanceFormChoices(ctx)
	require.NoError(t, err)
	assert.Equal(t, book.Statuses(), choices.Statuses)
	assert.Equal(t, "A Wizard of Earthsea", choices.Books[0].Title)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Books: 2, Instances: 3, InstancesAvailable: 1, Authors: 2, Genres: 2}, *sum)
}

func TestPing(t *testing.T) {
	s, _ := newTestService(t)
	assert.NoError(t, s.Ping(context.Background()))
}
