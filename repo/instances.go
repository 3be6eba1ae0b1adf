package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/htol/locallib/book"
)

// instances are always selected with their book joined; a dangling book_id leaves Book nil
func (r *Repo) instancesFrom() sq.SelectBuilder {
	return r.sb.Select(
		"i.id", "i.book_id", "i.imprint", "i.status", "i.due_back",
		"b.id", "b.title", "b.summary", "b.isbn", "b.author_id",
	).
		From("book_instances i").
		LeftJoin("books b ON b.id = i.book_id")
}

func (r *Repo) selectInstances(ctx context.Context, q sq.SelectBuilder) ([]book.Instance, error) {
	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("query book instances: %w", err)
	}
	defer rows.Close()

	instances := make([]book.Instance, 0)
	for rows.Next() {
		var (
			i                                 book.Instance
			status                            string
			dueBack                           sql.NullString
			bID, bTitle, bSummary, bISBN, bAu sql.NullString
		)
		if err := rows.Scan(&i.ID, &i.BookID, &i.Imprint, &status, &dueBack,
			&bID, &bTitle, &bSummary, &bISBN, &bAu); err != nil {
			return nil, fmt.Errorf("scan book instance: %w", err)
		}
		i.Status = book.Status(status)
		if i.DueBack, err = parseDate(dueBack); err != nil {
			return nil, fmt.Errorf("scan book instance %s: %w", i.ID, err)
		}
		if bID.Valid {
			i.Book = &book.Book{
				ID:       bID.String,
				Title:    bTitle.String,
				Summary:  bSummary.String,
				ISBN:     bISBN.String,
				AuthorID: bAu.String,
			}
		}
		instances = append(instances, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book instances: %w", err)
	}
	return instances, nil
}

func (r *Repo) ListInstances(ctx context.Context) ([]book.Instance, error) {
	return r.selectInstances(ctx, r.instancesFrom())
}

func (r *Repo) GetInstanceByID(ctx context.Context, id string) (*book.Instance, error) {
	instances, err := r.selectInstances(ctx, r.instancesFrom().Where(sq.Eq{"i.id": id}))
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, ErrNotFound
	}
	return &instances[0], nil
}

// FindInstancesByBook returns every copy whose book field equals bookID
func (r *Repo) FindInstancesByBook(ctx context.Context, bookID string) ([]book.Instance, error) {
	return r.selectInstances(ctx, r.instancesFrom().Where(sq.Eq{"i.book_id": bookID}))
}

func (r *Repo) CreateInstance(ctx context.Context, i book.Instance) (*book.Instance, error) {
	i.ID = uuid.NewString()
	i.Book = nil
	_, err := r.exec(ctx, r.db, r.sb.Insert("book_instances").
		Columns("id", "book_id", "imprint", "status", "due_back").
		Values(i.ID, i.BookID, i.Imprint, string(i.Status), nullableDate(i.DueBack)))
	if err != nil {
		return nil, fmt.Errorf("insert book instance: %w", mapWriteErr(err))
	}
	return &i, nil
}

func (r *Repo) UpdateInstance(ctx context.Context, id string, i book.Instance) (*book.Instance, error) {
	i.ID = id
	i.Book = nil
	res, err := r.exec(ctx, r.db, r.sb.Update("book_instances").
		Set("book_id", i.BookID).
		Set("imprint", i.Imprint).
		Set("status", string(i.Status)).
		Set("due_back", nullableDate(i.DueBack)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("update book instance %s: %w", id, mapWriteErr(err))
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *Repo) DeleteInstance(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, r.sb.Delete("book_instances").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete book instance %s: %w", id, err)
	}
	return affected(res)
}
