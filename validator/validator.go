// Package validator turns raw form fields into normalized catalog records.
// Values are trimmed and HTML-escaped; failures are reported per field.
package validator

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/htol/locallib/book"
)

var (
	// ErrEmptyString is returned when a required string parameter is empty
	ErrEmptyString = errors.New("string cannot be empty")
	// ErrNotAlphanumeric is returned when a name contains anything but letters and digits
	ErrNotAlphanumeric = errors.New("has non-alphanumeric characters")
	// ErrInvalidDate is returned for dates that are not ISO 8601
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidID is returned for malformed record identifiers
	ErrInvalidID = errors.New("invalid id")
)

// FieldError describes one rejected form field
type FieldError struct {
	Field   string `json:"param"`
	Value   string `json:"value"`
	Message string `json:"msg"`
}

// Errors is the list of field errors for one form submission
type Errors []FieldError

func (e Errors) Error() string {
	msgs := lo.Map(e, func(fe FieldError, _ int) string { return fe.Field + ": " + fe.Message })
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *Errors) add(field, value, msg string) {
	*e = append(*e, FieldError{Field: field, Value: value, Message: msg})
}

// ValidateNonEmpty validates that a string is not empty
func ValidateNonEmpty(s string) error {
	if s == "" {
		return ErrEmptyString
	}
	return nil
}

// ValidateAlphanumeric validates that s holds only letters and digits
func ValidateAlphanumeric(s string) error {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("%w: got '%c'", ErrNotAlphanumeric, r)
		}
	}
	return nil
}

// ValidateID validates that id is a well-formed record identifier
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ParseDate parses an optional ISO 8601 date; empty input yields nil.
// Full timestamps are accepted and truncated to their calendar date.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{book.DateLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// sanitize trims and escapes a text field
func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

type AuthorForm struct {
	FirstName   string `json:"first_name"`
	FamilyName  string `json:"family_name"`
	DateOfBirth string `json:"date_of_birth"`
	DateOfDeath string `json:"date_of_death"`
}

// Author validates an author form
func Author(f AuthorForm) (book.Author, Errors) {
	var errs Errors
	a := book.Author{
		FirstName:  strings.TrimSpace(f.FirstName),
		FamilyName: strings.TrimSpace(f.FamilyName),
	}

	name := func(field, label, value string) {
		if ValidateNonEmpty(value) != nil {
			errs.add(field, value, label+" must be specified.")
			return
		}
		if ValidateAlphanumeric(value) != nil {
			errs.add(field, value, label+" has non-alphanumeric characters.")
		}
	}
	name("first_name", "First name", a.FirstName)
	name("family_name", "Family name", a.FamilyName)
	a.FirstName = sanitize(a.FirstName)
	a.FamilyName = sanitize(a.FamilyName)

	var err error
	if a.DateOfBirth, err = ParseDate(strings.TrimSpace(f.DateOfBirth)); err != nil {
		errs.add("date_of_birth", f.DateOfBirth, "Invalid date of birth.")
	}
	if a.DateOfDeath, err = ParseDate(strings.TrimSpace(f.DateOfDeath)); err != nil {
		errs.add("date_of_death", f.DateOfDeath, "Invalid date of death.")
	}

	return a, errs
}

type GenreForm struct {
	Name string `json:"name"`
}

// Genre validates a genre form
func Genre(f GenreForm) (book.Genre, Errors) {
	var errs Errors
	g := book.Genre{Name: sanitize(f.Name)}
	if ValidateNonEmpty(g.Name) != nil {
		errs.add("name", f.Name, "Genre name required")
	}
	return g, errs
}

type BookForm struct {
	Title   string   `json:"title"`
	Author  string   `json:"author"`
	Summary string   `json:"summary"`
	ISBN    string   `json:"isbn"`
	Genre   []string `json:"genre"`
}

// Book validates a book form. Genre ids are de-duplicated and blanks dropped.
func Book(f BookForm) (book.Book, Errors) {
	var errs Errors
	b := book.Book{
		Title:    sanitize(f.Title),
		Summary:  sanitize(f.Summary),
		ISBN:     sanitize(f.ISBN),
		AuthorID: strings.TrimSpace(f.Author),
	}

	if ValidateNonEmpty(b.Title) != nil {
		errs.add("title", f.Title, "Title must not be empty.")
	}
	if ValidateNonEmpty(b.AuthorID) != nil {
		errs.add("author", f.Author, "Author must not be empty.")
	} else if ValidateID(b.AuthorID) != nil {
		errs.add("author", f.Author, "Author is not a valid reference.")
	}
	if ValidateNonEmpty(b.Summary) != nil {
		errs.add("summary", f.Summary, "Summary must not be empty.")
	}
	if ValidateNonEmpty(b.ISBN) != nil {
		errs.add("isbn", f.ISBN, "ISBN must not be empty.")
	}

	ids := lo.Map(f.Genre, func(s string, _ int) string { return strings.TrimSpace(s) })
	b.GenreIDs = lo.Uniq(lo.Compact(ids))
	for _, id := range b.GenreIDs {
		if ValidateID(id) != nil {
			errs.add("genre", id, "Genre is not a valid reference.")
		}
	}

	return b, errs
}

type InstanceForm struct {
	Book    string `json:"book"`
	Imprint string `json:"imprint"`
	Status  string `json:"status"`
	DueBack string `json:"due_back"`
}

// Instance validates a book copy form. An empty status defaults to book.DefaultStatus.
func Instance(f InstanceForm) (book.Instance, Errors) {
	var errs Errors
	i := book.Instance{
		BookID:  strings.TrimSpace(f.Book),
		Imprint: sanitize(f.Imprint),
		Status:  book.DefaultStatus,
	}

	if ValidateNonEmpty(i.BookID) != nil {
		errs.add("book", f.Book, "Book must be specified")
	} else if ValidateID(i.BookID) != nil {
		errs.add("book", f.Book, "Book is not a valid reference.")
	}
	if ValidateNonEmpty(i.Imprint) != nil {
		errs.add("imprint", f.Imprint, "Imprint must be specified")
	}

	if s := strings.TrimSpace(f.Status); s != "" {
		st, err := book.ParseStatus(s)
		if err != nil {
			errs.add("status", f.Status, "Status must be one of "+strings.Join(lo.Map(book.Statuses(), func(s book.Status, _ int) string { return string(s) }), ", "))
		} else {
			i.Status = st
		}
	}

	var err error
	if i.DueBack, err = ParseDate(strings.TrimSpace(f.DueBack)); err != nil {
		errs.add("due_back", f.DueBack, "Invalid date")
	}

	return i, errs
}
