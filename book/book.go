// Package book holds the catalog's domain records
package book

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the storage and form format for calendar dates
const DateLayout = "2006-01-02"

type Author struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	FamilyName  string     `json:"family_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time `json:"date_of_death,omitempty"`
}

// Name returns "Family, First"
func (a Author) Name() string {
	return a.FamilyName + ", " + a.FirstName
}

// Lifespan renders the author's dates, e.g. "March 3rd, 1920 - Present"
func (a Author) Lifespan() string {
	if a.DateOfBirth == nil {
		return "Unknown"
	}
	born := longDate(*a.DateOfBirth)
	if a.DateOfDeath == nil {
		return born + " - Present"
	}
	return born + " - " + longDate(*a.DateOfDeath)
}

func (a Author) URL() string {
	return "/catalog/author/" + a.ID
}

// MarshalJSON adds the derived name, lifespan and url to the stored fields
func (a Author) MarshalJSON() ([]byte, error) {
	type stored Author
	return json.Marshal(struct {
		stored
		Name     string `json:"name"`
		Lifespan string `json:"lifespan"`
		URL      string `json:"url"`
	}{stored(a), a.Name(), a.Lifespan(), a.URL()})
}

type Genre struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (g Genre) URL() string {
	return "/catalog/genre/" + g.ID
}

func (g Genre) MarshalJSON() ([]byte, error) {
	type stored Genre
	return json.Marshal(struct {
		stored
		URL string `json:"url"`
	}{stored(g), g.URL()})
}

type Book struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	ISBN     string   `json:"isbn"`
	AuthorID string   `json:"author"`
	GenreIDs []string `json:"genre"`
}

func (b Book) URL() string {
	return "/catalog/book/" + b.ID
}

func (b Book) MarshalJSON() ([]byte, error) {
	type stored Book
	return json.Marshal(struct {
		stored
		URL string `json:"url"`
	}{stored(b), b.URL()})
}

// Instance is a physical, loanable copy of a Book
type Instance struct {
	ID      string     `json:"id"`
	BookID  string     `json:"book_id"`
	Book    *Book      `json:"book,omitempty"` // populated by joined lookups only
	Imprint string     `json:"imprint"`
	Status  Status     `json:"status"`
	DueBack *time.Time `json:"due_back,omitempty"`
}

func (i Instance) URL() string {
	return "/catalog/bookinstance/" + i.ID
}

// DueBackFormatted returns the due date as YYYY-MM-DD or an empty string
func (i Instance) DueBackFormatted() string {
	return FormatDate(i.DueBack)
}

func (i Instance) MarshalJSON() ([]byte, error) {
	type stored Instance
	return json.Marshal(struct {
		stored
		DueBackFormatted string `json:"due_back_formatted"`
		URL              string `json:"url"`
	}{stored(i), i.DueBackFormatted(), i.URL()})
}

// FormatDate formats an optional date with DateLayout
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

func longDate(t time.Time) string {
	return fmt.Sprintf("%s %s, %d", t.Month(), ordinal(t.Day()), t.Year())
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
