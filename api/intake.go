package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"golang.org/x/net/html/charset"

	"github.com/htol/locallib/validator"
)

const maxFormBytes = 1 << 20

// decodeForm fills form from a JSON body or, for any other content type, from
// urlencoded fields. JSON bodies in a non-UTF-8 charset are transcoded first.
func decodeForm[F any](w http.ResponseWriter, r *http.Request, fromValues func(url.Values) F) (F, error) {
	var form F
	contentType := r.Header.Get("Content-Type")
	body := http.MaxBytesReader(w, r.Body, maxFormBytes)

	if mt, _, _ := mime.ParseMediaType(contentType); mt == "application/json" {
		utf8Body, err := charset.NewReader(body, contentType)
		if err != nil {
			return form, fmt.Errorf("decode charset: %w", err)
		}
		if err := json.NewDecoder(utf8Body).Decode(&form); err != nil {
			return form, fmt.Errorf("decode json: %w", err)
		}
		return form, nil
	}

	r.Body = body
	if err := r.ParseForm(); err != nil {
		return form, fmt.Errorf("parse form: %w", err)
	}
	return fromValues(r.PostForm), nil
}

func authorForm(v url.Values) validator.AuthorForm {
	return validator.AuthorForm{
		FirstName:   v.Get("first_name"),
		FamilyName:  v.Get("family_name"),
		DateOfBirth: v.Get("date_of_birth"),
		DateOfDeath: v.Get("date_of_death"),
	}
}

func genreForm(v url.Values) validator.GenreForm {
	return validator.GenreForm{Name: v.Get("name")}
}

// bookForm reads genre as a repeated field, e.g. genre=a&genre=b
func bookForm(v url.Values) validator.BookForm {
	return validator.BookForm{
		Title:   v.Get("title"),
		Author:  v.Get("author"),
		Summary: v.Get("summary"),
		ISBN:    v.Get("isbn"),
		Genre:   v["genre"],
	}
}

func instanceForm(v url.Values) validator.InstanceForm {
	return validator.InstanceForm{
		Book:    v.Get("book"),
		Imprint: v.Get("imprint"),
		Status:  v.Get("status"),
		DueBack: v.Get("due_back"),
	}
}
