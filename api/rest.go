package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/htol/locallib/book"
	"github.com/htol/locallib/logger"
	"github.com/htol/locallib/service"
	"github.com/htol/locallib/validator"
)

// located is a stored record that knows its own detail page
type located interface {
	URL() string
}

// viewHandler serves a list or a page that takes no id
func viewHandler[T any](message string, load func(context.Context) (T, error)) http.Handler {
	hf := func(w http.ResponseWriter, r *http.Request) {
		view, err := load(r.Context())
		if err != nil {
			respondWithServiceError(w, message, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
	}
	return http.HandlerFunc(hf)
}

func detailHandler[T any](message string, load func(context.Context, string) (T, error)) http.Handler {
	hf := func(w http.ResponseWriter, r *http.Request) {
		detail, err := load(r.Context(), r.PathValue("id"))
		if err != nil {
			respondWithServiceError(w, message, err)
			return
		}
		respondJSON(w, http.StatusOK, detail)
	}
	return http.HandlerFunc(hf)
}

// formHandler validates the submitted form, stores the record and redirects to it
func formHandler[F any, R located](
	message string,
	fromValues func(url.Values) F,
	validate func(F) (R, validator.Errors),
	save func(*http.Request, R) (*R, error),
) http.Handler {
	hf := func(w http.ResponseWriter, r *http.Request) {
		form, err := decodeForm(w, r, fromValues)
		if err != nil {
			respondWithError(w, "malformed request body", err, http.StatusBadRequest)
			return
		}
		rec, errs := validate(form)
		if len(errs) > 0 {
			respondWithValidationError(w, errs)
			return
		}
		saved, err := save(r, rec)
		if err != nil {
			respondWithServiceError(w, message, err)
			return
		}
		redirect(w, r, (*saved).URL())
	}
	return http.HandlerFunc(hf)
}

func createHandler[F any, R located](
	message string,
	fromValues func(url.Values) F,
	validate func(F) (R, validator.Errors),
	save func(context.Context, R) (*R, error),
) http.Handler {
	return formHandler(message, fromValues, validate, func(r *http.Request, rec R) (*R, error) {
		return save(r.Context(), rec)
	})
}

// updateHandler replaces the record addressed by {id}
func updateHandler[F any, R located](
	message string,
	fromValues func(url.Values) F,
	validate func(F) (R, validator.Errors),
	save func(context.Context, string, R) (*R, error),
) http.Handler {
	return formHandler(message, fromValues, validate, func(r *http.Request, rec R) (*R, error) {
		return save(r.Context(), r.PathValue("id"), rec)
	})
}

// confirmHandler renders what a delete would affect or redirects when the record is gone
func confirmHandler[T any](message string, load func(context.Context, string) (service.Confirm[T], error)) http.Handler {
	hf := func(w http.ResponseWriter, r *http.Request) {
		c, err := load(r.Context(), r.PathValue("id"))
		if err != nil {
			respondWithServiceError(w, message, err)
			return
		}
		if c.Detail == nil {
			redirect(w, r, c.Redirect)
			return
		}
		respondJSON(w, http.StatusOK, c.Detail)
	}
	return http.HandlerFunc(hf)
}

// deleteHandler runs a delete policy. Dependent failures are reported with the
// result so the client can see what was and was not cleaned up.
func deleteHandler(message string, del func(context.Context, string) (*service.DeleteResult, error)) http.Handler {
	hf := func(w http.ResponseWriter, r *http.Request) {
		res, err := del(r.Context(), r.PathValue("id"))
		var cerr *service.CascadeError
		if errors.As(err, &cerr) {
			logger.Error(message, "error", err, "failures", len(cerr.Failures))
			respondJSON(w, http.StatusInternalServerError, map[string]any{
				"error":  cerr.Error(),
				"result": res,
			})
			return
		}
		if err != nil {
			respondWithServiceError(w, message, err)
			return
		}
		redirect(w, r, res.Redirect)
	}
	return http.HandlerFunc(hf)
}

func deleteInstanceHandler(svc *service.Service) http.Handler {
	return deleteHandler("Failed to delete book instance", func(ctx context.Context, id string) (*service.DeleteResult, error) {
		target, err := svc.DeleteInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		return &service.DeleteResult{Redirect: target, Found: true}, nil
	})
}

// createGenreHandler redirects to the existing genre when the name is already taken
func createGenreHandler(svc *service.Service) http.Handler {
	return createHandler("Failed to create genre", genreForm, validator.Genre,
		func(ctx context.Context, g book.Genre) (*book.Genre, error) {
			stored, created, err := svc.CreateOrGetGenre(ctx, g)
			if err == nil && !created {
				logger.Debug("Genre exists, reusing", "name", g.Name, "id", stored.ID)
			}
			return stored, err
		})
}

func healthCheckHandler(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ping(r.Context()); err != nil {
			respondWithError(w, "unhealthy", err, http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
