package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/htol/locallib/metrics"
	"github.com/htol/locallib/middleware"
	"github.com/htol/locallib/service"
	"github.com/htol/locallib/validator"
)

// NewHandler creates and returns the main HTTP handler (router) for the application
func NewHandler(svc *service.Service) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /catalog", viewHandler("Failed to summarize catalog", svc.Summary))

	// Authors
	mux.Handle("GET /catalog/authors", viewHandler("Failed to list authors", svc.ListAuthors))
	mux.Handle("POST /catalog/author/create", createHandler("Failed to create author", authorForm, validator.Author, svc.CreateAuthor))
	mux.Handle("GET /catalog/author/{id}", detailHandler("Failed to get author", svc.AuthorDetail))
	mux.Handle("GET /catalog/author/{id}/update", detailHandler("Failed to get author", svc.GetAuthor))
	mux.Handle("POST /catalog/author/{id}/update", updateHandler("Failed to update author", authorForm, validator.Author, svc.UpdateAuthor))
	mux.Handle("GET /catalog/author/{id}/delete", confirmHandler("Failed to load author", svc.AuthorDeleteConfirm))
	mux.Handle("POST /catalog/author/{id}/delete", deleteHandler("Failed to delete author", svc.DeleteAuthor))

	// Genres
	mux.Handle("GET /catalog/genres", viewHandler("Failed to list genres", svc.ListGenres))
	mux.Handle("POST /catalog/genre/create", createGenreHandler(svc))
	mux.Handle("GET /catalog/genre/{id}", detailHandler("Failed to get genre", svc.GenreDetail))
	mux.Handle("GET /catalog/genre/{id}/update", detailHandler("Failed to get genre", svc.GetGenre))
	mux.Handle("POST /catalog/genre/{id}/update", updateHandler("Failed to update genre", genreForm, validator.Genre, svc.UpdateGenre))
	mux.Handle("GET /catalog/genre/{id}/delete", confirmHandler("Failed to load genre", svc.GenreDeleteConfirm))
	mux.Handle("POST /catalog/genre/{id}/delete", deleteHandler("Failed to delete genre", svc.DeleteGenre))

	// Books
	mux.Handle("GET /catalog/books", viewHandler("Failed to list books", svc.ListBooks))
	mux.Handle("POST /catalog/book/create", createHandler("Failed to create book", bookForm, validator.Book, svc.CreateBook))
	mux.Handle("GET /catalog/book/{id}", detailHandler("Failed to get book", svc.BookDetail))
	mux.Handle("GET /catalog/book/{id}/update", detailHandler("Failed to get book", svc.GetBook))
	mux.Handle("POST /catalog/book/{id}/update", updateHandler("Failed to update book", bookForm, validator.Book, svc.UpdateBook))

	// Book instances
	mux.Handle("GET /catalog/bookinstances", viewHandler("Failed to list book instances", svc.ListInstances))
	mux.Handle("GET /catalog/bookinstance/create", viewHandler("Failed to load book choices", svc.InstanceFormChoices))
	mux.Handle("POST /catalog/bookinstance/create", createHandler("Failed to create book instance", instanceForm, validator.Instance, svc.CreateInstance))
	mux.Handle("GET /catalog/bookinstance/{id}", detailHandler("Failed to get book instance", svc.InstanceDetail))
	mux.Handle("GET /catalog/bookinstance/{id}/update", detailHandler("Failed to get book instance", svc.InstanceDetail))
	mux.Handle("POST /catalog/bookinstance/{id}/update", updateHandler("Failed to update book instance", instanceForm, validator.Instance, svc.UpdateInstance))
	mux.Handle("GET /catalog/bookinstance/{id}/delete", confirmHandler("Failed to load book instance", svc.InstanceDeleteConfirm))
	mux.Handle("POST /catalog/bookinstance/{id}/delete", deleteInstanceHandler(svc))

	mux.Handle("GET /{$}", http.RedirectHandler("/catalog", http.StatusFound))
	mux.HandleFunc("GET /health", healthCheckHandler(svc))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Apply middleware chain
	chain := middleware.Chain(
		middleware.Recovery,
		withCORS,
		middleware.Logger,
		middleware.RequestID,
		middleware.Metrics,
	)

	return chain(mux)
}
