// Package api serves the backoffice HTTP interface: the category admin under
// /api/pim and the scraped product curation endpoints under /api/scraper.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/cache"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/db"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Version is the current API version
var Version = "0.3.0"

const maxBodyBytes = 1 << 20

// CategoryStore is the category persistence the handlers need
type CategoryStore interface {
	ListCategories(ctx context.Context, params db.CategoryListParams) (*db.CategoryPage, error)
	AllCategories(ctx context.Context) ([]taxonomy.Category, error)
	GetCategory(ctx context.Context, id int64) (*taxonomy.Category, error)
	CreateCategory(ctx context.Context, in db.CategoryInput) (*taxonomy.Category, error)
	UpdateCategory(ctx context.Context, id int64, in db.CategoryInput) (*taxonomy.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// ProductStore serves the read side of scraped products
type ProductStore interface {
	ListProducts(ctx context.Context, c filter.Criteria) (*db.ProductPage, error)
	SourceStats(ctx context.Context) ([]db.SourceStats, error)
}

// CurationService applies status transitions
type CurationService interface {
	Apply(ctx context.Context, action curation.Action, productIDs []string, payload curation.Payload) (*curation.Outcome, error)
	TransitionTo(ctx context.Context, productID string, target curation.Status, payload curation.Payload) (*curation.Outcome, error)
	RequestConfirmation(productIDs []string) (string, error)
}

// JobService looks up and cancels curation jobs
type JobService interface {
	GetJob(ctx context.Context, jobID string) (*jobs.CurationJob, error)
	CancelJob(ctx context.Context, jobID string) error
	JobQueued(jobID string)
}

// Pinger checks database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all HTTP handler dependencies
type Handler struct {
	Categories CategoryStore
	Products   ProductStore
	Curation   CurationService
	Jobs       JobService
	DB         Pinger
	// Cache is optional; listings are read straight from the store without it.
	Cache    *cache.InMemoryCache
	validate *validator.Validate
}

// NewHandler creates a new API handler
func NewHandler(categories CategoryStore, products ProductStore, coordinator CurationService, jobService JobService, pinger Pinger, responseCache *cache.InMemoryCache) *Handler {
	return &Handler{
		Categories: categories,
		Products:   products,
		Curation:   coordinator,
		Jobs:       jobService,
		DB:         pinger,
		Cache:      responseCache,
		validate:   apperr.NewValidator(),
	}
}

// Routes builds the router for every endpoint
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, r, "Route not found")
	})
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", h.HealthCheck)
	r.Get("/health/db", h.DatabaseHealthCheck)

	r.Route("/api/pim/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Get("/tree", h.CategoryTree)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCategory)
			r.Put("/", h.UpdateCategory)
			r.Delete("/", h.DeleteCategory)
		})
	})

	r.Route("/api/scraper", func(r chi.Router) {
		r.Get("/sources/stats", h.SourceStats)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/curate", h.CurateProducts)
			r.Post("/bulk", h.BulkAction)
			r.Post("/bulk/confirmation", h.BulkConfirmation)
			r.Get("/curation-jobs/{jobID}", h.GetCurationJob)
			r.Delete("/curation-jobs/{jobID}", h.CancelCurationJob)
			r.Patch("/{id}/curation-status", h.UpdateCurationStatus)
		})
	})

	return r
}

// HealthCheck handles service health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteHealthy(w, r, "catalog-backoffice", Version)
}

// DatabaseHealthCheck pings PostgreSQL
func (h *Handler) DatabaseHealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		WriteUnhealthy(w, r, "postgresql", fmt.Errorf("database connection not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		WriteUnhealthy(w, r, "postgresql", err)
		return
	}

	WriteHealthy(w, r, "postgresql", "")
}

// decodeJSON reads a request body into dst and validates it
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "request body is required")
		}
		return apperr.Validation("body", "invalid JSON: "+err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.FromValidator(err)
	}
	return nil
}

// cached serves key from the response cache, loading it on a miss
func (h *Handler) cached(key string, load func() (any, error)) (any, error) {
	if h.Cache == nil {
		return load()
	}
	return h.Cache.GetOrLoad(key, load)
}

func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(name, fmt.Sprintf("must be a positive integer, got %q", raw))
	}
	return id, nil
}
