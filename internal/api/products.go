package api

import (
	"net/http"

	"github.com/Harvey-AU/catalog-backoffice/internal/cache"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/db"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/go-chi/chi/v5"
)

// ProductView is a product plus the actions its status allows
type ProductView struct {
	curation.Product
	AvailableActions []curation.Action `json:"available_actions"`
}

// ProductListResponse is one page of scraped products
type ProductListResponse struct {
	Products   []ProductView `json:"products"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// CurationStatusRequest is the body of PATCH .../curation-status. Brand and
// category are only read when the target is curated.
type CurationStatusRequest struct {
	Status         curation.Status `json:"status" validate:"required,oneof=pending processing curated rejected published"`
	Brand          string          `json:"brand,omitempty" validate:"max=255"`
	Category       string          `json:"category,omitempty" validate:"max=255"`
	BrandValidated *bool           `json:"brand_validated,omitempty"`
	Notes          *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// CurateRequest is the body of POST /api/scraper/products/curate
type CurateRequest struct {
	ProductIDs    []string `json:"product_ids" validate:"required,min=1,max=500,dive,required"`
	CurationNotes *string  `json:"curation_notes,omitempty" validate:"omitempty,max=2000"`
}

// BulkRequest is the body of POST /api/scraper/products/bulk
type BulkRequest struct {
	Action            curation.Action `json:"action" validate:"required,oneof=approve reject change_brand change_category send_to_ai delete"`
	ProductIDs        []string        `json:"product_ids" validate:"required,min=1,max=500,dive,required"`
	Brand             string          `json:"brand,omitempty" validate:"max=255"`
	Category          string          `json:"category,omitempty" validate:"max=255"`
	CurationNotes     *string         `json:"curation_notes,omitempty" validate:"omitempty,max=2000"`
	ConfirmationToken string          `json:"confirmation_token,omitempty"`
}

// ConfirmationRequest asks for a delete confirmation token
type ConfirmationRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,max=500,dive,required"`
}

// ActionResponse reports a bulk or curate submission. JobID is set when the
// work continues in the background; otherwise the counts are final.
type ActionResponse struct {
	Success    bool   `json:"success"`
	JobID      string `json:"job_id,omitempty"`
	Successful *int   `json:"successful,omitempty"`
	Failed     *int   `json:"failed,omitempty"`
	Skipped    int    `json:"skipped,omitempty"`
}

// CurationStatusResponse reports a single product transition
type CurationStatusResponse struct {
	Success bool            `json:"success"`
	Status  curation.Status `json:"status"`
	JobID   string          `json:"job_id,omitempty"`
}

// SourceStatsResponse lists status counts per scrape source
type SourceStatsResponse struct {
	Sources []db.SourceStats `json:"sources"`
}

// ListProducts handles GET /api/scraper/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	criteria, err := filter.ParseQuery(r.URL.Query())
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	key := cache.ProductsPrefix + criteria.Values().Encode()
	resp, err := h.cached(key, func() (any, error) {
		page, err := h.Products.ListProducts(r.Context(), criteria)
		if err != nil {
			return nil, err
		}
		return productListResponse(page, criteria), nil
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	WriteJSON(w, r, resp, http.StatusOK)
}

func productListResponse(page *db.ProductPage, c filter.Criteria) ProductListResponse {
	views := make([]ProductView, 0, len(page.Products))
	for _, p := range page.Products {
		views = append(views, ProductView{Product: p, AvailableActions: curation.AvailableActions(p.Status)})
	}
	return ProductListResponse{
		Products:   views,
		TotalCount: page.Total,
		Page:       c.Page,
		PageSize:   c.PageSize,
		TotalPages: totalPages(page.Total, c.PageSize),
	}
}

// UpdateCurationStatus handles PATCH /api/scraper/products/{id}/curation-status
func (h *Handler) UpdateCurationStatus(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var req CurationStatusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		WriteAppError(w, r, err)
		return
	}

	outcome, err := h.Curation.TransitionTo(r.Context(), productID, req.Status, curation.Payload{
		Brand:          req.Brand,
		Category:       req.Category,
		BrandValidated: req.BrandValidated,
		Notes:          req.Notes,
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	resp := CurationStatusResponse{Success: true, Status: req.Status}
	if outcome.Job != nil {
		resp.JobID = outcome.Job.JobID
		h.Jobs.JobQueued(outcome.Job.JobID)
	}
	WriteJSON(w, r, resp, http.StatusOK)
}

// CurateProducts handles POST /api/scraper/products/curate. Eligible
// products are handed to the AI worker pool as one job.
func (h *Handler) CurateProducts(w http.ResponseWriter, r *http.Request) {
	var req CurateRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		WriteAppError(w, r, err)
		return
	}

	outcome, err := h.Curation.Apply(r.Context(), curation.ActionSendToAI, req.ProductIDs, curation.Payload{
		Notes: req.CurationNotes,
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	h.writeOutcome(w, r, outcome)
}

// BulkAction handles POST /api/scraper/products/bulk
func (h *Handler) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		WriteAppError(w, r, err)
		return
	}

	outcome, err := h.Curation.Apply(r.Context(), req.Action, req.ProductIDs, curation.Payload{
		Brand:             req.Brand,
		Category:          req.Category,
		Notes:             req.CurationNotes,
		ConfirmationToken: req.ConfirmationToken,
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	h.writeOutcome(w, r, outcome)
}

func (h *Handler) writeOutcome(w http.ResponseWriter, r *http.Request, outcome *curation.Outcome) {
	if outcome.Job != nil {
		h.Jobs.JobQueued(outcome.Job.JobID)
		WriteJSON(w, r, ActionResponse{
			Success: true,
			JobID:   outcome.Job.JobID,
			Skipped: outcome.Job.Skipped,
		}, http.StatusAccepted)
		return
	}

	successful, failed := outcome.Sync.Successful, outcome.Sync.Failed
	WriteJSON(w, r, ActionResponse{
		Success:    true,
		Successful: &successful,
		Failed:     &failed,
	}, http.StatusOK)
}

// BulkConfirmation handles POST /api/scraper/products/bulk/confirmation. The
// token authorises one delete of exactly these products.
func (h *Handler) BulkConfirmation(w http.ResponseWriter, r *http.Request) {
	var req ConfirmationRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		WriteAppError(w, r, err)
		return
	}

	token, err := h.Curation.RequestConfirmation(req.ProductIDs)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	WriteJSON(w, r, map[string]string{"confirmation_token": token}, http.StatusCreated)
}

// SourceStats handles GET /api/scraper/sources/stats
func (h *Handler) SourceStats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.cached(cache.StatsPrefix+"all", func() (any, error) {
		stats, err := h.Products.SourceStats(r.Context())
		if err != nil {
			return nil, err
		}
		if stats == nil {
			stats = []db.SourceStats{}
		}
		return SourceStatsResponse{Sources: stats}, nil
	})
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	WriteJSON(w, r, resp, http.StatusOK)
}
