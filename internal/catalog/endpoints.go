package catalog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
)

// Pagination describes one page of a listing
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// CategoryQuery filters the flat category listing
type CategoryQuery struct {
	Search   string
	IsActive *bool
	Page     int
	PageSize int
}

// CategoryPage is one page of categories
type CategoryPage struct {
	Categories []taxonomy.Category `json:"categories"`
	Pagination Pagination          `json:"pagination"`
}

// CategoryTree is the nested forest returned by the tree endpoint
type CategoryTree struct {
	Tree        []*taxonomy.Node `json:"tree"`
	Total       int              `json:"total"`
	ExpandedIDs []int64          `json:"expanded_ids"`
}

// ListedProduct is a product with the actions its status allows
type ListedProduct struct {
	curation.Product
	AvailableActions []curation.Action `json:"available_actions"`
}

// ProductPage is one page of scraped products
type ProductPage struct {
	Products   []ListedProduct `json:"products"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// StatusUpdate is the body of a single product status change
type StatusUpdate struct {
	Status         curation.Status `json:"status"`
	Brand          string          `json:"brand,omitempty"`
	Category       string          `json:"category,omitempty"`
	BrandValidated *bool           `json:"brand_validated,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// BulkRequest applies one action to many products
type BulkRequest struct {
	Action            curation.Action `json:"action"`
	ProductIDs        []string        `json:"product_ids"`
	Brand             string          `json:"brand,omitempty"`
	Category          string          `json:"category,omitempty"`
	CurationNotes     *string         `json:"curation_notes,omitempty"`
	ConfirmationToken string          `json:"confirmation_token,omitempty"`
}

// ActionResult is the reply to curate and bulk submissions. A JobID means
// the outcome has to be polled; otherwise the counts are final.
type ActionResult struct {
	Success    bool   `json:"success"`
	JobID      string `json:"job_id,omitempty"`
	Successful *int   `json:"successful,omitempty"`
	Failed     *int   `json:"failed,omitempty"`
	Skipped    int    `json:"skipped,omitempty"`
}

// Async reports whether a background job was created
func (r *ActionResult) Async() bool {
	return r.JobID != ""
}

// SourceStats counts products per status for one scrape source
type SourceStats struct {
	Source string         `json:"source"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

type jobEnvelope struct {
	Job *jobs.CurationJob `json:"job"`
}

// ListCategories fetches one page of the flat category listing
func (c *Client) ListCategories(ctx context.Context, q CategoryQuery) (*CategoryPage, error) {
	req := c.request(ctx)
	if q.Search != "" {
		req.SetQueryParam("search", q.Search)
	}
	if q.IsActive != nil {
		req.SetQueryParam("is_active", strconv.FormatBool(*q.IsActive))
	}
	if q.Page > 0 {
		req.SetQueryParam("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		req.SetQueryParam("page_size", strconv.Itoa(q.PageSize))
	}

	var page CategoryPage
	if _, err := c.do(req.SetResult(&page), http.MethodGet, "/api/pim/categories"); err != nil {
		return nil, err
	}
	return &page, nil
}

// CategoryTree fetches the nested category forest
func (c *Client) CategoryTree(ctx context.Context, search string, expandAll bool) (*CategoryTree, error) {
	req := c.request(ctx)
	if search != "" {
		req.SetQueryParam("search", search)
	}
	if expandAll {
		req.SetQueryParam("expand", "all")
	}

	var tree CategoryTree
	if _, err := c.do(req.SetResult(&tree), http.MethodGet, "/api/pim/categories/tree"); err != nil {
		return nil, err
	}
	return &tree, nil
}

// DeleteCategory removes a leaf category
func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	req := c.request(ctx).SetPathParam("id", strconv.FormatInt(id, 10))
	_, err := c.do(req, http.MethodDelete, "/api/pim/categories/{id}")
	return err
}

// ListProducts fetches the page of products matching criteria
func (c *Client) ListProducts(ctx context.Context, criteria filter.Criteria) (*ProductPage, error) {
	var page ProductPage
	req := c.request(ctx).SetQueryParamsFromValues(criteria.Values()).SetResult(&page)
	if _, err := c.do(req, http.MethodGet, "/api/scraper/products"); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetCurationStatus moves one product to update.Status
func (c *Client) SetCurationStatus(ctx context.Context, productID string, update StatusUpdate) error {
	req := c.request(ctx).
		SetPathParam("id", productID).
		SetBody(update)
	_, err := c.do(req, http.MethodPatch, "/api/scraper/products/{id}/curation-status")
	return err
}

// Curate sends products to the AI curation pipeline
func (c *Client) Curate(ctx context.Context, productIDs []string, notes *string) (*ActionResult, error) {
	body := map[string]any{"product_ids": productIDs}
	if notes != nil {
		body["curation_notes"] = *notes
	}

	var result ActionResult
	req := c.request(ctx).SetBody(body).SetResult(&result)
	if _, err := c.do(req, http.MethodPost, "/api/scraper/products/curate"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Bulk applies one action to many products
func (c *Client) Bulk(ctx context.Context, bulk BulkRequest) (*ActionResult, error) {
	var result ActionResult
	req := c.request(ctx).SetBody(bulk).SetResult(&result)
	if _, err := c.do(req, http.MethodPost, "/api/scraper/products/bulk"); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestDeleteConfirmation obtains the single-use token a bulk delete of
// exactly productIDs needs
func (c *Client) RequestDeleteConfirmation(ctx context.Context, productIDs []string) (string, error) {
	var result struct {
		Token string `json:"confirmation_token"`
	}
	req := c.request(ctx).
		SetBody(map[string]any{"product_ids": productIDs}).
		SetResult(&result)
	if _, err := c.do(req, http.MethodPost, "/api/scraper/products/bulk/confirmation"); err != nil {
		return "", err
	}
	return result.Token, nil
}

// GetJob fetches a curation job. It satisfies jobs.StatusFetcher so a
// Poller can watch jobs over HTTP.
func (c *Client) GetJob(ctx context.Context, jobID string) (*jobs.CurationJob, error) {
	var envelope jobEnvelope
	req := c.request(ctx).
		SetPathParam("jobID", jobID).
		SetResult(&envelope)
	if _, err := c.do(req, http.MethodGet, "/api/scraper/products/curation-jobs/{jobID}"); err != nil {
		return nil, err
	}
	if envelope.Job == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "response carried no job"}
	}
	if envelope.Job.ID == "" {
		envelope.Job.ID = jobID
	}
	return envelope.Job, nil
}

// CancelJob cancels a job that has not started
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	req := c.request(ctx).SetPathParam("jobID", jobID)
	_, err := c.do(req, http.MethodDelete, "/api/scraper/products/curation-jobs/{jobID}")
	return err
}

// SourceStats fetches per-source status counts
func (c *Client) SourceStats(ctx context.Context) ([]SourceStats, error) {
	var result struct {
		Sources []SourceStats `json:"sources"`
	}
	if _, err := c.do(c.request(ctx).SetResult(&result), http.MethodGet, "/api/scraper/sources/stats"); err != nil {
		return nil, err
	}
	return result.Sources, nil
}

var _ jobs.StatusFetcher = (*Client)(nil)
