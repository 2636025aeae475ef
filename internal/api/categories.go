package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/db"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
)

// CategoryRequest is the body of category create and update
type CategoryRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Slug        *string `json:"slug,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ParentID    *int64  `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
	IsActive    *bool   `json:"is_active,omitempty"`
	SortOrder   int     `json:"sort_order" validate:"gte=0"`
}

func (req CategoryRequest) input() db.CategoryInput {
	in := db.CategoryInput{
		Name:        strings.TrimSpace(req.Name),
		Slug:        req.Slug,
		Description: req.Description,
		ParentID:    req.ParentID,
		IsActive:    true,
		SortOrder:   req.SortOrder,
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	return in
}

// CategoryListResponse is one page of the flat category listing
type CategoryListResponse struct {
	Categories []taxonomy.Category `json:"categories"`
	Pagination Pagination          `json:"pagination"`
}

// CategoryTreeResponse is the nested category forest
type CategoryTreeResponse struct {
	Tree        []*taxonomy.Node `json:"tree"`
	Total       int              `json:"total"`
	ExpandedIDs []int64          `json:"expanded_ids"`
}

// ListCategories handles GET /api/pim/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	params, err := parseCategoryParams(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	page, err := h.Categories.ListCategories(r.Context(), params)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	categories := page.Categories
	if categories == nil {
		categories = []taxonomy.Category{}
	}
	WriteJSON(w, r, CategoryListResponse{
		Categories: categories,
		Pagination: newPagination(page.Total, params.Page, params.PageSize),
	}, http.StatusOK)
}

func parseCategoryParams(r *http.Request) (db.CategoryListParams, error) {
	q := r.URL.Query()
	params := db.CategoryListParams{
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     1,
		PageSize: filter.DefaultPageSize,
	}

	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return params, apperr.Validation("is_active", "must be true or false")
		}
		params.IsActive = &active
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return params, apperr.Validation("page", "must be at least 1")
		}
		params.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > filter.MaxPageSize {
			return params, apperr.Validation("page_size", "must be between 1 and 100")
		}
		params.PageSize = size
	}
	return params, nil
}

// CategoryTree handles GET /api/pim/categories/tree. A search keeps matches
// with their ancestry and expands everything left so matches are visible.
func (h *Handler) CategoryTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	all, err := h.Categories.AllCategories(r.Context())
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	tree := taxonomy.BuildTree(all)
	if q.Get("active") == "true" {
		tree = taxonomy.FilterActive(tree)
	}
	search := strings.TrimSpace(q.Get("search"))
	if search != "" {
		tree = taxonomy.Filter(tree, search)
	}

	expanded := taxonomy.NewExpandedSet()
	if search != "" || q.Get("expand") == "all" {
		expanded.ExpandAll(tree)
	}

	if tree == nil {
		tree = []*taxonomy.Node{}
	}
	WriteJSON(w, r, CategoryTreeResponse{
		Tree:        tree,
		Total:       taxonomy.Count(tree),
		ExpandedIDs: expanded.IDs(),
	}, http.StatusOK)
}

// GetCategory handles GET /api/pim/categories/{id}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	category, err := h.Categories.GetCategory(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, r, category, http.StatusOK)
}

// CreateCategory handles POST /api/pim/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		WriteAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		WriteAppError(w, r, apperr.Validation("name", "is required"))
		return
	}

	category, err := h.Categories.CreateCategory(r.Context(), req.input())
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	logger := loggerWithRequest(r)
	logger.Info().Int64("category_id", category.ID).Msg("Category created via API")
	WriteJSON(w, r, category, http.StatusCreated)
}

// UpdateCategory handles PUT /api/pim/categories/{id}
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	var req CategoryRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		WriteAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		WriteAppError(w, r, apperr.Validation("name", "is required"))
		return
	}

	category, err := h.Categories.UpdateCategory(r.Context(), id, req.input())
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, r, category, http.StatusOK)
}

// DeleteCategory handles DELETE /api/pim/categories/{id}
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	if err := h.Categories.DeleteCategory(r.Context(), id); err != nil {
		WriteAppError(w, r, err)
		return
	}

	logger := loggerWithRequest(r)
	logger.Info().Int64("category_id", id).Msg("Category deleted via API")
	WriteNoContent(w, r)
}
