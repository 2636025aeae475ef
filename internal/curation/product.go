// Package curation owns the lifecycle of scraped products: the status
// machine that decides which actions are legal, the bulk coordinator that
// applies one action to many products, and the selection set the bulk
// actions are taken from.
package curation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the single authoritative curation state of a scraped product.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCurated    Status = "curated"
	StatusRejected   Status = "rejected"
	StatusPublished  Status = "published"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCurated, StatusRejected, StatusPublished}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no default transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// CuratedData holds curator (or AI) decisions layered over the scraped values.
type CuratedData struct {
	BrandName      *string `json:"brand_name,omitempty"`
	CategoryName   *string `json:"category_name,omitempty"`
	BrandValidated *bool   `json:"brand_validated,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// Product is a scraped product record.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Brand           string          `json:"brand"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Source          string          `json:"source"`
	SourceURL       string          `json:"source_url"`
	Status          Status          `json:"status"`
	ConfidenceScore *int            `json:"confidence_score,omitempty"`
	CuratedData     *CuratedData    `json:"curated_data,omitempty"`
	Images          []string        `json:"images"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ResolvedBrand prefers the curated brand over the scraped one.
func (p *Product) ResolvedBrand() string {
	if p.CuratedData != nil && p.CuratedData.BrandName != nil {
		if b := strings.TrimSpace(*p.CuratedData.BrandName); b != "" {
			return b
		}
	}
	return strings.TrimSpace(p.Brand)
}

// ResolvedCategory prefers the curated category over the scraped one.
func (p *Product) ResolvedCategory() string {
	if p.CuratedData != nil && p.CuratedData.CategoryName != nil {
		if c := strings.TrimSpace(*p.CuratedData.CategoryName); c != "" {
			return c
		}
	}
	return strings.TrimSpace(p.Category)
}

func (p *Product) curated() *CuratedData {
	if p.CuratedData == nil {
		p.CuratedData = &CuratedData{}
	}
	return p.CuratedData
}

// Clone returns a deep copy so a failed transition never leaks into the caller's value.
func (p Product) Clone() Product {
	if p.CuratedData != nil {
		cd := *p.CuratedData
		p.CuratedData = &cd
	}
	if p.ConfidenceScore != nil {
		score := *p.ConfidenceScore
		p.ConfidenceScore = &score
	}
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	return p
}

// GlobalProduct is the published catalog entry created on approval. The
// scraped record stays behind as provenance.
type GlobalProduct struct {
	ID               string          `json:"id"`
	ScrapedProductID string          `json:"scraped_product_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Brand            string          `json:"brand"`
	Category         string          `json:"category"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Images           []string        `json:"images"`
	PublishedAt      time.Time       `json:"published_at"`
}

// ToGlobal builds the catalog entry for a published product.
func (p *Product) ToGlobal(id string, at time.Time) GlobalProduct {
	return GlobalProduct{
		ID:               id,
		ScrapedProductID: p.ID,
		Name:             p.Name,
		Description:      p.Description,
		Brand:            p.ResolvedBrand(),
		Category:         p.ResolvedCategory(),
		Price:            p.Price,
		Currency:         p.Currency,
		Images:           append([]string(nil), p.Images...),
		PublishedAt:      at,
	}
}
