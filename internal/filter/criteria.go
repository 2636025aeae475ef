// Package filter holds the listing criteria for scraped products and the
// debounced state a listing view edits them through.
package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	dateLayout = "2006-01-02"
)

// Criteria is an immutable listing query. It is always submitted whole.
type Criteria struct {
	Search   string           `json:"search,omitempty" validate:"max=255"`
	Source   string           `json:"source,omitempty" validate:"max=255"`
	Brand    string           `json:"brand,omitempty" validate:"max=255"`
	Category string           `json:"category,omitempty" validate:"max=255"`
	Status   string           `json:"status,omitempty" validate:"omitempty,oneof=pending processing curated rejected published"`
	DateFrom *time.Time       `json:"date_from,omitempty"`
	DateTo   *time.Time       `json:"date_to,omitempty"`
	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
	Page     int              `json:"page" validate:"gte=1"`
	PageSize int              `json:"page_size" validate:"gte=1,lte=100"`
	SortBy   string           `json:"sort_by,omitempty" validate:"omitempty,oneof=name brand source price status confidence_score created_at updated_at"`
	SortDir  string           `json:"sort_dir,omitempty" validate:"omitempty,oneof=asc desc"`
}

// Default returns empty filters on page 1 with the default page size.
func Default() Criteria {
	return Criteria{Page: 1, PageSize: DefaultPageSize}
}

var validate = apperr.NewValidator()

// Validate checks field formats and the ranges between paired fields.
func (c Criteria) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperr.FromValidator(err)
	}
	if c.DateFrom != nil && c.DateTo != nil && c.DateFrom.After(*c.DateTo) {
		return apperr.Validation("date_from", "must not be after date_to")
	}
	if c.MinPrice != nil && c.MinPrice.IsNegative() {
		return apperr.Validation("min_price", "must not be negative")
	}
	if c.MinPrice != nil && c.MaxPrice != nil && c.MinPrice.GreaterThan(*c.MaxPrice) {
		return apperr.Validation("min_price", "must not exceed max_price")
	}
	return nil
}

// Offset is the number of rows skipped for the current page.
func (c Criteria) Offset() int {
	if c.Page < 1 {
		return 0
	}
	return (c.Page - 1) * c.PageSize
}

// IsZero reports whether no filter (other than paging and sort) is set.
func (c Criteria) IsZero() bool {
	return c.Search == "" && c.Source == "" && c.Brand == "" && c.Category == "" && c.Status == "" &&
		c.DateFrom == nil && c.DateTo == nil && c.MinPrice == nil && c.MaxPrice == nil
}

// Values renders the criteria as listing query parameters. Empty filters are omitted.
func (c Criteria) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("search", c.Search)
	set("source", c.Source)
	set("brand", c.Brand)
	set("category", c.Category)
	set("status", c.Status)
	if c.DateFrom != nil {
		v.Set("date_from", c.DateFrom.Format(dateLayout))
	}
	if c.DateTo != nil {
		v.Set("date_to", c.DateTo.Format(dateLayout))
	}
	if c.MinPrice != nil {
		v.Set("min_price", c.MinPrice.String())
	}
	if c.MaxPrice != nil {
		v.Set("max_price", c.MaxPrice.String())
	}
	v.Set("page", strconv.Itoa(c.Page))
	v.Set("page_size", strconv.Itoa(c.PageSize))
	set("sort_by", c.SortBy)
	set("sort_dir", c.SortDir)
	return v
}

// fields lists every key SetField and ParseQuery accept.
var fields = []string{
	"search", "source", "brand", "category", "status", "date_from", "date_to",
	"min_price", "max_price", "page", "page_size", "sort_by", "sort_dir",
}

// ParseQuery builds validated criteria from query parameters. Unknown keys are ignored.
func ParseQuery(q url.Values) (Criteria, error) {
	c := Default()
	for _, key := range fields {
		if !q.Has(key) {
			continue
		}
		next, err := c.with(key, q.Get(key))
		if err != nil {
			return Default(), err
		}
		c = next
	}
	if err := c.Validate(); err != nil {
		return Default(), err
	}
	return c, nil
}

// with returns a copy of c with key set from its string form. An empty
// value clears optional fields.
func (c Criteria) with(key, value string) (Criteria, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "search":
		c.Search = value
	case "source":
		c.Source = value
	case "brand":
		c.Brand = value
	case "category":
		c.Category = value
	case "status":
		c.Status = strings.ToLower(value)
	case "sort_by":
		c.SortBy = value
	case "sort_dir":
		c.SortDir = strings.ToLower(value)
	case "date_from", "date_to":
		t, err := parseDate(key, value)
		if err != nil {
			return c, err
		}
		if key == "date_from" {
			c.DateFrom = t
		} else {
			c.DateTo = t
		}
	case "min_price", "max_price":
		d, err := parsePrice(key, value)
		if err != nil {
			return c, err
		}
		if key == "min_price" {
			c.MinPrice = d
		} else {
			c.MaxPrice = d
		}
	case "page":
		n, err := parseInt(key, value, 1)
		if err != nil {
			return c, err
		}
		c.Page = n
	case "page_size":
		n, err := parseInt(key, value, DefaultPageSize)
		if err != nil {
			return c, err
		}
		c.PageSize = n
	default:
		return c, apperr.Validation(key, "unknown filter field")
	}
	return c, nil
}

func parseDate(key, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperr.Validation(key, "must be a date (YYYY-MM-DD)")
	}
	return &t, nil
}

func parsePrice(key, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, apperr.Validation(key, "must be a number")
	}
	return &d, nil
}

func parseInt(key, value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperr.Validation(key, fmt.Sprintf("must be an integer, got %q", value))
	}
	return n, nil
}
