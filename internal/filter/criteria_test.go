package filter

import (
	"errors"
	"net/url"
	"testing"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	q := url.Values{
		"search":    {" shoe "},
		"status":    {"Curated"},
		"min_price": {"10.50"},
		"max_price": {"99"},
		"date_from": {"2026-01-01"},
		"page":      {"2"},
		"page_size": {"50"},
		"sort_by":   {"price"},
		"sort_dir":  {"DESC"},
		"ignored":   {"x"},
	}

	c, err := ParseQuery(q)

	require.NoError(t, err)
	assert.Equal(t, "shoe", c.Search)
	assert.Equal(t, "curated", c.Status)
	assert.Equal(t, "10.5", c.MinPrice.String())
	assert.Equal(t, 2, c.Page)
	assert.Equal(t, 50, c.PageSize)
	assert.Equal(t, "desc", c.SortDir)
	assert.Equal(t, 50, c.Offset())
	assert.Equal(t, 2026, c.DateFrom.Year())
}

func TestParseQuery_Defaults(t *testing.T) {
	c, err := ParseQuery(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.True(t, c.IsZero())
	assert.Equal(t, 0, c.Offset())
}

func TestParseQuery_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		field string
	}{
		{"bad page", url.Values{"page": {"two"}}, "page"},
		{"page zero", url.Values{"page": {"0"}}, "page"},
		{"bad price", url.Values{"min_price": {"cheap"}}, "min_price"},
		{"inverted price range", url.Values{"min_price": {"20"}, "max_price": {"10"}}, "min_price"},
		{"inverted dates", url.Values{"date_from": {"2026-02-01"}, "date_to": {"2026-01-01"}}, "date_from"},
		{"bad date", url.Values{"date_to": {"yesterday"}}, "date_to"},
		{"bad sort", url.Values{"sort_by": {"colour"}}, "sort_by"},
		{"bad status", url.Values{"status": {"archived"}}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.query)
			require.Error(t, err)
			var ve *apperr.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestValues(t *testing.T) {
	c := Default()
	c.Brand = "nike"
	c.SortDir = "asc"

	v := c.Values()

	assert.Equal(t, "nike", v.Get("brand"))
	assert.Equal(t, "1", v.Get("page"))
	assert.Equal(t, "20", v.Get("page_size"))
	assert.False(t, v.Has("search"))
	assert.False(t, v.Has("min_price"))

	back, err := ParseQuery(v)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}
