package curation

import (
	"errors"
	"testing"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func fullPayload() Payload {
	return Payload{
		Brand:          "Nike",
		Category:       "Shoes",
		BrandValidated: boolPtr(true),
		Verdict:        &Verdict{Outcome: StatusCurated, Brand: "Nike", Category: "Shoes", Confidence: 80},
	}
}

func TestApprove_WithoutBrandOrCategoryIsIllegal(t *testing.T) {
	p := Product{ID: "p1", Status: StatusPending}

	err := Apply(&p, ActionApprove, Payload{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrIllegalTransition))
	var ite *IllegalTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, "brand and category not resolved", ite.Reason)
	assert.Equal(t, StatusPending, p.Status)
}

func TestApprove_UsesCuratedDataFirst(t *testing.T) {
	p := Product{
		ID:     "p1",
		Status: StatusCurated,
		CuratedData: &CuratedData{
			BrandName:    strPtr("Adidas"),
			CategoryName: strPtr("Apparel"),
		},
	}

	require.NoError(t, Apply(&p, ActionApprove, Payload{}))
	assert.Equal(t, StatusPublished, p.Status)
	assert.Equal(t, "Adidas", p.ResolvedBrand())
}

func TestApprove_FallsBackToScrapedFields(t *testing.T) {
	p := Product{ID: "p1", Status: StatusPending, Brand: " Puma ", Category: "Shoes"}

	require.NoError(t, Approve(&p))
	assert.Equal(t, StatusPublished, p.Status)
	assert.Equal(t, "Puma", p.ResolvedBrand())
}

// Every (status, action) pair outside the table must fail without touching the product.
func TestMachineTotality(t *testing.T) {
	for _, status := range Statuses {
		for _, action := range actionOrder {
			if Allowed(status, action) {
				continue
			}
			t.Run(string(status)+"/"+string(action), func(t *testing.T) {
				p := Product{ID: "p", Status: status, Brand: "b", Category: "c"}
				before := p.Clone()

				err := Apply(&p, action, fullPayload())

				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrIllegalTransition))
				assert.Equal(t, before, p)
			})
		}
	}
}

func TestMachineTable(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
		want   Status
	}{
		{StatusPending, ActionSendToAI, StatusProcessing},
		{StatusPending, ActionCurateManually, StatusCurated},
		{StatusPending, ActionApprove, StatusPublished},
		{StatusCurated, ActionApprove, StatusPublished},
		{StatusPending, ActionReject, StatusRejected},
		{StatusCurated, ActionReject, StatusRejected},
		{StatusPending, ActionChangeBrand, StatusPending},
		{StatusCurated, ActionChangeCategory, StatusCurated},
		{StatusProcessing, ActionCompleteAI, StatusCurated},
		{StatusRejected, ActionRestore, StatusPending},
		{StatusProcessing, ActionRelease, StatusPending},
		{StatusRejected, ActionDelete, StatusRejected},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			p := Product{ID: "p", Status: tt.from, Brand: "b", Category: "c"}
			require.NoError(t, Apply(&p, tt.action, fullPayload()))
			assert.Equal(t, tt.want, p.Status)
		})
	}
}

func TestCurateManually(t *testing.T) {
	t.Run("stamps curated data", func(t *testing.T) {
		p := Product{ID: "p1", Status: StatusPending}
		err := CurateManually(&p, ManualCuration{Brand: " Nike ", Category: "Shoes", BrandValidated: boolPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, StatusCurated, p.Status)
		assert.Equal(t, "Nike", *p.CuratedData.BrandName)
		assert.Equal(t, "Shoes", *p.CuratedData.CategoryName)
		assert.False(t, *p.CuratedData.BrandValidated)
	})

	t.Run("missing fields is a validation error", func(t *testing.T) {
		p := Product{ID: "p1", Status: StatusPending}
		err := Apply(&p, ActionCurateManually, Payload{Brand: "Nike"})
		require.Error(t, err)
		var ve *apperr.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Contains(t, ve.Fields, "category")
		assert.Contains(t, ve.Fields, "brand_validated")
		assert.Equal(t, StatusPending, p.Status)
		assert.Nil(t, p.CuratedData)
	})
}

func TestChangeBrand_KeepsOtherCuratedData(t *testing.T) {
	p := Product{ID: "p1", Status: StatusCurated, CuratedData: &CuratedData{CategoryName: strPtr("Shoes"), BrandValidated: boolPtr(true)}}

	require.NoError(t, ChangeBrand(&p, "Reebok"))

	assert.Equal(t, StatusCurated, p.Status)
	assert.Equal(t, "Reebok", *p.CuratedData.BrandName)
	assert.Equal(t, "Shoes", *p.CuratedData.CategoryName)
	assert.True(t, *p.CuratedData.BrandValidated)
}

func TestChangeCategory_EmptyIsValidationError(t *testing.T) {
	p := Product{ID: "p1", Status: StatusPending}
	err := ChangeCategory(&p, "  ")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Nil(t, p.CuratedData)
}

func TestCompleteAI(t *testing.T) {
	t.Run("curated verdict", func(t *testing.T) {
		p := Product{ID: "p1", Status: StatusProcessing, CuratedData: &CuratedData{CategoryName: strPtr("Shoes")}}
		err := CompleteAI(&p, Verdict{Outcome: StatusCurated, Brand: "Nike", Confidence: 91})
		require.NoError(t, err)
		assert.Equal(t, StatusCurated, p.Status)
		assert.Equal(t, 91, *p.ConfidenceScore)
		assert.Equal(t, "Nike", *p.CuratedData.BrandName)
		assert.Equal(t, "Shoes", *p.CuratedData.CategoryName, "empty verdict category keeps earlier value")
	})

	t.Run("rejected verdict", func(t *testing.T) {
		p := Product{ID: "p1", Status: StatusProcessing}
		err := CompleteAI(&p, Verdict{Outcome: StatusRejected, Confidence: 12, Reason: "not a product"})
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, p.Status)
		assert.Equal(t, "not a product", *p.CuratedData.Notes)
	})

	t.Run("invalid verdict", func(t *testing.T) {
		p := Product{ID: "p1", Status: StatusProcessing}
		err := CompleteAI(&p, Verdict{Outcome: StatusPublished, Confidence: 150})
		var ve *apperr.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Contains(t, ve.Fields, "outcome")
		assert.Contains(t, ve.Fields, "confidence")
		assert.Equal(t, StatusProcessing, p.Status)
		assert.Nil(t, p.ConfidenceScore)
	})

	t.Run("missing verdict through Apply", func(t *testing.T) {
		p := Product{ID: "p1", Status: StatusProcessing}
		err := Apply(&p, ActionCompleteAI, Payload{})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	})
}

func TestAvailableActions(t *testing.T) {
	assert.Equal(t, []Action{
		ActionSendToAI, ActionCurateManually, ActionApprove, ActionReject,
		ActionChangeBrand, ActionChangeCategory, ActionDelete,
	}, AvailableActions(StatusPending))
	assert.Equal(t, []Action{ActionCompleteAI, ActionRelease}, AvailableActions(StatusProcessing))
	assert.Equal(t, []Action{ActionRestore, ActionDelete}, AvailableActions(StatusRejected))
	assert.Empty(t, AvailableActions(StatusPublished))
}

func TestApply_UnknownAction(t *testing.T) {
	p := Product{ID: "p1", Status: StatusPending}
	err := Apply(&p, Action("explode"), Payload{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestIllegalTransitionError_Message(t *testing.T) {
	err := &IllegalTransitionError{ProductID: "p9", From: StatusPublished, Action: ActionReject, Reason: "action not permitted from this status"}
	assert.Equal(t, "cannot reject product p9 from status published: action not permitted from this status", err.Error())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusCurated.Valid())
	assert.False(t, Status("archived").Valid())
	assert.True(t, StatusPublished.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusCurated.Terminal())
}

func TestToGlobal(t *testing.T) {
	p := Product{ID: "p1", Name: "Runner", Brand: "raw", Category: "Shoes", CuratedData: &CuratedData{BrandName: strPtr("Nike")}, Images: []string{"a.jpg"}}
	g := p.ToGlobal("g1", p.CreatedAt)
	assert.Equal(t, "p1", g.ScrapedProductID)
	assert.Equal(t, "Nike", g.Brand)
	assert.Equal(t, "Shoes", g.Category)
	assert.Equal(t, []string{"a.jpg"}, g.Images)
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		from, to Status
		want     Action
		ok       bool
	}{
		{StatusPending, StatusProcessing, ActionSendToAI, true},
		{StatusPending, StatusCurated, ActionCurateManually, true},
		{StatusCurated, StatusPublished, ActionApprove, true},
		{StatusCurated, StatusRejected, ActionReject, true},
		{StatusRejected, StatusPending, ActionRestore, true},
		{StatusProcessing, StatusPending, ActionRelease, true},
		{StatusProcessing, StatusCurated, "", false},
		{StatusPublished, StatusPending, "", false},
		{StatusPending, StatusPending, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, ok := ActionFor(tt.from, tt.to)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
