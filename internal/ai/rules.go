package ai

import (
	"context"

	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
)

// RulesClassifier is the offline fallback used when no AI service is
// configured. A product with both a brand and a category is curated as-is;
// anything else is rejected so a curator looks at it.
type RulesClassifier struct {
	// Confidence reported for curated verdicts.
	Confidence int
}

// Classify implements jobs.Classifier
func (r RulesClassifier) Classify(ctx context.Context, p curation.Product) (curation.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return curation.Verdict{}, err
	}

	brand, category := p.ResolvedBrand(), p.ResolvedCategory()
	switch {
	case brand == "" && category == "":
		return curation.Verdict{Outcome: curation.StatusRejected, Reason: "no brand or category in scraped data"}, nil
	case brand == "":
		return curation.Verdict{Outcome: curation.StatusRejected, Category: category, Reason: "no brand in scraped data"}, nil
	case category == "":
		return curation.Verdict{Outcome: curation.StatusRejected, Brand: brand, Reason: "no category in scraped data"}, nil
	}

	confidence := r.Confidence
	if confidence <= 0 || confidence > 100 {
		confidence = 50
	}
	return curation.Verdict{Outcome: curation.StatusCurated, Brand: brand, Category: category, Confidence: confidence}, nil
}
