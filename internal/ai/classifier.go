// Package ai talks to the product classification service that decides
// whether a scraped product is curated or rejected.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/getsentry/sentry-go"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config configures the classification client
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	RetryCount        int
}

// Client classifies products over HTTP, throttled by a shared token bucket
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

type classifyRequest struct {
	ProductID   string   `json:"product_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	Price       string   `json:"price"`
	Currency    string   `json:"currency"`
	Images      []string `json:"images,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewClient builds a client for the service at cfg.BaseURL
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("AI service base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// Classify asks the service for a verdict on one product
func (c *Client) Classify(ctx context.Context, p curation.Product) (curation.Verdict, error) {
	span := sentry.StartSpan(ctx, "ai.classify")
	defer span.Finish()
	span.SetTag("product_id", p.ID)

	if err := c.limiter.Wait(ctx); err != nil {
		return curation.Verdict{}, fmt.Errorf("rate limiter: %w", err)
	}

	var verdict curation.Verdict
	var failure errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(requestFor(p)).
		SetResult(&verdict).
		SetError(&failure).
		Post("/v1/classify")
	if err != nil {
		span.SetTag("error", "true")
		return curation.Verdict{}, fmt.Errorf("classify %s: %w: %v", p.ID, apperr.ErrNetwork, err)
	}
	if resp.IsError() {
		span.SetTag("error", "true")
		span.SetData("http.status_code", resp.StatusCode())
		msg := failure.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return curation.Verdict{}, fmt.Errorf("classify %s: status %d: %s", p.ID, resp.StatusCode(), msg)
	}

	log.Debug().
		Str("product_id", p.ID).
		Str("outcome", string(verdict.Outcome)).
		Int("confidence", verdict.Confidence).
		Dur("latency", resp.Time()).
		Msg("Product classified")

	return verdict, nil
}

func requestFor(p curation.Product) classifyRequest {
	req := classifyRequest{
		ProductID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		Brand:       p.ResolvedBrand(),
		Category:    p.ResolvedCategory(),
		Source:      p.Source,
		Price:       p.Price.StringFixed(2),
		Currency:    p.Currency,
		Images:      p.Images,
	}
	if p.CuratedData != nil && p.CuratedData.Notes != nil {
		req.Notes = *p.CuratedData.Notes
	}
	return req
}
