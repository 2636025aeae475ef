// Package catalog is the client side of the backoffice HTTP API. The
// operator CLI and any out-of-process poller talk to the server through it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Config configures the API client
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// Client calls the backoffice API
type Client struct {
	http *resty.Client
}

// APIError is a non-2xx response. Message is the server's error field, or a
// generic message when the body carried none.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// Unwrap maps the response onto the shared error kinds so callers can use
// errors.Is without looking at status codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return apperr.ErrValidation
	case e.StatusCode == http.StatusNotFound:
		return apperr.ErrNotFound
	case e.StatusCode == http.StatusPreconditionRequired:
		return apperr.ErrConfirmationRequired
	case e.StatusCode == http.StatusConflict && e.Code == "ILLEGAL_TRANSITION":
		return apperr.ErrIllegalTransition
	case e.StatusCode == http.StatusConflict:
		return apperr.ErrActionInFlight
	}
	return nil
}

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

// NewClient builds a client for the API at cfg.BaseURL
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("catalog API base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(retryIdempotent)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: client}, nil
}

// retryIdempotent retries reads and deletes on transport errors and
// overload. Submissions are never replayed.
func retryIdempotent(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil {
		return false
	}
	switch r.Request.Method {
	case http.MethodGet, http.MethodDelete:
	default:
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
}

// do sends req and converts transport failures and error responses
func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	var failure errorBody
	req.SetError(&failure)

	resp, err := req.Execute(method, path)
	if err != nil && resp != nil && resp.StatusCode() != 0 {
		return resp, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, apperr.ErrNetwork, err)
	}
	if resp.IsError() {
		apiErr := &APIError{
			StatusCode: resp.StatusCode(),
			Message:    failure.Error,
			Code:       failure.Code,
			Fields:     failure.Fields,
		}
		if apiErr.Message == "" {
			apiErr.Message = "request failed"
		}
		log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode()).
			Str("code", failure.Code).
			Msg("Catalog API request failed")
		return resp, apiErr
	}
	return resp, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}
