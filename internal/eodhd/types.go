// Package eodhd is a rate limited client for the EODHD end-of-day API. It
// fetches daily bars and company fundamentals and converts them into the
// rows the market data service writes.
package eodhd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/vera/internal/interfaces"
)

// QueryOption adjusts the query of a bar request.
type QueryOption func(*queryParams)

type queryParams struct {
	From   time.Time
	To     time.Time
	Period string // d, w, m
	Order  string // a (asc), d (desc)
}

// WithDateRange sets the date range for the query. Zero bounds are omitted.
func WithDateRange(from, to time.Time) QueryOption {
	return func(p *queryParams) {
		p.From = from
		p.To = to
	}
}

// WithPeriod sets the bar period: d, w or m. The engine only stores daily bars.
func WithPeriod(period string) QueryOption {
	return func(p *queryParams) {
		p.Period = period
	}
}

// WithOrder sets the sort order: a (oldest first) or d.
func WithOrder(order string) QueryOption {
	return func(p *queryParams) {
		p.Order = order
	}
}

// APIError is a non-200, non-429 answer. A 404 means the provider does not
// know the symbol and unwraps to interfaces.ErrNotFound; every other status
// unwraps to interfaces.ErrDataUnavailable.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eodhd %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return interfaces.ErrNotFound
	}
	return interfaces.ErrDataUnavailable
}

// RateLimitError is returned when the limiter wait fails (Cause holds the
// context error) or the API answers 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("eodhd rate limit wait aborted: %v", e.Cause)
	}
	return fmt.Sprintf("eodhd rate limit exceeded, retry after %v", e.RetryAfter)
}

// Unwrap exposes both the context error and ErrDataUnavailable to errors.Is
func (e *RateLimitError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Cause, interfaces.ErrDataUnavailable}
	}
	return []error{interfaces.ErrDataUnavailable}
}
