package dto

import (
	"errors"

	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/domain"
)

// QuoteResponse is a stored quote.
type QuoteResponse struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
}

// NewQuoteResponse converts a domain quote.
func NewQuoteResponse(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		ID:        q.ID,
		Text:      q.Text,
		Author:    q.Author,
		Timestamp: domain.FormatTimestamp(q.Timestamp),
	}
}

// NewQuoteResponses converts a slice of domain quotes, never returning nil.
func NewQuoteResponses(quotes []domain.Quote) []QuoteResponse {
	out := make([]QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, NewQuoteResponse(q))
	}

	return out
}

// CreateQuoteRequest is the body of POST /api/v1/quotes. Blank text is
// rejected by the quote service, not here, so the error matches the CLI's.
type CreateQuoteRequest struct {
	Text   string `json:"text"   validate:"max=4096"`
	Author string `json:"author" validate:"max=256"`
}

// ToDomain converts the request.
func (r *CreateQuoteRequest) ToDomain() domain.Quote {
	return domain.Quote{Text: r.Text, Author: r.Author}
}

// CreatedResponse carries the id assigned to a new quote.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// UpdateQuoteRequest is the body of PATCH /api/v1/quotes/:id. Absent
// members are left unchanged; an empty author clears it.
type UpdateQuoteRequest struct {
	Text   *string `json:"text"   validate:"omitempty,max=4096"`
	Author *string `json:"author" validate:"omitempty,max=256"`
}

var errEmptyUpdate = errors.New("at least one of text or author is required")

// Validate implements Validatable.
func (r *UpdateQuoteRequest) Validate() error {
	if r.Text == nil && r.Author == nil {
		return errEmptyUpdate
	}

	return nil
}

// ToPatch converts the request.
func (r *UpdateQuoteRequest) ToPatch() domain.QuotePatch {
	patch := domain.QuotePatch{
		Text:   domain.Keep[string](),
		Author: domain.Keep[string](),
	}

	if r.Text != nil {
		patch.Text = domain.Set(*r.Text)
	}

	if r.Author != nil {
		if *r.Author == "" {
			patch.Author = domain.Clear[string]()
		} else {
			patch.Author = domain.Set(*r.Author)
		}
	}

	return patch
}

// ListQuery holds the query parameters of GET /api/v1/quotes.
type ListQuery struct {
	PaginationRequest
}

// LatestQuery holds the query parameters of GET /api/v1/quotes/latest.
type LatestQuery struct {
	N int `form:"n" validate:"omitempty,gte=1,lte=100"`
}

// CountResponse is the body of GET /api/v1/quotes/count.
type CountResponse struct {
	Count int `json:"count"`
}

// DeletedResponse reports how many quotes a bulk delete removed.
type DeletedResponse struct {
	Deleted int `json:"deleted"`
}

// FetchRequest is the optional body of POST /api/v1/quotes/fetch.
type FetchRequest struct {
	URL string `json:"url" validate:"omitempty,url"`
}

// FetchResponse summarizes a one-off poll.
type FetchResponse struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// NewFetchResponse converts a poll result.
func NewFetchResponse(r app.PollResult) FetchResponse {
	return FetchResponse{Fetched: r.Fetched, Added: r.Added, Skipped: r.Skipped}
}
