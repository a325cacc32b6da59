// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"backoffice/internal/core/id"
	"backoffice/internal/domain"
)

// --- Pagination ---

// PageRequest contains pagination and time-window query parameters.
type PageRequest struct {
	Limit  int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int        `form:"offset" binding:"omitempty,min=0"`
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter converts the request into a domain page filter.
func (p PageRequest) ToFilter() domain.PageFilter {
	f := domain.DefaultPageFilter()
	if p.Limit > 0 {
		f.Limit = p.Limit
	}
	f.Offset = p.Offset
	if p.From != nil {
		f.From = *p.From
	}
	if p.To != nil {
		f.To = *p.To
	}
	return f.Normalize()
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult converts a domain list result.
func FromListResult[T any](r domain.ListResult[T]) ListResponse[T] {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
