package domain

import (
	"errors"
	"time"
)

// PageFilter contains pagination and time-window options for list operations.
type PageFilter struct {
	// From and To bound created_at (inclusive From, exclusive To). Zero means unbounded.
	From time.Time
	To   time.Time

	Limit  int
	Offset int
}

// DefaultPageFilter returns sensible defaults.
func DefaultPageFilter() PageFilter {
	return PageFilter{Limit: 50}
}

// Normalize clamps the limit to [1, 500].
func (f PageFilter) Normalize() PageFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
