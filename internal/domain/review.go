package domain

import (
	"fmt"
	"math"
	"strings"
)

// Review is the persisted entity. ID is assigned by the store and never changes.
type Review struct {
	ID          int64
	Title       string
	Description string
	Rating      float64
	CompanyID   int64
}

type ReviewRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
	CompanyID   int64   `json:"companyId"`
}

// ReviewResponse deliberately carries no company id.
type ReviewResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
}

// ReviewEvent is the snapshot emitted after a review is created.
// Consumers must tolerate duplicates and gaps.
type ReviewEvent struct {
	ID          int64   `json:"id"`
	CompanyID   int64   `json:"companyId"`
	Rating      float64 `json:"rating"`
	Description string  `json:"description"`
}

// MaxPageSize caps a single page of a paginated listing.
const MaxPageSize = 1000

type PageRequest struct {
	Page int // zero-based
	Size int
}

// Validate rejects negative pages, sizes outside [1, MaxPageSize] and pages
// whose offset would not fit in an int.
func (p PageRequest) Validate() error {
	switch {
	case p.Page < 0:
		return fmt.Errorf("%w: page must be >= 0 (got %d)", ErrInvalidPageRequest, p.Page)
	case p.Size < 1 || p.Size > MaxPageSize:
		return fmt.Errorf("%w: size must be between 1 and %d (got %d)", ErrInvalidPageRequest, MaxPageSize, p.Size)
	case p.Page > math.MaxInt/p.Size:
		return fmt.Errorf("%w: page %d is out of range", ErrInvalidPageRequest, p.Page)
	}
	return nil
}

// Offset is only meaningful for a request that passed Validate.
func (p PageRequest) Offset() int { return p.Page * p.Size }

type ReviewsPage struct {
	Items      []Review
	Page       int
	Size       int
	TotalItems int64
	TotalPages int
}

// NewReviewsPage fills the derived page counters.
func NewReviewsPage(items []Review, pr PageRequest, total int64) ReviewsPage {
	pages := 0
	if pr.Size > 0 {
		pages = int((total + int64(pr.Size) - 1) / int64(pr.Size))
	}
	return ReviewsPage{Items: items, Page: pr.Page, Size: pr.Size, TotalItems: total, TotalPages: pages}
}

// SortField is a review attribute that listings may be ordered by.
type SortField string

const (
	SortByID          SortField = "id"
	SortByTitle       SortField = "title"
	SortByDescription SortField = "description"
	SortByRating      SortField = "rating"
	SortByCompanyID   SortField = "companyId"
)

var sortColumns = map[SortField]string{
	SortByID:          "id",
	SortByTitle:       "title",
	SortByDescription: "description",
	SortByRating:      "rating",
	SortByCompanyID:   "company_id",
}

// ParseSortField accepts the attribute name (companyId or company_id for the company column).
func ParseSortField(s string) (SortField, error) {
	s = strings.TrimSpace(s)
	if s == "company_id" {
		s = string(SortByCompanyID)
	}
	f := SortField(s)
	if _, ok := sortColumns[f]; !ok {
		return "", &SortFieldError{Field: s}
	}
	return f, nil
}

// Column is the storage column backing the field. Only whitelisted values reach SQL.
func (f SortField) Column() string { return sortColumns[f] }
