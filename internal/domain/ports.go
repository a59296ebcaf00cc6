package domain

import "context"

// ReviewStore is pure persistence: CRUD and query primitives, no business rules.
// FindByID returns ErrNotFound when the id is absent.
type ReviewStore interface {
	// Write paths
	Save(ctx context.Context, r Review) (Review, error)
	Delete(ctx context.Context, r Review) error

	// Read paths
	FindByID(ctx context.Context, id int64) (Review, error)
	FindAll(ctx context.Context) ([]Review, error)
	FindByCompany(ctx context.Context, companyID int64) ([]Review, error)
	FindByCompanyPage(ctx context.Context, companyID int64, pr PageRequest) (ReviewsPage, error)
	FindByCompanySorted(ctx context.Context, companyID int64, field SortField) ([]Review, error)
	FindByCompanyAndRatingGreaterThan(ctx context.Context, companyID int64, rating float64) ([]Review, error)
	AverageRatingByCompany(ctx context.Context, companyID int64) (avg float64, ok bool, err error)
}

type CompanyValidator interface {
	Exists(ctx context.Context, companyID int64) CompanyCheck
}

type EventPublisher interface {
	Publish(ctx context.Context, ev ReviewEvent) error
}

type RatingAggregator interface {
	AverageFor(ctx context.Context, companyID int64) (avg float64, ok bool, err error)
	Invalidate(ctx context.Context, companyID int64) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type CheckStatus int

const (
	CompanyExists CheckStatus = iota
	CompanyNotFound
	CompanyUnreachable
)

func (s CheckStatus) String() string {
	switch s {
	case CompanyExists:
		return "exists"
	case CompanyNotFound:
		return "not_found"
	default:
		return "unreachable"
	}
}

// CompanyCheck is the validator's answer. Cause is set only for CompanyUnreachable.
type CompanyCheck struct {
	Status CheckStatus
	Cause  error
}

func CheckOK() CompanyCheck       { return CompanyCheck{Status: CompanyExists} }
func CheckNotFound() CompanyCheck { return CompanyCheck{Status: CompanyNotFound} }
func CheckFailed(err error) CompanyCheck {
	return CompanyCheck{Status: CompanyUnreachable, Cause: err}
}
