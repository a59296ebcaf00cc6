package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"company_reviews/internal/adapters/observability"
	"company_reviews/internal/domain"
)

const (
	defaultValidateTimeout = 5 * time.Second
	defaultPublishTimeout  = 5 * time.Second
)

// ReviewService sequences persistence, company validation and event emission
// for every review operation. It keeps no state between calls; concurrent
// writes to one review are left to the store (last write wins).
type ReviewService struct {
	store      domain.ReviewStore
	validator  domain.CompanyValidator
	publisher  domain.EventPublisher
	aggregator domain.RatingAggregator

	validateTimeout time.Duration
	publishTimeout  time.Duration
	log             zerolog.Logger
}

type Option func(*ReviewService)

func WithValidateTimeout(d time.Duration) Option {
	return func(s *ReviewService) {
		if d > 0 {
			s.validateTimeout = d
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(s *ReviewService) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(s *ReviewService) { s.log = l } }

func NewReviewService(
	store domain.ReviewStore,
	validator domain.CompanyValidator,
	publisher domain.EventPublisher,
	aggregator domain.RatingAggregator,
	opts ...Option,
) *ReviewService {
	s := &ReviewService{
		store:           store,
		validator:       validator,
		publisher:       publisher,
		aggregator:      aggregator,
		validateTimeout: defaultValidateTimeout,
		publishTimeout:  defaultPublishTimeout,
		log:             log.Logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates the company, persists the review and emits a ReviewEvent.
//
// The write counts as committed once the store accepts it: a publish failure is
// logged and reported through metrics but does not undo the write or fail the call.
func (s *ReviewService) Create(ctx context.Context, req domain.ReviewRequest) (domain.ReviewResponse, error) {
	l := s.log.With().Int64("company_id", req.CompanyID).Logger()
	l.Info().Msg("creating review")

	if err := s.validateCompany(ctx, req.CompanyID, l); err != nil {
		return domain.ReviewResponse{}, err
	}

	// a store write, once issued, is not abandoned because the caller went away
	saved, err := s.store.Save(context.WithoutCancel(ctx), toEntity(req))
	if err != nil {
		l.Error().Err(err).Msg("persisting review failed")
		return domain.ReviewResponse{}, domain.Persistence("save review", err)
	}
	observability.ObserveReviewCreated()

	// consumers of the event may read the average straight away
	s.invalidateAverage(ctx, saved.CompanyID)
	s.publish(ctx, saved, l)

	l.Info().Int64("review_id", saved.ID).Msg("review created")
	return toResponse(saved), nil
}

func (s *ReviewService) validateCompany(ctx context.Context, companyID int64, l zerolog.Logger) error {
	vctx, cancel := context.WithTimeout(ctx, s.validateTimeout)
	defer cancel()

	check := s.validator.Exists(vctx, companyID)
	switch check.Status {
	case domain.CompanyExists:
		return nil
	case domain.CompanyNotFound:
		l.Warn().Msg("company validation failed: company not found")
		return fmt.Errorf("%w: id %d", domain.ErrCompanyNotFound, companyID)
	default:
		cause := check.Cause
		if cause == nil {
			cause = errors.New("unclassified validator failure")
		}
		l.Error().Err(cause).Msg("company validation failed: registry unreachable")
		return &domain.DownstreamError{Service: "company", Err: cause}
	}
}

func (s *ReviewService) publish(ctx context.Context, saved domain.Review, l zerolog.Logger) {
	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pctx, toEvent(saved)); err != nil {
		// TODO: move to a transactional outbox once the consumers need at-least-once delivery.
		l.Error().Err(err).Int64("review_id", saved.ID).Msg("publishing review event failed; review stays persisted")
	}
}

func (s *ReviewService) invalidateAverage(ctx context.Context, companyID int64) {
	if err := s.aggregator.Invalidate(context.WithoutCancel(ctx), companyID); err != nil {
		s.log.Warn().Err(err).Int64("company_id", companyID).Msg("average rating invalidation failed")
	}
}

// Get returns domain.ErrNotFound when the review does not exist.
func (s *ReviewService) Get(ctx context.Context, id int64) (domain.ReviewResponse, error) {
	s.log.Debug().Int64("review_id", id).Msg("finding review")
	r, err := s.store.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ReviewResponse{}, fmt.Errorf("review %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ReviewResponse{}, domain.Persistence("find review", err)
	}
	return toResponse(r), nil
}

// List returns every review, or only the company's when companyID is set.
func (s *ReviewService) List(ctx context.Context, companyID *int64) ([]domain.ReviewResponse, error) {
	var (
		rs  []domain.Review
		err error
	)
	if companyID != nil {
		rs, err = s.store.FindByCompany(ctx, *companyID)
	} else {
		rs, err = s.store.FindAll(ctx)
	}
	if err != nil {
		return nil, domain.Persistence("list reviews", err)
	}
	s.log.Debug().Int("count", len(rs)).Msg("found reviews")
	return toResponses(rs), nil
}

func (s *ReviewService) ListPaged(ctx context.Context, companyID int64, page, size int) (ResponsesPage, error) {
	pr := domain.PageRequest{Page: page, Size: size}
	if err := pr.Validate(); err != nil {
		return ResponsesPage{}, err
	}
	p, err := s.store.FindByCompanyPage(ctx, companyID, pr)
	if err != nil {
		return ResponsesPage{}, domain.Persistence("page reviews", err)
	}
	return toResponsesPage(p), nil
}

// ListSorted orders the company's reviews by field, highest first.
func (s *ReviewService) ListSorted(ctx context.Context, companyID int64, field string) ([]domain.ReviewResponse, error) {
	f, err := domain.ParseSortField(field)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.FindByCompanySorted(ctx, companyID, f)
	if err != nil {
		return nil, domain.Persistence("sort reviews", err)
	}
	return toResponses(rs), nil
}

// ListAboveRating keeps reviews rated strictly above minRating.
func (s *ReviewService) ListAboveRating(ctx context.Context, companyID int64, minRating float64) ([]domain.ReviewResponse, error) {
	rs, err := s.store.FindByCompanyAndRatingGreaterThan(ctx, companyID, minRating)
	if err != nil {
		return nil, domain.Persistence("filter reviews", err)
	}
	return toResponses(rs), nil
}

// Update overwrites title, description, rating and company id. It reports false
// without writing when the review does not exist. The new company id is not
// re-validated.
func (s *ReviewService) Update(ctx context.Context, id int64, req domain.ReviewRequest) (bool, error) {
	l := s.log.With().Int64("review_id", id).Logger()

	existing, err := s.store.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		l.Warn().Msg("review not found")
		return false, nil
	}
	if err != nil {
		return false, domain.Persistence("find review", err)
	}

	if existing.CompanyID != req.CompanyID {
		l.Warn().
			Int64("from_company_id", existing.CompanyID).
			Int64("to_company_id", req.CompanyID).
			Msg("review company changed without re-validation")
	}

	updated := toEntity(req)
	updated.ID = id
	if _, err := s.store.Save(context.WithoutCancel(ctx), updated); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// deleted between the read and the write
			return false, nil
		}
		return false, domain.Persistence("update review", err)
	}

	s.invalidateAverage(ctx, existing.CompanyID)
	if existing.CompanyID != updated.CompanyID {
		s.invalidateAverage(ctx, updated.CompanyID)
	}
	l.Info().Msg("review updated")
	return true, nil
}

// Delete hard-deletes the review, reporting false when it does not exist.
func (s *ReviewService) Delete(ctx context.Context, id int64) (bool, error) {
	l := s.log.With().Int64("review_id", id).Logger()

	existing, err := s.store.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		l.Warn().Msg("review not found")
		return false, nil
	}
	if err != nil {
		return false, domain.Persistence("find review", err)
	}

	if err := s.store.Delete(context.WithoutCancel(ctx), existing); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, domain.Persistence("delete review", err)
	}

	s.invalidateAverage(ctx, existing.CompanyID)
	l.Info().Msg("review deleted")
	return true, nil
}

// AverageRating is 0 for a company without reviews.
func (s *ReviewService) AverageRating(ctx context.Context, companyID int64) (float64, error) {
	avg, ok, err := s.aggregator.AverageFor(ctx, companyID)
	if err != nil {
		return 0, domain.Persistence("average rating", err)
	}
	if !ok {
		s.log.Debug().Int64("company_id", companyID).Msg("no ratings found for company")
		return 0, nil
	}
	return avg, nil
}
