package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"company_reviews/internal/domain"
)

// StoreAggregator computes averages straight from the store.
type StoreAggregator struct{ store domain.ReviewStore }

func NewStoreAggregator(s domain.ReviewStore) *StoreAggregator { return &StoreAggregator{store: s} }

func (a *StoreAggregator) AverageFor(ctx context.Context, companyID int64) (float64, bool, error) {
	return a.store.AverageRatingByCompany(ctx, companyID)
}

func (a *StoreAggregator) Invalidate(context.Context, int64) error { return nil }

type cachedAverage struct {
	Avg float64 `json:"avg"`
	OK  bool    `json:"ok"`
}

// CachedAggregator memoises another aggregator's answers in a Cache.
// Cache failures degrade to the inner aggregator and are only logged.
type CachedAggregator struct {
	inner domain.RatingAggregator
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedAggregator(inner domain.RatingAggregator, c domain.Cache, ttl time.Duration, log zerolog.Logger) *CachedAggregator {
	return &CachedAggregator{inner: inner, cache: c, ttl: ttl, log: log}
}

func avgKey(companyID int64) string { return fmt.Sprintf("avg_rating:%d", companyID) }

func (a *CachedAggregator) AverageFor(ctx context.Context, companyID int64) (float64, bool, error) {
	key := avgKey(companyID)
	var hit cachedAverage
	ok, err := a.cache.Get(ctx, key, &hit)
	if err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("average cache read failed")
	} else if ok {
		return hit.Avg, hit.OK, nil
	}

	avg, found, err := a.inner.AverageFor(ctx, companyID)
	if err != nil {
		return 0, false, err
	}
	if err := a.cache.Set(ctx, key, cachedAverage{Avg: avg, OK: found}, int(a.ttl.Seconds())); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("average cache write failed")
	}
	return avg, found, nil
}

func (a *CachedAggregator) Invalidate(ctx context.Context, companyID int64) error {
	if err := a.inner.Invalidate(ctx, companyID); err != nil {
		return err
	}
	return a.cache.Del(ctx, avgKey(companyID))
}
