package events

import (
	"context"

	"github.com/rs/zerolog"

	"company_reviews/internal/adapters/observability"
	"company_reviews/internal/domain"
)

// LogPublisher writes events to the log instead of a bus. Used for local runs.
type LogPublisher struct{ log zerolog.Logger }

func NewLogPublisher(log zerolog.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(_ context.Context, ev domain.ReviewEvent) error {
	p.log.Info().
		Str("event_type", EventTypeReviewCreated).
		Int64("review_id", ev.ID).
		Int64("company_id", ev.CompanyID).
		Float64("rating", ev.Rating).
		Str("description", ev.Description).
		Msg("review event")
	observability.ObserveEvent("log", nil)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
