// Package events holds the review-created publishers. None of them give
// delivery guarantees beyond what the underlying bus offers.
package events

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"company_reviews/internal/domain"
	"company_reviews/internal/shared"
)

type Publisher interface {
	domain.EventPublisher
	io.Closer
}

// New builds the publisher selected by cfg.EventBus.
func New(ctx context.Context, cfg shared.Config, log zerolog.Logger) (Publisher, error) {
	switch cfg.EventBus {
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	case "mqtt":
		p := NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, log)
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		return p, nil
	case "log", "":
		return NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.EventBus)
	}
}
