package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"company_reviews/internal/adapters/observability"
	"company_reviews/internal/domain"
)

const EventTypeReviewCreated = "review.created"

// KafkaPublisher emits review events through a sarama SyncProducer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

func NewKafkaPublisher(brokers, topic string, log zerolog.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "company-reviews"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true // required by SyncProducer
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 10 * time.Second

	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	producer, err := sarama.NewSyncProducer(list, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.Info().Strs("brokers", list).Str("topic", topic).Msg("kafka producer ready")
	return NewKafkaPublisherFromProducer(producer, topic, log), nil
}

func NewKafkaPublisherFromProducer(p sarama.SyncProducer, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, log: log}
}

// Publish sends ev keyed by company id. SendMessage does not take a context, so the
// send runs in its own goroutine and Publish returns as soon as ctx is done; the
// producer's own network timeouts bound the abandoned send.
func (k *KafkaPublisher) Publish(ctx context.Context, ev domain.ReviewEvent) error {
	msg, err := k.message(ev)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := k.producer.SendMessage(msg)
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	observability.ObserveEvent("kafka", err)
	if err != nil {
		return fmt.Errorf("kafka publish review %d: %w", ev.ID, err)
	}
	k.log.Debug().Int64("review_id", ev.ID).Str("topic", k.topic).Msg("review event sent")
	return nil
}

func (k *KafkaPublisher) message(ev domain.ReviewEvent) (*sarama.ProducerMessage, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.CompanyID, 10)),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(uuid.NewString())},
			{Key: []byte("event_type"), Value: []byte(EventTypeReviewCreated)},
		},
	}, nil
}

func (k *KafkaPublisher) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
