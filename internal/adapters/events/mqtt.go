package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"company_reviews/internal/adapters/observability"
	"company_reviews/internal/domain"
)

var ErrNotConnected = errors.New("mqtt: not connected")

// MQTTPublisher emits review events to a single MQTT topic at QoS 1.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
}

func NewMQTTPublisher(broker, clientID, topic string, log zerolog.Logger) *MQTTPublisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost")
	})
	return &MQTTPublisher{client: mqtt.NewClient(opts), topic: topic, log: log}
}

func (m *MQTTPublisher) Connect(ctx context.Context) error {
	token := m.client.Connect()
	if !token.WaitTimeout(waitFor(ctx, 30*time.Second)) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	m.log.Info().Str("topic", m.topic).Msg("mqtt publisher connected")
	return nil
}

func (m *MQTTPublisher) Publish(ctx context.Context, ev domain.ReviewEvent) error {
	err := m.publish(ctx, ev)
	observability.ObserveEvent("mqtt", err)
	return err
}

func (m *MQTTPublisher) publish(ctx context.Context, ev domain.ReviewEvent) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 1, false, payload)
	if !token.WaitTimeout(waitFor(ctx, 10*time.Second)) {
		return fmt.Errorf("mqtt publish review %d: timeout", ev.ID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish review %d: %w", ev.ID, err)
	}
	return nil
}

func (m *MQTTPublisher) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

// waitFor is the time left before ctx's deadline, or def without one.
func waitFor(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return def
}
