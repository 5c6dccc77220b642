package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
)

var (
	// ErrNoRecipients is returned when a message has nobody to go to
	ErrNoRecipients = errors.New("notification has no recipients")
	// ErrDeliveryUnknown is returned when the send timed out while the
	// producer may still deliver the message
	ErrDeliveryUnknown = errors.New("notification delivery outcome unknown")
)

// Envelope is the JSON document published for the delivery service
type Envelope struct {
	ID         uuid.UUID              `json:"id"`
	Kind       TemplateKind           `json:"kind"`
	Priority   Priority               `json:"priority"`
	Recipients []string               `json:"recipients"`
	Context    map[string]interface{} `json:"context"`
	CreatedAt  time.Time              `json:"created_at"`
}

// KafkaSender publishes notifications to a Kafka topic
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
	timeout  time.Duration
	clock    clock.Clock
	log      *logger.Logger
}

// NewSaramaConfig returns the producer configuration used for notifications.
// Attempts and retry backoffs are sized so the producer gives up inside
// timeout.
func NewSaramaConfig(clientID string, timeout time.Duration) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	if timeout > 0 {
		retries := time.Duration(cfg.Producer.Retry.Max)
		backoff := timeout / 20
		perAttempt := (timeout - backoff*retries) / (retries + 1)

		cfg.Producer.Retry.Backoff = backoff
		cfg.Producer.Timeout = perAttempt
		cfg.Net.DialTimeout = perAttempt
		cfg.Net.ReadTimeout = perAttempt
		cfg.Net.WriteTimeout = perAttempt
	}
	return cfg
}

// NewKafkaProducer connects a sync producer to the brokers
func NewKafkaProducer(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return producer, nil
}

// NewKafkaSender creates a sender that publishes through producer
func NewKafkaSender(producer sarama.SyncProducer, topic string, timeout time.Duration, clk clock.Clock, log *logger.Logger) *KafkaSender {
	return &KafkaSender{
		producer: producer,
		topic:    topic,
		timeout:  timeout,
		clock:    clk,
		log:      log.Named("notification"),
	}
}

// Send publishes the message, keyed by template kind
func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return ErrNoRecipients
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}

	payload, err := json.Marshal(Envelope{
		ID:         uuid.New(),
		Kind:       msg.Kind,
		Priority:   msg.Priority,
		Recipients: msg.Recipients,
		Context:    msg.Context,
		CreatedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(msg.Kind),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("priority"), Value: []byte(msg.Priority)},
		},
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// SendMessage has no context; the result channel is buffered so a late
	// reply never blocks the goroutine.
	done := make(chan error, 1)
	go func() {
		_, _, err := s.producer.SendMessage(pm)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to publish notification: %w", err)
		}
		s.log.Debug("notification published",
			logger.StringField("kind", string(msg.Kind)),
			logger.IntField("recipients", len(msg.Recipients)),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to publish notification: %w: %w", ErrDeliveryUnknown, ctx.Err())
	}
}

// Close shuts the producer down
func (s *KafkaSender) Close() error {
	return s.producer.Close()
}
