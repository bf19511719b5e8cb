package utils

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/sharath018/school-management-backend/config"
)

// Domain event types published on the platform topic.
const (
	EventFieldsSaved        = "eventtype.fields_saved"
	EventGuestCheckedIn     = "guest.checked_in"
	EventPaymentCaptured    = "fee.payment_captured"
	EventReportRendered     = "report.rendered"
	EventSchoolImpersonated = "platform.impersonated"
)

// DomainEvent is the envelope written to Kafka.
type DomainEvent struct {
	Type       string                 `json:"type"`
	SchoolID   uint                   `json:"school_id"`
	ActorID    uint                   `json:"actor_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher is implemented by the Kafka producer and by test doubles.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent) error
}

var (
	kafkaWriter *kafka.Writer
	kafkaCfg    *config.Config
	kafkaMu     sync.RWMutex
)

// InitializeKafka prepares the shared writer. Brokers are dialed lazily.
func InitializeKafka(cfg *config.Config) {
	kafkaMu.Lock()
	defer kafkaMu.Unlock()

	if len(cfg.KafkaBrokers) == 0 {
		log.Println("⚠️ No Kafka brokers configured, domain events disabled")
		return
	}

	kafkaCfg = cfg
	kafkaWriter = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	log.Printf("✅ Kafka writer ready (brokers=%v topic=%s)", cfg.KafkaBrokers, cfg.KafkaTopic)
}

// CloseKafka flushes and closes the writer.
func CloseKafka() {
	kafkaMu.Lock()
	defer kafkaMu.Unlock()
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			log.Printf("⚠️ Kafka writer close: %v", err)
		}
		kafkaWriter = nil
	}
}

// EncodeEvent serializes an event for the wire.
func EncodeEvent(evt DomainEvent) ([]byte, error) {
	return sonic.Marshal(evt)
}

// DecodeEvent parses a message value written by EncodeEvent.
func DecodeEvent(data []byte) (DomainEvent, error) {
	var evt DomainEvent
	err := sonic.Unmarshal(data, &evt)
	return evt, err
}

// KafkaPublisher writes domain events to the shared writer.
type KafkaPublisher struct{}

func NewKafkaPublisher() *KafkaPublisher { return &KafkaPublisher{} }

func (KafkaPublisher) Publish(ctx context.Context, evt DomainEvent) error {
	kafkaMu.RLock()
	w := kafkaWriter
	kafkaMu.RUnlock()
	if w == nil {
		return nil
	}

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	value, err := EncodeEvent(evt)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Type),
		Value: value,
	})
}

// PublishAsync publishes without blocking the request path; failures are logged.
func PublishAsync(p Publisher, evt DomainEvent) {
	if p == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Publish(ctx, evt); err != nil {
			log.Printf("⚠️ Failed to publish %s: %v", evt.Type, err)
		}
	}()
}

// NewKafkaReader builds a consumer-group reader on the platform topic.
func NewKafkaReader() *kafka.Reader {
	kafkaMu.RLock()
	cfg := kafkaCfg
	kafkaMu.RUnlock()
	if cfg == nil {
		return nil
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}
