package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

const (
	DefaultViewTopic    = config.DefaultKafkaViewTopic
	DefaultDatasetTopic = config.DefaultKafkaDatasetTopic

	headerEventType = "event_type"
	headerEventID   = "event_id"
)

// PublishObserver receives one call per publish attempt.
type PublishObserver interface {
	RecordEventPublished(topic, status string)
}

// EventPublisher routes dataset events to the view or dataset topic, keyed by
// dataset ID so events of one dataset stay ordered within a partition.
type EventPublisher struct {
	producer     *Producer
	viewTopic    string
	datasetTopic string
	observer     PublishObserver
	logger       logging.Logger
}

func NewEventPublisher(p *Producer, cfg *config.KafkaConfig, observer PublishObserver, logger logging.Logger) *EventPublisher {
	viewTopic, datasetTopic := DefaultViewTopic, DefaultDatasetTopic
	if cfg != nil {
		if cfg.ViewTopic != "" {
			viewTopic = cfg.ViewTopic
		}
		if cfg.DatasetTopic != "" {
			datasetTopic = cfg.DatasetTopic
		}
	}
	return &EventPublisher{
		producer:     p,
		viewTopic:    viewTopic,
		datasetTopic: datasetTopic,
		observer:     observer,
		logger:       logger,
	}
}

// TopicFor returns the topic an event of type t is written to.
func (e *EventPublisher) TopicFor(t dataset.EventType) string {
	if t.IsViewEvent() {
		return e.viewTopic
	}
	return e.datasetTopic
}

func (e *EventPublisher) Topics() []string {
	return []string{e.viewTopic, e.datasetTopic}
}

func (e *EventPublisher) Publish(ctx context.Context, ev *dataset.Event) error {
	topic := e.TopicFor(ev.Type)
	value, err := json.Marshal(ev)
	if err != nil {
		e.record(topic, "error")
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event")
	}
	msg := &Message{
		Topic: topic,
		Key:   []byte(ev.DatasetID),
		Value: value,
		Headers: map[string]string{
			headerEventType: string(ev.Type),
			headerEventID:   ev.ID,
		},
		Timestamp: ev.OccurredAt,
	}
	if err := e.producer.Publish(ctx, msg); err != nil {
		e.record(topic, "error")
		return err
	}
	e.record(topic, "ok")
	return nil
}

func (e *EventPublisher) record(topic, status string) {
	if e.observer != nil {
		e.observer.RecordEventPublished(topic, status)
	}
}

func (e *EventPublisher) Close() error {
	return e.producer.Close()
}

// ReceivedEvent is an event read back from a topic. The payload stays raw
// because its shape depends on the event type.
type ReceivedEvent struct {
	ID         string            `json:"id"`
	Type       dataset.EventType `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	DatasetID  string            `json:"dataset_id"`
	Payload    json.RawMessage   `json:"payload,omitempty"`

	Topic     string `json:"-"`
	Partition int    `json:"-"`
	Offset    int64  `json:"-"`
}

// DecodePayload unmarshals the payload into target. An absent payload leaves
// target untouched.
func (r *ReceivedEvent) DecodePayload(target interface{}) error {
	if len(r.Payload) == 0 || string(r.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload").
			WithDetail(fmt.Sprintf("type=%s", r.Type))
	}
	return nil
}

// DecodeMessage parses an event envelope from a consumed record.
func DecodeMessage(m kafka.Message) (*ReceivedEvent, error) {
	if len(m.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var ev ReceivedEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal event")
	}
	ev.Topic = m.Topic
	ev.Partition = m.Partition
	ev.Offset = m.Offset
	return &ev, nil
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the event topics when the broker does not
// auto-create them.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

func (m *TopicManager) TopicExists(name string) bool {
	partitions, err := m.conn.ReadPartitions(name)
	return err == nil && len(partitions) > 0
}

// EnsureTopics creates every missing topic with the given partition count and
// a replication factor of one.
func (m *TopicManager) EnsureTopics(ctx context.Context, partitions int, names ...string) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.TopicExists(name) {
			continue
		}
		err := m.conn.CreateTopics(kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
		if err != nil && !m.TopicExists(name) {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topic").WithDetail("topic=" + name)
		}
		m.logger.Info("Topic created", logging.String("topic", name))
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
