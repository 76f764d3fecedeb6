// Package events publishes match lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/park285/sudoku-duo/internal/obslog"
	"go.uber.org/zap"
)

const TypeMatchCompleted = "match.completed"

var ErrNoBrokers = errors.New("kafka brokers not configured")

type PlayerOutcome struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsAI         bool   `json:"isAI"`
	Result       string `json:"result"`
	RatingBefore int    `json:"ratingBefore"`
	RatingChange int    `json:"ratingChange"`
	Errors       int    `json:"errors"`
	CellsSolved  int    `json:"cellsSolved"`
}

type MatchCompleted struct {
	EventID     string           `json:"eventId"`
	Type        string           `json:"type"`
	MatchID     string           `json:"matchId"`
	MatchType   string           `json:"matchType"`
	Difficulty  string           `json:"difficulty"`
	Winner      int              `json:"winner"`
	Reason      string           `json:"reason"`
	Players     [2]PlayerOutcome `json:"players"`
	DurationMS  int64            `json:"durationMs"`
	CompletedAt time.Time        `json:"completedAt"`
}

type Publisher interface {
	PublishMatchCompleted(ctx context.Context, ev MatchCompleted) error
	Close() error
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) PublishMatchCompleted(context.Context, MatchCompleted) error { return nil }
func (Nop) Close() error                                                { return nil }

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig returns the sarama settings used for event publishing.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "sudoku-duo"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer; tests pass sarama mocks here.
func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

// PublishMatchCompleted fills EventID and Type when they are empty and keys the
// message by match id so events of one match stay ordered.
func (k *KafkaPublisher) PublishMatchCompleted(ctx context.Context, ev MatchCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Type == "" {
		ev.Type = TypeMatchCompleted
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.MatchID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(ev.Type)},
		},
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		obslog.L().Warn("event_publish_error", zap.String("match_id", ev.MatchID), zap.Error(err))
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	obslog.L().Debug("event_published",
		zap.String("match_id", ev.MatchID),
		zap.String("event_id", ev.EventID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k == nil || k.producer == nil {
		return nil
	}
	return k.producer.Close()
}
