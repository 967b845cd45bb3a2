// Package queue publishes answer write-back records to the external message
// queue. A downstream consumer owns durable persistence to the system of
// record; the engine treats publishing as fire-and-forget.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/config"
	"github.com/lendvoice/question-engine/pkg/models"
)

// AnswerRecord is the wire shape of one answer mutation.
type AnswerRecord struct {
	MessageID    string                  `json:"message_id"`
	ProposalPid  string                  `json:"proposal_pid"`
	QuestionID   string                  `json:"question_id"`
	EntityPid    string                  `json:"entity_pid,omitempty"`
	FieldUpdates map[string]models.Value `json:"field_updates"`
	Timestamp    time.Time               `json:"timestamp"`
	RawInput     string                  `json:"raw_input,omitempty"`
	Confidence   float64                 `json:"confidence,omitempty"`
}

// Publisher sends answer records to the write-back queue.
type Publisher interface {
	Publish(ctx context.Context, rec AnswerRecord) error
	Close()
}

// KafkaPublisher produces answer records to a Kafka topic with idempotent
// writes. Records are keyed by proposal pid so one proposal's mutations stay
// ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects a producer to the configured brokers.
func NewKafkaPublisher(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger.Named("queue"),
	}, nil
}

// Publish sends one answer record synchronously. The caller decides whether
// a failure is fatal; on the answer hot path it is logged and swallowed.
func (p *KafkaPublisher) Publish(ctx context.Context, rec AnswerRecord) error {
	if rec.MessageID == "" {
		rec.MessageID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal answer record: %w", err)
	}
	kr := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.ProposalPid),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "message_id", Value: []byte(rec.MessageID)},
			{Key: "question_id", Value: []byte(rec.QuestionID)},
		},
	}
	if err := p.client.ProduceSync(ctx, kr).FirstErr(); err != nil {
		return fmt.Errorf("produce answer record: %w", err)
	}
	p.logger.Debug("answer record published",
		zap.String("message_id", rec.MessageID),
		zap.String("proposal_pid", rec.ProposalPid),
		zap.String("question_id", rec.QuestionID))
	return nil
}

// Close flushes and releases the underlying client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka flush on close failed", zap.Error(err))
	}
	p.client.Close()
}
