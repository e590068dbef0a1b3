// Package streaming publishes finalized session summaries to Kafka for
// downstream alerting consumers. Egress is optional and best-effort: a nil
// *Publisher disables it, and delivery failures never fail a session.
package streaming

import (
	"context"
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
)

// Publisher emits one summary record per completed session.
type Publisher struct {
	producer *kafka.Producer
	topic    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPublisher creates a Kafka producer from configuration.
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
		"acks":              "all",
		"retries":           3,
		"linger.ms":         50,
	})
	if err != nil {
		return nil, common.WrapWithCode(err, common.CodeProvider, "failed to create kafka producer", map[string]interface{}{
			"bootstrap_servers": cfg.BootstrapServers,
		})
	}
	return &Publisher{
		producer: producer,
		topic:    cfg.Topic,
		timeout:  cfg.DeliveryTimeout,
		logger:   logger,
	}, nil
}

// sessionSummary is the wire shape consumed by downstream alerting.
type sessionSummary struct {
	SessionID         string    `json:"session_id"`
	Status            string    `json:"status"`
	EventsAssessed    int       `json:"events_assessed"`
	EventsFailed      int       `json:"events_failed"`
	CriticalThreats   []string  `json:"critical_threats,omitempty"`
	CorrelationsFound int       `json:"correlations_found"`
	ClustersFound     int       `json:"clusters_found"`
	AverageConfidence float64   `json:"average_confidence"`
	CompletedAt       time.Time `json:"completed_at"`
}

// Publish sends the session summary and waits for delivery confirmation up
// to the configured timeout.
func (p *Publisher) Publish(ctx context.Context, session *assessment.OrchestrationSession) error {
	if p == nil {
		return nil
	}

	summary := sessionSummary{
		SessionID:         session.SessionID,
		Status:            string(session.Status),
		EventsAssessed:    session.Metrics.EventsAssessed,
		EventsFailed:      session.Metrics.EventsFailed,
		CorrelationsFound: session.Metrics.CorrelationsFound,
		ClustersFound:     session.Metrics.ClustersFound,
		AverageConfidence: session.Metrics.AverageConfidence,
	}
	for id, a := range session.Assessments {
		if a.FinalPriority == assessment.PriorityCritical {
			summary.CriticalThreats = append(summary.CriticalThreats, id)
		}
	}
	if session.EndedAt != nil {
		summary.CompletedAt = *session.EndedAt
	}

	value, err := json.Marshal(summary)
	if err != nil {
		return common.WrapWithCode(err, common.CodeProvider, "failed to encode session summary", nil)
	}

	delivery := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(session.SessionID),
		Value:          value,
	}, delivery)
	if err != nil {
		return common.WrapWithCode(err, common.CodeProvider, "failed to enqueue session summary", map[string]interface{}{
			"session_id": session.SessionID,
		})
	}

	select {
	case ev := <-delivery:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return common.NewError(common.CodeProvider, "unexpected delivery event", nil)
		}
		if msg.TopicPartition.Error != nil {
			return common.WrapWithCode(msg.TopicPartition.Error, common.CodeProvider, "session summary delivery failed", map[string]interface{}{
				"session_id": session.SessionID,
			})
		}
		p.logger.Debug("session summary published",
			zap.String("session_id", session.SessionID),
			zap.String("topic", p.topic),
		)
		return nil
	case <-time.After(p.timeout):
		return common.NewError(common.CodeProvider, "session summary delivery timed out", map[string]interface{}{
			"session_id": session.SessionID,
		})
	case <-ctx.Done():
		return common.WrapWithCode(ctx.Err(), common.CodeProvider, "session summary delivery canceled", nil)
	}
}

// Close flushes pending messages and releases the producer.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.producer.Flush(int(p.timeout.Milliseconds()))
	p.producer.Close()
}
