package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/config"
	"github.com/couchcryptid/aladin-mirror/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier announces published artifacts on a Kafka topic.
// It implements pipeline.PublishHook.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notification topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Name identifies the hook in logs.
func (n *Notifier) Name() string { return "kafka" }

// AfterPublish writes one event describing the artifact.
func (n *Notifier) AfterPublish(ctx context.Context, artifact domain.PublishedArtifact) error {
	msg, err := serializeToMessage(artifact)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write publication event: %w", err)
	}
	n.logger.Info("publication announced", "topic", n.writer.Topic, "artifact", artifact.Name)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a PublishedArtifact into a Kafka message keyed
// by run timestamp, so re-publications of a run land on one partition.
func serializeToMessage(artifact domain.PublishedArtifact) (kafkago.Message, error) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize published artifact: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(artifact.Run.Timestamp),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_dir", Value: []byte(artifact.Run.Dir)},
			{Key: "published_at", Value: []byte(artifact.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
