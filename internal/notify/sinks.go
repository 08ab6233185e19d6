package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/straye-as/cultivation-api/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NotificationStore persists in-app notifications
type NotificationStore interface {
	Create(ctx context.Context, notification *domain.Notification) error
}

// DBSink stores notifications in the notifications table
type DBSink struct {
	store NotificationStore
}

func NewDBSink(store NotificationStore) *DBSink {
	return &DBSink{store: store}
}

func (s *DBSink) Name() string { return "database" }

func (s *DBSink) Deliver(ctx context.Context, n Notification) error {
	return s.store.Create(ctx, &domain.Notification{
		TenantID:   n.TenantID,
		Type:       n.Type,
		Severity:   n.Severity,
		Title:      n.Title,
		Message:    truncate(n.Message, 1000),
		EntityID:   n.EntityID,
		EntityType: n.EntityType,
	})
}

// LogSink writes notifications to the structured log
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("tenantID", n.TenantID.String()),
		zap.String("type", n.Type),
		zap.String("severity", string(n.Severity)),
		zap.String("title", n.Title),
	}
	if n.Severity == domain.SeverityUrgent {
		s.logger.Warn("urgent notification", fields...)
		return nil
	}
	s.logger.Info("notification", fields...)
	return nil
}

// PubSubSink publishes notifications as JSON messages to a Google Pub/Sub
// topic for external alerting (email, SMS, paging)
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink connects to projectID. Application Default Credentials are
// used unless credentialsJSON is set.
func NewPubSubSink(ctx context.Context, projectID, topicID, credentialsJSON string) (*PubSubSink, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSubSink{client: client, topic: client.Topic(topicID)}, nil
}

func (s *PubSubSink) Name() string { return "pubsub" }

func (s *PubSubSink) Deliver(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"tenantId": n.TenantID.String(),
			"type":     n.Type,
			"severity": string(n.Severity),
		},
	})
	_, err = result.Get(ctx)
	return err
}

// Close flushes pending messages and closes the client
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
