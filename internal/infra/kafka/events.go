package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/infra/config"
	"github.com/regportal/iam-service/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka. Emails and IP
// addresses are masked before leaving the process.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    int64            `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, userID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: envelopeMetadata{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishLoginSucceeded publishes iam.auth.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		UserID   int64     `json:"user_id"`
		Email    string    `json:"email"`
		EntityID *int64    `json:"supervised_entity_id,omitempty"`
		At       time.Time `json:"at"`
		IP       string    `json:"ip,omitempty"`
	}{
		UserID:   event.UserID,
		Email:    logger.MaskEmail(event.Email),
		EntityID: event.EntityID,
		At:       event.At.UTC(),
		IP:       maskedIP(event.IP),
	}

	return p.publish(ctx, event.EventID, "iam.auth.login.succeeded", event.UserID, event.At, payload)
}

// PublishLoginFailed publishes iam.auth.login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	payload := struct {
		UserID   int64     `json:"user_id,omitempty"`
		Email    string    `json:"email"`
		Attempts int       `json:"failed_attempts"`
		At       time.Time `json:"at"`
		IP       string    `json:"ip,omitempty"`
	}{
		UserID:   event.UserID,
		Email:    logger.MaskEmail(event.Email),
		Attempts: event.Attempts,
		At:       event.At.UTC(),
		IP:       maskedIP(event.IP),
	}

	return p.publish(ctx, event.EventID, "iam.auth.login.failed", event.UserID, event.At, payload)
}

// PublishAccountLocked publishes iam.auth.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		UserID      int64     `json:"user_id"`
		Attempts    int       `json:"failed_attempts"`
		LockedUntil time.Time `json:"locked_until"`
		At          time.Time `json:"at"`
	}{
		UserID:      event.UserID,
		Attempts:    event.Attempts,
		LockedUntil: event.LockedUntil.UTC(),
		At:          event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "iam.auth.account.locked", event.UserID, event.At, payload)
}

// PublishTokensRevoked publishes iam.auth.tokens.revoked events.
func (p *EventPublisher) PublishTokensRevoked(ctx context.Context, event domain.TokensRevokedEvent) error {
	payload := struct {
		UserID int64     `json:"user_id"`
		Count  int       `json:"count"`
		Reason string    `json:"reason"`
		At     time.Time `json:"at"`
	}{
		UserID: event.UserID,
		Count:  event.Count,
		Reason: event.Reason,
		At:     event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "iam.auth.tokens.revoked", event.UserID, event.At, payload)
}

// PublishRefreshReuseDetected publishes iam.auth.refresh.reuse_detected events.
func (p *EventPublisher) PublishRefreshReuseDetected(ctx context.Context, event domain.RefreshReuseDetectedEvent) error {
	payload := struct {
		UserID       int64     `json:"user_id"`
		TokenID      string    `json:"token_id"`
		ChainRevoked int       `json:"chain_revoked"`
		At           time.Time `json:"at"`
		IP           string    `json:"ip,omitempty"`
	}{
		UserID:       event.UserID,
		TokenID:      event.TokenID,
		ChainRevoked: event.ChainRevoked,
		At:           event.At.UTC(),
		IP:           maskedIP(event.IP),
	}

	return p.publish(ctx, event.EventID, "iam.auth.refresh.reuse_detected", event.UserID, event.At, payload)
}

func maskedIP(ip *string) string {
	if ip == nil {
		return ""
	}
	return logger.MaskIP(*ip)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
