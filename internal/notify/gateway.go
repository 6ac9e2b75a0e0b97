// Package notify implements the push notification gateway. The production
// gateway publishes JSON events to a Kafka topic consumed by the delivery
// service; a log-only gateway stands in when no brokers are configured.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/gramseva/backend/internal/models"
	"github.com/gramseva/backend/internal/services"
)

const (
	EventProvidersNewRequest = "request.wave"
	EventSeekerAccepted      = "request.accepted"
	EventProvidersClosed     = "request.closed"
	EventSeekerNoProviders   = "request.no_providers"
	EventSeekerExpired       = "request.expired"
)

type pushEvent struct {
	Kind       string         `json:"kind"`
	RequestID  uuid.UUID      `json:"request_id"`
	Recipients []uuid.UUID    `json:"recipients"`
	Payload    map[string]any `json:"payload,omitempty"`
	SentAt     time.Time      `json:"sent_at"`
}

// KafkaGateway publishes push events to a single topic, keyed by request id
// so all events for a request land in one partition, in order.
type KafkaGateway struct {
	writer *kafka.Writer
}

func NewKafkaGateway(brokers []string, topic string) *KafkaGateway {
	return &KafkaGateway{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (g *KafkaGateway) Close() error {
	return g.writer.Close()
}

func (g *KafkaGateway) publish(ctx context.Context, ev pushEvent) error {
	ev.SentAt = time.Now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}
	return g.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RequestID.String()),
		Value: value,
	})
}

func (g *KafkaGateway) NotifyProvidersNewRequest(ctx context.Context, req *models.ServiceRequest, providerIDs []uuid.UUID, radiusMeters float64) error {
	return g.publish(ctx, pushEvent{
		Kind:       EventProvidersNewRequest,
		RequestID:  req.ID,
		Recipients: providerIDs,
		Payload: map[string]any{
			"category_id":        req.CategoryID,
			"description":        req.Description,
			"service_start_date": req.ServiceStartDate,
			"service_end_date":   req.ServiceEndDate,
			"radius_meters":      radiusMeters,
			"expires_at":         req.ExpiresAt,
		},
	})
}

func (g *KafkaGateway) NotifySeekerAccepted(ctx context.Context, req *models.ServiceRequest, order *models.Order) error {
	return g.publish(ctx, pushEvent{
		Kind:       EventSeekerAccepted,
		RequestID:  req.ID,
		Recipients: []uuid.UUID{req.SeekerID},
		Payload: map[string]any{
			"provider_id": order.ProviderID,
			"order_id":    order.ID,
			"price_paise": order.PricePaise,
		},
	})
}

func (g *KafkaGateway) NotifyProvidersClosed(ctx context.Context, requestID uuid.UUID, providerIDs []uuid.UUID, reason string) error {
	return g.publish(ctx, pushEvent{
		Kind:       EventProvidersClosed,
		RequestID:  requestID,
		Recipients: providerIDs,
		Payload:    map[string]any{"reason": reason},
	})
}

func (g *KafkaGateway) NotifySeekerNoProviders(ctx context.Context, req *models.ServiceRequest) error {
	return g.publish(ctx, pushEvent{
		Kind:       EventSeekerNoProviders,
		RequestID:  req.ID,
		Recipients: []uuid.UUID{req.SeekerID},
	})
}

func (g *KafkaGateway) NotifySeekerExpired(ctx context.Context, req *models.ServiceRequest) error {
	return g.publish(ctx, pushEvent{
		Kind:       EventSeekerExpired,
		RequestID:  req.ID,
		Recipients: []uuid.UUID{req.SeekerID},
	})
}

var _ services.NotificationGateway = (*KafkaGateway)(nil)

// LogGateway records notifications in the application log. Used in
// development when KAFKA_BROKERS is unset.
type LogGateway struct {
	log *slog.Logger
}

func NewLogGateway(log *slog.Logger) *LogGateway {
	if log == nil {
		log = slog.Default()
	}
	return &LogGateway{log: log}
}

func (g *LogGateway) NotifyProvidersNewRequest(_ context.Context, req *models.ServiceRequest, providerIDs []uuid.UUID, radiusMeters float64) error {
	g.log.Info("notify: new request wave", "request_id", req.ID, "providers", len(providerIDs), "radius_m", radiusMeters)
	return nil
}

func (g *LogGateway) NotifySeekerAccepted(_ context.Context, req *models.ServiceRequest, order *models.Order) error {
	g.log.Info("notify: request accepted", "request_id", req.ID, "seeker_id", req.SeekerID, "order_id", order.ID)
	return nil
}

func (g *LogGateway) NotifyProvidersClosed(_ context.Context, requestID uuid.UUID, providerIDs []uuid.UUID, reason string) error {
	g.log.Info("notify: request closed", "request_id", requestID, "providers", len(providerIDs), "reason", reason)
	return nil
}

func (g *LogGateway) NotifySeekerNoProviders(_ context.Context, req *models.ServiceRequest) error {
	g.log.Info("notify: no providers available", "request_id", req.ID, "seeker_id", req.SeekerID)
	return nil
}

func (g *LogGateway) NotifySeekerExpired(_ context.Context, req *models.ServiceRequest) error {
	g.log.Info("notify: request expired", "request_id", req.ID, "seeker_id", req.SeekerID)
	return nil
}

var _ services.NotificationGateway = (*LogGateway)(nil)
