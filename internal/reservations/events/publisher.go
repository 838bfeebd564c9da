// Package events publishes reservation lifecycle events to Kafka.
// Publishing is best-effort: failures are logged and never surface to the
// caller, so event delivery can never block or fail a committed booking.
package events

import (
	"context"

	"campsite/pkg/kafka"
	"campsite/pkg/logger"
	"campsite/pkg/middleware"
	"campsite/pkg/model"
)

const (
	EventReservationCreated   = "reservation.created"
	EventReservationUpdated   = "reservation.updated"
	EventReservationCancelled = "reservation.cancelled"

	source = "reservations"
)

type Publisher interface {
	ReservationCreated(ctx context.Context, reservation *model.Reservation)
	ReservationUpdated(ctx context.Context, reservation *model.Reservation, previousID string)
	ReservationCancelled(ctx context.Context, reservation *model.Reservation)
}

type reservationEvent struct {
	ID         string     `json:"id"`
	PreviousID string     `json:"previous_id,omitempty"`
	Email      string     `json:"email"`
	StartFrom  model.Date `json:"startFrom"`
	EndTo      model.Date `json:"endTo"`
}

type kafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		log:      log,
	}
}

func (p *kafkaPublisher) ReservationCreated(ctx context.Context, reservation *model.Reservation) {
	p.publish(ctx, EventReservationCreated, reservation, "")
}

func (p *kafkaPublisher) ReservationUpdated(ctx context.Context, reservation *model.Reservation, previousID string) {
	p.publish(ctx, EventReservationUpdated, reservation, previousID)
}

func (p *kafkaPublisher) ReservationCancelled(ctx context.Context, reservation *model.Reservation) {
	p.publish(ctx, EventReservationCancelled, reservation, "")
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType string, reservation *model.Reservation, previousID string) {
	msg := kafka.NewMessage().
		WithKey(reservation.ID).
		WithValue(reservationEvent{
			ID:         reservation.ID,
			PreviousID: previousID,
			Email:      reservation.Email,
			StartFrom:  reservation.StartFrom,
			EndTo:      reservation.EndTo,
		}).
		WithEventType(eventType).
		WithSource(source).
		WithCorrelationID(middleware.RequestID(ctx)).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish reservation event",
			"event_type", eventType,
			"id", reservation.ID,
			"error", err,
		)
	}
}

type nopPublisher struct{}

// NewNopPublisher returns a Publisher that drops all events, for
// deployments without a broker.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) ReservationCreated(context.Context, *model.Reservation)         {}
func (nopPublisher) ReservationUpdated(context.Context, *model.Reservation, string) {}
func (nopPublisher) ReservationCancelled(context.Context, *model.Reservation)       {}
