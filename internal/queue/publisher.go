package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes booking events to the booking.events queue.
type Publisher struct {
	broker *Broker
}

func NewPublisher(b *Broker) *Publisher { return &Publisher{broker: b} }

// PublishBookingEvent sends ev as a persistent JSON message on the
// default exchange. Errors are logged and returned so callers can
// ignore them without interrupting the request.
func (p *Publisher) PublishBookingEvent(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.broker.publish(ctx, BookingEventsQueue, body); err != nil {
		p.broker.log.Warn().Err(err).Str("type", ev.Type).Uint64("booking_id", ev.BookingID).Msg("publish booking event failed")
		return err
	}
	return nil
}

func (b *Broker) publish(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		b.closeLocked()
		return err
	}
	return nil
}
