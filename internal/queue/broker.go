package queue

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Queue names.
const (
	BookingEventsQueue = "booking.events"
	IdentitySyncQueue  = "identity.sync"
)

// Broker owns one lazily opened connection and channel used for
// publishing and polling. A closed connection is redialled on next use.
type Broker struct {
	url  string
	log  zerolog.Logger
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewBroker(url string, log zerolog.Logger) *Broker {
	return &Broker{url: url, log: log.With().Str("component", "rabbitmq").Logger()}
}

// channel returns an open channel with both queues declared. Callers
// must hold b.mu.
func (b *Broker) channel() (*amqp.Channel, error) {
	if b.ch != nil && !b.ch.IsClosed() && b.conn != nil && !b.conn.IsClosed() {
		return b.ch, nil
	}
	b.closeLocked()

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	for _, name := range []string{BookingEventsQueue, IdentitySyncQueue} {
		// durable so messages survive broker restarts
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("queue declare %s: %w", name, err)
		}
	}
	b.conn, b.ch = conn, ch
	b.log.Info().Msg("broker connected")
	return ch, nil
}

func (b *Broker) closeLocked() {
	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

// Close releases the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	return nil
}
