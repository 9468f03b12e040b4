package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/bus-ticketing-crm/internal/identity"
)

// SyncQueue implements identity.Queue on the durable identity.sync
// queue. Messages are fetched with basic.get and manual acks, so a job
// being processed when the process dies is redelivered.
type SyncQueue struct {
	broker *Broker
}

func NewSyncQueue(b *Broker) *SyncQueue { return &SyncQueue{broker: b} }

func (q *SyncQueue) Enqueue(ctx context.Context, job identity.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.broker.publish(ctx, IdentitySyncQueue, body)
}

func (q *SyncQueue) Dequeue(_ context.Context) (identity.Delivery, bool, error) {
	b := q.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channel()
	if err != nil {
		return identity.Delivery{}, false, err
	}
	msg, ok, err := ch.Get(IdentitySyncQueue, false)
	if err != nil {
		b.closeLocked()
		return identity.Delivery{}, false, fmt.Errorf("queue get: %w", err)
	}
	if !ok {
		return identity.Delivery{}, false, nil
	}
	var job identity.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		// reject, do not requeue to avoid tight loops
		_ = msg.Nack(false, false)
		return identity.Delivery{}, false, fmt.Errorf("unmarshal job: %w", err)
	}
	return identity.NewDelivery(job,
		func() error { return msg.Ack(false) },
		func() error { return msg.Nack(false, true) },
	), true, nil
}

var _ identity.Queue = (*SyncQueue)(nil)
