// Package ingest feeds work items from the event channel into the queue.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/AliToori/TradeDeskBot/models"
)

const enqueueTimeout = 10 * time.Second

// Status is a connection state change reported by a Transport.
type Status int

const (
	StatusOther Status = iota
	StatusConnected
	StatusReconnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnected:
		return "reconnected"
	case StatusDisconnected:
		return "disconnected"
	}
	return "other"
}

// Handler receives transport events.
type Handler interface {
	OnMessage(payload any)
	OnStatus(status Status, detail string)
}

// Transport delivers messages from one channel. Connection management
// (reconnects, decryption) is its own business.
type Transport interface {
	Subscribe(channel string, h Handler) error
	Close() error
}

// Enqueuer is the write side of the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, descriptor string) (models.WorkItem, error)
}

// Stats counts what a Listener has seen so far.
type Stats struct {
	Messages int64
	Enqueued int64
	Failed   int64
}

// Listener owns its transport and appends every received descriptor to the
// queue. Duplicate messages produce duplicate items.
type Listener struct {
	transport Transport
	queue     Enqueuer
	channel   string

	ctx      context.Context
	messages atomic.Int64
	enqueued atomic.Int64
	failed   atomic.Int64
}

func NewListener(transport Transport, queue Enqueuer, channel string) *Listener {
	return &Listener{
		transport: transport,
		queue:     queue,
		channel:   channel,
		ctx:       context.Background(),
	}
}

// Run subscribes and blocks until ctx is done, then closes the transport.
func (l *Listener) Run(ctx context.Context) error {
	l.ctx = context.WithoutCancel(ctx)

	log.Printf("[ingest] subscribing to %s", l.channel)
	if err := l.transport.Subscribe(l.channel, l); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}

	<-ctx.Done()
	log.Printf("[ingest] stopping")
	if err := l.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

func (l *Listener) OnMessage(payload any) {
	l.messages.Add(1)

	descriptors := Descriptors(payload)
	if len(descriptors) == 0 {
		log.Printf("[ingest] message without purchaseURLs ignored: %v", payload)
		return
	}

	for _, d := range descriptors {
		ctx, cancel := context.WithTimeout(l.ctx, enqueueTimeout)
		item, err := l.queue.Enqueue(ctx, d)
		cancel()
		if err != nil {
			l.failed.Add(1)
			log.Printf("[ingest] ✗ enqueue failed for %s: %v", d, err)
			continue
		}
		l.enqueued.Add(1)
		log.Printf("[ingest] queued item %d: %s", item.ID, d)
	}
}

func (l *Listener) OnStatus(status Status, detail string) {
	switch status {
	case StatusDisconnected:
		log.Printf("[ingest] ⚠ connection lost (%s)", detail)
	default:
		log.Printf("[ingest] %s (%s)", status, detail)
	}
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Messages: l.messages.Load(),
		Enqueued: l.enqueued.Load(),
		Failed:   l.failed.Load(),
	}
}
