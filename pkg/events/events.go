package events

import (
	"sync"
	"time"
)

// EventType names a lifecycle transition somewhere in the daemon.
type EventType string

const (
	// EventJobResolved fires every time resolve_job creates or
	// refcounts a per-job exporter (jobid in Metadata["jobid"]).
	EventJobResolved EventType = "job.resolved"
	// EventJobRelaxed fires when a job's refcount reaches zero, after
	// the entry has been removed from the registry and the relax hook
	// has run.
	EventJobRelaxed EventType = "job.relaxed"
	// EventScrapeSourceDown fires when a Proxy/Prometheus scrape
	// source is evicted after a failed pull.
	EventScrapeSourceDown EventType = "scrape.source_down"
	// EventTraceFolded fires after a trace self-folds.
	EventTraceFolded EventType = "trace.folded"
)

// Event is one published lifecycle notification. Metadata carries only
// string identifiers (jobid, source_id); live handles never travel
// through the broker.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Metadata  map[string]string
}

// Subscriber receives published events.
type Subscriber chan *Event

// Broker fans published events out to subscribers. Publishing never
// blocks on a slow consumer: the broker's inbox is bounded, and a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool

	eventCh chan *Event
	stopCh  chan struct{}
}

// NewBroker returns a stopped broker; call Start before publishing.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the distribution goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution. Pending events are dropped.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues event for distribution, stamping Timestamp if the
// caller left it zero.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// SubscriberCount reports how many subscribers are registered.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Full buffer; this subscriber misses the event.
		}
	}
}
