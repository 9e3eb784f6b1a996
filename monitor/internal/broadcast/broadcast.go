// Package broadcast fans telemetry events out to connected subscribers.
//
// The Broadcaster keeps no history: a subscriber only sees events
// published after it joined. Delivery is best effort and a failing
// subscriber never affects the others or the publisher.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
	"github.com/cybermonitor/monitor-stack/monitor/internal/protocol"
)

// Event names seen by subscribers.
const (
	EventReceiveStats     = "ReceiveStats"
	EventReceiveProcesses = "ReceiveProcesses"
	EventReceiveDiskInfo  = "ReceiveDiskInfo"
	EventProcessKilled    = "ProcessKilled"
)

// DefaultSendTimeout bounds a single subscriber send.
const DefaultSendTimeout = 2 * time.Second

// ErrSubscriberNotFound is returned by SendTo for an unknown subscriber.
var ErrSubscriberNotFound = errors.New("broadcast: subscriber not found")

// Event is a named notification with positional arguments.
type Event struct {
	Name string `json:"event"`
	Args []any  `json:"args"`
}

// EventForMessage maps a decoded protocol message to its subscriber event.
// The body is passed as a string so it reaches subscribers untouched.
func EventForMessage(msg protocol.Message) (Event, bool) {
	var name string
	switch msg.Kind {
	case protocol.KindStats:
		name = EventReceiveStats
	case protocol.KindProcesses:
		name = EventReceiveProcesses
	case protocol.KindDiskInfo:
		name = EventReceiveDiskInfo
	default:
		return Event{}, false
	}
	return Event{Name: name, Args: []any{msg.Body}}, true
}

// ProcessKilledEvent builds the notification emitted by the kill operation.
func ProcessKilledEvent(pid int32, success bool, message string) Event {
	return Event{Name: EventProcessKilled, Args: []any{pid, success, message}}
}

// Subscriber is a connected receiver supplied by the transport layer.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, ev Event) error
}

// DeliveryError describes a failed send to one subscriber.
type DeliveryError struct {
	SubscriberID string
	Event        string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("broadcast: deliver %s to %s: %v", e.Event, e.SubscriberID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Broadcaster holds the current subscriber set.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	sendTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Broadcaster. A zero sendTimeout uses DefaultSendTimeout.
func New(sendTimeout time.Duration, logger *slog.Logger) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Broadcaster{
		subscribers: make(map[string]Subscriber),
		sendTimeout: sendTimeout,
		logger:      logging.OrDefault(logger),
	}
}

// Join adds s to the set, replacing any subscriber with the same ID.
func (b *Broadcaster) Join(s Subscriber) {
	b.mu.Lock()
	b.subscribers[s.ID()] = s
	n := len(b.subscribers)
	b.mu.Unlock()

	metrics.Subscribers.Set(float64(n))
	b.logger.Debug("subscriber joined", logging.SubscriberID(s.ID()), logging.Count(n))
}

// Leave removes the subscriber with the given ID. Unknown IDs are ignored.
func (b *Broadcaster) Leave(id string) {
	b.mu.Lock()
	_, ok := b.subscribers[id]
	delete(b.subscribers, id)
	n := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		metrics.Subscribers.Set(float64(n))
		b.logger.Debug("subscriber left", logging.SubscriberID(id), logging.Count(n))
	}
}

// Count returns the number of connected subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broadcaster) snapshot() []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// Publish delivers ev to every subscriber connected when the call starts
// and returns the number of successful deliveries. Subscribers are sent
// to in parallel, so a stalled one costs the publisher at most one send
// timeout and never delays the others. Publish returns after every send
// has finished, which keeps each subscriber's events in publish order.
// Failures are logged and counted, never returned.
func (b *Broadcaster) Publish(ctx context.Context, ev Event) int {
	subs := b.snapshot()

	var delivered atomic.Int64
	deliver := func(s Subscriber) {
		if err := b.send(ctx, s, ev); err != nil {
			metrics.DeliveryErrors.WithLabelValues(ev.Name).Inc()
			b.logger.Warn("delivery failed",
				logging.SubscriberID(s.ID()),
				slog.String("event", ev.Name),
				logging.Error(err),
			)
			return
		}
		delivered.Add(1)
	}

	if len(subs) == 1 {
		deliver(subs[0])
	} else {
		var wg sync.WaitGroup
		for _, s := range subs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				deliver(s)
			}()
		}
		wg.Wait()
	}

	metrics.Broadcasts.WithLabelValues(ev.Name).Inc()
	return int(delivered.Load())
}

// PublishMessage publishes the event for a decoded protocol message.
// Messages with an invalid kind are dropped.
func (b *Broadcaster) PublishMessage(ctx context.Context, msg protocol.Message) int {
	ev, ok := EventForMessage(msg)
	if !ok {
		return 0
	}
	return b.Publish(ctx, ev)
}

// SendTo delivers ev to a single subscriber.
func (b *Broadcaster) SendTo(ctx context.Context, id string, ev Event) error {
	b.mu.RLock()
	s, ok := b.subscribers[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriberNotFound, id)
	}
	return b.send(ctx, s, ev)
}

// send isolates one delivery: it applies the send timeout and turns a
// panicking subscriber into a DeliveryError.
func (b *Broadcaster) send(ctx context.Context, s Subscriber, ev Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{SubscriberID: s.ID(), Event: ev.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if sendErr := s.Send(ctx, ev); sendErr != nil {
		return &DeliveryError{SubscriberID: s.ID(), Event: ev.Name, Err: sendErr}
	}
	return nil
}
