// Package relay mirrors broadcast events onto the message bus and serves
// kill requests arriving from it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/common/messaging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/broadcast"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
	"github.com/cybermonitor/monitor-stack/monitor/internal/service"
)

// SubscriberID identifies the relay inside the broadcaster.
const SubscriberID = "nats-relay"

var errUnmappedEvent = errors.New("relay: event has no subject")

// SubjectFor returns the bus subject for a broadcast event name.
func SubjectFor(event string) (string, bool) {
	switch event {
	case broadcast.EventReceiveStats:
		return messaging.SubjectTelemetryStats, true
	case broadcast.EventReceiveProcesses:
		return messaging.SubjectTelemetryProcesses, true
	case broadcast.EventReceiveDiskInfo:
		return messaging.SubjectTelemetryDisk, true
	case broadcast.EventProcessKilled:
		return messaging.SubjectProcessKilled, true
	}
	return "", false
}

// Relay is a broadcast subscriber that republishes events on the bus.
//
// Telemetry events are published with the producer's body as payload.
// ProcessKilled is published as a JSON object.
type Relay struct {
	publisher messaging.Publisher
	logger    *slog.Logger
}

// New creates a Relay publishing through publisher.
func New(publisher messaging.Publisher, logger *slog.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		logger:    logging.OrDefault(logger).With(logging.Component("relay")),
	}
}

func (r *Relay) ID() string { return SubscriberID }

// Send implements broadcast.Subscriber.
func (r *Relay) Send(ctx context.Context, ev broadcast.Event) error {
	subject, ok := SubjectFor(ev.Name)
	if !ok {
		return fmt.Errorf("%w: %s", errUnmappedEvent, ev.Name)
	}

	data, err := payload(ev)
	if err != nil {
		metrics.RelayErrors.WithLabelValues(subject).Inc()
		return err
	}

	if err := r.publisher.Publish(ctx, subject, data, messaging.WithHeader(messaging.HeaderEvent, ev.Name)); err != nil {
		metrics.RelayErrors.WithLabelValues(subject).Inc()
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

func payload(ev broadcast.Event) ([]byte, error) {
	if ev.Name == broadcast.EventProcessKilled {
		if len(ev.Args) != 3 {
			return nil, fmt.Errorf("relay: %s expects 3 args, got %d", ev.Name, len(ev.Args))
		}
		res := service.KillResult{}
		res.PID, _ = ev.Args[0].(int32)
		res.Success, _ = ev.Args[1].(bool)
		res.Message, _ = ev.Args[2].(string)
		return json.Marshal(res)
	}

	if len(ev.Args) != 1 {
		return nil, fmt.Errorf("relay: %s expects 1 arg, got %d", ev.Name, len(ev.Args))
	}
	body, ok := ev.Args[0].(string)
	if !ok {
		return nil, fmt.Errorf("relay: %s body is %T, not string", ev.Name, ev.Args[0])
	}
	return []byte(body), nil
}

// ProcessKiller carries out kill requests.
type ProcessKiller interface {
	Kill(ctx context.Context, pid int32, callerID string) (service.KillResult, error)
}

// KillRequest is the payload expected on messaging.SubjectProcessKill.
type KillRequest struct {
	PID int32 `json:"pid"`
}

// KillResponse is the reply to a KillRequest.
type KillResponse struct {
	service.KillResult
	Error string `json:"error,omitempty"`
}

// KillResponder answers kill requests from the bus.
type KillResponder struct {
	client messaging.Client
	killer ProcessKiller
	logger *slog.Logger

	sub messaging.Subscription
}

// NewKillResponder creates a KillResponder.
func NewKillResponder(client messaging.Client, killer ProcessKiller, logger *slog.Logger) *KillResponder {
	return &KillResponder{
		client: client,
		killer: killer,
		logger: logging.OrDefault(logger).With(logging.Component("relay")),
	}
}

// Start subscribes to messaging.SubjectProcessKill.
func (k *KillResponder) Start() error {
	sub, err := k.client.Subscribe(messaging.SubjectProcessKill, k.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messaging.SubjectProcessKill, err)
	}
	k.sub = sub
	k.logger.Info("listening for kill requests", logging.Subject(messaging.SubjectProcessKill))
	return nil
}

// Stop unsubscribes.
func (k *KillResponder) Stop() error {
	if k.sub == nil {
		return nil
	}
	return k.sub.Unsubscribe()
}

func (k *KillResponder) handle(ctx context.Context, msg *messaging.Message) error {
	var req KillRequest
	var resp KillResponse
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		resp.Error = "invalid request: " + err.Error()
	} else {
		// Bus callers are not broadcast subscribers, so failures are
		// reported only in the reply.
		res, err := k.killer.Kill(ctx, req.PID, "")
		resp.KillResult = res
		if err != nil {
			resp.Error = err.Error()
		}
	}

	if msg.Reply == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return k.client.Respond(ctx, msg, data)
}
