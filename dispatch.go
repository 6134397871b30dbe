package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrDeliveryFailed wraps a channel error. The dispatch loop stops on it.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// DispatchEngine is the single consumer of the notification queue. It paces
// deliveries by each notification's own display time and collapses bursts of
// joins or leaves into one grouped notification.
type DispatchEngine struct {
	queue    *notificationQueue
	channels []Channel
	session  *Session
	config   *ConfigStore
	log      zerolog.Logger
	metrics  *pipelineMetrics

	quiet time.Duration
}

func NewDispatchEngine(queue *notificationQueue, channels []Channel, session *Session, config *ConfigStore, metrics *pipelineMetrics, log zerolog.Logger) *DispatchEngine {
	return &DispatchEngine{
		queue:    queue,
		channels: channels,
		session:  session,
		config:   config,
		log:      log.With().Str("component", "dispatch").Logger(),
		metrics:  metrics,
	}
}

// Run drains the queue until ctx is cancelled or a delivery fails. Pending
// entries and any remaining quiet time are abandoned on cancellation.
func (d *DispatchEngine) Run(ctx context.Context) error {
	tick := d.config.Get().Dispatch.Tick
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Int("abandoned", d.queue.Len()).Msg("dispatch stopped")
			return nil
		case <-ticker.C:
			if err := d.step(ctx, tick); err != nil {
				return err
			}
			if next := d.config.Get().Dispatch.Tick; next != tick {
				tick = next
				ticker.Reset(tick)
			}
		}
	}
}

// step runs one tick of the loop. It delivers at most one notification.
func (d *DispatchEngine) step(ctx context.Context, tick time.Duration) error {
	d.quiet -= tick
	if d.quiet < 0 {
		d.quiet = 0
	}
	if d.quiet > 0 {
		return nil
	}

	head, skipped := d.queue.pop()
	if skipped > 0 {
		d.log.Debug().Int("count", skipped).Msg("skipped merged notifications")
	}
	if head == nil {
		return nil
	}
	d.quiet = head.duration()

	if isJoinLeave(head.kind) {
		if n := d.queue.absorb(head); n > 0 {
			d.metrics.notificationsMerged(head.kind, n)
		}
	}

	n := d.compose(head)
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, n); err != nil {
			if ctx.Err() != nil {
				d.log.Debug().Err(err).Str("channel", ch.Name()).Msg("delivery interrupted by shutdown")
				return nil
			}
			d.log.Error().Err(err).Str("channel", ch.Name()).Str("kind", string(n.Kind)).Msg("deliver notification")
			return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, ch.Name(), err)
		}
	}
	d.metrics.notificationDelivered(n.Kind)
	return nil
}

// compose builds the outgoing notification, folding merged children into a
// group title and a comma separated body.
func (d *DispatchEngine) compose(head *pendingNotification) Notification {
	n := head.payload
	if !isJoinLeave(head.kind) {
		return n
	}
	n.Occupancy = d.session.Snapshot().Occupancy()
	if len(head.children) == 0 {
		return n
	}

	names := make([]string, 0, len(head.children)+1)
	names = append(names, n.Title)
	for _, c := range head.children {
		names = append(names, c.Title)
	}
	verb := "Join"
	if head.kind == KindPlayerLeft {
		verb = "Leave"
	}
	n.Title = fmt.Sprintf("Group %s: %d users.", verb, len(names))
	n.Body = strings.Join(names, ", ")
	return n
}
