package production

import (
	"context"

	"github.com/comalice/scxmlcore/ir"
)

// PublishedEvent bundles an event with its owning session id for an
// observability sink — adapted from the teacher's PublishedEvent (which
// bundled primitives.Event with core.MachineMetadata).
type PublishedEvent struct {
	SessionID string
	Event     ir.EventObject
}

// EventPublisher is implemented by anything that wants a read-only feed of
// every event a session processes, for logging/metrics/debugging. It is
// never consulted for correctness — a publisher failing or blocking must
// never affect session execution (spec.md §5: ambient observability is a
// side channel).
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, ev ir.EventObject) error
	Close() error
}

// ChannelPublisher forwards events to a Go channel, non-blocking: a full
// channel drops the event rather than stalling the session driver.
type ChannelPublisher struct {
	ch chan<- PublishedEvent
}

// NewChannelPublisher creates a ChannelPublisher writing to ch.
func NewChannelPublisher(ch chan<- PublishedEvent) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, sessionID string, ev ir.EventObject) error {
	select {
	case p.ch <- PublishedEvent{SessionID: sessionID, Event: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}
