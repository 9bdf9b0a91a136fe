package detection

import (
	"context"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/metrics"
	"github.com/nshruti113/ddos-detector/internal/models"
)

// Pipeline is a bounded FIFO between event producers and the processor.
// When full, the incoming event is dropped so already-queued evidence is
// never displaced.
type Pipeline struct {
	queue        chan models.PacketEvent
	allowPrivate bool
	isBlocked    func(sourceID string) bool
	closed       atomic.Bool
	log          zerolog.Logger
}

// NewPipeline creates a pipeline holding up to size events. isBlocked may be nil.
func NewPipeline(size int, allowPrivate bool, isBlocked func(string) bool) *Pipeline {
	if size <= 0 {
		size = 10000
	}
	return &Pipeline{
		queue:        make(chan models.PacketEvent, size),
		allowPrivate: allowPrivate,
		isBlocked:    isBlocked,
		log:          logging.Component("pipeline"),
	}
}

// Submit validates, filters and enqueues an event without blocking. The
// returned error says why an event was dropped; callers may ignore it.
func (p *Pipeline) Submit(ev models.PacketEvent) error {
	if p.closed.Load() {
		metrics.EventsDropped.WithLabelValues("closed").Inc()
		return ErrPipelineClosed
	}

	if err := validateEvent(ev); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		p.log.Warn().
			Err(err).
			Str("error_category", categoryIngestion).
			Str("source", ev.SourceID).
			Msg("dropping malformed event")
		return err
	}

	if !p.allowPrivate && isPrivateSource(ev.SourceID) {
		metrics.EventsDropped.WithLabelValues("private").Inc()
		p.log.Debug().Str("source", ev.SourceID).Msg("dropping private source")
		return ErrSourceFiltered
	}

	if p.isBlocked != nil && p.isBlocked(ev.SourceID) {
		metrics.EventsDropped.WithLabelValues("blocked").Inc()
		p.log.Debug().Str("source", ev.SourceID).Msg("dropping blocked source")
		return ErrSourceBlocked
	}

	select {
	case p.queue <- ev:
		metrics.EventsIngested.Inc()
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		p.log.Debug().
			Str("error_category", categoryIngestion).
			Str("source", ev.SourceID).
			Msg("ingest queue full, dropping newest event")
		return ErrQueueFull
	}
}

// Next waits up to timeout for the next event. ok is false on timeout or
// when ctx is done.
func (p *Pipeline) Next(ctx context.Context, timeout time.Duration) (ev models.PacketEvent, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev = <-p.queue:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return ev, true
	case <-timer.C:
		return ev, false
	case <-ctx.Done():
		return ev, false
	}
}

// Len returns the number of queued events
func (p *Pipeline) Len() int {
	return len(p.queue)
}

// Close makes further Submit calls fail. Queued events are left for the
// processor to drain or discard.
func (p *Pipeline) Close() {
	p.closed.Store(true)
}

func validateEvent(ev models.PacketEvent) error {
	if ev.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrMalformedEvent)
	}
	if ev.Protocol == "" {
		return nil
	}
	if !ev.Protocol.Valid() {
		return fmt.Errorf("%w: unknown protocol %q", ErrMalformedEvent, ev.Protocol)
	}
	return nil
}

// isPrivateSource reports whether sourceID is an IP address in a private,
// loopback, link-local or unspecified range. Identifiers that are not IP
// addresses are treated as public.
func isPrivateSource(sourceID string) bool {
	addr, err := netip.ParseAddr(sourceID)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
