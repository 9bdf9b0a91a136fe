package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nshruti113/ddos-detector/internal/models"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeEnforcer struct {
	mu        sync.Mutex
	blocked   map[string]bool
	blocks    int
	unblocks  int
	failBlock bool
}

func newFakeEnforcer() *fakeEnforcer {
	return &fakeEnforcer{blocked: make(map[string]bool)}
}

func (f *fakeEnforcer) Name() string { return "fake" }

func (f *fakeEnforcer) Block(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks++
	if f.failBlock {
		return errors.New("rule insert failed")
	}
	f.blocked[id] = true
	return nil
}

func (f *fakeEnforcer) Unblock(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unblocks++
	delete(f.blocked, id)
	return nil
}

func (f *fakeEnforcer) isBlocked(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[id]
}

func (f *fakeEnforcer) counts() (blocks, unblocks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks, f.unblocks
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []models.Alert
	err     error
}

func (f *fakeReporter) Report(_ context.Context, alert models.Alert, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, alert)
	return f.err
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func synEvent(src string) models.PacketEvent {
	return models.PacketEvent{
		SourceID:  src,
		Protocol:  models.ProtocolTCP,
		TCPFlags:  models.FlagSYN,
		DstPort:   80,
		SizeBytes: 60,
	}
}

func httpEvent(src string) models.PacketEvent {
	return models.PacketEvent{
		SourceID:  src,
		Protocol:  models.ProtocolTCP,
		TCPFlags:  models.FlagACK | models.FlagPSH,
		DstPort:   80,
		Payload:   []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
		SizeBytes: 120,
	}
}

func udpEvent(src string) models.PacketEvent {
	return models.PacketEvent{
		SourceID:  src,
		Protocol:  models.ProtocolUDP,
		DstPort:   53,
		SizeBytes: 512,
	}
}

// newTestEngine builds an engine driven by a fake clock. Loops are not
// started; tests call process and sweep directly unless they Start it.
func newTestEngine(cfg Config, enforcer Enforcer, reporter Reporter, sinks ...AlertSink) (*Engine, *fakeClock) {
	clock := newFakeClock()
	e := NewEngine(cfg, enforcer, reporter, sinks...)
	e.now = clock.Now
	return e, clock
}
