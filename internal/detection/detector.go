package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/metrics"
	"github.com/nshruti113/ddos-detector/internal/models"
)

// Config holds the detection engine settings
type Config struct {
	Threshold             int
	Window                time.Duration
	DedupMultiplier       int
	ProcessPrivateSources bool
	QueueSize             int
	PollTimeout           time.Duration
	MaintenanceInterval   time.Duration
	HistorySize           int
	MaxSources            int
	TopN                  int

	Enforce        bool
	EnforceTimeout time.Duration
	ReportTimeout  time.Duration

	// TeardownTimeout bounds lifting every block on shutdown
	TeardownTimeout time.Duration
}

// DefaultConfig returns the stock detection settings
func DefaultConfig() Config {
	return Config{
		Threshold:           1000,
		Window:              10 * time.Second,
		DedupMultiplier:     2,
		QueueSize:           10000,
		PollTimeout:         time.Second,
		MaintenanceInterval: 5 * time.Second,
		HistorySize:         100,
		TopN:                10,
		EnforceTimeout:      5 * time.Second,
		ReportTimeout:       5 * time.Second,
		TeardownTimeout:     8 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.DedupMultiplier <= 0 {
		c.DedupMultiplier = d.DedupMultiplier
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = d.MaintenanceInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.TopN <= 0 {
		c.TopN = d.TopN
	}
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = d.TeardownTimeout
	}
	return c
}

var errAlreadyRunning = errors.New("engine already running")

// Engine ties the pipeline, traffic store, threshold rules and alert
// manager together behind a start/stop lifecycle.
type Engine struct {
	cfg      Config
	store    *TrafficStore
	alerts   *AlertManager
	pipeline *Pipeline
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewEngine builds an engine. enforcer and reporter may be nil.
func NewEngine(cfg Config, enforcer Enforcer, reporter Reporter, sinks ...AlertSink) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:   cfg,
		store: NewTrafficStore(cfg.MaxSources),
		now:   time.Now,
		log:   logging.Component("engine"),
	}
	e.alerts = NewAlertManager(AlertConfig{
		Window:          cfg.Window,
		DedupMultiplier: cfg.DedupMultiplier,
		HistorySize:     cfg.HistorySize,
		Enforce:         cfg.Enforce,
		EnforceTimeout:  cfg.EnforceTimeout,
		ReportTimeout:   cfg.ReportTimeout,
	}, e.store, enforcer, reporter, sinks...)
	e.pipeline = NewPipeline(cfg.QueueSize, cfg.ProcessPrivateSources, e.alerts.IsBlocked)
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Alerts exposes the alert manager for read access and manual unblocks
func (e *Engine) Alerts() *AlertManager {
	return e.alerts
}

// Ingest hands an event to the pipeline. It never blocks.
func (e *Engine) Ingest(ev models.PacketEvent) error {
	return e.pipeline.Submit(ev)
}

// Start runs the engine in the background until Stop is called or ctx is done
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	go func(done chan struct{}) {
		defer close(done)
		_ = e.Serve(ctx)
	}(e.done)

	return nil
}

// Stop cancels the loops, waits for them to exit and lifts any blocks
// applied while running. The pipeline stays closed afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.mu.Unlock()

	e.pipeline.Close()
	cancel()
	<-done
}

// Serve runs the processor, maintenance and dispatch loops until ctx is
// done. It implements suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	e.log.Info().
		Int("threshold", e.cfg.Threshold).
		Dur("window", e.cfg.Window).
		Bool("enforce", e.cfg.Enforce).
		Bool("process_private_sources", e.cfg.ProcessPrivateSources).
		Int("queue_size", e.cfg.QueueSize).
		Msg("🔍 detection engine started")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.alerts.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runProcessor(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runMaintenance(ctx)
	}()
	wg.Wait()

	e.teardown()
	e.log.Info().Msg("detection engine stopped")
	return ctx.Err()
}

func (e *Engine) teardown() {
	if !e.cfg.Enforce {
		return
	}
	blocked := e.alerts.Blocked()
	if len(blocked) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TeardownTimeout)
	defer cancel()

	n := e.alerts.UnblockAll(ctx)
	e.log.Info().
		Int("unblocked", n).
		Int("failed", len(blocked)-n).
		Msg("lifted blocks on shutdown")
}

func (e *Engine) runProcessor(ctx context.Context) {
	for ctx.Err() == nil {
		ev, ok := e.pipeline.Next(ctx, e.cfg.PollTimeout)
		if !ok {
			continue
		}
		e.process(ev)
	}
}

// process applies one event to the store and raises an alert when the
// threshold rules match. A panic skips the event and the loop goes on.
func (e *Engine) process(ev models.PacketEvent) (alert models.Alert, raised bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ProcessingPanics.Inc()
			e.log.Error().
				Str("error_category", categoryInternal).
				Str("source", ev.SourceID).
				Interface("panic", r).
				Msg("event processing panicked, skipping")
			alert, raised = models.Alert{}, false
		}
	}()

	if e.alerts.IsBlocked(ev.SourceID) {
		metrics.EventsDropped.WithLabelValues("blocked").Inc()
		return models.Alert{}, false
	}

	now := e.now()
	v, hit, err := e.store.Observe(ev.SourceID, Classify(ev), now, e.cfg.Window, e.cfg.Threshold)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("capacity").Inc()
		e.log.Debug().
			Err(err).
			Str("error_category", categoryIngestion).
			Str("source", ev.SourceID).
			Msg("dropping event")
		return models.Alert{}, false
	}
	metrics.EventsProcessed.Inc()

	if !hit {
		return models.Alert{}, false
	}
	return e.alerts.Consider(ev.SourceID, v, now)
}

// Statistics returns the top sources by cumulative count plus recent alerts
func (e *Engine) Statistics() models.Statistics {
	top := e.store.Top(e.cfg.TopN)
	for i := range top {
		top[i].Blocked = e.alerts.IsBlocked(top[i].SourceID)
	}

	return models.Statistics{
		GeneratedAt:    e.now(),
		TrackedSources: e.store.Len(),
		TopSources:     top,
		RecentAlerts:   e.alerts.Recent(e.cfg.TopN),
		BlockedSources: e.alerts.Blocked(),
		QueueDepth:     e.pipeline.Len(),
	}
}
