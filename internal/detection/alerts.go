package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/metrics"
	"github.com/nshruti113/ddos-detector/internal/models"
)

// Enforcer applies and removes network-level blocks. Both calls must be
// idempotent.
type Enforcer interface {
	Name() string
	Block(ctx context.Context, sourceID string) error
	Unblock(ctx context.Context, sourceID string) error
}

// Reporter delivers an attack report to a remote collector. Delivery is
// at-most-once.
type Reporter interface {
	Report(ctx context.Context, alert models.Alert, window time.Duration) error
}

// AlertSink receives every new alert, e.g. for persistence or live feeds
type AlertSink interface {
	Name() string
	Publish(ctx context.Context, alert models.Alert) error
}

// SignatureResetter zeroes a source's signature counters after an alert
type SignatureResetter interface {
	ResetSignatures(sourceID string)
}

// AlertConfig controls dedup and side-effect behavior
type AlertConfig struct {
	Window          time.Duration
	DedupMultiplier int
	HistorySize     int
	Enforce         bool
	EnforceTimeout  time.Duration
	ReportTimeout   time.Duration
	SinkTimeout     time.Duration
	DispatchQueue   int
}

// AlertManager owns the alert history and the blocked set. Enforcement,
// reporting and sinks run on a dispatch worker so a slow collaborator
// never stalls the caller of Consider.
type AlertManager struct {
	cfg      AlertConfig
	enforcer Enforcer
	reporter Reporter
	sinks    []AlertSink
	resetter SignatureResetter

	mu      sync.Mutex
	history []models.Alert
	blocked map[string]time.Time

	jobs chan func(context.Context)
	log  zerolog.Logger
}

// NewAlertManager creates an AlertManager. enforcer and reporter may be nil.
func NewAlertManager(cfg AlertConfig, resetter SignatureResetter, enforcer Enforcer, reporter Reporter, sinks ...AlertSink) *AlertManager {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.DedupMultiplier <= 0 {
		cfg.DedupMultiplier = 2
	}
	if cfg.DispatchQueue <= 0 {
		cfg.DispatchQueue = 256
	}
	if cfg.EnforceTimeout <= 0 {
		cfg.EnforceTimeout = 5 * time.Second
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 5 * time.Second
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 2 * time.Second
	}

	return &AlertManager{
		cfg:      cfg,
		enforcer: enforcer,
		reporter: reporter,
		sinks:    sinks,
		resetter: resetter,
		history:  make([]models.Alert, 0, cfg.HistorySize),
		blocked:  make(map[string]time.Time),
		jobs:     make(chan func(context.Context), cfg.DispatchQueue),
		log:      logging.Component("alerts"),
	}
}

func (m *AlertManager) dedupWindow() time.Duration {
	return m.cfg.Window * time.Duration(m.cfg.DedupMultiplier)
}

// Consider raises an alert for sourceID unless one was raised within the
// dedup window. A suppressed call has no side effects.
func (m *AlertManager) Consider(sourceID string, v Verdict, now time.Time) (models.Alert, bool) {
	m.mu.Lock()
	if m.recentlyAlerted(sourceID, now) {
		m.mu.Unlock()
		metrics.AlertsSuppressed.Inc()
		m.log.Debug().
			Str("source", sourceID).
			Str("attack_type", v.AttackType.Label()).
			Msg("duplicate alert suppressed")
		return models.Alert{}, false
	}

	alert := models.Alert{
		ID:            uuid.New().String(),
		Time:          now,
		SourceID:      sourceID,
		AttackType:    v.AttackType,
		EvidenceCount: v.Evidence,
	}
	m.appendHistory(alert)
	m.mu.Unlock()

	if m.resetter != nil {
		m.resetter.ResetSignatures(sourceID)
	}

	metrics.AlertsRaised.WithLabelValues(v.AttackType.Label()).Inc()
	m.log.Warn().
		Str("alert_id", alert.ID).
		Str("source", sourceID).
		Str("attack_type", v.AttackType.String()).
		Int("evidence", v.Evidence).
		Msg("🚨 attack detected")

	if m.cfg.Enforce && m.enforcer != nil {
		m.dispatch(func(ctx context.Context) { m.block(ctx, sourceID) })
	}
	if m.reporter != nil {
		m.dispatch(func(ctx context.Context) { m.report(ctx, alert) })
	}
	for _, sink := range m.sinks {
		m.dispatch(func(ctx context.Context) { m.publish(ctx, sink, alert) })
	}

	return alert, true
}

// recentlyAlerted must be called with mu held
func (m *AlertManager) recentlyAlerted(sourceID string, now time.Time) bool {
	window := m.dedupWindow()
	for i := len(m.history) - 1; i >= 0; i-- {
		a := m.history[i]
		if a.SourceID == sourceID && now.Sub(a.Time) < window {
			return true
		}
	}
	return false
}

// appendHistory must be called with mu held
func (m *AlertManager) appendHistory(alert models.Alert) {
	if len(m.history) >= m.cfg.HistorySize {
		n := copy(m.history, m.history[len(m.history)-m.cfg.HistorySize+1:])
		m.history = m.history[:n]
	}
	m.history = append(m.history, alert)
}

func (m *AlertManager) dispatch(job func(context.Context)) {
	select {
	case m.jobs <- job:
	default:
		metrics.DispatchDropped.Inc()
		m.log.Warn().Msg("dispatch queue full, dropping side effect")
	}
}

// Run executes dispatched jobs until ctx is cancelled, then drains what is
// already queued. Jobs are bounded by their own timeouts only; cancelling
// ctx does not abort a call in flight.
func (m *AlertManager) Run(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			m.drain()
			return
		case job := <-m.jobs:
			m.runJob(jobCtx, job)
		}
	}
}

func (m *AlertManager) drain() {
	for {
		select {
		case job := <-m.jobs:
			m.runJob(context.Background(), job)
		default:
			return
		}
	}
}

func (m *AlertManager) runJob(ctx context.Context, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("error_category", categoryInternal).
				Interface("panic", r).
				Msg("dispatch job panicked")
		}
	}()
	job(ctx)
}

func (m *AlertManager) block(ctx context.Context, sourceID string) {
	if m.IsBlocked(sourceID) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.EnforceTimeout)
	defer cancel()

	if err := m.enforcer.Block(ctx, sourceID); err != nil {
		metrics.EnforcementActions.WithLabelValues("block", "error").Inc()
		m.logEnforcementError(&EnforcementError{Op: "block", SourceID: sourceID, Err: err})
		return
	}

	m.mu.Lock()
	m.blocked[sourceID] = time.Now()
	n := len(m.blocked)
	m.mu.Unlock()

	metrics.EnforcementActions.WithLabelValues("block", "ok").Inc()
	metrics.BlockedSources.Set(float64(n))
	m.log.Warn().
		Str("source", sourceID).
		Str("enforcer", m.enforcer.Name()).
		Msg("🛡️ source blocked")
}

func (m *AlertManager) report(ctx context.Context, alert models.Alert) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReportTimeout)
	defer cancel()

	start := time.Now()
	err := m.reporter.Report(ctx, alert, m.cfg.Window)
	metrics.ReportLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		rerr := &ReportError{SourceID: alert.SourceID, Err: err}
		m.log.Error().
			Err(rerr).
			Str("error_category", categoryReporting).
			Str("alert_id", alert.ID).
			Msg("attack report failed")
		return
	}

	m.log.Info().
		Str("alert_id", alert.ID).
		Str("source", alert.SourceID).
		Msg("attack reported")
}

func (m *AlertManager) publish(ctx context.Context, sink AlertSink, alert models.Alert) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SinkTimeout)
	defer cancel()

	if err := sink.Publish(ctx, alert); err != nil {
		metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
		m.log.Warn().
			Err(err).
			Str("sink", sink.Name()).
			Str("alert_id", alert.ID).
			Msg("alert sink failed")
	}
}

func (m *AlertManager) logEnforcementError(err *EnforcementError) {
	level := zerolog.ErrorLevel
	if errors.Is(err, context.DeadlineExceeded) {
		level = zerolog.WarnLevel
	}
	m.log.WithLevel(level).
		Err(err).
		Str("error_category", categoryEnforcement).
		Str("op", err.Op).
		Str("source", err.SourceID).
		Msg("enforcement failed")
}

// UnblockAll removes every block the manager applied. Failures are logged
// and the entry is kept. Sources not yet tried when ctx is done are left
// blocked. It returns the number of successful unblocks.
func (m *AlertManager) UnblockAll(ctx context.Context) int {
	if m.enforcer == nil {
		return 0
	}

	ok := 0
	for _, id := range m.Blocked() {
		if ctx.Err() != nil {
			break
		}
		if err := m.Unblock(ctx, id); err != nil {
			continue
		}
		ok++
	}
	return ok
}

// Unblock lifts a block on one source
func (m *AlertManager) Unblock(ctx context.Context, sourceID string) error {
	if m.enforcer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.EnforceTimeout)
	defer cancel()

	if err := m.enforcer.Unblock(ctx, sourceID); err != nil {
		eerr := &EnforcementError{Op: "unblock", SourceID: sourceID, Err: err}
		metrics.EnforcementActions.WithLabelValues("unblock", "error").Inc()
		m.logEnforcementError(eerr)
		return eerr
	}

	m.mu.Lock()
	delete(m.blocked, sourceID)
	n := len(m.blocked)
	m.mu.Unlock()

	metrics.EnforcementActions.WithLabelValues("unblock", "ok").Inc()
	metrics.BlockedSources.Set(float64(n))
	m.log.Info().Str("source", sourceID).Msg("source unblocked")
	return nil
}

// IsBlocked reports whether sourceID is in the blocked set
func (m *AlertManager) IsBlocked(sourceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[sourceID]
	return ok
}

// Blocked returns the blocked sources in sorted order
func (m *AlertManager) Blocked() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.blocked))
	for id := range m.blocked {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Recent returns up to n alerts, newest first. n <= 0 returns all of them.
func (m *AlertManager) Recent(n int) []models.AlertView {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]models.AlertView, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		a := m.history[i]
		_, blocked := m.blocked[a.SourceID]
		out = append(out, models.AlertView{Alert: a, Blocked: blocked})
	}
	return out
}

// HistoryLen returns the number of alerts held for dedup lookback
func (m *AlertManager) HistoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}
