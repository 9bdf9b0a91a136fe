// Package report delivers attack reports to a remote collector over HTTP.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/metrics"
	"github.com/nshruti113/ddos-detector/internal/models"
)

// ReportPath is appended to the collector base URL
const ReportPath = "/api/report-attack"

// ErrUnexpectedStatus is returned when the collector does not answer 201
var ErrUnexpectedStatus = errors.New("unexpected collector status")

type Config struct {
	Endpoint      string
	TargetService string
	Timeout       time.Duration

	// Breaker opens after FailureThreshold consecutive failures and
	// probes again after OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// HTTPReporter posts one JSON report per alert. There is no retry; while
// the breaker is open reports are skipped outright.
type HTTPReporter struct {
	url           string
	targetService string
	client        *http.Client
	cb            *gobreaker.CircuitBreaker[struct{}]
	log           zerolog.Logger
}

func New(cfg Config) *HTTPReporter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TargetService == "" {
		cfg.TargetService = "network-firewall"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	log := logging.Component("reporter")
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "attack-reporter",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("reporter circuit breaker state changed")
		},
	})

	return &HTTPReporter{
		url:           strings.TrimRight(cfg.Endpoint, "/") + ReportPath,
		targetService: cfg.TargetService,
		client:        &http.Client{Timeout: cfg.Timeout},
		cb:            cb,
		log:           log,
	}
}

// BuildReport renders the collector payload for an alert
func BuildReport(alert models.Alert, window time.Duration, targetService string) models.AttackReport {
	return models.AttackReport{
		SourceIP:       alert.SourceID,
		TargetService:  targetService,
		AttackType:     alert.AttackType.Label(),
		TrafficVolume:  alert.EvidenceCount,
		Duration:       int(window / time.Second),
		AdditionalInfo: fmt.Sprintf("Detected by %s at %s", targetService, alert.Time.Format("2006-01-02 15:04:05")),
	}
}

// Report delivers one report. ctx bounds the whole call.
func (r *HTTPReporter) Report(ctx context.Context, alert models.Alert, window time.Duration) error {
	body, err := json.Marshal(BuildReport(alert, window, r.targetService))
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.cb.Execute(func() (struct{}, error) {
		return struct{}{}, r.post(ctx, body)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.Reports.WithLabelValues("circuit_open").Inc()
		return fmt.Errorf("collector unavailable: %w", err)
	case err != nil:
		metrics.Reports.WithLabelValues("error").Inc()
		return err
	}

	metrics.Reports.WithLabelValues("ok").Inc()
	r.log.Debug().Str("source", alert.SourceID).Str("url", r.url).Msg("report accepted")
	return nil
}

func (r *HTTPReporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
