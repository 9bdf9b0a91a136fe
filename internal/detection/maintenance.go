package detection

import (
	"context"
	"time"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/metrics"
)

// runMaintenance sweeps the traffic store every MaintenanceInterval until
// ctx is done.
func (e *Engine) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	log := logging.Component("maintenance")
	log.Debug().Dur("interval", e.cfg.MaintenanceInterval).Msg("maintenance loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.sweep(); n > 0 {
				log.Debug().Int("evicted", n).Int("tracked", e.store.Len()).Msg("evicted idle sources")
			}
		}
	}
}

// sweep prunes every tracked source and evicts those with an empty window
func (e *Engine) sweep() int {
	start := time.Now()
	evicted := e.store.Sweep(e.now(), e.cfg.Window)

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	metrics.SourcesEvicted.Add(float64(evicted))
	metrics.TrackedSources.Set(float64(e.store.Len()))
	return evicted
}
