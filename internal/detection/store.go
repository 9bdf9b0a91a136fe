package detection

import (
	"sort"
	"sync"
	"time"

	"github.com/nshruti113/ddos-detector/internal/models"
)

// TrafficRecord is the sliding-window state for one source
type TrafficRecord struct {
	// Window holds arrival times, oldest first
	Window    []time.Time
	SynCount  int
	HTTPCount int
	ICMPCount int
	// Total counts every event since the record was created
	Total uint64
}

// record appends now to the window and bumps the matching signature counter
func (r *TrafficRecord) record(now time.Time, sig Signature) {
	r.Window = append(r.Window, now)
	r.Total++

	switch sig {
	case SignatureSYN:
		r.SynCount++
	case SignatureHTTP:
		r.HTTPCount++
	case SignatureICMP:
		r.ICMPCount++
	}
}

// prune drops timestamps older than window and returns how many were removed.
// A timestamp exactly window old is kept.
func (r *TrafficRecord) prune(now time.Time, window time.Duration) int {
	i := 0
	for i < len(r.Window) && now.Sub(r.Window[i]) > window {
		i++
	}
	if i == 0 {
		return 0
	}
	if i == len(r.Window) {
		r.Window = nil
	} else {
		r.Window = r.Window[i:]
	}
	return i
}

func (r *TrafficRecord) resetSignatures() {
	r.SynCount = 0
	r.HTTPCount = 0
	r.ICMPCount = 0
}

// TrafficStore owns every TrafficRecord. All access goes through mu.
type TrafficStore struct {
	mu         sync.Mutex
	records    map[string]*TrafficRecord
	maxSources int
}

// NewTrafficStore creates a store. maxSources <= 0 means unbounded.
func NewTrafficStore(maxSources int) *TrafficStore {
	return &TrafficStore{
		records:    make(map[string]*TrafficRecord),
		maxSources: maxSources,
	}
}

// getOrCreate must be called with mu held. It returns false when the
// source is new and the store is at capacity.
func (s *TrafficStore) getOrCreate(sourceID string) (*TrafficRecord, bool) {
	if rec, ok := s.records[sourceID]; ok {
		return rec, true
	}
	if s.maxSources > 0 && len(s.records) >= s.maxSources {
		return nil, false
	}
	rec := &TrafficRecord{}
	s.records[sourceID] = rec
	return rec, true
}

// Observe records one event, prunes the source's window and evaluates it,
// all under a single lock so the evaluation never sees a half-pruned record.
func (s *TrafficStore) Observe(sourceID string, sig Signature, now time.Time, window time.Duration, threshold int) (Verdict, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.getOrCreate(sourceID)
	if !ok {
		return Verdict{}, false, ErrSourceLimit
	}
	rec.record(now, sig)
	rec.prune(now, window)

	v, hit := Evaluate(rec, threshold)
	return v, hit, nil
}

// ResetSignatures zeroes the signature counters of a source; the window is untouched
func (s *TrafficStore) ResetSignatures(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[sourceID]; ok {
		rec.resetSignatures()
	}
}

// Sweep prunes every record and removes those left empty. It returns
// the number of removed sources.
func (s *TrafficStore) Sweep(now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, rec := range s.records {
		rec.prune(now, window)
		if len(rec.Window) == 0 {
			delete(s.records, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked sources
func (s *TrafficStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns a copy of the record for sourceID
func (s *TrafficStore) Get(sourceID string) (TrafficRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sourceID]
	if !ok {
		return TrafficRecord{}, false
	}
	cp := *rec
	cp.Window = append([]time.Time(nil), rec.Window...)
	return cp, true
}

// Top returns the n sources with the highest cumulative event count.
// Ties are ordered by source id so output is stable.
func (s *TrafficStore) Top(n int) []models.SourceStats {
	s.mu.Lock()
	stats := make([]models.SourceStats, 0, len(s.records))
	for id, rec := range s.records {
		stats = append(stats, models.SourceStats{
			SourceID:    id,
			Total:       rec.Total,
			WindowCount: len(rec.Window),
			SynCount:    rec.SynCount,
			HTTPCount:   rec.HTTPCount,
			ICMPCount:   rec.ICMPCount,
		})
	}
	s.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].SourceID < stats[j].SourceID
	})

	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats
}
