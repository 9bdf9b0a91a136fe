package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsEveryEventInWindow(t *testing.T) {
	s := NewTrafficStore(0)
	window := 10 * time.Second

	for i := 0; i < 25; i++ {
		now := epoch.Add(time.Duration(i) * 300 * time.Millisecond)
		_, _, err := s.Observe("203.0.113.5", SignatureNone, now, window, 1000)
		require.NoError(t, err)
	}

	rec, ok := s.Get("203.0.113.5")
	require.True(t, ok)
	assert.Len(t, rec.Window, 25)
	assert.EqualValues(t, 25, rec.Total)
}

func TestPrune(t *testing.T) {
	window := 10 * time.Second
	rec := &TrafficRecord{}
	for _, off := range []time.Duration{0, 2 * time.Second, 5 * time.Second, 11 * time.Second} {
		rec.record(epoch.Add(off), SignatureNone)
	}

	now := epoch.Add(15 * time.Second)
	removed := rec.prune(now, window)

	// epoch+5s is exactly 10s old and stays
	assert.Equal(t, 2, removed)
	require.Len(t, rec.Window, 2)
	for _, ts := range rec.Window {
		assert.LessOrEqual(t, now.Sub(ts), window)
	}
}

func TestPruneEmptiesWindow(t *testing.T) {
	rec := &TrafficRecord{}
	rec.record(epoch, SignatureSYN)

	assert.Equal(t, 1, rec.prune(epoch.Add(time.Minute), 10*time.Second))
	assert.Empty(t, rec.Window)
	assert.Equal(t, 1, rec.SynCount, "prune leaves signature counters alone")
}

func TestRecordSignatureCounters(t *testing.T) {
	rec := &TrafficRecord{}
	rec.record(epoch, SignatureSYN)
	rec.record(epoch, SignatureSYN)
	rec.record(epoch, SignatureHTTP)
	rec.record(epoch, SignatureICMP)
	rec.record(epoch, SignatureNone)

	assert.Equal(t, 2, rec.SynCount)
	assert.Equal(t, 1, rec.HTTPCount)
	assert.Equal(t, 1, rec.ICMPCount)
	assert.Len(t, rec.Window, 5)

	rec.resetSignatures()
	assert.Zero(t, rec.SynCount+rec.HTTPCount+rec.ICMPCount)
	assert.Len(t, rec.Window, 5)
}

func TestSweepEvictsIdleSources(t *testing.T) {
	s := NewTrafficStore(0)
	window := 10 * time.Second

	_, _, _ = s.Observe("198.51.100.1", SignatureICMP, epoch, window, 1000)
	_, _, _ = s.Observe("198.51.100.2", SignatureNone, epoch.Add(8*time.Second), window, 1000)

	evicted := s.Sweep(epoch.Add(12*time.Second), window)
	assert.Equal(t, 1, evicted)

	_, ok := s.Get("198.51.100.1")
	assert.False(t, ok, "idle source must be removed, not zeroed")
	_, ok = s.Get("198.51.100.2")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestResetSignaturesUnknownSource(t *testing.T) {
	s := NewTrafficStore(0)
	assert.NotPanics(t, func() { s.ResetSignatures("203.0.113.77") })
	assert.Zero(t, s.Len())
}

func TestMaxSources(t *testing.T) {
	s := NewTrafficStore(2)
	window := 10 * time.Second

	_, _, err := s.Observe("a", SignatureNone, epoch, window, 1000)
	require.NoError(t, err)
	_, _, err = s.Observe("b", SignatureNone, epoch, window, 1000)
	require.NoError(t, err)

	_, _, err = s.Observe("c", SignatureNone, epoch, window, 1000)
	assert.ErrorIs(t, err, ErrSourceLimit)

	_, _, err = s.Observe("a", SignatureNone, epoch, window, 1000)
	assert.NoError(t, err, "existing sources keep being tracked at capacity")
}

func TestTopOrdersByTotal(t *testing.T) {
	s := NewTrafficStore(0)
	window := 10 * time.Second
	counts := map[string]int{"a": 3, "b": 7, "c": 1, "d": 7}

	for id, n := range counts {
		for i := 0; i < n; i++ {
			_, _, _ = s.Observe(id, SignatureSYN, epoch, window, 1000)
		}
	}

	top := s.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].SourceID)
	assert.Equal(t, "d", top[1].SourceID)
	assert.Equal(t, "a", top[2].SourceID)
	assert.EqualValues(t, 7, top[0].Total)
	assert.Equal(t, 7, top[0].SynCount)

	assert.Len(t, s.Top(0), 4)
}
