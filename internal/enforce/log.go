package enforce

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nshruti113/ddos-detector/internal/logging"
)

// Log is a dry-run enforcer: it records blocks in memory and logs them
// without touching the network.
type Log struct {
	mu      sync.Mutex
	blocked map[string]struct{}
	log     zerolog.Logger
}

func NewLog() *Log {
	return &Log{
		blocked: make(map[string]struct{}),
		log:     logging.Component("enforcer"),
	}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Block(_ context.Context, sourceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.blocked[sourceID]; ok {
		return nil
	}
	l.blocked[sourceID] = struct{}{}
	l.log.Info().Str("source", sourceID).Msg("dry-run block")
	return nil
}

func (l *Log) Unblock(_ context.Context, sourceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.blocked[sourceID]; !ok {
		return nil
	}
	delete(l.blocked, sourceID)
	l.log.Info().Str("source", sourceID).Msg("dry-run unblock")
	return nil
}

// Len returns the number of sources currently marked blocked
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocked)
}
