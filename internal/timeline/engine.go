// Package timeline maintains a channel's message timeline: it inserts and
// classifies messages, merges edits and reaction deltas into their targets,
// and keeps the fixed-capacity page index over top-level messages current.
package timeline

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/database"
	"github.com/edgard/slackarchive/internal/metrics"
)

// PageCapacity is the number of top-level messages in a closed page.
const PageCapacity = 100

// Engine applies timeline mutations and pagination against a Store.
// It is safe for concurrent use; work on one channel is serialized while
// different channels proceed in parallel.
type Engine struct {
	store   database.Store
	log     zerolog.Logger
	metrics *metrics.Metrics

	// pageLocks serializes Advance per channel.
	pageLocks keyedMutex
	// writeLocks serializes read-modify-write of records per channel.
	writeLocks keyedMutex
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(store database.Store, log zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		log:     log.With().Str("component", "timeline").Logger(),
		metrics: m,
	}
}

// keyedMutex hands out one mutex per key, created on first use.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
