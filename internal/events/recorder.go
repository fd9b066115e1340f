package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/credentials"
)

// DefaultBufferSize is the number of unmatched events a Recorder keeps.
const DefaultBufferSize = 256

// Recorder buffers events from a Source and implements Waiter over them. A
// matched event is consumed, so every mutation needs its own confirmation.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
	// closed and replaced whenever an event is recorded
	notify chan struct{}
}

// NewRecorder creates a recorder that keeps at most limit unmatched events,
// dropping the oldest first.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	return &Recorder{
		limit:  limit,
		notify: make(chan struct{}),
	}
}

// Start subscribes to src and records its events until ctx is done. The
// subscription is established before Start returns, so mutations issued
// afterwards cannot be missed.
func (r *Recorder) Start(ctx context.Context, src Source) error {
	ch, err := src.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for ev := range ch {
			r.Record(ev)
		}
	}()

	return nil
}

// Record adds ev to the buffer and wakes any waiters.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= r.limit {
		dropped := r.events[0]
		r.events = r.events[1:]
		log.Warn().Str("operation", dropped.Operation).Str("entity", dropped.Entity).Msg("event buffer full, dropping oldest")
	}
	r.events = append(r.events, ev)

	close(r.notify)
	r.notify = make(chan struct{})
}

// Discard drops all buffered events.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Len returns the number of buffered events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Wait implements Waiter.
func (r *Recorder) Wait(ctx context.Context, operation, entity string, timeout time.Duration) bool {
	cred, _ := credentials.FromContext(ctx)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		notify, ok := r.take(cred.Tenant, operation, entity)
		if ok {
			return true
		}

		select {
		case <-notify:
		case <-timer.C:
			log.Debug().Str("tenant", cred.Tenant).Str("operation", operation).Str("entity", entity).Dur("timeout", timeout).Msg("confirmation timed out")
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// take removes the first event of tenant matching operation and entity. When
// there is none it returns the channel that signals the next Record.
func (r *Recorder) take(tenant, operation, entity string) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ev := range r.events {
		if ev.MatchesIn(tenant, operation, entity) {
			r.events = append(r.events[:i], r.events[i+1:]...)
			return nil, true
		}
	}

	return r.notify, false
}
