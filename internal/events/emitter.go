package events

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Emitter receives engine events. Emit must not block for long and never
// fails the caller; implementations swallow and log their own errors.
type Emitter interface {
	Emit(ctx context.Context, event *Event)
}

// Store persists events.
type Store interface {
	StoreEvent(ctx context.Context, event *Event) error
}

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, *Event) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, event *Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// LogEmitter writes events to a zerolog logger.
type LogEmitter struct {
	Logger zerolog.Logger
}

// Emit implements Emitter.
func (l LogEmitter) Emit(_ context.Context, event *Event) {
	var ev *zerolog.Event
	switch event.Severity {
	case SeverityError:
		ev = l.Logger.Error()
	case SeverityWarning:
		ev = l.Logger.Warn()
	default:
		ev = l.Logger.Info()
	}
	ev = ev.Str("event", string(event.Type))
	if event.JobID != "" {
		ev = ev.Str("job_id", event.JobID)
	}
	if event.CandidateID != "" {
		ev = ev.Str("candidate_id", event.CandidateID)
	}
	if len(event.Data) > 0 {
		ev = ev.Interface("data", event.Data)
	}
	ev.Msg(event.Message)
}

// StoreEmitter persists events, logging store failures.
type StoreEmitter struct {
	Store  Store
	Logger zerolog.Logger
}

// Emit implements Emitter.
func (s StoreEmitter) Emit(ctx context.Context, event *Event) {
	if err := s.Store.StoreEvent(context.WithoutCancel(ctx), event); err != nil {
		s.Logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to persist event")
	}
}

// Counters keeps in-process counts per event type.
type Counters struct {
	mu     sync.Mutex
	counts map[EventType]int64
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: make(map[EventType]int64)}
}

// Emit implements Emitter.
func (c *Counters) Emit(_ context.Context, event *Event) {
	c.mu.Lock()
	c.counts[event.Type]++
	c.mu.Unlock()
}

// Count returns the number of events of one type seen so far.
func (c *Counters) Count(t EventType) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

// Snapshot returns a copy of all counts.
func (c *Counters) Snapshot() map[EventType]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[EventType]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Types returns the event types seen so far, sorted.
func (c *Counters) Types() []EventType {
	snap := c.Snapshot()
	out := make([]EventType, 0, len(snap))
	for k := range snap {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Recorder collects events in memory. Intended for tests.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, event *Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns the recorded events in emission order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t EventType) []*Event {
	var out []*Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Emit builds an event and hands it to emitter, dropping it if the
// constructor failed.
func Emit(ctx context.Context, emitter Emitter, event *Event, err error) {
	if emitter == nil || err != nil || event == nil {
		return
	}
	emitter.Emit(ctx, event)
}
