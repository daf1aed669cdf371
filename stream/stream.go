// Package stream implements the ProgressStream (C9): publish/subscribe
// with replay over a bounded per-session ring buffer. Grounded on
// orchestration/workflow_engine.go's channel-based result-fan-out pattern
// (a goroutine publishing into per-subscriber channels, selected against
// ctx.Done()), generalized from a single live listener to a
// replay-then-tail subscription model.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/veritas-eu/orchestrator-core/domain"
)

// LagMetrics receives a notification whenever a subscriber is flagged
// lagging, so callers can wire it to telemetry without this package
// depending on the telemetry package directly.
type LagMetrics interface {
	IncStreamLagging(sessionID string)
}

type noopLagMetrics struct{}

func (noopLagMetrics) IncStreamLagging(string) {}

type subscriber struct {
	id      int
	ch      chan domain.ProgressEvent
	cursor  int64 // last sequence delivered
	lagging bool
}

type sessionLog struct {
	mu sync.Mutex

	events   []domain.ProgressEvent // ring buffer, oldest first
	minSeq   int64                  // sequence of events[0], or nextSeq if empty
	nextSeq  int64
	capacity int

	subscribers map[int]*subscriber
	nextSubID   int
}

func newSessionLog(capacity int) *sessionLog {
	return &sessionLog{capacity: capacity, subscribers: make(map[int]*subscriber)}
}

// Stream is the ProgressStream: one append-only, replayable event log per
// session, each log independently locked so sessions never contend.
type Stream struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	capacity int
	metrics  LagMetrics
}

func New(capacity int, metrics LagMetrics) *Stream {
	if capacity <= 0 {
		capacity = 1000
	}
	if metrics == nil {
		metrics = noopLagMetrics{}
	}
	return &Stream{sessions: make(map[string]*sessionLog), capacity: capacity, metrics: metrics}
}

func (s *Stream) logFor(sessionID string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.sessions[sessionID]
	if !ok {
		log = newSessionLog(s.capacity)
		s.sessions[sessionID] = log
	}
	return log
}

// Publish appends an event to sessionID's log, assigning it the next
// sequence number, and fans it out to every live subscriber. Returns the
// stamped event.
func (s *Stream) Publish(sessionID string, eventType domain.EventType, stepID string, payload map[string]interface{}) domain.ProgressEvent {
	log := s.logFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	event := domain.ProgressEvent{
		Sequence:  log.nextSeq,
		Timestamp: time.Now(),
		SessionID: sessionID,
		EventType: eventType,
		StepID:    stepID,
		Payload:   payload,
	}
	log.nextSeq++

	log.events = append(log.events, event)
	if len(log.events) > log.capacity {
		s.evictOldestLocked(log)
	} else if len(log.events) == 1 {
		log.minSeq = event.Sequence
	}

	for _, sub := range log.subscribers {
		select {
		case sub.ch <- event:
			sub.cursor = event.Sequence
		default:
			if !sub.lagging {
				sub.lagging = true
				s.metrics.IncStreamLagging(sessionID)
			}
		}
	}

	return event
}

// evictOldestLocked drops the oldest buffered event. Per the contract, this
// never silently loses data for a subscriber still positioned on it: any
// subscriber whose cursor is still behind the evicted event is flagged
// lagging before the event is dropped.
func (s *Stream) evictOldestLocked(log *sessionLog) {
	evicted := log.events[0]
	log.events = log.events[1:]
	log.minSeq = log.events[0].Sequence

	for _, sub := range log.subscribers {
		if sub.cursor < evicted.Sequence && !sub.lagging {
			sub.lagging = true
			s.metrics.IncStreamLagging(log.events[0].SessionID)
		}
	}
}

// Subscribe returns a channel of events for sessionID starting after
// sinceSequence (0 replays full retained history), plus an unsubscribe
// func. The channel is buffered; a slow consumer is flagged lagging rather
// than blocking Publish indefinitely.
func (s *Stream) Subscribe(ctx context.Context, sessionID string, sinceSequence int64) (<-chan domain.ProgressEvent, func(), error) {
	log := s.logFor(sessionID)
	log.mu.Lock()

	ch := make(chan domain.ProgressEvent, log.capacity)
	sub := &subscriber{id: log.nextSubID, ch: ch, cursor: sinceSequence}
	log.nextSubID++
	log.subscribers[sub.id] = sub

	if sinceSequence < log.minSeq && len(log.events) > 0 {
		sub.lagging = true
	}
	for _, e := range log.events {
		if sinceSequence == 0 || e.Sequence > sinceSequence {
			ch <- e
			sub.cursor = e.Sequence
		}
	}
	log.mu.Unlock()

	unsubscribe := func() {
		log.mu.Lock()
		defer log.mu.Unlock()
		delete(log.subscribers, sub.id)
		close(ch)
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, unsubscribe, nil
}

// History returns the retained events for sessionID in [from, to] sequence
// range (inclusive); to<=0 means "through the latest retained event".
func (s *Stream) History(sessionID string, from, to int64) []domain.ProgressEvent {
	log := s.logFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	var out []domain.ProgressEvent
	for _, e := range log.events {
		if e.Sequence < from {
			continue
		}
		if to > 0 && e.Sequence > to {
			break
		}
		out = append(out, e)
	}
	return out
}

// IsLagging reports whether any subscriber to sessionID has been flagged
// lagging since subscribing — primarily for tests and diagnostics.
func (s *Stream) IsLagging(sessionID string) bool {
	log := s.logFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	for _, sub := range log.subscribers {
		if sub.lagging {
			return true
		}
	}
	return false
}
