// Package stream delivers live session state to external callers: an
// ordered per-session event feed of Execution Record transitions, a
// deduplicated workspace snapshot stream, and a JSONL trace sink.
package stream

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

// DefaultHeartbeat is emitted after this long without a real event so
// idle feeds are distinguishable from dead ones.
const DefaultHeartbeat = 15 * time.Second

// EventType tags one feed event.
type EventType string

// EventType values
const (
	EventRecord    EventType = "record"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one entry on a session's event feed. Seq increments once per
// published record; a heartbeat repeats the sequence of the last record
// delivered on its subscription (zero when none), so ordering by Seq
// keeps heartbeats with the records they follow.
type Event struct {
	Type   EventType             `json:"type"`
	Seq    uint64                `json:"seq"`
	Time   time.Time             `json:"time"`
	Record *core.ExecutionRecord `json:"record,omitempty"`
}

// Feed fans Execution Records out to subscribers in publish order. Each
// subscriber has its own queue and delivery goroutine, so a slow consumer
// never blocks the dispatch path or reorders anyone else's events.
type Feed struct {
	logger    *zap.Logger
	heartbeat time.Duration
	buffer    int

	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	seq    uint64
	closed bool
}

// NewFeed creates a feed. A zero heartbeat uses DefaultHeartbeat; buffer
// sizes below one are raised to one.
func NewFeed(heartbeat time.Duration, buffer int, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{
		logger:    logger.Named("feed"),
		heartbeat: heartbeat,
		buffer:    buffer,
		subs:      make(map[int]*subscriber),
	}
}

// Publish appends a record transition to every subscriber's queue. Safe
// after Close; late records are dropped.
func (f *Feed) Publish(rec *core.ExecutionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.seq++
	ev := Event{Type: EventRecord, Seq: f.seq, Time: time.Now(), Record: rec}
	for _, sub := range f.subs {
		sub.enqueue(ev)
	}
}

// Subscribe registers a consumer. The returned channel delivers events in
// publish order and closes on unsubscribe or feed close. The unsubscribe
// function is idempotent.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	sub := &subscriber{
		out:    make(chan Event, f.buffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	f.subs[id] = sub
	go sub.run(f.heartbeat)

	unsubscribe := func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.stop()
	}
	return sub.out, unsubscribe
}

// Close stops all subscribers. Their channels close once queued events
// have been taken or abandoned.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		sub.stop()
		delete(f.subs, id)
	}
}

// subscriber owns one consumer's queue. enqueue never blocks; run drains
// the queue into out and emits heartbeats while it stays idle.
type subscriber struct {
	mu    sync.Mutex
	queue []Event

	out      chan Event
	notify   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// lastSeq is the sequence of the last record delivered; touched only
	// by the run goroutine.
	lastSeq uint64
}

// stop ends delivery. Both unsubscribe and Feed.Close call it, in any
// order and any number of times.
func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscriber) enqueue(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscriber) run(heartbeat time.Duration) {
	defer close(s.out)
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()

	for {
		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.out <- ev:
				s.lastSeq = ev.Seq
			case <-s.done:
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(heartbeat)
		}

		select {
		case <-s.notify:
		case <-timer.C:
			select {
			case s.out <- Event{Type: EventHeartbeat, Seq: s.lastSeq, Time: time.Now()}:
			case <-s.done:
				return
			}
			timer.Reset(heartbeat)
		case <-s.done:
			return
		}
	}
}
