// Package eventbus broadcasts "new mail" notifications to any number of
// subscribers (one per open websocket). Each subscriber gets its own
// lossy ring buffer: a subscriber that falls behind silently drops the
// oldest notifications rather than applying backpressure to the ingest
// pipeline.
package eventbus

import (
	"strconv"
	"sync"

	"github.com/ExPixel/mercury/datastruct"
)

// backlogSize bounds how many undelivered message IDs a lagging subscriber
// retains; older IDs are overwritten once the ring wraps.
const backlogSize = 64

// Subscriber receives NewMailAvailable notifications. Wake is closed by
// Unsubscribe; until then, a non-blocking send arrives on it once per
// batch of newly buffered IDs so the caller's read loop can drain Drain.
type Subscriber struct {
	backlog *datastruct.RingBuffer
	wake    chan struct{}

	mu      sync.Mutex
	closed  bool
	pending int
	lagged  bool
}

// Drain returns every message ID buffered since the last Drain call, in
// ascending order of arrival, and clears the backlog. lagged reports
// whether this subscriber fell behind since the last Drain - i.e. at least
// one notification was overwritten in the ring before it could be
// delivered. A lagged subscriber has an unreliable view of what was
// published and per §4.8/§4.9 must disconnect; the caller is not expected
// to keep calling Drain afterward.
func (s *Subscriber) Drain() (ids []int64, lagged bool) {
	s.mu.Lock()
	raw := s.backlog.GetAll()
	s.backlog.Clear()
	lagged = s.lagged
	s.lagged = false
	s.pending = 0
	s.mu.Unlock()

	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, lagged
}

// Wake returns the channel that receives a value each time new IDs are
// buffered.
func (s *Subscriber) Wake() <-chan struct{} { return s.wake }

func (s *Subscriber) push(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.backlog.Push(strconv.FormatInt(id, 10))
	s.pending++
	if s.pending > backlogSize {
		// The ring has wrapped since the last Drain: at least one ID was
		// overwritten before the subscriber ever saw it.
		s.lagged = true
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Bus fans out Publish calls to every currently subscribed Subscriber.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new Subscriber and returns it. The caller must
// call Unsubscribe when done to stop receiving wakeups.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		backlog: datastruct.NewRingBuffer(backlogSize),
		wake:    make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s from the bus. Subsequent Publish calls will not
// reach it.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.wake)
	}
}

// Publish delivers id to every current subscriber's backlog.
func (b *Bus) Publish(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(id)
	}
}
