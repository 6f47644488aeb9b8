package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// subscriberBuffer is the channel capacity given to each subscriber.
const subscriberBuffer = 100

// eventLog is a bounded, append-only event stream with live fan-out.
type eventLog struct {
	mu          sync.RWMutex
	sessionID   string
	events      []*types.Event
	nextSeq     int64
	maxEvents   int
	subscribers map[chan *types.Event]struct{}
	closed      bool
}

func newEventLog(sessionID string, maxEvents int) *eventLog {
	if maxEvents <= 0 {
		maxEvents = DefaultConfig().EventMaxLen
	}
	return &eventLog{
		sessionID:   sessionID,
		events:      make([]*types.Event, 0),
		nextSeq:     1,
		maxEvents:   maxEvents,
		subscribers: make(map[chan *types.Event]struct{}),
	}
}

// append records an event and delivers it to subscribers without blocking.
func (l *eventLog) append(input *types.EventInput) (*types.Event, error) {
	var data json.RawMessage
	if input.Data != nil {
		b, err := json.Marshal(input.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
		data = b
	}

	// Sends happen under the lock so close() cannot race a send.
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrSessionClosed
	}

	event := &types.Event{
		ID:        strconv.FormatInt(l.nextSeq, 10),
		SessionID: l.sessionID,
		Type:      input.Type,
		NodeID:    input.NodeID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	l.nextSeq++

	if len(l.events) >= l.maxEvents {
		l.events = l.events[1:]
	}
	l.events = append(l.events, event)

	for ch := range l.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber too slow; it can catch up with since().
		}
	}
	return event, nil
}

// since returns events after lastEventID (exclusive). An empty or
// unparseable id returns everything still buffered.
func (l *eventLog) since(lastEventID string) []*types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	after, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		out := make([]*types.Event, len(l.events))
		copy(out, l.events)
		return out
	}

	var out []*types.Event
	for _, evt := range l.events {
		seq, _ := strconv.ParseInt(evt.ID, 10, 64)
		if seq > after {
			out = append(out, evt)
		}
	}
	return out
}

func (l *eventLog) subscribe() (<-chan *types.Event, func()) {
	ch := make(chan *types.Event, subscriberBuffer)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	cleanup := func() {
		l.mu.Lock()
		delete(l.subscribers, ch)
		l.mu.Unlock()
	}
	return ch, cleanup
}

func (l *eventLog) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// close ends every subscription. Further appends fail.
func (l *eventLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = nil
}
