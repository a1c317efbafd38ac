package observer

import (
	"context"
	"sync"
)

// Message is one published event, carrying its kind alongside the
// already-typed payload for subscribers that want to switch on it.
type Message struct {
	Kind    EventKind
	Payload any
}

// MemorySink fans out published events to every subscribed channel,
// the default in-process Sink used when no external broker is
// configured. A slow or full subscriber is dropped rather than
// blocking publishers, mirroring ConnectionManager.broadcast's
// per-connection best-effort send.
type MemorySink struct {
	mu   sync.Mutex
	subs []chan Message
}

// NewMemorySink creates an empty in-process fan-out sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Subscribe returns a channel receiving every future published
// message, buffered so a momentarily slow reader doesn't stall
// Publish. Callers must keep draining it; Unsubscribe releases it.
func (m *MemorySink) Subscribe() <-chan Message {
	ch := make(chan Message, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel previously returned by Subscribe.
func (m *MemorySink) Unsubscribe(ch <-chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.subs {
		if c == ch {
			close(c)
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

// Publish implements Sink. It never blocks on a full subscriber
// channel — the message is dropped for that subscriber instead.
func (m *MemorySink) Publish(ctx context.Context, kind EventKind, payload any) error {
	m.mu.Lock()
	subs := make([]chan Message, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	msg := Message{Kind: kind, Payload: payload}
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// ConnectionCount reports the number of active subscribers, mirroring
// ConnectionManager.connection_count.
func (m *MemorySink) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

var _ Sink = (*MemorySink)(nil)
