package transport

import (
	"sync"
	"time"

	"github.com/nkoteskey/routing/message"
	"github.com/nkoteskey/routing/section"
)

// SentMessage is one recorded call to SendDirectMessage.
type SentMessage struct {
	Addr    section.Addr
	Variant message.Variant
}

// Memory is an in-memory Transport double: instead of touching the
// network, it records every send and disconnect so tests can assert on
// them directly. Safe for concurrent use, though the core itself is
// single-threaded.
type Memory struct {
	mu          sync.Mutex
	sent        []SentMessage
	disconnects []section.Addr
}

// NewMemory returns an empty recording transport.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SendDirectMessage(addr section.Addr, variant message.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{Addr: addr, Variant: variant})
	return nil
}

func (m *Memory) Disconnect(addr section.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, addr)
	return nil
}

// Sent returns every message recorded so far, oldest first.
func (m *Memory) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Disconnects returns every address disconnected so far, oldest first.
func (m *Memory) Disconnects() []section.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]section.Addr, len(m.disconnects))
	copy(out, m.disconnects)
	return out
}

// FakeTimer hands out sequential tokens instead of scheduling real
// callbacks; tests fire a timeout by calling the core's timeout handler
// with a token obtained here.
type FakeTimer struct {
	mu       sync.Mutex
	next     uint64
	schedule []time.Duration
}

// NewFakeTimer returns a timer whose first issued token is 1.
func NewFakeTimer() *FakeTimer {
	return &FakeTimer{}
}

func (t *FakeTimer) Schedule(d time.Duration) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.schedule = append(t.schedule, d)
	return t.next
}

// Scheduled returns every duration passed to Schedule so far, in the order
// their tokens were issued (token N is at index N-1).
func (t *FakeTimer) Scheduled() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.schedule))
	copy(out, t.schedule)
	return out
}
