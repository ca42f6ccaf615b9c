// Package consensus bridges a section's replicated state machine to
// whatever external agreement protocol orders and accumulates its churn
// events, exposing them as the single ordered stream the core applies via
// section.SharedState.
package consensus

import (
	"errors"
	"sync"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
)

// EventSource delivers AccumulatingEvents reached by consensus, in the
// exact order the core must apply them.
type EventSource interface {
	Events() <-chan section.AccumulatingEvent
}

// Engine is a consensus engine the core proposes churn events to and
// reads agreed events back from.
type Engine interface {
	EventSource
	Propose(event section.AccumulatingEvent)
}

// Backlog buffers accumulating events while churn processing is gated
// shut, mirroring section.SharedState.ChurnEventBacklog: when an
// elder-set change is in flight, every event that arrives during that
// window is queued rather than applied or dropped, and released once the
// gate reopens.
type Backlog struct {
	mu     sync.Mutex
	queued []section.AccumulatingEvent
}

// NewBacklog returns an empty backlog.
func NewBacklog() *Backlog {
	return &Backlog{}
}

// Push appends event to the backlog.
func (b *Backlog) Push(event section.AccumulatingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = append(b.queued, event)
}

// Drain returns every queued event, oldest first, and empties the backlog.
func (b *Backlog) Drain() []section.AccumulatingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queued
	b.queued = nil
	return out
}

// Len reports how many events are currently queued.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued)
}

// MemoryEngine is a minimal in-memory EventSource for tests and
// single-process demos: events handed to Propose are delivered through
// Events() in the order proposed, standing in for a consensus engine
// whose ordering has already been settled.
type MemoryEngine struct {
	ch chan section.AccumulatingEvent
}

// NewMemoryEngine returns a MemoryEngine whose Events() channel can buffer
// up to capacity events before Propose blocks.
func NewMemoryEngine(capacity int) *MemoryEngine {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryEngine{ch: make(chan section.AccumulatingEvent, capacity)}
}

// Propose enqueues event for delivery. Blocks if the channel is full.
func (e *MemoryEngine) Propose(event section.AccumulatingEvent) {
	e.ch <- event
}

// Events returns the channel accumulated events are delivered on.
func (e *MemoryEngine) Events() <-chan section.AccumulatingEvent {
	return e.ch
}

// Close signals that no further events will be proposed, letting a reader
// ranging over Events() terminate.
func (e *MemoryEngine) Close() {
	close(e.ch)
}

// SignatureAccumulator collects elder signature shares over a single
// message hash until enough have arrived to produce the section's
// combined signature, standing in for the threshold-signing step a real
// consensus engine performs before a message can go out under full
// section authority.
type SignatureAccumulator struct {
	mu        sync.Mutex
	threshold int
	shares    map[[32]byte][]bls.Signature
}

// NewSignatureAccumulator returns an accumulator that completes once
// threshold shares have been seen for the same hash. threshold below 1 is
// treated as 1.
func NewSignatureAccumulator(threshold int) *SignatureAccumulator {
	if threshold < 1 {
		threshold = 1
	}
	return &SignatureAccumulator{
		threshold: threshold,
		shares:    make(map[[32]byte][]bls.Signature),
	}
}

// Add records share under hash and, once threshold shares have
// accumulated for it, returns the combined signature and clears the
// entry. Until then it returns ok=false.
func (a *SignatureAccumulator) Add(hash [32]byte, share bls.Signature) (bls.Signature, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.shares[hash] = append(a.shares[hash], share)
	shares := a.shares[hash]
	if len(shares) < a.threshold {
		return bls.Signature{}, false, nil
	}

	delete(a.shares, hash)
	if len(shares) == 0 {
		return bls.Signature{}, false, errors.New("consensus: no shares to combine")
	}
	combined, err := bls.AggregateSignatures(shares)
	if err != nil {
		return bls.Signature{}, false, err
	}
	return combined, true, nil
}

// Pending reports how many shares have been collected for hash so far.
func (a *SignatureAccumulator) Pending(hash [32]byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.shares[hash])
}
