package consensus

import (
	"math/big"
	"testing"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
)

func TestBacklog_PushAndDrain(t *testing.T) {
	b := NewBacklog()
	if b.Len() != 0 {
		t.Fatalf("expected empty backlog, got %d", b.Len())
	}

	b.Push(section.AccumulatingEvent{Kind: section.EventOnline})
	b.Push(section.AccumulatingEvent{Kind: section.EventOffline})

	if b.Len() != 2 {
		t.Fatalf("expected 2 queued events, got %d", b.Len())
	}

	drained := b.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected to drain 2 events, got %d", len(drained))
	}
	if drained[0].Kind != section.EventOnline || drained[1].Kind != section.EventOffline {
		t.Fatalf("expected FIFO order, got %v", drained)
	}
	if b.Len() != 0 {
		t.Fatal("expected backlog to be empty after drain")
	}
}

func TestMemoryEngine_DeliversInOrder(t *testing.T) {
	e := NewMemoryEngine(4)
	e.Propose(section.AccumulatingEvent{Kind: section.EventOnline})
	e.Propose(section.AccumulatingEvent{Kind: section.EventOffline})
	e.Close()

	var got []section.EventKind
	for ev := range e.Events() {
		got = append(got, ev.Kind)
	}
	if len(got) != 2 || got[0] != section.EventOnline || got[1] != section.EventOffline {
		t.Fatalf("expected [Online Offline], got %v", got)
	}
}

func TestSignatureAccumulator_CompletesAtThreshold(t *testing.T) {
	acc := NewSignatureAccumulator(3)
	msg := []byte("elders agree")
	var hash [32]byte
	copy(hash[:], msg)

	for i := int64(1); i <= 2; i++ {
		secret := big.NewInt(i * 11)
		share := bls.Sign(secret, msg)
		if _, ready, err := acc.Add(hash, share); err != nil {
			t.Fatalf("Add: %v", err)
		} else if ready {
			t.Fatal("expected not ready before threshold reached")
		}
	}
	if got := acc.Pending(hash); got != 2 {
		t.Fatalf("expected 2 pending shares, got %d", got)
	}

	secret := big.NewInt(33)
	share := bls.Sign(secret, msg)
	combined, ready, err := acc.Add(hash, share)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !ready {
		t.Fatal("expected accumulator to complete at threshold")
	}
	if combined == (bls.Signature{}) {
		t.Fatal("expected a non-zero combined signature")
	}
	if got := acc.Pending(hash); got != 0 {
		t.Fatalf("expected accumulator to clear entry after completion, got %d pending", got)
	}
}
