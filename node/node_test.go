package node

import (
	"math/big"
	"os"
	"testing"

	"github.com/nkoteskey/routing/consensus"
	"github.com/nkoteskey/routing/message"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/transport"
	"github.com/nkoteskey/routing/xorspace"
)

func testIdentity(seed byte) section.P2pNode {
	var name xorspace.Name
	name[0] = seed
	return section.P2pNode{PublicId: section.PublicId{Name: name}, Addr: section.Addr("local")}
}

func newTestNode(t *testing.T, seed byte) (*Node, *transport.Memory, *consensus.MemoryEngine) {
	t.Helper()
	dir := t.TempDir()
	config := DefaultConfig()
	config.DataDir = dir
	config.Name = "test-node"

	tr := transport.NewMemory()
	timer := transport.NewFakeTimer()
	engine := consensus.NewMemoryEngine(8)

	n, err := New(config, testIdentity(seed), tr, timer, engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return n, tr, engine
}

func TestNode_Genesis_EstablishesState(t *testing.T) {
	n, _, _ := newTestNode(t, 1)

	if n.Stage() != StageBootstrapping {
		t.Fatalf("expected initial stage Bootstrapping, got %v", n.Stage())
	}

	if err := n.Genesis(big.NewInt(99)); err != nil {
		t.Fatalf("Genesis: %v", err)
	}
	if n.Stage() != StageEstablished {
		t.Fatalf("expected stage Established after genesis, got %v", n.Stage())
	}

	state, err := n.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !state.OurPrefix().Equals(xorspace.EmptyPrefix()) {
		t.Fatalf("expected empty prefix for genesis section, got %v", state.OurPrefix())
	}
	if err := n.Genesis(big.NewInt(1)); err == nil {
		t.Fatal("expected second Genesis call to fail")
	}
}

func TestNode_Genesis_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { os.RemoveAll(dir) })

	config := DefaultConfig()
	config.DataDir = dir
	config.Name = "restart-node"

	n1, err := New(config, testIdentity(5), transport.NewMemory(), transport.NewFakeTimer(), consensus.NewMemoryEngine(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n1.Genesis(big.NewInt(7)); err != nil {
		t.Fatalf("Genesis: %v", err)
	}
	if err := n1.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	n2, err := New(config, testIdentity(5), transport.NewMemory(), transport.NewFakeTimer(), consensus.NewMemoryEngine(4))
	if err != nil {
		t.Fatalf("New (resume): %v", err)
	}
	if n2.Stage() != StageEstablished {
		t.Fatalf("expected resumed node to be Established, got %v", n2.Stage())
	}
	state, err := n2.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.HandledGenesisEvent {
		t.Fatal("expected HandledGenesisEvent to reset false on resume")
	}
}

func TestNode_HandleJoinRequest_ProposesOnlineAndApproves(t *testing.T) {
	n, tr, engine := newTestNode(t, 1)
	if err := n.Genesis(big.NewInt(42)); err != nil {
		t.Fatalf("Genesis: %v", err)
	}

	state, _ := n.State()
	our := state.OurInfo()

	joinerAddr := section.Addr("joiner")
	var joinerName xorspace.Name
	joinerName[0] = 0x10

	msg := &message.Message{
		Src: message.SrcAuthority{IsNode: true, NodeName: joinerName},
		Variant: message.Variant{
			Kind:        message.KindJoinRequest,
			JoinRequest: message.JoinRequest{EldersVersion: our.Version},
		},
	}

	if err := n.HandleMessage(joinerAddr, msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	sent := tr.Sent()
	if len(sent) != 1 || sent[0].Variant.Kind != message.KindNodeApproval {
		t.Fatalf("expected one NodeApproval sent, got %+v", sent)
	}

	select {
	case event := <-engine.Events():
		if event.Kind != section.EventOnline {
			t.Fatalf("expected proposed EventOnline, got %v", event.Kind)
		}
		if event.Node.Name != joinerName {
			t.Fatalf("expected proposed event for joiner, got %v", event.Node.Name)
		}
	default:
		t.Fatal("expected an EventOnline to have been proposed")
	}
}

func TestNode_HandleJoinRequest_BouncesStaleVersion(t *testing.T) {
	n, tr, _ := newTestNode(t, 1)
	if err := n.Genesis(big.NewInt(42)); err != nil {
		t.Fatalf("Genesis: %v", err)
	}

	var joinerName xorspace.Name
	joinerName[0] = 0x20
	msg := &message.Message{
		Src: message.SrcAuthority{IsNode: true, NodeName: joinerName},
		Variant: message.Variant{
			Kind:        message.KindJoinRequest,
			JoinRequest: message.JoinRequest{EldersVersion: 999},
		},
	}

	if err := n.HandleMessage("joiner", msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	sent := tr.Sent()
	if len(sent) != 1 || sent[0].Variant.Kind != message.KindBounce {
		t.Fatalf("expected a Bounce reply, got %+v", sent)
	}
}

func TestNode_ApplyAccumulatingEvent_OnlineAddsMember(t *testing.T) {
	n, _, _ := newTestNode(t, 1)
	if err := n.Genesis(big.NewInt(1)); err != nil {
		t.Fatalf("Genesis: %v", err)
	}

	var name xorspace.Name
	name[0] = 0x30
	event := section.AccumulatingEvent{
		Kind: section.EventOnline,
		Node: section.PublicId{Name: name},
		Age:  section.MinAge,
	}

	if err := n.ApplyAccumulatingEvent(event); err != nil {
		t.Fatalf("ApplyAccumulatingEvent: %v", err)
	}

	state, _ := n.State()
	if !state.OurMembers.Contains(name) {
		t.Fatal("expected member to have been added")
	}
}

func TestNode_ApplyAccumulatingEvent_BeforeEstablished(t *testing.T) {
	n, _, _ := newTestNode(t, 1)
	err := n.ApplyAccumulatingEvent(section.AccumulatingEvent{Kind: section.EventOnline})
	if err != ErrNotEstablished {
		t.Fatalf("expected ErrNotEstablished, got %v", err)
	}
}

func TestNode_StartBootstrap_SendsRequestToEveryContact(t *testing.T) {
	n, tr, _ := newTestNode(t, 1)
	contacts := []section.Addr{"a", "b", "c"}
	n.StartBootstrap(contacts)

	sent := tr.Sent()
	if len(sent) != len(contacts) {
		t.Fatalf("expected %d BootstrapRequests, got %d", len(contacts), len(sent))
	}
	for _, s := range sent {
		if s.Variant.Kind != message.KindBootstrapRequest {
			t.Fatalf("expected BootstrapRequest, got %v", s.Variant.Kind)
		}
	}
	if n.Stage() != StageBootstrapping {
		t.Fatalf("expected stage Bootstrapping, got %v", n.Stage())
	}
}
