package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/consensus"
	"github.com/nkoteskey/routing/join"
	"github.com/nkoteskey/routing/log"
	"github.com/nkoteskey/routing/message"
	"github.com/nkoteskey/routing/metrics"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/store"
	"github.com/nkoteskey/routing/transport"
	"github.com/nkoteskey/routing/xorspace"
)

// ErrNotEstablished means the node has no SharedState yet: it is still
// bootstrapping or joining.
var ErrNotEstablished = errors.New("node: not yet an established section member")

// Stage is where a node sits in its own lifecycle, mirroring the states a
// peer moves through before becoming a routing member.
type Stage int

const (
	// StageBootstrapping is sending BootstrapRequests and waiting to learn
	// which section to target.
	StageBootstrapping Stage = iota
	// StageJoining has sent JoinRequests to a target section's elders and
	// is waiting for NodeApproval.
	StageJoining
	// StageEstablished is an approved member with live SharedState.
	StageEstablished
)

func (s Stage) String() string {
	switch s {
	case StageBootstrapping:
		return "bootstrapping"
	case StageJoining:
		return "joining"
	case StageEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// pendingKeyUpdate is a section-key transition already agreed by
// consensus but still waiting on elders' signature shares to combine into
// the bls.Signature section.SharedState.UpdateOurSection needs before it
// can push the new key onto the proof chain.
type pendingKeyUpdate struct {
	Info section.EldersInfo
	Key  bls.PublicKey
}

// Node wires a single peer's SharedState, joining stage, transport and
// consensus engine into the running member-core lifecycle: bootstrapping
// onto the network, joining a target section, and then applying agreed
// churn events and relaying protocol messages once established.
type Node struct {
	config   Config
	identity section.P2pNode
	log      *log.Logger

	transport transport.Transport
	timer     transport.Timer
	engine    consensus.Engine
	db        *store.Store

	events  *EventBus
	metrics *metrics.MetricsCollector
	life    *LifecycleManager

	shareAcc    *consensus.SignatureAccumulator
	pendingKeys map[message.MessageHash]pendingKeyUpdate

	mu      sync.Mutex
	stage   Stage
	joining *join.Joining
	state   *section.SharedState

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Node, opening (or resuming) its persisted SharedState.
// If a prior snapshot exists it is loaded and the node starts out already
// Established; otherwise it starts Bootstrapping.
func New(config Config, identity section.P2pNode, t transport.Transport, timer transport.Timer, engine consensus.Engine) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.InitDataDir(); err != nil {
		return nil, err
	}

	db, err := store.Open(config.StateDBPath())
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	n := &Node{
		config:      config,
		identity:    identity,
		log:         log.Default().Module("node").With("name", config.Name),
		transport:   t,
		timer:       timer,
		engine:      engine,
		db:          db,
		events:      NewEventBus(32),
		metrics:     metrics.NewMetricsCollector(metrics.CollectorConfig{MaxMetrics: 4096, EnableHistograms: true}),
		life:        NewLifecycleManager(DefaultLifecycleConfig()),
		shareAcc:    consensus.NewSignatureAccumulator(config.ElderSize/2 + 1),
		pendingKeys: make(map[message.MessageHash]pendingKeyUpdate),
		stage:       StageBootstrapping,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	has, err := db.HasState()
	if err != nil {
		return nil, fmt.Errorf("node: check saved state: %w", err)
	}
	if has {
		state, err := db.LoadState()
		if err != nil {
			return nil, fmt.Errorf("node: load saved state: %w", err)
		}
		n.state = state
		n.stage = StageEstablished
		n.log.Info("node: resumed from persisted state", "prefix", state.OurPrefix())
	}

	return n, nil
}

// Identity returns this node's public identity.
func (n *Node) Identity() section.P2pNode { return n.identity }

// Stage reports the node's current lifecycle stage.
func (n *Node) Stage() Stage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stage
}

// State returns a snapshot pointer to the live SharedState. Returns
// ErrNotEstablished if the node has not yet joined a section.
func (n *Node) State() (*section.SharedState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == nil {
		return nil, ErrNotEstablished
	}
	return n.state, nil
}

// Events returns the node's event bus, for subscribing to membership and
// section-topology changes as they happen.
func (n *Node) Events() *EventBus { return n.events }

// Metrics returns the node's metrics collector.
func (n *Node) Metrics() *metrics.MetricsCollector { return n.metrics }

// Lifecycle returns the node's service manager, so a caller can register
// the node itself (and any other long-running collaborator, such as a
// discovery service) for coordinated, priority-ordered start and stop.
func (n *Node) Lifecycle() *LifecycleManager { return n.life }

// Genesis bootstraps a brand new network: this node becomes the sole
// elder of the empty-prefix section, signing its own first key with
// secret. Only ever called by the first node of a deployment.
func (n *Node) Genesis(secret *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != nil {
		return errors.New("node: already established")
	}

	info := section.NewEldersInfo(xorspace.EmptyPrefix(), 1, []section.MemberInfo{section.NewMemberInfo(n.identity)})
	key := bls.PubkeyFromSecret(secret)
	state := section.NewSharedState(info, key)
	state.HandledGenesisEvent = true

	n.state = state
	n.stage = StageEstablished
	n.log.Info("node: founded new network", "prefix", info.Prefix)
	return n.persistLocked()
}

// StartBootstrap sends a BootstrapRequest to every contact and moves the
// node into StageBootstrapping.
func (n *Node) StartBootstrap(contacts []section.Addr) {
	n.mu.Lock()
	n.stage = StageBootstrapping
	n.mu.Unlock()

	variant := message.Variant{Kind: message.KindBootstrapRequest, BootstrapRequest: n.identity.Name()}
	for _, addr := range contacts {
		if err := n.transport.SendDirectMessage(addr, variant); err != nil {
			n.log.Warn("node: failed to send BootstrapRequest", "addr", addr, "err", err)
		}
	}
}

// HandleMessage routes msg, received from addr, to whatever handling this
// node's current stage calls for.
func (n *Node) HandleMessage(addr section.Addr, msg *message.Message) error {
	n.mu.Lock()
	stage := n.stage
	n.mu.Unlock()

	switch stage {
	case StageBootstrapping:
		return n.handleBootstrapping(addr, msg)
	case StageJoining:
		return n.handleJoining(addr, msg)
	case StageEstablished:
		return n.handleEstablished(addr, msg)
	default:
		return fmt.Errorf("node: unknown stage %v", stage)
	}
}

// HandleTimeout reports token to the current joining stage, if any,
// returning to bootstrapping if it was this node's join timeout.
func (n *Node) HandleTimeout(token uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stage != StageJoining || n.joining == nil {
		return
	}
	if n.joining.HandleTimeout(n.transport, token) {
		n.joining = nil
		n.stage = StageBootstrapping
		n.log.Warn("node: join attempt timed out, returning to bootstrap")
	}
}

func (n *Node) handleBootstrapping(addr section.Addr, msg *message.Message) error {
	if msg.Variant.Kind != message.KindBootstrapResponse {
		return nil
	}
	status, err := msg.Verify(nil)
	if err != nil {
		return err
	}
	if err := status.RequireFull(); err != nil {
		return err
	}

	resp := msg.Variant.BootstrapResponse
	switch resp.Kind {
	case message.BootstrapJoin:
		n.mu.Lock()
		n.joining = join.New(n.transport, resp.Join, join.FirstJoin(n.timer))
		n.stage = StageJoining
		n.mu.Unlock()
		n.log.Info("node: targeting section to join", "prefix", resp.Join.Prefix)
		return nil

	case message.BootstrapRebootstrap:
		variant := message.Variant{Kind: message.KindBootstrapRequest, BootstrapRequest: n.identity.Name()}
		for _, next := range resp.Rebootstrap {
			if err := n.transport.SendDirectMessage(next, variant); err != nil {
				n.log.Warn("node: failed to re-send BootstrapRequest", "addr", next, "err", err)
			}
		}
		return nil

	default:
		return nil
	}
}

func (n *Node) handleJoining(addr section.Addr, msg *message.Message) error {
	n.mu.Lock()
	j := n.joining
	n.mu.Unlock()

	if j == nil {
		return errors.New("node: in joining stage with no active attempt")
	}

	action, err := j.DecideMessageAction(msg)
	if err != nil {
		return err
	}
	if action != message.ActionHandle {
		return nil
	}

	switch msg.Variant.Kind {
	case message.KindNodeApproval:
		return n.finishJoining(msg.Variant.NodeApproval)

	case message.KindBootstrapResponse:
		if msg.Variant.BootstrapResponse.Kind == message.BootstrapJoin {
			n.mu.Lock()
			j.HandleBootstrapResponse(n.transport, n.identity.Name(), msg.Variant.BootstrapResponse.Join)
			n.mu.Unlock()
		}
		return nil

	case message.KindBounce:
		n.log.Debug("node: bounced while joining, awaiting a newer target")
		return nil

	default:
		return nil
	}
}

func (n *Node) finishJoining(genesis message.GenesisPrefixInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	state := section.NewSharedState(genesis.EldersInfo, genesis.History.LastKey())
	state.OurHistory = genesis.History
	state.HandledGenesisEvent = true

	n.state = state
	n.joining = nil
	n.stage = StageEstablished
	n.log.Info("node: approved as a member", "prefix", genesis.EldersInfo.Prefix)
	n.events.PublishAsync(EventMemberJoined, n.identity)
	return n.persistLocked()
}

func (n *Node) handleEstablished(addr section.Addr, msg *message.Message) error {
	switch msg.Variant.Kind {
	case message.KindBootstrapRequest:
		return n.handleBootstrapRequest(addr, msg)
	case message.KindJoinRequest:
		return n.handleJoinRequest(addr, msg)
	case message.KindNeighbourInfo:
		return n.handleNeighbourInfo(msg)
	case message.KindMemberKnowledge:
		return n.handleMemberKnowledge(msg)
	case message.KindMessageSignature:
		return n.handleMessageSignature(msg)
	case message.KindRelocate:
		return n.handleRelocate(msg)
	case message.KindUserMessage, message.KindPing, message.KindGenesisUpdate, message.KindBounce:
		return nil
	default:
		return nil
	}
}

func (n *Node) handleBootstrapRequest(addr section.Addr, msg *message.Message) error {
	n.mu.Lock()
	info := n.state.OurInfo()
	n.mu.Unlock()

	resp := message.Variant{
		Kind: message.KindBootstrapResponse,
		BootstrapResponse: message.BootstrapResponse{
			Kind: message.BootstrapJoin,
			Join: info,
		},
	}
	return n.transport.SendDirectMessage(addr, resp)
}

func (n *Node) handleJoinRequest(addr section.Addr, msg *message.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	our := n.state.OurInfo()
	if msg.Variant.JoinRequest.EldersVersion != our.Version {
		version := our.Version
		bounce := message.Variant{Kind: message.KindBounce, Bounce: message.Bounce{EldersVersion: &version}}
		return n.transport.SendDirectMessage(addr, bounce)
	}

	node := section.P2pNode{PublicId: section.PublicId{Name: msg.Src.NodeName}, Addr: addr}
	if n.state.OurMembers.Contains(node.Name()) {
		return nil
	}

	age := section.MinAge
	if payload := msg.Variant.JoinRequest.RelocatePayload; payload != nil {
		details := payload.RelocateDetails()
		if details.PublicId.Name != node.Name() {
			return errors.New("node: relocate payload name mismatch with JoinRequest source")
		}
		age = details.Age
	}

	n.engine.Propose(section.AccumulatingEvent{Kind: section.EventOnline, Node: node.PublicId, Age: age})

	approval := message.Variant{
		Kind: message.KindNodeApproval,
		NodeApproval: message.GenesisPrefixInfo{
			EldersInfo: our,
			History:    n.state.OurHistory,
		},
	}
	if err := n.transport.SendDirectMessage(addr, approval); err != nil {
		n.log.Warn("node: failed to send NodeApproval", "addr", addr, "err", err)
	}
	return nil
}

func (n *Node) handleNeighbourInfo(msg *message.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	info := msg.Variant.NeighbourInfo.EldersInfo
	if info.Prefix.IsCompatible(n.state.OurPrefix()) {
		return nil // describes our own section's namespace, not a neighbour
	}
	n.state.Sections.AddNeighbour(info)
	n.events.PublishAsync(EventNeighbourAdded, info)
	return nil
}

func (n *Node) handleMemberKnowledge(msg *message.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix, srcKey, isSection := msg.Src.AsSectionPrefixAndKey()
	if !isSection {
		return nil
	}

	dstKey := msg.Variant.MemberKnowledge.SectionKey
	hash := message.ComputeMessageHash(append(prefix.Name[:], byte(prefix.BitCount)))
	events := n.state.UpdateSectionKnowledge(prefix, srcKey, &dstKey, hash)
	for _, event := range events {
		n.engine.Propose(event)
	}
	return nil
}

func (n *Node) handleRelocate(msg *message.Message) error {
	n.log.Info("node: received relocation instructions", "destination", msg.Variant.Relocate.Destination)
	n.events.PublishAsync(EventMemberRelocated, msg.Variant.Relocate)
	return nil
}

// handleMessageSignature folds share into the running accumulation for
// its content hash. Once enough elders' shares have arrived, the combined
// section signature either completes a pending section-key transition
// staged by ApplyAccumulatingEvent, or is otherwise left for whatever
// forwards accMsg.Content onward as a fully section-signed message.
func (n *Node) handleMessageSignature(msg *message.Message) error {
	accMsg := msg.Variant.MessageSignature
	contentBytes, err := json.Marshal(accMsg.Content)
	if err != nil {
		return err
	}
	hash := message.ComputeMessageHash(contentBytes)

	if len(accMsg.SignatureShare) != bls.SignatureSize {
		return errors.New("node: malformed signature share")
	}
	var share bls.Signature
	copy(share[:], accMsg.SignatureShare)

	combined, ready, err := n.shareAcc.Add([32]byte(hash), share)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	n.log.Debug("node: signature share accumulation complete", "hash", hash)

	n.mu.Lock()
	defer n.mu.Unlock()

	pending, ok := n.pendingKeys[hash]
	if !ok {
		return nil
	}
	delete(n.pendingKeys, hash)

	if n.state == nil {
		return ErrNotEstablished
	}
	if !n.state.UpdateOurSection(pending.Info, pending.Key, combined) {
		return errors.New("node: failed to push new section key onto proof chain")
	}
	n.events.PublishAsync(EventSectionUpdated, pending.Info)
	return n.persistLocked()
}

// stagePendingKeyUpdateLocked remembers a section-key transition agreed by
// consensus so handleMessageSignature can complete it once the matching
// combined signature arrives. Called with n.mu held.
func (n *Node) stagePendingKeyUpdateLocked(info section.EldersInfo, key bls.PublicKey) {
	content := message.Variant{
		Kind:          message.KindGenesisUpdate,
		GenesisUpdate: message.GenesisPrefixInfo{EldersInfo: info},
	}
	contentBytes, err := json.Marshal(content)
	if err != nil {
		n.log.Error("node: failed to hash pending key update", "err", err)
		return
	}
	hash := message.ComputeMessageHash(contentBytes)
	n.pendingKeys[hash] = pendingKeyUpdate{Info: info, Key: key}
}

// ApplyAccumulatingEvent applies a single event reached by consensus to
// the live SharedState, publishing whatever node-bus event corresponds to
// the resulting change.
func (n *Node) ApplyAccumulatingEvent(event section.AccumulatingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == nil {
		return ErrNotEstablished
	}

	switch event.Kind {
	case section.EventOnline:
		if n.state.AddMember(section.P2pNode{PublicId: event.Node}, event.Age, n.config.RecommendedSectionSize) {
			n.events.PublishAsync(EventMemberJoined, event.Node)
			n.metrics.Record("section.members", float64(len(n.state.OurMembers.Joined())), nil)
		}

	case section.EventOffline:
		if info, ok := n.state.RemoveMember(event.Node, n.config.RecommendedSectionSize); ok {
			n.events.PublishAsync(EventMemberLeft, info)
			n.metrics.Record("section.members", float64(len(n.state.OurMembers.Joined())), nil)
		}

	case section.EventSectionInfo:
		n.state.Sections.SetOur(event.Info)
		n.events.PublishAsync(EventSectionUpdated, event.Info)
		n.stagePendingKeyUpdateLocked(event.Info, bls.PublicKey(event.Key))

	case section.EventTheirKeyInfo:
		n.state.Sections.UpdateKeys(event.Prefix, event.Key, n.state.OurHistory.LastKeyIndex())

	case section.EventTheirKnowledge:
		n.state.Sections.SetKnowledge(event.Prefix, event.Knowledge)

	case section.EventSendNeighbourInfo:
		n.sendNeighbourInfoLocked(event.Dst, event.Nonce)

	case section.EventRelocatePrepare, section.EventRelocate:
		// Queued relocation bookkeeping already happened inline, inside
		// AddMember/RemoveMember's age-counter policy; PollRelocation is
		// how a caller later drains the queue this built.

	case section.EventParsecPrune:
		// Consensus engine housekeeping; nothing for SharedState to do.

	case section.EventUser:
		n.events.PublishAsync(EventSectionUpdated, event.Payload)

	case section.EventOurKey:
		// The proof-chain push this represents happens once the
		// section's combined signature is ready; handleMessageSignature
		// consumes the pending update staged here.
		n.stagePendingKeyUpdateLocked(event.Info, bls.PublicKey(event.Key))

	default:
		n.log.Warn("node: unhandled accumulating event kind", "kind", event.Kind)
	}

	return n.persistLocked()
}

func (n *Node) sendNeighbourInfoLocked(dst xorspace.Name, nonce [32]byte) {
	info := n.state.OurInfo()
	variant := message.Variant{
		Kind: message.KindNeighbourInfo,
		NeighbourInfo: message.NeighbourInfo{
			EldersInfo: info,
			Nonce:      message.MessageHash(nonce),
		},
	}
	for _, elder := range info.Elders {
		if elder.Name() == dst {
			if err := n.transport.SendDirectMessage(elder.Addr, variant); err != nil {
				n.log.Warn("node: failed to send NeighbourInfo", "addr", elder.Addr, "err", err)
			}
			return
		}
	}
}

// pollRelocations drains every relocation ready to proceed, publishing it
// to the event bus so a higher layer can start the outgoing Joining
// attempt for whichever member is relocating.
func (n *Node) pollRelocations() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		details, ok := n.state.PollRelocation()
		if !ok {
			return
		}
		n.events.PublishAsync(EventMemberRelocated, details)
	}
}

func (n *Node) persistLocked() error {
	if n.state == nil {
		return nil
	}
	if err := n.db.SaveState(n.state); err != nil {
		n.log.Error("node: failed to persist state", "err", err)
		return err
	}
	return nil
}

// Name satisfies the Service interface so Node can be registered with a
// LifecycleManager directly.
func (n *Node) Name() string { return n.config.Name }

// Start launches the background loop applying events delivered by the
// consensus engine. Safe to call once.
func (n *Node) Start() error {
	go n.consensusLoop()
	return nil
}

// Stop signals the consensus loop to exit, waits for it to finish, and
// closes the persistence store.
func (n *Node) Stop() error {
	close(n.stopCh)
	<-n.doneCh
	return n.db.Close()
}

func (n *Node) consensusLoop() {
	defer close(n.doneCh)
	for {
		select {
		case <-n.stopCh:
			return
		case event, ok := <-n.engine.Events():
			if !ok {
				return
			}
			if err := n.ApplyAccumulatingEvent(event); err != nil {
				n.log.Error("node: failed to apply accumulating event", "kind", event.Kind, "err", err)
				continue
			}
			n.pollRelocations()
		}
	}
}
