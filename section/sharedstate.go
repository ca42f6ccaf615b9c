package section

import (
	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/xorspace"
)

// SharedState is the section state replicated across all elders via the
// consensus engine: membership, the neighbour map, our signed key history,
// and the backlogs that gate churn processing. Every elder applies the same
// sequence of consensus events to its own copy and ends up with identical
// state.
type SharedState struct {
	// HandledGenesisEvent marks whether this copy has absorbed the
	// founding snapshot from the consensus engine; it is never persisted.
	HandledGenesisEvent bool

	OurHistory *ProofChain
	OurMembers *Members
	Sections   *Map

	ChurnEventBacklog []AccumulatingEvent
	RelocateQueue     []RelocateDetails
}

// NewSharedState returns the state for a freshly formed (genesis) section.
func NewSharedState(eldersInfo EldersInfo, sectionKey bls.PublicKey) *SharedState {
	return &SharedState{
		OurHistory: NewProofChain(sectionKey),
		OurMembers: NewMembers(),
		Sections:   NewMap(eldersInfo),
	}
}

// OurInfo returns our own current section info.
func (s *SharedState) OurInfo() EldersInfo { return s.Sections.Our() }

// OurPrefix returns our own current section's prefix.
func (s *SharedState) OurPrefix() xorspace.Prefix { return s.OurInfo().Prefix }

// IsPeerOurElder reports whether name is an elder of our own section.
func (s *SharedState) IsPeerOurElder(name xorspace.Name) bool {
	return s.OurInfo().ContainsElder(name)
}

// IsKnownPeer reports whether name is an active member of ours, or an elder
// anywhere we know of.
func (s *SharedState) IsKnownPeer(name xorspace.Name) bool {
	if info, ok := s.OurMembers.Get(name); ok && info.IsActive() {
		return true
	}
	return s.Sections.IsElder(name)
}

// AddMember adds node as a freshly joined member if its name matches our
// prefix and it is not already a member. Returns whether it was added.
func (s *SharedState) AddMember(node P2pNode, age uint8, recommendedSectionSize int) bool {
	if !s.OurPrefix().Matches(node.Name()) {
		return false
	}
	if s.OurMembers.Contains(node.Name()) {
		return false
	}

	info := NewMemberInfo(node)
	if age > MinAge {
		// A relocated-in member already matured in its previous section;
		// carry its age across rather than restarting it as an infant.
		info.Age = age
		info.AgeCounter = uint32(1) << age
	}
	s.OurMembers.Add(info)

	s.incrementAgeCounters(node.Name(), recommendedSectionSize)
	return true
}

// RemoveMember removes the member identified by pubId. If it was Joined,
// age counters are incremented first, exactly as if it had just churned
// off. Returns the removed record, or false if there was none to remove.
func (s *SharedState) RemoveMember(pubId PublicId, recommendedSectionSize int) (MemberInfo, bool) {
	info, ok := s.OurMembers.Get(pubId.Name)
	if !ok || info.State == Left {
		return MemberInfo{}, false
	}

	if info.State == Joined {
		s.incrementAgeCounters(pubId.Name, recommendedSectionSize)
	}

	filtered := s.RelocateQueue[:0:0]
	for _, details := range s.RelocateQueue {
		if details.PublicId != pubId {
			filtered = append(filtered, details)
		}
	}
	s.RelocateQueue = filtered

	return s.OurMembers.Remove(pubId.Name)
}

// incrementAgeCounters is the age-counter and relocation policy triggered
// by every add/remove of triggerNode. See the age counter policy section:
// infant churn is ignored once startup has completed (sybil resistance);
// during startup every other joined member ages unconditionally; otherwise
// each member's age counter is incremented and, on crossing a boundary, it
// is moved to Relocating and queued for relocation unless its computed
// destination is still inside our own section.
func (s *SharedState) incrementAgeCounters(triggerNode xorspace.Name, recommendedSectionSize int) {
	ourSectionSize := len(s.OurMembers.Joined())
	ourPrefix := s.Sections.Our().Prefix

	startup := ourPrefix.Equals(xorspace.EmptyPrefix()) && ourSectionSize < recommendedSectionSize

	if !startup {
		triggerInfo, known := s.OurMembers.Get(triggerNode)
		triggerIsMature := known && triggerInfo.IsActive() && triggerInfo.IsMature()
		if !triggerIsMature && !s.IsPeerOurElder(triggerNode) {
			return
		}
	}

	relocatingState := s.createRelocatingState()
	firstKey := s.OurHistory.FirstKey()

	s.OurMembers.MutateJoined(func(member *MemberInfo) {
		if member.P2pNode.Name() == triggerNode {
			return
		}

		if startup {
			member.IncrementAge()
			return
		}

		if !member.IncrementAgeCounter() {
			return
		}

		destination := ComputeDestination(ourPrefix, member.P2pNode.Name(), triggerNode)
		if ourPrefix.Matches(destination) {
			return
		}

		member.State = relocatingState.State
		member.NodeKnowledge = relocatingState.NodeKnowledge

		destinationKey := firstKey
		if key, ok := s.Sections.KeyByName(destination); ok {
			destinationKey = bls.PublicKey(key)
		}

		details := RelocateDetails{
			PublicId:       member.P2pNode.PublicId,
			Destination:    destination,
			DestinationKey: destinationKey,
			Age:            member.Age + 1,
		}

		s.RelocateQueue = append([]RelocateDetails{details}, s.RelocateQueue...)
	})
}

// createRelocatingState returns a MemberInfo template carrying the state
// and node-knowledge a member transitioning to Relocating right now should
// have, so it can later prove it has seen enough of our history.
func (s *SharedState) createRelocatingState() MemberInfo {
	return MemberInfo{
		State:         Relocating,
		NodeKnowledge: s.Sections.KnowledgeBySection(s.OurPrefix()),
	}
}

// trySplit checks whether our section has enough mature members on both
// sides of the next routing bit to split. Returns the two new EldersInfos
// (our own branch first) or false.
func (s *SharedState) trySplit(params NetworkParams, ourName xorspace.Name) (our, other EldersInfo, ok bool) {
	nextBitIndex := s.OurPrefix().BitCount
	nextBit := ourName.Bit(nextBitIndex)

	var ourSize, siblingSize int
	for _, member := range s.OurMembers.Mature() {
		if member.P2pNode.Name().Bit(nextBitIndex) == nextBit {
			ourSize++
		} else {
			siblingSize++
		}
	}

	if ourSize < params.RecommendedSectionSize || siblingSize < params.RecommendedSectionSize {
		return EldersInfo{}, EldersInfo{}, false
	}

	ourPrefix := s.OurPrefix().Pushed(nextBit)
	otherPrefix := s.OurPrefix().Pushed(!nextBit)

	ourElders := s.OurMembers.ElderCandidatesMatchingPrefix(ourPrefix, params.ElderSize)
	otherElders := s.OurMembers.ElderCandidatesMatchingPrefix(otherPrefix, params.ElderSize)

	version := s.OurInfo().Version + 1
	return NewEldersInfo(ourPrefix, version, ourElders), NewEldersInfo(otherPrefix, version, otherElders), true
}

// elderCandidates returns elderSize candidates for our section's elder
// set, falling back to relocating members (in queue order) if there are
// not enough non-relocating ones — so we can still handle losing one
// elder to relocation without dropping below elderSize.
func (s *SharedState) elderCandidates(elderSize int) []MemberInfo {
	elders := s.OurMembers.ElderCandidates(elderSize)
	if len(elders) >= elderSize {
		return elders
	}

	missing := elderSize - len(elders)
	present := make(map[xorspace.Name]bool, len(elders))
	for _, e := range elders {
		present[e.P2pNode.Name()] = true
	}

	for _, details := range s.RelocateQueue {
		if missing == 0 {
			break
		}
		name := details.PublicId.Name
		if present[name] {
			continue
		}
		info, ok := s.OurMembers.Get(name)
		if !ok || info.State == Left {
			continue
		}
		elders = append(elders, info)
		present[name] = true
		missing--
	}

	return elders
}

// PromoteAndDemoteElders recomputes the elder set for our current section.
// If a split is viable, it takes priority and both resulting EldersInfos
// are returned for the caller to put to consensus. Otherwise, if the
// expected elder set differs from the current one, a single updated
// EldersInfo (version+1) is returned. A nil, nil result means no change is
// needed.
//
// Shrinking below elder_size after having met it is a merge, which this
// state machine does not support; it is treated as a fatal condition.
func (s *SharedState) PromoteAndDemoteElders(params NetworkParams, ourName xorspace.Name) []EldersInfo {
	if our, other, ok := s.trySplit(params, ourName); ok {
		return []EldersInfo{our, other}
	}

	expected := s.elderCandidates(params.ElderSize)
	expectedSet := make(map[xorspace.Name]bool, len(expected))
	for _, e := range expected {
		expectedSet[e.P2pNode.Name()] = true
	}

	current := s.OurInfo()
	if len(expectedSet) == len(current.Elders) {
		same := true
		for name := range current.Elders {
			if !expectedSet[name] {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}

	oldSize := len(current.Elders)
	newInfo := NewEldersInfo(current.Prefix, current.Version+1, expected)

	if newInfo.Len() < params.ElderSize && oldSize >= params.ElderSize {
		panic("section: merging situation encountered, not supported: " + current.Prefix.String())
	}

	return []EldersInfo{newInfo}
}

// UpdateOurSection applies a newly agreed EldersInfo: members outside the
// new prefix are dropped (relevant after a split), the signed key is
// pushed onto our history, and the section map is updated to match.
func (s *SharedState) UpdateOurSection(eldersInfo EldersInfo, sectionKey bls.PublicKey, signature bls.Signature) bool {
	if !s.OurHistory.Push(sectionKey, signature) {
		return false
	}
	s.OurMembers.RemoveNotMatchingPrefix(eldersInfo.Prefix)
	s.Sections.SetOur(eldersInfo)
	s.Sections.UpdateKeys(eldersInfo.Prefix, [48]byte(sectionKey), s.OurHistory.LastKeyIndex())
	return true
}

// PollRelocation returns the next member ready to relocate, or false if
// none is ready yet. Relocation is serialized behind the churn backlog and
// one at a time: while the backlog is non-empty, or while the next queued
// member is still one of our elders, it returns false (in the elder case,
// keeping the entry queued so it can be retried once demoted).
func (s *SharedState) PollRelocation() (RelocateDetails, bool) {
	if len(s.ChurnEventBacklog) > 0 {
		return RelocateDetails{}, false
	}

	var details RelocateDetails
	found := false
	for len(s.RelocateQueue) > 0 {
		last := len(s.RelocateQueue) - 1
		candidate := s.RelocateQueue[last]
		s.RelocateQueue = s.RelocateQueue[:last]

		if s.OurMembers.Contains(candidate.PublicId.Name) {
			details = candidate
			found = true
			break
		}
	}
	if !found {
		return RelocateDetails{}, false
	}

	if s.IsPeerOurElder(details.PublicId.Name) {
		s.RelocateQueue = append(s.RelocateQueue, details)
		return RelocateDetails{}, false
	}

	return details, true
}

// UpdateSectionKnowledge folds in a freshly observed (prefix, key) pair
// from a message source, plus the sender's claimed knowledge of our own
// history (dstKey, if any were attached), and returns the consensus events
// to vote for as a result — at most two, matching the knowledge update
// rules.
func (s *SharedState) UpdateSectionKnowledge(prefix xorspace.Prefix, newKey bls.PublicKey, dstKey *bls.PublicKey, hash [32]byte) []AccumulatingEvent {
	isNeighbour := s.OurPrefix().IsNeighbour(prefix)

	var events []AccumulatingEvent
	voteSendNeighbourInfo := false

	if !s.Sections.HasKey([48]byte(newKey)) {
		if isNeighbour {
			voteSendNeighbourInfo = true
		} else {
			events = append(events, AccumulatingEvent{
				Kind:   EventTheirKeyInfo,
				Prefix: prefix,
				Key:    [48]byte(newKey),
			})
		}
	}

	if dstKey != nil {
		old := s.Sections.KnowledgeBySection(prefix)
		newIdx, ok := s.OurHistory.IndexOf(*dstKey)
		if !ok {
			newIdx = 0
		}

		if newIdx > old {
			events = append(events, AccumulatingEvent{
				Kind:      EventTheirKnowledge,
				Prefix:    prefix,
				Knowledge: newIdx,
			})
		}

		if isNeighbour && newIdx < s.OurHistory.LastKeyIndex() {
			voteSendNeighbourInfo = true
		}
	}

	if voteSendNeighbourInfo {
		events = append(events, AccumulatingEvent{
			Kind:  EventSendNeighbourInfo,
			Dst:   prefix.Name,
			Nonce: hash,
		})
	}

	return events
}

// Prove returns the sub-chain of our history needed to prove our current
// key to target, starting from whatever index target is already known to
// have seen. nodeKnowledgeOverride, if non-nil, replaces the stored
// knowledge estimate when target addresses a single node.
func (s *SharedState) Prove(target Location, nodeKnowledgeOverride *uint64) *ProofChain {
	var index uint64
	if target.IsNode && nodeKnowledgeOverride != nil {
		index = *nodeKnowledgeOverride
	} else {
		index = s.Sections.KnowledgeByLocation(target)
	}
	return s.OurHistory.SliceFrom(index)
}

// IsInOnlineBacklog reports whether pubId already appears as an Online
// event in the churn backlog, i.e. we know about it but have not yet
// finished processing its arrival.
func (s *SharedState) IsInOnlineBacklog(pubId PublicId) bool {
	for _, evt := range s.ChurnEventBacklog {
		if evt.Kind == EventOnline && evt.Node == pubId {
			return true
		}
	}
	return false
}
