package section

import "github.com/nkoteskey/routing/xorspace"

// NetworkParams carries the network-wide tunables the shared state machine
// needs: how many elders a section should have, and how many members make
// a section large enough to consider splitting or accelerate aging during
// startup.
type NetworkParams struct {
	ElderSize              int
	RecommendedSectionSize int
}

// AccumulatingEvent is one event delivered by the consensus engine, already
// accumulated to the point where every elder agrees it happened. Kind
// determines which of the payload fields are meaningful.
type AccumulatingEvent struct {
	Kind EventKind

	// Online / Offline
	Node PublicId

	// Online
	Age uint8

	// SectionInfo / OurKey
	Info EldersInfo
	Key  bls48

	// TheirKeyInfo / UpdateKeys
	Prefix xorspace.Prefix

	// TheirKnowledge
	Knowledge uint64

	// SendNeighbourInfo
	Dst   xorspace.Name
	Nonce [32]byte

	// RelocatePrepare / Relocate
	Relocate RelocateDetails

	// User
	Payload []byte
}

// bls48 is a local alias kept distinct from bls.PublicKey so this file does
// not need to import the bls package just to move bytes around; callers
// convert at the boundary.
type bls48 = [48]byte

// EventKind discriminates the AccumulatingEvent payload.
type EventKind int

const (
	EventOnline EventKind = iota
	EventOffline
	EventSectionInfo
	EventOurKey
	EventTheirKeyInfo
	EventTheirKnowledge
	EventSendNeighbourInfo
	EventParsecPrune
	EventRelocatePrepare
	EventRelocate
	EventUser
)

func (k EventKind) String() string {
	switch k {
	case EventOnline:
		return "Online"
	case EventOffline:
		return "Offline"
	case EventSectionInfo:
		return "SectionInfo"
	case EventOurKey:
		return "OurKey"
	case EventTheirKeyInfo:
		return "TheirKeyInfo"
	case EventTheirKnowledge:
		return "TheirKnowledge"
	case EventSendNeighbourInfo:
		return "SendNeighbourInfo"
	case EventParsecPrune:
		return "ParsecPrune"
	case EventRelocatePrepare:
		return "RelocatePrepare"
	case EventRelocate:
		return "Relocate"
	case EventUser:
		return "User"
	default:
		return "Unknown"
	}
}
