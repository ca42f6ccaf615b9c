package message

import (
	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

// Kind discriminates a Variant. Go has no sum types, so Variant carries one
// payload field per Kind and callers are expected to switch on Kind before
// reading the corresponding field, mirroring the tagged-union encoding
// described for the message layer.
type Kind int

const (
	KindNeighbourInfo Kind = iota
	KindUserMessage
	KindNodeApproval
	KindGenesisUpdate
	KindRelocate
	KindMessageSignature
	KindBootstrapRequest
	KindBootstrapResponse
	KindJoinRequest
	KindMemberKnowledge
	KindParsecRequest
	KindParsecResponse
	KindPing
	KindBounce
)

func (k Kind) String() string {
	switch k {
	case KindNeighbourInfo:
		return "NeighbourInfo"
	case KindUserMessage:
		return "UserMessage"
	case KindNodeApproval:
		return "NodeApproval"
	case KindGenesisUpdate:
		return "GenesisUpdate"
	case KindRelocate:
		return "Relocate"
	case KindMessageSignature:
		return "MessageSignature"
	case KindBootstrapRequest:
		return "BootstrapRequest"
	case KindBootstrapResponse:
		return "BootstrapResponse"
	case KindJoinRequest:
		return "JoinRequest"
	case KindMemberKnowledge:
		return "MemberKnowledge"
	case KindParsecRequest:
		return "ParsecRequest"
	case KindParsecResponse:
		return "ParsecResponse"
	case KindPing:
		return "Ping"
	case KindBounce:
		return "Bounce"
	default:
		return "Unknown"
	}
}

// Variant is the payload of a routed message. Only the field matching Kind
// is meaningful.
type Variant struct {
	Kind Kind

	NeighbourInfo     NeighbourInfo
	UserMessage       []byte
	NodeApproval      GenesisPrefixInfo
	GenesisUpdate     GenesisPrefixInfo
	Relocate          section.RelocateDetails
	MessageSignature  AccumulatingMessage
	BootstrapRequest  xorspace.Name
	BootstrapResponse BootstrapResponse
	JoinRequest       JoinRequest
	MemberKnowledge   MemberKnowledge
	ParsecRequest     ParsecMessage
	ParsecResponse    ParsecMessage
	Bounce            Bounce
}

// NeighbourInfo informs a neighbouring section about a change to ours.
type NeighbourInfo struct {
	EldersInfo section.EldersInfo
	Nonce      MessageHash
}

// GenesisPrefixInfo is the founding snapshot sent to a newly approved
// member (NodeApproval) and kept in sync thereafter (GenesisUpdate): our
// current elders, our key history, and the consensus engine's instance
// version at the moment of the snapshot.
type GenesisPrefixInfo struct {
	EldersInfo    section.EldersInfo
	History       *section.ProofChain
	ParsecVersion uint64
}

// BootstrapResponseKind discriminates BootstrapResponse.
type BootstrapResponseKind int

const (
	// BootstrapJoin means the peer is clear to join; EldersInfo carries
	// the section's elders.
	BootstrapJoin BootstrapResponseKind = iota
	// BootstrapRebootstrap means the peer should retry against a
	// different set of contacts.
	BootstrapRebootstrap
)

// BootstrapResponse answers a BootstrapRequest.
type BootstrapResponse struct {
	Kind        BootstrapResponseKind
	Join        section.EldersInfo
	Rebootstrap []section.Addr
}

// JoinRequest is sent to the section a bootstrapping or relocating peer
// wants to join.
type JoinRequest struct {
	EldersVersion   uint64
	RelocatePayload *RelocatePayload
}

// RelocatePayload proves that a relocating node was legitimately relocated
// by its previous section: the details of the relocation, signed by the
// previous section's key at DestinationKey.
type RelocatePayload struct {
	Details   section.RelocateDetails
	Signature bls.Signature
}

// RelocateDetails returns the relocation details this payload attests to.
func (p RelocatePayload) RelocateDetails() section.RelocateDetails {
	return p.Details
}

// MemberKnowledge is sent by non-elders to elders, reporting what the
// sender currently knows about its own section.
type MemberKnowledge struct {
	SectionKey    bls.PublicKey
	ParsecVersion uint64
}

// Update folds other into k, keeping whichever of the two reports the
// newer parsec_version. It is a no-op if other is not newer.
func (k *MemberKnowledge) Update(other MemberKnowledge) {
	if other.ParsecVersion > k.ParsecVersion {
		*k = other
	}
}

// ParsecMessage is an opaque, versioned envelope around the consensus
// engine's own gossip protocol; this module never inspects its payload,
// only routes it to the consensus engine.
type ParsecMessage struct {
	Version uint64
	Payload []byte
}

// AccumulatingMessage carries one elder's signature share over a message
// still gathering enough shares to be forwarded under the section's
// combined signature.
type AccumulatingMessage struct {
	Content        Variant
	SignatureShare []byte
}

// Bounce asks the recipient to retry later, e.g. because it does not yet
// have the section knowledge to handle the message.
type Bounce struct {
	EldersVersion *uint64
	Message       []byte
}
