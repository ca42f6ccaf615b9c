// Package join implements the Joining stage of a node's lifecycle: the
// period between sending JoinRequests to a target section and either
// being approved, timing out, or being redirected to a newer section
// version.
package join

import (
	"time"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/log"
	"github.com/nkoteskey/routing/message"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/transport"
	"github.com/nkoteskey/routing/xorspace"
)

// JoinTimeout is how long a first-time join attempt waits for approval
// before giving up and falling back to bootstrapping.
const JoinTimeout = 600 * time.Second

// joinKind discriminates JoinType without exposing a public enum whose
// zero value would be ambiguous between "first" and "relocating".
type joinKind int

const (
	kindFirst joinKind = iota
	kindRelocate
)

// JoinType is the reason this node is joining: for the first time, or
// because it was relocated from another section and carries proof of
// that relocation.
type JoinType struct {
	kind            joinKind
	timeoutToken    uint64
	relocatePayload message.RelocatePayload
}

// FirstJoin returns a JoinType for a node joining the network for the
// first time, with a timeout already scheduled via timer.
func FirstJoin(timer transport.Timer) JoinType {
	return JoinType{kind: kindFirst, timeoutToken: timer.Schedule(JoinTimeout)}
}

// RelocateJoin returns a JoinType for a node that was relocated and is
// carrying payload as proof.
func RelocateJoin(payload message.RelocatePayload) JoinType {
	return JoinType{kind: kindRelocate, relocatePayload: payload}
}

// IsRelocating reports whether this is a relocation join.
func (j JoinType) IsRelocating() bool { return j.kind == kindRelocate }

// Joining is the state of a node waiting to be approved by the section it
// sent JoinRequests to.
type Joining struct {
	eldersInfo section.EldersInfo
	joinType   JoinType
}

// New constructs a Joining stage targeting eldersInfo and immediately
// sends a JoinRequest to every one of its elders over t.
func New(t transport.Transport, eldersInfo section.EldersInfo, joinType JoinType) *Joining {
	j := &Joining{eldersInfo: eldersInfo, joinType: joinType}
	j.sendJoinRequests(t)
	return j
}

func (j *Joining) sendJoinRequests(t transport.Transport) {
	var relocatePayload *message.RelocatePayload
	if j.joinType.IsRelocating() {
		relocatePayload = &j.joinType.relocatePayload
	}

	variant := message.Variant{
		Kind: message.KindJoinRequest,
		JoinRequest: message.JoinRequest{
			EldersVersion:   j.eldersInfo.Version,
			RelocatePayload: relocatePayload,
		},
	}

	for _, elder := range j.eldersInfo.Elders {
		if err := t.SendDirectMessage(elder.Addr, variant); err != nil {
			log.Default().Warn("join: failed to send JoinRequest", "addr", elder.Addr, "err", err)
		}
	}
}

// HandleTimeout reports whether token was this stage's join timeout. If
// so (and only for a first-time join; relocation joins ignore all
// timeouts), every target elder is disconnected and the caller should
// transition back to bootstrapping.
func (j *Joining) HandleTimeout(t transport.Transport, token uint64) bool {
	if j.joinType.kind != kindFirst {
		return false
	}
	if j.joinType.timeoutToken != token {
		return false
	}

	for _, elder := range j.eldersInfo.Elders {
		if err := t.Disconnect(elder.Addr); err != nil {
			log.Default().Warn("join: failed to disconnect timed-out elder", "addr", elder.Addr, "err", err)
		}
	}
	return true
}

// DecideMessageAction classifies an incoming message for this stage,
// verifying it against whatever trust anchor is available and returning
// the resulting Action. An error from verification that is not itself a
// classification (e.g. a malformed message) is surfaced to the caller.
func (j *Joining) DecideMessageAction(msg *message.Message) (message.Action, error) {
	switch msg.Variant.Kind {
	case message.KindNodeApproval:
		if j.joinType.IsRelocating() {
			details := j.joinType.relocatePayload.RelocateDetails()
			if err := verifyMessage(msg, &details.DestinationKey); err != nil {
				return 0, err
			}
		}
		// First-time joins have no trusted keys yet but still handle
		// NodeApproval - it is the message that establishes trust.
		return message.ActionHandle, nil

	case message.KindBounce:
		if err := verifyMessage(msg, nil); err != nil {
			return 0, err
		}
		return message.ActionHandle, nil

	case message.KindBootstrapResponse:
		if msg.Variant.BootstrapResponse.Kind == message.BootstrapJoin {
			if err := verifyMessage(msg, nil); err != nil {
				return 0, err
			}
			return message.ActionHandle, nil
		}
		return message.ActionBounce, nil

	case message.KindNeighbourInfo, message.KindUserMessage, message.KindGenesisUpdate,
		message.KindRelocate, message.KindMessageSignature, message.KindBootstrapRequest,
		message.KindJoinRequest:
		return message.ActionBounce, nil

	case message.KindMemberKnowledge, message.KindParsecRequest, message.KindParsecResponse, message.KindPing:
		return message.ActionDiscard, nil

	default:
		return message.ActionDiscard, nil
	}
}

// verifyMessage checks msg against trustedKey scoped to the empty prefix,
// which forces the key to be consulted regardless of the message's
// declared source prefix - the trick used to check NodeApproval against a
// relocation destination key, or Bounce/BootstrapResponse with no trusted
// key at all (self-verification only).
func verifyMessage(msg *message.Message, trustedKey *bls.PublicKey) error {
	var anchor *message.TrustAnchor
	if trustedKey != nil {
		anchor = &message.TrustAnchor{Prefix: xorspace.EmptyPrefix(), Key: *trustedKey}
	}

	status, err := msg.Verify(anchor)
	if err != nil {
		return err
	}
	return status.RequireFull()
}

// HandleBootstrapResponse applies a Join response received while waiting:
// if its version is newer than what we are targeting, and its prefix
// matches our own name, we switch to it and re-send JoinRequests; if
// newer but not matching our name, that is a protocol violation and is
// only logged, never acted on.
func (j *Joining) HandleBootstrapResponse(t transport.Transport, ourName xorspace.Name, newEldersInfo section.EldersInfo) {
	if newEldersInfo.Version <= j.eldersInfo.Version {
		return
	}

	if newEldersInfo.Prefix.Matches(ourName) {
		j.eldersInfo = newEldersInfo
		j.sendJoinRequests(t)
		return
	}

	log.Default().Error("join: newer Join response not for our prefix",
		"prefix", newEldersInfo.Prefix, "version", newEldersInfo.Version)
}

// TargetEldersInfo returns the EldersInfo of the section we are currently
// targeting.
func (j *Joining) TargetEldersInfo() section.EldersInfo { return j.eldersInfo }

// ConnectKind is which way this node connected to the network, surfaced
// once NodeApproval is handled and the stage is exited.
type ConnectKind int

const (
	ConnectFirst ConnectKind = iota
	ConnectRelocate
)

// ConnectKind reports whether this was a first-time join or a relocation.
func (j *Joining) ConnectKind() ConnectKind {
	if j.joinType.IsRelocating() {
		return ConnectRelocate
	}
	return ConnectFirst
}
