package message

import (
	"encoding/json"
	"errors"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

var (
	// ErrInvalidSignature means a proof-chain block, or the message
	// signature itself, failed to verify.
	ErrInvalidSignature = errors.New("message: invalid signature")
	// ErrUntrustedMessage means the attached proof chain's trust check
	// returned Invalid.
	ErrUntrustedMessage = errors.New("message: untrusted message")
	// ErrUnknownTrust means the chain self-verifies but the caller
	// required Full trust and only Unknown was established.
	ErrUnknownTrust = errors.New("message: trust anchor unknown")
)

// SrcAuthority identifies where a message claims to originate: either a
// single node, or a section speaking with one of its historical keys.
type SrcAuthority struct {
	IsNode        bool
	NodeName      xorspace.Name
	SectionPrefix xorspace.Prefix
	SectionKey    bls.PublicKey
}

// AsSectionPrefixAndKey returns the section prefix and key this authority
// claims, or false if it identifies a single node instead.
func (s SrcAuthority) AsSectionPrefixAndKey() (xorspace.Prefix, bls.PublicKey, bool) {
	if s.IsNode {
		return xorspace.Prefix{}, bls.PublicKey{}, false
	}
	return s.SectionPrefix, s.SectionKey, true
}

// TrustAnchor is an externally trusted key, scoped to a prefix: only
// proof chains from a compatible source prefix are checked against it.
type TrustAnchor struct {
	Prefix xorspace.Prefix
	Key    bls.PublicKey
}

// Message is a fully addressed, signed protocol message.
type Message struct {
	Src        SrcAuthority
	Dst        section.Location
	ProofChain *section.ProofChain
	Signature  bls.Signature
	Variant    Variant
}

// VerifyStatus distinguishes a message whose trust could be fully
// established from one where the signature checks out but no configured
// anchor vouches for it yet.
type VerifyStatus int

const (
	// VerifyFull means the proof chain was anchored at a trusted key.
	VerifyFull VerifyStatus = iota
	// VerifyUnknown means the chain self-verifies but no trusted key was
	// available to anchor it; the caller may buffer the message.
	VerifyUnknown
)

// RequireFull converts VerifyUnknown into ErrUnknownTrust, for call sites
// that have no way to act on a message they cannot fully trust.
func (s VerifyStatus) RequireFull() error {
	if s != VerifyFull {
		return ErrUnknownTrust
	}
	return nil
}

// contentBytes returns the bytes the message signature is computed over.
// encoding/json sorts map keys, so this is stable across processes despite
// Variant embedding Go maps (e.g. EldersInfo.Elders).
func (m *Message) contentBytes() ([]byte, error) {
	return json.Marshal(m.Variant)
}

// Verify checks the message's attached proof chain and signature against
// an optional trust anchor. If trusted is nil, or its prefix is not
// compatible with the message's source prefix, the anchor is not
// consulted and the best achievable result is VerifyUnknown.
//
// Passing a trusted anchor with the empty prefix always applies it
// regardless of source prefix, which is how relocation verifies
// NodeApproval against the relocation destination key alone.
func (m *Message) Verify(trusted *TrustAnchor) (VerifyStatus, error) {
	if m.ProofChain == nil || !m.ProofChain.SelfVerify() {
		return 0, ErrInvalidSignature
	}

	content, err := m.contentBytes()
	if err != nil {
		return 0, err
	}
	if !m.ProofChain.LastKey().Verify(m.Signature, content) {
		return 0, ErrInvalidSignature
	}

	if trusted == nil {
		// With no trusted key supplied, a single-key chain (a freshly
		// born section with nothing signed yet) is as trustworthy as it
		// will ever get - there is no later key to compare it against -
		// so treat it as Full. A longer chain needs a real anchor.
		if m.ProofChain.Len() == 1 {
			return VerifyFull, nil
		}
		return VerifyUnknown, nil
	}
	if trusted.Prefix.BitCount != 0 && !trusted.Prefix.IsCompatible(m.Src.SectionPrefix) {
		return VerifyUnknown, nil
	}

	trustedSet := map[bls.PublicKey]struct{}{trusted.Key: {}}
	switch m.ProofChain.CheckTrust(trustedSet) {
	case section.Trusted:
		return VerifyFull, nil
	case section.Unknown:
		return VerifyUnknown, nil
	default:
		return 0, ErrUntrustedMessage
	}
}

// Action is how a stage classifies an incoming message it is not yet
// ready, or no longer able, to process directly.
type Action int

const (
	// ActionHandle means process the message now.
	ActionHandle Action = iota
	// ActionBounce means reply asking the sender to retry once we can
	// handle it (e.g. after being promoted).
	ActionBounce
	// ActionDiscard means drop the message silently; it is not relevant
	// to the current stage.
	ActionDiscard
)

func (a Action) String() string {
	switch a {
	case ActionHandle:
		return "Handle"
	case ActionBounce:
		return "Bounce"
	case ActionDiscard:
		return "Discard"
	default:
		return "Unknown"
	}
}
