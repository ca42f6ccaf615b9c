package message

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

// signedMessage builds a Message whose ProofChain is anchored at
// genesisSecret and extended by extraKeys further blocks, each signed by
// the previous key, then signs variant's content with the chain's last
// key. Returns the message and the scalar behind its last key.
func signedMessage(t *testing.T, prefix xorspace.Prefix, genesisSecret *big.Int, extraKeys int, variant Variant) (*Message, *big.Int) {
	t.Helper()

	chain := section.NewProofChain(bls.PubkeyFromSecret(genesisSecret))
	lastSecret := genesisSecret
	for i := 0; i < extraKeys; i++ {
		nextSecret := big.NewInt(genesisSecret.Int64()*31 + int64(i) + 1)
		nextKey := bls.PubkeyFromSecret(nextSecret)
		sig := bls.Sign(lastSecret, nextKey.Bytes())
		if !chain.Push(nextKey, sig) {
			t.Fatal("signedMessage: failed to extend proof chain")
		}
		lastSecret = nextSecret
	}

	content, err := json.Marshal(variant)
	if err != nil {
		t.Fatalf("marshal variant: %v", err)
	}
	sig := bls.Sign(lastSecret, content)

	msg := &Message{
		Src: SrcAuthority{
			SectionPrefix: prefix,
			SectionKey:    chain.LastKey(),
		},
		Dst:        section.SectionLocation(prefix),
		ProofChain: chain,
		Signature:  sig,
		Variant:    variant,
	}
	return msg, lastSecret
}

func testVariant() Variant {
	return Variant{Kind: KindPing}
}

func TestMessage_Verify_NoAnchorSingleKeyChainIsFull(t *testing.T) {
	prefix := xorspace.EmptyPrefix()
	msg, _ := signedMessage(t, prefix, big.NewInt(1), 0, testVariant())

	status, err := msg.Verify(nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != VerifyFull {
		t.Fatalf("expected VerifyFull for an un-anchored genesis chain, got %v", status)
	}
}

func TestMessage_Verify_NoAnchorMultiKeyChainIsUnknown(t *testing.T) {
	prefix := xorspace.EmptyPrefix()
	msg, _ := signedMessage(t, prefix, big.NewInt(1), 2, testVariant())

	status, err := msg.Verify(nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != VerifyUnknown {
		t.Fatalf("expected VerifyUnknown without a trust anchor, got %v", status)
	}
}

func TestMessage_Verify_TrustedAnchorIsFull(t *testing.T) {
	prefix := xorspace.EmptyPrefix()
	genesisSecret := big.NewInt(1)
	msg, _ := signedMessage(t, prefix, genesisSecret, 2, testVariant())

	anchor := &TrustAnchor{Prefix: prefix, Key: bls.PubkeyFromSecret(genesisSecret)}
	status, err := msg.Verify(anchor)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != VerifyFull {
		t.Fatalf("expected VerifyFull when the chain's genesis key is trusted, got %v", status)
	}
}

func TestMessage_Verify_IncompatiblePrefixAnchorIsUnknown(t *testing.T) {
	ourPrefix := xorspace.NewPrefix(1, xorspace.Name{})
	genesisSecret := big.NewInt(1)
	msg, _ := signedMessage(t, ourPrefix, genesisSecret, 2, testVariant())

	var otherName xorspace.Name
	otherName = otherName.WithBit(0, true)
	otherPrefix := xorspace.NewPrefix(1, otherName)
	anchor := &TrustAnchor{Prefix: otherPrefix, Key: bls.PubkeyFromSecret(genesisSecret)}

	status, err := msg.Verify(anchor)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != VerifyUnknown {
		t.Fatalf("expected VerifyUnknown when the anchor's prefix is incompatible, got %v", status)
	}
}

func TestMessage_Verify_AnchorKeyAbsentFromChainIsUnknown(t *testing.T) {
	prefix := xorspace.EmptyPrefix()
	msg, _ := signedMessage(t, prefix, big.NewInt(1), 2, testVariant())

	anchor := &TrustAnchor{Prefix: prefix, Key: bls.PubkeyFromSecret(big.NewInt(999))}
	status, err := msg.Verify(anchor)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != VerifyUnknown {
		t.Fatalf("expected VerifyUnknown when the anchor key never appears in the chain, got %v", status)
	}
}

func TestMessage_Verify_BadSignatureIsRejected(t *testing.T) {
	prefix := xorspace.EmptyPrefix()
	msg, _ := signedMessage(t, prefix, big.NewInt(1), 1, testVariant())
	msg.Variant.BootstrapRequest = xorspace.Name{1, 2, 3}

	_, err := msg.Verify(nil)
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature once the content no longer matches the signature, got %v", err)
	}
}

func TestMessage_Verify_MissingProofChainIsRejected(t *testing.T) {
	prefix := xorspace.EmptyPrefix()
	msg, _ := signedMessage(t, prefix, big.NewInt(1), 1, testVariant())
	msg.ProofChain = nil

	_, err := msg.Verify(nil)
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for a message with no proof chain, got %v", err)
	}
}

func TestMessage_RequireFull(t *testing.T) {
	if err := VerifyFull.RequireFull(); err != nil {
		t.Fatalf("expected VerifyFull to satisfy RequireFull, got %v", err)
	}
	if err := VerifyUnknown.RequireFull(); err != ErrUnknownTrust {
		t.Fatalf("expected VerifyUnknown to fail RequireFull with ErrUnknownTrust, got %v", err)
	}
}
