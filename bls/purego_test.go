package bls

import (
	"math/big"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	secret := big.NewInt(42)
	pub := PubkeyFromSecret(secret)
	msg := []byte("hello section")

	sig := Sign(secret, msg)
	if !pub.Verify(sig, msg) {
		t.Fatal("expected signature to verify")
	}
	if pub.Verify(sig, []byte("tampered")) {
		t.Fatal("expected signature over a different message to fail")
	}
}

func TestAggregateSignatures(t *testing.T) {
	msg := []byte("shared content")

	var secrets []*big.Int
	var pubs []PublicKey
	var sigs []Signature
	for i := int64(1); i <= 3; i++ {
		secret := big.NewInt(i * 7)
		secrets = append(secrets, secret)
		pubs = append(pubs, PubkeyFromSecret(secret))
		sigs = append(sigs, Sign(secret, msg))
	}

	combined, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("AggregateSignatures: %v", err)
	}

	backend := Active()
	pubBytes := make([][]byte, len(pubs))
	for i, p := range pubs {
		pubBytes[i] = p.Bytes()
	}
	if !backend.FastAggregateVerify(pubBytes, msg, combined.Bytes()) {
		t.Fatal("expected aggregate signature to verify against all signer pubkeys")
	}
}

func TestAggregateSignatures_Empty(t *testing.T) {
	if _, err := AggregateSignatures(nil); err == nil {
		t.Fatal("expected error aggregating zero signatures")
	}
}
