package section

import (
	"math/big"
	"testing"

	"github.com/nkoteskey/routing/bls"
)

// chainBuilder grows a ProofChain alongside the secret scalars behind each
// of its keys, so tests can sign arbitrary further blocks.
type chainBuilder struct {
	chain   *ProofChain
	secrets []*big.Int
}

func genChain(t *testing.T, blocks int) *chainBuilder {
	t.Helper()
	secret := big.NewInt(1)
	b := &chainBuilder{
		chain:   NewProofChain(bls.PubkeyFromSecret(secret)),
		secrets: []*big.Int{secret},
	}
	for i := 0; i < blocks; i++ {
		b.push(t)
	}
	return b
}

// push extends the chain with a new key signed by the current last key.
func (b *chainBuilder) push(t *testing.T) {
	t.Helper()
	prevSecret := b.secrets[len(b.secrets)-1]
	nextSecret := big.NewInt(int64(len(b.secrets))*97 + 13)
	nextKey := bls.PubkeyFromSecret(nextSecret)
	sig := bls.Sign(prevSecret, nextKey.Bytes())
	if !b.chain.Push(nextKey, sig) {
		t.Fatal("push: expected valid block to be accepted")
	}
	b.secrets = append(b.secrets, nextSecret)
}

func TestProofChain_CheckTrust_Trusted(t *testing.T) {
	b := genChain(t, 4)

	for _, key := range b.chain.Keys() {
		trusted := map[bls.PublicKey]struct{}{key: {}}
		if got := b.chain.CheckTrust(trusted); got != Trusted {
			t.Fatalf("trusting key %x: expected Trusted, got %v", key, got)
		}
	}
}

func TestProofChain_CheckTrust_Invalid(t *testing.T) {
	b := genChain(t, 1)

	// Append a block whose key is signed by an unrelated secret instead of
	// the chain's actual last key, forging the link into it. badSecret is
	// the new block's own key, kept so the next (legitimate) block can
	// still chain validly from it.
	impostorSecret := big.NewInt(9001)
	badSecret := big.NewInt(4242)
	badKey := bls.PubkeyFromSecret(badSecret)
	badSig := bls.Sign(impostorSecret, badKey.Bytes())
	b.chain.tail = append(b.chain.tail, block{key: badKey, signature: badSig})
	b.secrets = append(b.secrets, badSecret)

	// Followed by one more, validly signed by the bad block's own key, so
	// the chain self-verifies everywhere except at the forged link.
	b.push(t)

	keys := b.chain.Keys()

	// Trusting anything up to, but excluding, the forged block: the rest of
	// the chain still has to re-verify from there, and fails at the forgery.
	for _, key := range keys[:2] {
		trusted := map[bls.PublicKey]struct{}{key: {}}
		if got := b.chain.CheckTrust(trusted); got != Invalid {
			t.Fatalf("trusting key %x: expected Invalid, got %v", key, got)
		}
	}

	// Trusting the forged block or anything after it: nothing left to
	// re-verify, so the chain is trusted from that point on.
	for _, key := range keys[2:] {
		trusted := map[bls.PublicKey]struct{}{key: {}}
		if got := b.chain.CheckTrust(trusted); got != Trusted {
			t.Fatalf("trusting key %x: expected Trusted, got %v", key, got)
		}
	}
}

func TestProofChain_CheckTrust_Unknown(t *testing.T) {
	b := genChain(t, 2)

	unrelated := bls.PubkeyFromSecret(big.NewInt(555))
	trusted := map[bls.PublicKey]struct{}{unrelated: {}}

	if got := b.chain.CheckTrust(trusted); got != Unknown {
		t.Fatalf("expected Unknown when no key is trusted, got %v", got)
	}
}

func TestProofChain_Push_RejectsBadSignature(t *testing.T) {
	b := genChain(t, 1)

	forgedSecret := big.NewInt(31337)
	forgedKey := bls.PubkeyFromSecret(big.NewInt(24680))
	badSig := bls.Sign(forgedSecret, forgedKey.Bytes())

	lenBefore := b.chain.Len()
	if b.chain.Push(forgedKey, badSig) {
		t.Fatal("expected push with bad signature to be rejected")
	}
	if b.chain.Len() != lenBefore {
		t.Fatal("expected rejected push to leave the chain untouched")
	}
}

func TestProofChain_SliceFrom(t *testing.T) {
	b := genChain(t, 3)

	sliced := b.chain.SliceFrom(2)
	if sliced.Len() != b.chain.Len()-2 {
		t.Fatalf("expected slice to drop 2 leading keys, got length %d", sliced.Len())
	}
	if sliced.FirstKey() != b.chain.Keys()[2] {
		t.Fatal("expected slice to be anchored at the requested index")
	}
	if !sliced.SelfVerify() {
		t.Fatal("expected sliced chain to remain independently verifiable")
	}
}
