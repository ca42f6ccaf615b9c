package section

import "github.com/nkoteskey/routing/bls"

// block is one link of a SectionProofChain: a key and the signature of the
// previous key over it. The first key of the chain has no signature and is
// therefore not stored as a block.
type block struct {
	key       bls.PublicKey
	signature bls.Signature
}

func (b block) verify(prevKey bls.PublicKey) bool {
	return prevKey.Verify(b.signature, b.key.Bytes())
}

// ProofChain is an append-only chain of section BLS public keys where every
// key (after the first) is signed by its predecessor. Trust in the chain is
// bootstrapped externally: the chain cannot verify its own head.
type ProofChain struct {
	head bls.PublicKey
	tail []block
}

// NewProofChain returns a one-block chain anchored at first.
func NewProofChain(first bls.PublicKey) *ProofChain {
	return &ProofChain{head: first}
}

// Push appends key to the chain if signature is a valid signature by the
// chain's current last key over key's bytes. Invalid pushes are rejected
// without corrupting the chain; the caller is expected to log them.
func (c *ProofChain) Push(key bls.PublicKey, signature bls.Signature) bool {
	if !c.LastKey().Verify(signature, key.Bytes()) {
		return false
	}
	c.tail = append(c.tail, block{key: key, signature: signature})
	return true
}

// FirstKey returns the chain's externally-trusted anchor key.
func (c *ProofChain) FirstKey() bls.PublicKey { return c.head }

// LastKey returns the most recently pushed key, or the head if the chain
// has no tail blocks.
func (c *ProofChain) LastKey() bls.PublicKey {
	if len(c.tail) == 0 {
		return c.head
	}
	return c.tail[len(c.tail)-1].key
}

// Keys returns every key in the chain, oldest first.
func (c *ProofChain) Keys() []bls.PublicKey {
	out := make([]bls.PublicKey, 0, c.Len())
	out = append(out, c.head)
	for _, b := range c.tail {
		out = append(out, b.key)
	}
	return out
}

// Signatures returns every tail signature, oldest first: len(Signatures())
// == Len()-1. Paired with Keys, this is enough to reconstruct the chain
// block-by-block via NewProofChain and Push.
func (c *ProofChain) Signatures() []bls.Signature {
	out := make([]bls.Signature, len(c.tail))
	for i, b := range c.tail {
		out[i] = b.signature
	}
	return out
}

// IndexOf returns the index of key in the chain and true, or false if key
// is not present.
func (c *ProofChain) IndexOf(key bls.PublicKey) (uint64, bool) {
	for i, k := range c.Keys() {
		if k == key {
			return uint64(i), true
		}
	}
	return 0, false
}

// Len returns the number of keys in the chain, including the head.
func (c *ProofChain) Len() int { return 1 + len(c.tail) }

// LastKeyIndex returns the index of the last key in the chain.
func (c *ProofChain) LastKeyIndex() uint64 { return uint64(len(c.tail)) }

// SliceFrom returns the sub-chain whose head is the key at firstIndex
// (clamped to the last index) and whose tail is the remainder. The result
// is independently verifiable.
func (c *ProofChain) SliceFrom(firstIndex uint64) *ProofChain {
	if firstIndex == 0 || len(c.tail) == 0 {
		return c.clone()
	}
	headIndex := int(firstIndex)
	if headIndex > len(c.tail) {
		headIndex = len(c.tail)
	}
	headIndex--
	out := &ProofChain{head: c.tail[headIndex].key}
	out.tail = append(out.tail, c.tail[headIndex+1:]...)
	return out
}

func (c *ProofChain) clone() *ProofChain {
	out := &ProofChain{head: c.head}
	out.tail = append(out.tail, c.tail...)
	return out
}

// SelfVerify checks that every block in the tail has a valid signature by
// its predecessor. It cannot validate the head, so a true result alone
// does not establish trust; use CheckTrust for that.
func (c *ProofChain) SelfVerify() bool {
	current := c.head
	for _, b := range c.tail {
		if !b.verify(current) {
			return false
		}
		current = b.key
	}
	return true
}

// TrustStatus is the outcome of checking a proof chain against a set of
// externally trusted keys.
type TrustStatus int

const (
	// Trusted means the chain was anchored at a trusted key and every
	// block after it verifies.
	Trusted TrustStatus = iota
	// Invalid means a block in the chain (at or after the newest trusted
	// key, or anywhere if no key is trusted but the chain fails
	// self-verification) has a bad signature.
	Invalid
	// Unknown means the chain self-verifies but none of its keys are
	// among the trusted set, so trust cannot yet be determined.
	Unknown
)

func (s TrustStatus) String() string {
	switch s {
	case Trusted:
		return "Trusted"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// CheckTrust scans the chain newest-to-oldest for the first key present in
// trustedKeys. If found, every block after it is re-verified against that
// anchor; any failure yields Invalid, otherwise Trusted. If no key matches,
// the result is Unknown when the chain self-verifies, else Invalid.
func (c *ProofChain) CheckTrust(trustedKeys map[bls.PublicKey]struct{}) TrustStatus {
	index, anchor, ok := c.latestTrustedKey(trustedKeys)
	if !ok {
		if c.SelfVerify() {
			return Unknown
		}
		return Invalid
	}
	current := anchor
	for _, b := range c.tail[index:] {
		if !b.verify(current) {
			return Invalid
		}
		current = b.key
	}
	return Trusted
}

func (c *ProofChain) latestTrustedKey(trustedKeys map[bls.PublicKey]struct{}) (int, bls.PublicKey, bool) {
	// i is the position in the full key list (head at 0, tail[k] at k+1).
	// c.tail[i:] conveniently gives exactly the blocks that still need
	// re-verification against keys[i]: when i==0 (head trusted) that is
	// the whole tail, and when i==k+1 (tail[k] trusted) that is
	// tail[k+1:], the blocks after the trusted one.
	keys := c.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		if _, ok := trustedKeys[keys[i]]; ok {
			return i, keys[i], true
		}
	}
	var zero bls.PublicKey
	return 0, zero, false
}
