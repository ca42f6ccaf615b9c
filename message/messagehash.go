// Package message implements the wire message envelope, the tagged-union
// Variant payload, and the trust verification routine that lets a node
// decide whether an incoming message can be acted on without further
// corroboration.
package message

import "golang.org/x/crypto/sha3"

// MessageHash is a content hash used as a dedup key and as the nonce that
// distinguishes otherwise-identical NeighbourInfo messages triggered by
// different incoming traffic.
type MessageHash [32]byte

// ComputeMessageHash hashes an arbitrary byte payload.
func ComputeMessageHash(data []byte) MessageHash {
	return MessageHash(sha3.Sum256(data))
}

func (h MessageHash) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, len(h)*2)
	for i, b := range h {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}
