// Package bls provides the BLS12-381 signing and verification primitives
// the section proof chain and message verifier rely on, behind a pluggable
// Backend so the rest of the module never depends on a specific
// implementation.
package bls

import (
	"errors"
	"sync"
)

// PublicKeySize and SignatureSize are the fixed encoded widths used
// throughout the proof chain and message variants (MinPk scheme: keys in
// G1, signatures in G2).
const (
	PublicKeySize = 48
	SignatureSize = 96
)

var (
	ErrInvalidPublicKeyLen = errors.New("bls: public key must be 48 bytes")
	ErrInvalidSignatureLen = errors.New("bls: signature must be 96 bytes")
)

// PublicKey is a fixed-width compressed G1 point.
type PublicKey [PublicKeySize]byte

// Signature is a fixed-width compressed G2 point.
type Signature [SignatureSize]byte

// Bytes returns the public key's fixed-width encoding.
func (pk PublicKey) Bytes() []byte { return pk[:] }

// Bytes returns the signature's fixed-width encoding.
func (s Signature) Bytes() []byte { return s[:] }

// Verify checks sig against msg under pk using the active backend.
func (pk PublicKey) Verify(sig Signature, msg []byte) bool {
	return Active().Verify(pk[:], msg, sig[:])
}

// Backend performs the raw cryptographic operations behind PublicKey and
// Signature. Implementations may use pure-Go arithmetic or an optimized
// native library such as blst.
type Backend interface {
	// Verify checks a single BLS signature.
	Verify(pubkey, msg, sig []byte) bool

	// AggregateVerify checks an aggregate signature where each signer
	// signed a different message: pubkeys[i] signed msgs[i].
	AggregateVerify(pubkeys, msgs [][]byte, sig []byte) bool

	// FastAggregateVerify checks an aggregate signature where every
	// signer signed the same message.
	FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool

	// Name returns a human-readable backend identifier.
	Name() string
}

var (
	mu      sync.RWMutex
	backend Backend = &PureGoBackend{}
)

// Active returns the currently selected backend.
func Active() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetActive sets the active backend. Passing nil resets to the pure-Go
// default. Safe for concurrent use.
func SetActive(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = &PureGoBackend{}
	}
	backend = b
}

// ParsePublicKey validates and copies a 48-byte compressed public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, ErrInvalidPublicKeyLen
	}
	copy(pk[:], b)
	return pk, nil
}

// ParseSignature validates and copies a 96-byte compressed signature.
func ParseSignature(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureSize {
		return s, ErrInvalidSignatureLen
	}
	copy(s[:], b)
	return s, nil
}
