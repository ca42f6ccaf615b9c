//go:build blst

// Backend implementation wrapping supranational/blst for the MinPk scheme
// used throughout this module: public keys in G1 (48-byte compressed),
// signatures in G2 (96-byte compressed).
//
// Build with: go build -tags blst
package bls

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

var blstDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

const blstSecretSize = 32

var (
	ErrBlstInvalidIKM       = errors.New("bls: IKM must be at least 32 bytes")
	ErrBlstKeyGenFailed     = errors.New("bls: key generation failed")
	ErrBlstInvalidSecretKey = errors.New("bls: invalid secret key bytes")
	ErrBlstSignFailed       = errors.New("bls: signing failed")
	ErrBlstNoSignatures     = errors.New("bls: no signatures to aggregate")
	ErrBlstAggregateFailed  = errors.New("bls: signature aggregation failed")
)

// BlstBackend implements Backend using the supranational/blst library.
type BlstBackend struct{}

func (b *BlstBackend) Name() string { return "blst" }

func (b *BlstBackend) Verify(pubkey, msg, sig []byte) bool {
	if len(pubkey) == 0 || len(sig) == 0 {
		return false
	}
	pk := new(blst.P1Affine).Uncompress(pubkey)
	if pk == nil {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	return s.Verify(true, pk, true, msg, blstDST)
}

func (b *BlstBackend) AggregateVerify(pubkeys, msgs [][]byte, sig []byte) bool {
	n := len(pubkeys)
	if n == 0 || n != len(msgs) || len(sig) == 0 {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	pks := make([]*blst.P1Affine, n)
	for i, pkBytes := range pubkeys {
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return false
		}
	}
	blstMsgs := make([]blst.Message, n)
	for i, m := range msgs {
		blstMsgs[i] = m
	}
	return s.AggregateVerify(true, pks, true, blstMsgs, blstDST)
}

func (b *BlstBackend) FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool {
	n := len(pubkeys)
	if n == 0 || len(sig) == 0 {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	pks := make([]*blst.P1Affine, n)
	for i, pkBytes := range pubkeys {
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return false
		}
	}
	return s.FastAggregateVerify(true, pks, msg, blstDST)
}

// KeyGen generates a BLS key pair from input key material (at least 32
// bytes). Returns the compressed public key and serialized secret key.
func KeyGen(ikm []byte) (pubkey, secretKey []byte, err error) {
	if len(ikm) < 32 {
		return nil, nil, ErrBlstInvalidIKM
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, nil, ErrBlstKeyGenFailed
	}
	pk := new(blst.P1Affine).From(sk)
	return pk.Compress(), sk.Serialize(), nil
}

// SignWithSecret signs msg with a serialized secret key, returning the
// compressed signature.
func SignWithSecret(secretKey, msg []byte) ([]byte, error) {
	if len(secretKey) != blstSecretSize {
		return nil, ErrBlstInvalidSecretKey
	}
	sk := new(blst.SecretKey).Deserialize(secretKey)
	if sk == nil {
		return nil, ErrBlstInvalidSecretKey
	}
	sig := new(blst.P2Affine).Sign(sk, msg, blstDST)
	if sig == nil {
		return nil, ErrBlstSignFailed
	}
	return sig.Compress(), nil
}

// AggregateSigs aggregates compressed signatures into one compressed
// aggregate signature.
func AggregateSigs(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, ErrBlstNoSignatures
	}
	agg := new(blst.P2Aggregate)
	if !agg.AggregateCompressed(sigs, true) {
		return nil, ErrBlstAggregateFailed
	}
	return agg.ToAffine().Compress(), nil
}

func init() {
	SetActive(&BlstBackend{})
}
