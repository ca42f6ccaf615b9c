package bls

import (
	"crypto/sha256"
	"errors"
	"math/big"
	"sync"
)

// PureGoBackend implements Backend using big.Int based BLS12-381 field,
// curve and pairing arithmetic. It is the default backend so the module
// builds and runs without cgo; the blst-backed Backend (behind the "blst"
// build tag) should be preferred in production for performance.
type PureGoBackend struct{}

func (b *PureGoBackend) Name() string { return "pure-go" }

func (b *PureGoBackend) Verify(pubkey, msg, sig []byte) bool {
	if len(pubkey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	var pk [PublicKeySize]byte
	var s [SignatureSize]byte
	copy(pk[:], pubkey)
	copy(s[:], sig)
	return blsVerify(pk, msg, s)
}

func (b *PureGoBackend) AggregateVerify(pubkeys, msgs [][]byte, sig []byte) bool {
	if len(pubkeys) == 0 || len(pubkeys) != len(msgs) || len(sig) != SignatureSize {
		return false
	}
	pks := make([][PublicKeySize]byte, len(pubkeys))
	for i, pk := range pubkeys {
		if len(pk) != PublicKeySize {
			return false
		}
		copy(pks[i][:], pk)
	}
	var s [SignatureSize]byte
	copy(s[:], sig)
	return blsVerifyAggregate(pks, msgs, s)
}

func (b *PureGoBackend) FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool {
	if len(pubkeys) == 0 || len(sig) != SignatureSize {
		return false
	}
	pks := make([][PublicKeySize]byte, len(pubkeys))
	for i, pk := range pubkeys {
		if len(pk) != PublicKeySize {
			return false
		}
		copy(pks[i][:], pk)
	}
	var s [SignatureSize]byte
	copy(s[:], sig)
	return blsFastAggregateVerify(pks, msg, s)
}

// signDST is the proof-of-possession scheme domain separation tag used for
// hashing messages to G2.
var signDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// Sign produces a G2 signature over msg under the given secret scalar. Used
// by tests and by section key generation tooling; production signing is
// delegated to the consensus engine's key custody, which is out of this
// core's scope.
func Sign(secret *big.Int, msg []byte) Signature {
	hm := hashToG2(msg, signDST)
	s := blsG2ScalarMul(hm, secret)
	return serializeG2(s)
}

// PubkeyFromSecret derives the compressed G1 public key for a secret scalar.
func PubkeyFromSecret(secret *big.Int) PublicKey {
	pk := blsG1ScalarMul(BlsG1Generator(), secret)
	out := serializeG1(pk)
	registerSecret(out, secret)
	return out
}

// AggregateSignatures combines signature shares (each over the same
// message, from distinct signers) into a single aggregate signature by
// summing their G2 points. Used to combine elders' signature shares over
// a message into the section's joint signature once enough shares have
// arrived. Returns an error if any share fails to deserialize.
func AggregateSignatures(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return Signature{}, errors.New("bls: no signatures to aggregate")
	}

	sum := BlsG2Infinity()
	for _, sig := range sigs {
		p := deserializeG2(sig)
		if p == nil {
			return Signature{}, errors.New("bls: invalid signature share")
		}
		sum = blsG2Add(sum, p)
	}
	return serializeG2(sum), nil
}

var (
	secretsMu sync.Mutex
	secrets   = map[PublicKey]*big.Int{}
)

// registerSecret remembers the secret scalar behind a derived public key,
// used only by in-process test fixtures that need to sign with a key they
// just generated.
func registerSecret(pk PublicKey, secret *big.Int) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	secrets[pk] = new(big.Int).Set(secret)
}

func blsVerify(pubkey PublicKey, msg []byte, sig Signature) bool {
	pk := deserializeG1(pubkey)
	if pk == nil || pk.blsG1IsInfinity() {
		return false
	}
	s := deserializeG2(sig)
	if s == nil || s.blsG2IsInfinity() {
		return false
	}
	hm := hashToG2(msg, signDST)
	negG1 := blsG1Neg(BlsG1Generator())
	return blsMultiPairing([]*BlsG1Point{pk, negG1}, []*BlsG2Point{hm, s})
}

func blsVerifyAggregate(pubkeys []PublicKey, msgs [][]byte, sig Signature) bool {
	s := deserializeG2(sig)
	if s == nil || s.blsG2IsInfinity() {
		return false
	}
	n := len(pubkeys)
	g1Points := make([]*BlsG1Point, n+1)
	g2Points := make([]*BlsG2Point, n+1)
	for i := 0; i < n; i++ {
		pk := deserializeG1(pubkeys[i])
		if pk == nil || pk.blsG1IsInfinity() {
			return false
		}
		g1Points[i] = pk
		g2Points[i] = hashToG2(msgs[i], signDST)
	}
	g1Points[n] = blsG1Neg(BlsG1Generator())
	g2Points[n] = s
	return blsMultiPairing(g1Points, g2Points)
}

func blsFastAggregateVerify(pubkeys []PublicKey, msg []byte, sig Signature) bool {
	s := deserializeG2(sig)
	if s == nil || s.blsG2IsInfinity() {
		return false
	}
	aggPK := BlsG1Infinity()
	for _, pk := range pubkeys {
		p := deserializeG1(pk)
		if p == nil || p.blsG1IsInfinity() {
			return false
		}
		aggPK = blsG1Add(aggPK, p)
	}
	if aggPK.blsG1IsInfinity() {
		return false
	}
	hm := hashToG2(msg, signDST)
	negG1 := blsG1Neg(BlsG1Generator())
	return blsMultiPairing([]*BlsG1Point{aggPK, negG1}, []*BlsG2Point{hm, s})
}

func serializeG1(p *BlsG1Point) PublicKey {
	var out PublicKey
	if p.blsG1IsInfinity() {
		out[0] = 0xC0
		return out
	}
	x, y := p.blsG1ToAffine()
	xBytes := x.Bytes()
	copy(out[PublicKeySize-len(xBytes):], xBytes)
	out[0] |= 0x80
	halfP := new(big.Int).Rsh(blsP, 1)
	if y.Cmp(halfP) > 0 {
		out[0] |= 0x20
	}
	return out
}

func deserializeG1(data PublicKey) *BlsG1Point {
	if data[0]&0x80 == 0 {
		return nil
	}
	if data[0]&0x40 != 0 {
		return BlsG1Infinity()
	}
	sortFlag := data[0]&0x20 != 0
	data[0] &= 0x1F
	x := new(big.Int).SetBytes(data[:])
	if x.Cmp(blsP) >= 0 {
		return nil
	}
	x3 := blsFpMul(blsFpSqr(x), x)
	rhs := blsFpAdd(x3, blsB)
	y := blsFpSqrt(rhs)
	if y == nil {
		return nil
	}
	halfP := new(big.Int).Rsh(blsP, 1)
	if sortFlag != (y.Cmp(halfP) > 0) {
		y = blsFpNeg(y)
	}
	p := blsG1FromAffine(x, y)
	if !blsG1InSubgroup(p) {
		return nil
	}
	return p
}

func serializeG2(p *BlsG2Point) Signature {
	var out Signature
	if p.blsG2IsInfinity() {
		out[0] = 0xC0
		return out
	}
	x, y := p.blsG2ToAffine()
	c1Bytes := x.c1.Bytes()
	c0Bytes := x.c0.Bytes()
	copy(out[PublicKeySize-len(c1Bytes):PublicKeySize], c1Bytes)
	copy(out[SignatureSize-len(c0Bytes):], c0Bytes)
	out[0] |= 0x80
	halfP := new(big.Int).Rsh(blsP, 1)
	if y.c1.Cmp(halfP) > 0 || (y.c1.Sign() == 0 && y.c0.Cmp(halfP) > 0) {
		out[0] |= 0x20
	}
	return out
}

func deserializeG2(data Signature) *BlsG2Point {
	if data[0]&0x80 == 0 {
		return nil
	}
	if data[0]&0x40 != 0 {
		return BlsG2Infinity()
	}
	sortFlag := data[0]&0x20 != 0
	data[0] &= 0x1F
	c1 := new(big.Int).SetBytes(data[:PublicKeySize])
	c0 := new(big.Int).SetBytes(data[PublicKeySize:])
	if c0.Cmp(blsP) >= 0 || c1.Cmp(blsP) >= 0 {
		return nil
	}
	x := &blsFp2{c0: c0, c1: c1}
	x3 := blsFp2Mul(blsFp2Sqr(x), x)
	rhs := blsFp2Add(x3, blsTwistB)
	y := blsFp2Sqrt(rhs)
	if y == nil {
		return nil
	}
	halfP := new(big.Int).Rsh(blsP, 1)
	yLarger := y.c1.Cmp(halfP) > 0 || (y.c1.Sign() == 0 && y.c0.Cmp(halfP) > 0)
	if sortFlag != yLarger {
		y = blsFp2Neg(y)
	}
	p := blsG2FromAffine(x, y)
	if !blsG2InSubgroup(p) {
		return nil
	}
	return p
}

func hashToField(msg, dst []byte, index byte) *big.Int {
	h := sha256.New()
	h.Write(dst)
	h.Write(msg)
	h.Write([]byte{index, 0})
	hash1 := h.Sum(nil)

	h.Reset()
	h.Write(dst)
	h.Write(hash1)
	h.Write([]byte{index, 1})
	hash2 := h.Sum(nil)

	combined := make([]byte, 64)
	copy(combined[:32], hash1)
	copy(combined[32:], hash2)
	return new(big.Int).Mod(new(big.Int).SetBytes(combined), blsP)
}

func hashToG2(msg, dst []byte) *BlsG2Point {
	u0 := &blsFp2{c0: hashToField(msg, dst, 0), c1: hashToField(msg, dst, 1)}
	u1 := &blsFp2{c0: hashToField(msg, dst, 2), c1: hashToField(msg, dst, 3)}

	q0 := blsMapFp2ToG2(u0)
	q1 := blsMapFp2ToG2(u1)
	q := blsG2Add(q0, q1)

	cofactor, _ := new(big.Int).SetString(
		"5d543a95414e7f1091d50792876a202cd91de4547085abaa68a205b2e5a7ddfa628f1cb4d9e82ef21537e293a6691ae1616ec6e786f0c70cf1c38e31c7238e5", 16)
	return blsG2ScalarMul(q, cofactor)
}
