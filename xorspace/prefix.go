package xorspace

import "fmt"

// Prefix identifies a section's namespace: the first BitCount bits of Name
// are significant, and every bit beyond BitCount is guaranteed to be zero.
type Prefix struct {
	BitCount uint
	Name     Name
}

// NewPrefix returns a Prefix with bitCount clamped to [0, NameBits] and every
// insignificant bit cleared.
func NewPrefix(bitCount uint, name Name) Prefix {
	if bitCount > NameBits {
		bitCount = NameBits
	}
	return Prefix{BitCount: bitCount, Name: name.ClearFrom(bitCount)}
}

// EmptyPrefix returns the zero-length prefix, which is compatible with and
// matches every name.
func EmptyPrefix() Prefix {
	return Prefix{}
}

// Pushed returns the prefix extended by one bit. It is a no-op once
// BitCount has reached NameBits.
func (p Prefix) Pushed(bit bool) Prefix {
	if p.BitCount >= NameBits {
		return p
	}
	return NewPrefix(p.BitCount+1, p.Name.WithBit(p.BitCount, bit))
}

// Popped returns the prefix with its last bit dropped and re-cleared. It is
// a no-op at BitCount 0.
func (p Prefix) Popped() Prefix {
	if p.BitCount == 0 {
		return p
	}
	return NewPrefix(p.BitCount-1, p.Name.ClearFrom(p.BitCount-1))
}

// IsCompatible reports whether p and other agree on every bit up to the
// shorter of the two BitCounts. Reflexive and symmetric; the empty prefix is
// compatible with everything.
func (p Prefix) IsCompatible(other Prefix) bool {
	minBits := p.BitCount
	if other.BitCount < minBits {
		minBits = other.BitCount
	}
	return p.Name.CommonPrefixLen(other.Name) >= minBits
}

// IsExtensionOf reports whether p is a strict, compatible lengthening of
// other.
func (p Prefix) IsExtensionOf(other Prefix) bool {
	return p.IsCompatible(other) && p.BitCount > other.BitCount
}

// IsNeighbour reports whether p and other are incompatible, but become
// compatible by flipping exactly one bit at a position shared by both.
func (p Prefix) IsNeighbour(other Prefix) bool {
	if p.IsCompatible(other) {
		return false
	}
	minBits := p.BitCount
	if other.BitCount < minBits {
		minBits = other.BitCount
	}
	cpl := p.Name.CommonPrefixLen(other.Name)
	if cpl >= minBits {
		return false
	}
	flipped := other.Name.WithBit(cpl, p.Name.Bit(cpl))
	return flipped.CommonPrefixLen(p.Name) >= minBits
}

// Matches reports whether the first BitCount bits of name equal p's.
func (p Prefix) Matches(name Name) bool {
	return name.CommonPrefixLen(p.Name) >= p.BitCount
}

// CmpDistance orders p and other by proximity to target: if compatible, the
// shorter prefix is closer; otherwise whichever shares a longer common
// prefix with target wins, ties broken deterministically by prefix
// ordering.
func (p Prefix) CmpDistance(other Prefix, target Name) int {
	if p.IsCompatible(other) {
		switch {
		case p.BitCount < other.BitCount:
			return -1
		case p.BitCount > other.BitCount:
			return 1
		default:
			return 0
		}
	}
	pc := p.Name.CommonPrefixLen(target)
	oc := other.Name.CommonPrefixLen(target)
	switch {
	case pc > oc:
		return -1
	case pc < oc:
		return 1
	default:
		return p.Cmp(other)
	}
}

// Cmp provides the Prefix ordering used as a distance tie-break: equal
// prefixes compare equal; compatible prefixes order by BitCount (shorter is
// less); otherwise prefixes order by Name.
func (p Prefix) Cmp(other Prefix) int {
	if p.Equals(other) {
		return 0
	}
	if p.IsCompatible(other) {
		if p.BitCount < other.BitCount {
			return -1
		}
		return 1
	}
	for i := range p.Name {
		if p.Name[i] != other.Name[i] {
			if p.Name[i] < other.Name[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Equals reports whether p and other denote the same bit sequence.
func (p Prefix) Equals(other Prefix) bool {
	return p.BitCount == other.BitCount && p.IsCompatible(other)
}

// IsCoveredBy reports whether the union of the compatible, equal-or-shorter
// prefixes in set exactly covers p's namespace.
func (p Prefix) IsCoveredBy(set []Prefix) bool {
	maxBits := p.BitCount
	for _, q := range set {
		if q.BitCount > maxBits {
			maxBits = q.BitCount
		}
	}
	return p.isCoveredBy(set, maxBits)
}

func (p Prefix) isCoveredBy(set []Prefix, maxBits uint) bool {
	for _, q := range set {
		if q.IsCompatible(p) && q.BitCount <= p.BitCount {
			return true
		}
	}
	if p.BitCount > maxBits {
		return false
	}
	return p.Pushed(false).isCoveredBy(set, maxBits) && p.Pushed(true).isCoveredBy(set, maxBits)
}

// LowerBound returns p with every insignificant bit cleared to zero (this is
// always already true of p, and is provided for symmetry with UpperBound).
func (p Prefix) LowerBound() Name {
	return p.Name.ClearFrom(p.BitCount)
}

// UpperBound returns p's name with every insignificant bit set to one.
func (p Prefix) UpperBound() Name {
	return p.Name.SetFrom(p.BitCount)
}

// SubstitutedIn overwrites name's first BitCount bits with p's bits.
func (p Prefix) SubstitutedIn(name Name) Name {
	out := name
	for i := uint(0); i < p.BitCount; i++ {
		out = out.WithBit(i, p.Name.Bit(i))
	}
	return out
}

func (p Prefix) String() string {
	buf := make([]byte, p.BitCount)
	for i := uint(0); i < p.BitCount; i++ {
		if p.Name.Bit(i) {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return fmt.Sprintf("Prefix(%s)", string(buf))
}
