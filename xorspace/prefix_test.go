package xorspace

import "testing"

func nameFromBits(bits string) Name {
	var n Name
	for i, c := range bits {
		if c == '1' {
			n = n.WithBit(uint(i), true)
		}
	}
	return n
}

func prefixFromBits(bits string) Prefix {
	return NewPrefix(uint(len(bits)), nameFromBits(bits))
}

func TestPrefix_PushedPopped(t *testing.T) {
	p := prefixFromBits("101")
	if got := p.Pushed(true); got.String() != "Prefix(1011)" {
		t.Fatalf("pushed(true): got %s", got)
	}
	if got := p.Pushed(true).Popped(); !got.Equals(p) {
		t.Fatalf("pushed(b).popped() != p: got %s want %s", got, p)
	}
}

func TestPrefix_IsCompatibleSymmetric(t *testing.T) {
	a := prefixFromBits("101")
	b := prefixFromBits("1010")
	if a.IsCompatible(b) != b.IsCompatible(a) {
		t.Fatalf("compatibility is not symmetric for %s, %s", a, b)
	}
	if !a.IsCompatible(b) {
		t.Fatalf("expected %s compatible with %s", a, b)
	}
}

func TestPrefix_EmptyCompatibleWithEverything(t *testing.T) {
	empty := EmptyPrefix()
	other := prefixFromBits("11001")
	if !empty.IsCompatible(other) {
		t.Fatalf("empty prefix must be compatible with everything")
	}
}

func TestPrefix_Matches(t *testing.T) {
	name := nameFromBits("10110")
	p := NewPrefix(3, name)
	if !p.Matches(name) {
		t.Fatalf("NewPrefix(k, name).matches(name) must hold")
	}
}

func TestPrefix_Neighbour(t *testing.T) {
	a := prefixFromBits("101")
	b := prefixFromBits("1111")
	if !a.IsNeighbour(b) {
		t.Fatalf("expected %s is_neighbour %s", a, b)
	}
	c := prefixFromBits("1010")
	if c.IsNeighbour(b) {
		t.Fatalf("did not expect %s is_neighbour %s", c, b)
	}
}

func TestPrefix_IsCoveredBy(t *testing.T) {
	root := EmptyPrefix()
	set := []Prefix{prefixFromBits("0"), prefixFromBits("10"), prefixFromBits("11")}
	if !root.IsCoveredBy(set) {
		t.Fatalf("expected root prefix to be covered by %v", set)
	}

	incomplete := []Prefix{prefixFromBits("0"), prefixFromBits("10")}
	if root.IsCoveredBy(incomplete) {
		t.Fatalf("did not expect root prefix to be covered by %v", incomplete)
	}
}

func TestPrefix_LowerUpperBound(t *testing.T) {
	p := NewPrefix(4, nameFromBits("1010"))
	lb := p.LowerBound()
	ub := p.UpperBound()
	if !NewPrefix(4, lb).Equals(p) {
		t.Fatalf("lower bound must preserve prefix bits")
	}
	for i := uint(4); i < NameBits; i++ {
		if lb.Bit(i) {
			t.Fatalf("lower bound bit %d must be 0", i)
		}
		if !ub.Bit(i) {
			t.Fatalf("upper bound bit %d must be 1", i)
		}
	}
}
