package section

import (
	"testing"

	"github.com/nkoteskey/routing/xorspace"
)

func elderAt(prefix xorspace.Prefix, version uint64, seed byte) EldersInfo {
	node := P2pNode{PublicId: PublicId{Name: nameWithBit(0, false, seed)}, Addr: "a"}
	return NewEldersInfo(prefix, version, []MemberInfo{NewMemberInfo(node)})
}

func TestMap_AddNeighbour_SupersededByNarrowerPrefix(t *testing.T) {
	our := xorspace.NewPrefix(1, nameWithBit(0, true, 0))
	m := NewMap(elderAt(our, 0, 0xFF))

	broad := xorspace.NewPrefix(1, nameWithBit(0, false, 0))
	if !m.AddNeighbour(elderAt(broad, 0, 1)) {
		t.Fatal("expected initial broad neighbour to be added")
	}

	narrow := broad.Pushed(false)
	if !m.AddNeighbour(elderAt(narrow, 1, 2)) {
		t.Fatal("expected narrower, more specific neighbour to be added")
	}

	if _, ok := m.neighbours[broad]; ok {
		t.Fatal("expected broader superseded prefix to be removed")
	}
	if _, ok := m.neighbours[narrow]; !ok {
		t.Fatal("expected narrower prefix to be stored")
	}
}

func TestMap_AddNeighbour_MergeWithFullCoverage(t *testing.T) {
	our := xorspace.NewPrefix(1, nameWithBit(0, true, 0))
	m := NewMap(elderAt(our, 0, 0xFF))

	merged := xorspace.NewPrefix(1, nameWithBit(0, false, 0))
	left := merged.Pushed(false)
	right := merged.Pushed(true)

	if !m.AddNeighbour(elderAt(left, 0, 1)) {
		t.Fatal("expected left child to be added")
	}
	if !m.AddNeighbour(elderAt(right, 0, 2)) {
		t.Fatal("expected right child to be added")
	}

	if !m.AddNeighbour(elderAt(merged, 1, 3)) {
		t.Fatal("expected merge to be accepted")
	}

	if _, ok := m.neighbours[left]; ok {
		t.Fatal("expected left child to be dropped once its union with right covers the merge")
	}
	if _, ok := m.neighbours[right]; ok {
		t.Fatal("expected right child to be dropped once its union with left covers the merge")
	}
	if _, ok := m.neighbours[merged]; !ok {
		t.Fatal("expected merged prefix to be stored")
	}
}

func TestMap_AddNeighbour_MergeWithPartialCoverageKeepsBoth(t *testing.T) {
	our := xorspace.NewPrefix(1, nameWithBit(0, true, 0))
	m := NewMap(elderAt(our, 0, 0xFF))

	merged := xorspace.NewPrefix(1, nameWithBit(0, false, 0))
	left := merged.Pushed(false)

	if !m.AddNeighbour(elderAt(left, 0, 1)) {
		t.Fatal("expected left child to be added")
	}

	if !m.AddNeighbour(elderAt(merged, 1, 2)) {
		t.Fatal("expected incoming merge record to be stored even without full coverage")
	}

	if _, ok := m.neighbours[left]; !ok {
		t.Fatal("expected left child to be kept, since right child's coverage is still unknown")
	}
	if _, ok := m.neighbours[merged]; !ok {
		t.Fatal("expected merged prefix to be stored")
	}
}
