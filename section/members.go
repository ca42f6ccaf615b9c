package section

import (
	"bytes"
	"sort"

	"github.com/nkoteskey/routing/xorspace"
)

// Members is the mapping of XorName to MemberInfo for a single section.
type Members struct {
	byName map[xorspace.Name]MemberInfo
}

// NewMembers returns an empty member set.
func NewMembers() *Members {
	return &Members{byName: make(map[xorspace.Name]MemberInfo)}
}

// Add inserts or replaces the record for a member.
func (m *Members) Add(info MemberInfo) {
	m.byName[info.P2pNode.Name()] = info
}

// Remove deletes a member's record and returns the prior value, if present.
func (m *Members) Remove(name xorspace.Name) (MemberInfo, bool) {
	info, ok := m.byName[name]
	if ok {
		delete(m.byName, name)
	}
	return info, ok
}

// Get returns the record for name, if present.
func (m *Members) Get(name xorspace.Name) (MemberInfo, bool) {
	info, ok := m.byName[name]
	return info, ok
}

// Contains reports whether name is a known member, in any state.
func (m *Members) Contains(name xorspace.Name) bool {
	_, ok := m.byName[name]
	return ok
}

// Set replaces the record for an existing member in place; it is a no-op
// if the member is not present.
func (m *Members) Set(info MemberInfo) {
	if _, ok := m.byName[info.P2pNode.Name()]; ok {
		m.byName[info.P2pNode.Name()] = info
	}
}

// All returns every known member regardless of state, including Left
// members retained pending a prefix change. Used for persistence and
// diagnostics; membership decisions should use Joined, Active or Mature
// instead.
func (m *Members) All() []MemberInfo {
	out := make([]MemberInfo, 0, len(m.byName))
	for _, info := range m.byName {
		out = append(out, info)
	}
	sortByName(out)
	return out
}

// Joined returns every member in the Joined state.
func (m *Members) Joined() []MemberInfo {
	var out []MemberInfo
	for _, info := range m.byName {
		if info.State == Joined {
			out = append(out, info)
		}
	}
	sortByName(out)
	return out
}

// Active returns every member in the Joined or Relocating state.
func (m *Members) Active() []MemberInfo {
	var out []MemberInfo
	for _, info := range m.byName {
		if info.IsActive() {
			out = append(out, info)
		}
	}
	sortByName(out)
	return out
}

// Mature returns every active member whose age counter has crossed
// MaturityThreshold.
func (m *Members) Mature() []MemberInfo {
	var out []MemberInfo
	for _, info := range m.byName {
		if info.IsActive() && info.IsMature() {
			out = append(out, info)
		}
	}
	sortByName(out)
	return out
}

// MutateJoined applies fn to every Joined member in ascending name order,
// committing whatever fn did back into the member set. The ascending order
// makes the resulting relocate-queue ordering deterministic when multiple
// members cross an aging boundary in the same call.
func (m *Members) MutateJoined(fn func(info *MemberInfo)) {
	names := make([]xorspace.Name, 0, len(m.byName))
	for name, info := range m.byName {
		if info.State == Joined {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return bytes.Compare(names[i][:], names[j][:]) < 0
	})
	for _, name := range names {
		info := m.byName[name]
		fn(&info)
		m.byName[name] = info
	}
}

// RemoveNotMatchingPrefix drops every member whose name no longer matches
// prefix, used after a split or merge changes our section's namespace.
func (m *Members) RemoveNotMatchingPrefix(prefix xorspace.Prefix) {
	for name := range m.byName {
		if !prefix.Matches(name) {
			delete(m.byName, name)
		}
	}
}

// ElderCandidates returns the elderSize active members with the highest
// age, ties broken by ascending name, as described in spec.md §4.5.
func (m *Members) ElderCandidates(elderSize int) []MemberInfo {
	return elderCandidates(m.Active(), elderSize)
}

// ElderCandidatesMatchingPrefix restricts elder selection to members whose
// name matches prefix; used when computing post-split elder sets.
func (m *Members) ElderCandidatesMatchingPrefix(prefix xorspace.Prefix, elderSize int) []MemberInfo {
	var matching []MemberInfo
	for _, info := range m.Active() {
		if prefix.Matches(info.P2pNode.Name()) {
			matching = append(matching, info)
		}
	}
	return elderCandidates(matching, elderSize)
}

func elderCandidates(candidates []MemberInfo, elderSize int) []MemberInfo {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Age != candidates[j].Age {
			return candidates[i].Age > candidates[j].Age
		}
		ni, nj := candidates[i].P2pNode.Name(), candidates[j].P2pNode.Name()
		return bytes.Compare(ni[:], nj[:]) < 0
	})
	if len(candidates) > elderSize {
		candidates = candidates[:elderSize]
	}
	return candidates
}

func sortByName(members []MemberInfo) {
	sort.Slice(members, func(i, j int) bool {
		ni, nj := members[i].P2pNode.Name(), members[j].P2pNode.Name()
		return bytes.Compare(ni[:], nj[:]) < 0
	})
}
