package section

import "github.com/nkoteskey/routing/xorspace"

// Map holds this node's view of the network topology: our own elders, our
// neighbours' elders, the newest known key per section, and our estimate of
// how much of our own history each neighbour has seen.
type Map struct {
	our        EldersInfo
	neighbours map[xorspace.Prefix]EldersInfo
	keys       map[xorspace.Prefix]PublicKeyRecord
	knowledge  map[xorspace.Prefix]uint64
}

// PublicKeyRecord is the newest known key for a section along with the
// index in its proof chain it corresponds to, used to detect supersession.
type PublicKeyRecord struct {
	Key   [48]byte
	Index uint64
}

// NewMap returns a Map seeded with our own genesis EldersInfo.
func NewMap(our EldersInfo) *Map {
	return &Map{
		our:        our,
		neighbours: make(map[xorspace.Prefix]EldersInfo),
		keys:       make(map[xorspace.Prefix]PublicKeyRecord),
		knowledge:  make(map[xorspace.Prefix]uint64),
	}
}

// Our returns our current EldersInfo.
func (m *Map) Our() EldersInfo { return m.our }

// SetOur replaces our EldersInfo. Callers are responsible for ensuring the
// new version is monotonically increasing.
func (m *Map) SetOur(info EldersInfo) { m.our = info }

// Neighbours returns every known neighbour EldersInfo.
func (m *Map) Neighbours() []EldersInfo {
	out := make([]EldersInfo, 0, len(m.neighbours))
	for _, info := range m.neighbours {
		out = append(out, info)
	}
	return out
}

// AddNeighbour records a neighbour section's EldersInfo, rejecting any
// prefix compatible with our own (that would mean it is us), and
// resolving overlaps with already-known neighbours by keeping whichever
// side keeps coverage intact.
func (m *Map) AddNeighbour(info EldersInfo) bool {
	if info.Prefix.IsCompatible(m.our.Prefix) {
		return false
	}

	var mergeCandidates []xorspace.Prefix
	for p := range m.neighbours {
		if !p.IsCompatible(info.Prefix) {
			continue
		}
		switch {
		case p.BitCount < info.Prefix.BitCount:
			// existing is strictly broader than info: it is superseded by
			// the more specific incoming record.
			delete(m.neighbours, p)
		case p.BitCount == info.Prefix.BitCount:
			// same prefix; the write below replaces it.
		default:
			// existing is a strict extension of info: info may be a merge
			// of several known neighbours. Only drop the narrower ones once
			// their union still covers the namespace info would replace —
			// otherwise keep both and let a later call converge.
			mergeCandidates = append(mergeCandidates, p)
		}
	}

	if len(mergeCandidates) > 0 && info.Prefix.IsCoveredBy(mergeCandidates) {
		for _, p := range mergeCandidates {
			delete(m.neighbours, p)
		}
	}

	m.neighbours[info.Prefix] = info
	return true
}

// UpdateKeys records the newest known key for prefix, superseding any
// older key recorded for the same or an ancestor prefix.
func (m *Map) UpdateKeys(prefix xorspace.Prefix, key [48]byte, index uint64) {
	for p := range m.keys {
		if p.IsExtensionOf(prefix) || p == prefix {
			delete(m.keys, p)
		}
	}
	m.keys[prefix] = PublicKeyRecord{Key: key, Index: index}
}

// KeyFor returns the newest known key for prefix, if any.
func (m *Map) KeyFor(prefix xorspace.Prefix) ([48]byte, bool) {
	rec, ok := m.keys[prefix]
	return rec.Key, ok
}

// KeyRecordFor returns the full PublicKeyRecord for prefix, if any. Used by
// the persistence layer, which needs the proof-chain index alongside the
// key itself to restore UpdateKeys' supersession bookkeeping.
func (m *Map) KeyRecordFor(prefix xorspace.Prefix) (PublicKeyRecord, bool) {
	rec, ok := m.keys[prefix]
	return rec, ok
}

// KeyByName returns the newest known key for whichever recorded prefix
// matches name, if any.
func (m *Map) KeyByName(name xorspace.Name) ([48]byte, bool) {
	for prefix, rec := range m.keys {
		if prefix.Matches(name) {
			return rec.Key, true
		}
	}
	return [48]byte{}, false
}

// HasKey reports whether key is recorded against any prefix.
func (m *Map) HasKey(key [48]byte) bool {
	for _, rec := range m.keys {
		if rec.Key == key {
			return true
		}
	}
	return false
}

// IsElder reports whether name is an elder of our section or of any known
// neighbour section.
func (m *Map) IsElder(name xorspace.Name) bool {
	if m.our.ContainsElder(name) {
		return true
	}
	for _, info := range m.neighbours {
		if info.ContainsElder(name) {
			return true
		}
	}
	return false
}

// NeighbourByElder returns the neighbour EldersInfo containing name as an
// elder, if any.
func (m *Map) NeighbourByElder(name xorspace.Name) (EldersInfo, bool) {
	for _, info := range m.neighbours {
		if info.ContainsElder(name) {
			return info, true
		}
	}
	return EldersInfo{}, false
}

// KnowledgeBySection returns our estimate of how many blocks of our own
// history the named section has seen, 0 if we have no estimate.
func (m *Map) KnowledgeBySection(prefix xorspace.Prefix) uint64 {
	return m.knowledge[prefix]
}

// SetKnowledge records our updated estimate of a section's knowledge of
// our history.
func (m *Map) SetKnowledge(prefix xorspace.Prefix, index uint64) {
	m.knowledge[prefix] = index
}

// Location is either a single node name or a section prefix, the two kinds
// of message destination this core routes to.
type Location struct {
	IsNode bool
	Name   xorspace.Name
	Prefix xorspace.Prefix
}

// NodeLocation returns a Location addressing a single node.
func NodeLocation(name xorspace.Name) Location {
	return Location{IsNode: true, Name: name}
}

// SectionLocation returns a Location addressing an entire section.
func SectionLocation(prefix xorspace.Prefix) Location {
	return Location{Prefix: prefix}
}

// KnowledgeByLocation returns the proof chain index we believe dst already
// knows, used to minimize attached proof chains when replying.
func (m *Map) KnowledgeByLocation(dst Location) uint64 {
	if dst.IsNode {
		return 0
	}
	return m.KnowledgeBySection(dst.Prefix)
}
