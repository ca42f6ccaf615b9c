package section

import "github.com/nkoteskey/routing/xorspace"

// EldersInfo describes the elder set governing a section at a given
// version: the section's prefix, the version, and the ordered elder
// membership. Every elder's name must match Prefix.
type EldersInfo struct {
	Prefix  xorspace.Prefix
	Version uint64
	Elders  map[xorspace.Name]P2pNode
}

// NewEldersInfo builds an EldersInfo from a member slice, keying the elder
// map by name.
func NewEldersInfo(prefix xorspace.Prefix, version uint64, members []MemberInfo) EldersInfo {
	elders := make(map[xorspace.Name]P2pNode, len(members))
	for _, m := range members {
		elders[m.P2pNode.Name()] = m.P2pNode
	}
	return EldersInfo{Prefix: prefix, Version: version, Elders: elders}
}

// ContainsElder reports whether name is one of this EldersInfo's elders.
func (e EldersInfo) ContainsElder(name xorspace.Name) bool {
	_, ok := e.Elders[name]
	return ok
}

// Len returns the number of elders.
func (e EldersInfo) Len() int { return len(e.Elders) }

// Addrs returns the socket addresses of every elder, for fan-out sends.
func (e EldersInfo) Addrs() []Addr {
	out := make([]Addr, 0, len(e.Elders))
	for _, node := range e.Elders {
		out = append(out, node.Addr)
	}
	return out
}
