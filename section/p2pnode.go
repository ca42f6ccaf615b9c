// Package section implements the per-section replicated state: member
// records, elder sets, the neighbour-section map and the signed proof
// chain that anchors inter-section trust.
package section

import "github.com/nkoteskey/routing/xorspace"

// Addr is a transport-level socket address, opaque to this package.
type Addr string

// PublicId identifies a node by its XOR name; it is the routing-visible
// half of a P2pNode.
type PublicId struct {
	Name xorspace.Name
}

// P2pNode pairs a node's public identity with its current socket address.
type P2pNode struct {
	PublicId PublicId
	Addr     Addr
}

// Name returns the node's XOR name.
func (n P2pNode) Name() xorspace.Name { return n.PublicId.Name }
