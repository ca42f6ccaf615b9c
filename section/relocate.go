package section

import (
	"github.com/nkoteskey/routing/bls"
	"github.com/nkoteskey/routing/xorspace"
	"golang.org/x/crypto/sha3"
)

// RelocateDetails carries everything the destination section needs to
// accept a relocating node.
type RelocateDetails struct {
	PublicId       PublicId
	Destination    xorspace.Name
	DestinationKey bls.PublicKey
	Age            uint8
}

// ComputeDestination deterministically derives the relocation target name
// for memberName, given our own prefix and the node whose churn triggered
// the relocation. Every elder computing this must agree, so the mixing is
// pure and depends only on its inputs.
func ComputeDestination(ourPrefix xorspace.Prefix, memberName, triggerName xorspace.Name) xorspace.Name {
	h := sha3.New256()
	h.Write(memberName[:])
	h.Write(triggerName[:])
	digest := h.Sum(nil)

	var hashed xorspace.Name
	for i := range hashed {
		hashed[i] = digest[i%len(digest)]
	}

	relocationHash := memberName.Xor(hashed)
	return ourPrefix.SubstitutedIn(relocationHash)
}
