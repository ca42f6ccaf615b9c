package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/nkoteskey/routing/node"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/xorspace"
)

// identityFile is the keystore entry holding this node's persistent XOR
// name, so restarts keep the same routing identity instead of rejoining
// under a fresh one every time.
const identityFile = "node.name"

// loadOrCreateIdentity loads the node's XOR name from its keystore,
// generating and persisting a fresh one on first run.
func loadOrCreateIdentity(cfg node.Config) (section.P2pNode, error) {
	path := filepath.Join(cfg.ResolvePath("keystore"), identityFile)

	if data, err := os.ReadFile(path); err == nil {
		var name xorspace.Name
		if len(data) != len(name) {
			return section.P2pNode{}, fmt.Errorf("cmd: keystore entry %q has wrong length %d", path, len(data))
		}
		copy(name[:], data)
		return newIdentity(cfg, name), nil
	} else if !os.IsNotExist(err) {
		return section.P2pNode{}, fmt.Errorf("cmd: read keystore entry: %w", err)
	}

	name, err := xorspace.RandomName()
	if err != nil {
		return section.P2pNode{}, fmt.Errorf("cmd: generate node name: %w", err)
	}
	if err := os.WriteFile(path, name[:], 0600); err != nil {
		return section.P2pNode{}, fmt.Errorf("cmd: persist node name: %w", err)
	}
	return newIdentity(cfg, name), nil
}

func newIdentity(cfg node.Config, name xorspace.Name) section.P2pNode {
	return section.P2pNode{
		PublicId: section.PublicId{Name: name},
		Addr:     section.Addr(cfg.P2PAddr()),
	}
}

// randomSecret draws a fresh BLS secret scalar for founding a new network
// as its first elder.
func randomSecret() (*big.Int, error) {
	bound := new(big.Int).Lsh(big.NewInt(1), 256)
	secret, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return nil, fmt.Errorf("cmd: generate secret: %w", err)
	}
	return secret, nil
}
