// Package node wires together a section membership core's subsystems:
// the replicated SharedState, the joining stage, the consensus bridge,
// the transport, and on-disk persistence.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nkoteskey/routing/section"
)

// Config holds all configuration for a member-core node.
type Config struct {
	// DataDir is the root directory for all persisted state.
	DataDir string

	// Name is a human-readable node identifier (used in logs).
	Name string

	// NetworkID distinguishes independent overlay deployments sharing no
	// section state, analogous to an Ethereum chain ID.
	NetworkID uint64

	// ElderSize is the target number of elders per section.
	ElderSize int

	// RecommendedSectionSize is the member count at which a section is
	// considered large enough to split, and below which startup aging is
	// accelerated.
	RecommendedSectionSize int

	// P2PPort is the TCP port accepting inbound connections from peers.
	P2PPort int

	// MaxPeers is the maximum number of simultaneous peer connections.
	MaxPeers int

	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string

	// Verbosity controls numeric log level (0=silent, 1=error, 2=warn,
	// 3=info, 4=debug, 5=trace). When set, overrides LogLevel.
	Verbosity int

	// Metrics enables the metrics collection subsystem.
	Metrics bool
}

// defaultDataDir returns the platform-specific default data directory.
// Falls back to ".membercore" in the current directory if the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".membercore"
	}
	return filepath.Join(home, ".membercore")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:                defaultDataDir(),
		Name:                   "membercore",
		NetworkID:              1,
		ElderSize:              7,
		RecommendedSectionSize: 8,
		P2PPort:                9090,
		MaxPeers:               50,
		LogLevel:               "info",
		Verbosity:              3,
		Metrics:                false,
	}
}

// NetworkParams converts the relevant subset of Config into the
// section.NetworkParams the shared state machine consumes.
func (c *Config) NetworkParams() section.NetworkParams {
	return section.NetworkParams{
		ElderSize:              c.ElderSize,
		RecommendedSectionSize: c.RecommendedSectionSize,
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if c.P2PPort < 0 || c.P2PPort > 65535 {
		return fmt.Errorf("config: invalid p2p port: %d", c.P2PPort)
	}
	if c.MaxPeers < 0 {
		return fmt.Errorf("config: invalid max peers: %d", c.MaxPeers)
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("config: verbosity must be 0-5, got %d", c.Verbosity)
	}
	if c.ElderSize <= 0 {
		return fmt.Errorf("config: elder size must be positive, got %d", c.ElderSize)
	}
	if c.RecommendedSectionSize < c.ElderSize {
		return fmt.Errorf("config: recommended section size %d must be at least elder size %d",
			c.RecommendedSectionSize, c.ElderSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// VerbosityToLogLevel converts a numeric verbosity level to a log level string.
func VerbosityToLogLevel(v int) string {
	switch {
	case v <= 0:
		return "error" // silent maps to error-only
	case v == 1:
		return "error"
	case v == 2:
		return "warn"
	case v == 3:
		return "info"
	default:
		return "debug" // 4 and 5 both map to debug
	}
}

// dataDirSubdirs lists subdirectories created inside the data directory.
var dataDirSubdirs = []string{
	"statedb",
	"keystore",
}

// InitDataDir creates the data directory and its standard subdirectories
// if they do not already exist.
func (c *Config) InitDataDir() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}

	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("config: create datadir: %w", err)
	}

	for _, sub := range dataDirSubdirs {
		dir := filepath.Join(c.DataDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("config: create %s: %w", sub, err)
		}
	}
	return nil
}

// ResolvePath resolves a path relative to the data directory.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// StateDBPath returns the path to the node's persisted SharedState database.
func (c *Config) StateDBPath() string {
	return c.ResolvePath("statedb")
}

// P2PAddr returns the P2P listen address string.
func (c *Config) P2PAddr() string {
	return fmt.Sprintf(":%d", c.P2PPort)
}
