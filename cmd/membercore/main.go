// Command membercore runs a single section-membership node: it bootstraps
// onto a known contact, joins a section, and from then on applies agreed
// churn events and serves the membership and trust core described by this
// module.
//
// Usage:
//
//	membercore [flags]
//
// Flags:
//
//	--datadir      Data directory path (default: ~/.membercore)
//	--name         Node name, for logging (default: membercore)
//	--port         P2P listening port (default: 9090)
//	--networkid    Network ID (default: 1)
//	--eldersize    Target elder count per section (default: 7)
//	--secsize      Recommended section size before a split (default: 8)
//	--maxpeers     Max P2P peers (default: 50)
//	--verbosity    Log level 0-5 (default: 3)
//	--metrics      Enable metrics collection (default: false)
//	--genesis      Found a new network instead of bootstrapping
//	--bootstrap    Comma-separated contact addresses to bootstrap from
//	--version      Print version and exit
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nkoteskey/routing/consensus"
	"github.com/nkoteskey/routing/node"
	"github.com/nkoteskey/routing/section"
	"github.com/nkoteskey/routing/transport"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, opts, exit, code := parseFlags(args)
	if exit {
		return code
	}

	cfg.LogLevel = node.VerbosityToLogLevel(cfg.Verbosity)

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("membercore %s starting", version)
	log.Printf("  datadir:     %s", cfg.DataDir)
	log.Printf("  name:        %s", cfg.Name)
	log.Printf("  network id:  %d", cfg.NetworkID)
	log.Printf("  p2p port:    %d", cfg.P2PPort)
	log.Printf("  elder size:  %d", cfg.ElderSize)
	log.Printf("  section sz:  %d", cfg.RecommendedSectionSize)
	log.Printf("  max peers:   %d", cfg.MaxPeers)
	log.Printf("  verbosity:   %d (%s)", cfg.Verbosity, cfg.LogLevel)
	log.Printf("  metrics:     %v", cfg.Metrics)

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	if err := cfg.InitDataDir(); err != nil {
		log.Printf("Failed to initialize datadir: %v", err)
		return 1
	}
	log.Printf("Data directory initialized: %s", cfg.DataDir)

	identity, err := loadOrCreateIdentity(cfg)
	if err != nil {
		log.Printf("Failed to load node identity: %v", err)
		return 1
	}
	log.Printf("  node name:   %s", identity.Name())

	tr := transport.NewMemory()
	timer := transport.NewFakeTimer()
	engine := consensus.NewMemoryEngine(64)

	n, err := node.New(cfg, identity, tr, timer, engine)
	if err != nil {
		log.Printf("Failed to create node: %v", err)
		return 1
	}

	if err := n.Lifecycle().Register(n, 0); err != nil {
		log.Printf("Failed to register node service: %v", err)
		return 1
	}

	if opts.genesis {
		secret, err := randomSecret()
		if err != nil {
			log.Printf("Failed to generate genesis secret: %v", err)
			return 1
		}
		if err := n.Genesis(secret); err != nil {
			log.Printf("Failed to found network: %v", err)
			return 1
		}
		log.Printf("Founded a new network as its first elder")
	}

	if errs := n.Lifecycle().StartAll(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("Failed to start service: %v", e)
		}
		return 1
	}

	if len(opts.bootstrap) > 0 && n.Stage() == node.StageBootstrapping {
		contacts := make([]section.Addr, len(opts.bootstrap))
		for i, addr := range opts.bootstrap {
			contacts[i] = section.Addr(addr)
		}
		n.StartBootstrap(contacts)
		log.Printf("Bootstrapping via %d contact(s)", len(contacts))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	if errs := n.Lifecycle().StopAll(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("Error during shutdown: %v", e)
		}
		return 1
	}

	log.Println("Shutdown complete")
	return 0
}

// cliOptions holds flags that don't belong on node.Config itself: one-shot
// actions and bootstrap targets resolved once at startup.
type cliOptions struct {
	genesis   bool
	bootstrap []string
}

// parseFlags parses CLI arguments into a Config and the CLI-only options.
// Returns whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (node.Config, cliOptions, bool, int) {
	cfg := node.DefaultConfig()
	var opts cliOptions
	var bootstrap string

	fs := newCustomFlagSet("membercore")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "node name, for logging")
	fs.IntVar(&cfg.P2PPort, "port", cfg.P2PPort, "P2P listening port")
	fs.Uint64Var(&cfg.NetworkID, "networkid", cfg.NetworkID, "network identifier")
	fs.IntVar(&cfg.ElderSize, "eldersize", cfg.ElderSize, "target elder count per section")
	fs.IntVar(&cfg.RecommendedSectionSize, "secsize", cfg.RecommendedSectionSize, "recommended section size before a split")
	fs.IntVar(&cfg.MaxPeers, "maxpeers", cfg.MaxPeers, "maximum number of P2P peers")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "enable metrics collection")
	fs.BoolVar(&opts.genesis, "genesis", false, "found a new network instead of bootstrapping")
	fs.StringVar(&bootstrap, "bootstrap", "", "comma-separated contact addresses to bootstrap from")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, opts, true, 2
	}

	if *showVersion {
		fmt.Printf("membercore %s (commit %s)\n", version, commit)
		return cfg, opts, true, 0
	}

	if bootstrap != "" {
		for _, addr := range strings.Split(bootstrap, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				opts.bootstrap = append(opts.bootstrap, addr)
			}
		}
	}

	return cfg, opts, false, 0
}
