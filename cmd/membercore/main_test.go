package main

import "testing"

func TestParseFlags_Defaults(t *testing.T) {
	cfg, opts, exit, code := parseFlags(nil)
	if exit {
		t.Fatalf("expected no exit, got code %d", code)
	}
	if opts.genesis {
		t.Fatal("expected genesis to default false")
	}
	if len(opts.bootstrap) != 0 {
		t.Fatalf("expected no bootstrap contacts, got %v", opts.bootstrap)
	}
	if cfg.P2PPort == 0 {
		t.Fatal("expected a non-zero default P2P port")
	}
}

func TestParseFlags_Version(t *testing.T) {
	_, _, exit, code := parseFlags([]string{"--version"})
	if !exit || code != 0 {
		t.Fatalf("expected version flag to exit 0, got exit=%v code=%d", exit, code)
	}
}

func TestParseFlags_Bootstrap(t *testing.T) {
	_, opts, exit, _ := parseFlags([]string{"--bootstrap", "a:1, b:2 ,c:3"})
	if exit {
		t.Fatal("expected no exit")
	}
	want := []string{"a:1", "b:2", "c:3"}
	if len(opts.bootstrap) != len(want) {
		t.Fatalf("expected %v, got %v", want, opts.bootstrap)
	}
	for i, addr := range want {
		if opts.bootstrap[i] != addr {
			t.Fatalf("expected %v, got %v", want, opts.bootstrap)
		}
	}
}

func TestParseFlags_Genesis(t *testing.T) {
	_, opts, exit, _ := parseFlags([]string{"--genesis"})
	if exit {
		t.Fatal("expected no exit")
	}
	if !opts.genesis {
		t.Fatal("expected genesis to be set")
	}
}

func TestParseFlags_InvalidFlag(t *testing.T) {
	_, _, exit, code := parseFlags([]string{"--not-a-real-flag"})
	if !exit || code != 2 {
		t.Fatalf("expected exit code 2 on bad flag, got exit=%v code=%d", exit, code)
	}
}
