package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDesignHashIsStableForTheSameIdentity(t *testing.T) {
	ctrl := newTestCtrl("DEADBEEF", true)
	s := New(ctrl, nil, "DEADBEEF", Options{NodeLocked: true, Log: zerolog.Nop()})

	h1, err := s.designHash()
	if err != nil {
		t.Fatalf("designHash: %v", err)
	}
	h2, err := s.designHash()
	if err != nil {
		t.Fatalf("designHash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("designHash() not stable: %q != %q", h1, h2)
	}
	if h1 == "" {
		t.Fatalf("designHash() returned empty string")
	}
}

func TestLoadOrCreateRequestReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	ctrl := newTestCtrl("DEADBEEF", true)
	s := New(ctrl, nil, "DEADBEEF", Options{NodeLocked: true, NodeLockDir: dir, Log: zerolog.Nop()})

	reqPath := filepath.Join(dir, "precomputed.req")
	const seed = `{"saasChallenge":"seeded","meteringFile":"","request":"open","mode":"nodelocked"}`
	if err := os.WriteFile(reqPath, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed request file: %v", err)
	}

	req, err := s.loadOrCreateRequest(reqPath)
	if err != nil {
		t.Fatalf("loadOrCreateRequest: %v", err)
	}
	if req.SaaSChallenge != "seeded" {
		t.Fatalf("SaaSChallenge = %q, want %q (existing .req should be reused, not overwritten by a fresh Open())", req.SaaSChallenge, "seeded")
	}
}
