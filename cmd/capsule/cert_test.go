package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCertCmd(t *testing.T) {
	path, root := writeTestConfig(t)

	out, err := runCapsule(t, "--config", path, "cert", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No persistent certificates.") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = runCapsule(t, "--config", path, "cert", "generate", "me")
	if err != nil {
		t.Fatalf("generate: unexpected error: %v", err)
	}
	if !strings.Contains(out, "Created certificate me") {
		t.Errorf("unexpected output: %q", out)
	}
	certDir := filepath.Join(root, "config", "client_certs")
	for _, name := range []string{"me.crt", "me.key"} {
		if _, err := os.Stat(filepath.Join(certDir, name)); err != nil {
			t.Errorf("expected %s in %s: %v", name, certDir, err)
		}
	}

	out, err = runCapsule(t, "--config", path, "cert", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "me" {
		t.Errorf("expected 'me', got %q", out)
	}

	if _, err := runCapsule(t, "--config", path, "cert", "forget", "example.org"); err != nil {
		t.Errorf("forget: unexpected error: %v", err)
	}
	if _, err := runCapsule(t, "--config", path, "cert", "generate", "../escape"); err == nil {
		t.Error("expected invalid name to be refused")
	}
}
