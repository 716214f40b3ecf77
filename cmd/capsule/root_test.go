package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "capsule" {
			t.Errorf("expected use 'capsule', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has global flags", func(t *testing.T) {
		t.Parallel()
		verbose := cmd.PersistentFlags().Lookup("verbose")
		if verbose == nil || verbose.Shorthand != "v" {
			t.Fatal("expected verbose flag with shorthand 'v'")
		}
		config := cmd.PersistentFlags().Lookup("config")
		if config == nil || config.Shorthand != "c" {
			t.Fatal("expected config flag with shorthand 'c'")
		}
		if cmd.PersistentFlags().Lookup("json-log") == nil {
			t.Fatal("expected json-log flag")
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{
			"go": false, "fetch-later": false, "sync": false, "list": false,
			"cert": false, "init": false, "version": false,
		}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected %s subcommand", name)
			}
		}
	})

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("expected SilenceUsage and SilenceErrors to be true")
		}
	})
}

// writeTestConfig writes a configuration file that keeps every directory
// inside a temporary directory, and returns its path.
func writeTestConfig(t *testing.T) (path, root string) {
	t.Helper()
	root = t.TempDir()
	path = filepath.Join(root, "capsule.yaml")
	content := "directories:\n" +
		"  cache: " + filepath.Join(root, "cache") + "\n" +
		"  data: " + filepath.Join(root, "data") + "\n" +
		"  config: " + filepath.Join(root, "config") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, root
}

// runCapsule executes the root command with args and returns stdout.
func runCapsule(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestBuildConfig(t *testing.T) {
	t.Run("missing explicit config file fails", func(t *testing.T) {
		_, err := runCapsule(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "list")
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
	})

	t.Run("directories come from the config file", func(t *testing.T) {
		path, root := writeTestConfig(t)
		if _, err := runCapsule(t, "--config", path, "list", "create", "reading"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "data", "lists", "reading.gmi")); err != nil {
			t.Errorf("expected list under configured data directory: %v", err)
		}
	})
}
