package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunReturnsExitCode(t *testing.T) {
	args := os.Args
	t.Cleanup(func() { os.Args = args })

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	os.Args = []string{"visionapp", "-config", missing, "-env-file", ""}

	if code := run(); code != 1 {
		t.Errorf("expected exit code 1 for a missing config file, got %d", code)
	}
}
