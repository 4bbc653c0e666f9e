package logger

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultLoggerUsableBeforeInit ensures a component can log (e.g. a
// warning from a decode-error path) even if the process never called Init —
// true for most unit tests, which don't set up the CLI's logging flags.
func TestDefaultLoggerUsableBeforeInit(t *testing.T) {
	if Log == nil {
		t.Fatalf("package-level Log must be non-nil before Init is called")
	}
	Warn("test warning", "k", "v")
	Info("test info")
	Debug("test debug")
}

func TestInitWritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beamterm.log")
	if err := Init("debug", path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("hello from test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected Init to write log output to %s", path)
	}
}

func TestInitRejectsUnwritablePath(t *testing.T) {
	if err := Init("info", filepath.Join(t.TempDir(), "nope", "sub", "x.log")); err == nil {
		t.Fatalf("expected error for an unwritable log file path")
	}
}
