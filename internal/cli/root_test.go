package cli

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVersionCommand(t *testing.T) {
	root := NewRoot(discardLogger())
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Fatalf("unexpected version output: %q", got)
	}
}

func TestReportCommandPrintsSummary(t *testing.T) {
	t.Setenv("NORTE_DB_PATH", filepath.Join(t.TempDir(), "norte.sqlite"))

	root := NewRoot(discardLogger())
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"report", "1000", "--period", "weekly"})

	if err := root.Execute(); err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out.String(), "No hay registros de entrenamiento") {
		t.Fatalf("unexpected report output: %q", out.String())
	}
}

func TestReportCommandRejectsUnknownPeriod(t *testing.T) {
	t.Setenv("NORTE_DB_PATH", filepath.Join(t.TempDir(), "norte.sqlite"))

	root := NewRoot(discardLogger())
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"report", "1000", "--period", "daily"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown period")
	}
}
