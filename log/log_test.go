package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("HANDY_LOG_PATH", "/tmp/handy-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/handy-env-log" {
		t.Errorf("got %q, want /tmp/handy-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("HANDY_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitWritesLogFile(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Warn("startup warning")
	DiscardedEdit("gemini_transcription")

	data, err := os.ReadFile(filepath.Join(tmp, "handy_log.txt"))
	if err != nil {
		t.Fatalf("handy_log.txt not created: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "startup warning") {
		t.Errorf("log missing warn line, got: %q", text)
	}
	if !strings.Contains(text, "unsaved edit discarded") {
		t.Errorf("log missing discarded-edit line, got: %q", text)
	}
	if !strings.Contains(text, "gemini_transcription") {
		t.Errorf("log missing field key, got: %q", text)
	}
}

func TestLogBeforeInitIsNoop(t *testing.T) {
	Close()
	Info("dropped") // must not panic with no writer
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
