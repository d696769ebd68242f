package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactionInStdlogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(false)
	RegisterSecret("secret123")

	_, err := w.Write([]byte("this contains secret123 and should be redacted\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if strings.Contains(got, "secret123") {
		t.Fatalf("expected secret to be redacted, got: %s", got)
	}
	if !strings.Contains(got, "[REDACTED]") {
		t.Fatalf("expected [REDACTED] marker, got: %s", got)
	}
}

func TestTruncationWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(false)

	long := strings.Repeat("a", 6000)
	_, err := w.Write([]byte(long + "\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "truncated") {
		t.Fatalf("expected truncation indicator, got: %s", got)
	}
}

func TestNoTruncationWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(true)

	long := strings.Repeat("b", 4000)
	_, err := w.Write([]byte(long + "\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if strings.Contains(got, "truncated") {
		t.Fatalf("did not expect truncation, got: %s", got)
	}
}

func TestInfowEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	SetMinLevel(LevelInfo)
	SetVerbose(false)
	RegisterSecret("tok-abc")

	Infow("fetched page", "records", 100, "token", "tok-abc", "err", errors.New("boom"), "dangling")
	var e struct {
		Level  string         `json:"level"`
		Msg    string         `json:"msg"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if e.Level != "info" || e.Msg != "fetched page" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Fields["records"] != float64(100) || e.Fields["token"] != "[REDACTED]" || e.Fields["err"] != "boom" {
		t.Fatalf("unexpected fields: %+v", e.Fields)
	}
	if e.Fields["dangling"] != "(missing)" {
		t.Fatalf("odd key should be kept, got %+v", e.Fields)
	}
}

func TestDebugwFilteredByLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	SetMinLevel(LevelWarn)

	Debugw("hidden", "k", "v")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, " INFO ": LevelInfo, "error": LevelError, "": LevelWarn, "nope": LevelWarn}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenFileWritesThroughRotator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sync.log")
	w, err := OpenFile(path, FileOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	SetOutput(w)
	SetMinLevel(LevelInfo)
	Infof("hello %s", "file")
	SetOutput(io.Discard)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log file = %s", data)
	}
}
