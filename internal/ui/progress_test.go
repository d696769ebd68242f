package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	coresync "collection-sync/internal/core/sync"
)

// TestProgressModelTracksProgress verifies progress messages update the bar state.
func TestProgressModelTracksProgress(t *testing.T) {
	m := NewProgressModel("Syncing", nil)
	if !strings.Contains(m.View(), "fetching records") {
		t.Fatalf("expected fetching hint before first progress, got %q", m.View())
	}
	next, cmd := m.Update(progressMsg{done: 5, total: 20})
	if cmd != nil {
		t.Fatalf("expected nil cmd")
	}
	m = next.(ProgressModel)
	if m.Percent() != 0.25 {
		t.Fatalf("percent = %v", m.Percent())
	}
	if !strings.Contains(m.View(), "5/20") {
		t.Fatalf("view missing counter: %q", m.View())
	}
}

// TestProgressModelQuitCancels ensures q cancels the run context and quits.
func TestProgressModelQuitCancels(t *testing.T) {
	cancelled := false
	m := NewProgressModel("Syncing", func() { cancelled = true })
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !cancelled || !next.(ProgressModel).cancelled {
		t.Fatalf("expected cancellation")
	}
	if cmd == nil {
		t.Fatalf("expected quit cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

// TestProgressModelFinishedQuits ensures the program ends once the run returns.
func TestProgressModelFinishedQuits(t *testing.T) {
	m := NewProgressModel("Syncing", nil)
	next, cmd := m.Update(finishedMsg{})
	if cmd == nil {
		t.Fatalf("expected quit cmd")
	}
	if v := next.(ProgressModel).View(); v != "" {
		t.Fatalf("finished view should be empty, got %q", v)
	}
}

func TestRunPlainPrintsTenths(t *testing.T) {
	var out bytes.Buffer
	want := &coresync.Report{RunID: "r1"}
	got, err := RunPlain(context.Background(), &out, func(ctx context.Context, p coresync.Progress) (*coresync.Report, error) {
		for i := 1; i <= 100; i++ {
			p(i, 100)
		}
		return want, nil
	})
	if err != nil || got != want {
		t.Fatalf("RunPlain = %v, %v", got, err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 11 {
		t.Fatalf("expected 11 lines, got %d: %q", len(lines), out.String())
	}
	if lines[len(lines)-1] != "transformed 100/100 records" {
		t.Fatalf("last line = %q", lines[len(lines)-1])
	}
}
