package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	coresync "collection-sync/internal/core/sync"
)

// RunFunc is a sync run that reports record progress.
type RunFunc func(ctx context.Context, p coresync.Progress) (*coresync.Report, error)

type progressMsg struct{ done, total int }

type finishedMsg struct {
	report *coresync.Report
	err    error
}

// ProgressModel shows a spinner until records are being transformed, then a
// progress bar.
type ProgressModel struct {
	title     string
	spinner   spinner.Model
	bar       progress.Model
	done      int
	total     int
	finished  bool
	cancelled bool
	cancel    context.CancelFunc
}

func NewProgressModel(title string, cancel context.CancelFunc) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = subtleStyle
	bar := progress.New(progress.WithGradient("#8942E1", "#3AC4BA"), progress.WithWidth(40))
	return ProgressModel{title: title, spinner: sp, bar: bar, cancel: cancel}
}

func (m ProgressModel) Init() tea.Cmd { return m.spinner.Tick }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case progressMsg:
		m.done, m.total = msg.done, msg.total
		return m, nil
	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.spinner.View() + " " + titleStyle.Render(m.title) + "\n\n")
	if m.total == 0 {
		b.WriteString(subtleStyle.Render("fetching records…") + "\n")
	} else {
		pct := float64(m.done) / float64(m.total)
		b.WriteString(m.bar.ViewAs(pct) + fmt.Sprintf("  %d/%d\n", m.done, m.total))
	}
	b.WriteString("\n" + renderFooter("", "q: cancel"))
	return b.String()
}

// Percent is the share of transformed records, 0 before the first report.
func (m ProgressModel) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// RunWithProgress runs fn while rendering a ProgressModel on out. Quitting the
// view cancels fn's context; the result of fn is always awaited.
func RunWithProgress(ctx context.Context, title string, in io.Reader, out io.Writer, fn RunFunc) (*coresync.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(NewProgressModel(title, cancel), tea.WithInput(in), tea.WithOutput(out))
	results := make(chan finishedMsg, 1)
	go func() {
		rep, err := fn(ctx, func(done, total int) {
			prog.Send(progressMsg{done: done, total: total})
		})
		results <- finishedMsg{report: rep, err: err}
		prog.Send(finishedMsg{report: rep, err: err})
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-results
		return nil, fmt.Errorf("progress view: %w", err)
	}
	res := <-results
	return res.report, res.err
}

// RunPlain runs fn and prints a line every tenth of the batch.
func RunPlain(ctx context.Context, out io.Writer, fn RunFunc) (*coresync.Report, error) {
	var mu sync.Mutex
	last := -1
	return fn(ctx, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if step := done * 10 / total; step > last {
			last = step
			fmt.Fprintf(out, "transformed %d/%d records\n", done, total)
		}
	})
}
