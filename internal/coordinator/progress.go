package coordinator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	output = termenv.NewOutput(os.Stderr)

	labelStyle = lipgloss.NewStyle().Bold(true)
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// progressSource is polled on every tick to learn how far the crawl has
// gotten. The coordinator passes queue.Queue.Progress.
type progressSource func(ctx context.Context) (completed, total int64, err error)

// shouldRenderBar reports whether stderr is a TTY worth drawing a live bar
// on. Non-interactive runs (piped to a file, CI) fall back to plain log
// lines so output stays greppable instead of filling with redraw noise.
func shouldRenderBar() bool {
	if output.ColorProfile() == termenv.Ascii {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// runMonitor polls source every pollInterval and renders progress until
// either the crawl completes (completed == total, total > 0) or done fires
// — the signal the coordinator sends once every launched worker has exited.
// A polling error is reported (a stderr line, or a line under the bar) and
// the poll is retried on the next tick; it never stops the monitor early,
// matching §4.1's "monitoring errors do not stop workers" contract.
func runMonitor(ctx context.Context, source progressSource, pollInterval time.Duration, done <-chan struct{}) error {
	if !shouldRenderBar() {
		return plainMonitor(ctx, source, pollInterval, done)
	}

	m := newMonitorModel(source, pollInterval)
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	go func() {
		select {
		case <-done:
		case <-ctx.Done():
		}
		p.Send(doneMsg{})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(monitorModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}

// plainMonitor is the non-TTY fallback: one log line per tick instead of a
// redrawing bar, so piped/CI output stays line-oriented.
func plainMonitor(ctx context.Context, source progressSource, pollInterval time.Duration, done <-chan struct{}) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-ticker.C:
			completed, total, err := source(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "monitor: progress query failed: %v\n", err)
				continue
			}
			pct := 0.0
			if total > 0 {
				pct = float64(completed) / float64(total) * 100
			}
			fmt.Fprintf(os.Stderr, "progress: %s/%s chunks (%.1f%%)\n",
				humanize.Comma(completed), humanize.Comma(total), pct)
			if total > 0 && completed >= total {
				return nil
			}
		}
	}
}

type tickMsg time.Time
type doneMsg struct{}
type progressMsg struct {
	completed, total int64
}
type progressErrMsg struct{ err error }

type monitorModel struct {
	bar          progress.Model
	source       progressSource
	pollInterval time.Duration
	completed    int64
	total        int64
	err          error
}

func newMonitorModel(source progressSource, pollInterval time.Duration) monitorModel {
	return monitorModel{
		bar:          progress.New(progress.WithDefaultGradient()),
		source:       source,
		pollInterval: pollInterval,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m monitorModel) poll() tea.Cmd {
	return func() tea.Msg {
		completed, total, err := m.source(context.Background())
		if err != nil {
			return progressErrMsg{err}
		}
		return progressMsg{completed, total}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(m.poll(), m.tick())
	case progressMsg:
		m.completed, m.total = msg.completed, msg.total
		m.err = nil
		if m.total > 0 && m.completed >= m.total {
			return m, tea.Quit
		}
		return m, nil
	case progressErrMsg:
		// A poll failure is rendered, not fatal — matches §4.1 "monitoring
		// errors are logged and retried; they do not stop workers." The
		// next successful tick clears it.
		m.err = msg.err
		return m, nil
	case doneMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m monitorModel) View() string {
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.completed) / float64(m.total)
	}
	view := fmt.Sprintf("%s\n%s %s\n",
		labelStyle.Render("crawling hacker news"),
		m.bar.ViewAs(pct),
		countStyle.Render(fmt.Sprintf("%s/%s chunks (%.1f%%)",
			humanize.Comma(m.completed), humanize.Comma(m.total), pct*100)),
	)
	if m.err != nil {
		view += errStyle.Render(fmt.Sprintf("progress query failed: %v", m.err)) + "\n"
	}
	return view
}
