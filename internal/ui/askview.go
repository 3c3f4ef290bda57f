package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	xansi "github.com/charmbracelet/x/ansi"

	"github.com/samsaffron/grade-llm/internal/agent"
)

// liveLines is how many trailing lines of a streaming answer stay on
// screen.
const liveLines = 12

// ErrCancelled is returned when the user pressed Esc or Ctrl-C.
var ErrCancelled = errors.New("cancelled")

// Relay forwards agent progress to whichever view is currently active.
// Pass Relay.Observe to agent.WithObserver.
type Relay struct {
	mu   sync.Mutex
	sink func(agent.Progress)
}

// Observe implements agent.Observer.
func (r *Relay) Observe(p agent.Progress) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(p)
	}
}

func (r *Relay) set(sink func(agent.Progress)) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// AskOptions configures RunAsk.
type AskOptions struct {
	Relay *Relay
	Stats *SessionStats // optional
	Plain bool          // no live view, tool notices as plain lines
}

// RunAsk runs ask while showing live progress on stderr and returns its
// answer. Without a terminal, or with Plain set, progress is written as
// plain lines instead.
func RunAsk(ctx context.Context, ask func(context.Context) (string, error), opts AskOptions) (string, error) {
	if opts.Relay == nil {
		opts.Relay = &Relay{}
	}
	if opts.Stats == nil {
		opts.Stats = NewSessionStats()
	}
	defer opts.Relay.set(nil)

	if opts.Plain || !IsTerminal(os.Stderr) {
		return runPlain(ctx, ask, opts)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newAskModel(cancel, DefaultStyles(), TerminalWidth(os.Stderr), opts.Stats)
	progOpts := []tea.ProgramOption{tea.WithOutput(os.Stderr)}
	if tty, err := getTTY(); err == nil {
		defer tty.Close()
		progOpts = append(progOpts, tea.WithInput(tty))
	}
	p := tea.NewProgram(model, progOpts...)

	opts.Relay.set(func(pr agent.Progress) { p.Send(progressMsg(pr)) })

	results := make(chan answerMsg, 1)
	go func() {
		answer, err := ask(ctx)
		msg := answerMsg{answer: answer, err: err}
		results <- msg
		p.Send(msg)
	}()

	// The answer decides the outcome; a failed view only loses the live output.
	final, _ := p.Run()
	res := <-results
	opts.Stats.Finalize()
	if res.err == nil {
		return res.answer, nil
	}
	if m, ok := final.(askModel); ok && m.cancelled {
		return "", ErrCancelled
	}
	return "", res.err
}

func runPlain(ctx context.Context, ask func(context.Context) (string, error), opts AskOptions) (string, error) {
	styles := DefaultStyles()
	width := TerminalWidth(os.Stderr)
	opts.Relay.set(func(p agent.Progress) {
		if p.Entry == nil || p.Entry.Role != agent.RoleTool {
			return
		}
		switch p.Entry.Phase {
		case agent.PhaseCall:
			opts.Stats.ToolStart()
			fmt.Fprintln(os.Stderr, RenderToolCall(styles, *p.Entry))
		case agent.PhaseResult:
			opts.Stats.ToolEnd()
			if !opts.Plain {
				fmt.Fprintln(os.Stderr, RenderToolCard(styles, *p.Entry, width))
			}
		}
	})
	answer, err := ask(ctx)
	opts.Stats.Finalize()
	return answer, err
}

type progressMsg agent.Progress

type answerMsg struct {
	answer string
	err    error
}

// askModel is the bubbletea model for one question.
type askModel struct {
	spinner spinner.Model
	styles  *Styles
	cancel  context.CancelFunc
	stats   *SessionStats
	width   int

	hint      agent.Hint
	forced    bool
	text      string
	cancelled bool
	done      bool
}

func newAskModel(cancel context.CancelFunc, styles *Styles, width int, stats *SessionStats) askModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner
	return askModel{
		spinner: s,
		styles:  styles,
		cancel:  cancel,
		stats:   stats,
		width:   width,
	}
}

func (m askModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEscape || msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = min(msg.Width, maxWidth)
	case progressMsg:
		return m.applyProgress(agent.Progress(msg))
	case answerMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m askModel) applyProgress(p agent.Progress) (tea.Model, tea.Cmd) {
	if e := p.Entry; e != nil {
		if e.Role != agent.RoleTool {
			return m, nil
		}
		if e.Phase == agent.PhaseCall {
			m.stats.ToolStart()
			return m, tea.Println(RenderToolCall(m.styles, *e))
		}
		m.stats.ToolEnd()
		m.text = ""
		return m, tea.Println(RenderToolCard(m.styles, *e, m.width))
	}
	m.hint = p.Hint
	m.forced = p.Forced
	m.text = ""
	if p.Visible {
		m.text = p.Text
	}
	return m, nil
}

func (m askModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	status := m.spinner.View() + " " + m.label() + " " + m.styles.Muted.Render("(esc 取消)")
	if m.text == "" {
		return status
	}
	return tailLines(xansi.Hardwrap(m.text, m.width, true), liveLines) + "\n" + status
}

func (m askModel) label() string {
	switch {
	case m.hint == agent.HintTool:
		return "正在调用工具..."
	case m.hint == agent.HintAnswer:
		return "正在回答..."
	case m.forced:
		return "正在整理回答..."
	}
	return "正在思考..."
}

func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
