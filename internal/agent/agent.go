// Package agent runs the tool-calling conversation loop: it streams model
// turns, decides whether a turn is a tool call or an answer, dispatches
// tools and bounds repetition and iteration.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/grade-llm/internal/llm"
	"github.com/samsaffron/grade-llm/internal/prompt"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/tools"
)

// DefaultMaxToolCalls bounds tool round trips per question.
const DefaultMaxToolCalls = 6

var (
	// ErrBusy is returned when Ask is called while another Ask is running.
	ErrBusy = errors.New("agent is busy with another question")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Config holds the per-conversation settings.
type Config struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxToolCalls  int
	Timeout       time.Duration
	Note          string
	UseFilter     bool
	UseMultiplier bool
}

// Progress is a live update of the current question.
//
// Text is the accumulated turn text and is only set while Visible. Entry
// is set when a transcript entry was just appended.
type Progress struct {
	Hint    Hint
	Text    string
	Visible bool
	Forced  bool
	Entry   *Entry
}

// Observer receives progress updates on the Ask goroutine.
type Observer func(Progress)

// Option configures an Agent.
type Option func(*Agent)

// WithObserver sets the live progress callback.
func WithObserver(obs Observer) Option {
	return func(a *Agent) { a.observer = obs }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSession records every appended entry to store under sessionID.
func WithSession(store session.Store, sessionID string) Option {
	return func(a *Agent) {
		a.store = store
		a.sessionID = sessionID
	}
}

// WithDebugLogger records tool dispatches to the JSONL debug log.
func WithDebugLogger(d *llm.DebugLogger) Option {
	return func(a *Agent) { a.debug = d }
}

// WithHistory seeds the transcript, e.g. when resuming a session.
func WithHistory(entries []Entry) Option {
	return func(a *Agent) { a.entries = append([]Entry(nil), entries...) }
}

// Agent owns one conversation about one transcript snapshot.
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	cfg      Config
	system   string

	observer  Observer
	logger    *slog.Logger
	store     session.Store
	sessionID string
	debug     *llm.DebugLogger

	// askMu serializes Ask and Reset; logMu guards entries for readers.
	askMu   sync.Mutex
	logMu   sync.RWMutex
	entries []Entry
}

// New builds an agent. The system prompt is rendered once from the
// registry catalogue and the configured toggles.
func New(provider llm.Provider, registry *tools.Registry, cfg Config, opts ...Option) *Agent {
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = DefaultMaxToolCalls
	}
	a := &Agent{
		provider: provider,
		registry: registry,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	a.system = prompt.SystemPrompt(prompt.Options{
		Tools:         registry.Descriptors(),
		Note:          cfg.Note,
		UseFilter:     cfg.UseFilter,
		UseMultiplier: cfg.UseMultiplier,
	})
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SystemPrompt returns the rendered system prompt.
func (a *Agent) SystemPrompt() string {
	return a.system
}

// Tools returns the catalogue advertised to the model.
func (a *Agent) Tools() []tools.Descriptor {
	return a.registry.Descriptors()
}

// Transcript returns a copy of the full log, directives included.
func (a *Agent) Transcript() []Entry {
	a.logMu.RLock()
	defer a.logMu.RUnlock()
	return append([]Entry(nil), a.entries...)
}

// Reset clears the conversation. A non-empty sessionID moves recording
// to that session, so resuming the old one never replays later turns and
// resuming the new one starts after the reset. It returns ErrBusy while
// an Ask is running.
func (a *Agent) Reset(sessionID string) error {
	if !a.askMu.TryLock() {
		return ErrBusy
	}
	defer a.askMu.Unlock()
	a.logMu.Lock()
	a.entries = nil
	a.logMu.Unlock()
	if sessionID != "" {
		a.sessionID = sessionID
	}
	return nil
}

// Ask runs one question to completion and returns the final answer.
// Transport failures and cancellation are returned as errors; entries
// appended before the failure stay in the log.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	if !a.askMu.TryLock() {
		return "", ErrBusy
	}
	defer a.askMu.Unlock()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	a.append(ctx, Entry{Role: RoleUser, Content: question})
	if a.store != nil {
		_ = a.store.IncrementUserTurns(context.WithoutCancel(ctx), a.sessionID)
	}

	var lastKey string
	for i := 0; i < a.cfg.MaxToolCalls; i++ {
		text, err := a.turn(ctx, NewClassifier())
		if err != nil {
			return "", err
		}

		call, ok := Extract(text)
		if !ok {
			return a.finish(ctx, text), nil
		}

		args := CanonicalArguments(call.Arguments)
		key := repetitionKey(call.Tool, args)
		if key == lastKey {
			a.logger.Debug("repeated tool call, forcing answer", "tool", call.Tool, "args", string(args))
			return a.force(ctx, prompt.RepeatDirective)
		}
		lastKey = key

		a.dispatch(ctx, call.Tool, text, args)
	}

	a.logger.Debug("tool call limit reached, forcing answer", "limit", a.cfg.MaxToolCalls)
	return a.force(ctx, prompt.LimitDirective)
}

// force appends a directive and returns the next response as the answer
// without looking for tool calls in it.
func (a *Agent) force(ctx context.Context, directive string) (string, error) {
	a.append(ctx, Entry{Role: RoleUser, Content: directive, Directive: true})
	text, err := a.turn(ctx, NewAnswerClassifier())
	if err != nil {
		return "", err
	}
	return a.finish(ctx, text), nil
}

func (a *Agent) finish(ctx context.Context, text string) string {
	answer := strings.TrimSpace(text)
	if answer == "" {
		answer = prompt.EmptyAnswerFallback
	}
	a.append(ctx, Entry{Role: RoleAssistant, Content: answer})
	return answer
}

func (a *Agent) dispatch(ctx context.Context, tool, callText string, args json.RawMessage) {
	a.append(ctx, Entry{Role: RoleTool, Phase: PhaseCall, Tool: tool, Content: strings.TrimSpace(callText), Payload: args})

	start := time.Now()
	result := a.registry.Dispatch(tool, args)
	a.debug.LogToolDispatch(tool, args, result)

	indented, compact, err := marshalResult(result)
	if err != nil {
		a.logger.Warn("tool result is not serializable", "tool", tool, "error", err)
		indented, compact, _ = marshalResult(tools.ErrorResult{Error: err.Error()})
	}
	a.logger.Debug("tool dispatched", "tool", tool, "args", string(args), "duration", time.Since(start))

	a.append(ctx, Entry{Role: RoleTool, Phase: PhaseResult, Tool: tool, Content: indented, Payload: compact})
	if a.store != nil {
		_ = a.store.IncrementToolCalls(context.WithoutCancel(ctx), a.sessionID)
	}
}

// turn streams one model response and returns its complete text.
func (a *Agent) turn(ctx context.Context, cls *Classifier) (string, error) {
	a.logMu.RLock()
	msgs := Upstream(a.system, a.entries)
	a.logMu.RUnlock()

	forced := cls.forced
	a.notify(Progress{Hint: HintThinking, Forced: forced})

	stream, err := a.provider.Stream(ctx, llm.Request{
		Model:           a.cfg.Model,
		Messages:        msgs,
		MaxOutputTokens: a.cfg.MaxTokens,
		Temperature:     a.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer stream.Close()

	var accumulated, final string
	done := false
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("model response: %w", err)
		}
		switch ev.Type {
		case llm.EventTextDelta:
			accumulated = ev.Accumulated
			hint := cls.Observe(accumulated)
			p := Progress{Hint: hint, Visible: cls.Visible(), Forced: forced}
			if p.Visible {
				p.Text = accumulated
			}
			a.notify(p)
		case llm.EventDone:
			final = ev.Text
			done = true
		}
	}
	if !done {
		final = strings.TrimSpace(accumulated)
	}
	return final, nil
}

func (a *Agent) append(ctx context.Context, e Entry) {
	a.logMu.Lock()
	a.entries = append(a.entries, e)
	a.logMu.Unlock()

	if a.store != nil {
		rec := &session.Entry{
			Role:      string(e.Role),
			Phase:     string(e.Phase),
			Tool:      e.Tool,
			Content:   e.Content,
			Payload:   e.Payload,
			Directive: e.Directive,
		}
		if err := a.store.AddEntry(context.WithoutCancel(ctx), a.sessionID, rec); err != nil {
			a.logger.Debug("session entry not recorded", "error", err)
		}
	}
	if !e.Directive {
		a.notify(Progress{Hint: hintForEntry(e), Entry: &e})
	}
}

func (a *Agent) notify(p Progress) {
	if a.observer != nil {
		a.observer(p)
	}
}

func hintForEntry(e Entry) Hint {
	switch e.Role {
	case RoleTool:
		return HintTool
	case RoleAssistant:
		return HintAnswer
	}
	return HintThinking
}

// marshalResult renders a tool result indented for the model and compact
// for storage. HTML characters are left unescaped.
func marshalResult(v any) (indented string, compact json.RawMessage, err error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", nil, err
	}
	indented = strings.TrimRight(buf.String(), "\n")

	var small bytes.Buffer
	if err := json.Compact(&small, buf.Bytes()); err != nil {
		return "", nil, err
	}
	return indented, small.Bytes(), nil
}

// EntriesFromSession converts stored entries back into transcript entries.
func EntriesFromSession(stored []session.Entry) []Entry {
	out := make([]Entry, 0, len(stored))
	for _, s := range stored {
		out = append(out, Entry{
			Role:      Role(s.Role),
			Phase:     Phase(s.Phase),
			Tool:      s.Tool,
			Content:   s.Content,
			Payload:   s.Payload,
			Directive: s.Directive,
		})
	}
	return out
}
