package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/agent"
	"github.com/samsaffron/grade-llm/internal/cache"
	"github.com/samsaffron/grade-llm/internal/config"
	"github.com/samsaffron/grade-llm/internal/grade"
	"github.com/samsaffron/grade-llm/internal/ingest"
	"github.com/samsaffron/grade-llm/internal/llm"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/tools"
	"github.com/samsaffron/grade-llm/internal/ui"
)

// userError carries the message shown to the user; err is the cause and
// is only logged.
type userError struct {
	msg  string
	hint string
	err  error
}

func (e *userError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *userError) Unwrap() error { return e.err }

// loadSnapshot reads the workbook and applies config, rules file and
// flags, in that order of precedence.
func loadSnapshot(cmd *cobra.Command, path string, f *analysisFlags, cfg *config.Config) (*grade.Snapshot, error) {
	courses, err := ingest.LoadCourses(expandHome(path))
	if err != nil {
		return nil, &userError{msg: "读取文件失败，请确认文件格式为 .xlsx", err: err}
	}
	if len(courses) == 0 {
		return nil, &userError{
			msg:  "请先导入成绩数据",
			hint: "第一个工作表中没有可识别的课程行（需要 学年、学期、课程名称、学分、成绩 等列）",
		}
	}

	rules := grade.NewRuleSet()
	opts := grade.Options{UseFilter: cfg.Grade.UseFilter, UseMultiplier: cfg.Grade.UseMultiplier}
	keywords := append([]string(nil), cfg.Grade.MultiplierKeywords...)

	rulesPath := f.rules
	if rulesPath == "" {
		rulesPath = cfg.Grade.Rules
	}
	if rulesPath != "" {
		rf, err := ingest.LoadRules(expandHome(rulesPath))
		if err != nil {
			return nil, &userError{msg: "读取规则文件失败", err: err}
		}
		for _, sel := range rf.Apply(courses, rules) {
			slog.Warn("rule selector matched no course", "selector", sel)
		}
		opts = rf.Options(opts)
		keywords = append(keywords, rf.Keywords...)
	}
	rules.MarkMultiplier(courses, keywords)

	if cmd.Flags().Changed("filter") {
		opts.UseFilter = f.filter
	}
	if cmd.Flags().Changed("multiplier") {
		opts.UseMultiplier = f.multiplier
	}
	slog.Debug("snapshot loaded", "path", path, "courses", len(courses), "filter", opts.UseFilter, "multiplier", opts.UseMultiplier)
	return grade.BuildSnapshot(courses, rules, opts), nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

// newProvider builds the chat-completions client from config.
func newProvider(cfg *config.Config, debug *llm.DebugLogger) (*llm.OpenAICompatProvider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, &userError{
			msg:  "请先填写 SiliconFlow API Key",
			hint: fmt.Sprintf("export %s=sk-... 或 grade-llm config set llm.api_key '${MY_KEY}'", config.APIKeyEnv),
		}
	}
	return llm.NewOpenAICompatProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, "siliconflow",
		llm.WithHeaders(cfg.LLM.Headers),
		llm.WithLogger(slog.Default()),
		llm.WithDebugLogger(debug),
	), nil
}

// resolveModel returns the configured model, or picks one from the
// provider's model list when none is configured.
func resolveModel(ctx context.Context, p *llm.OpenAICompatProvider, cfg *config.Config) (string, error) {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model, nil
	}
	noModel := &userError{msg: "请先获取并选择模型", hint: "grade-llm models --select 或使用 --model"}
	ids, err := modelIDs(ctx, p, cfg.LLM.BaseURL, false)
	if err != nil {
		noModel.err = err
		return "", noModel
	}
	id := llm.PreferredModel(ids, "")
	if id == "" {
		return "", noModel
	}
	slog.Info("no model configured, using preferred model", "model", id)
	return id, nil
}

// modelIDs returns the endpoint's chat model IDs, served from the cache
// when it is fresh unless refresh is set.
func modelIDs(ctx context.Context, p *llm.OpenAICompatProvider, baseURL string, refresh bool) ([]string, error) {
	if !refresh {
		if c, err := cache.ReadModelCache(baseURL); err == nil && cache.IsCacheValid(c, baseURL) {
			slog.Debug("model list from cache", "models", len(c.Models), "fetched_at", c.FetchedAt)
			return c.Models, nil
		}
	}
	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := llm.ModelIDs(models)
	if err := cache.WriteModelCache(baseURL, ids); err != nil {
		slog.Debug("model cache not written", "error", err)
	}
	return ids, nil
}

// openStore opens the session store. Failures degrade to a no-op store
// so a broken database never blocks a conversation.
func openStore(cfg *config.Config) session.Store {
	store, err := session.NewStore(cfg.Sessions)
	if err != nil {
		slog.Warn("session storage unavailable", "error", err)
		store = &session.NoopStore{}
	}
	return session.NewLoggingStore(store, func(format string, args ...any) {
		slog.Warn(fmt.Sprintf(format, args...))
	})
}

// openDebugLogger honours --debug-log and debug.log_dir. Returns nil
// when debug logging is off.
func openDebugLogger(cfg *config.Config, sessionID string) *llm.DebugLogger {
	dir := debugLog
	switch {
	case dir == "" && cfg.Debug.LogDir == "":
		return nil
	case dir == "" || dir == "default":
		dir = cfg.Debug.LogDir
	}
	if dir == "" {
		dir = config.GetDebugLogDir()
	}
	dl, err := llm.NewDebugLogger(expandHome(dir), sessionID)
	if err != nil {
		slog.Warn("debug log unavailable", "error", err)
		return nil
	}
	return dl
}

// conversation wires one agent to its store, debug log and live view.
type conversation struct {
	agent   *agent.Agent
	relay   *ui.Relay
	store   session.Store
	session *session.Session
	debug   *llm.DebugLogger
	stats   *ui.SessionStats
	model   string
}

type conversationOptions struct {
	mode    session.SessionMode
	path    string
	flags   *analysisFlags
	resume  *session.Session
	history []agent.Entry
}

func startConversation(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store session.Store, opts conversationOptions) (*conversation, error) {
	snap, err := loadSnapshot(cmd, opts.path, opts.flags, cfg)
	if err != nil {
		return nil, err
	}

	sess := opts.resume
	if sess == nil {
		sess = &session.Session{ID: session.NewID(), Mode: opts.mode}
		if abs, err := filepath.Abs(expandHome(opts.path)); err == nil {
			sess.Source = abs
		} else {
			sess.Source = opts.path
		}
	}

	debug := openDebugLogger(cfg, sess.ID)
	debug.LogSessionStart(cmd.CommandPath(), os.Args[1:])

	provider, err := newProvider(cfg, debug)
	if err != nil {
		debug.Close()
		return nil, err
	}
	model, err := resolveModel(ctx, provider, cfg)
	if err != nil {
		debug.Close()
		return nil, err
	}

	if opts.resume == nil {
		sess.Model = model
		if err := store.Create(ctx, sess); err != nil {
			slog.Debug("session not created", "error", err)
		}
	} else {
		_ = store.UpdateStatus(ctx, sess.ID, session.StatusActive)
	}

	note := opts.flags.note
	if note == "" {
		note = cfg.Agent.Note
	}
	relay := &ui.Relay{}
	registry := tools.NewGradeRegistry(snap).WithLogger(slog.Default())
	a := agent.New(provider, registry, agent.Config{
		Model:         model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		MaxToolCalls:  cfg.Agent.MaxToolCalls,
		Timeout:       cfg.Agent.Timeout,
		Note:          note,
		UseFilter:     snap.Options.UseFilter,
		UseMultiplier: snap.Options.UseMultiplier,
	},
		agent.WithObserver(relay.Observe),
		agent.WithLogger(slog.Default()),
		agent.WithSession(store, sess.ID),
		agent.WithDebugLogger(debug),
		agent.WithHistory(opts.history),
	)

	return &conversation{
		agent:   a,
		relay:   relay,
		store:   store,
		session: sess,
		debug:   debug,
		stats:   ui.NewSessionStats(),
		model:   model,
	}, nil
}

// ask runs one question under the live view.
func (c *conversation) ask(ctx context.Context, question string) (string, error) {
	c.stats.AddTurn()
	answer, err := ui.RunAsk(ctx, func(ctx context.Context) (string, error) {
		return c.agent.Ask(ctx, question)
	}, ui.AskOptions{Relay: c.relay, Stats: c.stats, Plain: textMode})
	if err != nil {
		return "", askError(err)
	}
	return answer, nil
}

// reset clears the agent and continues in a new session, closing the old
// one as complete.
func (c *conversation) reset(ctx context.Context) error {
	next := &session.Session{
		ID:     session.NewID(),
		Mode:   c.session.Mode,
		Source: c.session.Source,
		Model:  c.model,
	}
	if err := c.agent.Reset(next.ID); err != nil {
		return askError(err)
	}
	if err := c.store.Create(ctx, next); err != nil {
		slog.Debug("session not created", "error", err)
	}
	_ = c.store.UpdateStatus(ctx, c.session.ID, session.StatusComplete)
	c.session = next
	return nil
}

// close records the final status and releases the debug log.
func (c *conversation) close(err error) {
	status := session.StatusComplete
	switch {
	case errors.Is(err, ui.ErrCancelled), errors.Is(err, context.Canceled):
		status = session.StatusInterrupted
	case err != nil:
		status = session.StatusError
	}
	_ = c.store.UpdateStatus(context.Background(), c.session.ID, status)
	c.debug.Close()
}

// askError maps agent failures to user-facing messages.
func askError(err error) error {
	var te *llm.TransportError
	switch {
	case errors.Is(err, ui.ErrCancelled), errors.Is(err, context.Canceled):
		return &userError{msg: "已取消", err: ui.ErrCancelled}
	case errors.Is(err, context.DeadlineExceeded):
		return &userError{msg: "AI 请求超时，请稍后再试。", hint: "可调整 agent.timeout", err: err}
	case errors.As(err, &te):
		return &userError{msg: "AI 请求失败，请检查 Key、模型或网络环境。", hint: te.Error(), err: err}
	case errors.Is(err, agent.ErrBusy):
		return &userError{msg: "上一个问题仍在回答中，请稍候", err: err}
	case errors.Is(err, agent.ErrEmptyQuestion):
		return &userError{msg: "请输入问题", err: err}
	}
	return err
}

// printAnswer writes the answer to stdout, rendered as markdown on a
// terminal.
func printAnswer(answer string) {
	if textMode || !ui.IsTerminal(os.Stdout) {
		fmt.Println(answer)
		return
	}
	fmt.Println(ui.RenderMarkdown(answer, ui.TerminalWidth(os.Stdout)))
}

func printStats(stats *ui.SessionStats) {
	if showStats {
		fmt.Fprintln(os.Stderr, ui.DefaultStyles().Footer.Render(stats.Render()))
	}
}
