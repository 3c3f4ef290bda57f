package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/samsaffron/grade-llm/internal/agent"
	"github.com/samsaffron/grade-llm/internal/config"
	"github.com/samsaffron/grade-llm/internal/grade"
	"github.com/samsaffron/grade-llm/internal/llm"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/tools"
	"github.com/samsaffron/grade-llm/internal/ui"
)

func writeTranscript(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "grades.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

var transcriptHeader = []any{"学年", "学期", "开课学院", "课程代码", "课程名称", "教学班", "学分", "成绩分项", "成绩"}

func sampleTranscript(t *testing.T) string {
	return writeTranscript(t, [][]any{
		transcriptHeader,
		{"2022-2023", "1", "数学学院", "MATH101", "高等数学", "高等数学-01", "5", "总评", "92"},
		{"2022-2023", "2", "体育部", "PE101", "体育", "", "1", "总评", "80"},
		{"2023-2024", "1", "创新学院", "EXP1", "创新拓展", "", "2", "总评", "70"},
	})
}

func newAnalysisCmd(f *analysisFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addAnalysisFlags(cmd, f)
	return cmd
}

func TestLoadSnapshotPrecedence(t *testing.T) {
	path := sampleTranscript(t)
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	rules := "use_filter: true\nexpansion: [EXP1]\nmultiplier: [体育]\n"
	if err := os.WriteFile(rulesPath, []byte(rules), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Grade: config.GradeConfig{UseMultiplier: false}}

	// rules file beats config
	var f analysisFlags
	cmd := newAnalysisCmd(&f)
	if err := cmd.Flags().Set("rules", rulesPath); err != nil {
		t.Fatal(err)
	}
	snap, err := loadSnapshot(cmd, path, &f, cfg)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	if !snap.Options.UseFilter || snap.Options.UseMultiplier {
		t.Errorf("options = %+v, want filter on from rules file", snap.Options)
	}
	if len(snap.Courses) != 3 || len(snap.Analysis) != 2 {
		t.Errorf("courses/analysis = %d/%d, want 3/2", len(snap.Courses), len(snap.Analysis))
	}

	// flags beat the rules file
	var f2 analysisFlags
	cmd = newAnalysisCmd(&f2)
	for name, value := range map[string]string{"rules": rulesPath, "filter": "false", "multiplier": "true"} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}
	snap, err = loadSnapshot(cmd, path, &f2, cfg)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	if snap.Options.UseFilter || !snap.Options.UseMultiplier {
		t.Errorf("options = %+v, want flags to win", snap.Options)
	}
	if len(snap.Analysis) != 3 {
		t.Errorf("analysis = %d, want 3 with filter off", len(snap.Analysis))
	}
	var marked int
	for _, d := range snap.Derived {
		if d.IsMultiplier {
			marked++
		}
	}
	if marked != 1 {
		t.Errorf("multiplier courses = %d, want 1", marked)
	}
}

func TestLoadSnapshotErrors(t *testing.T) {
	cfg := &config.Config{}
	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.xlsx"), "读取文件失败，请确认文件格式为 .xlsx"},
		{"no courses", writeTranscript(t, [][]any{transcriptHeader}), "请先导入成绩数据"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f analysisFlags
			_, err := loadSnapshot(newAnalysisCmd(&f), tt.path, &f, cfg)
			var ue *userError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want *userError", err)
			}
			if ue.msg != tt.want {
				t.Errorf("msg = %q, want %q", ue.msg, tt.want)
			}
		})
	}
}

func TestAskError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", ui.ErrCancelled, "已取消"},
		{"context cancelled", fmt.Errorf("stream: %w", context.Canceled), "已取消"},
		{"timeout", context.DeadlineExceeded, "AI 请求超时，请稍后再试。"},
		{"transport", &llm.TransportError{StatusCode: 401, Body: "unauthorized"}, "AI 请求失败，请检查 Key、模型或网络环境。"},
		{"empty", agent.ErrEmptyQuestion, "请输入问题"},
		{"busy", agent.ErrBusy, "上一个问题仍在回答中，请稍候"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ue *userError
			if !errors.As(askError(tt.err), &ue) {
				t.Fatalf("askError(%v) is not a userError", tt.err)
			}
			if ue.msg != tt.want {
				t.Errorf("msg = %q, want %q", ue.msg, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if got := askError(other); got != other {
		t.Errorf("unmapped error changed: %v", got)
	}
}

func TestHandleChatCommand(t *testing.T) {
	conv := &conversation{
		agent:   agent.New(nil, tools.NewGradeRegistry(nil), agent.Config{}),
		store:   &session.NoopStore{},
		session: &session.Session{ID: session.NewID(), Mode: session.ModeChat},
	}
	styles := ui.DefaultStyles()

	q, quit, err := handleChatCommand(conv, "/quick credits", styles)
	if err != nil || quit {
		t.Fatalf("/quick credits: quit=%v err=%v", quit, err)
	}
	if q != "我已经修了多少学分？" {
		t.Errorf("/quick credits expanded to %q", q)
	}

	if _, _, err := handleChatCommand(conv, "/quick nope", styles); err == nil {
		t.Error("unknown quick prompt should fail")
	}
	if _, _, err := handleChatCommand(conv, "/frobnicate", styles); err == nil {
		t.Error("unknown command should fail")
	}
	if q, quit, err := handleChatCommand(conv, "/reset", styles); q != "" || quit || err != nil {
		t.Errorf("/reset = %q, %v, %v", q, quit, err)
	}
	if _, quit, _ := handleChatCommand(conv, "/quit", styles); !quit {
		t.Error("/quit should quit")
	}
}

func TestConversationResetStartsNewSession(t *testing.T) {
	ctx := context.Background()
	store, err := session.NewSQLiteStore(session.Config{Enabled: true, Path: filepath.Join(t.TempDir(), "sessions.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	first := &session.Session{ID: session.NewID(), Mode: session.ModeChat, Source: "/tmp/grades.xlsx"}
	if err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	p := llm.NewMockProvider("mock").
		AddTextResponse("旧回答").
		AddTextResponse("新回答")
	conv := &conversation{
		agent:   agent.New(p, tools.NewGradeRegistry(nil), agent.Config{Model: "m"}, agent.WithSession(store, first.ID)),
		store:   store,
		session: first,
		model:   "m",
	}

	if _, err := conv.agent.Ask(ctx, "重置前的问题"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := handleChatCommand(conv, "/reset", ui.DefaultStyles()); err != nil {
		t.Fatalf("/reset error = %v", err)
	}
	if conv.session.ID == first.ID {
		t.Fatal("reset kept the old session")
	}
	if _, err := conv.agent.Ask(ctx, "重置后的问题"); err != nil {
		t.Fatal(err)
	}

	old, err := store.Get(ctx, first.ID)
	if err != nil || old == nil {
		t.Fatalf("Get(old) = %v, %v", old, err)
	}
	if old.Status != session.StatusComplete {
		t.Errorf("old session status = %q, want complete", old.Status)
	}
	next, err := store.Get(ctx, conv.session.ID)
	if err != nil || next == nil {
		t.Fatalf("Get(new) = %v, %v", next, err)
	}
	if next.Source != first.Source || next.Mode != session.ModeChat {
		t.Errorf("new session = %+v", next)
	}

	entries, err := store.GetEntries(ctx, conv.session.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Content, "重置前") || strings.Contains(e.Content, "旧回答") {
			t.Errorf("pre-reset entry recorded in new session: %+v", e)
		}
	}
	if len(entries) != 2 {
		t.Errorf("new session has %d entries, want 2", len(entries))
	}
}

func TestRenderToolList(t *testing.T) {
	descs := tools.NewGradeRegistry(nil).Descriptors()
	out := renderToolList(descs, ui.DefaultStyles())
	for _, d := range descs {
		if !strings.Contains(out, d.Name) {
			t.Errorf("tool list missing %s", d.Name)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	score := 90.0
	courses := []grade.Course{
		{Key: "a", Year: "2022-2023", Term: "1", Name: "高等数学", Credit: 4, TotalScore: &score},
	}
	snap := grade.BuildSnapshot(courses, grade.NewRuleSet(), grade.Options{})
	out := renderSummary(snap, ui.DefaultStyles())
	for _, want := range []string{"加权均分", "90.00", "90+", "2022-2023"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSessionMarkdown(t *testing.T) {
	sess := &session.Session{ID: "01ABC", Number: 3, Source: "/tmp/grades.xlsx", Model: "Qwen/Qwen2.5-7B-Instruct", CreatedAt: time.Unix(0, 0).UTC()}
	entries := []agent.Entry{
		{Role: agent.RoleUser, Content: "我修了多少学分？"},
		{Role: agent.RoleTool, Phase: agent.PhaseCall, Tool: "get_total_credits"},
		{Role: agent.RoleTool, Phase: agent.PhaseResult, Tool: "get_total_credits", Content: `{"totalCredits":8}`},
		{Role: agent.RoleAssistant, Content: "你已修 8 学分。"},
	}
	md := sessionMarkdown(sess, entries)
	for _, want := range []string{"#3 01ABC", "## 你", "`get_total_credits`", "你已修 8 学分。"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "totalCredits") {
		t.Error("tool payloads should not be exported")
	}
}

type refStore struct {
	session.NoopStore
	byRef map[string]*session.Session
}

func (s *refStore) Resolve(_ context.Context, ref string) (*session.Session, error) {
	return s.byRef[ref], nil
}

func TestResolveSession(t *testing.T) {
	store := &refStore{byRef: map[string]*session.Session{"3": {ID: "01ABC", Number: 3}}}
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	got, err := resolveSession(cmd, store, "3")
	if err != nil || got.ID != "01ABC" {
		t.Fatalf("resolveSession(3) = %v, %v", got, err)
	}
	if _, err := resolveSession(cmd, store, "9"); err == nil {
		t.Error("missing session should fail")
	}
}

func TestLastAnswer(t *testing.T) {
	entries := []agent.Entry{
		{Role: agent.RoleUser, Content: "q1"},
		{Role: agent.RoleAssistant, Content: "a1"},
		{Role: agent.RoleUser, Content: "q2"},
		{Role: agent.RoleAssistant, Content: "final", Directive: true},
	}
	if got := lastAnswer(entries); got != "a1" {
		t.Errorf("lastAnswer() = %q, want a1", got)
	}
	if got := lastAnswer(nil); got != "" {
		t.Errorf("lastAnswer(nil) = %q", got)
	}
}
