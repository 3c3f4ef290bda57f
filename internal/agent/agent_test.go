package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/samsaffron/grade-llm/internal/grade"
	"github.com/samsaffron/grade-llm/internal/llm"
	"github.com/samsaffron/grade-llm/internal/prompt"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func score(v float64) *float64 { return &v }

func testRegistry() *tools.Registry {
	courses := []grade.Course{
		{Key: "k1", Year: "2022-2023", Term: "1", Name: "高等数学A", Credit: 5, TotalScore: score(92)},
		{Key: "k2", Year: "2022-2023", Term: "2", Name: "大学英语", Credit: 3, TotalScore: score(58)},
		{Key: "k3", Year: "2023-2024", Term: "1", Name: "线性代数", Credit: 4, TotalScore: score(85)},
		{Key: "k4", Year: "2023-2024", Term: "2", Name: "专业课程", Credit: 116.5, TotalScore: score(80)},
	}
	return tools.NewGradeRegistry(grade.BuildSnapshot(courses, grade.NewRuleSet(), grade.Options{}))
}

func newTestAgent(p llm.Provider, opts ...Option) *Agent {
	return New(p, testRegistry(), Config{Model: "test-model", MaxTokens: 1200, Temperature: 0.6}, opts...)
}

func TestAsk_ToolThenAnswer(t *testing.T) {
	p := llm.NewMockProvider("mock").
		AddTextResponse(`{"tool": "get_total_credits", "arguments": {}}`).
		AddTextResponse("你目前已修 ", "128.5 学分。")

	var progress []Progress
	a := newTestAgent(p, WithObserver(func(pr Progress) { progress = append(progress, pr) }))

	answer, err := a.Ask(context.Background(), "我修了多少学分？")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !strings.Contains(answer, "128.5") {
		t.Errorf("answer %q does not mention 128.5", answer)
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Model != "test-model" || reqs[0].MaxOutputTokens != 1200 || reqs[0].Temperature != 0.6 {
		t.Errorf("unexpected request params: %+v", reqs[0])
	}
	second := reqs[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected 4 upstream messages, got %d", len(second))
	}
	if second[0].Role != llm.RoleSystem || !strings.Contains(second[0].Content, "工具: get_total_credits") {
		t.Errorf("first message should be the system prompt, got %+v", second[0])
	}
	if second[2].Role != llm.RoleAssistant || second[2].Content != `{"tool": "get_total_credits", "arguments": {}}` {
		t.Errorf("tool call should be replayed as assistant text, got %+v", second[2])
	}
	if second[3].Role != llm.RoleUser || !strings.HasPrefix(second[3].Content, "工具结果 get_total_credits:\n{\n  \"totalCredits\": 128.5") {
		t.Errorf("tool result message = %q", second[3].Content)
	}

	entries := a.Transcript()
	wantRoles := []Role{RoleUser, RoleTool, RoleTool, RoleAssistant}
	if len(entries) != len(wantRoles) {
		t.Fatalf("expected %d entries, got %d", len(wantRoles), len(entries))
	}
	for i, r := range wantRoles {
		if entries[i].Role != r {
			t.Errorf("entry %d role = %s, want %s", i, entries[i].Role, r)
		}
	}
	if entries[1].Phase != PhaseCall || entries[2].Phase != PhaseResult || entries[2].Tool != "get_total_credits" {
		t.Errorf("unexpected tool entries: %+v %+v", entries[1], entries[2])
	}

	for _, pr := range progress {
		if pr.Visible && strings.Contains(pr.Text, `"tool"`) {
			t.Errorf("tool-call text leaked to display: %q", pr.Text)
		}
	}
}

func TestAsk_PlainAnswer(t *testing.T) {
	p := llm.NewMockProvider("mock").AddTextResponse("  你好！  ")
	a := newTestAgent(p)

	answer, err := a.Ask(context.Background(), "你好")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != "你好！" {
		t.Errorf("answer = %q", answer)
	}
	if n := len(p.Requests()); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestAsk_EmptyAnswerFallback(t *testing.T) {
	p := llm.NewMockProvider("mock").AddTextResponse("   ")
	a := newTestAgent(p)

	answer, err := a.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != prompt.EmptyAnswerFallback {
		t.Errorf("answer = %q, want fallback", answer)
	}
}

func TestAsk_RepeatedCallForcesAnswer(t *testing.T) {
	call := `{"tool":"search_courses","arguments":{"keyword":"数学","limit":3}}`
	reordered := `{"tool":"search_courses","arguments":{"limit":3,"keyword":"数学"}}`
	p := llm.NewMockProvider("mock").
		AddTextResponse(call).
		AddTextResponse(reordered).
		AddTextResponse(call).
		AddTextResponse("final")
	a := newTestAgent(p)

	answer, err := a.Ask(context.Background(), "数学成绩")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	reqs := p.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	// The third response is returned as-is even though it looks like a call.
	if answer != call {
		t.Errorf("answer = %q", answer)
	}
	last := reqs[2].Messages
	if got := last[len(last)-1]; got.Role != llm.RoleUser || got.Content != prompt.RepeatDirective {
		t.Errorf("last upstream message = %+v, want repeat directive", got)
	}

	var dispatched int
	for _, e := range a.Transcript() {
		if e.Role == RoleTool && e.Phase == PhaseCall {
			dispatched++
		}
	}
	if dispatched != 1 {
		t.Errorf("expected 1 dispatch, got %d", dispatched)
	}
	for _, e := range Display(a.Transcript()) {
		if e.Directive {
			t.Error("directive must not be displayed")
		}
	}
}

func TestAsk_ToolCallCeiling(t *testing.T) {
	p := llm.NewMockProvider("mock")
	for i := 0; i < DefaultMaxToolCalls; i++ {
		p.AddTextResponse(`{"tool":"get_ranked_courses","arguments":{"order":"top","limit":` + string(rune('1'+i)) + `}}`)
	}
	p.AddTextResponse(`{"tool":"get_summary","arguments":{}}`)
	a := newTestAgent(p)

	answer, err := a.Ask(context.Background(), "排名")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	reqs := p.Requests()
	if len(reqs) != DefaultMaxToolCalls+1 {
		t.Fatalf("expected %d requests, got %d", DefaultMaxToolCalls+1, len(reqs))
	}
	if answer != `{"tool":"get_summary","arguments":{}}` {
		t.Errorf("forced answer should be returned verbatim, got %q", answer)
	}
	last := reqs[len(reqs)-1].Messages
	if got := last[len(last)-1]; got.Content != prompt.LimitDirective {
		t.Errorf("last upstream message = %q, want limit directive", got.Content)
	}

	var results int
	for _, e := range a.Transcript() {
		if e.Role == RoleTool && e.Phase == PhaseResult {
			results++
		}
	}
	if results != DefaultMaxToolCalls {
		t.Errorf("expected %d tool results, got %d", DefaultMaxToolCalls, results)
	}
}

func TestAsk_CustomCeiling(t *testing.T) {
	p := llm.NewMockProvider("mock").
		AddTextResponse(`{"tool":"get_summary"}`).
		AddTextResponse(`{"tool":"get_total_credits"}`).
		AddTextResponse("done")
	a := New(p, testRegistry(), Config{MaxToolCalls: 1})

	answer, err := a.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != `{"tool":"get_total_credits"}` {
		t.Errorf("answer = %q", answer)
	}
	if n := len(p.Requests()); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}
}

func TestAsk_UnknownToolIsFedBack(t *testing.T) {
	p := llm.NewMockProvider("mock").
		AddTextResponse(`{"tool":"drop_table","arguments":{}}`).
		AddTextResponse("抱歉")
	a := newTestAgent(p)

	if _, err := a.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	msgs := p.Requests()[1].Messages
	got := msgs[len(msgs)-1].Content
	want := "工具结果 drop_table:\n{\n  \"error\": \"unknown tool: drop_table\"\n}"
	if got != want {
		t.Errorf("tool result message = %q, want %q", got, want)
	}
}

func TestAsk_TransportErrorPropagates(t *testing.T) {
	transportErr := &llm.TransportError{StatusCode: 401, Body: "unauthorized"}
	p := llm.NewMockProvider("mock").AddErrorResponse(transportErr)
	a := newTestAgent(p)

	_, err := a.Ask(context.Background(), "q")
	var got *llm.TransportError
	if !errors.As(err, &got) || got.StatusCode != 401 {
		t.Fatalf("expected TransportError 401, got %v", err)
	}
	entries := a.Transcript()
	if len(entries) != 1 || entries[0].Role != RoleUser {
		t.Errorf("user entry should remain after failure, got %+v", entries)
	}
}

func TestAsk_CancelledContext(t *testing.T) {
	p := llm.NewMockProvider("mock").AddTextResponse("a", "b", "c")
	a := newTestAgent(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Ask(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type blockingProvider struct {
	started chan struct{}
}

func (b *blockingProvider) Name() string { return "blocking" }

func (b *blockingProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAsk_BusyAndTimeout(t *testing.T) {
	p := &blockingProvider{started: make(chan struct{})}
	a := New(p, testRegistry(), Config{Timeout: 200 * time.Millisecond})

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = a.Ask(context.Background(), "q")
	}()
	<-p.started

	if _, err := a.Ask(context.Background(), "again"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if err := a.Reset(""); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy from Reset, got %v", err)
	}

	wg.Wait()
	if !errors.Is(firstErr, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", firstErr)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	a := newTestAgent(llm.NewMockProvider("mock"))
	if _, err := a.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestReset(t *testing.T) {
	p := llm.NewMockProvider("mock").AddTextResponse("ok")
	a := newTestAgent(p)
	if _, err := a.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if err := a.Reset(""); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if n := len(a.Transcript()); n != 0 {
		t.Errorf("expected empty transcript, got %d entries", n)
	}
}

func TestAsk_PriorTurnsSendOnlyConversation(t *testing.T) {
	p := llm.NewMockProvider("mock").
		AddTextResponse(`{"tool":"get_summary","arguments":{}}`).
		AddTextResponse("第一次回答").
		AddTextResponse("第二次回答")
	a := newTestAgent(p)

	if _, err := a.Ask(context.Background(), "第一个问题"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Ask(context.Background(), "第二个问题"); err != nil {
		t.Fatal(err)
	}
	msgs := p.Requests()[2].Messages
	var contents []string
	for _, m := range msgs[1:] {
		contents = append(contents, string(m.Role)+":"+m.Content)
	}
	want := []string{"user:第一个问题", "assistant:第一次回答", "user:第二个问题"}
	if strings.Join(contents, "|") != strings.Join(want, "|") {
		t.Errorf("upstream = %v, want %v", contents, want)
	}
}

func TestAsk_RecordsSession(t *testing.T) {
	store, err := session.NewSQLiteStore(session.Config{Enabled: true, Path: t.TempDir() + "/s.db"})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	sess := &session.Session{Source: "grades.xlsx", Model: "m", Mode: session.ModeAsk}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	p := llm.NewMockProvider("mock").
		AddTextResponse(`{"tool":"get_total_credits","arguments":{}}`).
		AddTextResponse("128.5")
	a := newTestAgent(p, WithSession(store, sess.ID))
	if _, err := a.Ask(ctx, "学分"); err != nil {
		t.Fatal(err)
	}

	stored, err := store.GetEntries(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	restored := EntriesFromSession(stored)
	if len(restored) != 4 || restored[2].Phase != PhaseResult || restored[3].Content != "128.5" {
		t.Errorf("unexpected stored entries: %+v", restored)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserTurns != 1 || got.ToolCalls != 1 {
		t.Errorf("counters = %d/%d, want 1/1", got.UserTurns, got.ToolCalls)
	}

	resumed := newTestAgent(llm.NewMockProvider("mock").AddTextResponse("x"), WithHistory(restored))
	if n := len(resumed.Transcript()); n != 4 {
		t.Errorf("resumed transcript has %d entries, want 4", n)
	}
}

func TestReset_ResumeStartsAfterReset(t *testing.T) {
	ctx := context.Background()
	store, err := session.NewSQLiteStore(session.Config{Enabled: true, Path: filepath.Join(t.TempDir(), "sessions.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	before := &session.Session{ID: session.NewID(), Mode: session.ModeChat}
	after := &session.Session{ID: session.NewID(), Mode: session.ModeChat}
	for _, s := range []*session.Session{before, after} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	p := llm.NewMockProvider("mock").
		AddTextResponse("secret answer").
		AddTextResponse("fresh answer")
	a := newTestAgent(p, WithSession(store, before.ID))
	if _, err := a.Ask(ctx, "before reset"); err != nil {
		t.Fatal(err)
	}
	if err := a.Reset(after.ID); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := a.Ask(ctx, "after reset"); err != nil {
		t.Fatal(err)
	}

	stored, err := store.GetEntries(ctx, after.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	resumedProvider := llm.NewMockProvider("mock").AddTextResponse("ok")
	resumed := newTestAgent(resumedProvider, WithSession(store, after.ID), WithHistory(EntriesFromSession(stored)))
	if _, err := resumed.Ask(ctx, "after resume"); err != nil {
		t.Fatal(err)
	}

	msgs := resumedProvider.Requests()[0].Messages
	var got []string
	for _, m := range msgs[1:] {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	want := []string{"user:after reset", "assistant:fresh answer", "user:after resume"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("upstream after resume = %q, want %q", got, want)
	}
}
