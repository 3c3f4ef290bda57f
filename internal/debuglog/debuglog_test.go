package debuglog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/grade-llm/internal/llm"
	"github.com/samsaffron/grade-llm/internal/ui"
)

// writeSession produces a log through the real writer so the parser is
// checked against the format it has to read.
func writeSession(t *testing.T, dir, id string) {
	t.Helper()
	dl, err := llm.NewDebugLogger(dir, id)
	if err != nil {
		t.Fatal(err)
	}
	dl.LogSessionStart("grade-llm ask", []string{"grades.xlsx", "学分"})
	dl.LogRequest("siliconflow", "Qwen/Qwen2.5-7B-Instruct", llm.Request{
		Messages:        []llm.Message{llm.SystemText("你是成绩助手"), llm.UserText("我修了多少学分？")},
		MaxOutputTokens: 1200,
		Temperature:     0.6,
	})
	dl.LogResponse(`{"tool":"get_total_credits","arguments":{}}`)
	dl.LogToolDispatch("get_total_credits", json.RawMessage(`{}`), map[string]any{"totalCredits": 8})
	dl.LogToolDispatch("search_courses", json.RawMessage(`{"limit":"x"}`), map[string]any{"error": "bad limit"})
	if err := dl.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestParseSession(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "01AAA")

	s, err := ParseSession(filepath.Join(dir, "01AAA.jsonl"))
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	if s.ID != "01AAA" || s.Model != "Qwen/Qwen2.5-7B-Instruct" || s.Command != "grade-llm ask" {
		t.Errorf("session = %+v", s)
	}
	if s.Turns != 1 || s.ToolCalls != 2 || !s.HasErrors {
		t.Errorf("turns/tools/errors = %d/%d/%v", s.Turns, s.ToolCalls, s.HasErrors)
	}
	if len(s.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(s.Entries))
	}
	req, ok := s.Entries[0].(RequestEntry)
	if !ok || len(req.Messages) != 2 || req.MaxTokens != 1200 {
		t.Errorf("first entry = %#v", s.Entries[0])
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	in := strings.Join([]string{
		`not json`,
		`{"timestamp":"bad","type":"request"}`,
		`{"timestamp":"2026-01-02T03:04:05Z","type":"response","turn":1,"text":"hi"}`,
	}, "\n")
	s, err := parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Entries) != 1 || s.Turns != 0 {
		t.Errorf("entries=%d turns=%d", len(s.Entries), s.Turns)
	}
}

func TestListAndResolveSessions(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "01AAA")
	writeSession(t, dir, "01BBB")
	// Make 01AAA the older one
	old := filepath.Join(dir, "01AAA.jsonl")
	data, _ := os.ReadFile(old)
	stamp := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano)
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(line), &m) == nil {
			m["timestamp"] = stamp
			b, _ := json.Marshal(m)
			line = string(b)
		}
		lines = append(lines, line)
	}
	if err := os.WriteFile(old, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	sessions, err := ListSessions(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].ID != "01BBB" {
		t.Fatalf("sessions = %+v", sessions)
	}

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"1", "01BBB", false},
		{"#2", "01AAA", false},
		{"01a", "01AAA", false},
		{"01", "", true}, // ambiguous
		{"3", "", true},
		{"zzz", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveSession(dir, tt.ref)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveSession(%q) = %v, want error", tt.ref, got.ID)
			}
			continue
		}
		if err != nil || got.ID != tt.want {
			t.Errorf("ResolveSession(%q) = %v, %v; want %s", tt.ref, got, err, tt.want)
		}
	}

	if got, err := ListSessions(filepath.Join(dir, "missing")); err != nil || got != nil {
		t.Errorf("missing dir = %v, %v", got, err)
	}
}

func TestFormatSession(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "01AAA")
	s, err := ParseSession(filepath.Join(dir, "01AAA.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	styles := ui.DefaultStyles()

	var buf bytes.Buffer
	FormatSession(&buf, s, styles, FormatOptions{})
	out := buf.String()
	for _, want := range []string{"01AAA", "REQUEST", "我修了多少学分？", "RESPONSE", "get_total_credits", "error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "totalCredits") {
		t.Error("tool results should only appear with Full")
	}

	buf.Reset()
	FormatSession(&buf, s, styles, FormatOptions{Full: true})
	if !strings.Contains(buf.String(), `"totalCredits": 8`) {
		t.Errorf("full output missing tool result:\n%s", buf.String())
	}
}

func TestFormatSessionListEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatSessionList(&buf, nil, ui.DefaultStyles())
	if !strings.Contains(buf.String(), "No debug sessions") {
		t.Errorf("got %q", buf.String())
	}
}
