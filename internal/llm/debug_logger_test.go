package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDebugLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := NewDebugLogger(dir, "sess-1")
	if err != nil {
		t.Fatalf("NewDebugLogger() error = %v", err)
	}
	l.LogSessionStart("ask", []string{"grades.xlsx", "学分"})
	l.LogRequest("siliconflow", "Qwen/Qwen2.5-72B-Instruct", Request{
		Messages:        []Message{SystemText("sys"), UserText("hi")},
		MaxOutputTokens: 1200,
		Temperature:     0.6,
	})
	l.LogToolDispatch("get_total_credits", json.RawMessage(`{}`), map[string]any{"totalCredits": 128.5})
	l.LogResponse("done")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	// Writes after close are dropped.
	l.LogResponse("ignored")

	f, err := os.Open(filepath.Join(dir, "sess-1.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var types []string
	var turns []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Turn      int    `json:"turn"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid line %q: %v", scanner.Text(), err)
		}
		if entry.SessionID != "sess-1" {
			t.Errorf("session_id = %q", entry.SessionID)
		}
		types = append(types, entry.Type)
		turns = append(turns, entry.Turn)
	}
	want := []string{"session_start", "request", "tool", "response"}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, types[i], want[i])
		}
	}
	if turns[1] != 1 || turns[3] != 1 {
		t.Errorf("turns = %v", turns)
	}
}

func TestDebugLogger_NilIsNoop(t *testing.T) {
	var l *DebugLogger
	l.LogSessionStart("chat", nil)
	l.LogRequest("p", "m", Request{})
	l.LogResponse("x")
	l.LogToolDispatch("t", nil, nil)
	l.Flush()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() on nil logger = %v", err)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	other := filepath.Join(dir, "old.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("{}\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-8 * 24 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(other, past, past)

	if err := CleanupOldLogs(dir, debugLogRetention); err != nil {
		t.Fatalf("CleanupOldLogs() error = %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old.jsonl to be removed")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to remain: %v", filepath.Base(p), err)
		}
	}
	if err := CleanupOldLogs(filepath.Join(dir, "missing"), time.Hour); err != nil {
		t.Errorf("missing dir should be ignored, got %v", err)
	}
}
