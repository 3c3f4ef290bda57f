package ui

import (
	"strings"
	"testing"
	"time"
)

func TestSessionStatsSplitsTime(t *testing.T) {
	stats := NewSessionStats()
	stats.lastEventTime = stats.StartTime.Add(-2 * time.Second)
	stats.StartTime = stats.lastEventTime

	stats.ToolStart()
	stats.ToolEnd()
	stats.AddTurn()
	stats.Finalize()

	if stats.ToolCallCount != 1 {
		t.Errorf("ToolCallCount = %d, want 1", stats.ToolCallCount)
	}
	if stats.LLMTime < 2*time.Second {
		t.Errorf("LLMTime = %v, want at least 2s", stats.LLMTime)
	}
	out := stats.Render()
	if !strings.Contains(out, "1 turns") || !strings.Contains(out, "1 tools") || !strings.Contains(out, "llm ") {
		t.Errorf("Render() = %q", out)
	}
}

func TestSessionStatsWithoutTools(t *testing.T) {
	stats := NewSessionStats()
	stats.Finalize()
	out := stats.Render()
	if strings.Contains(out, "llm ") || strings.Contains(out, "turns") {
		t.Errorf("Render() = %q", out)
	}
}
