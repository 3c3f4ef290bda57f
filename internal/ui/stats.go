package ui

import (
	"fmt"
	"time"
)

// SessionStats tracks time spent waiting on the model versus running
// tools.
type SessionStats struct {
	StartTime     time.Time
	ToolCallCount int
	TurnCount     int // questions asked (chat)

	LLMTime       time.Duration
	ToolTime      time.Duration
	lastEventTime time.Time
	inTool        bool
}

// NewSessionStats creates a new SessionStats with StartTime set to now.
func NewSessionStats() *SessionStats {
	now := time.Now()
	return &SessionStats{
		StartTime:     now,
		lastEventTime: now,
	}
}

// ToolStart marks the start of a tool execution.
func (s *SessionStats) ToolStart() {
	now := time.Now()
	if !s.inTool {
		s.LLMTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = true
	s.ToolCallCount++
}

// ToolEnd marks the end of tool execution (back to the model).
func (s *SessionStats) ToolEnd() {
	now := time.Now()
	if s.inTool {
		s.ToolTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = false
}

// Finalize records any remaining time.
func (s *SessionStats) Finalize() {
	now := time.Now()
	if s.inTool {
		s.ToolTime += now.Sub(s.lastEventTime)
	} else {
		s.LLMTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = false
}

// AddTurn increments the turn count.
func (s *SessionStats) AddTurn() {
	s.TurnCount++
}

// Render returns the stats as a compact single-line string.
func (s SessionStats) Render() string {
	total := s.lastEventTime.Sub(s.StartTime)

	var timeStr string
	if s.ToolCallCount > 0 {
		timeStr = fmt.Sprintf("%.1fs (llm %.1fs + tool %.1fs)",
			total.Seconds(), s.LLMTime.Seconds(), s.ToolTime.Seconds())
	} else {
		timeStr = fmt.Sprintf("%.1fs", total.Seconds())
	}

	if s.TurnCount > 0 {
		return fmt.Sprintf("Stats: %s | %d turns | %d tools", timeStr, s.TurnCount, s.ToolCallCount)
	}
	return fmt.Sprintf("Stats: %s | %d tools", timeStr, s.ToolCallCount)
}
