package debuglog

import (
	"encoding/json"
	"time"
)

// Record types written by llm.DebugLogger.
const (
	TypeSessionStart = "session_start"
	TypeRequest      = "request"
	TypeResponse     = "response"
	TypeTool         = "tool"
)

// Message is one chat message as sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestEntry is one upstream chat request.
type RequestEntry struct {
	Timestamp   time.Time
	Turn        int
	Provider    string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// ResponseEntry is the full text the model streamed for one turn.
type ResponseEntry struct {
	Timestamp time.Time
	Turn      int
	Text      string
}

// ToolEntry is one local tool dispatch.
type ToolEntry struct {
	Timestamp time.Time
	Tool      string
	Arguments json.RawMessage
	Result    json.RawMessage
}

// IsError reports whether the tool returned an error object.
func (t ToolEntry) IsError() bool {
	var probe struct {
		Error string `json:"error"`
	}
	return json.Unmarshal(t.Result, &probe) == nil && probe.Error != ""
}

// Session is a fully parsed debug log file.
type Session struct {
	ID        string
	FilePath  string
	StartTime time.Time
	EndTime   time.Time
	Provider  string
	Model     string
	Command   string
	Args      []string
	Turns     int
	ToolCalls int
	HasErrors bool
	Entries   []any // RequestEntry, ResponseEntry or ToolEntry
}

// SessionSummary is the listing view of a debug log file.
type SessionSummary struct {
	ID        string
	FilePath  string
	FileSize  int64
	StartTime time.Time
	Model     string
	Command   string
	Turns     int
	ToolCalls int
	HasErrors bool
}
