package session

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// SessionStatus represents the current state of a session.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"
	StatusComplete    SessionStatus = "complete"
	StatusError       SessionStatus = "error"
	StatusInterrupted SessionStatus = "interrupted"
)

// SessionMode records which command started the session.
type SessionMode string

const (
	ModeChat SessionMode = "chat"
	ModeAsk  SessionMode = "ask"
)

// Session is one conversation about one transcript file.
type Session struct {
	ID        string        `json:"id"`
	Number    int64         `json:"number,omitempty"` // sequential, 1-based
	Summary   string        `json:"summary,omitempty"`
	Source    string        `json:"source"` // transcript file the snapshot was built from
	Model     string        `json:"model"`
	Mode      SessionMode   `json:"mode,omitempty"`
	Status    SessionStatus `json:"status,omitempty"`
	UserTurns int           `json:"user_turns,omitempty"`
	ToolCalls int           `json:"tool_calls,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Entry is one persisted transcript entry.
type Entry struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Role      string          `json:"role"`            // user, assistant or tool
	Phase     string          `json:"phase,omitempty"` // call or result, tool entries only
	Tool      string          `json:"tool,omitempty"`
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Directive bool            `json:"directive,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Sequence  int             `json:"sequence"`
}

// SessionSummary is a lightweight view of a session for listing.
type SessionSummary struct {
	ID         string        `json:"id"`
	Number     int64         `json:"number,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Source     string        `json:"source"`
	Model      string        `json:"model"`
	Mode       SessionMode   `json:"mode,omitempty"`
	Status     SessionStatus `json:"status,omitempty"`
	EntryCount int           `json:"entry_count"`
	UserTurns  int           `json:"user_turns,omitempty"`
	ToolCalls  int           `json:"tool_calls,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Mode   SessionMode
	Status SessionStatus
	Limit  int // 0 uses the default
	Offset int
}

// SearchResult is a full-text match inside a session's entries.
type SearchResult struct {
	SessionID     string    `json:"session_id"`
	SessionNumber int64     `json:"session_number"`
	EntryID       int64     `json:"entry_id"`
	Summary       string    `json:"summary"`
	Snippet       string    `json:"snippet"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

// TruncateSummary returns the first line of content, truncated to 100 runes.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if utf8.RuneCountInString(content) > 100 {
		content = string([]rune(content)[:97]) + "..."
	}
	return content
}
