package debuglog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// rawEntry is the union of every record llm.DebugLogger writes.
type rawEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`

	// session_start
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// request / response
	Turn            int       `json:"turn,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	Model           string    `json:"model,omitempty"`
	Messages        []Message `json:"messages,omitempty"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
	Temperature     float64   `json:"temperature,omitempty"`
	Text            string    `json:"text,omitempty"`

	// tool
	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// ListSessions returns summaries of all sessions in the debug log directory,
// sorted by start time (most recent first).
func ListSessions(dir string) ([]SessionSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []SessionSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		s, err := ParseSession(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		sessions = append(sessions, SessionSummary{
			ID:        s.ID,
			FilePath:  s.FilePath,
			FileSize:  size,
			StartTime: s.StartTime,
			Model:     s.Model,
			Command:   s.Command,
			Turns:     s.Turns,
			ToolCalls: s.ToolCalls,
			HasErrors: s.HasErrors,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// ParseSession parses a full session file. Malformed lines are skipped.
func ParseSession(filePath string) (*Session, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	s, err := parse(file)
	if err != nil {
		return nil, err
	}
	s.ID = strings.TrimSuffix(filepath.Base(filePath), ".jsonl")
	s.FilePath = filePath
	return s, nil
}

func parse(r io.Reader) (*Session, error) {
	s := &Session{}
	scanner := bufio.NewScanner(r)
	// Requests carry the whole conversation
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		var entry rawEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			continue
		}
		if s.StartTime.IsZero() || ts.Before(s.StartTime) {
			s.StartTime = ts
		}
		if ts.After(s.EndTime) {
			s.EndTime = ts
		}

		switch entry.Type {
		case TypeSessionStart:
			s.Command = entry.Command
			s.Args = entry.Args
		case TypeRequest:
			if s.Model == "" {
				s.Provider = entry.Provider
				s.Model = entry.Model
			}
			s.Turns++
			s.Entries = append(s.Entries, RequestEntry{
				Timestamp:   ts,
				Turn:        entry.Turn,
				Provider:    entry.Provider,
				Model:       entry.Model,
				Messages:    entry.Messages,
				MaxTokens:   entry.MaxOutputTokens,
				Temperature: entry.Temperature,
			})
		case TypeResponse:
			s.Entries = append(s.Entries, ResponseEntry{Timestamp: ts, Turn: entry.Turn, Text: entry.Text})
		case TypeTool:
			t := ToolEntry{Timestamp: ts, Tool: entry.Tool, Arguments: entry.Arguments, Result: entry.Result}
			s.ToolCalls++
			if t.IsError() {
				s.HasErrors = true
			}
			s.Entries = append(s.Entries, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// ResolveSession finds a session by list number (1 = most recent) or by
// ID prefix.
func ResolveSession(dir, identifier string) (*SessionSummary, error) {
	sessions, err := ListSessions(dir)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no debug sessions in %s", dir)
	}

	if n, err := strconv.Atoi(strings.TrimPrefix(identifier, "#")); err == nil && n > 0 {
		if n > len(sessions) {
			return nil, fmt.Errorf("session %d not found (only %d sessions)", n, len(sessions))
		}
		return &sessions[n-1], nil
	}

	var match *SessionSummary
	for i := range sessions {
		if strings.HasPrefix(strings.ToUpper(sessions[i].ID), strings.ToUpper(identifier)) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous session reference: %s", identifier)
			}
			match = &sessions[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("session not found: %s", identifier)
	}
	return match, nil
}
