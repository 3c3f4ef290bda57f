package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// debugLogRetention is how long old JSONL logs are kept.
const debugLogRetention = 7 * 24 * time.Hour

// DebugLogger writes requests, responses and tool dispatches to a JSONL
// file, one file per session. A nil *DebugLogger is a valid no-op.
type DebugLogger struct {
	sessionID string
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	closeOnce sync.Once
	closed    bool
	turn      int
}

type debugLogEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
}

type debugSessionStartEntry struct {
	debugLogEntry
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type debugMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type debugRequestEntry struct {
	debugLogEntry
	Turn            int            `json:"turn"`
	Provider        string         `json:"provider"`
	Model           string         `json:"model"`
	Messages        []debugMessage `json:"messages"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Temperature     float64        `json:"temperature,omitempty"`
}

type debugResponseEntry struct {
	debugLogEntry
	Turn int    `json:"turn"`
	Text string `json:"text"`
}

type debugToolEntry struct {
	debugLogEntry
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Result    any             `json:"result"`
}

// NewDebugLogger opens <baseDir>/<sessionID>.jsonl for appending.
// Logs older than a week are removed.
func NewDebugLogger(baseDir, sessionID string) (*DebugLogger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	_ = CleanupOldLogs(baseDir, debugLogRetention)

	filename := filepath.Join(baseDir, sessionID+".jsonl")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &DebugLogger{
		sessionID: sessionID,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

func (l *DebugLogger) header(kind string) debugLogEntry {
	return debugLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Type:      kind,
	}
}

// LogSessionStart records the CLI invocation.
func (l *DebugLogger) LogSessionStart(command string, args []string) {
	if l == nil {
		return
	}
	l.writeEntry(debugSessionStartEntry{debugLogEntry: l.header("session_start"), Command: command, Args: args})
	l.Flush()
}

// LogRequest records an upstream request and starts a new turn.
func (l *DebugLogger) LogRequest(provider, model string, req Request) {
	if l == nil {
		return
	}
	messages := make([]debugMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = debugMessage{Role: string(m.Role), Content: m.Content}
	}
	l.mu.Lock()
	l.turn++
	turn := l.turn
	l.mu.Unlock()

	l.writeEntry(debugRequestEntry{
		debugLogEntry:   l.header("request"),
		Turn:            turn,
		Provider:        provider,
		Model:           model,
		Messages:        messages,
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
	})
	l.Flush()
}

// LogResponse records the complete text of the current turn.
func (l *DebugLogger) LogResponse(text string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	turn := l.turn
	l.mu.Unlock()
	l.writeEntry(debugResponseEntry{debugLogEntry: l.header("response"), Turn: turn, Text: text})
	l.Flush()
}

// LogToolDispatch records a tool call and its result.
func (l *DebugLogger) LogToolDispatch(tool string, args json.RawMessage, result any) {
	if l == nil {
		return
	}
	l.writeEntry(debugToolEntry{debugLogEntry: l.header("tool"), Tool: tool, Arguments: args, Result: result})
	l.Flush()
}

// Close flushes and closes the file. Safe to call more than once.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

// writeEntry writes a single log entry as a JSON line without flushing.
func (l *DebugLogger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.WriteString("\n")
}

// Flush flushes the buffered writer to disk.
func (l *DebugLogger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.writer.Flush()
	}
}

// CleanupOldLogs removes .jsonl files in baseDir older than maxAge.
func CleanupOldLogs(baseDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(baseDir, entry.Name()))
		}
	}
	return nil
}
