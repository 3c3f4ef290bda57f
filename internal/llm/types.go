package llm

import (
	"context"
	"fmt"
)

// Provider streams model output events for a request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent upstream.
type Message struct {
	Role    Role
	Content string
}

// SystemText builds a system message.
func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserText builds a user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantText builds an assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Request represents a single model turn.
type Request struct {
	Model           string
	Messages        []Message
	MaxOutputTokens int
	Temperature     float64
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventDone      EventType = "done"
)

// Event represents a streamed output update.
//
// For EventTextDelta, Text is the increment and Accumulated the text so
// far. For EventDone, Text is the complete response, trimmed.
type Event struct {
	Type        EventType
	Text        string
	Accumulated string
}

// ModelInfo represents a model available from a provider.
type ModelInfo struct {
	ID      string
	Created int64
	OwnedBy string
}

// TransportError reports a non-success response or an unreadable body.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("transport error: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("transport error (status %d): %v", e.StatusCode, e.Err)
	case e.Body != "":
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("API error (status %d)", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
