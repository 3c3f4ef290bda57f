package llm

import (
	"context"
	"strings"
	"sync"
)

// MockResponse is one scripted reply of a MockProvider.
type MockResponse struct {
	// Chunks are delivered as individual text deltas.
	Chunks []string
	// Err, when set, is returned from Recv after the chunks.
	Err error
}

// MockProvider replays scripted responses in order and records every
// request it receives. Once the script is exhausted it keeps repeating
// the last response.
type MockProvider struct {
	name string

	mu        sync.Mutex
	responses []MockResponse
	next      int
	requests  []Request
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string {
	return m.name
}

// AddTextResponse queues a reply delivered as the given chunks.
func (m *MockProvider) AddTextResponse(chunks ...string) *MockProvider {
	return m.AddResponse(MockResponse{Chunks: chunks})
}

// AddErrorResponse queues a reply that fails with err.
func (m *MockProvider) AddErrorResponse(err error) *MockProvider {
	return m.AddResponse(MockResponse{Err: err})
}

// AddResponse queues a reply.
func (m *MockProvider) AddResponse(r MockResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return m
}

// Requests returns a copy of the requests received so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	for i, req := range m.requests {
		req.Messages = append([]Message(nil), req.Messages...)
		out[i] = req
	}
	return out
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	req.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	var resp MockResponse
	if len(m.responses) > 0 {
		idx := min(m.next, len(m.responses)-1)
		resp = m.responses[idx]
		m.next++
	}
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var acc strings.Builder
		for _, chunk := range resp.Chunks {
			acc.WriteString(chunk)
			if err := sendEvent(ctx, events, Event{Type: EventTextDelta, Text: chunk, Accumulated: acc.String()}); err != nil {
				return err
			}
		}
		if resp.Err != nil {
			return resp.Err
		}
		return sendEvent(ctx, events, Event{Type: EventDone, Text: strings.TrimSpace(acc.String())})
	}), nil
}
