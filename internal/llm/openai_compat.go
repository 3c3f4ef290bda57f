package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// httpClientTimeout bounds a whole request when the caller sets no deadline.
const httpClientTimeout = 10 * time.Minute

// readChunkSize is the body read size for streamed responses.
const readChunkSize = 4096

// defaultHTTPClient is a shared HTTP client with reasonable timeouts
var defaultHTTPClient = &http.Client{
	Timeout: httpClientTimeout,
}

// DefaultBaseURL is the SiliconFlow OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.siliconflow.cn/v1"

// OpenAICompatProvider implements Provider for OpenAI-compatible
// chat-completions APIs.
type OpenAICompatProvider struct {
	baseURL string
	apiKey  string
	model   string
	name    string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
	debug   *DebugLogger
}

// CompatOption configures an OpenAICompatProvider.
type CompatOption func(*OpenAICompatProvider)

// WithHeaders adds extra request headers.
func WithHeaders(headers map[string]string) CompatOption {
	return func(p *OpenAICompatProvider) { p.headers = headers }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) CompatOption {
	return func(p *OpenAICompatProvider) { p.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) CompatOption {
	return func(p *OpenAICompatProvider) { p.logger = l }
}

// WithDebugLogger records requests and final texts to a JSONL file.
func WithDebugLogger(d *DebugLogger) CompatOption {
	return func(p *OpenAICompatProvider) { p.debug = d }
}

func NewOpenAICompatProvider(baseURL, apiKey, model, name string, opts ...CompatOption) *OpenAICompatProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &OpenAICompatProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		name:    name,
		client:  defaultHTTPClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAICompatProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

// Model returns the configured default model.
func (p *OpenAICompatProvider) Model() string {
	return p.model
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Stream      bool         `json:"stream"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type oaiChatResponse struct {
	Choices []oaiChoice `json:"choices"`
}

type oaiChoice struct {
	Index   int         `json:"index"`
	Message *oaiMessage `json:"message,omitempty"`
	Delta   *oaiMessage `json:"delta,omitempty"`
}

func (p *OpenAICompatProvider) makeRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	url := p.baseURL + endpoint

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for key, value := range p.headers {
		if value == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}

	return p.client.Do(httpReq)
}

func (p *OpenAICompatProvider) buildRequest(req Request) oaiChatRequest {
	messages := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		content := m.Content
		messages = append(messages, oaiMessage{Role: string(m.Role), Content: &content})
	}
	temperature := req.Temperature
	chatReq := oaiChatRequest{
		Model:       chooseModel(req.Model, p.model),
		Messages:    messages,
		Stream:      true,
		Temperature: &temperature,
	}
	// max_tokens has no meaningful zero; temperature 0 is sent as is.
	if req.MaxOutputTokens > 0 {
		v := req.MaxOutputTokens
		chatReq.MaxTokens = &v
	}
	return chatReq
}

// Stream sends one chat-completions request. Event-stream responses are
// decoded incrementally; any other content type is read as a single JSON
// completion. Non-2xx responses fail with *TransportError and are never
// retried.
func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	chatReq := p.buildRequest(req)
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	p.debug.LogRequest(p.name, chatReq.Model, req)

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		p.logger.Debug("sending chat request", "provider", p.name, "model", chatReq.Model, "messages", len(chatReq.Messages))

		resp, err := p.makeRequest(ctx, http.MethodPost, "/chat/completions", body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransportError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, readErr := io.ReadAll(resp.Body)
			return &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data)), Err: readErr}
		}

		var text string
		if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
			text, err = p.readEventStream(ctx, resp.Body, events)
		} else {
			text, err = p.readCompletion(ctx, resp, events)
		}
		if err != nil {
			return err
		}

		text = strings.TrimSpace(text)
		p.debug.LogResponse(text)
		return sendEvent(ctx, events, Event{Type: EventDone, Text: text})
	}), nil
}

func (p *OpenAICompatProvider) readEventStream(ctx context.Context, body io.Reader, events chan<- Event) (string, error) {
	dec := newSSEDecoder(p.logger)
	var acc strings.Builder
	emit := func(deltas []string) error {
		for _, delta := range deltas {
			acc.WriteString(delta)
			if err := sendEvent(ctx, events, Event{Type: EventTextDelta, Text: delta, Accumulated: acc.String()}); err != nil {
				return err
			}
		}
		return nil
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if emitErr := emit(dec.Write(buf[:n])); emitErr != nil {
				return "", emitErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &TransportError{StatusCode: http.StatusOK, Err: fmt.Errorf("read stream: %w", err)}
		}
	}
	if err := emit(dec.Flush()); err != nil {
		return "", err
	}
	return acc.String(), nil
}

func (p *OpenAICompatProvider) readCompletion(ctx context.Context, resp *http.Response, events chan<- Event) (string, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	var completion oaiChatResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Body: string(data), Err: fmt.Errorf("decode completion: %w", err)}
	}
	var content string
	if len(completion.Choices) > 0 && completion.Choices[0].Message != nil && completion.Choices[0].Message.Content != nil {
		content = strings.TrimSpace(*completion.Choices[0].Message.Content)
	}
	if content != "" {
		if err := sendEvent(ctx, events, Event{Type: EventTextDelta, Text: content, Accumulated: content}); err != nil {
			return "", err
		}
	}
	return content, nil
}

func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
