// Package anthropic implements an eddy.Agent backed by the Anthropic
// Messages API. Responses are streamed over server-sent events.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/providers"
	"github.com/deepnoodle-ai/eddy/retry"
)

var (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultEndpoint  = "https://api.anthropic.com/v1/messages"
	DefaultVersion   = "2023-06-01"
	DefaultMaxTokens = 4096
)

var _ eddy.Agent = &Agent{}

// Agent talks to the Anthropic Messages API.
type Agent struct {
	apiKey     string
	client     *http.Client
	endpoint   string
	model      string
	version    string
	maxTokens  int
	system     string
	maxRetries int
}

// New creates an Anthropic agent. The API key defaults to the
// ANTHROPIC_API_KEY environment variable.
func New(opts ...Option) *Agent {
	a := &Agent{
		apiKey:     os.Getenv("ANTHROPIC_API_KEY"),
		client:     http.DefaultClient,
		endpoint:   DefaultEndpoint,
		version:    DefaultVersion,
		model:      DefaultModel,
		maxTokens:  DefaultMaxTokens,
		maxRetries: 6,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string {
	return "anthropic"
}

func (a *Agent) NewSession(ctx context.Context) (eddy.Session, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}
	return &session{agent: a}, nil
}

// Message is one turn of an API conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the Messages API request body.
type Request struct {
	Model     string     `json:"model"`
	Messages  []*Message `json:"messages"`
	MaxTokens int        `json:"max_tokens"`
	System    string     `json:"system,omitempty"`
	Stream    bool       `json:"stream"`
}

type session struct {
	agent    *Agent
	mutex    sync.Mutex
	messages []*Message
}

// Stream sends the prompt with the session's accumulated history and
// returns the streamed response. The assistant turn is appended to the
// history once the stream completes.
func (s *session) Stream(ctx context.Context, prompt string) (eddy.Stream, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	messages := append(append([]*Message{}, s.messages...), &Message{
		Role:    "user",
		Content: prompt,
	})
	body, err := json.Marshal(Request{
		Model:     s.agent.model,
		Messages:  messages,
		MaxTokens: s.agent.maxTokens,
		System:    s.agent.system,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	var resp *http.Response
	err = retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", s.agent.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("x-api-key", s.agent.apiKey)
		req.Header.Set("anthropic-version", s.agent.version)
		req.Header.Set("content-type", "application/json")
		req.Header.Set("accept", "text/event-stream")

		resp, err = s.agent.client.Do(req)
		if err != nil {
			return retry.NewRecoverableError(fmt.Errorf("error making request: %w", err))
		}
		if resp.StatusCode != http.StatusOK {
			errBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return providers.NewError(resp.StatusCode, string(errBody))
		}
		return nil
	}, retry.WithMaxRetries(s.agent.maxRetries))
	if err != nil {
		return nil, err
	}

	return &stream{
		reader:  bufio.NewReader(resp.Body),
		body:    resp.Body,
		session: s,
		prompt:  prompt,
	}, nil
}

func (s *session) Close() error {
	return nil
}

// record appends the completed exchange to the session history.
func (s *session) record(prompt, response string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.messages = append(s.messages,
		&Message{Role: "user", Content: prompt},
		&Message{Role: "assistant", Content: response},
	)
}

// streamEvent is the subset of the SSE payload the agent reads.
//
// event: content_block_delta
// data: {"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "Hello"}}
//
// event: message_stop
// data: {"type": "message_stop"}
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type stream struct {
	reader   *bufio.Reader
	body     io.ReadCloser
	session  *session
	prompt   string
	response strings.Builder
	current  string
	err      error
	done     bool
}

func (s *stream) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			s.done = true
			return false
		}
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			// EOF without message_stop still finishes the response.
			if err != io.EOF {
				s.err = err
			}
			s.finish()
			return false
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 || bytes.HasPrefix(line, []byte("event:")) {
			continue
		}
		line = bytes.TrimPrefix(line, []byte("data: "))

		var event streamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			s.err = fmt.Errorf("error unmarshaling stream event: %w", err)
			s.finish()
			return false
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				s.current = event.Delta.Text
				s.response.WriteString(event.Delta.Text)
				return true
			}
		case "message_stop":
			s.finish()
			return false
		case "error":
			s.err = fmt.Errorf("anthropic stream error: %s: %s",
				event.Error.Type, event.Error.Message)
			s.finish()
			return false
		}
	}
}

func (s *stream) finish() {
	if s.done {
		return
	}
	s.done = true
	s.body.Close()
	if s.err == nil {
		s.session.record(s.prompt, s.response.String())
	}
}

func (s *stream) Chunk() string {
	return s.current
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	if !s.done {
		s.done = true
		return s.body.Close()
	}
	return nil
}
