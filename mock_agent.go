package eddy

import (
	"context"
	"strings"
	"sync"
)

var _ Agent = &MockAgent{}

// MockAgentOptions configures a MockAgent.
type MockAgentOptions struct {
	Name string

	// Default is the response used when no scripted or matched response
	// applies.
	Default string

	// Script queues responses that are returned in order, one per prompt,
	// ahead of any substring matches.
	Script []string

	// ChunkSize splits each response into chunks of at most this many bytes.
	// Zero sends the whole response as a single chunk.
	ChunkSize int

	// Err, when set, causes every Stream call to fail with this error.
	Err error
}

// MockAgent is a scriptable Agent for tests. Each prompt is answered by the
// next scripted response if any remain, then by the first registered
// substring match, then by the default response.
type MockAgent struct {
	name      string
	def       string
	chunkSize int
	err       error

	mu       sync.Mutex
	script   []string
	matchers []responseMatcher
	prompts  []string
}

type responseMatcher struct {
	substring string
	response  string
}

func NewMockAgent(opts MockAgentOptions) *MockAgent {
	name := opts.Name
	if name == "" {
		name = "mock"
	}
	return &MockAgent{
		name:      name,
		def:       opts.Default,
		chunkSize: opts.ChunkSize,
		err:       opts.Err,
		script:    append([]string{}, opts.Script...),
	}
}

func (a *MockAgent) Name() string {
	return a.name
}

func (a *MockAgent) NewSession(ctx context.Context) (Session, error) {
	return &mockSession{agent: a}, nil
}

// SetResponse registers a canned response for prompts containing substring.
// Matchers are tried in registration order.
func (a *MockAgent) SetResponse(substring, response string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matchers = append(a.matchers, responseMatcher{substring: substring, response: response})
}

// Calls returns the number of prompts received so far.
func (a *MockAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prompts)
}

// Prompts returns a copy of the prompts received, in order.
func (a *MockAgent) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.prompts...)
}

func (a *MockAgent) respond(prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, prompt)
	if a.err != nil {
		return "", a.err
	}
	if len(a.script) > 0 {
		response := a.script[0]
		a.script = a.script[1:]
		return response, nil
	}
	for _, m := range a.matchers {
		if strings.Contains(prompt, m.substring) {
			return m.response, nil
		}
	}
	return a.def, nil
}

type mockSession struct {
	agent *MockAgent
}

func (s *mockSession) Stream(ctx context.Context, prompt string) (Stream, error) {
	response, err := s.agent.respond(prompt)
	if err != nil {
		return nil, err
	}
	return &replayStream{chunks: splitChunks(response, s.agent.chunkSize)}, nil
}

func (s *mockSession) Close() error {
	return nil
}

// replayStream yields a fixed sequence of chunks.
type replayStream struct {
	chunks []string
	idx    int
	curr   string
	err    error
}

func (s *replayStream) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.idx >= len(s.chunks) {
		return false
	}
	s.curr = s.chunks[s.idx]
	s.idx++
	return true
}

func (s *replayStream) Chunk() string {
	return s.curr
}

func (s *replayStream) Err() error {
	return s.err
}

func (s *replayStream) Close() error {
	s.idx = len(s.chunks)
	return nil
}

func splitChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 || len(s) <= size {
		return []string{s}
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}
