// Package openai implements an eddy.Agent backed by the OpenAI Chat
// Completions API via the official Go SDK.
package openai

import (
	"context"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/eddy"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

var DefaultModel = "gpt-4o"

var _ eddy.Agent = &Agent{}

// Agent talks to the OpenAI API. The SDK reads OPENAI_API_KEY when no key
// option is supplied.
type Agent struct {
	client openaisdk.Client
	model  string
	system string
}

// New creates an OpenAI agent.
func New(opts ...Option) *Agent {
	a := &Agent{model: DefaultModel}
	var requestOpts []option.RequestOption
	for _, opt := range opts {
		requestOpts = opt(a, requestOpts)
	}
	a.client = openaisdk.NewClient(requestOpts...)
	return a
}

func (a *Agent) Name() string {
	return "openai"
}

func (a *Agent) NewSession(ctx context.Context) (eddy.Session, error) {
	s := &session{agent: a}
	if a.system != "" {
		s.messages = append(s.messages, openaisdk.SystemMessage(a.system))
	}
	return s, nil
}

type session struct {
	agent    *Agent
	mutex    sync.Mutex
	messages []openaisdk.ChatCompletionMessageParamUnion
}

func (s *session) Stream(ctx context.Context, prompt string) (eddy.Stream, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	messages := append(
		append([]openaisdk.ChatCompletionMessageParamUnion{}, s.messages...),
		openaisdk.UserMessage(prompt),
	)
	sdkStream := s.agent.client.Chat.Completions.NewStreaming(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(s.agent.model),
		Messages: messages,
	})
	return &stream{
		inner:   sdkStream,
		session: s,
		prompt:  prompt,
	}, nil
}

func (s *session) Close() error {
	return nil
}

func (s *session) record(prompt, response string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.messages = append(s.messages,
		openaisdk.UserMessage(prompt),
		openaisdk.AssistantMessage(response),
	)
}

type stream struct {
	inner    *ssestream.Stream[openaisdk.ChatCompletionChunk]
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
		if !s.inner.Next() {
			s.err = s.inner.Err()
			s.finish()
			return false
		}
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.current = delta
			s.response.WriteString(delta)
			return true
		}
	}
}

func (s *stream) finish() {
	if s.done {
		return
	}
	s.done = true
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
		return s.inner.Close()
	}
	return nil
}
