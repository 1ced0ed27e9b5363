// Package google implements an eddy.Agent backed by Gemini models through
// the google genai SDK. The SDK serves both the Gemini API and Vertex AI
// backends; conversation history is carried by the SDK's chat objects.
package google

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/deepnoodle-ai/eddy"
	"google.golang.org/genai"
)

var DefaultModel = "gemini-2.0-flash"

var _ eddy.Agent = &Agent{}

// Agent talks to Gemini models.
type Agent struct {
	apiKey    string
	projectID string
	location  string
	model     string
	config    *genai.GenerateContentConfig

	mutex  sync.Mutex
	client *genai.Client
}

// New creates a Google agent. The API key defaults to the GEMINI_API_KEY
// environment variable; project and location select the Vertex AI backend
// instead.
func New(opts ...Option) *Agent {
	a := &Agent{
		apiKey: os.Getenv("GEMINI_API_KEY"),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string {
	return "google"
}

// initClient creates the genai client on first use.
func (a *Agent) initClient(ctx context.Context) (*genai.Client, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:   a.apiKey,
		Project:  a.projectID,
		Location: a.location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google genai client: %w", err)
	}
	a.client = client
	return a.client, nil
}

// NewSession starts a chat. The chat object tracks history, so each
// streamed prompt automatically carries the earlier turns.
func (a *Agent) NewSession(ctx context.Context) (eddy.Session, error) {
	client, err := a.initClient(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := client.Chats.Create(ctx, a.model, a.config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &session{chat: chat}, nil
}

type session struct {
	chat *genai.Chat
}

func (s *session) Stream(ctx context.Context, prompt string) (eddy.Stream, error) {
	stream, publisher := eddy.NewStream()
	go func() {
		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: prompt}) {
			if err != nil {
				publisher.CloseWithError(err)
				return
			}
			if text := resp.Text(); text != "" {
				if err := publisher.Send(ctx, text); err != nil {
					return
				}
			}
		}
		publisher.Close()
	}()
	return stream, nil
}

func (s *session) Close() error {
	return nil
}
