package eddy

import (
	"context"
	"strings"
)

// Agent is a source of conversational sessions with an AI model.
type Agent interface {

	// Name identifies the agent in logs and execution history.
	Name() string

	// NewSession starts a conversation. Prompts sent through the returned
	// session share conversational context with earlier prompts in the same
	// session.
	NewSession(ctx context.Context) (Session, error)
}

// Session is a stateful conversation with an agent.
type Session interface {

	// Stream sends a prompt and returns a stream of response text chunks.
	Stream(ctx context.Context, prompt string) (Stream, error)

	// Close releases the session.
	Close() error
}

// Stream is an iterator over the text chunks of a single response.
type Stream interface {

	// Next advances to the next chunk. It returns false when the response is
	// complete, the stream failed, or the context was canceled.
	Next(ctx context.Context) bool

	// Chunk returns the current text chunk.
	Chunk() string

	// Err returns the error that ended the stream, if any.
	Err() error

	// Close signals that the consumer wants no further chunks.
	Close() error
}

// ReadAll drains a stream and returns the accumulated response text. The
// stream is closed before returning.
func ReadAll(ctx context.Context, stream Stream) (string, error) {
	defer stream.Close()
	var b strings.Builder
	for stream.Next(ctx) {
		b.WriteString(stream.Chunk())
	}
	if err := stream.Err(); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}
