package eddy

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed indicates that the stream has been closed.
var ErrStreamClosed = errors.New("stream closed")

// Confirm the Stream interface is implemented
var _ Stream = &textStream{}

// NewStream returns a connected stream and publisher pair. A producer sends
// response chunks through the publisher while a consumer iterates the stream.
func NewStream() (Stream, *StreamPublisher) {
	s := &textStream{
		chunks: make(chan string, 16),
		done:   make(chan struct{}),
	}
	return s, &StreamPublisher{stream: s}
}

type textStream struct {
	chunks    chan string
	done      chan struct{} // Signal channel for consumer shutdown
	curr      string
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *textStream) Next(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		s.setErr(ctx.Err())
		return false
	case chunk, ok := <-s.chunks:
		if !ok {
			return false
		}
		s.curr = chunk
		return true
	}
}

func (s *textStream) Chunk() string {
	return s.curr
}

func (s *textStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *textStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close is used by the consumer to indicate that it no longer wants chunks,
// even if the response is not complete. The publisher stops sending once it
// observes the closed stream.
func (s *textStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// StreamPublisher is the producer side of a stream created by NewStream.
type StreamPublisher struct {
	stream *textStream
	mu     sync.Mutex
	closed bool
}

// Send delivers one chunk to the consumer. It returns ErrStreamClosed if the
// consumer closed the stream, or the context error if ctx was canceled.
func (p *StreamPublisher) Send(ctx context.Context, chunk string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStreamClosed
	}

	select {
	case <-p.stream.done:
		p.close()
		return ErrStreamClosed

	case <-ctx.Done():
		return ctx.Err()

	case p.stream.chunks <- chunk:
		return nil
	}
}

// Close ends the response normally. No more calls to Send should be made,
// however doing so will not cause a panic.
func (p *StreamPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.close()
}

// CloseWithError ends the response and surfaces err to the consumer through
// the stream's Err method.
func (p *StreamPublisher) CloseWithError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stream.setErr(err)
	p.close()
}

func (p *StreamPublisher) close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.stream.chunks)
}
