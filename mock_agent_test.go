package eddy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockAgent_DefaultResponse(t *testing.T) {
	assert := require.New(t)
	agent := NewMockAgent(MockAgentOptions{Default: "fine, thanks"})
	assert.Equal("mock", agent.Name())

	session, err := agent.NewSession(context.Background())
	assert.NoError(err)
	defer session.Close()

	stream, err := session.Stream(context.Background(), "how are you?")
	assert.NoError(err)
	text, err := ReadAll(context.Background(), stream)
	assert.NoError(err)
	assert.Equal("fine, thanks", text)
	assert.Equal(1, agent.Calls())
	assert.Equal([]string{"how are you?"}, agent.Prompts())
}

func TestMockAgent_SubstringMatch(t *testing.T) {
	assert := require.New(t)
	agent := NewMockAgent(MockAgentOptions{Default: "unknown"})
	agent.SetResponse("weather", "sunny")
	agent.SetResponse("name", "eddy")

	session, err := agent.NewSession(context.Background())
	assert.NoError(err)

	stream, err := session.Stream(context.Background(), "what's the weather like?")
	assert.NoError(err)
	text, err := ReadAll(context.Background(), stream)
	assert.NoError(err)
	assert.Equal("sunny", text)

	stream, err = session.Stream(context.Background(), "what is your name?")
	assert.NoError(err)
	text, err = ReadAll(context.Background(), stream)
	assert.NoError(err)
	assert.Equal("eddy", text)

	stream, err = session.Stream(context.Background(), "anything else")
	assert.NoError(err)
	text, err = ReadAll(context.Background(), stream)
	assert.NoError(err)
	assert.Equal("unknown", text)
}

func TestMockAgent_ScriptedResponses(t *testing.T) {
	assert := require.New(t)
	agent := NewMockAgent(MockAgentOptions{
		Script:  []string{"first", "second"},
		Default: "exhausted",
	})
	agent.SetResponse("first", "never used, script wins")

	session, err := agent.NewSession(context.Background())
	assert.NoError(err)

	for _, want := range []string{"first", "second", "exhausted"} {
		stream, err := session.Stream(context.Background(), "give me the first thing")
		assert.NoError(err)
		text, err := ReadAll(context.Background(), stream)
		assert.NoError(err)
		assert.Equal(want, text)
	}
	assert.Equal(3, agent.Calls())
}

func TestMockAgent_Chunking(t *testing.T) {
	assert := require.New(t)
	agent := NewMockAgent(MockAgentOptions{Default: "abcdefgh", ChunkSize: 3})

	session, err := agent.NewSession(context.Background())
	assert.NoError(err)
	stream, err := session.Stream(context.Background(), "chunked")
	assert.NoError(err)

	var chunks []string
	for stream.Next(context.Background()) {
		chunks = append(chunks, stream.Chunk())
	}
	assert.NoError(stream.Err())
	assert.Equal([]string{"abc", "def", "gh"}, chunks)
}

func TestMockAgent_Error(t *testing.T) {
	assert := require.New(t)
	boom := errors.New("model unavailable")
	agent := NewMockAgent(MockAgentOptions{Err: boom})

	session, err := agent.NewSession(context.Background())
	assert.NoError(err)
	_, err = session.Stream(context.Background(), "hello")
	assert.ErrorIs(err, boom)
	assert.Equal(1, agent.Calls())
}
