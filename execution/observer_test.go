package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/eddy/workflow"
)

func fireAll(o *Observer, state *State) error {
	block := &workflow.Block{ID: "b", Type: workflow.BlockTypeVariable}
	result := successResult(nil, "ok", time.Millisecond)
	o.fireExecutionStart("cmd", state)
	o.fireBlockStart(block, state)
	o.fireBlockComplete(block, result, state)
	err := o.fireBlockCompleteAsync(context.Background(), block, result, state)
	o.firePromptStream("prompt", "chunk")
	o.fireExecutionComplete(state)
	return err
}

func TestNilObserverIsSafe(t *testing.T) {
	state := NewState(StateOptions{})
	var o *Observer
	require.NoError(t, fireAll(o, state))
	require.NoError(t, fireAll(&Observer{}, state))
}

func TestCombineObserversPreservesOrder(t *testing.T) {
	var calls []string
	tag := func(name string) *Observer {
		return &Observer{
			ExecutionStart: func(commandName string, state *State) {
				calls = append(calls, name+":start")
			},
			BlockComplete: func(block *workflow.Block, result *BlockResult, state *State) {
				calls = append(calls, name+":block")
			},
			PromptStream: func(prompt, chunk string) {
				calls = append(calls, name+":stream")
			},
			ExecutionComplete: func(state *State) {
				calls = append(calls, name+":complete")
			},
		}
	}

	combined := CombineObservers(tag("a"), nil, tag("b"))
	require.NoError(t, fireAll(combined, NewState(StateOptions{})))
	require.Equal(t, []string{
		"a:start", "b:start",
		"a:block", "b:block",
		"a:stream", "b:stream",
		"a:complete", "b:complete",
	}, calls)
}

func TestCombineObserversAsyncFirstErrorWins(t *testing.T) {
	errSecond := errors.New("second failed")
	errThird := errors.New("third failed")
	var ran []string
	async := func(name string, err error) *Observer {
		return &Observer{
			BlockCompleteAsync: func(ctx context.Context, block *workflow.Block, result *BlockResult, state *State) error {
				ran = append(ran, name)
				return err
			},
		}
	}

	combined := CombineObservers(
		async("first", nil),
		async("second", errSecond),
		async("third", errThird),
	)
	err := combined.fireBlockCompleteAsync(context.Background(),
		&workflow.Block{ID: "b"}, successResult(nil, "", 0), NewState(StateOptions{}))

	// Every observer runs; the first error is the one reported.
	require.Equal(t, []string{"first", "second", "third"}, ran)
	require.ErrorIs(t, err, errSecond)
}
