package execution

import (
	"context"

	"github.com/deepnoodle-ai/eddy/workflow"
)

// Observer receives execution lifecycle callbacks. Every field is optional
// and a nil *Observer is valid; both report nothing.
//
// Callbacks run on the execution goroutine. ExecutionStart, BlockStart,
// BlockComplete, and ExecutionComplete are notifications; the loop does not
// advance past a block until BlockCompleteAsync returns, making it the
// place for side effects that must land before the next block runs.
// PromptStream receives an empty chunk when a prompt is sent, then one call
// per response chunk as it arrives.
type Observer struct {
	ExecutionStart     func(commandName string, state *State)
	BlockStart         func(block *workflow.Block, state *State)
	BlockComplete      func(block *workflow.Block, result *BlockResult, state *State)
	BlockCompleteAsync func(ctx context.Context, block *workflow.Block, result *BlockResult, state *State) error
	PromptStream       func(prompt, chunk string)
	ExecutionComplete  func(state *State)
}

func (o *Observer) fireExecutionStart(commandName string, state *State) {
	if o == nil || o.ExecutionStart == nil {
		return
	}
	o.ExecutionStart(commandName, state)
}

func (o *Observer) fireBlockStart(block *workflow.Block, state *State) {
	if o == nil || o.BlockStart == nil {
		return
	}
	o.BlockStart(block, state)
}

func (o *Observer) fireBlockComplete(block *workflow.Block, result *BlockResult, state *State) {
	if o == nil || o.BlockComplete == nil {
		return
	}
	o.BlockComplete(block, result, state)
}

func (o *Observer) fireBlockCompleteAsync(ctx context.Context, block *workflow.Block, result *BlockResult, state *State) error {
	if o == nil || o.BlockCompleteAsync == nil {
		return nil
	}
	return o.BlockCompleteAsync(ctx, block, result, state)
}

func (o *Observer) firePromptStream(prompt, chunk string) {
	if o == nil || o.PromptStream == nil {
		return
	}
	o.PromptStream(prompt, chunk)
}

func (o *Observer) fireExecutionComplete(state *State) {
	if o == nil || o.ExecutionComplete == nil {
		return
	}
	o.ExecutionComplete(state)
}

// CombineObservers fans callbacks out to several observers in order. Nil
// observers are skipped. The first BlockCompleteAsync error is returned
// after every observer has run.
func CombineObservers(observers ...*Observer) *Observer {
	return &Observer{
		ExecutionStart: func(commandName string, state *State) {
			for _, o := range observers {
				o.fireExecutionStart(commandName, state)
			}
		},
		BlockStart: func(block *workflow.Block, state *State) {
			for _, o := range observers {
				o.fireBlockStart(block, state)
			}
		},
		BlockComplete: func(block *workflow.Block, result *BlockResult, state *State) {
			for _, o := range observers {
				o.fireBlockComplete(block, result, state)
			}
		},
		BlockCompleteAsync: func(ctx context.Context, block *workflow.Block, result *BlockResult, state *State) error {
			var firstErr error
			for _, o := range observers {
				if err := o.fireBlockCompleteAsync(ctx, block, result, state); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
		PromptStream: func(prompt, chunk string) {
			for _, o := range observers {
				o.firePromptStream(prompt, chunk)
			}
		},
		ExecutionComplete: func(state *State) {
			for _, o := range observers {
				o.fireExecutionComplete(state)
			}
		},
	}
}
