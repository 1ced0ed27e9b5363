package execution

import (
	"time"

	"github.com/deepnoodle-ai/eddy/workflow"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusHalted    Status = "halted"
	StatusError     Status = "error"
)

// BlockStatus is the outcome recorded for one executed block.
type BlockStatus string

const (
	BlockStatusSuccess BlockStatus = "success"
	BlockStatusError   BlockStatus = "error"
	BlockStatusSkipped BlockStatus = "skipped"
)

// LogEntry records the outcome of one executed block. The ordered log is
// the authoritative account of a run: every dispatched block appends
// exactly one entry, whether it succeeded or failed.
type LogEntry struct {
	BlockID     string         `json:"block_id"`
	BlockName   string         `json:"block_name"`
	Timestamp   time.Time      `json:"timestamp"`
	Status      BlockStatus    `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	RawResponse string         `json:"raw_response,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// BlockResult is the transient outcome a block handler returns to the
// dispatch loop. Output carries structured values destined for the
// variable map; RawResponse is the human-readable account for the log.
type BlockResult struct {
	Output      map[string]any
	RawResponse string
	Duration    time.Duration
	Err         error
}

// Success reports whether the block completed without error.
func (r *BlockResult) Success() bool {
	return r.Err == nil
}

func successResult(output map[string]any, rawResponse string, duration time.Duration) *BlockResult {
	return &BlockResult{Output: output, RawResponse: rawResponse, Duration: duration}
}

func errorResult(err error, duration time.Duration) *BlockResult {
	return &BlockResult{Err: err, Duration: duration}
}

// newLogEntry converts a handler result into its log entry.
func newLogEntry(block *workflow.Block, result *BlockResult) *LogEntry {
	entry := &LogEntry{
		BlockID:     block.ID,
		BlockName:   block.DisplayName(),
		Timestamp:   time.Now(),
		Status:      BlockStatusSuccess,
		Output:      result.Output,
		RawResponse: result.RawResponse,
		DurationMS:  result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		entry.Status = BlockStatusError
		entry.Error = result.Err.Error()
	}
	return entry
}
