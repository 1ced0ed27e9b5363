package execution

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/deepnoodle-ai/eddy/workflow"
)

// Snapshot is the persisted form of a State: everything a later process
// needs to inspect a run or resume a halted one.
type Snapshot struct {
	ID             string         `json:"id"`
	CommandID      string         `json:"command_id,omitempty"`
	CommandName    string         `json:"command_name"`
	Status         Status         `json:"status"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	CurrentBlockID string         `json:"current_block_id,omitempty"`
	Variables      map[string]any `json:"variables"`
	Log            []*LogEntry    `json:"execution_log"`
	HaltRequested  bool           `json:"halt_requested"`
	LoopCounters   map[string]int `json:"loop_counters,omitempty"`
	Depth          int            `json:"depth,omitempty"`
	MaxDepth       int            `json:"max_depth,omitempty"`
	CallStack      []string       `json:"call_stack,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Snapshot captures the state's persistable fields.
func (s *State) Snapshot() *Snapshot {
	s.mutex.RLock()
	status := s.status
	startTime := s.startTime
	endTime := s.endTime
	currentBlockID := s.currentBlockID
	s.mutex.RUnlock()

	snap := &Snapshot{
		ID:             s.id,
		CommandID:      s.commandID,
		CommandName:    s.commandName,
		Status:         status,
		StartTime:      startTime,
		CurrentBlockID: currentBlockID,
		Variables:      make(map[string]any, len(s.variables)),
		Log:            append([]*LogEntry{}, s.log...),
		HaltRequested:  s.halt.Load(),
		LoopCounters:   make(map[string]int, len(s.loopCounters)),
		Depth:          s.depth,
		MaxDepth:       s.maxDepth,
		CallStack:      append([]string{}, s.callStack...),
	}
	if !endTime.IsZero() {
		snap.EndTime = &endTime
	}
	for k, v := range s.variables {
		snap.Variables[k] = v
	}
	for k, v := range s.loopCounters {
		snap.LoopCounters[k] = v
	}
	return snap
}

// RestoreState rebuilds a State from a snapshot, typically to resume a
// halted run in a fresh process.
func RestoreState(snap *Snapshot) *State {
	state := &State{
		id:             snap.ID,
		commandID:      snap.CommandID,
		commandName:    snap.CommandName,
		status:         snap.Status,
		startTime:      snap.StartTime,
		currentBlockID: snap.CurrentBlockID,
		variables:      map[string]any{},
		log:            append([]*LogEntry{}, snap.Log...),
		loopCounters:   map[string]int{},
		depth:          snap.Depth,
		maxDepth:       snap.MaxDepth,
		callStack:      append([]string{}, snap.CallStack...),
	}
	if state.id == "" {
		state.id = uuid.New().String()
	}
	if state.maxDepth <= 0 {
		state.maxDepth = DefaultMaxDepth
	}
	if snap.EndTime != nil {
		state.endTime = *snap.EndTime
	}
	for k, v := range snap.Variables {
		state.variables[k] = v
	}
	for k, v := range snap.LoopCounters {
		state.loopCounters[k] = v
	}
	state.halt.Store(snap.HaltRequested)
	return state
}

// EventType classifies history events.
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventBlockStarted       EventType = "block_started"
	EventBlockCompleted     EventType = "block_completed"
	EventBlockFailed        EventType = "block_failed"
	EventExecutionCompleted EventType = "execution_completed"
)

// Event is one entry in an execution's append-only history log.
type Event struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	CommandName string    `json:"command_name,omitempty"`
	BlockID     string    `json:"block_id,omitempty"`
	BlockName   string    `json:"block_name,omitempty"`
	Status      string    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// History persists run records under a base directory. Each execution gets
// its own subdirectory holding an append-only JSONL event log and an
// atomically written state snapshot.
type History struct {
	dir    string
	logger slogger.Logger
	mutex  sync.RWMutex
}

// HistoryOptions configure a History store.
type HistoryOptions struct {
	// Dir is the base directory; it is created on first write.
	Dir string

	Logger slogger.Logger
}

// NewHistory creates a History rooted at opts.Dir.
func NewHistory(opts HistoryOptions) (*History, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("history directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &History{dir: opts.Dir, logger: logger}, nil
}

// AppendEvent writes one event to its execution's JSONL log.
func (h *History) AppendEvent(ctx context.Context, event *Event) error {
	if event.ExecutionID == "" {
		return fmt.Errorf("event execution id is required")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	dir := filepath.Join(h.dir, event.ExecutionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create execution directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, "events.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// Events returns the full event history for an execution, oldest first. A
// missing history is an empty slice, not an error.
func (h *History) Events(ctx context.Context, executionID string) ([]*Event, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	file, err := os.Open(filepath.Join(h.dir, executionID, "events.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*Event{}, nil
		}
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	return events, nil
}

// SaveSnapshot atomically writes the state's snapshot, replacing any prior
// one for the same execution.
func (h *History) SaveSnapshot(ctx context.Context, state *State) error {
	return h.writeSnapshot(state.Snapshot())
}

func (h *History) writeSnapshot(snap *Snapshot) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	dir := filepath.Join(h.dir, snap.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create execution directory: %w", err)
	}
	snap.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	path := filepath.Join(dir, "snapshot.json")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot for an execution id.
func (h *History) LoadSnapshot(ctx context.Context, executionID string) (*Snapshot, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	data, err := os.ReadFile(filepath.Join(h.dir, executionID, "snapshot.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot not found for execution %s", executionID)
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// List returns the snapshots of all recorded executions, newest first.
// Executions that never wrote a snapshot are skipped.
func (h *History) List(ctx context.Context) ([]*Snapshot, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}
	var snapshots []*Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := h.LoadSnapshot(ctx, entry.Name())
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartTime.After(snapshots[j].StartTime)
	})
	return snapshots, nil
}

// Observer returns an observer that records history events as a run
// progresses and snapshots the state when it settles, so halted runs leave
// a resumable record. History failures are logged, never propagated.
func (h *History) Observer() *Observer {
	return &Observer{
		ExecutionStart: func(commandName string, state *State) {
			h.record(&Event{
				ExecutionID: state.ID(),
				Type:        EventExecutionStarted,
				CommandName: commandName,
			})
		},
		BlockStart: func(block *workflow.Block, state *State) {
			h.record(&Event{
				ExecutionID: state.ID(),
				Type:        EventBlockStarted,
				BlockID:     block.ID,
				BlockName:   block.DisplayName(),
			})
		},
		BlockComplete: func(block *workflow.Block, result *BlockResult, state *State) {
			event := &Event{
				ExecutionID: state.ID(),
				Type:        EventBlockCompleted,
				BlockID:     block.ID,
				BlockName:   block.DisplayName(),
				Status:      string(BlockStatusSuccess),
			}
			if result.Err != nil {
				event.Type = EventBlockFailed
				event.Status = string(BlockStatusError)
				event.Error = result.Err.Error()
			}
			h.record(event)
		},
		ExecutionComplete: func(state *State) {
			h.record(&Event{
				ExecutionID: state.ID(),
				Type:        EventExecutionCompleted,
				CommandName: state.CommandName(),
				Status:      string(state.Status()),
			})
			if err := h.SaveSnapshot(context.Background(), state); err != nil {
				h.logger.Error("failed to save execution snapshot",
					"execution_id", state.ID(), "error", err)
			}
		},
	}
}

func (h *History) record(event *Event) {
	if err := h.AppendEvent(context.Background(), event); err != nil {
		h.logger.Error("failed to append history event",
			"execution_id", event.ExecutionID, "error", err)
	}
}
