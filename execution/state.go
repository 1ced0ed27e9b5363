package execution

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deepnoodle-ai/eddy/workflow"
)

// DefaultMaxDepth bounds nested command invocation.
const DefaultMaxDepth = 10

// State is the mutable state of one run: its variables, ordered execution
// log, loop counters, call stack, and lifecycle status. A State is owned
// and mutated by a single execution loop. The halt flag is the only field
// written from other goroutines; status and timing are guarded so they can
// be observed while the run is live.
type State struct {
	id          string
	commandID   string
	commandName string

	// Owned by the execution loop.
	variables    map[string]any
	log          []*LogEntry
	loopCounters map[string]int
	callStack    []string
	depth        int
	maxDepth     int

	// Read-through lookups only, set when the invoking block inherits
	// variables. Writes never traverse to the parent.
	parent *State

	mutex          sync.RWMutex
	status         Status
	startTime      time.Time
	endTime        time.Time
	currentBlockID string

	halt atomic.Bool
}

// StateOptions configure a new root State.
type StateOptions struct {
	CommandID   string
	CommandName string

	// Variables seeds the variable map, typically with parsed command
	// arguments keyed both positionally ("$1") and by declared name.
	Variables map[string]any

	// MaxDepth bounds nested command invocation. Defaults to
	// DefaultMaxDepth.
	MaxDepth int
}

// NewState creates the state for a fresh root run.
func NewState(opts StateOptions) *State {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	variables := map[string]any{}
	for k, v := range opts.Variables {
		variables[k] = v
	}
	return &State{
		id:           uuid.New().String(),
		commandID:    opts.CommandID,
		commandName:  opts.CommandName,
		status:       StatusPending,
		variables:    variables,
		loopCounters: map[string]int{},
		maxDepth:     maxDepth,
	}
}

// newChildState builds the isolated state for a nested command invocation.
// The child's variables are exactly the parsed arguments; the call stack is
// copied so the child's errors can show the full chain; the parent link is
// set only when the invoking block inherits variables.
func newChildState(cmd *workflow.Command, parent *State, arguments map[string]string, inherit bool) *State {
	variables := make(map[string]any, len(arguments))
	for k, v := range arguments {
		variables[k] = v
	}
	child := &State{
		id:           uuid.New().String(),
		commandID:    cmd.ID,
		commandName:  cmd.Name,
		status:       StatusPending,
		variables:    variables,
		loopCounters: map[string]int{},
		depth:        parent.depth + 1,
		maxDepth:     parent.maxDepth,
		callStack:    append([]string{}, parent.callStack...),
	}
	if inherit {
		child.parent = parent
	}
	return child
}

// ID returns the run's unique id.
func (s *State) ID() string { return s.id }

// CommandID returns the id of the command being run, if it has one.
func (s *State) CommandID() string { return s.commandID }

// CommandName returns the name of the command being run.
func (s *State) CommandName() string { return s.commandName }

// Depth returns the nesting depth: 0 for a root run.
func (s *State) Depth() int { return s.depth }

// Status returns the run's lifecycle status.
func (s *State) Status() Status {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

// StartTime returns when the run began, or the zero time if it has not.
func (s *State) StartTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.startTime
}

// EndTime returns when the run settled, or the zero time while live.
func (s *State) EndTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.endTime
}

// CurrentBlockID returns the most recently dispatched block. After a halt
// it identifies where to resume; it is empty once a run completes or fails.
func (s *State) CurrentBlockID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.currentBlockID
}

// Duration is the wall time from start to end, or to now for a live run.
func (s *State) Duration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	if s.endTime.IsZero() {
		return time.Since(s.startTime)
	}
	return s.endTime.Sub(s.startTime)
}

// Variables returns the run's own variable map, excluding anything visible
// only through parent inheritance. Callers must treat it as read-only.
func (s *State) Variables() map[string]any { return s.variables }

// Variable looks up one key, falling back to the parent scope when this
// state was created with variable inheritance.
func (s *State) Variable(key string) (any, bool) {
	if value, ok := s.variables[key]; ok {
		return value, true
	}
	if s.parent != nil {
		return s.parent.Variable(key)
	}
	return nil, false
}

// SetVariable stores a value. Writes always land in this run's own map.
func (s *State) SetVariable(key string, value any) {
	s.variables[key] = value
}

// effectiveVariables is the map handed to template substitution and
// condition evaluation: the run's own variables extended, never shadowed,
// by inherited parent values.
func (s *State) effectiveVariables() map[string]any {
	if s.parent == nil {
		return s.variables
	}
	merged := map[string]any{}
	for k, v := range s.parent.effectiveVariables() {
		merged[k] = v
	}
	for k, v := range s.variables {
		merged[k] = v
	}
	return merged
}

// Log returns the execution log entries in order.
func (s *State) Log() []*LogEntry { return s.log }

// LastEntry returns the most recent log entry, or nil for an empty log.
func (s *State) LastEntry() *LogEntry {
	if len(s.log) == 0 {
		return nil
	}
	return s.log[len(s.log)-1]
}

// AddLogEntry appends one entry to the execution log.
func (s *State) AddLogEntry(entry *LogEntry) {
	s.log = append(s.log, entry)
}

// attachError records an error on the last log entry so the log explains
// runs that fail between blocks.
func (s *State) attachError(err error) {
	if entry := s.LastEntry(); entry != nil && entry.Error == "" {
		entry.Error = err.Error()
	}
}

// IncrementLoopCounter bumps the iteration counter for a key and returns
// the new count. The first increment returns 0, so the count reads as
// "iterations completed before this one".
func (s *State) IncrementLoopCounter(key string) int {
	if _, ok := s.loopCounters[key]; !ok {
		s.loopCounters[key] = -1
	}
	s.loopCounters[key]++
	return s.loopCounters[key]
}

// LoopCount returns the current iteration count for a key without
// incrementing it.
func (s *State) LoopCount(key string) int {
	return s.loopCounters[key]
}

// RequestHalt asks the run to stop at the next block boundary. Safe to call
// from any goroutine; the flag is honored between blocks, never mid-block.
func (s *State) RequestHalt() {
	s.halt.Store(true)
}

// HaltRequested reports whether a halt has been requested.
func (s *State) HaltRequested() bool {
	return s.halt.Load()
}

func (s *State) clearHalt() {
	s.halt.Store(false)
}

// canNestDeeper reports whether one more nested invocation fits within the
// depth limit.
func (s *State) canNestDeeper() bool {
	return s.depth+1 <= s.maxDepth
}

// pushCall appends a command name to the call stack, failing when the name
// already appears anywhere in it.
func (s *State) pushCall(name string) error {
	for _, existing := range s.callStack {
		if existing == name {
			return &CommandRecursionError{
				CommandName: name,
				CallStack:   append(append([]string{}, s.callStack...), name),
			}
		}
	}
	s.callStack = append(s.callStack, name)
	return nil
}

func (s *State) popCall() {
	if len(s.callStack) > 0 {
		s.callStack = s.callStack[:len(s.callStack)-1]
	}
}

// CallStack returns a copy of the command invocation chain.
func (s *State) CallStack() []string {
	return append([]string{}, s.callStack...)
}

// CallChain renders the invocation chain for error messages, e.g.
// "deploy → run-tests → setup-env".
func (s *State) CallChain() string {
	if len(s.callStack) == 0 {
		return "(no calls)"
	}
	return strings.Join(s.callStack, " → ")
}

// begin marks the state running. The start time is preserved across a
// halt/resume cycle.
func (s *State) begin() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = StatusRunning
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
}

func (s *State) setCurrentBlock(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.currentBlockID = id
}

// complete settles the run with a final status. The current block id
// survives a halt so a resumed run knows where it stopped; any other
// outcome clears it.
func (s *State) complete(status Status) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = status
	s.endTime = time.Now()
	if status != StatusHalted {
		s.currentBlockID = ""
	}
}
