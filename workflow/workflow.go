package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Workflow is a directed graph of blocks joined by connections. Blocks are
// keyed by id.
type Workflow struct {
	Blocks       map[string]*Block `yaml:"blocks" json:"blocks"`
	Connections  []*Connection     `yaml:"connections,omitempty" json:"connections,omitempty"`
	StartBlockID string            `yaml:"start_block_id,omitempty" json:"start_block_id,omitempty"`
}

// NewWorkflow returns an empty workflow.
func NewWorkflow() *Workflow {
	return &Workflow{Blocks: map[string]*Block{}}
}

// AddBlock adds a block to the workflow. Blocks without an id are assigned
// one.
func (w *Workflow) AddBlock(block *Block) error {
	if w.Blocks == nil {
		w.Blocks = map[string]*Block{}
	}
	if block.ID == "" {
		block.ID = uuid.New().String()
	}
	if _, exists := w.Blocks[block.ID]; exists {
		return fmt.Errorf("block with id %s already exists", block.ID)
	}
	if block.Type == BlockTypeStart {
		if w.StartBlockID != "" && w.StartBlockID != block.ID {
			return fmt.Errorf("workflow already has a start block")
		}
		w.StartBlockID = block.ID
	}
	w.Blocks[block.ID] = block
	return nil
}

// AddConnection adds a connection between two existing blocks.
func (w *Workflow) AddConnection(conn *Connection) error {
	if _, ok := w.Blocks[conn.SourceBlockID]; !ok {
		return fmt.Errorf("source block %s not found", conn.SourceBlockID)
	}
	if _, ok := w.Blocks[conn.TargetBlockID]; !ok {
		return fmt.Errorf("target block %s not found", conn.TargetBlockID)
	}
	for _, c := range w.Connections {
		if c.SourceBlockID == conn.SourceBlockID && c.TargetBlockID == conn.TargetBlockID {
			return fmt.Errorf("connection from %s to %s already exists",
				conn.SourceBlockID, conn.TargetBlockID)
		}
	}
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	conn.normalize()
	w.Connections = append(w.Connections, conn)
	return nil
}

// Get returns a block by id.
func (w *Workflow) Get(id string) (*Block, bool) {
	block, ok := w.Blocks[id]
	return block, ok
}

// StartBlock returns the workflow's start block, or nil if there is none.
func (w *Workflow) StartBlock() *Block {
	if w.StartBlockID != "" {
		if block, ok := w.Blocks[w.StartBlockID]; ok {
			return block
		}
	}
	for _, block := range w.Blocks {
		if block.Type == BlockTypeStart {
			return block
		}
	}
	return nil
}

// ConnectionsFrom returns all connections leaving the given block, in
// definition order.
func (w *Workflow) ConnectionsFrom(blockID string) []*Connection {
	var conns []*Connection
	for _, c := range w.Connections {
		if c.SourceBlockID == blockID {
			conns = append(conns, c)
		}
	}
	return conns
}

// ConnectionsTo returns all connections entering the given block.
func (w *Workflow) ConnectionsTo(blockID string) []*Connection {
	var conns []*Connection
	for _, c := range w.Connections {
		if c.TargetBlockID == blockID {
			conns = append(conns, c)
		}
	}
	return conns
}

// NextBlock returns the target of the first connection leaving the given
// block, or nil if the block has no outgoing connections.
func (w *Workflow) NextBlock(blockID string) *Block {
	conns := w.ConnectionsFrom(blockID)
	if len(conns) == 0 {
		return nil
	}
	block, ok := w.Blocks[conns[0].TargetBlockID]
	if !ok {
		return nil
	}
	return block
}

// Names returns the ids of all blocks, sorted.
func (w *Workflow) Names() []string {
	names := make([]string, 0, len(w.Blocks))
	for id := range w.Blocks {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// Normalize fills in derived fields after loading a definition: block ids
// from map keys, default connection ports and ids, default value types, and
// the start block id.
func (w *Workflow) Normalize() {
	for id, block := range w.Blocks {
		if block == nil {
			continue
		}
		if block.ID == "" {
			block.ID = id
		}
		switch block.Type {
		case BlockTypeVariable:
			if block.VariableType == "" {
				block.VariableType = "string"
			}
		case BlockTypeBash:
			if block.OutputType == "" {
				block.OutputType = "string"
			}
		}
	}
	for _, conn := range w.Connections {
		if conn.ID == "" {
			conn.ID = uuid.New().String()
		}
		conn.normalize()
	}
	if w.StartBlockID == "" {
		for id, block := range w.Blocks {
			if block != nil && block.Type == BlockTypeStart {
				w.StartBlockID = id
				break
			}
		}
	}
}

// ValidationResult aggregates workflow validation problems. Errors make the
// workflow unrunnable; warnings do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate checks the workflow graph and every block's configuration.
func (w *Workflow) Validate() *ValidationResult {
	var errors, warnings []string

	// Exactly one start block.
	var startBlocks []*Block
	for _, block := range w.Blocks {
		if block.Type == BlockTypeStart {
			startBlocks = append(startBlocks, block)
		}
	}
	switch {
	case len(startBlocks) == 0:
		errors = append(errors, "Workflow must have a Start block")
	case len(startBlocks) > 1:
		errors = append(errors,
			fmt.Sprintf("Workflow must have only one Start block (found %d)", len(startBlocks)))
	}

	// At least one end block, ideally.
	hasEnd := false
	for _, block := range w.Blocks {
		if block.Type == BlockTypeEnd {
			hasEnd = true
			break
		}
	}
	if !hasEnd {
		warnings = append(warnings,
			"Workflow should have at least one End block to terminate execution paths")
	}

	// Reachability from the start block.
	if len(startBlocks) == 1 {
		reachable := w.reachableFrom(startBlocks[0].ID)
		var unreachable []string
		for _, id := range w.Names() {
			if !reachable[id] {
				unreachable = append(unreachable, w.Blocks[id].DisplayName())
			}
		}
		if len(unreachable) > 0 {
			warnings = append(warnings,
				fmt.Sprintf("Blocks unreachable from Start: %s", strings.Join(unreachable, ", ")))
		}
	}

	// Per-block configuration.
	for _, id := range w.Names() {
		block := w.Blocks[id]
		if block == nil {
			errors = append(errors, fmt.Sprintf("Block %s is empty", id))
			continue
		}
		for _, problem := range block.Validate() {
			errors = append(errors, fmt.Sprintf("%s '%s': %s",
				blockLabel(block.Type), block.DisplayName(), problem))
		}
	}

	// Connection endpoints must exist.
	for _, conn := range w.Connections {
		if _, ok := w.Blocks[conn.SourceBlockID]; !ok {
			errors = append(errors,
				fmt.Sprintf("Connection references non-existent source block: %s", conn.SourceBlockID))
		}
		if _, ok := w.Blocks[conn.TargetBlockID]; !ok {
			errors = append(errors,
				fmt.Sprintf("Connection references non-existent target block: %s", conn.TargetBlockID))
		}
	}

	// Branch connectivity and fan-out rules.
	for _, id := range w.Names() {
		block := w.Blocks[id]
		if block == nil {
			continue
		}
		outgoing := w.ConnectionsFrom(id)
		switch block.Type {
		case BlockTypeBranch:
			errors = append(errors, validateBranchPaths(block, outgoing)...)
		case BlockTypeEnd:
			if len(outgoing) > 0 {
				warnings = append(warnings,
					fmt.Sprintf("End block '%s' has outgoing connections that will never be followed",
						block.DisplayName()))
			}
		default:
			if len(outgoing) > 1 {
				errors = append(errors,
					fmt.Sprintf("Block '%s' has %d outgoing connections; only branch blocks may have more than one",
						block.DisplayName(), len(outgoing)))
			}
		}
	}

	// Disconnected blocks.
	for _, id := range w.Names() {
		block := w.Blocks[id]
		if block == nil || block.Type == BlockTypeStart || block.Type == BlockTypeEnd {
			continue
		}
		if len(w.ConnectionsFrom(id)) == 0 && len(w.ConnectionsTo(id)) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("Block '%s' is completely disconnected (no incoming or outgoing connections)",
					block.DisplayName()))
		}
	}

	return &ValidationResult{
		Valid:    len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

func validateBranchPaths(block *Block, outgoing []*Connection) []string {
	var errors []string
	name := block.DisplayName()
	var truePaths, falsePaths int
	for _, conn := range outgoing {
		if conn.TruePath() {
			truePaths++
		} else {
			falsePaths++
		}
	}
	switch {
	case len(outgoing) == 0:
		errors = append(errors,
			fmt.Sprintf("Branch block '%s' has no outgoing connections (needs a True path and a False path)", name))
	case truePaths == 0:
		errors = append(errors,
			fmt.Sprintf("Branch block '%s' only has a False path connection. Add a True path", name))
	case falsePaths == 0:
		errors = append(errors,
			fmt.Sprintf("Branch block '%s' only has a True path connection. Add a False path", name))
	}
	if truePaths > 1 {
		errors = append(errors,
			fmt.Sprintf("Branch block '%s' has %d True path connections; at most one is allowed", name, truePaths))
	}
	if falsePaths > 1 {
		errors = append(errors,
			fmt.Sprintf("Branch block '%s' has %d False path connections; at most one is allowed", name, falsePaths))
	}
	return errors
}

func blockLabel(t BlockType) string {
	s := string(t)
	if s == "" {
		return "Block"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " block"
}

// reachableFrom returns the set of block ids reachable from start by
// breadth-first search.
func (w *Workflow) reachableFrom(startID string) map[string]bool {
	visited := map[string]bool{}
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, conn := range w.ConnectionsFrom(current) {
			if !visited[conn.TargetBlockID] {
				queue = append(queue, conn.TargetBlockID)
			}
		}
	}
	return visited
}
