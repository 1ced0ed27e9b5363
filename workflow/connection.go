package workflow

// Valid connection ports.
var validPorts = map[string]bool{
	"top":    true,
	"left":   true,
	"bottom": true,
	"right":  true,
}

// Connection is a directed edge between two blocks. For connections leaving
// a branch block, is_true_path selects which condition outcome follows the
// edge; it defaults to true.
type Connection struct {
	ID            string `yaml:"id,omitempty" json:"id,omitempty"`
	SourceBlockID string `yaml:"source_block_id" json:"source_block_id"`
	TargetBlockID string `yaml:"target_block_id" json:"target_block_id"`
	SourcePort    string `yaml:"source_port,omitempty" json:"source_port,omitempty"`
	TargetPort    string `yaml:"target_port,omitempty" json:"target_port,omitempty"`
	IsTruePath    *bool  `yaml:"is_true_path,omitempty" json:"is_true_path,omitempty"`
}

// TruePath reports whether this edge follows the true outcome of a branch.
// Defaults to true when unset.
func (c *Connection) TruePath() bool {
	return c.IsTruePath == nil || *c.IsTruePath
}

// normalize fills in default ports, replacing unknown values.
func (c *Connection) normalize() {
	if !validPorts[c.SourcePort] {
		c.SourcePort = "bottom"
	}
	if !validPorts[c.TargetPort] {
		c.TargetPort = "top"
	}
}
