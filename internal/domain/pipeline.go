package domain

type NodeType string

const (
	NodeTypeInput      NodeType = "input"
	NodeTypeProcessing NodeType = "processing"
	NodeTypeAI         NodeType = "ai"
	NodeTypeOutput     NodeType = "output"
	NodeTypeCondition  NodeType = "condition"
)

func (t NodeType) Known() bool {
	switch t {
	case NodeTypeInput, NodeTypeProcessing, NodeTypeAI, NodeTypeOutput, NodeTypeCondition:
		return true
	}
	return false
}

// Position is editor layout data. It plays no role in execution and is
// carried through unchanged.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PipelineNode struct {
	ID       string                 `json:"id"`
	Type     NodeType               `json:"type"`
	Position Position               `json:"position"`
	Config   map[string]interface{} `json:"config,omitempty"`
}

// Connection is a directed edge between two nodes. SourceHandle names the
// producer-side socket the edge reads from; condition nodes use "true" and
// "false" handles to route branches.
type Connection struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

const DefaultHandle = "default"

// Handle returns the edge's source handle, defaulting to "default".
func (c Connection) Handle() string {
	if c.SourceHandle == "" {
		return DefaultHandle
	}
	return c.SourceHandle
}

type Pipeline struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []PipelineNode `json:"nodes"`
	Connections []Connection   `json:"connections"`
}

// NodeByID returns the node with the given id, or nil.
func (p *Pipeline) NodeByID(id string) *PipelineNode {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i]
		}
	}
	return nil
}

// ConfigString reads a string field from a node's config bag.
func (n *PipelineNode) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	if s, ok := n.Config[key].(string); ok {
		return s
	}
	return ""
}

// ConfigMap reads a nested map field from a node's config bag.
func (n *PipelineNode) ConfigMap(key string) map[string]interface{} {
	if n.Config == nil {
		return nil
	}
	if m, ok := n.Config[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

// ConfigSlice reads a list field from a node's config bag.
func (n *PipelineNode) ConfigSlice(key string) []interface{} {
	if n.Config == nil {
		return nil
	}
	if s, ok := n.Config[key].([]interface{}); ok {
		return s
	}
	return nil
}
