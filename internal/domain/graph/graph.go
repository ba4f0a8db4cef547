// Package graph holds the template node graph: an arena of nodes addressed by id,
// the router that walks it and the structural validation run before activation.
package graph

import (
	"fmt"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

// Graph is a read-only view over a node list
type Graph struct {
	nodes []entity.ApprovalNode
	index map[entity.NodeID]int
	start entity.NodeID
}

// Compile indexes nodes. It only rejects lists it cannot index at all;
// full validation is Validate's job.
func Compile(nodes []entity.ApprovalNode) (*Graph, error) {
	g := &Graph{
		nodes: nodes,
		index: make(map[entity.NodeID]int, len(nodes)),
	}
	for i, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.index[n.ID] = i
		if n.Type == entity.NodeTypeStart {
			if g.start != "" {
				return nil, fmt.Errorf("more than one start node: %q and %q", g.start, n.ID)
			}
			g.start = n.ID
		}
	}
	if g.start == "" {
		return nil, fmt.Errorf("graph has no start node")
	}
	return g, nil
}

// Start returns the start node id
func (g *Graph) Start() entity.NodeID {
	return g.start
}

// Node returns the node with the given id
func (g *Graph) Node(id entity.NodeID) (*entity.ApprovalNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Edges returns every outgoing edge of a node, branch targets included, in template order
func (g *Graph) Edges(id entity.NodeID) []entity.NodeID {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	return edgesOf(n)
}

func edgesOf(n *entity.ApprovalNode) []entity.NodeID {
	if n.Type == entity.NodeTypeCondition {
		out := make([]entity.NodeID, 0, len(n.Branches))
		for _, b := range n.Branches {
			out = append(out, b.Target)
		}
		return out
	}
	return n.Connections
}
