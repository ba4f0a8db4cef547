package graph

import (
	"fmt"

	"github.com/garyjia/store-approval/internal/domain/condition"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// Next returns the successor of a node. Start and approval nodes have exactly one;
// a condition node yields the target of its first matching branch; an end node has none.
func Next(g *Graph, id entity.NodeID, formData map[string]any) ([]entity.NodeID, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("node %q not in graph", id)
	}
	switch n.Type {
	case entity.NodeTypeStart, entity.NodeTypeApproval:
		if len(n.Connections) != 1 {
			return nil, fmt.Errorf("node %q has %d connections, want 1", id, len(n.Connections))
		}
		return []entity.NodeID{n.Connections[0]}, nil
	case entity.NodeTypeCondition:
		for _, b := range n.Branches {
			if condition.Evaluate(formData, b.Conditions) {
				return []entity.NodeID{b.Target}, nil
			}
		}
		return nil, entity.NewNoMatchingConditionError(id)
	case entity.NodeTypeEnd:
		return nil, nil
	}
	return nil, fmt.Errorf("node %q has unknown type %q", id, n.Type)
}

// Advance leaves a node and walks through consecutive condition nodes until it lands on an
// approval or end node. It returns every node entered, in order, the landing node last.
// On a routing failure the visited prefix is returned together with the error.
func Advance(g *Graph, from entity.NodeID, formData map[string]any) ([]entity.NodeID, error) {
	var visited []entity.NodeID
	cur := from
	for steps := 0; steps <= g.Len(); steps++ {
		next, err := Next(g, cur, formData)
		if err != nil {
			return visited, err
		}
		if len(next) == 0 {
			return visited, nil
		}
		id := next[0]
		n, ok := g.Node(id)
		if !ok {
			return visited, fmt.Errorf("node %q points to missing node %q", cur, id)
		}
		visited = append(visited, id)
		if n.Type != entity.NodeTypeCondition {
			return visited, nil
		}
		cur = id
	}
	return visited, fmt.Errorf("condition cycle while leaving node %q", from)
}

// Predict walks from start to end assuming every approval node passes
func Predict(g *Graph, formData map[string]any) ([]entity.NodeID, error) {
	path := []entity.NodeID{g.Start()}
	cur := g.Start()
	for steps := 0; steps <= g.Len(); steps++ {
		visited, err := Advance(g, cur, formData)
		path = append(path, visited...)
		if err != nil {
			return path, err
		}
		if len(visited) == 0 {
			return path, nil
		}
		cur = visited[len(visited)-1]
		if n, _ := g.Node(cur); n.Type == entity.NodeTypeEnd {
			return path, nil
		}
	}
	return path, fmt.Errorf("path does not reach an end node")
}

// CountApprovals counts approval nodes in a path
func CountApprovals(g *Graph, path []entity.NodeID) int {
	count := 0
	for _, id := range path {
		if n, ok := g.Node(id); ok && n.Type == entity.NodeTypeApproval {
			count++
		}
	}
	return count
}
