package graph

import "fmt"

func New() *Graph {
	return &Graph{
		graph:      make(map[int][]int),
		edges:      make(map[edge]bool),
		starting:   make(map[int]bool),
		terminal:   make(map[int]bool),
		validNodes: make(map[int]bool),
	}
}

type edge struct {
	from int
	to   int
}

// Graph is a directed graph of status codes. Edges are unique; AddTransition returns an error when the same edge
// is declared twice.
type Graph struct {
	graph      map[int][]int
	edges      map[edge]bool
	nodeOrder  []int
	starting   map[int]bool
	terminal   map[int]bool
	validNodes map[int]bool
}

func (g *Graph) AddTransition(from int, to int) error {
	if g.edges[edge{from: from, to: to}] {
		return fmt.Errorf("duplicate transition: from=%d to=%d", from, to)
	}

	if _, ok := g.validNodes[from]; !ok {
		g.nodeOrder = append(g.nodeOrder, from)
	}

	if _, ok := g.validNodes[to]; !ok && to != from {
		g.nodeOrder = append(g.nodeOrder, to)
	}

	// Nodes that are reached via another node are never considered starting nodes
	if to != from {
		g.starting[to] = false
	}

	// Only mark the origin node ("from") as a starting node if it's never been marked as false
	if _, ok := g.starting[from]; !ok {
		g.starting[from] = true
	}

	// If the to node has not been defined as a node that has edges then mark it as terminal
	if _, ok := g.graph[to]; !ok && to != from {
		g.terminal[to] = true
	}

	// When declaring a node with edges ensure that any previous marking as terminal is overridden
	g.terminal[from] = false

	g.graph[from] = append(g.graph[from], to)
	g.edges[edge{from: from, to: to}] = true

	g.validNodes[from] = true
	g.validNodes[to] = true

	return nil
}

func (g *Graph) HasTransition(from, to int) bool {
	return g.edges[edge{from: from, to: to}]
}

func (g *Graph) IsTerminal(node int) bool {
	return g.terminal[node]
}

func (g *Graph) IsStarting(node int) bool {
	return g.starting[node]
}

func (g *Graph) Transitions(node int) []int {
	return g.graph[node]
}

func (g *Graph) IsValid(node int) bool {
	return g.validNodes[node]
}

// IsDestination reports whether any edge in the graph leads into node.
func (g *Graph) IsDestination(node int) bool {
	for e := range g.edges {
		if e.to == node {
			return true
		}
	}

	return false
}

func (g *Graph) Nodes() []int {
	nodes := make([]int, len(g.nodeOrder))
	copy(nodes, g.nodeOrder)
	return nodes
}

type Transition struct {
	From int
	To   int
}

type Info struct {
	StartingNodes []int
	TerminalNodes []int
	Transitions   []Transition
}

func (g *Graph) Info() Info {
	var i Info
	for _, node := range g.nodeOrder {
		for _, to := range g.graph[node] {
			i.Transitions = append(i.Transitions, Transition{
				From: node,
				To:   to,
			})
		}

		if g.starting[node] {
			i.StartingNodes = append(i.StartingNodes, node)
		}

		if g.terminal[node] {
			i.TerminalNodes = append(i.TerminalNodes, node)
		}
	}

	return i
}
