package unitpool

import (
	"fmt"
	"strings"
)

type GraphNode struct {
	Name  string   `json:"name"`
	State string   `json:"state"`
	Units []string `json:"units,omitempty"`
}

// GraphEdge means "From delegates to parent To".
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Graph returns a snapshot of the registered containers, their parents when
// those are containers too, and the units each has resolved.
func (r *Registry) Graph() Graph {
	var g Graph
	seen := make(map[*Container]struct{})
	var visit func(c *Container)
	visit = func(c *Container) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		g.Nodes = append(g.Nodes, GraphNode{
			Name:  c.name,
			State: c.State().String(),
			Units: c.Units(),
		})
		if parent, ok := c.parent.(*Container); ok {
			g.Edges = append(g.Edges, GraphEdge{From: c.name, To: parent.name})
			visit(parent)
		}
	}
	for _, c := range r.Containers() {
		visit(c)
	}
	return g
}

// DOT exports Graphviz DOT text.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph unitpool {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeDOT(n.Name) + "\\n(" + escapeDOT(nodeSummary(n)) + ")"
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\"];\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", from, to))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeMermaid(n.Name) + "<br/>(" + escapeMermaid(nodeSummary(n)) + ")"
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
	}
	return b.String()
}

func nodeSummary(n GraphNode) string {
	return fmt.Sprintf("%s, %d units", n.State, len(n.Units))
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
