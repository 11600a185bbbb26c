// Package render draws graphs and pass traces for humans.
package render

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m1gwings/treedrawer/tree"

	cells "github.com/pumped-fn/cells-go"
)

// ErrUnknownRecord is returned when a trace has no record with the given ID
var ErrUnknownRecord = errors.New("render: unknown trace record")

// DOT renders g in Graphviz dot syntax. Inputs are drawn as ellipses and
// every other node as a box. Cyclic graphs are rendered as they are.
func DOT(g *cells.Graph) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "digraph %s {\n", strconv.Quote(g.Name()))
	sb.WriteString("  rankdir=LR;\n")

	nodes := g.Nodes()
	for _, n := range nodes {
		shape := "box"
		if g.IsInput(n) {
			shape = "ellipse"
		}
		fmt.Fprintf(&sb, "  %s [shape=%s];\n", strconv.Quote(n.Name()), shape)
	}
	for _, n := range nodes {
		for _, s := range g.Successors(n) {
			fmt.Fprintf(&sb, "  %s -> %s;\n", strconv.Quote(n.Name()), strconv.Quote(s.Name()))
		}
	}
	sb.WriteString("}\n")

	return sb.String()
}

// TraceTree draws the record rootID and everything below it as a tree
func TraceTree(t *cells.Trace, rootID string) (string, error) {
	root := t.Get(rootID)
	if root == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownRecord, rootID)
	}

	drawing := tree.NewTree(tree.NodeString(label(root)))
	addChildren(t, drawing, root.ID)
	return drawing.String(), nil
}

func addChildren(t *cells.Trace, parent *tree.Tree, id string) {
	for _, child := range t.Children(id) {
		addChildren(t, parent.AddChild(tree.NodeString(label(child))), child.ID)
	}
}

func label(r *cells.Record) string {
	var sb strings.Builder

	if name, ok := cells.NodeName().Get(r); ok {
		sb.WriteString(name)
	} else if mode, ok := cells.PassMode().Get(r); ok {
		sb.WriteString(string(mode) + " pass")
	} else {
		sb.WriteString(r.ID)
	}

	if status, ok := cells.StatusTag().Get(r); ok {
		sb.WriteString(" [" + status.String() + "]")
	}

	start, okStart := cells.StartTime().Get(r)
	end, okEnd := cells.EndTime().Get(r)
	if okStart && okEnd {
		sb.WriteString(" " + end.Sub(start).Round(time.Microsecond).String())
	}

	return sb.String()
}
