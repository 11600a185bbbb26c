// Package graphfile loads cell graphs described in YAML.
//
// A document lists nodes by name. Each node has a kind, and "after" names the
// nodes whose values it consumes:
//
//	name: demo
//	nodes:
//	  - name: tick
//	    kind: timer
//	    interval: 1s
//	  - name: date
//	    kind: exec
//	    command: date +%s
//	    after: [tick]
//	  - name: show
//	    kind: print
//	    after: [date]
//
// Every node owns a string cell. Timer and watch nodes are inputs; every other
// kind only runs when the cells it reads have changed.
package graphfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	cells "github.com/pumped-fn/cells-go"
)

// Kind selects what a node does
type Kind string

const (
	// KindTimer is an input that fires every interval with the current time
	KindTimer Kind = "timer"
	// KindWatch is an input that fires when path changes
	KindWatch Kind = "watch"
	// KindExec runs command with the predecessor values on stdin
	KindExec Kind = "exec"
	// KindSleep waits interval and passes its predecessor values on
	KindSleep Kind = "sleep"
	// KindPrint writes its predecessor values to the output
	KindPrint Kind = "print"
	// KindConst holds value
	KindConst Kind = "const"
)

// IsInput reports whether nodes of this kind are flow inputs
func (k Kind) IsInput() bool {
	return k == KindTimer || k == KindWatch
}

var (
	// ErrInvalid is returned for documents that fail validation
	ErrInvalid = errors.New("graphfile: invalid document")
	// ErrUnknownDependency is returned when "after" names a missing node
	ErrUnknownDependency = errors.New("graphfile: unknown dependency")
)

// Document is a parsed graph file
type Document struct {
	Name  string     `yaml:"name"`
	Nodes []NodeSpec `yaml:"nodes" validate:"required,min=1,dive"`
}

// NodeSpec describes one node
type NodeSpec struct {
	Name     string        `yaml:"name" validate:"required"`
	Kind     Kind          `yaml:"kind" validate:"required,oneof=timer watch exec sleep print const"`
	Interval time.Duration `yaml:"interval" validate:"required_if=Kind timer,required_if=Kind sleep,gte=0"`
	Command  string        `yaml:"command" validate:"required_if=Kind exec"`
	Path     string        `yaml:"path" validate:"required_if=Kind watch"`
	Value    string        `yaml:"value"`
	After    []string      `yaml:"after" validate:"dive,required"`
}

var validate = validator.New()

// Load reads and parses the document at path
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graph file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the field constraints of every node and that names are
// unique and dependencies exist. Graph-level checks (cycles, inputs with
// predecessors) happen in Build.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if seen[n.Name] {
			return fmt.Errorf("%w: %w: %s", ErrInvalid, cells.ErrDuplicateName, n.Name)
		}
		seen[n.Name] = true
	}
	for _, n := range d.Nodes {
		for _, dep := range n.After {
			if !seen[dep] {
				return fmt.Errorf("%w: %s after %s", ErrUnknownDependency, n.Name, dep)
			}
		}
	}
	return nil
}

// Built is a document turned into a runnable graph
type Built struct {
	Graph *cells.Graph
	Clock *cells.Clock
	Cells map[string]*cells.Cell[string]
}

// Value returns the current value of the named node's cell
func (b *Built) Value(name string) (string, bool) {
	c, ok := b.Cells[name]
	if !ok {
		return "", false
	}
	return c.Peek()
}

// Build creates the graph for doc. Print nodes write to out.
func Build(doc *Document, out io.Writer) (*Built, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}

	b := &Built{
		Graph: cells.NewGraph(cells.WithGraphName(doc.Name)),
		Clock: cells.NewClock(),
		Cells: make(map[string]*cells.Cell[string], len(doc.Nodes)),
	}
	for _, spec := range doc.Nodes {
		b.Cells[spec.Name] = cells.NewCell[string](b.Clock)
	}

	w := &lockedWriter{w: out}
	nodes := make(map[string]*cells.Node, len(doc.Nodes))
	for _, spec := range doc.Nodes {
		n := b.node(spec, w)
		nodes[spec.Name] = n

		if spec.Kind.IsInput() {
			if err := b.Graph.AddInput(n); err != nil {
				return nil, err
			}
		} else if err := b.Graph.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, spec := range doc.Nodes {
		for _, dep := range spec.After {
			if err := b.Graph.AddPrecedence(nodes[dep], nodes[spec.Name]); err != nil {
				return nil, err
			}
		}
	}

	if err := b.Graph.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
