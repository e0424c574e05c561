package catalog

import (
	"sort"

	"github.com/roach88/conduit/internal/ir"
)

// Catalog is the static, load-once set of topics a deployment serves.
type Catalog struct {
	Topics []Topic
}

// Topic declares one event type: its payload schema, its indexed field paths
// and the named operations the graph path exposes.
type Topic struct {
	Name string

	// SchemaFile is the schema path as written in the catalog.
	SchemaFile string

	// Schema holds the JSON Schema document bytes.
	Schema []byte

	// Index lists extra payload paths to index beyond those the operations use.
	Index []string

	// Operations in declaration order.
	Operations []Operation
}

// Operation is a named query bound to a filter template.
type Operation struct {
	Name        string
	Cardinality ir.Cardinality

	// Filter maps a field path to a template value. String leaves may carry
	// placeholders; everything else is a literal.
	Filter ir.IRObject

	// Params are the placeholder names the filter references, sorted.
	Params []string
}

// Topic returns the topic with the given name.
func (c *Catalog) Topic(name string) (*Topic, bool) {
	for i := range c.Topics {
		if c.Topics[i].Name == name {
			return &c.Topics[i], true
		}
	}
	return nil, false
}

// TopicNames returns topic names in declaration order.
func (c *Catalog) TopicNames() []string {
	names := make([]string, len(c.Topics))
	for i, t := range c.Topics {
		names[i] = t.Name
	}
	return names
}

// Operation returns the operation with the given name.
func (t *Topic) Operation(name string) (*Operation, bool) {
	for i := range t.Operations {
		if t.Operations[i].Name == name {
			return &t.Operations[i], true
		}
	}
	return nil, false
}

// IndexPaths is the declared index set: the explicit index list plus every
// field path any operation filters on, excluding "id" which the event table
// answers directly. The result is sorted.
func (t *Topic) IndexPaths() []string {
	seen := make(map[string]struct{})
	for _, p := range t.Index {
		seen[p] = struct{}{}
	}
	for _, op := range t.Operations {
		for path := range op.Filter {
			seen[path] = struct{}{}
		}
	}
	delete(seen, ir.IDField)

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
