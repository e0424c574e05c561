package queryir

import (
	"sort"

	"github.com/roach88/conduit/internal/ir"
)

// Query is a sealed interface; Select is the only query form.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface over Equals and And.
type Predicate interface {
	predicateNode()
}

// Order is the sequence direction of a Select.
type Order int

const (
	// Ascending returns the oldest match first.
	Ascending Order = iota
	// Descending returns the newest match first.
	Descending
)

// Select reads events of one topic.
//
//	SELECT events FROM <From> WHERE <Filter> ORDER BY seq <Order> LIMIT <Limit>
//
// A nil Filter matches every event. Limit 0 means no limit.
type Select struct {
	From   string
	Filter Predicate
	Order  Order
	Limit  int
}

func (Select) queryNode() {}

// Equals matches events whose value at Field equals Value exactly.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// And is a conjunction. An empty And is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conjunction builds the predicate for a field-keyed filter, with fields in
// sorted order so compiled SQL is stable. It returns nil for an empty filter.
func Conjunction(filter map[string]ir.IRValue) Predicate {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 1 {
		return Equals{Field: keys[0], Value: filter[keys[0]]}
	}
	and := And{Predicates: make([]Predicate, len(keys))}
	for i, k := range keys {
		and.Predicates[i] = Equals{Field: k, Value: filter[k]}
	}
	return and
}

// Fields lists the Equals predicates of p in evaluation order.
func Fields(p Predicate) []Equals {
	var out []Equals
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch pred := p.(type) {
		case Equals:
			out = append(out, pred)
		case *Equals:
			out = append(out, *pred)
		case And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		case *And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		}
	}
	walk(p)
	return out
}
